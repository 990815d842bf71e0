package fsx

import (
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"sync"
	"syscall"
)

// ChaosConfig controls fault injection probabilities, each in [0.0, 1.0].
// The zero value disables all injection. Scoped to the fault classes the
// WAL and storage crash-recovery tests actually need: partial/failed
// writes, failed syncs, and failed renames (the three points at which the
// atomic-write and WAL-append protocols must remain recoverable).
type ChaosConfig struct {
	// WriteFailRate fails File.Write entirely (0 bytes, EIO).
	WriteFailRate float64

	// PartialWriteRate truncates File.Write to a random prefix, returning
	// n < len(p) with io.ErrShortWrite — a short write that simulates a
	// crash mid-append to the WAL or an object file.
	PartialWriteRate float64

	// SyncFailRate fails File.Sync (EIO), simulating an fsync that never
	// made it to stable storage before a crash.
	SyncFailRate float64

	// RenameFailRate fails FS.Rename (EIO), simulating a crash between
	// temp-file fsync and the rename that publishes it.
	RenameFailRate float64
}

// Chaos wraps an [FS] and injects faults per [ChaosConfig] for
// crash-consistency tests. Safe for concurrent use.
type Chaos struct {
	inner FS
	mu    sync.Mutex
	cfg   ChaosConfig
	rng   *rand.Rand
}

// NewChaos wraps inner with fault injection governed by cfg.
func NewChaos(inner FS, cfg ChaosConfig, seed uint64) *Chaos {
	return &Chaos{inner: inner, cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b9))}
}

// SetConfig replaces the active fault rates.
func (c *Chaos) SetConfig(cfg ChaosConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

func (c *Chaos) roll(rate float64) bool {
	if rate <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rng.Float64() < rate
}

func (c *Chaos) Open(path string) (File, error) { return c.inner.Open(path) }

func (c *Chaos) Create(path string) (File, error) {
	f, err := c.inner.Create(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, chaos: c}, nil
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f, err := c.inner.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, chaos: c}, nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error) { return c.inner.ReadFile(path) }

func (c *Chaos) WriteFile(path string, data []byte, perm os.FileMode) error {
	return c.inner.WriteFile(path, data, perm)
}

func (c *Chaos) ReadDir(path string) ([]os.DirEntry, error) { return c.inner.ReadDir(path) }

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error { return c.inner.MkdirAll(path, perm) }

func (c *Chaos) Stat(path string) (os.FileInfo, error) { return c.inner.Stat(path) }

func (c *Chaos) Exists(path string) (bool, error) { return c.inner.Exists(path) }

func (c *Chaos) Remove(path string) error { return c.inner.Remove(path) }

func (c *Chaos) RemoveAll(path string) error { return c.inner.RemoveAll(path) }

func (c *Chaos) Rename(oldpath, newpath string) error {
	if c.roll(c.cfg.RenameFailRate) {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: chaosErrIO}
	}

	return c.inner.Rename(oldpath, newpath)
}

var chaosErrIO = syscall.EIO

var _ FS = (*Chaos)(nil)

type chaosFile struct {
	File
	chaos *Chaos
}

func (f *chaosFile) Write(p []byte) (int, error) {
	if f.chaos.roll(f.chaos.cfg.WriteFailRate) {
		return 0, &fs.PathError{Op: "write", Path: "", Err: chaosErrIO}
	}

	if f.chaos.roll(f.chaos.cfg.PartialWriteRate) && len(p) > 1 {
		f.chaos.mu.Lock()
		n := 1 + f.chaos.rng.IntN(len(p)-1)
		f.chaos.mu.Unlock()

		written, err := f.File.Write(p[:n])
		if err != nil {
			return written, err
		}

		return written, io.ErrShortWrite
	}

	return f.File.Write(p)
}

func (f *chaosFile) Sync() error {
	if f.chaos.roll(f.chaos.cfg.SyncFailRate) {
		return &fs.PathError{Op: "sync", Path: "", Err: chaosErrIO}
	}

	return f.File.Sync()
}
