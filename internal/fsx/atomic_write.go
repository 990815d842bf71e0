package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrDirSync indicates the parent directory could not be synced after
// rename. The new file is in place but durability of the rename itself is
// not guaranteed on an unclean shutdown. Detect with errors.Is.
var ErrDirSync = errors.New("dir sync")

// AtomicWriter writes files atomically: stage into a uniquely-named temp
// file in the target directory, fsync it, rename over the destination,
// then best-effort fsync the parent directory.
type AtomicWriter struct {
	fs FS
}

// NewAtomicWriter returns an AtomicWriter bound to fs. Panics if fs is nil.
func NewAtomicWriter(fs FS) *AtomicWriter {
	if fs == nil {
		panic("fsx: fs is nil")
	}

	return &AtomicWriter{fs: fs}
}

// WriteOptions configures Write.
type WriteOptions struct {
	// SyncDir controls whether the parent directory is synced after
	// rename. Default true.
	SyncDir bool

	// Perm is the file's permission bits. Must be non-zero.
	Perm os.FileMode
}

// DefaultWriteOptions returns {SyncDir: true, Perm: 0o644}.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{SyncDir: true, Perm: 0o644}
}

// Write stages r's content into a temp file named "tmp.<uuid>" next to
// path, fsyncs it, renames it over path, and fsyncs the parent directory.
// On any error before the rename, the temp file is removed.
func (w *AtomicWriter) Write(path string, r io.Reader, opts WriteOptions) error {
	if r == nil {
		panic("fsx: reader is nil")
	}

	if path == "" {
		return errors.New("fsx: path is empty")
	}

	if opts.Perm == 0 {
		return errors.New("fsx: opts.Perm must be non-zero")
	}

	dir, base := filepath.Split(path)
	if base == "" || base == "." {
		return fmt.Errorf("fsx: invalid path %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)

	tmpPath := filepath.Join(dir, "tmp."+uuid.NewString())

	tmpFile, err := w.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, opts.Perm)
	if err != nil {
		return fmt.Errorf("fsx: create temp file %q: %w", tmpPath, err)
	}

	cleanup := func() error {
		return errors.Join(closeQuiet(tmpFile), removeQuiet(w.fs, tmpPath))
	}

	if err := tmpFile.Chmod(opts.Perm); err != nil {
		return errors.Join(fmt.Errorf("fsx: chmod %q: %w", tmpPath, err), cleanup())
	}

	if _, err := io.Copy(tmpFile, r); err != nil {
		return errors.Join(fmt.Errorf("fsx: write %q: %w", tmpPath, err), cleanup())
	}

	if err := tmpFile.Sync(); err != nil {
		return errors.Join(fmt.Errorf("fsx: sync %q: %w", tmpPath, err), cleanup())
	}

	if err := tmpFile.Close(); err != nil {
		return errors.Join(fmt.Errorf("fsx: close %q: %w", tmpPath, err), removeQuiet(w.fs, tmpPath))
	}

	if err := w.fs.Rename(tmpPath, path); err != nil {
		return errors.Join(fmt.Errorf("fsx: rename %q -> %q: %w", tmpPath, path, err), removeQuiet(w.fs, tmpPath))
	}

	if opts.SyncDir {
		if err := fsyncDir(w.fs, dir); err != nil {
			return err
		}
	}

	return nil
}

// WriteBytes is a convenience wrapper around Write for in-memory payloads.
func (w *AtomicWriter) WriteBytes(path string, data []byte, opts WriteOptions) error {
	return w.Write(path, &byteReader{b: data}, opts)
}

type byteReader struct {
	b []byte
	i int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}

	n := copy(p, r.b[r.i:])
	r.i += n

	return n, nil
}

func fsyncDir(fs FS, dir string) error {
	f, err := fs.Open(dir)
	if err != nil {
		return errors.Join(ErrDirSync, fmt.Errorf("open dir %q: %w", dir, err))
	}

	if err := f.Sync(); err != nil {
		return errors.Join(ErrDirSync, fmt.Errorf("sync dir %q: %w", dir, err), closeQuiet(f))
	}

	return closeQuiet(f)
}

func closeQuiet(f File) error {
	if err := f.Close(); err != nil {
		return fmt.Errorf("fsx: close: %w", err)
	}

	return nil
}

func removeQuiet(fs FS, path string) error {
	if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsx: remove %q: %w", path, err)
	}

	return nil
}
