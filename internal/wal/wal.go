package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuenv-dev/taskcache/internal/fsx"
)

// MaxSize is the WAL size threshold that triggers rotation (10 MiB).
const MaxSize uint64 = 10 * 1024 * 1024

// ErrTornEntry indicates a WAL entry's CRC did not verify. Replay treats
// this entry, and everything after it, as never written.
var ErrTornEntry = errors.New("wal: torn entry")

// ErrNotOpen is returned by Append when the WAL file handle is unavailable.
var ErrNotOpen = errors.New("wal: not open")

// WAL is an append-only, length-prefixed, CRC-protected log of pending
// cache mutations, rooted at <base>/wal/wal.log.
type WAL struct {
	fs   fsx.FS
	dir  string
	path string

	mu       sync.Mutex
	file     fsx.File
	size     uint64
	sequence uint64

	onRotate func(rotatedPath string, rotatedSeq uint64)
}

// SetRotationObserver registers fn to be called after a successful rotation,
// with the path the old log was renamed to and the sequence number at
// rotation time. fn may be nil to stop observing.
func (w *WAL) SetRotationObserver(fn func(rotatedPath string, rotatedSeq uint64)) {
	w.mu.Lock()
	w.onRotate = fn
	w.mu.Unlock()
}

// Open creates <baseDir>/wal if needed and opens (or creates) wal.log for
// append, recovering the current sequence number from its last entry.
func Open(fs fsx.FS, baseDir string) (*WAL, error) {
	dir := filepath.Join(baseDir, "wal")
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir %q: %w", dir, err)
	}

	w := &WAL{fs: fs, dir: dir, path: filepath.Join(dir, "wal.log")}
	if err := w.openOrCreate(); err != nil {
		return nil, err
	}

	if err := w.recoverSequence(); err != nil {
		return nil, err
	}

	return w, nil
}

// openOrCreate is only safe before other goroutines can observe w (called
// from Open). Once the WAL is live, mutations to w.file/w.size must go
// through openOrCreateLocked with w.mu held.
func (w *WAL) openOrCreate() error {
	return w.openOrCreateLocked()
}

// openOrCreateLocked opens or creates wal.log and records its size.
// Callers must hold w.mu.
func (w *WAL) openOrCreateLocked() error {
	f, err := w.fs.OpenFile(w.path, osAppendCreate, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open %q: %w", w.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return fmt.Errorf("wal: stat %q: %w", w.path, err)
	}

	w.file = f
	w.size = uint64(info.Size())

	return nil
}

// recoverSequence scans existing entries (without applying them) to find
// the highest sequence number, so a reopened WAL keeps issuing monotonic
// sequence numbers.
func (w *WAL) recoverSequence() error {
	var last uint64

	err := w.Replay(func(seq uint64, _ Operation) error {
		last = seq

		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.sequence = last
	w.mu.Unlock()

	return nil
}

// Append durably appends op, returning its assigned sequence number.
// After appending, rotates the log if it has grown past MaxSize.
func (w *WAL) Append(op Operation) (uint64, error) {
	w.mu.Lock()

	if w.file == nil {
		w.mu.Unlock()

		return 0, ErrNotOpen
	}

	w.sequence++
	seq := w.sequence

	payload, err := encodeEntry(seq, op, time.Now())
	if err != nil {
		w.mu.Unlock()

		return 0, err
	}

	lenPrefix := make([]byte, 4)
	putUint32(lenPrefix, uint32(len(payload)))

	if _, err := w.file.Write(lenPrefix); err != nil {
		w.mu.Unlock()

		return 0, fmt.Errorf("wal: write length prefix: %w", err)
	}

	if _, err := w.file.Write(payload); err != nil {
		w.mu.Unlock()

		return 0, fmt.Errorf("wal: write entry: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		w.mu.Unlock()

		return 0, fmt.Errorf("wal: sync: %w", err)
	}

	w.size += uint64(4 + len(payload))
	needsRotation := w.size > MaxSize

	w.mu.Unlock()

	if needsRotation {
		if err := w.rotate(); err != nil {
			return seq, err
		}
	}

	return seq, nil
}

// rotate renames the active log to wal.log.<sequence-at-rotation>, opens a
// fresh wal.log, and writes a Checkpoint entry as its first record.
func (w *WAL) rotate() error {
	w.mu.Lock()

	rotatedSeq := w.sequence

	if err := w.file.Close(); err != nil {
		w.mu.Unlock()

		return fmt.Errorf("wal: close before rotate: %w", err)
	}

	rotatedPath := fmt.Sprintf("%s.%d", w.path, rotatedSeq)
	if err := w.fs.Rename(w.path, rotatedPath); err != nil {
		w.mu.Unlock()

		return fmt.Errorf("wal: rotate rename: %w", err)
	}

	reopenErr := w.openOrCreateLocked()
	observer := w.onRotate
	w.mu.Unlock()

	if reopenErr != nil {
		return reopenErr
	}

	if observer != nil {
		observer(rotatedPath, rotatedSeq)
	}

	_, err := w.Append(Operation{Kind: OpCheckpoint})

	return err
}

// Replay reads every entry from wal.log in order and invokes fn with its
// sequence number and operation. A CRC failure on an entry stops replay
// at that point without error — the torn tail is treated as never
// written, per the WAL's failure semantics.
func (w *WAL) Replay(fn func(seq uint64, op Operation) error) error {
	data, err := w.fs.ReadFile(w.path)
	if err != nil {
		if isNotExist(err) {
			return nil
		}

		return fmt.Errorf("wal: read %q: %w", w.path, err)
	}

	offset := 0

	for offset < len(data) {
		if offset+4 > len(data) {
			break
		}

		n := binary.LittleEndian.Uint32(data[offset : offset+4])
		offset += 4

		if offset+int(n) > len(data) {
			break
		}

		raw := data[offset : offset+int(n)]
		offset += int(n)

		e, err := decodeEntry(raw)
		if err != nil {
			if errors.Is(err, ErrTornEntry) {
				break
			}

			return err
		}

		if err := fn(e.Sequence, e.Operation); err != nil {
			return err
		}
	}

	return nil
}

// Close flushes and closes the active log file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil

	return err
}

// Size returns the current on-disk size of the active log in bytes.
func (w *WAL) Size() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.size
}

