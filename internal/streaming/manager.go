package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cuenv-dev/taskcache/internal/cacheerr"
	"github.com/cuenv-dev/taskcache/internal/cachemeta"
	"github.com/cuenv-dev/taskcache/internal/fsx"
	"github.com/cuenv-dev/taskcache/internal/storage"
)

// PermitTimeout is how long GetReader/GetWriter wait to acquire their
// semaphore before failing with a Timeout error.
const PermitTimeout = 5 * time.Second

// Manager gates streaming reads and writes behind read/write permits and
// ties together key validation, expiry handling, and atomic finalization.
type Manager struct {
	fs       fsx.FS
	readSem  *semaphore.Weighted
	writeSem *semaphore.Weighted
	observer Observer
}

// NewManager constructs a Manager with the given permit counts (default
// deployment uses 200 read, 50 write).
func NewManager(fs fsx.FS, readPermits, writePermits int64, observer Observer) *Manager {
	if observer == nil {
		observer = NoopObserver
	}

	return &Manager{
		fs:       fs,
		readSem:  semaphore.NewWeighted(readPermits),
		writeSem: semaphore.NewWeighted(writePermits),
		observer: observer,
	}
}

// GetReader acquires a read permit and returns a CacheReader over
// dataPath. It does not validate key; the root package's callers do. Returns (nil, nil) if metaPath doesn't exist
// or the entry has expired (in which case both files are removed).
func (m *Manager) GetReader(ctx context.Context, key, dataPath, metaPath string) (*CacheReader, error) {
	ctx, cancel := context.WithTimeout(ctx, PermitTimeout)
	defer cancel()

	if err := m.readSem.Acquire(ctx, 1); err != nil {
		return nil, cacheerr.Timeout("get_reader", PermitTimeout.Milliseconds())
	}
	defer m.readSem.Release(1)

	metaBytes, err := m.fs.ReadFile(metaPath)
	if err != nil {
		if fsx.IsNotExist(err) {
			return nil, nil
		}

		return nil, cacheerr.IO("get_reader", metaPath, err)
	}

	meta, err := decodeMetaFile(metaBytes)
	if err != nil {
		return nil, err
	}

	if meta.Expired(time.Now()) {
		m.fs.Remove(metaPath)
		m.fs.Remove(dataPath)

		return nil, nil
	}

	reader, err := Open(dataPath, meta)
	if err != nil {
		if fsx.IsNotExist(err) {
			return nil, nil
		}

		return nil, cacheerr.IO("get_reader", dataPath, err)
	}

	return reader, nil
}

// GetWriter acquires a write permit, then returns a CacheWriter. It does
// not validate key; the root package's callers do. The caller must call Finalize or Abort; Release happens
// internally as part of both.
func (m *Manager) GetWriter(ctx context.Context, key, dataPath, metaPath string, ttl *time.Duration) (*CacheWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, PermitTimeout)
	defer cancel()

	if err := m.writeSem.Acquire(ctx, 1); err != nil {
		return nil, cacheerr.Timeout("get_writer", PermitTimeout.Milliseconds())
	}

	w, err := NewWriter(m.fs, key, dataPath, metaPath, ttl, m.observer)
	if err != nil {
		m.writeSem.Release(1)

		return nil, cacheerr.IO("get_writer", dataPath, err)
	}

	w.releaseWritePermit = func() { m.writeSem.Release(1) }

	return w, nil
}

// PutStream copies src into a CacheWriter using a 64 KiB buffer, returning
// the total bytes written.
func (m *Manager) PutStream(ctx context.Context, key, dataPath, metaPath string, src io.Reader, ttl *time.Duration) (int64, error) {
	w, err := m.GetWriter(ctx, key, dataPath, metaPath, ttl)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, 64*1024)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				w.Abort()

				return 0, writeErr
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}

			w.Abort()

			return 0, fmt.Errorf("streaming: read source: %w", readErr)
		}
	}

	meta, err := w.Finalize()
	if err != nil {
		return 0, err
	}

	return meta.SizeBytes, nil
}

func decodeMetaFile(raw []byte) (cachemeta.Metadata, error) {
	if len(raw) < storage.HeaderSize {
		return cachemeta.Metadata{}, cacheerr.Corruption("", "metadata file shorter than header")
	}

	header, payload := raw[:storage.HeaderSize], raw[storage.HeaderSize:]

	h, err := storage.DecodeHeader(header)
	if err != nil {
		return cachemeta.Metadata{}, cacheerr.Corruption("", err.Error())
	}

	if err := h.Validate(); err != nil {
		return cachemeta.Metadata{}, cacheerr.Corruption("", err.Error())
	}

	if err := verifyPayloadCRC(h, payload); err != nil {
		return cachemeta.Metadata{}, cacheerr.Corruption("", err.Error())
	}

	meta, err := cachemeta.Decode(payload)
	if err != nil {
		return cachemeta.Metadata{}, cacheerr.Serialization("decode_metadata", "", err)
	}

	return meta, nil
}
