package streaming

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cuenv-dev/taskcache/internal/cachemeta"
	"github.com/cuenv-dev/taskcache/internal/fsx"
	"github.com/cuenv-dev/taskcache/internal/storage"
)

// Observer is notified when a CacheWriter finalizes. The default is a
// no-op; callers that want to react to streamed writes (metrics, audit
// logging) supply their own.
type Observer interface {
	OnFinalize(key string, bytesWritten int64)
}

type noopObserver struct{}

func (noopObserver) OnFinalize(string, int64) {}

// NoopObserver is the default Observer, used when none is configured.
var NoopObserver Observer = noopObserver{}

// CacheWriter streams a value's bytes directly to cache storage, avoiding
// buffering the whole payload in memory. Header space is reserved at the
// front of the temp file and patched in on Finalize once the payload's
// size and CRC are known.
type CacheWriter struct {
	fs       fsx.FS
	key      string
	dataPath string
	metaPath string
	tmpPath  string

	file      fsx.File
	sha       hash.Hash
	crc       hash.Hash32
	written   int64
	ttl       *time.Duration
	createdAt time.Time
	observer  Observer

	// releaseWritePermit is set by Manager.GetWriter and invoked exactly
	// once, however the writer ends (Finalize or Abort). Nil when a
	// CacheWriter is constructed directly via NewWriter outside a Manager.
	releaseWritePermit func()

	closed bool
}

func (w *CacheWriter) release() {
	if w.releaseWritePermit != nil {
		w.releaseWritePermit()
	}
}

// NewWriter opens a streaming writer for key, staging into
// "<dataPath>.tmp.<uuid>". The parent directory must already exist.
func NewWriter(fs fsx.FS, key, dataPath, metaPath string, ttl *time.Duration, observer Observer) (*CacheWriter, error) {
	if observer == nil {
		observer = NoopObserver
	}

	tmpPath := dataPath + ".tmp." + uuid.NewString()

	f, err := fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("streaming: create temp file %q: %w", tmpPath, err)
	}

	// Reserve space for the header; patched in during Finalize once the
	// final size and CRC are known.
	if _, err := f.Write(make([]byte, storage.HeaderSize)); err != nil {
		f.Close()
		fs.Remove(tmpPath)

		return nil, fmt.Errorf("streaming: reserve header: %w", err)
	}

	return &CacheWriter{
		fs:        fs,
		key:       key,
		dataPath:  dataPath,
		metaPath:  metaPath,
		tmpPath:   tmpPath,
		file:      f,
		sha:       sha256.New(),
		crc:       storage.NewCRC32C(),
		ttl:       ttl,
		createdAt: time.Now(),
		observer:  observer,
	}, nil
}

// Write streams p to the temp file, updating both the content hash and the
// payload CRC incrementally.
func (w *CacheWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	if n > 0 {
		w.sha.Write(p[:n])
		w.crc.Write(p[:n])
		w.written += int64(n)
	}

	if err != nil {
		return n, fmt.Errorf("streaming: write: %w", err)
	}

	return n, nil
}

// Finalize syncs the data file, patches in its StorageHeader, builds
// CacheMetadata, and atomically renames both the data and metadata files
// into place. On any error, the temp data file is removed.
func (w *CacheWriter) Finalize() (cachemeta.Metadata, error) {
	if w.closed {
		return cachemeta.Metadata{}, fmt.Errorf("streaming: writer for %q already finalized", w.key)
	}

	w.closed = true
	defer w.release()

	header := storage.NewHeader(uint64(w.written), uint64(w.written), w.crc.Sum32(), false, uint64(w.createdAt.Unix()))

	if _, err := w.file.Seek(0, 0); err != nil {
		w.cleanup()

		return cachemeta.Metadata{}, fmt.Errorf("streaming: seek to patch header: %w", err)
	}

	if _, err := w.file.Write(header.Encode()); err != nil {
		w.cleanup()

		return cachemeta.Metadata{}, fmt.Errorf("streaming: patch header: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		w.cleanup()

		return cachemeta.Metadata{}, fmt.Errorf("streaming: sync: %w", err)
	}

	if err := w.file.Close(); err != nil {
		w.fs.Remove(w.tmpPath)

		return cachemeta.Metadata{}, fmt.Errorf("streaming: close: %w", err)
	}

	if err := w.fs.Rename(w.tmpPath, w.dataPath); err != nil {
		w.fs.Remove(w.tmpPath)

		return cachemeta.Metadata{}, fmt.Errorf("streaming: rename %q -> %q: %w", w.tmpPath, w.dataPath, err)
	}

	meta := cachemeta.Metadata{
		CreatedAt:    w.createdAt,
		LastAccessed: w.createdAt,
		SizeBytes:    w.written,
		AccessCount:  0,
		ContentHash:  hex.EncodeToString(w.sha.Sum(nil)),
		CacheVersion: cachemeta.CacheVersion,
	}

	if w.ttl != nil {
		expires := w.createdAt.Add(*w.ttl)
		meta.ExpiresAt = &expires
	}

	if err := writeMetaFile(w.fs, w.metaPath, meta); err != nil {
		return cachemeta.Metadata{}, err
	}

	w.observer.OnFinalize(w.key, w.written)

	return meta, nil
}

// Abort discards the in-progress write, removing the temp file.
func (w *CacheWriter) Abort() error {
	if w.closed {
		return nil
	}

	w.closed = true
	defer w.release()

	return w.cleanup()
}

func (w *CacheWriter) cleanup() error {
	w.file.Close()

	if err := w.fs.Remove(w.tmpPath); err != nil && !fsx.IsNotExist(err) {
		return fmt.Errorf("streaming: remove temp file %q: %w", w.tmpPath, err)
	}

	return nil
}

func writeMetaFile(fs fsx.FS, metaPath string, meta cachemeta.Metadata) error {
	payload, err := meta.Encode()
	if err != nil {
		return fmt.Errorf("streaming: encode metadata: %w", err)
	}

	header := storage.NewHeader(uint64(len(payload)), uint64(len(payload)), storage.ChecksumPayload(payload), false, uint64(time.Now().Unix()))

	buf := make([]byte, 0, storage.HeaderSize+len(payload))
	buf = append(buf, header.Encode()...)
	buf = append(buf, payload...)

	writer := fsx.NewAtomicWriter(fs)
	if err := writer.WriteBytes(metaPath, buf, fsx.DefaultWriteOptions()); err != nil {
		return fmt.Errorf("streaming: write metadata: %w", err)
	}

	return nil
}
