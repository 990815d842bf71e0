package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/semaphore"

	"github.com/cuenv-dev/taskcache/internal/cacheerr"
	"github.com/cuenv-dev/taskcache/internal/fsx"
)

// PermitTimeout bounds how long Write/Read wait to acquire an I/O permit
// before giving up with a Timeout error.
const PermitTimeout = 5 * time.Second

// Config tunes the storage backend's compression and concurrency behavior.
type Config struct {
	CompressionEnabled bool
	CompressionLevel   int
	CompressionMinSize int64
	ReadPermits        int64
	WritePermits       int64
}

// DefaultConfig returns the documented defaults: compression on at level 3
// at or above 1 KiB, 200 read permits, 50 write permits.
func DefaultConfig() Config {
	return Config{
		CompressionEnabled: true,
		CompressionLevel:   3,
		CompressionMinSize: 1024,
		ReadPermits:        200,
		WritePermits:       50,
	}
}

// Backend is the permit-bounded, compressed, checksummed read/write gate
// (C3) built directly on the StorageHeader format (C1). It operates on
// paths, not cache keys; the root package maps keys to paths.
type Backend struct {
	fs       fsx.FS
	cfg      Config
	writer   *fsx.AtomicWriter
	readSem  *semaphore.Weighted
	writeSem *semaphore.Weighted
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

// NewBackend builds a Backend bound to fs, with a persistent zstd
// encoder/decoder pair reused across calls (each is safe for concurrent
// use via EncodeAll/DecodeAll, reused across the whole backend's
// lifetime rather than allocated per call).
func NewBackend(fs fsx.FS, cfg Config) (*Backend, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.CompressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("storage: new zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()

		return nil, fmt.Errorf("storage: new zstd decoder: %w", err)
	}

	return &Backend{
		fs:       fs,
		cfg:      cfg,
		writer:   fsx.NewAtomicWriter(fs),
		readSem:  semaphore.NewWeighted(cfg.ReadPermits),
		writeSem: semaphore.NewWeighted(cfg.WritePermits),
		encoder:  enc,
		decoder:  dec,
	}, nil
}

// Close releases the backend's zstd encoder/decoder resources.
func (b *Backend) Close() {
	b.encoder.Close()
	b.decoder.Close()
}

// Write acquires a write permit, compresses payload if enabled and large
// enough, checksums it, frames it behind a StorageHeader, and atomically
// writes the result to path.
func (b *Backend) Write(ctx context.Context, path string, payload []byte) error {
	acquireCtx, cancel := context.WithTimeout(ctx, PermitTimeout)
	defer cancel()

	if err := b.writeSem.Acquire(acquireCtx, 1); err != nil {
		return cacheerr.Timeout("storage_write", PermitTimeout.Milliseconds())
	}
	defer b.writeSem.Release(1)

	body := payload
	compressed := false

	if b.cfg.CompressionEnabled && int64(len(payload)) >= b.cfg.CompressionMinSize {
		body = b.encoder.EncodeAll(payload, make([]byte, 0, len(payload)))
		compressed = true
	}

	header := NewHeader(uint64(len(payload)), uint64(len(body)), ChecksumPayload(body), compressed, uint64(time.Now().Unix()))

	buf := make([]byte, 0, HeaderSize+len(body))
	buf = append(buf, header.Encode()...)
	buf = append(buf, body...)

	if err := b.writer.WriteBytes(path, buf, fsx.DefaultWriteOptions()); err != nil {
		return cacheerr.IO("storage_write", path, err)
	}

	return nil
}

// Read acquires a read permit, reads path in full, validates and strips its
// StorageHeader, verifies the payload CRC, and zstd-decodes it if the
// compressed flag is set, returning the original uncompressed payload.
func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, PermitTimeout)
	defer cancel()

	if err := b.readSem.Acquire(acquireCtx, 1); err != nil {
		return nil, cacheerr.Timeout("storage_read", PermitTimeout.Milliseconds())
	}
	defer b.readSem.Release(1)

	raw, err := b.fs.ReadFile(path)
	if err != nil {
		return nil, cacheerr.IO("storage_read", path, err)
	}

	if len(raw) < HeaderSize {
		return nil, cacheerr.Corruption(path, fmt.Sprintf("truncated object (%d bytes)", len(raw)))
	}

	header, err := DecodeHeader(raw[:HeaderSize])
	if err != nil {
		return nil, cacheerr.Corruption(path, err.Error())
	}

	if err := header.Validate(); err != nil {
		return nil, cacheerr.Corruption(path, err.Error())
	}

	body := raw[HeaderSize:]
	if ChecksumPayload(body) != header.DataCRC {
		return nil, cacheerr.Corruption(path, "payload CRC mismatch")
	}

	if !header.IsCompressed() {
		out := make([]byte, len(body))
		copy(out, body)

		return out, nil
	}

	out, err := b.decoder.DecodeAll(body, make([]byte, 0, header.UncompressedSize))
	if err != nil {
		return nil, cacheerr.Compression("read", err)
	}

	return out, nil
}

// ContentHash returns the SHA-256 hex digest of payload, used both for
// CacheMetadata.ContentHash and for WAL recovery's stale-write comparison.
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)

	return hex.EncodeToString(sum[:])
}
