// Package streaming implements the streaming reader/writer pair (C7): a
// zero-copy, mmap-backed reader where the platform supports it (falling
// back to buffered file reads), and an incremental-hash writer that
// finalizes by atomically renaming a temp file into place.
package streaming

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"

	"github.com/cuenv-dev/taskcache/internal/cachemeta"
	"github.com/cuenv-dev/taskcache/internal/storage"
)

// CacheReader exposes a cache object's payload (the bytes following its
// StorageHeader), preferring an mmap view when the platform and file size
// allow it.
type CacheReader struct {
	Metadata cachemeta.Metadata

	mmapped    []byte // full mapping; payload starts at payloadOffset
	payload    []byte // decoded (decompressed if needed) payload, when not mmap-backed directly
	file       *os.File
	header     storage.StorageHeader
	payloadOff int64
	readOffset int64
}

// Open returns a CacheReader over the object at path, preferring mmap and
// falling back to a buffered file reader when mmap fails (empty file,
// platform restriction, resource limits). The StorageHeader is validated
// and the payload checksum verified before Open returns.
func Open(path string, meta cachemeta.Metadata) (*CacheReader, error) {
	if runtime.GOOS != "windows" {
		if r, err := newMmapReader(path, meta); err == nil {
			return r, nil
		}
	}

	return newFileReader(path, meta)
}

func newMmapReader(path string, meta cachemeta.Metadata) (*CacheReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, err
	}

	if info.Size() < storage.HeaderSize {
		f.Close()

		return nil, fmt.Errorf("%w: file shorter than header", storage.ErrCorrupt)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()

		return nil, err
	}

	header, err := storage.DecodeHeader(data[:storage.HeaderSize])
	if err != nil {
		unix.Munmap(data)
		f.Close()

		return nil, err
	}

	if err := header.Validate(); err != nil {
		unix.Munmap(data)
		f.Close()

		return nil, err
	}

	payload := data[storage.HeaderSize:]
	if err := verifyPayloadCRC(header, payload); err != nil {
		unix.Munmap(data)
		f.Close()

		return nil, err
	}

	r := &CacheReader{Metadata: meta, mmapped: data, file: f, header: header, payloadOff: storage.HeaderSize}

	if header.IsCompressed() {
		decoded, err := decompress(payload, header.UncompressedSize)
		if err != nil {
			unix.Munmap(data)
			f.Close()

			return nil, err
		}

		r.payload = decoded
	}

	return r, nil
}

func newFileReader(path string, meta cachemeta.Metadata) (*CacheReader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(raw) < storage.HeaderSize {
		return nil, fmt.Errorf("%w: file shorter than header", storage.ErrCorrupt)
	}

	header, err := storage.DecodeHeader(raw[:storage.HeaderSize])
	if err != nil {
		return nil, err
	}

	if err := header.Validate(); err != nil {
		return nil, err
	}

	payload := raw[storage.HeaderSize:]
	if err := verifyPayloadCRC(header, payload); err != nil {
		return nil, err
	}

	if header.IsCompressed() {
		payload, err = decompress(payload, header.UncompressedSize)
		if err != nil {
			return nil, err
		}
	}

	return &CacheReader{Metadata: meta, payload: payload, header: header}, nil
}

func verifyPayloadCRC(header storage.StorageHeader, payload []byte) error {
	if got := storage.ChecksumPayload(payload); got != header.DataCRC {
		return fmt.Errorf("%w: payload CRC mismatch: got %08x, want %08x", storage.ErrCorrupt, got, header.DataCRC)
	}

	return nil
}

func decompress(compressed []byte, uncompressedSize uint64) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("streaming: create zstd reader: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("streaming: zstd decode: %w", err)
	}

	return out, nil
}

// payloadBytes returns the logical (decompressed) payload, whether it's a
// zero-copy mmap slice or a decoded buffer.
func (r *CacheReader) payloadBytes() []byte {
	if r.payload != nil {
		return r.payload
	}

	return r.mmapped[r.payloadOff:]
}

// Read implements io.Reader over the object's payload.
func (r *CacheReader) Read(p []byte) (int, error) {
	buf := r.payloadBytes()

	if r.readOffset >= int64(len(buf)) {
		return 0, io.EOF
	}

	n := copy(p, buf[r.readOffset:])
	r.readOffset += int64(n)

	return n, nil
}

// Bytes returns the full payload. For an mmap-backed, uncompressed reader
// this is a zero-copy view; callers must not retain it past Close.
func (r *CacheReader) Bytes() ([]byte, error) {
	return r.payloadBytes(), nil
}

// Close releases the mmap (if any) and the underlying file descriptor.
func (r *CacheReader) Close() error {
	var errs []error

	if r.mmapped != nil {
		if err := unix.Munmap(r.mmapped); err != nil {
			errs = append(errs, err)
		}

		r.mmapped = nil
	}

	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
