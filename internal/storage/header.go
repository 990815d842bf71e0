// Package storage implements the binary on-disk object format (C1) and the
// compressed, checksummed, permit-bounded read/write backend (C3) built on
// top of it.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
)

// CacheMagic identifies a cuenv cache object or metadata file: "CUEV".
const CacheMagic uint32 = 0x43554556

// StorageVersion is the current on-disk format version. Readers refuse
// files with a strictly greater version.
const StorageVersion uint16 = 2

// FlagCompressed marks the payload as zstd-compressed.
const FlagCompressed uint16 = 1 << 0

// HeaderSize is the fixed, serialized size of a StorageHeader in bytes:
// 4(magic) + 2(version) + 2(flags) + 4(header_crc) + 8(timestamp) +
// 8(uncompressed_size) + 8(compressed_size) + 4(data_crc) + 16(reserved).
const HeaderSize = 4 + 2 + 2 + 4 + 8 + 8 + 8 + 4 + 16

// crcTable is the Castagnoli CRC32C polynomial table used for both header
// and payload integrity checks throughout the cache.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ErrCorrupt is wrapped into every integrity failure returned from this
// package: bad magic, unsupported version, or a CRC mismatch.
var ErrCorrupt = errors.New("storage: corrupt object")

// StorageHeader is prepended to every object and metadata file.
type StorageHeader struct {
	Magic             uint32
	Version           uint16
	Flags             uint16
	HeaderCRC         uint32
	Timestamp         uint64
	UncompressedSize  uint64
	CompressedSize    uint64
	DataCRC           uint32
	Reserved          [16]byte
}

// NewHeader builds a header for a payload with the given sizes and data
// CRC, stamping the given timestamp now and computing the header CRC.
func NewHeader(uncompressedSize, compressedSize uint64, dataCRC uint32, compressed bool, now uint64) StorageHeader {
	h := StorageHeader{
		Magic:            CacheMagic,
		Version:          StorageVersion,
		Timestamp:        now,
		UncompressedSize: uncompressedSize,
		CompressedSize:   compressedSize,
		DataCRC:          dataCRC,
	}

	if compressed {
		h.Flags |= FlagCompressed
	}

	h.HeaderCRC = h.computeCRC()

	return h
}

// IsCompressed reports whether FlagCompressed is set.
func (h StorageHeader) IsCompressed() bool {
	return h.Flags&FlagCompressed != 0
}

// Encode serializes h into its fixed HeaderSize-byte little-endian form.
func (h StorageHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.encodeInto(buf)

	return buf
}

func (h StorageHeader) encodeInto(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.HeaderCRC)
	binary.LittleEndian.PutUint64(buf[12:20], h.Timestamp)
	binary.LittleEndian.PutUint64(buf[20:28], h.UncompressedSize)
	binary.LittleEndian.PutUint64(buf[28:36], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[36:40], h.DataCRC)
	copy(buf[40:56], h.Reserved[:])
}

// computeCRC returns the CRC32C of the encoded header with the HeaderCRC
// field zeroed, matching the write-time calculation.
func (h StorageHeader) computeCRC() uint32 {
	tmp := h
	tmp.HeaderCRC = 0

	buf := make([]byte, HeaderSize)
	tmp.encodeInto(buf)

	return crc32.Checksum(buf, crcTable)
}

// DecodeHeader parses a HeaderSize-byte prefix into a StorageHeader
// without validating it; call Validate separately.
func DecodeHeader(buf []byte) (StorageHeader, error) {
	if len(buf) < HeaderSize {
		return StorageHeader{}, fmt.Errorf("%w: truncated header (%d bytes)", ErrCorrupt, len(buf))
	}

	var h StorageHeader
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	h.Flags = binary.LittleEndian.Uint16(buf[6:8])
	h.HeaderCRC = binary.LittleEndian.Uint32(buf[8:12])
	h.Timestamp = binary.LittleEndian.Uint64(buf[12:20])
	h.UncompressedSize = binary.LittleEndian.Uint64(buf[20:28])
	h.CompressedSize = binary.LittleEndian.Uint64(buf[28:36])
	h.DataCRC = binary.LittleEndian.Uint32(buf[36:40])
	copy(h.Reserved[:], buf[40:56])

	return h, nil
}

// Validate checks magic, version, and header CRC. It does not check the
// payload CRC — callers validate DataCRC once the payload is in hand.
func (h StorageHeader) Validate() error {
	if h.Magic != CacheMagic {
		return fmt.Errorf("%w: bad magic %08x, want %08x", ErrCorrupt, h.Magic, CacheMagic)
	}

	if h.Version > StorageVersion {
		return fmt.Errorf("%w: unsupported version %d (max %d)", ErrCorrupt, h.Version, StorageVersion)
	}

	if got := h.computeCRC(); got != h.HeaderCRC {
		return fmt.Errorf("%w: header CRC mismatch: got %08x, want %08x", ErrCorrupt, got, h.HeaderCRC)
	}

	return nil
}

// ChecksumPayload returns the CRC32C of a payload, using the same table as
// the header CRC.
func ChecksumPayload(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// NewCRC32C returns an incremental Castagnoli CRC32 hasher, for callers
// (such as the streaming writer) that checksum a payload as it arrives
// rather than from a single in-memory buffer.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crcTable)
}
