// Package cachemeta defines CacheMetadata, the per-entry record persisted
// alongside every data object and shared by storage, streaming, fastpath,
// and the root cache facade.
package cachemeta

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// CacheVersion is the current metadata schema version. Readers refuse
// metadata with a strictly greater version (see VERSION file handling in
// the root package).
const CacheVersion = 3

// Metadata is the per-entry record persisted in a sibling .meta file.
type Metadata struct {
	CreatedAt    time.Time
	LastAccessed time.Time
	ExpiresAt    *time.Time
	SizeBytes    int64
	AccessCount  uint64
	ContentHash  string
	CacheVersion int
}

// Expired reports whether m's ExpiresAt is set and at or before now.
func (m Metadata) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// New builds metadata for a freshly written entry of size bytes with the
// given content hash and optional ttl.
func New(size int64, contentHash string, ttl *time.Duration, now time.Time) Metadata {
	m := Metadata{
		CreatedAt:    now,
		LastAccessed: now,
		SizeBytes:    size,
		AccessCount:  1,
		ContentHash:  contentHash,
		CacheVersion: CacheVersion,
	}

	if ttl != nil {
		expires := now.Add(*ttl)
		m.ExpiresAt = &expires
	}

	return m
}

// Encode gob-encodes m, the payload stored (under a StorageHeader) in a
// sibling .meta file.
func (m Metadata) Encode() ([]byte, error) {
	var buf bytes.Buffer

	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("cachemeta: encode: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode gob-decodes a Metadata previously produced by Encode.
func Decode(data []byte) (Metadata, error) {
	var m Metadata

	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return Metadata{}, fmt.Errorf("cachemeta: decode: %w", err)
	}

	return m, nil
}
