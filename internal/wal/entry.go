// Package wal implements the write-ahead log (C2): a length-prefixed,
// CRC-protected, append-only record of pending mutations, replayed at
// startup so a crash between a WAL append and the corresponding object
// rename never loses data.
package wal

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"time"
)

// OpKind tags the kind of mutation a WAL entry records.
type OpKind uint8

const (
	// OpWrite records a data+metadata write that must be re-applied on
	// replay if the data file is missing or stale.
	OpWrite OpKind = iota
	// OpDelete records removal of a key's data and metadata files.
	OpDelete
	// OpCheckpoint marks that everything before it has been durably
	// applied. Replay still delivers every entry, checkpoints included;
	// it does not skip entries that precede a checkpoint.
	OpCheckpoint
)

// WriteOp is the payload of an OpWrite entry.
type WriteOp struct {
	Key         string
	DataPath    string
	MetaPath    string
	Data        []byte
	Meta        []byte
	ContentHash string
}

// DeleteOp is the payload of an OpDelete entry.
type DeleteOp struct {
	Key       string
	DataPath  string
	MetaPath  string
}

// Operation is the tagged union recorded in a WAL entry. Write is populated
// for OpWrite and Delete for OpDelete; an OpCheckpoint carries neither.
type Operation struct {
	Kind   OpKind
	Write  *WriteOp
	Delete *DeleteOp
}

// entry is the on-disk, gob-encoded record: length-prefixed by the
// caller, CRC computed over the gob bytes with CRC zeroed first.
type entry struct {
	Sequence  uint64
	Timestamp int64
	Operation Operation
	CRC       uint32
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// encodeEntry gob-encodes e with CRC zeroed, computes the CRC over those
// bytes, then re-encodes with the CRC populated. Returns the final bytes
// ready to be length-prefixed onto the log.
func encodeEntry(seq uint64, op Operation, now time.Time) ([]byte, error) {
	e := entry{Sequence: seq, Timestamp: now.UnixNano(), Operation: op}

	raw, err := gobEncode(e)
	if err != nil {
		return nil, fmt.Errorf("wal: encode entry: %w", err)
	}

	e.CRC = crc32.Checksum(raw, crcTable)

	final, err := gobEncode(e)
	if err != nil {
		return nil, fmt.Errorf("wal: encode entry: %w", err)
	}

	return final, nil
}

// decodeEntry parses a single gob-encoded entry and verifies its CRC.
func decodeEntry(raw []byte) (entry, error) {
	var e entry
	if err := gobDecode(raw, &e); err != nil {
		return entry{}, fmt.Errorf("wal: decode entry: %w", err)
	}

	want := e.CRC
	check := e
	check.CRC = 0

	reencoded, err := gobEncode(check)
	if err != nil {
		return entry{}, fmt.Errorf("wal: recompute entry CRC: %w", err)
	}

	if got := crc32.Checksum(reencoded, crcTable); got != want {
		return entry{}, fmt.Errorf("%w: got %08x want %08x", ErrTornEntry, got, want)
	}

	return e, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

func putUint32(w []byte, n uint32) {
	binary.LittleEndian.PutUint32(w, n)
}
