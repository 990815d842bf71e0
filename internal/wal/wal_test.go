package wal_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuenv-dev/taskcache/internal/fsx"
	"github.com/cuenv-dev/taskcache/internal/wal"
)

func TestWAL_AppendAndReplay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := fsx.NewReal()

	w, err := wal.Open(real, dir)
	require.NoError(t, err)

	seq1, err := w.Append(wal.Operation{
		Kind:  wal.OpWrite,
		Write: &wal.WriteOp{Key: "k1", DataPath: "objects/k1", MetaPath: "metadata/k1.meta", Data: []byte("v1")},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq1)

	seq2, err := w.Append(wal.Operation{
		Kind:   wal.OpDelete,
		Delete: &wal.DeleteOp{Key: "k1", DataPath: "objects/k1", MetaPath: "metadata/k1.meta"},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq2)

	require.NoError(t, w.Close())

	w2, err := wal.Open(real, dir)
	require.NoError(t, err)

	var seen []wal.OpKind
	err = w2.Replay(func(_ uint64, op wal.Operation) error {
		seen = append(seen, op.Kind)

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []wal.OpKind{wal.OpWrite, wal.OpDelete}, seen)
}

func TestWAL_SequenceSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := fsx.NewReal()

	w, err := wal.Open(real, dir)
	require.NoError(t, err)

	_, err = w.Append(wal.Operation{Kind: wal.OpCheckpoint})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := wal.Open(real, dir)
	require.NoError(t, err)

	seq, err := w2.Append(wal.Operation{Kind: wal.OpCheckpoint})
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq)
}

func TestWAL_TornFinalEntryStopsReplay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := fsx.NewReal()

	w, err := wal.Open(real, dir)
	require.NoError(t, err)

	_, err = w.Append(wal.Operation{
		Kind:  wal.OpWrite,
		Write: &wal.WriteOp{Key: "good", DataPath: "d", MetaPath: "m"},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := dir + "/wal/wal.log"
	data, err := real.ReadFile(path)
	require.NoError(t, err)

	// Append a torn (truncated) second entry: a length prefix claiming
	// more bytes than actually follow.
	torn := append([]byte{}, data...)
	torn = append(torn, 0x10, 0x00, 0x00, 0x00, 0x01, 0x02)
	require.NoError(t, real.WriteFile(path, torn, 0o644))

	w2, err := wal.Open(real, dir)
	require.NoError(t, err)

	var count int
	err = w2.Replay(func(_ uint64, _ wal.Operation) error {
		count++

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, count, "torn trailing entry must not be replayed")
}
