package fsx_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuenv-dev/taskcache/internal/fsx"
)

func TestAtomicWriter_WriteThenRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "object.bin")

	writer := fsx.NewAtomicWriter(fsx.NewReal())
	err := writer.Write(path, strings.NewReader("hello cache"), fsx.DefaultWriteOptions())
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello cache", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not survive a successful write")
}

func TestAtomicWriter_RenameFailureLeavesNoTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "object.bin")

	chaos := fsx.NewChaos(fsx.NewReal(), fsx.ChaosConfig{RenameFailRate: 1.0}, 1)
	writer := fsx.NewAtomicWriter(chaos)

	err := writer.Write(path, strings.NewReader("payload"), fsx.DefaultWriteOptions())
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "failed rename must clean up its temp file")
}

func TestAtomicWriter_RejectsEmptyPath(t *testing.T) {
	t.Parallel()

	writer := fsx.NewAtomicWriter(fsx.NewReal())
	err := writer.Write("", strings.NewReader("x"), fsx.DefaultWriteOptions())
	require.Error(t, err)
}
