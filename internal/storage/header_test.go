package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuenv-dev/taskcache/internal/storage"
)

func TestHeader_EncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	h := storage.NewHeader(100, 60, 0xdeadbeef, true, 1700000000)

	decoded, err := storage.DecodeHeader(h.Encode())
	require.NoError(t, err)
	require.Equal(t, h, decoded)
	require.NoError(t, decoded.Validate())
	require.True(t, decoded.IsCompressed())
}

func TestHeader_ValidateRejectsBadMagic(t *testing.T) {
	t.Parallel()

	h := storage.NewHeader(10, 10, 1, false, 1)
	h.Magic = 0

	require.ErrorIs(t, h.Validate(), storage.ErrCorrupt)
}

func TestHeader_ValidateRejectsFutureVersion(t *testing.T) {
	t.Parallel()

	h := storage.NewHeader(10, 10, 1, false, 1)
	h.Version = storage.StorageVersion + 1

	require.ErrorIs(t, h.Validate(), storage.ErrCorrupt)
}

func TestHeader_ValidateRejectsTamperedCRC(t *testing.T) {
	t.Parallel()

	h := storage.NewHeader(10, 10, 1, false, 1)
	h.HeaderCRC ^= 0xffffffff

	require.ErrorIs(t, h.Validate(), storage.ErrCorrupt)
}

func TestHeader_DecodeTruncated(t *testing.T) {
	t.Parallel()

	_, err := storage.DecodeHeader(make([]byte, storage.HeaderSize-1))
	require.ErrorIs(t, err, storage.ErrCorrupt)
}
