package taskcache_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	taskcache "github.com/cuenv-dev/taskcache"
)

func TestCache_PutStreamGetReaderRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	payload := strings.Repeat("streamed payload ", 500)

	n, err := c.PutStream(ctx, "stream-key", strings.NewReader(payload), nil)
	require.NoError(t, err)
	require.EqualValues(t, len(payload), n)

	reader, err := c.GetReader(ctx, "stream-key")
	require.NoError(t, err)
	require.NotNil(t, reader)

	got, err := reader.Bytes()
	require.NoError(t, err)
	require.Equal(t, payload, string(got))
}

func TestCache_GetReaderMissingKeyReturnsNilNil(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	reader, err := c.GetReader(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, reader)
}

func TestCache_GetWriterFinalizeIsVisibleToGetReader(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	w, err := c.GetWriter(ctx, "writer-key", nil)
	require.NoError(t, err)

	_, err = io.Copy(w, strings.NewReader("written via streaming writer"))
	require.NoError(t, err)

	_, err = w.Finalize()
	require.NoError(t, err)

	reader, err := c.GetReader(ctx, "writer-key")
	require.NoError(t, err)
	require.NotNil(t, reader)

	got, err := reader.Bytes()
	require.NoError(t, err)
	require.Equal(t, "written via streaming writer", string(got))
}
