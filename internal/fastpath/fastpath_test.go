package fastpath_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuenv-dev/taskcache/internal/cachemeta"
	"github.com/cuenv-dev/taskcache/internal/fastpath"
)

func TestFastPath_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	c := fastpath.New(1024, 10)
	now := time.Now()

	ok := c.PutSmall("k", []byte("hello"), cachemeta.New(5, "hash", nil, now))
	require.True(t, ok)

	data, _, found := c.GetSmall("k", now)
	require.True(t, found)
	require.Equal(t, []byte("hello"), data)
}

func TestFastPath_RejectsOversizedValues(t *testing.T) {
	t.Parallel()

	c := fastpath.New(4, 10)
	ok := c.PutSmall("k", []byte("too big"), cachemeta.New(7, "h", nil, time.Now()))
	require.False(t, ok)

	_, _, found := c.GetSmall("k", time.Now())
	require.False(t, found)
}

func TestFastPath_EvictsOldestOnCapacity(t *testing.T) {
	t.Parallel()

	c := fastpath.New(1024, 2)
	now := time.Now()

	c.PutSmall("a", []byte("1"), cachemeta.New(1, "h", nil, now))
	c.PutSmall("b", []byte("2"), cachemeta.New(1, "h", nil, now))
	c.PutSmall("c", []byte("3"), cachemeta.New(1, "h", nil, now))

	require.Equal(t, 2, c.Len())

	_, _, found := c.GetSmall("a", now)
	require.False(t, found, "oldest entry should have been evicted")
}

func TestFastPath_ExpiredEntryRemovedLazily(t *testing.T) {
	t.Parallel()

	c := fastpath.New(1024, 10)
	now := time.Now()
	ttl := 10 * time.Millisecond

	c.PutSmall("k", []byte("v"), cachemeta.New(1, "h", &ttl, now))

	later := now.Add(20 * time.Millisecond)
	_, _, found := c.GetSmall("k", later)
	require.False(t, found)
	require.Equal(t, 0, c.Len())
}

func TestFastPath_RemoveAndClear(t *testing.T) {
	t.Parallel()

	c := fastpath.New(1024, 10)
	now := time.Now()

	c.PutSmall("k", []byte("v"), cachemeta.New(1, "h", nil, now))
	require.True(t, c.RemoveSmall("k"))
	require.False(t, c.RemoveSmall("k"))

	c.PutSmall("k2", []byte("v"), cachemeta.New(1, "h", nil, now))
	c.Clear()
	require.Equal(t, 0, c.Len())
}
