package taskcache_test

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	taskcache "github.com/cuenv-dev/taskcache"
)

func newTestCache(t *testing.T) *taskcache.Cache {
	t.Helper()

	dir := t.TempDir()

	c, err := taskcache.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	require.NoError(t, taskcache.Put(c, "k1", "hello world", nil))

	got, found, err := taskcache.Get[string](c, "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello world", got)
}

func TestCache_PutGetRoundTripStruct(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name  string
		Count int
	}

	c := newTestCache(t)

	want := payload{Name: "task", Count: 42}
	require.NoError(t, taskcache.Put(c, "k-struct", want, nil))

	got, found, err := taskcache.Get[payload](c, "k-struct")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)
}

func TestCache_GetMissingKeyIsNotFoundNotError(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	got, found, err := taskcache.Get[string](c, "never-written")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, got)
}

func TestCache_EmptyKeyRejected(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	err := taskcache.Put(c, "", "value", nil)
	require.Error(t, err)

	var cacheErr *taskcache.CacheError
	require.ErrorAs(t, err, &cacheErr)
	require.Equal(t, taskcache.KindInvalidKey, cacheErr.Kind)
}

func TestCache_NullByteKeyRejected(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	err := taskcache.Put(c, "bad\x00key", "value", nil)
	require.Error(t, err)

	var cacheErr *taskcache.CacheError
	require.ErrorAs(t, err, &cacheErr)
	require.Equal(t, taskcache.KindInvalidKey, cacheErr.Kind)
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	ttl := 10 * time.Millisecond
	require.NoError(t, taskcache.Put(c, "expiring", "soon gone", &ttl))

	require.True(t, c.Contains("expiring"))

	time.Sleep(30 * time.Millisecond)

	require.False(t, c.Contains("expiring"))

	_, found, err := taskcache.Get[string](c, "expiring")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCache_RemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	require.NoError(t, taskcache.Put(c, "k", "v", nil))
	require.NoError(t, c.Remove("k"))
	require.NoError(t, c.Remove("k"))

	_, found, err := taskcache.Get[string](c, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCache_ClearRemovesEverything(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	require.NoError(t, taskcache.Put(c, "a", "1", nil))
	require.NoError(t, taskcache.Put(c, "b", "2", nil))

	require.NoError(t, c.Clear())

	require.False(t, c.Contains("a"))
	require.False(t, c.Contains("b"))

	stats := c.Statistics()
	require.Zero(t, stats.EntryCount)
}

func TestCache_CorruptedMetadataIsTreatedAsMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	c, err := taskcache.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	// A value bigger than the fast-path threshold forces every Get to
	// read the on-disk .meta file instead of being served from memory.
	big := strings.Repeat("x", 4096)
	require.NoError(t, taskcache.Put(c, "big-k", big, nil))

	sum := sha256.Sum256([]byte("big-k"))
	h := hex.EncodeToString(sum[:])
	metaPath := filepath.Join(dir, "metadata", h[0:2], h[2:4], h+".meta")

	raw, err := os.ReadFile(metaPath) //nolint:gosec
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(metaPath, raw, 0o644))

	_, found, err := taskcache.Get[string](c, "big-k")
	require.NoError(t, err)
	require.False(t, found)

	stats := c.Statistics()
	require.Positive(t, stats.Errors)
}

func TestCache_StatisticsTracksHitsAndMisses(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	require.NoError(t, taskcache.Put(c, "k", "v", nil))

	_, _, err := taskcache.Get[string](c, "k")
	require.NoError(t, err)

	_, _, err = taskcache.Get[string](c, "missing")
	require.NoError(t, err)

	stats := c.Statistics()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.Equal(t, uint64(1), stats.Writes)
}

func TestCache_ConcurrentPutGet(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	const workers = 16

	done := make(chan struct{}, workers)

	for i := range workers {
		go func(i int) {
			defer func() { done <- struct{}{} }()

			key := "concurrent-" + string(rune('a'+i))
			require.NoError(t, taskcache.Put(c, key, i, nil))

			got, found, err := taskcache.Get[int](c, key)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, i, got)
		}(i)
	}

	for range workers {
		<-done
	}
}

func TestCache_OverwritingLargeKeyDoesNotInflateEntryCount(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	big := strings.Repeat("y", 4096)

	require.NoError(t, taskcache.Put(c, "big-overwrite", big, nil))
	require.NoError(t, taskcache.Put(c, "big-overwrite", big, nil))
	require.NoError(t, taskcache.Put(c, "big-overwrite", big, nil))

	require.Equal(t, int64(1), c.Statistics().EntryCount)
}

func TestCache_EvictionOverMemoryBudgetKeepsDiskCopy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	c, err := taskcache.New(dir, taskcache.WithMaxMemorySize(300))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	const n = 20

	keys := make([]string, n)

	for i := range n {
		key := fmt.Sprintf("budget-%02d", i)
		keys[i] = key
		require.NoError(t, taskcache.Put(c, key, fmt.Sprintf("value-%02d", i), nil))
	}

	stats := c.Statistics()
	require.Equal(t, int64(n), stats.EntryCount, "every put is a distinct durable entry regardless of memory eviction")
	require.LessOrEqual(t, stats.TotalBytes, int64(300), "total_bytes tracks only memory-resident bytes, bounded by max_memory_size")

	for _, key := range keys {
		got, found, err := taskcache.Get[string](c, key)
		require.NoError(t, err)
		require.True(t, found, "eviction must demote from memory, not delete the disk copy, for key %q", key)
		require.Equal(t, strings.TrimPrefix(key, "budget-"), strings.TrimPrefix(got, "value-"))
	}
}

func TestCache_ReopenRecoversExistingEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	c1, err := taskcache.New(dir)
	require.NoError(t, err)

	require.NoError(t, taskcache.Put(c1, "persisted", "value", nil))
	require.NoError(t, c1.Close())

	c2, err := taskcache.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c2.Close() })

	got, found, err := taskcache.Get[string](c2, "persisted")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "value", got)
}
