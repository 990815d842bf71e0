package taskcache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	taskcache "github.com/cuenv-dev/taskcache"
)

func TestCache_BackgroundCleanupSweepsExpiredFastPathEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	c, err := taskcache.New(dir, taskcache.WithCleanupInterval(15*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ttl := 5 * time.Millisecond
	require.NoError(t, taskcache.Put(c, "short-lived", "v", &ttl))

	require.Eventually(t, func() bool {
		stats := c.Statistics()

		return stats.ExpiredCleanups > 0
	}, time.Second, 10*time.Millisecond)
}
