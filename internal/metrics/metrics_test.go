package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/cuenv-dev/taskcache/internal/metrics"
)

func TestKeyPattern_StripsTrailingNumericSuffix(t *testing.T) {
	t.Parallel()

	require.Equal(t, "user:*", metrics.KeyPattern("user:42"))
	require.Equal(t, "task-*", metrics.KeyPattern("task-7"))
	require.Equal(t, "build*", metrics.KeyPattern("build123"))
	require.Equal(t, "nonumeric", metrics.KeyPattern("nonumeric"))
}

func TestCounters_SnapshotReportsAllFields(t *testing.T) {
	t.Parallel()

	c := metrics.NewCounters()
	c.RecordHit()
	c.RecordHit()
	c.RecordMiss()
	c.RecordWrite()
	c.RecordRemoval()
	c.RecordError()
	c.RecordExpiredCleanup()
	c.AdjustTotalBytes(100)
	c.AdjustEntryCount(1)

	snap := c.Snapshot()
	require.Equal(t, uint64(2), snap.Hits)
	require.Equal(t, uint64(1), snap.Misses)
	require.Equal(t, uint64(1), snap.Writes)
	require.Equal(t, uint64(1), snap.Removals)
	require.Equal(t, uint64(1), snap.Errors)
	require.Equal(t, uint64(1), snap.ExpiredCleanups)
	require.Equal(t, int64(100), snap.TotalBytes)
	require.Equal(t, int64(1), snap.EntryCount)
	require.InDelta(t, 66.66, snap.HitRatePercent(), 0.1)
}

func TestCounters_HitRatePercentZeroWhenNoAccesses(t *testing.T) {
	t.Parallel()

	c := metrics.NewCounters()
	require.Equal(t, float64(0), c.Snapshot().HitRatePercent())
}

func TestCounters_AverageLatency(t *testing.T) {
	t.Parallel()

	c := metrics.NewCounters()
	c.RecordLatency("get", 10*time.Millisecond)
	c.RecordLatency("get", 20*time.Millisecond)

	require.Equal(t, 15*time.Millisecond, c.AverageLatency("get"))
	require.Equal(t, time.Duration(0), c.AverageLatency("unknown"))
}

func TestHitRateTracker_WindowedStats(t *testing.T) {
	t.Parallel()

	tr := metrics.NewHitRateTracker()
	base := time.Unix(1_700_000_000, 0)

	tr.RecordAt("user:1", true, base)
	tr.RecordAt("user:2", false, base.Add(30*time.Second))
	tr.RecordAt("user:3", true, base.Add(2*time.Minute))

	now := base.Add(2 * time.Minute)

	stats1m := tr.Stats("user:*", metrics.Window1Minute, now)
	require.Equal(t, uint64(1), stats1m.Hits)
	require.Equal(t, uint64(0), stats1m.Misses)

	stats5m := tr.Stats("user:*", metrics.Window5Minutes, now)
	require.Equal(t, uint64(2), stats5m.Hits)
	require.Equal(t, uint64(1), stats5m.Misses)
	require.InDelta(t, 66.66, stats5m.RatePercent(), 0.1)
}

func TestHitRateTracker_UnknownPatternReturnsZero(t *testing.T) {
	t.Parallel()

	tr := metrics.NewHitRateTracker()
	stats := tr.Stats("missing:*", metrics.Window1Hour, time.Now())
	require.Equal(t, metrics.WindowStats{}, stats)
	require.Equal(t, float64(0), stats.RatePercent())
}

func TestHitRateTracker_PatternsListsSeenPatterns(t *testing.T) {
	t.Parallel()

	tr := metrics.NewHitRateTracker()
	tr.Record("user:1", true)
	tr.Record("task-7", false)

	patterns := tr.Patterns()
	require.ElementsMatch(t, []string{"user:*", "task-*"}, patterns)
}

func TestCollector_RegistersAndRecordsWithoutError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	c.RecordHit("get", "user:*")
	c.RecordMiss("get", "task:*")
	c.RecordWrite()
	c.RecordError("get", "corruption")
	c.RecordEviction("capacity", 3)
	c.RecordOperationDuration("get", "hit", 5*time.Millisecond)

	counters := metrics.NewCounters()
	counters.AdjustEntryCount(5)
	counters.AdjustTotalBytes(1024)
	c.UpdateGauges(counters.Snapshot(), 2048, 4096)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestCollector_DuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	_, err = metrics.NewCollector(reg)
	require.Error(t, err)
}
