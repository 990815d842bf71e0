// Package metrics implements the monitoring subsystem (C11): atomic
// counters, a rolling hit-rate tracker bucketed by key pattern, and
// Prometheus text exposition.
package metrics

import (
	"regexp"
	"sync"
	"sync/atomic"
	"time"
)

// Counters holds the core atomic, cache-line-padded counters. Each field
// sits in its own cache line to avoid false sharing between goroutines
// incrementing different counters concurrently.
type Counters struct {
	hits            atomic.Uint64
	_               [7]uint64
	misses          atomic.Uint64
	_               [7]uint64
	writes          atomic.Uint64
	_               [7]uint64
	removals        atomic.Uint64
	_               [7]uint64
	errors          atomic.Uint64
	_               [7]uint64
	totalBytes      atomic.Int64
	_               [7]uint64
	entryCount      atomic.Int64
	_               [7]uint64
	expiredCleanups atomic.Uint64
	_               [7]uint64

	latencyMu sync.Mutex
	latencyNS map[string]uint64
	latencyN  map[string]uint64
}

// NewCounters returns a zeroed Counters ready for use.
func NewCounters() *Counters {
	return &Counters{
		latencyNS: make(map[string]uint64),
		latencyN:  make(map[string]uint64),
	}
}

func (c *Counters) RecordHit()     { c.hits.Add(1) }
func (c *Counters) RecordMiss()    { c.misses.Add(1) }
func (c *Counters) RecordWrite()   { c.writes.Add(1) }
func (c *Counters) RecordRemoval() { c.removals.Add(1) }
func (c *Counters) RecordError()   { c.errors.Add(1) }

func (c *Counters) RecordExpiredCleanup() { c.expiredCleanups.Add(1) }

// AdjustTotalBytes applies a signed delta (positive on write, negative on
// remove/evict) to the running total-bytes counter.
func (c *Counters) AdjustTotalBytes(delta int64) { c.totalBytes.Add(delta) }

// AdjustEntryCount applies a signed delta to the entry-count counter.
func (c *Counters) AdjustEntryCount(delta int64) { c.entryCount.Add(delta) }

// RecordLatency accumulates duration into the named operation's running
// sum, used to compute an average latency on demand.
func (c *Counters) RecordLatency(operation string, d time.Duration) {
	c.latencyMu.Lock()
	defer c.latencyMu.Unlock()

	c.latencyNS[operation] += uint64(d.Nanoseconds())
	c.latencyN[operation]++
}

// AverageLatency returns the mean recorded duration for operation, or 0 if
// none has been recorded.
func (c *Counters) AverageLatency(operation string) time.Duration {
	c.latencyMu.Lock()
	defer c.latencyMu.Unlock()

	n := c.latencyN[operation]
	if n == 0 {
		return 0
	}

	return time.Duration(c.latencyNS[operation] / n)
}

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	Hits            uint64
	Misses          uint64
	Writes          uint64
	Removals        uint64
	Errors          uint64
	TotalBytes      int64
	EntryCount      int64
	ExpiredCleanups uint64
}

// Reset zeroes every counter except the caller-tracked "stats since"
// timestamp, which this package does not itself keep (the root cache
// facade owns that field, per clear()'s contract of resetting counters
// but not their epoch).
func (c *Counters) Reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.writes.Store(0)
	c.removals.Store(0)
	c.errors.Store(0)
	c.totalBytes.Store(0)
	c.entryCount.Store(0)
	c.expiredCleanups.Store(0)

	c.latencyMu.Lock()
	c.latencyNS = make(map[string]uint64)
	c.latencyN = make(map[string]uint64)
	c.latencyMu.Unlock()
}

// Snapshot reads every counter without tearing (each is a single 64-bit
// atomic load).
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Writes:          c.writes.Load(),
		Removals:        c.removals.Load(),
		Errors:          c.errors.Load(),
		TotalBytes:      c.totalBytes.Load(),
		EntryCount:      c.entryCount.Load(),
		ExpiredCleanups: c.expiredCleanups.Load(),
	}
}

// HitRatePercent returns hits / (hits+misses) * 100, or 0 if no accesses
// have been recorded yet.
func (s Snapshot) HitRatePercent() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total) * 100
}

// numericSuffix matches a trailing run of digits, optionally preceded by
// ":" or "-", for access-pattern derivation (e.g. "user:42" -> "user:*").
var numericSuffix = regexp.MustCompile(`[:\-]?\d+$`)

// KeyPattern strips a trailing numeric suffix from key so related keys
// aggregate under one pattern for the hit-rate tracker.
func KeyPattern(key string) string {
	loc := numericSuffix.FindStringIndex(key)
	if loc == nil {
		return key
	}

	sep := key[loc[0]]
	if sep == ':' || sep == '-' {
		return key[:loc[0]+1] + "*"
	}

	return key[:loc[0]] + "*"
}
