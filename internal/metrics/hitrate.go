package metrics

import (
	"sync"
	"time"
)

// Window identifies one of the four rolling windows the tracker maintains.
type Window int

const (
	Window1Minute Window = iota
	Window5Minutes
	Window1Hour
	Window1Day
)

func (w Window) duration() time.Duration {
	switch w {
	case Window1Minute:
		return time.Minute
	case Window5Minutes:
		return 5 * time.Minute
	case Window1Hour:
		return time.Hour
	case Window1Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// bucketSpan is the resolution events are grouped at. 1-day windows over
// minute buckets means 1440 buckets per pattern, a small, fixed cost.
const bucketSpan = time.Minute

const bucketsPerDay = int(24 * time.Hour / bucketSpan)

type bucket struct {
	minute int64 // bucketSpan-aligned Unix minute
	hits   uint64
	misses uint64
}

// patternTracker is a ring of per-minute hit/miss buckets covering the
// longest window (1 day); shorter windows sum a trailing slice of it.
type patternTracker struct {
	buckets [bucketsPerDay]bucket
}

func (t *patternTracker) record(now time.Time, hit bool) {
	minute := now.Unix() / int64(bucketSpan/time.Second)
	idx := int(minute % int64(bucketsPerDay))

	b := &t.buckets[idx]
	if b.minute != minute {
		*b = bucket{minute: minute}
	}

	if hit {
		b.hits++
	} else {
		b.misses++
	}
}

func (t *patternTracker) sum(now time.Time, window time.Duration) (hits, misses uint64) {
	cutoff := now.Add(-window).Unix() / int64(bucketSpan/time.Second)

	for i := range t.buckets {
		b := &t.buckets[i]
		if b.minute >= cutoff && b.minute <= now.Unix()/int64(bucketSpan/time.Second) {
			hits += b.hits
			misses += b.misses
		}
	}

	return hits, misses
}

// HitRateTracker keeps rolling 1m/5m/1h/1d hit-rate windows bucketed by key
// pattern (numeric suffixes stripped, e.g. "user:42" -> "user:*").
type HitRateTracker struct {
	mu       sync.Mutex
	patterns map[string]*patternTracker
}

// NewHitRateTracker returns an empty tracker.
func NewHitRateTracker() *HitRateTracker {
	return &HitRateTracker{patterns: make(map[string]*patternTracker)}
}

// Record accounts one access for key as a hit or miss, at the current time.
func (t *HitRateTracker) Record(key string, hit bool) {
	t.RecordAt(key, hit, time.Now())
}

// RecordAt is Record with an explicit timestamp, for deterministic tests.
func (t *HitRateTracker) RecordAt(key string, hit bool, now time.Time) {
	pattern := KeyPattern(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	pt, ok := t.patterns[pattern]
	if !ok {
		pt = &patternTracker{}
		t.patterns[pattern] = pt
	}

	pt.record(now, hit)
}

// WindowStats reports hits/misses/rate for one pattern over one window, as
// of now.
type WindowStats struct {
	Hits   uint64
	Misses uint64
}

// RatePercent returns Hits / (Hits+Misses) * 100, or 0 if there were no
// accesses in the window.
func (s WindowStats) RatePercent() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total) * 100
}

// Stats returns pattern's hit/miss counts within window, as of now.
func (t *HitRateTracker) Stats(pattern string, window Window, now time.Time) WindowStats {
	t.mu.Lock()
	pt, ok := t.patterns[pattern]
	t.mu.Unlock()

	if !ok {
		return WindowStats{}
	}

	hits, misses := pt.sum(now, window.duration())

	return WindowStats{Hits: hits, Misses: misses}
}

// Patterns returns every pattern the tracker has seen at least one access
// for, in no particular order.
func (t *HitRateTracker) Patterns() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.patterns))
	for p := range t.patterns {
		out = append(out, p)
	}

	return out
}
