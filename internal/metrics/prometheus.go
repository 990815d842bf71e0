package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector registers and updates the cache's Prometheus metrics: per-op
// counters, hit/miss rates by key pattern, eviction counts, and operation
// latency histograms.
type Collector struct {
	operations        *prometheus.CounterVec
	hits              *prometheus.CounterVec
	misses            *prometheus.CounterVec
	writes            prometheus.Counter
	errors            *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	stats             *prometheus.GaugeVec
}

// NewCollector builds and registers every metric against reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cuenv_cache_operations_total",
			Help: "Total number of cache operations",
		}, []string{"operation", "result"}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cuenv_cache_hits_total",
			Help: "Total number of cache hits",
		}, []string{"key_pattern"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cuenv_cache_misses_total",
			Help: "Total number of cache misses",
		}, []string{"key_pattern"}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cuenv_cache_writes_total",
			Help: "Total number of cache writes",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cuenv_cache_errors_total",
			Help: "Total number of cache errors",
		}, []string{"error_type"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "cuenv_cache_operation_duration_seconds",
			Help: "Cache operation duration in seconds",
		}, []string{"operation", "result"}),
		stats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cuenv_cache_stats",
			Help: "Cache statistics (entries, size_bytes, memory_bytes, disk_bytes, hit_rate_percent)",
		}, []string{"metric"}),
	}

	collectors := []prometheus.Collector{
		c.operations, c.hits, c.misses, c.writes, c.errors, c.operationDuration, c.stats,
	}

	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}

	return c, nil
}

// RecordHit records a hit operation and bumps the per-pattern hit counter.
func (c *Collector) RecordHit(operation, keyPattern string) {
	c.operations.WithLabelValues(operation, "hit").Inc()
	c.hits.WithLabelValues(keyPattern).Inc()
}

// RecordMiss records a miss operation and bumps the per-pattern miss counter.
func (c *Collector) RecordMiss(operation, keyPattern string) {
	c.operations.WithLabelValues(operation, "miss").Inc()
	c.misses.WithLabelValues(keyPattern).Inc()
}

// RecordWrite records a successful write.
func (c *Collector) RecordWrite() {
	c.operations.WithLabelValues("write", "success").Inc()
	c.writes.Inc()
}

// RecordOperation records a generic operation/result pair not covered by
// RecordHit/RecordMiss/RecordWrite (e.g. "remove"/"success").
func (c *Collector) RecordOperation(operation, result string) {
	c.operations.WithLabelValues(operation, result).Inc()
}

// RecordError records an operation failure, labeled by error type.
func (c *Collector) RecordError(operation, errorType string) {
	c.operations.WithLabelValues(operation, "error").Inc()
	c.errors.WithLabelValues(errorType).Inc()
}

// RecordEviction records count evictions attributed to reason.
func (c *Collector) RecordEviction(reason string, count uint64) {
	for range count {
		c.operations.WithLabelValues("eviction", reason).Inc()
	}
}

// RecordOperationDuration observes d for operation/result in the duration
// histogram.
func (c *Collector) RecordOperationDuration(operation, result string, d time.Duration) {
	c.operationDuration.WithLabelValues(operation, result).Observe(d.Seconds())
}

// UpdateGauges refreshes the cuenv_cache_stats gauge family from a Snapshot
// plus out-of-band memory/disk byte counts.
func (c *Collector) UpdateGauges(snap Snapshot, memoryBytes, diskBytes uint64) {
	c.stats.WithLabelValues("entries").Set(float64(snap.EntryCount))
	c.stats.WithLabelValues("size_bytes").Set(float64(snap.TotalBytes))
	c.stats.WithLabelValues("memory_bytes").Set(float64(memoryBytes))
	c.stats.WithLabelValues("disk_bytes").Set(float64(diskBytes))
	c.stats.WithLabelValues("hit_rate_percent").Set(snap.HitRatePercent())
}
