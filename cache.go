// Package taskcache implements the unified build-task cache engine: a
// multi-tier (fast-path / memory-mapped / on-disk) key-value store with a
// write-ahead log, pluggable eviction, streaming I/O for large payloads,
// and a deterministic cache-key generator for memoizing task executions.
package taskcache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cuenv-dev/taskcache/internal/cachemeta"
	"github.com/cuenv-dev/taskcache/internal/eviction"
	"github.com/cuenv-dev/taskcache/internal/fastpath"
	"github.com/cuenv-dev/taskcache/internal/fsx"
	"github.com/cuenv-dev/taskcache/internal/metrics"
	"github.com/cuenv-dev/taskcache/internal/resource"
	"github.com/cuenv-dev/taskcache/internal/storage"
	"github.com/cuenv-dev/taskcache/internal/streaming"
	"github.com/cuenv-dev/taskcache/internal/wal"
)

// Cache is the unified facade combining the storage backend, write-ahead
// log, fast-path accelerator, eviction policy, resource manager, and
// streaming I/O into the public contract described by the consumer
// interface (put/get/remove/contains/metadata/statistics/clear plus the
// streaming variants).
type Cache struct {
	cfg     Config
	baseDir string
	fs      fsx.FS
	log     *zap.Logger

	backend  *storage.Backend
	walLog   *wal.WAL
	fast     *fastpath.Cache
	policy   eviction.Policy
	resource *resource.Manager
	stream   *streaming.Manager

	counters  *metrics.Counters
	hitrate   *metrics.HitRateTracker
	collector *metrics.Collector

	memTier *memTier

	statsSince time.Time

	cleanupCancel context.CancelFunc
	cleanupDone   chan struct{}

	closed atomic.Bool
}

// New opens (or creates) a cache rooted at baseDir, applying opts over any
// baseDir/cache.json5 file found, which itself overlays DefaultConfig.
func New(baseDir string, opts ...Option) (*Cache, error) {
	cfg := DefaultConfig()

	cfg, err := loadConfigFile(baseDir, cfg)
	if err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if err := checkVersion(baseDir); err != nil {
		return nil, err
	}

	fs := fsx.NewReal()

	for _, dir := range []string{"objects", "metadata", "actions", "cas"} {
		if err := fs.MkdirAll(filepath.Join(baseDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("taskcache: create %s: %w", dir, err)
		}
	}

	backend, err := storage.NewBackend(fs, storage.Config{
		CompressionEnabled: cfg.CompressionEnabled,
		CompressionLevel:   cfg.CompressionLevel,
		CompressionMinSize: cfg.CompressionMinSize,
		ReadPermits:        cfg.ReadPermits,
		WritePermits:       cfg.WritePermits,
	})
	if err != nil {
		return nil, fmt.Errorf("taskcache: new storage backend: %w", err)
	}

	walLog, err := wal.Open(fs, baseDir)
	if err != nil {
		backend.Close()

		return nil, fmt.Errorf("taskcache: open wal: %w", err)
	}

	if err := backend.Recover(context.Background(), walLog); err != nil {
		backend.Close()
		walLog.Close()

		return nil, fmt.Errorf("taskcache: wal recovery: %w", err)
	}

	cfg.logger.Info("wal recovered", zap.String("base_dir", baseDir))

	walLog.SetRotationObserver(func(rotatedPath string, rotatedSeq uint64) {
		cfg.logger.Info("wal rotated", zap.String("rotated_path", rotatedPath), zap.Uint64("sequence", rotatedSeq))
	})

	resourceCfg := resource.DefaultConfig()
	resourceCfg.SoftMemoryLimit = cfg.MaxMemorySize - cfg.MaxMemorySize/10
	resourceCfg.HardMemoryLimit = cfg.MaxMemorySize
	resourceCfg.MaxDiskSize = cfg.MaxDiskSize

	resourceMgr := resource.New(fs, filepath.Join(baseDir, "objects"), resourceCfg)
	resourceMgr.Start(context.Background())

	c := &Cache{
		cfg:       cfg,
		baseDir:   baseDir,
		fs:        fs,
		log:       cfg.logger,
		backend:   backend,
		walLog:    walLog,
		fast:      fastpath.New(cfg.InlineThreshold, fastpath.DefaultMaxEntries),
		policy:    eviction.New(cfg.EvictionPolicy, cfg.MaxMemorySize),
		resource:  resourceMgr,
		stream:    streaming.NewManager(fs, cfg.ReadPermits, cfg.WritePermits, nil),
		counters:  metrics.NewCounters(),
		hitrate:   metrics.NewHitRateTracker(),
		memTier:   newMemTier(cfg.MemTierCapacity),
		statsSince: time.Now(),
	}

	cfg.logger.Info("eviction policy selected", zap.String("policy", cfg.EvictionPolicy))

	if cfg.registry != nil {
		collector, err := metrics.NewCollector(cfg.registry)
		if err != nil {
			c.Close()

			return nil, err
		}

		c.collector = collector
	}

	c.startCleanup()

	return c, nil
}

// Close stops the background cleanup and resource-sampling goroutines and
// releases the WAL and storage backend's file handles.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if c.cleanupCancel != nil {
		c.cleanupCancel()
		<-c.cleanupDone
	}

	c.resource.Stop()
	c.backend.Close()

	if err := c.walLog.Close(); err != nil {
		return fmt.Errorf("taskcache: close wal: %w", err)
	}

	return nil
}

// Put validates key, serializes value, writes through to disk (and the
// fast path if small), and evicts victims if the cache is over its memory
// budget. Rejects empty or null-byte keys with InvalidKey.
func Put[T any](c *Cache, key string, value T, ttl *time.Duration) error {
	start := time.Now()

	if err := validateKey(key); err != nil {
		return err
	}

	data, err := encodeValue(value)
	if err != nil {
		c.counters.RecordError()

		return fmt.Errorf("taskcache: encode value for %q: %w", key, err)
	}

	err = c.putBytes(key, data, ttl)

	c.counters.RecordLatency("put", time.Since(start))

	if c.collector != nil {
		result := "success"
		if err != nil {
			result = "error"
		}

		c.collector.RecordOperationDuration("put", result, time.Since(start))
	}

	return err
}

func (c *Cache) putBytes(key string, data []byte, ttl *time.Duration) error {
	now := time.Now()
	contentHash := storage.ContentHash(data)
	meta := cachemeta.New(int64(len(data)), contentHash, ttl, now)

	if err := c.resource.CheckDiskQuota(uint64(len(data))); err != nil {
		c.counters.RecordError()

		return err
	}

	if c.resource.OverSoftLimit() {
		c.evictIfOverBudget()
	}

	dataPath, metaPath := objectPaths(c.baseDir, key)
	h := digestKey(key)

	for _, subtree := range []string{"objects", "metadata"} {
		if err := c.fs.MkdirAll(shardDir(c.baseDir, subtree, h), 0o755); err != nil {
			return fmt.Errorf("taskcache: create shard dir: %w", err)
		}
	}

	metaBytes, err := encodeMetaBytes(meta)
	if err != nil {
		return fmt.Errorf("taskcache: encode metadata for %q: %w", key, err)
	}

	// existedOnDisk must be checked before the write below creates metaPath,
	// so isNew reflects whether this Put is a fresh entry or an overwrite of
	// an already-durable one.
	existedOnDisk, _ := c.fs.Exists(metaPath)

	tx := c.backend.BeginTransaction()
	tx.AddWrite(key, dataPath, metaPath, data, metaBytes, contentHash)

	if err := c.backend.CommitTransaction(context.Background(), c.walLog, tx); err != nil {
		c.counters.RecordError()

		if c.collector != nil {
			c.collector.RecordError("put", classifyError(err))
		}

		return err
	}

	storedInMemory := c.fast.PutSmall(key, data, meta)
	c.memTier.remove(h)

	c.counters.RecordWrite()

	if !existedOnDisk {
		c.counters.AdjustEntryCount(1)
	}

	// total_bytes and the eviction policy's memory-usage accounting track
	// only bytes actually resident in a memory tier, not the whole durable
	// dataset on disk.
	if storedInMemory {
		c.counters.AdjustTotalBytes(int64(len(data)))
		c.policy.OnInsert(key, uint64(len(data)))
	}

	if c.collector != nil {
		c.collector.RecordWrite()
	}

	c.evictIfOverBudget()

	return nil
}

// Get checks the fast path, then the memory-mapped tier, then disk.
// Expired entries are removed and reported as a miss; deserialization
// failures count an error, remove the entry, and are also reported as a
// miss so callers can recover by recomputing the value.
func Get[T any](c *Cache, key string) (T, bool, error) {
	var zero T

	start := time.Now()

	if err := validateKey(key); err != nil {
		return zero, false, err
	}

	data, found, err := c.getBytes(key)

	c.counters.RecordLatency("get", time.Since(start))

	if err != nil || !found {
		return zero, false, err
	}

	value, decodeErr := decodeValue[T](data)
	if decodeErr != nil {
		c.counters.RecordError()
		_ = c.Remove(key)

		return zero, false, nil
	}

	return value, true, nil
}

func (c *Cache) getBytes(key string) ([]byte, bool, error) {
	now := time.Now()
	pattern := metrics.KeyPattern(key)

	record := func(hit bool) {
		c.hitrate.RecordAt(key, hit, now)

		if hit {
			c.counters.RecordHit()
		} else {
			c.counters.RecordMiss()
		}

		if c.collector != nil {
			if hit {
				c.collector.RecordHit("get", pattern)
			} else {
				c.collector.RecordMiss("get", pattern)
			}
		}
	}

	if data, meta, ok := c.fast.GetSmall(key, now); ok {
		record(true)
		c.policy.OnAccess(key, uint64(meta.SizeBytes))

		return data, true, nil
	}

	dataPath, metaPath := objectPaths(c.baseDir, key)
	h := digestKey(key)

	metaRaw, err := c.fs.ReadFile(metaPath)
	if err != nil {
		if fsx.IsNotExist(err) {
			record(false)

			return nil, false, nil
		}

		c.counters.RecordError()

		return nil, false, err
	}

	meta, err := decodeMetaBytes(metaRaw)
	if err != nil {
		c.log.Warn("metadata corruption detected, evicting entry",
			zap.String("key", key), zap.Error(err))
		c.counters.RecordError()
		c.removeFiles(key, dataPath, metaPath, 0)
		record(false)

		return nil, false, nil
	}

	if meta.Expired(now) {
		c.removeFiles(key, dataPath, metaPath, meta.SizeBytes)
		record(false)

		return nil, false, nil
	}

	if reader, ok := c.memTier.get(h); ok {
		data, err := reader.Bytes()
		if err != nil {
			c.counters.RecordError()

			return nil, false, err
		}

		record(true)

		return data, true, nil
	}

	data, err := c.backend.Read(context.Background(), dataPath)
	if err != nil {
		c.log.Warn("object read failed, evicting entry",
			zap.String("key", key), zap.String("path", dataPath), zap.Error(err))
		c.counters.RecordError()
		c.removeFiles(key, dataPath, metaPath, meta.SizeBytes)
		record(false)

		return nil, false, nil
	}

	record(true)

	return data, true, nil
}

// Remove deletes key from the fast path, memory tier, and disk. Idempotent:
// removing an absent key is not an error.
func (c *Cache) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	dataPath, metaPath := objectPaths(c.baseDir, key)

	var size int64
	if meta, err := c.Metadata(key); err == nil {
		size = meta.SizeBytes
	}

	c.removeFiles(key, dataPath, metaPath, size)

	return nil
}

func (c *Cache) removeFiles(key, dataPath, metaPath string, size int64) {
	wasInMemory := c.fast.RemoveSmall(key)
	c.memTier.remove(digestKey(key))

	// entry_count tracks durable entries, so only an entry whose .meta file
	// was present before the delete shrinks it.
	existedOnDisk, _ := c.fs.Exists(metaPath)

	tx := c.backend.BeginTransaction()
	tx.AddDelete(key, dataPath, metaPath)

	if err := c.backend.CommitTransaction(context.Background(), c.walLog, tx); err != nil {
		c.counters.RecordError()

		return
	}

	if existedOnDisk {
		c.counters.AdjustEntryCount(-1)
	}
	c.counters.RecordRemoval()

	// total_bytes and the policy's memory-usage accounting only ever grew
	// for entries that actually reached a memory tier, so only shrink them
	// back for entries that were still resident there.
	if wasInMemory {
		c.counters.AdjustTotalBytes(-size)
		c.policy.OnRemove(key, uint64(size))
	}

	if c.collector != nil {
		c.collector.RecordOperation("remove", "success")
	}
}

// Contains reports whether key exists, honoring expiry but not updating
// any access statistics.
func (c *Cache) Contains(key string) bool {
	if err := validateKey(key); err != nil {
		return false
	}

	now := time.Now()

	if c.fast.ContainsSmall(key, now) {
		return true
	}

	_, metaPath := objectPaths(c.baseDir, key)

	raw, err := c.fs.ReadFile(metaPath)
	if err != nil {
		return false
	}

	meta, err := decodeMetaBytes(raw)
	if err != nil {
		return false
	}

	return !meta.Expired(now)
}

// Clear removes every entry from every tier and resets stats counters
// (stats_since is left untouched).
func (c *Cache) Clear() error {
	c.fast.Clear()
	c.memTier.clear()
	c.policy.Clear()
	c.counters.Reset()
	c.resource.InvalidateDiskCache()

	for _, dir := range []string{"objects", "metadata"} {
		full := filepath.Join(c.baseDir, dir)

		if err := c.fs.RemoveAll(full); err != nil {
			return fmt.Errorf("taskcache: clear %s: %w", dir, err)
		}

		if err := c.fs.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("taskcache: recreate %s: %w", dir, err)
		}
	}

	return nil
}

// evictIfOverBudget asks the eviction policy for victims while the policy
// reports usage over max_memory_size, demoting each one out of the memory
// tiers. Capacity exhaustion never deletes the durable disk copy: a put
// that pushes the cache over budget still succeeds to disk, it just stops
// populating the in-memory tier for the entries eviction selects. If the
// policy reports no victim but usage remains over budget, eviction stops —
// correctness of eviction is best-effort, per the policies' try-lock
// contract.
func (c *Cache) evictIfOverBudget() {
	for c.policy.MemoryUsage() > c.cfg.MaxMemorySize {
		victim, ok := c.policy.NextEviction()
		if !ok {
			c.log.Warn("eviction policy has no further victims while over memory budget",
				zap.Uint64("usage", c.policy.MemoryUsage()),
				zap.Uint64("max_memory_size", c.cfg.MaxMemorySize))

			return
		}

		c.demoteFromMemory(victim)
	}
}

// demoteFromMemory drops key from the fast path and memory-map tier so it
// no longer counts against the memory budget, without touching its on-disk
// object or metadata — a subsequent Get falls through to disk instead of
// missing.
func (c *Cache) demoteFromMemory(key string) {
	var size int64
	if meta, err := c.Metadata(key); err == nil {
		size = meta.SizeBytes
	}

	wasInMemory := c.fast.RemoveSmall(key)
	c.memTier.remove(digestKey(key))
	c.policy.OnRemove(key, uint64(size))

	if wasInMemory {
		c.counters.AdjustTotalBytes(-size)
	}

	c.log.Debug("demoted entry from memory tier", zap.String("key", key), zap.Int64("size_bytes", size))

	if c.collector != nil {
		c.collector.RecordEviction("capacity", 1)
	}
}

func classifyError(err error) string {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Kind.String()
	}

	return "unknown"
}

func encodeValue[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("taskcache: gob encode: %w", err)
	}

	return buf.Bytes(), nil
}

func decodeValue[T any](data []byte) (T, error) {
	var v T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, fmt.Errorf("taskcache: gob decode: %w", err)
	}

	return v, nil
}

func encodeMetaBytes(meta cachemeta.Metadata) ([]byte, error) {
	payload, err := meta.Encode()
	if err != nil {
		return nil, err
	}

	return payload, nil
}

// decodeMetaBytes strips a StorageHeader from raw (as written by
// Backend.Write) and gob-decodes the CacheMetadata payload behind it.
func decodeMetaBytes(raw []byte) (cachemeta.Metadata, error) {
	if len(raw) < storage.HeaderSize {
		return cachemeta.Metadata{}, fmt.Errorf("taskcache: metadata shorter than header")
	}

	header, err := storage.DecodeHeader(raw[:storage.HeaderSize])
	if err != nil {
		return cachemeta.Metadata{}, err
	}

	if err := header.Validate(); err != nil {
		return cachemeta.Metadata{}, err
	}

	body := raw[storage.HeaderSize:]
	if storage.ChecksumPayload(body) != header.DataCRC {
		return cachemeta.Metadata{}, fmt.Errorf("taskcache: metadata payload CRC mismatch")
	}

	return cachemeta.Decode(body)
}

// Statistics returns a point-in-time snapshot of every counter, plus
// resource-manager usage and overall hit rate.
func (c *Cache) Statistics() UnifiedCacheStatistics {
	snap := c.counters.Snapshot()
	resourceSnap := c.resource.Latest()

	return UnifiedCacheStatistics{
		Hits:            snap.Hits,
		Misses:          snap.Misses,
		Writes:          snap.Writes,
		Removals:        snap.Removals,
		Errors:          snap.Errors,
		TotalBytes:      snap.TotalBytes,
		EntryCount:      snap.EntryCount,
		ExpiredCleanups: snap.ExpiredCleanups,
		HitRatePercent:  snap.HitRatePercent(),
		MemoryBytes:     resourceSnap.HeapBytes,
		DiskBytes:       resourceSnap.DiskBytes,
		StatsSince:      c.statsSince,
	}
}

// UnifiedCacheStatistics is the snapshot returned by Statistics.
type UnifiedCacheStatistics struct {
	Hits            uint64
	Misses          uint64
	Writes          uint64
	Removals        uint64
	Errors          uint64
	TotalBytes      int64
	EntryCount      int64
	ExpiredCleanups uint64
	HitRatePercent  float64
	MemoryBytes     uint64
	DiskBytes       uint64
	StatsSince      time.Time
}
