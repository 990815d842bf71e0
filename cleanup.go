package taskcache

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// startCleanup launches the background cleanup goroutine: a fixed-interval
// sweep of expired fast-path entries plus a bounded scan for orphaned
// metadata files.
func (c *Cache) startCleanup() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cleanupCancel = cancel
	c.cleanupDone = make(chan struct{})

	go c.runCleanup(ctx)
}

func (c *Cache) runCleanup(ctx context.Context) {
	defer close(c.cleanupDone)

	interval := c.cfg.CleanupInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanupTick()
		}
	}
}

// RunCleanup forces one cleanup pass (expired fast-path sweep plus orphan
// reaping) synchronously, for callers that don't want to wait for the
// background ticker — notably cmd/cachectl's "gc" subcommand.
func (c *Cache) RunCleanup() {
	c.cleanupTick()
}

func (c *Cache) cleanupTick() {
	now := time.Now()

	removed := c.fast.Sweep(now)
	if removed > 0 {
		for range removed {
			c.counters.RecordExpiredCleanup()
		}
	}

	c.reapOrphans()
}

// reapOrphans scans metadata/ for .meta files whose sibling data file is
// missing, deleting at most OrphanScanBatchSize of them per tick.
func (c *Cache) reapOrphans() {
	limit := c.cfg.OrphanScanBatchSize
	if limit <= 0 {
		limit = 50
	}

	metaRoot := filepath.Join(c.baseDir, "metadata")

	top, err := c.fs.ReadDir(metaRoot)
	if err != nil {
		return
	}

	repaired := 0

	for _, shard1 := range top {
		if repaired >= limit || !shard1.IsDir() {
			continue
		}

		shard1Path := filepath.Join(metaRoot, shard1.Name())

		shard2Entries, err := c.fs.ReadDir(shard1Path)
		if err != nil {
			continue
		}

		for _, shard2 := range shard2Entries {
			if repaired >= limit || !shard2.IsDir() {
				continue
			}

			shard2Path := filepath.Join(shard1Path, shard2.Name())

			metaFiles, err := c.fs.ReadDir(shard2Path)
			if err != nil {
				continue
			}

			for _, f := range metaFiles {
				if repaired >= limit {
					break
				}

				name := f.Name()
				if f.IsDir() || !strings.HasSuffix(name, ".meta") {
					continue
				}

				h := strings.TrimSuffix(name, ".meta")
				dataPath := filepath.Join(c.baseDir, "objects", shard1.Name(), shard2.Name(), h)

				if exists, _ := c.fs.Exists(dataPath); exists {
					continue
				}

				metaPath := filepath.Join(shard2Path, name)
				if err := c.fs.Remove(metaPath); err == nil {
					repaired++
				}
			}
		}
	}
}
