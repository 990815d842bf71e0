// Package resource implements the memory and disk quota manager (C6): it
// answers "can this allocation proceed" against configurable thresholds and
// periodically refreshes a cached snapshot of current usage.
package resource

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuenv-dev/taskcache/internal/cacheerr"
	"github.com/cuenv-dev/taskcache/internal/fsx"
)

// Config controls the Manager's thresholds and sampling interval.
type Config struct {
	// SoftMemoryLimit triggers proactive eviction before allocations are
	// refused outright.
	SoftMemoryLimit uint64

	// HardMemoryLimit is the point past which CanAllocate refuses.
	HardMemoryLimit uint64

	// MaxDiskSize is the on-disk quota checked by CheckDiskQuota, default
	// 10 GiB.
	MaxDiskSize uint64

	// SampleInterval is how often the monitoring goroutine refreshes its
	// snapshot. Default 5s.
	SampleInterval time.Duration
}

// DefaultConfig returns the documented defaults: 1 GiB soft, no separate
// hard cap beyond max_memory_size, 10 GiB disk, 5s sampling.
func DefaultConfig() Config {
	const gib = 1 << 30

	return Config{
		SoftMemoryLimit: gib,
		HardMemoryLimit: gib,
		MaxDiskSize:     10 * gib,
		SampleInterval:  5 * time.Second,
	}
}

// Snapshot is the latest sampled usage, refreshed by the monitoring
// goroutine.
type Snapshot struct {
	HeapBytes  uint64
	DiskBytes  uint64
	SampledAt  time.Time
	OverSoft   bool
	OverHard   bool
	OverQuota  bool
}

// Manager tracks process memory usage (via runtime.MemStats, the practical
// stdlib proxy for RSS inside a Go process) and on-disk object directory
// size against configured thresholds.
type Manager struct {
	cfg   Config
	fs    fsx.FS
	root  string
	snap  atomic.Pointer[Snapshot]
	diskCacheMu sync.Mutex
	diskCached  uint64
	diskValid   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Manager rooted at objectsDir (the cache's "objects/"
// directory) using fs for all disk access, so tests can substitute a fake.
func New(fs fsx.FS, objectsDir string, cfg Config) *Manager {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Second
	}

	m := &Manager{cfg: cfg, fs: fs, root: objectsDir}
	m.snap.Store(&Snapshot{})

	return m
}

// Start launches the background sampling goroutine. Calling Start twice is
// a no-op; call Stop to end the first goroutine before restarting.
func (m *Manager) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(ctx)
}

// Stop ends the background sampling goroutine and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done
	m.cancel = nil
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	m.refresh()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh()
		}
	}
}

func (m *Manager) refresh() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.InvalidateDiskCache()
	diskBytes, _ := m.diskUsage()

	snap := &Snapshot{
		HeapBytes: ms.HeapAlloc,
		DiskBytes: diskBytes,
		SampledAt: time.Now(),
		OverSoft:  ms.HeapAlloc > m.cfg.SoftMemoryLimit,
		OverHard:  ms.HeapAlloc > m.cfg.HardMemoryLimit,
		OverQuota: diskBytes > m.cfg.MaxDiskSize,
	}

	m.snap.Store(snap)
}

// Latest returns the most recently sampled snapshot, or a zero Snapshot if
// Start has not yet run once.
func (m *Manager) Latest() Snapshot {
	return *m.snap.Load()
}

// CanAllocate reports whether an allocation of the given size should
// proceed, checking process heap usage against the hard memory limit.
func (m *Manager) CanAllocate(bytes uint64) bool {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return bytes <= m.cfg.HardMemoryLimit && ms.HeapAlloc <= m.cfg.HardMemoryLimit-bytes
}

// OverSoftLimit reports whether current heap usage has crossed the soft
// threshold, the Cache Core's signal to trigger proactive eviction.
func (m *Manager) OverSoftLimit() bool {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return ms.HeapAlloc > m.cfg.SoftMemoryLimit
}

// CheckDiskQuota reports whether writing an additional bytes would exceed
// max_disk_size, walking the objects directory lazily and caching the
// total between calls (refreshed by the background sampler).
func (m *Manager) CheckDiskQuota(bytes uint64) error {
	used, err := m.diskUsage()
	if err != nil {
		return fmt.Errorf("resource: disk usage: %w", err)
	}

	if used+bytes > m.cfg.MaxDiskSize {
		return cacheerr.CapacityExceeded(int64(bytes), int64(m.cfg.MaxDiskSize)-int64(used))
	}

	return nil
}

// InvalidateDiskCache forces the next CheckDiskQuota/refresh to re-walk the
// objects directory instead of using the cached total.
func (m *Manager) InvalidateDiskCache() {
	m.diskCacheMu.Lock()
	defer m.diskCacheMu.Unlock()

	m.diskValid = false
}

func (m *Manager) diskUsage() (uint64, error) {
	m.diskCacheMu.Lock()
	defer m.diskCacheMu.Unlock()

	if m.diskValid {
		return m.diskCached, nil
	}

	total, err := m.walkSize(m.root)
	if err != nil {
		return 0, err
	}

	m.diskCached = total
	m.diskValid = true

	return total, nil
}

func (m *Manager) walkSize(dir string) (uint64, error) {
	entries, err := m.fs.ReadDir(dir)
	if err != nil {
		if fsx.IsNotExist(err) {
			return 0, nil
		}

		return 0, err
	}

	var total uint64

	for _, entry := range entries {
		path := dir + "/" + entry.Name()

		if entry.IsDir() {
			sub, err := m.walkSize(path)
			if err != nil {
				return 0, err
			}

			total += sub

			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		total += uint64(info.Size())
	}

	return total, nil
}
