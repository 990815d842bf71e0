// Package fastpath implements the in-memory accelerator (C5) for small,
// hot values: a concurrent map capped at maxEntries with its own
// access-order LRU list. It never becomes the sole authority for
// presence — the cache core always writes through to the main tiers too.
package fastpath

import (
	"sync"
	"time"

	"github.com/cuenv-dev/taskcache/internal/cachemeta"
)

// DefaultThreshold is the default maximum value size eligible for the
// fast path (1 KiB).
const DefaultThreshold = 1024

// DefaultMaxEntries is the default cap on fast-path entries (10,000).
const DefaultMaxEntries = 10000

type smallValue struct {
	data []byte
	meta cachemeta.Metadata
}

// Cache is the fast-path small-value store.
type Cache struct {
	threshold int
	maxEntries int

	mu          sync.Mutex
	values      map[string]*smallValue
	accessOrder []string
}

// New constructs a fast-path cache accepting values up to threshold bytes
// and tracking at most maxEntries keys.
func New(threshold, maxEntries int) *Cache {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Cache{
		threshold:  threshold,
		maxEntries: maxEntries,
		values:     make(map[string]*smallValue),
	}
}

// GetSmall returns the cached bytes and metadata for key, or (nil,
// Metadata{}, false) on a miss or lazily-detected expiry.
func (c *Cache) GetSmall(key string, now time.Time) ([]byte, cachemeta.Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.values[key]
	if !ok {
		return nil, cachemeta.Metadata{}, false
	}

	if v.meta.Expired(now) {
		c.removeLocked(key)

		return nil, cachemeta.Metadata{}, false
	}

	v.meta.LastAccessed = now
	c.touchLocked(key)

	out := make([]byte, len(v.data))
	copy(out, v.data)

	return out, v.meta, true
}

// PutSmall stores data under key if it fits within the size threshold.
// Returns false (no-op) if data is too large for the fast path.
func (c *Cache) PutSmall(key string, data []byte, meta cachemeta.Metadata) bool {
	if len(data) > c.threshold {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.values[key]; !exists && len(c.values) >= c.maxEntries {
		c.evictOldestLocked()
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	c.values[key] = &smallValue{data: stored, meta: meta}
	c.touchLocked(key)

	return true
}

// ContainsSmall reports presence without updating access order, removing
// the entry first if it has expired.
func (c *Cache) ContainsSmall(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.values[key]
	if !ok {
		return false
	}

	if v.meta.Expired(now) {
		c.removeLocked(key)

		return false
	}

	return true
}

// RemoveSmall deletes key if present, returning whether it existed.
func (c *Cache) RemoveSmall(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.values[key]; !ok {
		return false
	}

	c.removeLocked(key)

	return true
}

// Clear empties the fast-path cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = make(map[string]*smallValue)
	c.accessOrder = nil
}

// Sweep removes every entry whose expires_at is at or before now, returning
// the count removed. Used by the background cleanup task's bulk pass over
// the fast-path tier.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int

	for key, v := range c.values {
		if v.meta.Expired(now) {
			c.removeLocked(key)

			removed++
		}
	}

	return removed
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.values)
}

func (c *Cache) touchLocked(key string) {
	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)

			break
		}
	}

	c.accessOrder = append(c.accessOrder, key)
}

func (c *Cache) removeLocked(key string) {
	delete(c.values, key)

	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)

			break
		}
	}
}

func (c *Cache) evictOldestLocked() {
	if len(c.accessOrder) == 0 {
		return
	}

	oldest := c.accessOrder[0]
	c.accessOrder = c.accessOrder[1:]
	delete(c.values, oldest)
}
