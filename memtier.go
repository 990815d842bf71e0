package taskcache

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cuenv-dev/taskcache/internal/streaming"
)

// memTier is the "memory map" lookup tier Get consults between the fast
// path and disk: a small bounded set of already-open, mmap-backed
// CacheReaders populated by GetReader/PutStream so a hot large value
// doesn't pay the read-permit-plus-header-parse cost on every access.
type memTier struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*streaming.CacheReader
	order    []string
}

func newMemTier(capacity int) *memTier {
	if capacity <= 0 {
		capacity = 256
	}

	return &memTier{capacity: capacity, entries: make(map[string]*streaming.CacheReader)}
}

func (m *memTier) get(digest string) (*streaming.CacheReader, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.entries[digest]
	if !ok {
		return nil, false
	}

	m.touchLocked(digest)

	return r, true
}

// put inserts r under digest, closing and evicting the oldest entry first
// if the tier is already at capacity.
func (m *memTier) put(digest string, r *streaming.CacheReader) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[digest]; ok {
		existing.Close()
		delete(m.entries, digest)
		m.removeOrderLocked(digest)
	}

	if len(m.entries) >= m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]

		if victim, ok := m.entries[oldest]; ok {
			victim.Close()
			delete(m.entries, oldest)
		}
	}

	m.entries[digest] = r
	m.order = append(m.order, digest)
}

func (m *memTier) remove(digest string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.entries[digest]; ok {
		r.Close()
		delete(m.entries, digest)
		m.removeOrderLocked(digest)
	}
}

func (m *memTier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.entries {
		r.Close()
	}

	m.entries = make(map[string]*streaming.CacheReader)
	m.order = nil
}

func (m *memTier) touchLocked(digest string) {
	m.removeOrderLocked(digest)
	m.order = append(m.order, digest)
}

func (m *memTier) removeOrderLocked(digest string) {
	for i, d := range m.order {
		if d == digest {
			m.order = append(m.order[:i], m.order[i+1:]...)

			break
		}
	}
}

// GetReader returns a mmap-preferring reader over key's payload, checking
// the memory-map tier first before asking the streaming manager to open
// the file. Returns (nil, nil) on a miss or expired entry.
func (c *Cache) GetReader(ctx context.Context, key string) (*streaming.CacheReader, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	h := digestKey(key)
	if r, ok := c.memTier.get(h); ok {
		return r, nil
	}

	dataPath, metaPath := objectPaths(c.baseDir, key)

	reader, err := c.stream.GetReader(ctx, key, dataPath, metaPath)
	if err != nil || reader == nil {
		return reader, err
	}

	c.memTier.put(h, reader)

	return reader, nil
}

// GetWriter opens a streaming writer for key, bypassing the fast path; the
// caller must call Finalize or Abort.
func (c *Cache) GetWriter(ctx context.Context, key string, ttl *time.Duration) (*streaming.CacheWriter, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	dataPath, metaPath := objectPaths(c.baseDir, key)
	h := digestKey(key)

	for _, subtree := range []string{"objects", "metadata"} {
		if err := c.fs.MkdirAll(shardDir(c.baseDir, subtree, h), 0o755); err != nil {
			return nil, err
		}
	}

	return c.stream.GetWriter(ctx, key, dataPath, metaPath, ttl)
}

// PutStream copies src into a streaming writer under key, recording a
// write and the byte count (counting a new entry only when no .meta file
// existed before, as Put does), and seeding the memory-map tier with an
// mmap-backed reader over the new file so a streamed write's handle stays
// warm.
func (c *Cache) PutStream(ctx context.Context, key string, src io.Reader, ttl *time.Duration) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}

	dataPath, metaPath := objectPaths(c.baseDir, key)
	h := digestKey(key)

	for _, subtree := range []string{"objects", "metadata"} {
		if err := c.fs.MkdirAll(shardDir(c.baseDir, subtree, h), 0o755); err != nil {
			return 0, err
		}
	}

	existedOnDisk, _ := c.fs.Exists(metaPath)

	n, err := c.stream.PutStream(ctx, key, dataPath, metaPath, src, ttl)
	if err != nil {
		c.counters.RecordError()

		return 0, err
	}

	c.counters.RecordWrite()
	c.counters.AdjustTotalBytes(n)
	if !existedOnDisk {
		c.counters.AdjustEntryCount(1)
	}
	c.fast.RemoveSmall(key)

	if reader, rerr := c.stream.GetReader(ctx, key, dataPath, metaPath); rerr == nil && reader != nil {
		c.memTier.put(h, reader)
	} else {
		c.memTier.remove(h)
	}

	if c.collector != nil {
		c.collector.RecordWrite()
	}

	return n, nil
}
