package eviction

import "sync"

type lfuEntry struct {
	size   uint64
	count  uint64
	access uint64 // monotonic tiebreaker: lower means older
}

// LFU evicts the key with the lowest access count, breaking ties toward
// the least-recently-accessed entry.
type LFU struct {
	maxMemory uint64

	mu        sync.Mutex
	entries   map[string]*lfuEntry
	totalSize uint64
	clock     uint64
}

// NewLFU constructs an LFU policy bounded by maxMemory bytes.
func NewLFU(maxMemory uint64) *LFU {
	return &LFU{maxMemory: maxMemory, entries: make(map[string]*lfuEntry)}
}

func (p *LFU) OnAccess(key string, _ uint64) {
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	if e, ok := p.entries[key]; ok {
		e.count++
		p.clock++
		e.access = p.clock
	}
}

func (p *LFU) OnInsert(key string, size uint64) {
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	p.clock++

	if e, ok := p.entries[key]; ok {
		p.totalSize -= e.size
		e.size = size
		e.access = p.clock
	} else {
		p.entries[key] = &lfuEntry{size: size, count: 1, access: p.clock}
	}

	p.totalSize += size
}

func (p *LFU) OnRemove(key string, size uint64) {
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	if _, ok := p.entries[key]; ok {
		delete(p.entries, key)

		if size > p.totalSize {
			p.totalSize = 0
		} else {
			p.totalSize -= size
		}
	}
}

func (p *LFU) NextEviction() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.totalSize <= p.maxMemory {
		return "", false
	}

	var victim string

	var best *lfuEntry

	for k, e := range p.entries {
		if best == nil || e.count < best.count || (e.count == best.count && e.access < best.access) {
			best = e
			victim = k
		}
	}

	if best == nil {
		return "", false
	}

	return victim, true
}

func (p *LFU) MemoryUsage() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.totalSize
}

func (p *LFU) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = make(map[string]*lfuEntry)
	p.totalSize = 0
	p.clock = 0
}

var _ Policy = (*LFU)(nil)
