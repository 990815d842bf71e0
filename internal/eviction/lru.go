package eviction

import (
	"container/list"
	"sync"
)

type lruEntry struct {
	key  string
	size uint64
}

// LRU evicts the least-recently-accessed key once MemoryUsage exceeds
// maxMemory. Grounded on the general try-lock-or-skip shape used
// throughout this package's sibling policies for hot-path safety.
type LRU struct {
	maxMemory uint64

	mu        sync.Mutex
	order     *list.List
	index     map[string]*list.Element
	totalSize uint64
}

// NewLRU constructs an LRU policy bounded by maxMemory bytes.
func NewLRU(maxMemory uint64) *LRU {
	return &LRU{
		maxMemory: maxMemory,
		order:     list.New(),
		index:     make(map[string]*list.Element),
	}
}

func (p *LRU) OnAccess(key string, _ uint64) {
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	if el, ok := p.index[key]; ok {
		p.order.MoveToBack(el)
	}
}

func (p *LRU) OnInsert(key string, size uint64) {
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	if el, ok := p.index[key]; ok {
		p.totalSize -= el.Value.(*lruEntry).size
		el.Value.(*lruEntry).size = size
		p.order.MoveToBack(el)
	} else {
		el := p.order.PushBack(&lruEntry{key: key, size: size})
		p.index[key] = el
	}

	p.totalSize += size
}

func (p *LRU) OnRemove(key string, size uint64) {
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	if el, ok := p.index[key]; ok {
		p.order.Remove(el)
		delete(p.index, key)

		if size > p.totalSize {
			p.totalSize = 0
		} else {
			p.totalSize -= size
		}
	}
}

func (p *LRU) NextEviction() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.totalSize <= p.maxMemory {
		return "", false
	}

	front := p.order.Front()
	if front == nil {
		return "", false
	}

	return front.Value.(*lruEntry).key, true
}

func (p *LRU) MemoryUsage() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.totalSize
}

func (p *LRU) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.order.Init()
	p.index = make(map[string]*list.Element)
	p.totalSize = 0
}

var _ Policy = (*LRU)(nil)
