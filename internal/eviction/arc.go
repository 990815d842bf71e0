package eviction

import "sync"

// averageEntrySize is the assumed average entry size used to derive the
// ARC capacity estimate c from a memory budget, matching the ARC
// source's own `max_memory / 4096` approximation.
const averageEntrySize = 4096

// ARC is an Adaptive Replacement Cache: it splits capacity between a
// recency list (T1) and a frequency list (T2), steered by ghost lists
// (B1/B2) that remember recently evicted keys without their sizes, and
// an adaptation parameter p that shifts the T1/T2 split based on which
// ghost list absorbs a hit.
type ARC struct {
	maxMemory uint64
	c         uint64 // capacity estimate, in entries

	mu        sync.Mutex
	p         uint64
	t1        []string
	t2        []string
	b1        []string
	b2        []string
	sizes     map[string]uint64
	totalSize uint64
}

// NewARC constructs an ARC policy bounded by maxMemory bytes.
func NewARC(maxMemory uint64) *ARC {
	c := maxMemory / averageEntrySize

	return &ARC{
		maxMemory: maxMemory,
		c:         c,
		p:         c / 2,
		sizes:     make(map[string]uint64),
	}
}

func removeString(s []string, key string) []string {
	out := s[:0]

	for _, v := range s {
		if v != key {
			out = append(out, v)
		}
	}

	return out
}

func indexOf(s []string, key string) int {
	for i, v := range s {
		if v == key {
			return i
		}
	}

	return -1
}

func contains(s []string, key string) bool {
	return indexOf(s, key) >= 0
}

// adapt moves p toward T1 (favoring recency) on a B1 hit, or toward T2
// (favoring frequency) on a B2 hit. Callers must hold a.mu.
func (a *ARC) adapt(inB1 bool) {
	if inB1 {
		delta := uint64(1)
		if len(a.b1) > 0 {
			d := uint64(len(a.b2)) / uint64(len(a.b1))
			if d > delta {
				delta = d
			}
		}

		a.p += delta
		if a.p > a.c {
			a.p = a.c
		}
	} else {
		delta := uint64(1)
		if len(a.b2) > 0 {
			d := uint64(len(a.b1)) / uint64(len(a.b2))
			if d > delta {
				delta = d
			}
		}

		if delta > a.p {
			a.p = 0
		} else {
			a.p -= delta
		}
	}
}

func (a *ARC) OnAccess(key string, _ uint64) {
	if !a.mu.TryLock() {
		return
	}
	defer a.mu.Unlock()

	if i := indexOf(a.t1, key); i >= 0 {
		a.t1 = append(a.t1[:i], a.t1[i+1:]...)
		a.t2 = append(a.t2, key)

		return
	}

	if i := indexOf(a.t2, key); i >= 0 {
		a.t2 = append(a.t2[:i], a.t2[i+1:]...)
		a.t2 = append(a.t2, key)
	}
}

func (a *ARC) OnInsert(key string, size uint64) {
	if !a.mu.TryLock() {
		return
	}
	defer a.mu.Unlock()

	a.sizes[key] = size
	a.totalSize += size

	inB1 := contains(a.b1, key)
	inB2 := contains(a.b2, key)

	switch {
	case inB1:
		a.adapt(true)
		a.b1 = removeString(a.b1, key)
		a.t2 = append(a.t2, key)
	case inB2:
		a.adapt(false)
		a.b2 = removeString(a.b2, key)
		a.t2 = append(a.t2, key)
	default:
		a.t1 = append(a.t1, key)
	}
}

func (a *ARC) OnRemove(key string, size uint64) {
	if !a.mu.TryLock() {
		return
	}
	defer a.mu.Unlock()

	delete(a.sizes, key)

	if size > a.totalSize {
		a.totalSize = 0
	} else {
		a.totalSize -= size
	}

	a.t1 = removeString(a.t1, key)
	a.t2 = removeString(a.t2, key)
	a.b1 = removeString(a.b1, key)
	a.b2 = removeString(a.b2, key)
}

func (a *ARC) NextEviction() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.totalSize <= a.maxMemory {
		return "", false
	}

	if len(a.t1) > 0 && (uint64(len(a.t1)) > a.p || len(a.t2) == 0) {
		key := a.t1[0]
		a.t1 = a.t1[1:]
		a.b1 = append(a.b1, key)

		return key, true
	}

	if len(a.t2) > 0 {
		key := a.t2[0]
		a.t2 = a.t2[1:]
		a.b2 = append(a.b2, key)

		return key, true
	}

	return "", false
}

func (a *ARC) MemoryUsage() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.totalSize
}

func (a *ARC) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sizes = make(map[string]uint64)
	a.totalSize = 0
	a.p = a.c / 2
	a.t1, a.t2, a.b1, a.b2 = nil, nil, nil, nil
}

// P returns the current adaptation parameter, for tests asserting the
// ARC adaptation formula.
func (a *ARC) P() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.p
}

var _ Policy = (*ARC)(nil)
