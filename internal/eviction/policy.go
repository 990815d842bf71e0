// Package eviction implements the pluggable victim-selection policies
// (C4): LRU, LFU, and ARC, behind one uniform Policy interface.
//
// All list mutations are best-effort: a policy that cannot acquire its
// internal lock on the hot path skips the update rather than blocking.
// Size bounds are enforced by the cache core's own accounting; the
// policies only pick victims when asked, they never refuse an insert.
package eviction

// Policy is the contract every eviction policy satisfies. on_access is a
// no-op for unknown keys. next_eviction returns ("", false) when usage is
// within bounds.
type Policy interface {
	OnAccess(key string, size uint64)
	OnInsert(key string, size uint64)
	OnRemove(key string, size uint64)
	NextEviction() (string, bool)
	MemoryUsage() uint64
	Clear()
}

// New constructs the named policy ("lru", "lfu", or "arc") bounded by
// maxMemory bytes. Unknown names fall back to LRU.
func New(name string, maxMemory uint64) Policy {
	switch name {
	case "lfu":
		return NewLFU(maxMemory)
	case "arc":
		return NewARC(maxMemory)
	default:
		return NewLRU(maxMemory)
	}
}
