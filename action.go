package taskcache

import (
	"time"

	"golang.org/x/sync/singleflight"
)

// ActionResult is the memoized outcome of a task execution, stored under
// its action digest by ActionCache.
type ActionResult struct {
	ExitCode    int
	StdoutHash  *string
	StderrHash  *string
	OutputFiles map[string]string
	ExecutedAt  time.Time
	DurationMS  int64
}

// ActionCache wraps a Cache with a compute-if-absent operation keyed by an
// action digest (the same SHA-256 fingerprint C9 produces), collapsing
// concurrent computations for the same digest into one.
type ActionCache struct {
	cache *Cache
	group singleflight.Group
}

// NewActionCache wraps cache, storing results under "actions/<digest>"-
// style keys so they share the cache's eviction, WAL, and stats but are
// addressable independently of ordinary put/get keys.
func NewActionCache(cache *Cache) *ActionCache {
	return &ActionCache{cache: cache}
}

// ExecuteAction returns the cached ActionResult for digest if present;
// otherwise it runs compute exactly once even under concurrent callers
// sharing the same digest, stores the result, and returns it to every
// waiter.
func (a *ActionCache) ExecuteAction(digest string, compute func() (ActionResult, error)) (ActionResult, error) {
	key := actionKey(digest)

	if result, found, err := Get[ActionResult](a.cache, key); err != nil {
		return ActionResult{}, err
	} else if found {
		return result, nil
	}

	v, err, _ := a.group.Do(digest, func() (any, error) {
		if result, found, err := Get[ActionResult](a.cache, key); err == nil && found {
			return result, nil
		}

		result, err := compute()
		if err != nil {
			return ActionResult{}, err
		}

		if putErr := Put(a.cache, key, result, nil); putErr != nil {
			return ActionResult{}, putErr
		}

		return result, nil
	})
	if err != nil {
		return ActionResult{}, err
	}

	return v.(ActionResult), nil
}

func actionKey(digest string) string {
	return "actions/" + digest
}
