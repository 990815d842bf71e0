package taskcache_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	taskcache "github.com/cuenv-dev/taskcache"
)

func TestActionCache_ExecuteActionCachesResult(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ac := taskcache.NewActionCache(c)

	var calls atomic.Int32

	compute := func() (taskcache.ActionResult, error) {
		calls.Add(1)

		return taskcache.ActionResult{ExitCode: 0, ExecutedAt: time.Now()}, nil
	}

	result1, err := ac.ExecuteAction("digest-1", compute)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	result2, err := ac.ExecuteAction("digest-1", compute)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load(), "second call for the same digest must not recompute")
	require.Equal(t, result1.ExecutedAt, result2.ExecutedAt)
}

func TestActionCache_ExecuteActionSingleFlightsConcurrentCallers(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ac := taskcache.NewActionCache(c)

	var calls atomic.Int32

	const workers = 10

	start := make(chan struct{})
	done := make(chan taskcache.ActionResult, workers)

	compute := func() (taskcache.ActionResult, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)

		return taskcache.ActionResult{ExitCode: 7}, nil
	}

	for range workers {
		go func() {
			<-start

			result, err := ac.ExecuteAction("shared-digest", compute)
			require.NoError(t, err)
			done <- result
		}()
	}

	close(start)

	for range workers {
		result := <-done
		require.Equal(t, 7, result.ExitCode)
	}

	require.Equal(t, int32(1), calls.Load())
}

func TestActionCache_DifferentDigestsComputeIndependently(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ac := taskcache.NewActionCache(c)

	var calls atomic.Int32

	compute := func() (taskcache.ActionResult, error) {
		calls.Add(1)

		return taskcache.ActionResult{}, nil
	}

	_, err := ac.ExecuteAction("a", compute)
	require.NoError(t, err)

	_, err = ac.ExecuteAction("b", compute)
	require.NoError(t, err)

	require.Equal(t, int32(2), calls.Load())
}
