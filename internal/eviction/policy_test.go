package eviction_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuenv-dev/taskcache/internal/eviction"
)

func TestLRU_EvictsOldestFirst(t *testing.T) {
	t.Parallel()

	p := eviction.NewLRU(10)
	p.OnInsert("a", 4)
	p.OnInsert("b", 4)
	p.OnInsert("c", 4)

	victim, ok := p.NextEviction()
	require.True(t, ok)
	require.Equal(t, "a", victim)

	p.OnAccess("a", 4) // move a to back; b should now be oldest
	p.OnInsert("d", 4) // pushes usage further over limit

	victim, ok = p.NextEviction()
	require.True(t, ok)
	require.Equal(t, "b", victim)
}

func TestLRU_NoEvictionUnderLimit(t *testing.T) {
	t.Parallel()

	p := eviction.NewLRU(100)
	p.OnInsert("a", 4)

	_, ok := p.NextEviction()
	require.False(t, ok)
}

func TestLRU_OnAccessUnknownKeyIsNoop(t *testing.T) {
	t.Parallel()

	p := eviction.NewLRU(10)
	p.OnAccess("missing", 4)
	require.Equal(t, uint64(0), p.MemoryUsage())
}

func TestLFU_EvictsLeastFrequentlyUsed(t *testing.T) {
	t.Parallel()

	p := eviction.NewLFU(10)
	p.OnInsert("a", 4)
	p.OnInsert("b", 4)
	p.OnInsert("c", 4)

	p.OnAccess("a", 4)
	p.OnAccess("a", 4)
	p.OnAccess("c", 4)

	victim, ok := p.NextEviction()
	require.True(t, ok)
	require.Equal(t, "b", victim)
}

func TestARC_ForPolicy_EmptyWhenUnderLimit(t *testing.T) {
	t.Parallel()

	p := eviction.NewARC(1 << 20)
	p.OnInsert("a", 10)

	_, ok := p.NextEviction()
	require.False(t, ok)
}

func TestEviction_ClearResetsState(t *testing.T) {
	t.Parallel()

	for _, p := range []eviction.Policy{eviction.NewLRU(10), eviction.NewLFU(10), eviction.NewARC(4096 * 4)} {
		p.OnInsert("a", 4)
		p.Clear()
		require.Equal(t, uint64(0), p.MemoryUsage())

		_, ok := p.NextEviction()
		require.False(t, ok)
	}
}
