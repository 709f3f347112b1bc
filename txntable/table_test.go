package txntable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIsLazyAndStable(t *testing.T) {
	tbl := NewTable(DefaultConfig(), nil)
	m1 := tbl.GetOrCreate(100)
	m2 := tbl.GetOrCreate(100)
	require.Same(t, m1, m2)
	require.Equal(t, uint64(100), m1.TxnID)
}

func TestReleaseMarksReplayWindow(t *testing.T) {
	tbl := NewTable(DefaultConfig(), nil)
	tbl.GetOrCreate(5)
	require.False(t, tbl.WasGarbageCollected(5))
	tbl.Release(5)
	require.True(t, tbl.WasGarbageCollected(5))

	_, ok := tbl.Get(5)
	require.False(t, ok)
}

func TestReleaseBelowWatermark(t *testing.T) {
	tbl := NewTable(DefaultConfig(), nil)
	for id := uint64(1); id <= 10; id++ {
		tbl.GetOrCreate(id)
	}
	tbl.ReleaseBelow(6)
	for id := uint64(1); id < 6; id++ {
		_, ok := tbl.Get(id)
		require.False(t, ok, "id %d should have been released", id)
	}
	for id := uint64(6); id <= 10; id++ {
		_, ok := tbl.Get(id)
		require.True(t, ok, "id %d should remain live", id)
	}
}

func TestTxnManagerPrepareBufferingAndReplay(t *testing.T) {
	tbl := NewTable(DefaultConfig(), nil)
	m := tbl.GetOrCreate(1)

	require.False(t, m.HasPrePrepare())
	m.BufferPrepare(2)
	m.BufferPrepare(3)

	replayPrepares, replayCommits := m.SetPrePrepare([32]byte{1}, nil)
	require.True(t, m.HasPrePrepare())
	require.ElementsMatch(t, []uint32{2, 3}, replayPrepares)
	require.Empty(t, replayCommits)

	for _, s := range replayPrepares {
		m.AddPrepare(s)
	}
	require.Equal(t, 2, m.AddPrepare(2))
}

func TestPoolOverflowFallsBackToHeap(t *testing.T) {
	p := NewPool(1, nil)
	a := p.Get(1)
	b := p.Get(2) // pool empty, falls back to heap alloc
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotSame(t, a, b)
}
