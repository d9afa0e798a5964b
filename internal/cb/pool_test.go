package cb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TramsWang/sinc-go/internal/kbdata"
)

func rows(vals ...[]int32) []kbdata.Record {
	out := make([]kbdata.Record, len(vals))
	for i, v := range vals {
		out[i] = kbdata.Record(v)
	}
	return out
}

func TestPool_GetSlice_Memoized(t *testing.T) {
	p := NewPool(0)
	block := p.Create(rows([]int32{1, 2}, []int32{1, 3}, []int32{2, 9}), 2)

	first := p.GetSlice(block, 0, 1)
	require.NotNil(t, first)
	require.Len(t, first.Rows(), 2)

	second := p.GetSlice(block, 0, 1)
	require.Same(t, first, second)

	stats := p.Stats()["get_slice"]
	require.Equal(t, 2, stats.Invocations)
	require.Equal(t, 1, stats.Hits)

	require.Nil(t, p.GetSlice(block, 0, 77))
}

func TestPool_SplitSlices_Partitions(t *testing.T) {
	p := NewPool(0)
	block := p.Create(rows([]int32{1, 2}, []int32{1, 3}, []int32{2, 9}), 2)

	parts := p.SplitSlices(block, 0)
	require.Len(t, parts, 2)
	total := 0
	for _, part := range parts {
		total += part.Len()
	}
	require.Equal(t, 3, total)

	again := p.SplitSlices(block, 0)
	require.Equal(t, parts, again)
}

func TestPool_MatchSlicesBinary_Symmetric(t *testing.T) {
	p := NewPool(0)
	a := p.Create(rows([]int32{1, 10}, []int32{2, 20}), 2)
	b := p.Create(rows([]int32{100, 1}, []int32{200, 2}), 2)

	s1, s2, ok := p.MatchSlicesBinary(a, 0, b, 1)
	require.True(t, ok)
	require.Len(t, s1, 2)
	require.Len(t, s2, 2)

	// Calling with arguments swapped must reuse the canonical cache entry
	// and reorient the results, so invocation count grows but hits do too.
	t2, t1, ok2 := p.MatchSlicesBinary(b, 1, a, 0)
	require.True(t, ok2)
	require.Equal(t, s1, t1)
	require.Equal(t, s2, t2)

	stats := p.Stats()["match_slices_binary"]
	require.Equal(t, 2, stats.Invocations)
	require.Equal(t, 1, stats.Hits)
}

func TestPool_Clear_ResetsBlocksAndMemo(t *testing.T) {
	p := NewPool(0)
	block := p.Create(rows([]int32{1, 2}), 2)
	p.GetSlice(block, 0, 1)
	require.Equal(t, 2, p.Size())

	p.Clear()
	require.Equal(t, 0, p.Size())

	block2 := p.Create(rows([]int32{1, 2}), 2)
	require.Equal(t, 0, block2.ID())
}
