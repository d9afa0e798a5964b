package cbtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TramsWang/sinc-go/internal/kbdata"
)

func recs(rows ...[]int32) []kbdata.Record {
	out := make([]kbdata.Record, len(rows))
	for i, r := range rows {
		out[i] = kbdata.Record(r)
	}
	return out
}

func TestIntTable_HasRow(t *testing.T) {
	rows := recs([]int32{1, 2}, []int32{2, 3}, []int32{1, 3})
	tab := New(rows, 2)

	for _, r := range rows {
		require.True(t, tab.HasRow(r), "expected %v to be present", r)
	}
	require.False(t, tab.HasRow(kbdata.Record{9, 9}))
}

func TestIntTable_GetSlice(t *testing.T) {
	rows := recs([]int32{1, 2}, []int32{1, 3}, []int32{2, 9})
	tab := New(rows, 2)

	slice := tab.GetSlice(0, 1)
	require.Len(t, slice, 2)
	for _, r := range slice {
		require.EqualValues(t, 1, r[0])
	}

	require.Nil(t, tab.GetSlice(0, 42))
}

func TestIntTable_SplitSlices_Partition(t *testing.T) {
	rows := recs([]int32{1, 2}, []int32{1, 3}, []int32{2, 9}, []int32{2, 1})
	tab := New(rows, 2)

	parts := tab.SplitSlices(0)
	total := 0
	for _, p := range parts {
		v := p[0][0]
		for _, r := range p {
			require.EqualValues(t, v, r[0])
		}
		total += len(p)
	}
	require.Equal(t, len(rows), total)
}

func TestIntTable_MatchSlices(t *testing.T) {
	rows := recs([]int32{1, 1}, []int32{2, 3}, []int32{5, 5})
	tab := New(rows, 2)

	groups := tab.MatchSlices(0, 1)
	require.Len(t, groups, 2)
	for _, g := range groups {
		for _, r := range g {
			require.Equal(t, r[0], r[1])
		}
	}
}

func TestIntTable_MatchSlicesPair(t *testing.T) {
	a := New(recs([]int32{1, 10}, []int32{2, 20}, []int32{3, 30}), 2)
	b := New(recs([]int32{100, 2}, []int32{200, 4}), 2)

	s1, s2 := MatchSlicesPair(a, 0, b, 1)
	require.Len(t, s1, 1)
	require.Len(t, s2, 1)
	require.EqualValues(t, 2, s1[0][0][0])
	require.EqualValues(t, 2, s2[0][0][1])
}

func TestIntTable_ValuesAndBounds(t *testing.T) {
	rows := recs([]int32{3, 0}, []int32{1, 0}, []int32{2, 0})
	tab := New(rows, 2)
	require.Equal(t, []int32{1, 2, 3}, tab.ValuesInColumn(0))
	require.Equal(t, 3, tab.NumValues(0))
	require.EqualValues(t, 1, tab.MinValue(0))
	require.EqualValues(t, 3, tab.MaxValue(0))
}
