package fragment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TramsWang/sinc-go/internal/argcode"
	"github.com/TramsWang/sinc-go/internal/cb"
	"github.com/TramsWang/sinc-go/internal/kbdata"
)

func recs(rows ...[]int32) []kbdata.Record {
	out := make([]kbdata.Record, len(rows))
	for i, r := range rows {
		out[i] = kbdata.Record(r)
	}
	return out
}

func pred(functor int32, args ...argcode.Arg) kbdata.Predicate {
	p := kbdata.NewPredicate(functor, len(args))
	copy(p.Args, args)
	return p
}

func TestFragment_BindConstant(t *testing.T) {
	pool := cb.NewPool(0)
	blk := pool.Create(recs([]int32{1, 2}, []int32{1, 3}, []int32{2, 9}), 2)
	f := New(pool, pred(1, argcode.Variable(0), argcode.Empty), blk)

	f.BindConstant(0, 0, 1)
	require.Equal(t, 1, f.NumEntries())
	require.True(t, f.PAR[0].Args[0].IsConstant())
	require.EqualValues(t, 1, f.PAR[0].Args[0].Decode())

	f.BindConstant(0, 0, 42)
	require.True(t, f.Empty())
}

func TestFragment_BindExistingVar_PromotesPLVToLV(t *testing.T) {
	pool := cb.NewPool(0)
	blk := pool.Create(recs([]int32{1, 1}, []int32{2, 3}, []int32{5, 5}), 2)
	f := New(pool, pred(1, argcode.Empty, argcode.Empty), blk)

	f.BindExistingVar(0, 0, 7)
	info := f.VarInfo[7]
	require.True(t, info.IsPLV)
	require.Equal(t, 1, f.NumEntries())

	f.BindExistingVar(0, 1, 7)
	require.False(t, f.VarInfo[7].IsPLV)
	require.Equal(t, 2, f.NumEntries())
	for i := 0; i < f.NumEntries(); i++ {
		e := f.entries[i]
		for _, row := range e[0].Rows() {
			require.Equal(t, row[0], row[1])
		}
	}
}

func TestFragment_NewVarWithinFragment_TwoTables(t *testing.T) {
	pool := cb.NewPool(0)
	a := pool.Create(recs([]int32{1, 10}, []int32{2, 20}), 2)
	b := pool.Create(recs([]int32{100, 1}, []int32{200, 2}), 2)

	f := &Fragment{
		pool:    pool,
		PAR:     []kbdata.Predicate{pred(1, argcode.Empty, argcode.Empty), pred(2, argcode.Empty, argcode.Empty)},
		entries: []entry{{a, b}},
		VarInfo: map[int]VarInfo{},
	}

	f.NewVarWithinFragment(0, 0, 1, 1, 3)
	require.False(t, f.Empty())
	require.Equal(t, 2, f.NumEntries())
	for _, e := range f.entries {
		require.Equal(t, e[0].Rows()[0][0], e[1].Rows()[0][1])
	}
}

func TestFragment_AppendBindExisting_OnLV(t *testing.T) {
	pool := cb.NewPool(0)
	a := pool.Create(recs([]int32{1, 10}, []int32{2, 20}), 2)
	f := New(pool, pred(1, argcode.Variable(0), argcode.Empty), a)
	f.VarInfo[0] = VarInfo{TabIdx: 0, ColIdx: 0, IsPLV: false}

	newBlk := pool.Create(recs([]int32{1, 999}, []int32{5, 888}), 2)
	f.AppendBindExisting(pred(9, argcode.Variable(0), argcode.Empty), newBlk, 0, 0)

	require.Equal(t, 2, f.NumTables())
	require.Equal(t, 1, f.NumEntries())
	e := f.entries[0]
	require.EqualValues(t, 1, e[0].Rows()[0][0])
	require.EqualValues(t, 1, e[1].Rows()[0][0])
}

func TestFragment_Merge(t *testing.T) {
	pool := cb.NewPool(0)
	a := pool.Create(recs([]int32{1, 10}, []int32{2, 20}), 2)
	b := pool.Create(recs([]int32{100, 1}, []int32{200, 2}), 2)

	fa := New(pool, pred(1, argcode.Empty, argcode.Empty), a)
	fb := New(pool, pred(2, argcode.Empty, argcode.Empty), b)
	fa.VarInfo[5] = VarInfo{TabIdx: 0, ColIdx: 0, IsPLV: false}

	fa.Merge(fb, 0, 0, 1, 1, 5)
	require.Equal(t, 2, f2Tables(fa))
	require.Equal(t, 2, fa.NumEntries())
	for _, e := range fa.entries {
		require.Equal(t, e[0].Rows()[0][0], e[1].Rows()[0][1])
	}
}

func f2Tables(f *Fragment) int { return f.NumTables() }

func TestFragment_CountAndEnumerateCombinations(t *testing.T) {
	pool := cb.NewPool(0)
	blk := pool.Create(recs([]int32{1, 10}, []int32{1, 20}, []int32{2, 30}), 2)
	f := New(pool, pred(1, argcode.Variable(0), argcode.Variable(1)), blk)
	f.VarInfo[0] = VarInfo{TabIdx: 0, ColIdx: 0, IsPLV: true}
	f.VarInfo[1] = VarInfo{TabIdx: 0, ColIdx: 1, IsPLV: true}

	count := f.CountCombinations([]int{0, 1})
	require.EqualValues(t, 3, count)

	combos := f.EnumerateCombinations([]int{0, 1})
	require.Len(t, combos, 3)
}
