// Package cbtable implements IntTable, the hash-free, per-column-indexed
// base table described in spec.md §4.1. An IntTable never copies row data:
// it only holds reorderings of the row *references* it was built from, so
// ownership of the underlying []int32 backing arrays stays with the caller
// (spec.md §3 "the table does not own its record arrays").
package cbtable

import (
	"fmt"
	"sort"

	"github.com/TramsWang/sinc-go/internal/kbdata"
)

// IntTable is a multi-column index over a set of records. Construction
// assumes non-empty, duplicate-free rows of uniform arity (spec.md §4.1
// "Failures"); violating that is a caller bug and is not validated here.
type IntTable struct {
	arity int

	// sortedByCol[c] holds every row, ordered primarily by column c
	// ascending and, among rows tied on c, by columns c+1..arity-1 in
	// turn (spec.md §3: "sorted stably by c from last column to first").
	// sortedByCol[0] is therefore the table's global lexicographic order.
	sortedByCol [][]kbdata.Record

	// valuesByCol[c] is the sorted, duplicate-free list of values that
	// appear in column c.
	valuesByCol [][]int32

	// startByCol[c][i] is the offset into sortedByCol[c] where
	// valuesByCol[c][i] begins; startByCol[c] has one extra trailing
	// entry equal to the row count.
	startByCol [][]int
}

// New builds an IntTable over rows. rows is borrowed: IntTable keeps
// references to the individual Records (not copies of their contents) but
// allocates its own ordering arrays, so it never mutates or reorders the
// caller's rows slice.
func New(rows []kbdata.Record, arity int) *IntTable {
	if len(rows) == 0 {
		panic("cbtable: New called with no rows")
	}
	t := &IntTable{
		arity:       arity,
		sortedByCol: make([][]kbdata.Record, arity),
		valuesByCol: make([][]int32, arity),
		startByCol:  make([][]int, arity),
	}
	for c := 0; c < arity; c++ {
		ordered := make([]kbdata.Record, len(rows))
		copy(ordered, rows)
		sort.SliceStable(ordered, func(i, j int) bool {
			return lessFromColumn(ordered[i], ordered[j], c)
		})
		t.sortedByCol[c] = ordered

		values := make([]int32, 0)
		starts := make([]int, 0, len(rows)+1)
		for i, r := range ordered {
			v := r[c]
			if i == 0 || v != values[len(values)-1] {
				values = append(values, v)
				starts = append(starts, i)
			}
		}
		starts = append(starts, len(rows))
		t.valuesByCol[c] = values
		t.startByCol[c] = starts
	}
	return t
}

// lessFromColumn compares r1 and r2 starting at column c and moving right,
// implementing the "sorted stably by c from last column to first" ordering.
func lessFromColumn(r1, r2 kbdata.Record, c int) bool {
	for i := c; i < len(r1); i++ {
		if r1[i] != r2[i] {
			return r1[i] < r2[i]
		}
	}
	return false
}

// Arity returns the table's column count.
func (t *IntTable) Arity() int { return t.arity }

// TotalRows returns the number of rows in the table.
func (t *IntTable) TotalRows() int { return len(t.sortedByCol[0]) }

// Row returns the i-th row in the table's column-0 (lexicographic) order.
func (t *IntTable) Row(i int) kbdata.Record { return t.sortedByCol[0][i] }

// HasRow reports whether r is present in the table.
func (t *IntTable) HasRow(r kbdata.Record) bool {
	_, ok := t.WhereIs(r)
	return ok
}

// WhereIs returns the offset of r in column-0 order, and whether it was
// found.
func (t *IntTable) WhereIs(r kbdata.Record) (int, bool) {
	rows := t.sortedByCol[0]
	i := sort.Search(len(rows), func(i int) bool { return !rows[i].Less(r) })
	if i < len(rows) && rows[i].Equal(r) {
		return i, true
	}
	return -1, false
}

func (t *IntTable) valueRange(col int, val int32) (start, end int, ok bool) {
	values := t.valuesByCol[col]
	i := sort.Search(len(values), func(i int) bool { return values[i] >= val })
	if i >= len(values) || values[i] != val {
		return 0, 0, false
	}
	return t.startByCol[col][i], t.startByCol[col][i+1], true
}

// GetSlice returns the rows r with r[col] == val, or nil if none.
func (t *IntTable) GetSlice(col int, val int32) []kbdata.Record {
	start, end, ok := t.valueRange(col, val)
	if !ok {
		return nil
	}
	return t.sortedByCol[col][start:end]
}

// SplitSlices partitions all rows by their value in col, one slice per
// distinct value, ordered by ascending value.
func (t *IntTable) SplitSlices(col int) [][]kbdata.Record {
	starts := t.startByCol[col]
	out := make([][]kbdata.Record, 0, len(t.valuesByCol[col]))
	for i := 0; i < len(starts)-1; i++ {
		out = append(out, t.sortedByCol[col][starts[i]:starts[i+1]])
	}
	return out
}

// MatchSlices partitions rows where row[col1] == row[col2], grouped by that
// common value, ordered by ascending value.
func (t *IntTable) MatchSlices(col1, col2 int) [][]kbdata.Record {
	var out [][]kbdata.Record
	for _, group := range t.SplitSlices(col1) {
		v := group[0][col1]
		var matched []kbdata.Record
		for _, r := range group {
			if r[col2] == v {
				matched = append(matched, r)
			}
		}
		if len(matched) > 0 {
			out = append(out, matched)
		}
	}
	return out
}

// MatchSlicesPair aligns partitions of t1 and t2 by equal value of
// t1[col1] and t2[col2]: the i-th slice of the first return equals the i-th
// slice of the second on that shared value. Both returns are nil when the
// two columns share no value.
func MatchSlicesPair(t1 *IntTable, col1 int, t2 *IntTable, col2 int) (slices1, slices2 [][]kbdata.Record) {
	v1, v2 := t1.valuesByCol[col1], t2.valuesByCol[col2]
	i, j := 0, 0
	for i < len(v1) && j < len(v2) {
		switch {
		case v1[i] < v2[j]:
			i++
		case v1[i] > v2[j]:
			j++
		default:
			slices1 = append(slices1, t1.GetSlice(col1, v1[i]))
			slices2 = append(slices2, t2.GetSlice(col2, v2[j]))
			i++
			j++
		}
	}
	return slices1, slices2
}

// MatchSlicesN extends MatchSlicesPair to n tables: for each value present
// in every table's designated column, it returns one aligned slice per
// table. Implemented by repeatedly advancing whichever cursor lags behind
// the current maximum observed value until one table's distinct-value list
// is exhausted (spec.md §4.1).
func MatchSlicesN(tables []*IntTable, cols []int) [][][]kbdata.Record {
	n := len(tables)
	out := make([][][]kbdata.Record, n)
	idx := make([]int, n)
	values := make([][]int32, n)
	for k := 0; k < n; k++ {
		values[k] = tables[k].valuesByCol[cols[k]]
	}
	for {
		done := false
		for k := 0; k < n; k++ {
			if idx[k] >= len(values[k]) {
				done = true
			}
		}
		if done {
			break
		}
		max := values[0][idx[0]]
		for k := 1; k < n; k++ {
			if v := values[k][idx[k]]; v > max {
				max = v
			}
		}
		allMatch := true
		for k := 0; k < n; k++ {
			for idx[k] < len(values[k]) && values[k][idx[k]] < max {
				idx[k]++
			}
			if idx[k] >= len(values[k]) || values[k][idx[k]] != max {
				allMatch = false
			}
		}
		if idx2Exhausted(idx, values) {
			break
		}
		if allMatch {
			for k := 0; k < n; k++ {
				out[k] = append(out[k], tables[k].GetSlice(cols[k], max))
				idx[k]++
			}
		}
	}
	return out
}

func idx2Exhausted(idx []int, values [][]int32) bool {
	for k := range idx {
		if idx[k] >= len(values[k]) {
			return true
		}
	}
	return false
}

// ValuesInColumn returns the sorted, duplicate-free values occurring in col.
func (t *IntTable) ValuesInColumn(col int) []int32 { return t.valuesByCol[col] }

// NumValues returns the number of distinct values in col.
func (t *IntTable) NumValues(col int) int { return len(t.valuesByCol[col]) }

// MinValue returns the smallest value in col.
func (t *IntTable) MinValue(col int) int32 { return t.valuesByCol[col][0] }

// MaxValue returns the largest value in col.
func (t *IntTable) MaxValue(col int) int32 {
	vs := t.valuesByCol[col]
	return vs[len(vs)-1]
}

func (t *IntTable) String() string {
	return fmt.Sprintf("IntTable(rows=%d, arity=%d)", t.TotalRows(), t.arity)
}
