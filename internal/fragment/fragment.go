// Package fragment implements CacheFragment, the chain of CompliedBlocks
// joined by limited variables that backs each connected component of a
// rule's body (spec.md §4.3).
package fragment

import (
	"github.com/TramsWang/sinc-go/internal/argcode"
	"github.com/TramsWang/sinc-go/internal/cb"
	"github.com/TramsWang/sinc-go/internal/kbdata"
)

// VarInfo locates one occurrence of a limited variable inside a fragment:
// which table (predicate slot) and column it binds, and whether that
// variable is currently a pseudo-LV (occurs exactly once in the fragment)
// or a promoted, properly-joined LV.
type VarInfo struct {
	TabIdx int
	ColIdx int
	IsPLV  bool
}

// entry is one row of the fragment's join: one CB per predicate slot in
// PAR. The Cartesian product of an entry's CB rows, restricted to rows
// agreeing on already-bound LV columns, is exactly the set of groundings
// that entry contributes (spec.md §3 "CacheFragment").
type entry []*cb.CB

// Fragment is a chain of CBs linked by limited variables.
type Fragment struct {
	pool *cb.Pool

	// PAR is the schematic structure of this fragment: one predicate per
	// table slot, with arguments being constants, LVs, or empties.
	PAR []kbdata.Predicate

	entries []entry

	// VarInfo maps each LV id known to this fragment to one
	// representative occurrence.
	VarInfo map[int]VarInfo
}

// New seeds a fragment with a single predicate bound to a single CB (the
// way a rule's initial pos_cache wraps the whole target relation, and the
// way a fresh body atom is introduced before any variable is bound).
func New(pool *cb.Pool, pred kbdata.Predicate, block *cb.CB) *Fragment {
	return &Fragment{
		pool:    pool,
		PAR:     []kbdata.Predicate{pred},
		entries: []entry{{block}},
		VarInfo: map[int]VarInfo{},
	}
}

// Empty reports whether the fragment has no surviving entries — meaning the
// rule built on it has no satisfying groundings (spec.md §4.3).
func (f *Fragment) Empty() bool { return len(f.entries) == 0 }

// NumEntries returns how many join entries remain.
func (f *Fragment) NumEntries() int { return len(f.entries) }

// NumTables returns how many predicate slots the fragment spans.
func (f *Fragment) NumTables() int { return len(f.PAR) }

// Clone returns a deep-enough copy for copy-on-write cloning: CBs are
// immutable and shared by reference, but the entry/PAR/VarInfo containers
// are copied so mutating the clone never affects the parent (spec.md §4.4,
// §9 "Copy-on-write caches").
func (f *Fragment) Clone() *Fragment {
	par := make([]kbdata.Predicate, len(f.PAR))
	for i, p := range f.PAR {
		par[i] = p.Clone()
	}
	entries := make([]entry, len(f.entries))
	for i, e := range f.entries {
		ne := make(entry, len(e))
		copy(ne, e)
		entries[i] = ne
	}
	vars := make(map[int]VarInfo, len(f.VarInfo))
	for k, v := range f.VarInfo {
		vars[k] = v
	}
	return &Fragment{pool: f.pool, PAR: par, entries: entries, VarInfo: vars}
}

// RowCountEstimate returns the sum, over entries, of the product of each
// entry's CB lengths — an upper bound on groundings before LV filtering
// collapses duplicates; used by coverage pre-pruning.
func (f *Fragment) RowCountEstimate() int64 {
	var total int64
	for _, e := range f.entries {
		product := int64(1)
		for _, blk := range e {
			product *= int64(blk.Len())
		}
		total += product
	}
	return total
}

// HeadRows iterates the grounded rows contributed by the predicate slot at
// tabIdx across every entry, calling visit for each row together with the
// rest of that entry's CBs (used by evidence extraction and counterexample
// generation in the rule package).
func (f *Fragment) HeadRows(tabIdx int, visit func(row kbdata.Record, restOfEntry []*cb.CB)) {
	for _, e := range f.entries {
		blk := e[tabIdx]
		for _, row := range blk.Rows() {
			visit(row, e)
		}
	}
}

// ---- Case 3: bind a slot to a constant ----

// BindConstant filters entries so tabIdx/col only retains rows equal to
// val, and records the constant in PAR.
func (f *Fragment) BindConstant(tabIdx, col int, val int32) {
	f.PAR[tabIdx].Args[col] = argcode.Constant(uint32(val))
	var out []entry
	for _, e := range f.entries {
		sub := f.pool.GetSlice(e[tabIdx], col, val)
		if sub == nil {
			continue
		}
		ne := make(entry, len(e))
		copy(ne, e)
		ne[tabIdx] = sub
		out = append(out, ne)
	}
	f.entries = out
}

// ---- Case 1a / 2a: bind slot(s) within this fragment to a variable ----

// BindExistingVar handles case 1a: bind the empty slot (tabIdx, col) to lv,
// a variable that may already be known to this fragment (as a PLV, in
// which case it is promoted by splitting entries, or as a full LV, in
// which case entries are filtered) or may be new to this fragment (in
// which case it is simply registered as a fresh PLV).
func (f *Fragment) BindExistingVar(tabIdx, col int, lv int) {
	f.PAR[tabIdx].Args[col] = argcode.Variable(uint32(lv))
	info, known := f.VarInfo[lv]
	if !known {
		f.VarInfo[lv] = VarInfo{TabIdx: tabIdx, ColIdx: col, IsPLV: true}
		return
	}
	if info.IsPLV {
		f.splitByMatch(info.TabIdx, info.ColIdx, tabIdx, col)
		f.VarInfo[lv] = VarInfo{TabIdx: info.TabIdx, ColIdx: info.ColIdx, IsPLV: false}
		return
	}
	f.filterByMatch(info.TabIdx, info.ColIdx, tabIdx, col)
}

// NewVarWithinFragment handles case 2a: convert two empty slots, both
// already inside this fragment, into a brand new LV in one step (the
// variable is a full LV immediately, since both occurrences are known up
// front — it never passes through a PLV state).
func (f *Fragment) NewVarWithinFragment(tab1, col1, tab2, col2, lv int) {
	f.PAR[tab1].Args[col1] = argcode.Variable(uint32(lv))
	f.PAR[tab2].Args[col2] = argcode.Variable(uint32(lv))
	f.splitByMatch(tab1, col1, tab2, col2)
	f.VarInfo[lv] = VarInfo{TabIdx: tab1, ColIdx: col1, IsPLV: false}
}

// splitByMatch promotes two slots to a joined LV by partitioning every
// entry so the two columns agree, using match_slices (unary when both
// slots share a table, binary otherwise).
func (f *Fragment) splitByMatch(tab1, col1, tab2, col2 int) {
	var out []entry
	if tab1 == tab2 {
		for _, e := range f.entries {
			groups := f.pool.MatchSlicesUnary(e[tab1], col1, col2)
			for _, g := range groups {
				ne := make(entry, len(e))
				copy(ne, e)
				ne[tab1] = g
				out = append(out, ne)
			}
		}
	} else {
		for _, e := range f.entries {
			s1, s2, ok := f.pool.MatchSlicesBinary(e[tab1], col1, e[tab2], col2)
			if !ok {
				continue
			}
			for i := range s1 {
				ne := make(entry, len(e))
				copy(ne, e)
				ne[tab1] = s1[i]
				ne[tab2] = s2[i]
				out = append(out, ne)
			}
		}
	}
	f.entries = out
}

// filterByMatch narrows entries so the (tab2, col2) slot agrees with the
// already-pinned value of the established LV at (tab1, col1).
func (f *Fragment) filterByMatch(tab1, col1, tab2, col2 int) {
	var out []entry
	for _, e := range f.entries {
		val := e[tab1].Rows()[0][col1]
		sub := f.pool.GetSlice(e[tab2], col2, val)
		if sub == nil {
			continue
		}
		ne := make(entry, len(e))
		copy(ne, e)
		ne[tab2] = sub
		out = append(out, ne)
	}
	f.entries = out
}

// ---- Case 1b / 2b: append a new relation ----

// AppendBindExisting handles case 1b: append newPred/newBlock as a new
// table in this fragment, binding newCol to lv, a variable that already
// exists somewhere in this fragment.
func (f *Fragment) AppendBindExisting(newPred kbdata.Predicate, newBlock *cb.CB, newCol int, lv int) {
	newPred.Args[newCol] = argcode.Variable(uint32(lv))
	f.PAR = append(f.PAR, newPred)
	info := f.VarInfo[lv]

	var out []entry
	if !info.IsPLV {
		for _, e := range f.entries {
			val := e[info.TabIdx].Rows()[0][info.ColIdx]
			sub := f.pool.GetSlice(newBlock, newCol, val)
			if sub == nil {
				continue
			}
			out = append(out, append(append(entry{}, e...), sub))
		}
	} else {
		for _, e := range f.entries {
			s1, s2, ok := f.pool.MatchSlicesBinary(e[info.TabIdx], info.ColIdx, newBlock, newCol)
			if !ok {
				continue
			}
			for i := range s1 {
				ne := append(append(entry{}, e...), s2[i])
				ne[info.TabIdx] = s1[i]
				out = append(out, ne)
			}
		}
		f.VarInfo[lv] = VarInfo{TabIdx: info.TabIdx, ColIdx: info.ColIdx, IsPLV: false}
	}
	f.entries = out
}

// AppendNewVar handles case 2b: append newPred/newBlock as a new table,
// creating a brand new LV that spans an existing (previously empty) slot
// of this fragment and newCol of the new relation.
func (f *Fragment) AppendNewVar(existingTab, existingCol int, newPred kbdata.Predicate, newBlock *cb.CB, newCol int, lv int) {
	f.PAR[existingTab].Args[existingCol] = argcode.Variable(uint32(lv))
	newPred.Args[newCol] = argcode.Variable(uint32(lv))
	f.PAR = append(f.PAR, newPred)

	var out []entry
	for _, e := range f.entries {
		s1, s2, ok := f.pool.MatchSlicesBinary(e[existingTab], existingCol, newBlock, newCol)
		if !ok {
			continue
		}
		for i := range s1 {
			ne := append(append(entry{}, e...), s2[i])
			ne[existingTab] = s1[i]
			out = append(out, ne)
		}
	}
	f.entries = out
	f.VarInfo[lv] = VarInfo{TabIdx: existingTab, ColIdx: existingCol, IsPLV: false}
}

// ---- Case 1c / 2c: merge two fragments ----

// Merge absorbs other into f by unifying (tab1, col1) of f with
// (tab2, col2) of other under lv (an LV already known to f for case 1c, or
// a brand new id for case 2c — the two cases differ only in whether lv
// pre-existed in f.VarInfo; Merge records lv at (tab1, col1) as a non-PLV
// unless f already holds a non-PLV entry for it). The join is computed by grouping each
// fragment's entries by the unification value (split_slices) and hash
// joining the two groupings on that shared value.
func (f *Fragment) Merge(other *Fragment, tab1, col1, tab2, col2, lv int) {
	groupsA := f.groupByValue(tab1, col1)
	groupsB := other.groupByValue(tab2, col2)

	offset := len(f.PAR)
	par := make([]kbdata.Predicate, 0, len(f.PAR)+len(other.PAR))
	par = append(par, f.PAR...)
	par = append(par, other.PAR...)
	par[tab1].Args[col1] = argcode.Variable(uint32(lv))
	par[offset+tab2].Args[col2] = argcode.Variable(uint32(lv))
	f.PAR = par

	var out []entry
	for val, aEntries := range groupsA {
		bEntries, ok := groupsB[val]
		if !ok {
			continue
		}
		for _, ae := range aEntries {
			for _, be := range bEntries {
				merged := make(entry, 0, len(ae)+len(be))
				merged = append(merged, ae...)
				merged = append(merged, be...)
				out = append(out, merged)
			}
		}
	}
	f.entries = out

	for id, info := range other.VarInfo {
		f.VarInfo[id] = VarInfo{TabIdx: info.TabIdx + offset, ColIdx: info.ColIdx, IsPLV: info.IsPLV}
	}
	if existing, ok := f.VarInfo[lv]; !ok || existing.IsPLV {
		f.VarInfo[lv] = VarInfo{TabIdx: tab1, ColIdx: col1, IsPLV: false}
	}
}

// groupByValue partitions every entry's (tabIdx, col) CB by distinct value,
// returning, per value, the list of entries narrowed to that value. Works
// uniformly whether the column is currently a PLV (values vary row-wise and
// get split for the first time) or an already-established LV (split is a
// no-op partition into the single existing value).
func (f *Fragment) groupByValue(tabIdx, col int) map[int32][]entry {
	groups := make(map[int32][]entry)
	for _, e := range f.entries {
		subs := f.pool.SplitSlices(e[tabIdx], col)
		for _, sub := range subs {
			val := sub.Rows()[0][col]
			ne := make(entry, len(e))
			copy(ne, e)
			ne[tabIdx] = sub
			groups[val] = append(groups[val], ne)
		}
	}
	return groups
}

// ---- Counting and enumeration ----

// CountCombinations returns the number of distinct value combinations the
// given LV ids take across this fragment (spec.md §4.3). PLVs contribute a
// per-table distinct-tuple count; already-joined LVs contribute a factor of
// one per entry since their value is already pinned.
func (f *Fragment) CountCombinations(vids []int) int64 {
	var total int64
	for _, e := range f.entries {
		plvCols := map[int][]int{}
		for _, vid := range vids {
			info, ok := f.VarInfo[vid]
			if !ok {
				continue
			}
			if info.IsPLV {
				plvCols[info.TabIdx] = append(plvCols[info.TabIdx], info.ColIdx)
			}
		}
		product := int64(1)
		for tabIdx, cols := range plvCols {
			product *= int64(distinctTupleCount(e[tabIdx], cols))
		}
		total += product
	}
	return total
}

// EnumerateCombinations materializes the set of distinct value
// combinations (keyed by vid) that the given LV ids take across the whole
// fragment.
func (f *Fragment) EnumerateCombinations(vids []int) []map[int]int32 {
	seen := map[string]map[int]int32{}
	for _, e := range f.entries {
		fixed := map[int]int32{}
		plvCols := map[int][]int{}
		plvVids := map[int][]int{}
		for _, vid := range vids {
			info, ok := f.VarInfo[vid]
			if !ok {
				continue
			}
			if info.IsPLV {
				plvCols[info.TabIdx] = append(plvCols[info.TabIdx], info.ColIdx)
				plvVids[info.TabIdx] = append(plvVids[info.TabIdx], vid)
			} else {
				fixed[vid] = e[info.TabIdx].Rows()[0][info.ColIdx]
			}
		}
		combos := []map[int]int32{cloneCombo(fixed)}
		for tabIdx, cols := range plvCols {
			tuples := distinctTuples(e[tabIdx], cols)
			vidsForTab := plvVids[tabIdx]
			var next []map[int]int32
			for _, base := range combos {
				for _, tup := range tuples {
					c := cloneCombo(base)
					for i, vid := range vidsForTab {
						c[vid] = tup[i]
					}
					next = append(next, c)
				}
			}
			combos = next
		}
		for _, c := range combos {
			seen[comboKey(vids, c)] = c
		}
	}
	out := make([]map[int]int32, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	return out
}

func cloneCombo(m map[int]int32) map[int]int32 {
	out := make(map[int]int32, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func comboKey(vids []int, combo map[int]int32) string {
	key := make([]byte, 0, len(vids)*9)
	for _, vid := range vids {
		v := combo[vid]
		key = append(key, byte(vid), byte(vid>>8), byte(vid>>16), byte(vid>>24),
			byte(v), byte(v>>8), byte(v>>16), byte(v>>24), '|')
	}
	return string(key)
}

func distinctTupleCount(blk *cb.CB, cols []int) int {
	return len(distinctTuples(blk, cols))
}

func distinctTuples(blk *cb.CB, cols []int) [][]int32 {
	seen := map[string][]int32{}
	for _, row := range blk.Rows() {
		tup := make([]int32, len(cols))
		for i, c := range cols {
			tup[i] = row[c]
		}
		key := make([]byte, 0, len(tup)*4)
		for _, v := range tup {
			key = append(key, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
		}
		seen[string(key)] = tup
	}
	out := make([][]int32, 0, len(seen))
	for _, tup := range seen {
		out = append(out, tup)
	}
	return out
}
