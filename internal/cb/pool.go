package cb

import (
	"github.com/TramsWang/sinc-go/internal/cbtable"
	"github.com/TramsWang/sinc-go/internal/kbdata"
)

// OpStats tracks how often an operator was invoked and how often that
// invocation was served from the memoization table.
type OpStats struct {
	Invocations int
	Hits        int
}

type sliceKey struct {
	cbID, col int
	val       int32
}

type splitKey struct {
	cbID, col int
}

type matchUnaryKey struct {
	cbID, c1, c2 int
}

type matchBinaryKey struct {
	minID, minCol, maxID, maxCol int
}

type binaryResult struct {
	s1, s2 []*CB
	ok     bool
}

// Pool is the single process-wide registry of CBs. It owns every CB ever
// materialized and memoizes every operator result so that repeated
// specialization attempts across the beam never re-index the same
// sub-table twice (spec.md §4.2). A Pool is not safe for concurrent use;
// the mining loop is single-threaded (spec.md §5).
type Pool struct {
	blocks []*CB

	getSliceMemo    map[sliceKey]*CB
	splitSlicesMemo map[splitKey][]*CB
	matchUnaryMemo  map[matchUnaryKey][]*CB
	matchBinaryMemo map[matchBinaryKey]binaryResult

	stats map[string]*OpStats
}

// NewPool constructs an empty pool, pre-reserving capacity proportional to
// an expected relation/arity/constant-count scale (spec.md §4.2 "Memory
// policy").
func NewPool(capacityHint int) *Pool {
	if capacityHint <= 0 {
		capacityHint = 64
	}
	return &Pool{
		blocks:          make([]*CB, 0, capacityHint),
		getSliceMemo:    make(map[sliceKey]*CB, capacityHint),
		splitSlicesMemo: make(map[splitKey][]*CB, capacityHint/4+1),
		matchUnaryMemo:  make(map[matchUnaryKey][]*CB, capacityHint/4+1),
		matchBinaryMemo: make(map[matchBinaryKey]binaryResult, capacityHint/4+1),
		stats: map[string]*OpStats{
			"get_slice":           {},
			"split_slices":        {},
			"match_slices_unary":  {},
			"match_slices_binary": {},
		},
	}
}

// Clear resets the pool between major phases (miner start/end, or between
// target relations in the wrapped entrypoint) without discarding its
// cumulative statistics.
func (p *Pool) Clear() {
	p.blocks = p.blocks[:0]
	p.getSliceMemo = make(map[sliceKey]*CB)
	p.splitSlicesMemo = make(map[splitKey][]*CB)
	p.matchUnaryMemo = make(map[matchUnaryKey][]*CB)
	p.matchBinaryMemo = make(map[matchBinaryKey]binaryResult)
}

// Stats returns a snapshot of per-operator invocation/hit counters.
func (p *Pool) Stats() map[string]OpStats {
	out := make(map[string]OpStats, len(p.stats))
	for k, v := range p.stats {
		out[k] = *v
	}
	return out
}

// Size returns the number of CBs registered in the pool since it was
// created or last cleared.
func (p *Pool) Size() int { return len(p.blocks) }

func (p *Pool) register(rows []kbdata.Record, arity int) *CB {
	block := &CB{id: len(p.blocks), rows: rows, arity: arity}
	p.blocks = append(p.blocks, block)
	return block
}

// Create always allocates a fresh CB wrapping rows; it is the entry point
// for seeding a fragment from a relation's rows.
func (p *Pool) Create(rows []kbdata.Record, arity int) *CB {
	return p.register(rows, arity)
}

// GetSlice returns the rows of cb with row[col] == val, or nil if none.
func (p *Pool) GetSlice(c *CB, col int, val int32) *CB {
	st := p.stats["get_slice"]
	st.Invocations++
	key := sliceKey{c.id, col, val}
	if hit, ok := p.getSliceMemo[key]; ok {
		st.Hits++
		return hit
	}
	idx := c.ensureIndex()
	if idx == nil {
		p.getSliceMemo[key] = nil
		return nil
	}
	rows := idx.GetSlice(col, val)
	if len(rows) == 0 {
		p.getSliceMemo[key] = nil
		return nil
	}
	result := p.register(rows, c.arity)
	p.getSliceMemo[key] = result
	return result
}

// SplitSlices partitions cb's rows by their value in col, memoizing the
// resulting vector of CBs as a unit.
func (p *Pool) SplitSlices(c *CB, col int) []*CB {
	st := p.stats["split_slices"]
	st.Invocations++
	key := splitKey{c.id, col}
	if hit, ok := p.splitSlicesMemo[key]; ok {
		st.Hits++
		return hit
	}
	idx := c.ensureIndex()
	if idx == nil {
		p.splitSlicesMemo[key] = nil
		return nil
	}
	groups := idx.SplitSlices(col)
	out := make([]*CB, 0, len(groups))
	for _, g := range groups {
		out = append(out, p.register(g, c.arity))
	}
	p.splitSlicesMemo[key] = out
	return out
}

// MatchSlicesUnary partitions cb's rows where row[c1] == row[c2], grouped
// by that common value. Returns nil if no row matches.
func (p *Pool) MatchSlicesUnary(c *CB, c1, c2 int) []*CB {
	st := p.stats["match_slices_unary"]
	st.Invocations++
	lo, hi := c1, c2
	if lo > hi {
		lo, hi = hi, lo
	}
	key := matchUnaryKey{c.id, lo, hi}
	if hit, ok := p.matchUnaryMemo[key]; ok {
		st.Hits++
		return hit
	}
	idx := c.ensureIndex()
	if idx == nil {
		p.matchUnaryMemo[key] = nil
		return nil
	}
	groups := idx.MatchSlices(c1, c2)
	out := make([]*CB, 0, len(groups))
	for _, g := range groups {
		out = append(out, p.register(g, c.arity))
	}
	if len(out) == 0 {
		out = nil
	}
	p.matchUnaryMemo[key] = out
	return out
}

// MatchSlicesBinary aligns partitions of cb1 and cb2 by equal value of
// cb1[c1] and cb2[c2]. The memoization key is canonicalized on
// (min(id), col of min, max(id), col of max); callers get results
// reoriented back to the order they called with.
func (p *Pool) MatchSlicesBinary(cb1 *CB, c1 int, cb2 *CB, c2 int) (s1, s2 []*CB, ok bool) {
	st := p.stats["match_slices_binary"]
	st.Invocations++

	swapped := cb1.id > cb2.id
	a, ca, b, cbCol := cb1, c1, cb2, c2
	if swapped {
		a, ca, b, cbCol = cb2, c2, cb1, c1
	}
	key := matchBinaryKey{a.id, ca, b.id, cbCol}
	if hit, found := p.matchBinaryMemo[key]; found {
		st.Hits++
		if swapped {
			return hit.s2, hit.s1, hit.ok
		}
		return hit.s1, hit.s2, hit.ok
	}

	aIdx, bIdx := a.ensureIndex(), b.ensureIndex()
	var result binaryResult
	if aIdx != nil && bIdx != nil {
		rowGroups1, rowGroups2 := cbtable.MatchSlicesPair(aIdx, ca, bIdx, cbCol)
		if len(rowGroups1) > 0 {
			result.ok = true
			result.s1 = make([]*CB, len(rowGroups1))
			result.s2 = make([]*CB, len(rowGroups2))
			for i := range rowGroups1 {
				result.s1[i] = p.register(rowGroups1[i], a.arity)
				result.s2[i] = p.register(rowGroups2[i], b.arity)
			}
		}
	}
	p.matchBinaryMemo[key] = result
	if swapped {
		return result.s2, result.s1, result.ok
	}
	return result.s1, result.s2, result.ok
}
