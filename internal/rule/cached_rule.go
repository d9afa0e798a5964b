package rule

import (
	"fmt"

	"github.com/mitchellh/copystructure"

	"github.com/TramsWang/sinc-go/internal/argcode"
	"github.com/TramsWang/sinc-go/internal/cb"
	"github.com/TramsWang/sinc-go/internal/fragment"
	"github.com/TramsWang/sinc-go/internal/kbdata"
)

// UpdateStatus reports the outcome of a specialization or generalization
// attempt (spec.md §4.4).
type UpdateStatus int

const (
	Normal UpdateStatus = iota
	Duplicated
	Invalid
	InsufficientCoverage
	TabuPruned
)

func (s UpdateStatus) String() string {
	switch s {
	case Normal:
		return "Normal"
	case Duplicated:
		return "Duplicated"
	case Invalid:
		return "Invalid"
	case InsufficientCoverage:
		return "InsufficientCoverage"
	case TabuPruned:
		return "TabuPruned"
	default:
		return "Unknown"
	}
}

// HeadRelation is the minimal view CachedRule needs of its target
// relation: its rows, its entailment bitset, and the size of the
// constant universe (used by Eval's all_etls formula). internal/kb
// implements this; internal/rule does not depend on internal/kb, keeping
// the dependency direction miner -> {rule, kb} rather than a cycle.
type HeadRelation interface {
	Functor() int32
	Arity() int
	TotalRows() int
	Rows() []kbdata.Record
	IsEntailed(rowIdx int) bool
	MarkEntailed(rowIdx int) bool
	ConstantUniverseSize() int64
}

// cacheState is one of pos_cache/all_cache: the set of fragments covering
// a rule's structure, plus which fragment each predicate index currently
// belongs to (spec.md §4.4 "pred_idx_to_tab_info").
type cacheState struct {
	fragments      []*fragment.Fragment
	predToFragment []int // index into fragments, or -1 if predIdx has no fragment yet
	predToTabIdx   []int // table index within that fragment's PAR/entries
}

func newCacheState(numPreds int) *cacheState {
	pf := make([]int, numPreds)
	tab := make([]int, numPreds)
	for i := range pf {
		pf[i] = -1
		tab[i] = -1
	}
	return &cacheState{predToFragment: pf, predToTabIdx: tab}
}

func (c *cacheState) clone() *cacheState {
	frags := make([]*fragment.Fragment, len(c.fragments))
	for i, f := range c.fragments {
		frags[i] = f.Clone()
	}
	pf := append([]int(nil), c.predToFragment...)
	tab := append([]int(nil), c.predToTabIdx...)
	return &cacheState{fragments: frags, predToFragment: pf, predToTabIdx: tab}
}

// predsInFragment returns every predicate index currently homed in fragIdx.
func (c *cacheState) predsInFragment(fragIdx int) []int {
	var out []int
	for i, f := range c.predToFragment {
		if f == fragIdx {
			out = append(out, i)
		}
	}
	return out
}

// mergeInto merges the fragment owning otherPredIdx into the fragment
// owning intoPredIdx under lv, unifying (intoPredIdx, intoArgIdx) with
// (otherPredIdx, otherArgIdx), and remaps every predicate that was homed
// in the absorbed fragment (spec.md §4.4 "merging two fragments ...
// patching the pred_idx_to_tab_info mapping of all downstream predicates").
func (c *cacheState) mergeInto(intoPredIdx, intoArgIdx, otherPredIdx, otherArgIdx, lv int) {
	intoFragIdx := c.predToFragment[intoPredIdx]
	otherFragIdx := c.predToFragment[otherPredIdx]
	if intoFragIdx == otherFragIdx {
		into := c.fragments[intoFragIdx]
		if _, known := into.VarInfo[lv]; known {
			// lv already occurs in this fragment (case 1: the anchor slot
			// was bound earlier): a plain bind filters entries against it.
			into.BindExistingVar(c.predToTabIdx[otherPredIdx], otherArgIdx, lv)
		} else {
			// lv is brand new (case 3: two previously-empty slots of the
			// same fragment are tied together): both occurrences must be
			// registered and filtered together, or the first slot is left
			// unconstrained.
			into.NewVarWithinFragment(c.predToTabIdx[intoPredIdx], intoArgIdx, c.predToTabIdx[otherPredIdx], otherArgIdx, lv)
		}
		return
	}
	into := c.fragments[intoFragIdx]
	other := c.fragments[otherFragIdx]
	offset := into.NumTables()
	into.Merge(other, c.predToTabIdx[intoPredIdx], intoArgIdx, c.predToTabIdx[otherPredIdx], otherArgIdx, lv)

	for _, predIdx := range c.predsInFragment(otherFragIdx) {
		c.predToFragment[predIdx] = intoFragIdx
		c.predToTabIdx[predIdx] = c.predToTabIdx[predIdx] + offset
	}
}

func (c *cacheState) empty() bool {
	if len(c.fragments) == 0 {
		return false // no fragments at all (e.g. all_cache before any body atom) is not "empty" in the pruning sense
	}
	for _, f := range c.fragments {
		if f.Empty() {
			return true
		}
	}
	return false
}

func (c *cacheState) ensurePredicateCount(n int) {
	for len(c.predToFragment) < n {
		c.predToFragment = append(c.predToFragment, -1)
		c.predToTabIdx = append(c.predToTabIdx, -1)
	}
}

// CachedRule is a Horn rule together with the fragment caches that let it
// be evaluated and specialized without rescanning the KB (spec.md §4.4).
type CachedRule struct {
	pool *cb.Pool
	head HeadRelation

	structure      kbdata.Structure
	limitedVarArgs map[int][]SlotRef
	nextVarID      int

	posCache       *cacheState
	posCacheOwned  bool
	allCache       *cacheState
	allCacheOwned  bool

	eval Eval

	fp         Fingerprint
	fpComputed bool

	sig         Signature
	sigComputed bool
}

// NewInitialRule builds the most general rule for target relation head:
// `R(?,...,?)` with length 0, pos_cache wrapping head's non-entailed rows
// as one fragment, all_cache empty (spec.md §4.4 "Initial rule").
func NewInitialRule(pool *cb.Pool, head HeadRelation) *CachedRule {
	headPred := kbdata.NewPredicate(head.Functor(), head.Arity())

	var nonEntailed []kbdata.Record
	for i, row := range head.Rows() {
		if !head.IsEntailed(i) {
			nonEntailed = append(nonEntailed, row)
		}
	}
	var posCache *cacheState
	if len(nonEntailed) > 0 {
		blk := pool.Create(nonEntailed, head.Arity())
		frag := fragment.New(pool, headPred.Clone(), blk)
		posCache = &cacheState{fragments: []*fragment.Fragment{frag}, predToFragment: []int{0}, predToTabIdx: []int{0}}
	} else {
		posCache = newCacheState(1)
	}

	r := &CachedRule{
		pool:          pool,
		head:          head,
		structure:     kbdata.Structure{headPred},
		limitedVarArgs: map[int][]SlotRef{},
		posCache:      posCache,
		posCacheOwned: true,
		allCache:      newCacheState(1),
		allCacheOwned: true,
	}

	alreadyEntailed := 0
	for i := range head.Rows() {
		if head.IsEntailed(i) {
			alreadyEntailed++
		}
	}
	posEtls := float64(head.TotalRows() - alreadyEntailed)
	allEtls := powInt(head.ConstantUniverseSize(), head.Arity()) - float64(alreadyEntailed)
	r.eval = NewEval(posEtls, allEtls, 0)
	return r
}

func powInt(base int64, exp int) float64 {
	result := 1.0
	b := float64(base)
	for i := 0; i < exp; i++ {
		result *= b
	}
	return result
}

// Eval returns the rule's current quality snapshot.
func (r *CachedRule) Eval() Eval { return r.eval }

// Structure returns the rule's predicate sequence (index 0 is the head).
func (r *CachedRule) Structure() kbdata.Structure { return r.structure }

// Length is the structure's description length: empty args contribute 0,
// every distinct limited variable used anywhere in the rule (head or body,
// counted once no matter how many slots it binds) contributes 1, and every
// constant-bound slot contributes 1 (spec.md §4.4 "len is ... empty args +
// LVs + constants").
func (r *CachedRule) Length() int {
	length := 0
	seenLV := map[int]bool{}
	for _, pred := range r.structure {
		for _, a := range pred.Args {
			switch {
			case a.IsConstant():
				length++
			case a.IsVariable():
				lv := int(a.Decode())
				if !seenLV[lv] {
					seenLV[lv] = true
					length++
				}
			}
		}
	}
	return length
}

// BodyFunctors returns the functor of every body predicate, for tabu
// category keying.
func (r *CachedRule) BodyFunctors() []int32 {
	out := make([]int32, 0, len(r.structure)-1)
	for _, p := range r.structure[1:] {
		out = append(out, p.Functor)
	}
	return out
}

// Clone returns a logical copy-on-write clone: caches are shared by
// reference until a mutating obtain*Cache call duplicates them (spec.md
// §4.4 "State").
func (r *CachedRule) Clone() *CachedRule {
	varsCopyRaw, err := copystructure.Copy(r.limitedVarArgs)
	var varsCopy map[int][]SlotRef
	if err != nil {
		// copystructure only fails on cyclic or unsupported types; a
		// map[int][]SlotRef of plain ints never hits that path, so this
		// is unreachable in practice but guarded defensively.
		varsCopy = cloneVarArgsManually(r.limitedVarArgs)
	} else {
		varsCopy = varsCopyRaw.(map[int][]SlotRef)
	}

	r.posCacheOwned = false
	r.allCacheOwned = false
	return &CachedRule{
		pool:           r.pool,
		head:           r.head,
		structure:      r.structure.Clone(),
		limitedVarArgs: varsCopy,
		nextVarID:      r.nextVarID,
		posCache:       r.posCache,
		posCacheOwned:  false,
		allCache:       r.allCache,
		allCacheOwned:  false,
		eval:           r.eval,
	}
}

func cloneVarArgsManually(in map[int][]SlotRef) map[int][]SlotRef {
	out := make(map[int][]SlotRef, len(in))
	for k, v := range in {
		out[k] = append([]SlotRef(nil), v...)
	}
	return out
}

func (r *CachedRule) obtainPosCache() *cacheState {
	if !r.posCacheOwned {
		r.posCache = r.posCache.clone()
		r.posCacheOwned = true
	}
	return r.posCache
}

func (r *CachedRule) obtainAllCache() *cacheState {
	if !r.allCacheOwned {
		r.allCache = r.allCache.clone()
		r.allCacheOwned = true
	}
	return r.allCache
}

// Fingerprint computes (and memoizes) the rule's renaming-invariant
// fingerprint.
func (r *CachedRule) Fingerprint() (Fingerprint, error) {
	if r.fpComputed {
		return r.fp, nil
	}
	views := make([]canonicalizable, len(r.structure))
	for i, p := range r.structure {
		views[i] = predView(p)
	}
	fp, err := Compute(views, r.limitedVarArgs)
	if err != nil {
		return 0, err
	}
	r.fp = fp
	r.fpComputed = true
	return fp, nil
}

type predView kbdata.Predicate

func (p predView) functor() int32      { return p.Functor }
func (p predView) args() []argcode.Arg { return p.Args }

// Signature computes (and memoizes) the rule's generalization signature: a
// structural description precise enough to compare against a *different*
// rule's signature via Signature.Generalizes, unlike Fingerprint which only
// detects exact duplicates of the same rule renamed (spec.md §4.4 step (v)
// "a generalization relation triggers prune").
func (r *CachedRule) Signature() Signature {
	if r.sigComputed {
		return r.sig
	}
	views := make([]canonicalizable, len(r.structure))
	for i, p := range r.structure {
		views[i] = predView(p)
	}
	r.sig = computeSignature(views, r.limitedVarArgs)
	r.sigComputed = true
	return r.sig
}

// newLV allocates a fresh limited-variable id, local to this rule.
func (r *CachedRule) newLV() int {
	id := r.nextVarID
	r.nextVarID++
	return id
}

func (r *CachedRule) recordSlot(lv int, slot SlotRef) {
	r.limitedVarArgs[lv] = append(r.limitedVarArgs[lv], slot)
	r.fpComputed = false
	r.sigComputed = false
}

// applyResult is the shared epilogue every specialize/generalize case
// runs: validity check, fingerprint dedup, tabu consultation, coverage
// pruning, and eval recomputation (spec.md §4.4 step list).
func (r *CachedRule) applyResult(fpCache *FingerprintCache, tabu *TabuSets, minFactCoverage float64) UpdateStatus {
	if err := r.checkValidity(); err != nil {
		return Invalid
	}

	fp, err := r.Fingerprint()
	if err != nil {
		return Invalid
	}
	if fpCache != nil && fpCache.CheckAndAdd(fp) {
		return Duplicated
	}

	category := TabuCategory(r.BodyFunctors())
	if tabu != nil && tabu.Generalizes(r.BodyFunctors(), r.Signature()) {
		return TabuPruned
	}

	if r.posCache.empty() {
		if tabu != nil {
			tabu.Add(category, r.Signature())
		}
		return InsufficientCoverage
	}
	coverage := r.RecordCoverage()
	if coverage < minFactCoverage {
		if tabu != nil {
			tabu.Add(category, r.Signature())
		}
		return InsufficientCoverage
	}

	r.recalculateEval()
	return Normal
}

// checkValidity runs the union-find/duplication checks spec.md §4.4
// describes under "Validity".
func (r *CachedRule) checkValidity() error {
	uf := newUnionFind(r.nextVarID)
	for _, slots := range r.limitedVarArgs {
		if len(slots) < 2 {
			continue
		}
		root := r.lvIDOf(slots[0])
		for _, s := range slots {
			for _, a := range r.structure[s.PredIdx].Args {
				if a.IsVariable() {
					uf.union(root, int(a.Decode()))
				}
			}
		}
	}

	headComponents := map[int]bool{}
	for i, a := range r.structure[0].Args {
		if a.IsVariable() {
			headComponents[uf.find(int(a.Decode()))] = true
		}
		_ = i
	}

	for i, pred := range r.structure[1:] {
		hasLV, connected := false, false
		for _, a := range pred.Args {
			if a.IsVariable() {
				hasLV = true
				connected = connected || headComponents[uf.find(int(a.Decode()))]
			}
		}
		if !hasLV || !connected {
			return fmt.Errorf("rule: body predicate %d is not joined to the head (independent fragment)", i+1)
		}
		if pred.Equal(r.structure[0]) {
			return fmt.Errorf("rule: body predicate %d fully duplicates the head", i+1)
		}
		for j, other := range r.structure[1:] {
			if j == i {
				continue
			}
			if pred.Equal(other) {
				return fmt.Errorf("rule: body predicate %d duplicates predicate %d", i+1, j+1)
			}
		}
		if pred.Functor == r.structure[0].Functor {
			for k, a := range pred.Args {
				if !a.IsEmpty() && a == r.structure[0].Args[k] {
					return fmt.Errorf("rule: body predicate %d partially duplicates the head", i+1)
				}
			}
		}
	}
	return nil
}

func (r *CachedRule) lvIDOf(slot SlotRef) int {
	a := r.structure[slot.PredIdx].Args[slot.ArgIdx]
	return int(a.Decode())
}

// recalculateEval implements spec.md §4.4 "Eval (calculate_eval)".
func (r *CachedRule) recalculateEval() {
	posEtls := float64(r.RecordCoverage() * float64(r.head.TotalRows()))
	// RecordCoverage returns a ratio; recompute the raw distinct count
	// directly for numerical fidelity instead of multiplying back out.
	posEtls = float64(r.coveredNonEntailedCount())

	headArgs := r.structure[0].Args
	unbound := 0
	headOnlyLVs := map[int]bool{}
	seenLVs := map[int]bool{}
	for _, a := range headArgs {
		if a.IsEmpty() {
			unbound++
		} else if a.IsVariable() {
			lv := int(a.Decode())
			if !seenLVs[lv] {
				seenLVs[lv] = true
				if r.isHeadOnly(lv) {
					headOnlyLVs[lv] = true
				}
			}
		}
	}
	unbound += len(headOnlyLVs)

	// Every head-only LV (including one tied to several head positions, e.g.
	// h(X,X)) ranges freely over the whole constant universe: all_cache's
	// fragment only records the combinations that happen to already appear
	// among existing head facts, which undercounts the true domain, so this
	// degree of freedom is priced via powInt instead of a fragment lookup.
	allEtls := powInt(r.head.ConstantUniverseSize(), unbound)

	alreadyEntailed := 0
	for i := range r.head.Rows() {
		if r.head.IsEntailed(i) {
			alreadyEntailed++
		}
	}
	allEtls -= float64(alreadyEntailed)
	if allEtls < posEtls {
		allEtls = posEtls
	}

	r.eval = NewEval(posEtls, allEtls, r.Length())
}

func (r *CachedRule) isHeadOnly(lv int) bool {
	for _, s := range r.limitedVarArgs[lv] {
		if s.PredIdx != 0 {
			return false
		}
	}
	return true
}

// RecordCoverage is the fraction of head-relation rows that are covered by
// pos_cache and not already entailed (spec.md §4.4 "record_coverage").
func (r *CachedRule) RecordCoverage() float64 {
	if r.head.TotalRows() == 0 {
		return 0
	}
	return float64(r.coveredNonEntailedCount()) / float64(r.head.TotalRows())
}

func (r *CachedRule) coveredNonEntailedCount() int {
	headFragIdx := r.posCache.predToFragment[0]
	if headFragIdx < 0 {
		return 0
	}
	frag := r.posCache.fragments[headFragIdx]
	seen := map[int]bool{}
	frag.HeadRows(r.posCache.predToTabIdx[0], func(row kbdata.Record, rest []*cb.CB) {
		for i, v := range r.head.Rows() {
			if row.Equal(v) {
				if !r.head.IsEntailed(i) {
					seen[i] = true
				}
				break
			}
		}
	})
	return len(seen)
}

// EvidenceAndMarkEntailment walks pos_cache, marking every grounded head
// row it proves (for the first time) as entailed, and returns the newly
// entailed row indices (spec.md §4.4 "evidence_and_mark_entailment").
func (r *CachedRule) EvidenceAndMarkEntailment() []int {
	headFragIdx := r.posCache.predToFragment[0]
	if headFragIdx < 0 {
		return nil
	}
	frag := r.posCache.fragments[headFragIdx]
	var newlyEntailed []int
	frag.HeadRows(r.posCache.predToTabIdx[0], func(row kbdata.Record, rest []*cb.CB) {
		for i, v := range r.head.Rows() {
			if row.Equal(v) {
				if r.head.MarkEntailed(i) {
					newlyEntailed = append(newlyEntailed, i)
				}
				break
			}
		}
	})
	return newlyEntailed
}

// DependencyEdge is one grounded-head-row -> grounded-body-row dependency
// contributed by this rule's coverage (spec.md §4.6 "grounded dependency
// graph").
type DependencyEdge struct {
	HeadRow     kbdata.Record
	BodyFunctor int32
	BodyRow     kbdata.Record

	// IsAxiom marks an edge into the synthetic axiom node (depgraph.AxiomNode)
	// rather than a real grounded body predicate: this rule has no body, so
	// HeadRow is unconditionally true and depends on nothing else (spec.md
	// §3 "a synthetic axiom node absorbs edges from single-literal rules").
	IsAxiom bool
}

// DependencyEdges walks pos_cache and reports, for every grounded head row
// this rule proves, the exact grounded body row of every body predicate
// that participated (spec.md §4.6). checkValidity guarantees every body
// predicate is transitively joined to the head, so pos_cache's head
// fragment alone carries the full join. A body-less rule has nothing to
// walk, so every head row it proves gets a single axiom edge instead.
func (r *CachedRule) DependencyEdges() []DependencyEdge {
	headFragIdx := r.posCache.predToFragment[0]
	if headFragIdx < 0 {
		return nil
	}
	frag := r.posCache.fragments[headFragIdx]
	var out []DependencyEdge
	if len(r.structure) == 1 {
		frag.HeadRows(r.posCache.predToTabIdx[0], func(headRow kbdata.Record, rest []*cb.CB) {
			out = append(out, DependencyEdge{HeadRow: headRow, IsAxiom: true})
		})
		return out
	}
	frag.HeadRows(r.posCache.predToTabIdx[0], func(headRow kbdata.Record, rest []*cb.CB) {
		for predIdx := 1; predIdx < len(r.structure); predIdx++ {
			fragIdx := r.posCache.predToFragment[predIdx]
			if fragIdx != headFragIdx {
				continue
			}
			tabIdx := r.posCache.predToTabIdx[predIdx]
			if tabIdx < 0 || tabIdx >= len(rest) {
				continue
			}
			functor := r.structure[predIdx].Functor
			for _, bodyRow := range rest[tabIdx].Rows() {
				out = append(out, DependencyEdge{HeadRow: headRow, BodyFunctor: functor, BodyRow: bodyRow})
			}
		}
	})
	return out
}

// Counterexamples enumerates head-argument templates consistent with the
// rule that are not present in the head relation (spec.md §4.4
// "counterexamples"). Head arguments tied to a limited variable shared
// with the body are read off the join; head-only limited variables and
// truly empty arguments are expanded over the full constant universe.
func (r *CachedRule) Counterexamples() []kbdata.Record {
	headFragIdx := r.allCache.predToFragment[0]
	if headFragIdx < 0 {
		headFragIdx = r.posCache.predToFragment[0]
	}
	if headFragIdx < 0 {
		return nil
	}
	src := r.allCache
	frag := src.fragments[headFragIdx]

	// A head argument is grounded one of three ways: by a join with the body
	// (its value comes off the fragment, restricted to rows that actually
	// satisfy the join), by a head-only LV or a truly empty slot (both range
	// freely over the whole constant universe, since neither is constrained
	// by anything outside the head), or by a literal constant.
	headArgs := r.structure[0].Args
	var bodySharedLVs []int
	var freeLVs []int
	var unboundIdx []int
	seenLVs := map[int]bool{}
	for i, a := range headArgs {
		switch {
		case a.IsVariable():
			lv := int(a.Decode())
			if seenLVs[lv] {
				continue
			}
			seenLVs[lv] = true
			if r.isHeadOnly(lv) {
				freeLVs = append(freeLVs, lv)
			} else if _, ok := frag.VarInfo[lv]; ok {
				bodySharedLVs = append(bodySharedLVs, lv)
			}
		case a.IsEmpty():
			unboundIdx = append(unboundIdx, i)
		}
	}

	existing := make(map[string]bool, len(r.head.Rows()))
	for _, row := range r.head.Rows() {
		existing[row.String()] = true
	}

	universe := r.head.ConstantUniverseSize()
	var out []kbdata.Record
	combos := frag.EnumerateCombinations(bodySharedLVs)
	for _, combo := range combos {
		row := make(kbdata.Record, len(headArgs))
		for i, a := range headArgs {
			switch {
			case a.IsConstant():
				row[i] = int32(a.Decode())
			case a.IsVariable():
				row[i] = combo[int(a.Decode())]
			}
		}
		for _, expanded := range expandFreeHeadArgs(row, headArgs, freeLVs, unboundIdx, universe) {
			if !existing[expanded.String()] {
				out = append(out, expanded)
			}
		}
	}
	return out
}

// expandFreeHeadArgs fans a head-row template out over every assignment of
// its unconstrained positions to a constant in [1, universe] (spec.md §4.4
// "counterexamples ... head UVs expanded over the full constant universe").
// Positions tied to the same head-only LV (e.g. both columns of h(X,X))
// always receive the same constant together; a template with no
// unconstrained positions expands to itself.
func expandFreeHeadArgs(template kbdata.Record, headArgs []argcode.Arg, freeLVs []int, unboundIdx []int, universe int64) []kbdata.Record {
	var axes [][]int
	for _, lv := range freeLVs {
		var positions []int
		for i, a := range headArgs {
			if a.IsVariable() && int(a.Decode()) == lv {
				positions = append(positions, i)
			}
		}
		axes = append(axes, positions)
	}
	for _, idx := range unboundIdx {
		axes = append(axes, []int{idx})
	}
	if len(axes) == 0 {
		return []kbdata.Record{append(kbdata.Record(nil), template...)}
	}

	var out []kbdata.Record
	var rec func(pos int, row kbdata.Record)
	rec = func(pos int, row kbdata.Record) {
		if pos == len(axes) {
			out = append(out, append(kbdata.Record(nil), row...))
			return
		}
		for c := int32(1); int64(c) <= universe; c++ {
			for _, p := range axes[pos] {
				row[p] = c
			}
			rec(pos+1, row)
		}
	}
	rec(0, append(kbdata.Record(nil), template...))
	return out
}
