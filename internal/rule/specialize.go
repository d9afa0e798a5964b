package rule

import (
	"github.com/TramsWang/sinc-go/internal/argcode"
	"github.com/TramsWang/sinc-go/internal/fragment"
	"github.com/TramsWang/sinc-go/internal/kbdata"
)

// RelationSource gives the rule package read-only access to a body
// relation's raw rows without depending on internal/kb, preserving the
// miner -> {rule, kb} dependency direction (spec.md §4.4 case 2/4 "extend
// pred_idx_to_tab_info ... create a new fragment of one table").
type RelationSource interface {
	RelationArity(functor int32) int
	RelationRows(functor int32) []kbdata.Record
}

// ensureAllCacheHead lazily seeds all_cache's head fragment (over every
// head row, entailed or not) the first time a specialization updates
// all_cache — all_cache starts empty per spec.md §4.4 "Initial rule".
func (r *CachedRule) ensureAllCacheHead(all *cacheState) {
	all.ensurePredicateCount(1)
	if all.predToFragment[0] >= 0 {
		return
	}
	blk := r.pool.Create(r.head.Rows(), r.head.Arity())
	headPred := kbdata.NewPredicate(r.structure[0].Functor, r.head.Arity())
	frag := fragment.New(r.pool, headPred, blk)
	all.fragments = append(all.fragments, frag)
	fragIdx := len(all.fragments) - 1
	all.predToFragment[0] = fragIdx
	all.predToTabIdx[0] = 0
}

// SpecializeCase1 binds an empty slot (predIdx, argIdx) of an existing
// predicate to lv, a variable already occurring elsewhere in the rule
// (spec.md §4.4 "specialize_case1").
func (r *CachedRule) SpecializeCase1(predIdx, argIdx int, lv int, fpCache *FingerprintCache, tabu *TabuSets, minCoverage float64) (*CachedRule, UpdateStatus) {
	clone := r.Clone()
	clone.structure[predIdx].Args[argIdx] = argcode.Variable(uint32(lv))

	anchor := clone.limitedVarArgs[lv][0]

	pos := clone.obtainPosCache()
	pos.mergeInto(anchor.PredIdx, anchor.ArgIdx, predIdx, argIdx, lv)

	all := clone.obtainAllCache()
	clone.ensureAllCacheHead(all)
	if all.predToFragment[predIdx] >= 0 && all.predToFragment[anchor.PredIdx] >= 0 {
		all.mergeInto(anchor.PredIdx, anchor.ArgIdx, predIdx, argIdx, lv)
	}

	clone.recordSlot(lv, SlotRef{predIdx, argIdx})
	status := clone.applyResult(fpCache, tabu, minCoverage)
	return clone, status
}

// SpecializeCase2 appends a new body predicate over functor/arity, binding
// newArgIdx to lv, a variable already occurring in the rule (spec.md §4.4
// "specialize_case2").
func (r *CachedRule) SpecializeCase2(functor int32, arity, newArgIdx int, lv int, relations RelationSource, fpCache *FingerprintCache, tabu *TabuSets, minCoverage float64) (*CachedRule, UpdateStatus) {
	clone := r.Clone()
	newPred := kbdata.NewPredicate(functor, arity)
	newPred.Args[newArgIdx] = argcode.Variable(uint32(lv))
	predIdx := len(clone.structure)
	clone.structure = append(clone.structure, newPred)

	anchor := clone.limitedVarArgs[lv][0]
	rawRows := relations.RelationRows(functor)

	pos := clone.obtainPosCache()
	pos.ensurePredicateCount(predIdx + 1)
	posFragIdx := pos.predToFragment[anchor.PredIdx]
	posFrag := pos.fragments[posFragIdx]
	posFrag.AppendBindExisting(newPred.Clone(), clone.pool.Create(rawRows, arity), newArgIdx, lv)
	pos.predToFragment[predIdx] = posFragIdx
	pos.predToTabIdx[predIdx] = posFrag.NumTables() - 1

	all := clone.obtainAllCache()
	clone.ensureAllCacheHead(all)
	all.ensurePredicateCount(predIdx + 1)
	allFragIdx := all.predToFragment[anchor.PredIdx]
	if allFragIdx < 0 {
		allFragIdx = all.predToFragment[0]
	}
	allFrag := all.fragments[allFragIdx]
	allFrag.AppendBindExisting(newPred.Clone(), clone.pool.Create(rawRows, arity), newArgIdx, lv)
	all.predToFragment[predIdx] = allFragIdx
	all.predToTabIdx[predIdx] = allFrag.NumTables() - 1

	clone.recordSlot(lv, SlotRef{anchor.PredIdx, anchor.ArgIdx})
	clone.recordSlot(lv, SlotRef{predIdx, newArgIdx})
	status := clone.applyResult(fpCache, tabu, minCoverage)
	return clone, status
}

// SpecializeCase3 converts two empty slots, both already in the rule's
// structure, into a brand new LV (spec.md §4.4 "specialize_case3").
func (r *CachedRule) SpecializeCase3(predIdx1, argIdx1, predIdx2, argIdx2 int, fpCache *FingerprintCache, tabu *TabuSets, minCoverage float64) (*CachedRule, UpdateStatus) {
	clone := r.Clone()
	lv := clone.newLV()
	clone.structure[predIdx1].Args[argIdx1] = argcode.Variable(uint32(lv))
	clone.structure[predIdx2].Args[argIdx2] = argcode.Variable(uint32(lv))

	pos := clone.obtainPosCache()
	pos.mergeInto(predIdx1, argIdx1, predIdx2, argIdx2, lv)

	all := clone.obtainAllCache()
	clone.ensureAllCacheHead(all)
	if all.predToFragment[predIdx1] >= 0 && all.predToFragment[predIdx2] >= 0 {
		all.mergeInto(predIdx1, argIdx1, predIdx2, argIdx2, lv)
	}

	clone.recordSlot(lv, SlotRef{predIdx1, argIdx1})
	clone.recordSlot(lv, SlotRef{predIdx2, argIdx2})
	status := clone.applyResult(fpCache, tabu, minCoverage)
	return clone, status
}

// SpecializeCase4 appends a new body predicate and creates a new LV
// spanning an existing (previously empty) slot and a column of the new
// relation (spec.md §4.4 "specialize_case4").
func (r *CachedRule) SpecializeCase4(existingPredIdx, existingArgIdx int, functor int32, arity, newArgIdx int, relations RelationSource, fpCache *FingerprintCache, tabu *TabuSets, minCoverage float64) (*CachedRule, UpdateStatus) {
	clone := r.Clone()
	lv := clone.newLV()
	clone.structure[existingPredIdx].Args[existingArgIdx] = argcode.Variable(uint32(lv))
	newPred := kbdata.NewPredicate(functor, arity)
	newPred.Args[newArgIdx] = argcode.Variable(uint32(lv))
	predIdx := len(clone.structure)
	clone.structure = append(clone.structure, newPred)

	rawRows := relations.RelationRows(functor)

	pos := clone.obtainPosCache()
	pos.ensurePredicateCount(predIdx + 1)
	posFragIdx := pos.predToFragment[existingPredIdx]
	posFrag := pos.fragments[posFragIdx]
	posFrag.AppendNewVar(pos.predToTabIdx[existingPredIdx], existingArgIdx, newPred.Clone(), clone.pool.Create(rawRows, arity), newArgIdx, lv)
	pos.predToFragment[predIdx] = posFragIdx
	pos.predToTabIdx[predIdx] = posFrag.NumTables() - 1

	all := clone.obtainAllCache()
	clone.ensureAllCacheHead(all)
	all.ensurePredicateCount(predIdx + 1)
	allFragIdx := all.predToFragment[existingPredIdx]
	if allFragIdx < 0 {
		allFragIdx = all.predToFragment[0]
	}
	allFrag := all.fragments[allFragIdx]
	allFrag.AppendNewVar(all.predToTabIdx[existingPredIdx], existingArgIdx, newPred.Clone(), clone.pool.Create(rawRows, arity), newArgIdx, lv)
	all.predToFragment[predIdx] = allFragIdx
	all.predToTabIdx[predIdx] = allFrag.NumTables() - 1

	clone.recordSlot(lv, SlotRef{existingPredIdx, existingArgIdx})
	clone.recordSlot(lv, SlotRef{predIdx, newArgIdx})
	status := clone.applyResult(fpCache, tabu, minCoverage)
	return clone, status
}

// SpecializeCase5 binds a slot to a constant (spec.md §4.4
// "specialize_case5" / §4.3 case 3).
func (r *CachedRule) SpecializeCase5(predIdx, argIdx int, constVal int32, fpCache *FingerprintCache, tabu *TabuSets, minCoverage float64) (*CachedRule, UpdateStatus) {
	clone := r.Clone()
	clone.structure[predIdx].Args[argIdx] = argcode.Constant(uint32(constVal))

	pos := clone.obtainPosCache()
	if fragIdx := pos.predToFragment[predIdx]; fragIdx >= 0 {
		pos.fragments[fragIdx].BindConstant(pos.predToTabIdx[predIdx], argIdx, constVal)
	}
	all := clone.obtainAllCache()
	clone.ensureAllCacheHead(all)
	if fragIdx := all.predToFragment[predIdx]; fragIdx >= 0 {
		all.fragments[fragIdx].BindConstant(all.predToTabIdx[predIdx], argIdx, constVal)
	}

	status := clone.applyResult(fpCache, tabu, minCoverage)
	return clone, status
}

// Generalize clears a previously bound slot back to empty. Unlike
// specialization, this cannot be expressed as an incremental fragment
// update (the fragment algebra only narrows), so it rebuilds both caches
// from scratch by replaying every remaining binding in structure order
// (spec.md §4.4 "generalize"; §4.5 "generalization move").
func (r *CachedRule) Generalize(predIdx, argIdx int, relations RelationSource, fpCache *FingerprintCache, tabu *TabuSets, minCoverage float64) (*CachedRule, UpdateStatus) {
	clone := r.Clone()
	arg := clone.structure[predIdx].Args[argIdx]
	if arg.IsVariable() {
		lv := int(arg.Decode())
		kept := clone.limitedVarArgs[lv][:0]
		for _, s := range clone.limitedVarArgs[lv] {
			if s.PredIdx != predIdx || s.ArgIdx != argIdx {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(clone.limitedVarArgs, lv)
		} else {
			clone.limitedVarArgs[lv] = kept
		}
	}
	clone.structure[predIdx].Args[argIdx] = argcode.Empty
	clone.fpComputed = false
	clone.sigComputed = false

	clone.rebuildCaches(relations)
	status := clone.applyResult(fpCache, tabu, minCoverage)
	return clone, status
}

// rebuildCaches regenerates pos_cache/all_cache from the current structure
// and limitedVarArgs by replaying each predicate's bindings in order.
func (r *CachedRule) rebuildCaches(relations RelationSource) {
	r.posCache = r.replay(r.nonEntailedHeadRows(), relations)
	r.posCacheOwned = true
	r.allCache = r.replay(r.head.Rows(), relations)
	r.allCacheOwned = true
}

func (r *CachedRule) nonEntailedHeadRows() []kbdata.Record {
	var out []kbdata.Record
	for i, row := range r.head.Rows() {
		if !r.head.IsEntailed(i) {
			out = append(out, row)
		}
	}
	return out
}

type lvHome struct{ fragIdx, tabIdx, argIdx int }

// replay rebuilds one cache from nothing given headRows as the seed for
// predicate 0; every other predicate's raw rows are re-fetched by functor
// from relations (the rule itself does not retain raw body rows between
// beam iterations).
func (r *CachedRule) replay(headRows []kbdata.Record, relations RelationSource) *cacheState {
	n := len(r.structure)
	cache := newCacheState(n)
	homes := map[int]lvHome{}

	for i, pred := range r.structure {
		var rows []kbdata.Record
		var arity int
		if i == 0 {
			rows, arity = headRows, r.head.Arity()
		} else {
			rows, arity = relations.RelationRows(pred.Functor), relations.RelationArity(pred.Functor)
		}
		if len(rows) == 0 && i != 0 {
			cache.ensurePredicateCount(n)
			continue
		}

		blk := r.pool.Create(rows, arity)
		emptyPred := kbdata.NewPredicate(pred.Functor, arity)

		var anchors []struct {
			argIdx int
			lv     int
			home   lvHome
		}
		for argIdx, a := range pred.Args {
			if a.IsVariable() {
				if h, ok := homes[int(a.Decode())]; ok {
					anchors = append(anchors, struct {
						argIdx int
						lv     int
						home   lvHome
					}{argIdx, int(a.Decode()), h})
				}
			}
		}

		var fragIdx, tabIdx int
		if i == 0 || len(anchors) == 0 {
			f := fragment.New(r.pool, emptyPred, blk)
			cache.fragments = append(cache.fragments, f)
			fragIdx = len(cache.fragments) - 1
			tabIdx = 0
		} else {
			first := anchors[0]
			f := cache.fragments[first.home.fragIdx]
			f.AppendBindExisting(emptyPred.Clone(), blk, first.argIdx, first.lv)
			fragIdx = first.home.fragIdx
			tabIdx = f.NumTables() - 1
			for _, anc := range anchors[1:] {
				if anc.home.fragIdx == fragIdx {
					f.BindExistingVar(tabIdx, anc.argIdx, anc.lv)
				} else {
					offset := f.NumTables()
					other := cache.fragments[anc.home.fragIdx]
					f.Merge(other, tabIdx, anc.argIdx, anc.home.tabIdx, anc.home.argIdx, anc.lv)
					for _, predIdx := range cache.predsInFragment(anc.home.fragIdx) {
						cache.predToFragment[predIdx] = fragIdx
						cache.predToTabIdx[predIdx] = cache.predToTabIdx[predIdx] + offset
					}
				}
			}
		}

		for argIdx, a := range pred.Args {
			if a.IsConstant() {
				cache.fragments[fragIdx].BindConstant(tabIdx, argIdx, int32(a.Decode()))
			} else if a.IsVariable() {
				lv := int(a.Decode())
				if _, ok := homes[lv]; !ok {
					cache.fragments[fragIdx].BindExistingVar(tabIdx, argIdx, lv)
					homes[lv] = lvHome{fragIdx, tabIdx, argIdx}
				}
			}
		}

		cache.ensurePredicateCount(i + 1)
		cache.predToFragment[i] = fragIdx
		cache.predToTabIdx[i] = tabIdx
	}
	return cache
}
