package rule

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-set/v3"
	"github.com/mitchellh/hashstructure"

	"github.com/TramsWang/sinc-go/internal/argcode"
)

// Fingerprint identifies a rule up to renaming of its limited variables:
// two structurally-identical rules that merely number their LVs
// differently must hash identically, so duplicate candidates generated
// along different specialization paths are recognized and pruned
// (spec.md §4.4, §8). Body predicates are hashed in the order they appear
// in the rule, and classes are numbered by first occurrence in that order,
// so two rules that list the same body atoms in a different order get
// different fingerprints.
//
// It is computed the way original_source/c++/src/rule/components.h's
// PredicateWithClass does: every predicate argument is replaced by the
// canonical index of its equivalence class (the set of slots sharing one
// LV), constants and empties pass through unchanged, and classes
// themselves are canonicalized by their sorted member-slot order so
// renaming the underlying LV ids never changes the fingerprint.
type Fingerprint uint64

// canonicalPredicate mirrors a Predicate but with each limited-variable
// argument rewritten to the canonical (first-occurrence-ordered) id of its
// equivalence class, so hashstructure.Hash is insensitive to the
// arbitrary LV numbering a rule happens to use internally.
type canonicalPredicate struct {
	Functor int32
	Args    []int64
}

// Compute derives the fingerprint of structure given its limited-variable
// occurrence map (LV id -> every slot it binds).
func Compute(structure []canonicalizable, limitedVarArgs map[int][]SlotRef) (Fingerprint, error) {
	classOf := canonicalClassAssignment(limitedVarArgs)

	preds := make([]canonicalPredicate, len(structure))
	for i, p := range structure {
		args := make([]int64, len(p.args()))
		for j, a := range p.args() {
			switch {
			case a.IsVariable():
				args[j] = int64(classOf[int(a.Decode())]) + 2 // shift so it never collides with sentinels below
			case a.IsConstant():
				args[j] = -int64(a.Decode()) - 1_000_000_000 // constants are never equal to a class id or empty sentinel
			default:
				args[j] = -1 // empty
			}
		}
		preds[i] = canonicalPredicate{Functor: p.functor(), Args: args}
	}

	h, err := hashstructure.Hash(preds, nil)
	if err != nil {
		return 0, err
	}
	return Fingerprint(h), nil
}

// canonicalizable is the minimal view Compute needs of a rule's
// predicates; kept separate from kbdata.Predicate so this package does not
// need to import kbdata just to re-expose Functor/Args.
type canonicalizable interface {
	functor() int32
	args() []argcode.Arg
}

// canonicalClassAssignment assigns each LV id a canonical class id 0..n-1,
// ordered by the (predIdx, argIdx) of each class's first (i.e. smallest)
// occurrence, so two renamings of the same variable set produce the same
// assignment.
func canonicalClassAssignment(limitedVarArgs map[int][]SlotRef) map[int]int {
	type firstOcc struct {
		lv   int
		slot SlotRef
	}
	firsts := make([]firstOcc, 0, len(limitedVarArgs))
	for lv, slots := range limitedVarArgs {
		min := slots[0]
		for _, s := range slots[1:] {
			if s.Less(min) {
				min = s
			}
		}
		firsts = append(firsts, firstOcc{lv: lv, slot: min})
	}
	sort.Slice(firsts, func(i, j int) bool { return firsts[i].slot.Less(firsts[j].slot) })

	out := make(map[int]int, len(firsts))
	for i, f := range firsts {
		out[f.lv] = i
	}
	return out
}

// SlotRef locates one occurrence of a variable within a rule's structure:
// the index of the predicate (0 = head) and the argument position within
// it.
type SlotRef struct {
	PredIdx int
	ArgIdx  int
}

// Less orders slots by predicate index then argument index, the
// deterministic (pred_idx, arg_idx) ascending order spec.md §5 requires
// for reproducible candidate enumeration.
func (s SlotRef) Less(other SlotRef) bool {
	if s.PredIdx != other.PredIdx {
		return s.PredIdx < other.PredIdx
	}
	return s.ArgIdx < other.ArgIdx
}

// TabuCategory is the key tabu sets are partitioned by: the sorted
// multiset of body-predicate functors (spec.md §4.4 "tabu sets keyed by
// body functor multi-sets").
func TabuCategory(bodyFunctors []int32) string {
	sorted := append([]int32(nil), bodyFunctors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := make([]byte, 0, len(sorted)*5)
	for _, f := range sorted {
		out = append(out, byte(f), byte(f>>8), byte(f>>16), byte(f>>24), '|')
	}
	return string(out)
}

// argClass is the equivalence class of one predicate argument: the multiset
// of indicators of every slot that argument is tied to. Constants get a
// singleton class of their own value; a limited variable's class is the
// multiset of every (functor, arg position) pair the variable occurs at
// across the whole rule. Two slots generalize/match when their classes are
// comparable as multisets, independent of which concrete LV id was used to
// build them (ground in original_source/c++'s ArgIndicator-keyed MultiSet,
// src/util/util.cpp `MultiSet<T>::subsetOf`).
type argClass struct {
	members map[string]int
}

func newArgClass() *argClass { return &argClass{members: map[string]int{}} }

func (c *argClass) add(indicator string) { c.members[indicator]++ }

// subsetOf is the MultiSet count-based containment check: every indicator
// in c occurs in other at least as many times.
func (c *argClass) subsetOf(other *argClass) bool {
	if len(c.members) > len(other.members) {
		return false
	}
	for k, n := range c.members {
		if other.members[k] < n {
			return false
		}
	}
	return true
}

func variableIndicator(functor int32, argIdx int) string {
	return fmt.Sprintf("v:%d:%d", functor, argIdx)
}

func constantIndicator(c int32) string {
	return fmt.Sprintf("c:%d", c)
}

// classedPredicate is one predicate with its per-argument equivalence
// classes attached; a nil class marks an empty (unbound) argument.
type classedPredicate struct {
	Functor int32
	Arity   int
	Classes []*argClass
}

// Signature is a cross-rule-comparable structural description of a rule:
// unlike Fingerprint (a hash, only useful for detecting an exact duplicate
// of the same rule under a different LV numbering), a Signature supports
// Generalizes, which compares two *different* rules' structures (spec.md
// §3 "generalization_of(other) holds when...").
type Signature struct {
	Head classedPredicate
	Body []classedPredicate
}

// computeSignature builds structure's Signature from its limited-variable
// occurrence map, mirroring components.cpp's Fingerprint constructor.
func computeSignature(structure []canonicalizable, limitedVarArgs map[int][]SlotRef) Signature {
	classFor := make(map[int]*argClass, len(limitedVarArgs))
	for lv, slots := range limitedVarArgs {
		cls := newArgClass()
		for _, s := range slots {
			cls.add(variableIndicator(structure[s.PredIdx].functor(), s.ArgIdx))
		}
		classFor[lv] = cls
	}

	build := func(p canonicalizable) classedPredicate {
		args := p.args()
		classes := make([]*argClass, len(args))
		for j, a := range args {
			switch {
			case a.IsVariable():
				classes[j] = classFor[int(a.Decode())]
			case a.IsConstant():
				cls := newArgClass()
				cls.add(constantIndicator(int32(a.Decode())))
				classes[j] = cls
			}
		}
		return classedPredicate{Functor: p.functor(), Arity: len(args), Classes: classes}
	}

	sig := Signature{Head: build(structure[0])}
	for _, p := range structure[1:] {
		sig.Body = append(sig.Body, build(p))
	}
	return sig
}

// predicateGeneralizes reports whether a generalizes b: same functor and
// arity, and every non-empty class of a is a subset of the corresponding
// class of b. An empty slot in a imposes no constraint.
func predicateGeneralizes(a, b classedPredicate) bool {
	if a.Functor != b.Functor || a.Arity != b.Arity {
		return false
	}
	for i, ac := range a.Classes {
		if ac == nil {
			continue
		}
		bc := b.Classes[i]
		if bc == nil || !ac.subsetOf(bc) {
			return false
		}
	}
	return true
}

// headSelfLoop reports whether an arity-2 head ties both its arguments to
// the same variable (e.g. h(X0,X0)).
func headSelfLoop(p classedPredicate) bool {
	if p.Arity != 2 || p.Classes[0] == nil || p.Classes[1] == nil {
		return false
	}
	return p.Classes[0] == p.Classes[1]
}

// Generalizes reports whether sig generalizes other: sig has no more body
// predicates, sig's head generalizes other's head (with the arity-2
// self-loop special case kept consistent both ways), and every body
// predicate of sig is matched by some not-yet-used body predicate of other
// that it generalizes (spec.md §3 "generalization_of(other) holds when...").
func (sig Signature) Generalizes(other Signature) bool {
	if len(sig.Body) > len(other.Body) {
		return false
	}
	if !predicateGeneralizes(sig.Head, other.Head) {
		return false
	}
	if sig.Head.Arity == 2 && headSelfLoop(sig.Head) != headSelfLoop(other.Head) {
		return false
	}

	used := make([]bool, len(other.Body))
	for _, ap := range sig.Body {
		matched := false
		for j, bp := range other.Body {
			if used[j] {
				continue
			}
			if predicateGeneralizes(ap, bp) {
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// TabuSets is a per-relation-miner registry of pruned rule signatures,
// keyed by TabuCategory (spec.md §5 "Fingerprint cache and tabu map: per-
// relation-miner").
type TabuSets struct {
	byCategory map[string][]Signature
}

// NewTabuSets constructs an empty registry.
func NewTabuSets() *TabuSets {
	return &TabuSets{byCategory: make(map[string][]Signature)}
}

// Generalizes reports whether any previously tabu-pruned signature
// generalizes candidate, checking not only candidate's own exact category
// but every subset of bodyFunctors up to the current size (spec.md §4.4
// step (v): "a generalization relation triggers prune" against any subset
// of body functors up to the current size, since a coarser, previously
// pruned rule can still generalize a larger candidate).
func (t *TabuSets) Generalizes(bodyFunctors []int32, candidate Signature) bool {
	for _, category := range subsetCategories(bodyFunctors) {
		for _, sig := range t.byCategory[category] {
			if sig.Generalizes(candidate) {
				return true
			}
		}
	}
	return false
}

// Add records sig as pruned within category.
func (t *TabuSets) Add(category string, sig Signature) {
	t.byCategory[category] = append(t.byCategory[category], sig)
}

// subsetCategories enumerates the TabuCategory of every sub-multiset of
// bodyFunctors (including the empty one), deduplicated.
func subsetCategories(bodyFunctors []int32) []string {
	n := len(bodyFunctors)
	seen := map[string]bool{}
	var out []string
	for mask := 0; mask < (1 << uint(n)); mask++ {
		var sub []int32
		for i := 0; i < n; i++ {
			if mask&(1<<uint(i)) != 0 {
				sub = append(sub, bodyFunctors[i])
			}
		}
		cat := TabuCategory(sub)
		if !seen[cat] {
			seen[cat] = true
			out = append(out, cat)
		}
	}
	return out
}

// FingerprintCache deduplicates candidate rules within one find_rule
// search (the miner builds a fresh cache for every rule it searches for):
// a fingerprint present here has already been explored, regardless of
// tabu status (spec.md §4.4 "consult the fingerprint cache; duplicates
// return Duplicated").
type FingerprintCache struct {
	seen *set.Set[Fingerprint]
}

// NewFingerprintCache constructs an empty cache.
func NewFingerprintCache() *FingerprintCache {
	return &FingerprintCache{seen: set.New[Fingerprint](64)}
}

// CheckAndAdd reports whether fp was already present, and records it
// either way.
func (c *FingerprintCache) CheckAndAdd(fp Fingerprint) (duplicate bool) {
	duplicate = c.seen.Contains(fp)
	c.seen.Insert(fp)
	return duplicate
}
