// Package kb holds the in-memory knowledge base: relations, their
// entailment bitsets, and the assembly of the compressed result (spec.md
// §3 data model, §4.7 supplementary constants). Binary KB file formats
// (spec.md §6) are explicitly out of scope here — Loader/Dumper are named
// seams for an external collaborator, not concrete codecs.
package kb

import (
	"fmt"

	"github.com/TramsWang/sinc-go/internal/kbdata"
)

// Relation is one named, arity-fixed table of the KB, with an idempotent
// per-row entailment bitset (spec.md §5 "Head relation entailment flags:
// bitset per relation; updated at rule commit time; each bit set at most
// once per fact").
type Relation struct {
	Name    string
	functor int32
	arity   int
	rows    []kbdata.Record
	entailed []bool
}

// NewRelation constructs a relation over rows, all initially non-entailed.
func NewRelation(name string, functor int32, arity int, rows []kbdata.Record) *Relation {
	return &Relation{Name: name, functor: functor, arity: arity, rows: rows, entailed: make([]bool, len(rows))}
}

func (r *Relation) Functor() int32         { return r.functor }
func (r *Relation) Arity() int             { return r.arity }
func (r *Relation) TotalRows() int         { return len(r.rows) }
func (r *Relation) Rows() []kbdata.Record  { return r.rows }
func (r *Relation) IsEntailed(i int) bool  { return r.entailed[i] }

// MarkEntailed sets row i's entailment bit, returning whether this call
// was the one that first set it (spec.md §5 "idempotent").
func (r *Relation) MarkEntailed(i int) bool {
	if r.entailed[i] {
		return false
	}
	r.entailed[i] = true
	return true
}

// NonEntailedRows returns the rows not yet covered by any committed rule.
func (r *Relation) NonEntailedRows() []kbdata.Record {
	var out []kbdata.Record
	for i, row := range r.rows {
		if !r.entailed[i] {
			out = append(out, row)
		}
	}
	return out
}

// KB is the full loaded knowledge base: every relation plus the global
// constant universe size the Eval formula needs (spec.md §4.4
// "all_etls ... |consts|^...").
type KB struct {
	relations  []*Relation
	byFunctor  map[int32]*Relation
	numConstants int64
}

// New constructs an empty KB with the given constant universe size.
func New(numConstants int64) *KB {
	return &KB{byFunctor: map[int32]*Relation{}, numConstants: numConstants}
}

// AddRelation registers rel under its functor id.
func (k *KB) AddRelation(rel *Relation) {
	k.relations = append(k.relations, rel)
	k.byFunctor[rel.functor] = rel
}

// Relations returns every relation, in load order.
func (k *KB) Relations() []*Relation { return k.relations }

// Relation looks up a relation by functor id.
func (k *KB) Relation(functor int32) *Relation { return k.byFunctor[functor] }

// ConstantUniverseSize returns |consts|, the global constant domain size.
func (k *KB) ConstantUniverseSize() int64 { return k.numConstants }

// RelationArity implements rule.RelationSource.
func (k *KB) RelationArity(functor int32) int {
	if r := k.byFunctor[functor]; r != nil {
		return r.Arity()
	}
	return 0
}

// RelationRows implements rule.RelationSource. Body predicates always see
// the relation's full row set, regardless of entailment (spec.md §4.4:
// entailment filtering only ever applies to the rule's own head).
func (k *KB) RelationRows(functor int32) []kbdata.Record {
	if r := k.byFunctor[functor]; r != nil {
		return r.Rows()
	}
	return nil
}

// headView adapts a *Relation + KB pair into rule.HeadRelation, which
// additionally needs the constant universe size.
type headView struct {
	*Relation
	kb *KB
}

func (h headView) ConstantUniverseSize() int64 { return h.kb.numConstants }

// HeadView returns rel as a rule.HeadRelation bound to this KB's constant
// universe.
func (k *KB) HeadView(rel *Relation) headView { return headView{Relation: rel, kb: k} }

// Loader reads a KB from external storage. Concrete implementations of the
// binary layout in spec.md §6 (Relations.tsv, <id>.rel, map<n>.tsv) belong
// to an external collaborator; this interface is the seam the pipeline
// depends on instead of a concrete format.
type Loader interface {
	Load() (*KB, error)
}

// Dumper writes a CompressedResult to external storage in the same layout
// family (plus .ceg/.hyp/.sup files), again deferred to an external
// collaborator.
type Dumper interface {
	Dump(kb *KB, result *CompressedResult) error
}

// RuleRecord is one committed rule, kept in a form suitable for the
// `.hyp` hypothesis file (spec.md §6): head/body predicates with their
// argument codes already resolved, so Dumper never needs to re-derive
// anything from CachedRule.
type RuleRecord struct {
	Text string // e.g. "Head(X0,2):-Body1(X0,?),Body2(2,X0)"
}

// CompressedResult is everything a Dumper needs to write the compressed
// KB: per-relation necessary records (rows kept verbatim because no rule
// entails them) and counterexamples, the dependency graph's FVS records,
// the mined hypothesis, and the supplementary constants (spec.md §4.6,
// §4.7).
type CompressedResult struct {
	NecessaryRecords      map[int32][]kbdata.Record
	FeedbackVertexRecords map[int32][]kbdata.Record
	Counterexamples       map[int32][]kbdata.Record
	Rules                 []RuleRecord
	SupplementaryConstants []int32
}

// ComputeSupplementaryConstants returns every constant id in [1, numConstants]
// that appears nowhere in necessary records, FVS records, counterexamples,
// or rule constants (spec.md §4.7).
func ComputeSupplementaryConstants(numConstants int64, ruleConstants []int32, result *CompressedResult) []int32 {
	seen := make(map[int32]bool, numConstants)
	mark := func(rows []kbdata.Record) {
		for _, row := range rows {
			for _, v := range row {
				seen[v] = true
			}
		}
	}
	for _, rows := range result.NecessaryRecords {
		mark(rows)
	}
	for _, rows := range result.FeedbackVertexRecords {
		mark(rows)
	}
	for _, rows := range result.Counterexamples {
		mark(rows)
	}
	for _, c := range ruleConstants {
		seen[c] = true
	}

	var out []int32
	for id := int32(1); int64(id) <= numConstants; id++ {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// Describe formats a quick relation-name/arity/row-count summary, mirroring
// the per-relation line of `Relations.tsv` (spec.md §6) without committing
// to its exact byte layout.
func (k *KB) Describe() string {
	out := ""
	for _, r := range k.relations {
		out += fmt.Sprintf("%s\t%d\t%d\n", r.Name, r.Arity(), r.TotalRows())
	}
	return out
}
