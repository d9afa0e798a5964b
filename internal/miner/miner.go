// Package miner implements RelationMiner: the per-target-relation beam
// search over specialization/generalization moves (spec.md §4.5).
package miner

import (
	"github.com/hashicorp/go-hclog"

	"github.com/TramsWang/sinc-go/internal/cb"
	"github.com/TramsWang/sinc-go/internal/config"
	"github.com/TramsWang/sinc-go/internal/depgraph"
	"github.com/TramsWang/sinc-go/internal/kb"
	"github.com/TramsWang/sinc-go/internal/kbdata"
	"github.com/TramsWang/sinc-go/internal/rule"
)

// RelationMiner mines Horn rules for one target relation until its
// coverage is exhausted or no useful rule can be found (spec.md §4.5).
type RelationMiner struct {
	pool   *cb.Pool
	kbase  *kb.KB
	target *kb.Relation
	cfg    config.Config
	graph  *depgraph.Graph
	log    hclog.Logger

	// ShouldContinue is polled at each beam iteration and between
	// relations; the caller sets it to a closure reading an atomic flag
	// (spec.md §5 "interruption checkpoints").
	ShouldContinue func() bool
}

// New constructs a miner for target within kbase. A nil logger falls back
// to a discard logger, the way nomad's lower-level constructors tolerate a
// caller that hasn't wired one up yet.
func New(pool *cb.Pool, kbase *kb.KB, target *kb.Relation, cfg config.Config, graph *depgraph.Graph, log hclog.Logger) *RelationMiner {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &RelationMiner{pool: pool, kbase: kbase, target: target, cfg: cfg, graph: graph, log: log.Named("miner"), ShouldContinue: func() bool { return true }}
}

// Mine runs find_rule repeatedly, committing each useful rule (marking
// entailments and writing dependency edges) until coverage is exhausted,
// no useful rule is found, or the caller interrupts (spec.md §4.5 "After
// each accepted rule, mark entailments, write dependency edges, and
// resume with a fresh beam").
func (m *RelationMiner) Mine() []*rule.CachedRule {
	var accepted []*rule.CachedRule
	tabu := rule.NewTabuSets()
	for {
		if !m.ShouldContinue() {
			break
		}
		if len(m.target.NonEntailedRows()) == 0 {
			break
		}
		head := m.kbase.HeadView(m.target)
		start := rule.NewInitialRule(m.pool, head)
		fpCache := rule.NewFingerprintCache()

		best, ok := m.findRule(start, fpCache, tabu)
		if !ok {
			m.log.Debug("no useful rule found, stopping", "relation", m.target.Name)
			break
		}
		m.log.Info("rule committed", "relation", m.target.Name, "length", best.Length(),
			"comp_ratio", best.Eval().CompRatio(), "pos_etls", best.Eval().PosEtls)
		accepted = append(accepted, best)
		m.commit(best)
		if !m.ShouldContinue() {
			break
		}
	}
	return accepted
}

// commit marks entailments and writes the rule's dependency edges into the
// shared graph (spec.md §4.6).
func (m *RelationMiner) commit(r *rule.CachedRule) {
	r.EvidenceAndMarkEntailment()
	for _, e := range r.DependencyEdges() {
		head := depgraph.Node{Functor: m.target.Functor(), Args: e.HeadRow.String()}
		if e.IsAxiom {
			m.graph.AddEdge(head, depgraph.AxiomNode)
			continue
		}
		body := depgraph.Node{Functor: e.BodyFunctor, Args: e.BodyRow.String()}
		m.graph.AddEdge(head, body)
	}
}

// findRule is the beam search of spec.md §4.5's pseudocode.
func (m *RelationMiner) findRule(start *rule.CachedRule, fpCache *rule.FingerprintCache, tabu *rule.TabuSets) (*rule.CachedRule, bool) {
	beams := []*rule.CachedRule{start}
	var bestLocalOptimum *rule.CachedRule

	for {
		top := newTopCandidates(m.cfg.BeamWidth)

		for _, r := range beams {
			improved := false
			for _, cand := range m.specializationCandidates(r, fpCache, tabu) {
				if cand.Eval().Better(r.Eval(), m.cfg.EvalMetric) {
					top.insert(cand)
					improved = true
				}
			}
			for _, cand := range m.generalizationCandidates(r, fpCache, tabu) {
				if cand.Eval().Better(r.Eval(), m.cfg.EvalMetric) {
					top.insert(cand)
					improved = true
				}
			}
			if !improved && (bestLocalOptimum == nil || r.Eval().Better(bestLocalOptimum.Eval(), m.cfg.EvalMetric)) {
				bestLocalOptimum = r
			}
		}

		if !m.ShouldContinue() {
			return bestOf(beams, top.all(), m.cfg.EvalMetric)
		}

		bestCand := top.best(m.cfg.EvalMetric)
		if bestLocalOptimum != nil && (bestCand == nil || bestLocalOptimum.Eval().Value(m.cfg.EvalMetric) >= bestCand.Eval().Value(m.cfg.EvalMetric)) {
			if bestLocalOptimum.Eval().Useful() {
				return bestLocalOptimum, true
			}
			return nil, false
		}
		if bestCand == nil {
			return nil, false
		}
		if bestCand.Eval().CompRatio() >= m.cfg.StopCompressionRatio || bestCand.Eval().NegEtls == 0 {
			if bestCand.Eval().Useful() {
				return bestCand, true
			}
			return nil, false
		}
		beams = top.all()
	}
}

func bestOf(beams, candidates []*rule.CachedRule, metric rule.EvalMetric) (*rule.CachedRule, bool) {
	var best *rule.CachedRule
	for _, r := range append(append([]*rule.CachedRule{}, beams...), candidates...) {
		if best == nil || r.Eval().Better(best.Eval(), metric) {
			best = r
		}
	}
	if best == nil || !best.Eval().Useful() {
		return nil, false
	}
	return best, true
}

// slot is an (predIdx, argIdx) position in a rule's structure.
type slot struct{ predIdx, argIdx int }

func emptySlots(r *rule.CachedRule) []slot {
	var out []slot
	for i, pred := range r.Structure() {
		for j, a := range pred.Args {
			if a.IsEmpty() {
				out = append(out, slot{i, j})
			}
		}
	}
	return out
}

func existingLVs(r *rule.CachedRule) []int {
	seen := map[int]bool{}
	var out []int
	for _, pred := range r.Structure() {
		for _, a := range pred.Args {
			if a.IsVariable() {
				lv := int(a.Decode())
				if !seen[lv] {
					seen[lv] = true
					out = append(out, lv)
				}
			}
		}
	}
	return out
}

// specializationCandidates enumerates cases 1-5 in (pred_idx, arg_idx)
// ascending order for determinism (spec.md §5 "Ordering guarantees").
func (m *RelationMiner) specializationCandidates(r *rule.CachedRule, fpCache *rule.FingerprintCache, tabu *rule.TabuSets) []*rule.CachedRule {
	var out []*rule.CachedRule
	slots := emptySlots(r)
	lvs := existingLVs(r)

	for _, s := range slots {
		for _, lv := range lvs {
			clone, status := r.SpecializeCase1(s.predIdx, s.argIdx, lv, fpCache, tabu, m.cfg.MinFactCoverage)
			if status == rule.Normal {
				out = append(out, clone)
			}
		}
	}

	for _, rel := range m.kbase.Relations() {
		for col := 0; col < rel.Arity(); col++ {
			for _, lv := range lvs {
				clone, status := r.SpecializeCase2(rel.Functor(), rel.Arity(), col, lv, m.kbase, fpCache, tabu, m.cfg.MinFactCoverage)
				if status == rule.Normal {
					out = append(out, clone)
				}
			}
		}
	}

	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			if slots[i].predIdx == slots[j].predIdx && slots[i].argIdx == slots[j].argIdx {
				continue
			}
			clone, status := r.SpecializeCase3(slots[i].predIdx, slots[i].argIdx, slots[j].predIdx, slots[j].argIdx, fpCache, tabu, m.cfg.MinFactCoverage)
			if status == rule.Normal {
				out = append(out, clone)
			}
		}
	}

	for _, s := range slots {
		for _, rel := range m.kbase.Relations() {
			for col := 0; col < rel.Arity(); col++ {
				clone, status := r.SpecializeCase4(s.predIdx, s.argIdx, rel.Functor(), rel.Arity(), col, m.kbase, fpCache, tabu, m.cfg.MinFactCoverage)
				if status == rule.Normal {
					out = append(out, clone)
				}
			}
		}
	}

	for _, s := range slots {
		rows := m.predRows(r, s.predIdx)
		if len(rows) == 0 {
			continue
		}
		for _, c := range promisingConstants(rows, s.argIdx, m.cfg.MinConstantCoverage) {
			clone, status := r.SpecializeCase5(s.predIdx, s.argIdx, c, fpCache, tabu, m.cfg.MinFactCoverage)
			if status == rule.Normal {
				out = append(out, clone)
			}
		}
	}

	return out
}

func (m *RelationMiner) generalizationCandidates(r *rule.CachedRule, fpCache *rule.FingerprintCache, tabu *rule.TabuSets) []*rule.CachedRule {
	var out []*rule.CachedRule
	for i, pred := range r.Structure() {
		for j, a := range pred.Args {
			if a.IsEmpty() {
				continue
			}
			clone, status := r.Generalize(i, j, m.kbase, fpCache, tabu, m.cfg.MinFactCoverage)
			if status == rule.Normal {
				out = append(out, clone)
			}
		}
	}
	return out
}

// predRows returns the raw rows the promising-constant check for case-5
// candidates (promisingConstants) is computed against: the target relation
// itself for the head (predIdx 0), or the matching body relation otherwise.
func (m *RelationMiner) predRows(r *rule.CachedRule, predIdx int) []kbdata.Record {
	if predIdx == 0 {
		return m.target.Rows()
	}
	functor := r.Structure()[predIdx].Functor
	if rel := m.kbase.Relation(functor); rel != nil {
		return rel.Rows()
	}
	return nil
}

func promisingConstants(rows []kbdata.Record, col int, minCoverage float64) []int32 {
	if len(rows) == 0 {
		return nil
	}
	counts := map[int32]int{}
	for _, row := range rows {
		counts[row[col]]++
	}
	var out []int32
	threshold := minCoverage * float64(len(rows))
	for v, c := range counts {
		if float64(c) >= threshold {
			out = append(out, v)
		}
	}
	return out
}
