package miner

import "github.com/TramsWang/sinc-go/internal/rule"

// topCandidates is the fixed-size slate of beam-width best candidates seen
// this iteration, replacing the weakest slot whenever a strictly better
// candidate arrives (spec.md §4.5 "top_candidates insertion/eviction: fill
// empty slots first, else replace the smallest-scoring slot if beaten").
type topCandidates struct {
	metricOrder rule.EvalMetric
	slots       []*rule.CachedRule
}

func newTopCandidates(width int) *topCandidates {
	if width < 1 {
		width = 1
	}
	return &topCandidates{slots: make([]*rule.CachedRule, 0, width)}
}

func (t *topCandidates) insert(cand *rule.CachedRule) {
	if len(t.slots) < cap(t.slots) {
		t.slots = append(t.slots, cand)
		return
	}
	// Find the weakest slot under CompressionRatio (the metric beam search
	// always uses for slate membership, independent of the configured
	// ranking metric used to pick the single best candidate).
	worstIdx := 0
	for i := 1; i < len(t.slots); i++ {
		if t.slots[i].Eval().CompRatio() < t.slots[worstIdx].Eval().CompRatio() {
			worstIdx = i
		}
	}
	if cand.Eval().CompRatio() > t.slots[worstIdx].Eval().CompRatio() {
		t.slots[worstIdx] = cand
	}
}

func (t *topCandidates) all() []*rule.CachedRule { return t.slots }

func (t *topCandidates) best(metric rule.EvalMetric) *rule.CachedRule {
	var best *rule.CachedRule
	for _, s := range t.slots {
		if best == nil || s.Eval().Better(best.Eval(), metric) {
			best = s
		}
	}
	return best
}
