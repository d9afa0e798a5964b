// Package rule implements CachedRule: a Horn rule together with the
// pos_cache/all_cache fragments that let it evaluate compression quality
// without rescanning the knowledge base (spec.md §4.4).
package rule

import "math"

// EvalMetric selects which score drives beam-search ranking (spec.md §6
// "eval_metric").
type EvalMetric int

const (
	CompressionRatio EvalMetric = iota
	CompressionCapacity
	InfoGain
)

func (m EvalMetric) String() string {
	switch m {
	case CompressionRatio:
		return "CompressionRatio"
	case CompressionCapacity:
		return "CompressionCapacity"
	case InfoGain:
		return "InfoGain"
	default:
		return "Unknown"
	}
}

// Eval is a rule's quality snapshot: how many head facts it entails, how
// many entailments (positive and negative) it produces overall, and how
// long the rule is, plus the three derived scores (spec.md §4.4
// "calculate_eval").
type Eval struct {
	PosEtls    float64
	NegEtls    float64
	AllEtls    float64
	RuleLength int

	compRatio    float64
	compCapacity float64
	infoGain     float64
}

// NewEval computes the three derived scores the way
// original_source/c++/src/rule/components.cpp does:
//
//	compRatio    = posEtls / (allEtls + ruleLength)   (0 if NaN)
//	compCapacity = posEtls - negEtls - ruleLength
//	infoGain     = posEtls * ln(1+compRatio), or -Inf when posEtls==0 or compRatio==0
func NewEval(posEtls, allEtls float64, ruleLength int) Eval {
	negEtls := allEtls - posEtls
	ratio := posEtls / (allEtls + float64(ruleLength))
	if math.IsNaN(ratio) {
		ratio = 0
	}
	capacity := posEtls - negEtls - float64(ruleLength)
	gain := math.Inf(-1)
	if posEtls != 0 && ratio != 0 {
		gain = posEtls * math.Log(1+ratio)
	}
	return Eval{
		PosEtls: posEtls, NegEtls: negEtls, AllEtls: allEtls, RuleLength: ruleLength,
		compRatio: ratio, compCapacity: capacity, infoGain: gain,
	}
}

// Value returns the score for the given metric.
func (e Eval) Value(metric EvalMetric) float64 {
	switch metric {
	case CompressionCapacity:
		return e.compCapacity
	case InfoGain:
		return e.infoGain
	default:
		return e.compRatio
	}
}

// CompRatio, CompCapacity and InfoGain expose the individual
// scores directly (used by the stop condition, which always checks
// compression ratio regardless of the configured ranking metric).
func (e Eval) CompRatio() float64    { return e.compRatio }
func (e Eval) CompCapacity() float64 { return e.compCapacity }
func (e Eval) InfoGain() float64     { return e.infoGain }

// Useful reports whether this rule is worth committing to the compressed
// KB: its entailments must pay for its own description length, i.e. its
// compression capacity is positive, mirroring
// original_source/c++/src/rule/components.cpp's Eval::useful
// (`0 < compCapacity`).
func (e Eval) Useful() bool { return e.compCapacity > 0 }

// Better reports whether e strictly beats other under metric — the
// ordering relation the beam search uses to pick its best candidate
// (spec.md §4.5). top_candidates admission and eviction compare
// compression ratio directly instead.
func (e Eval) Better(other Eval, metric EvalMetric) bool {
	return e.Value(metric) > other.Value(metric)
}
