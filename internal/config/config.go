// Package config holds the mining run's tunables (spec.md §6 "Config
// options"). Flag/file parsing is deliberately out of scope here — it is
// an external collaborator's responsibility per spec.md §1 non-goals —
// but Config and its validation are the core's contract with that
// collaborator.
package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/TramsWang/sinc-go/internal/rule"
)

// Config is every option the mining core consumes (spec.md §6 table).
type Config struct {
	BeamWidth           int
	EvalMetric          rule.EvalMetric
	MinFactCoverage     float64
	MinConstantCoverage float64
	StopCompressionRatio float64
	MaxRelations        int
	Validation          bool
}

// Default returns the conservative defaults original_source/c++ ships
// with (beam width 1, compression-ratio ranking, no coverage floor beyond
// "must cover something", stop at perfect compression).
func Default() Config {
	return Config{
		BeamWidth:            1,
		EvalMetric:           rule.CompressionRatio,
		MinFactCoverage:      0.0,
		MinConstantCoverage:  0.25,
		StopCompressionRatio: 1.0,
		MaxRelations:         0,
		Validation:           false,
	}
}

// Validate checks every field is in its documented range, aggregating all
// violations with go-multierror the way nomad's agent config validation
// does (spec.md §7 "configuration errors are reported in aggregate, not
// one at a time").
func (c Config) Validate() error {
	var result *multierror.Error
	if c.BeamWidth < 1 {
		result = multierror.Append(result, fmt.Errorf("beamwidth must be >= 1, got %d", c.BeamWidth))
	}
	if c.MinFactCoverage < 0 || c.MinFactCoverage > 1 {
		result = multierror.Append(result, fmt.Errorf("min_fact_coverage must be in [0,1], got %f", c.MinFactCoverage))
	}
	if c.MinConstantCoverage < 0 || c.MinConstantCoverage > 1 {
		result = multierror.Append(result, fmt.Errorf("min_constant_coverage must be in [0,1], got %f", c.MinConstantCoverage))
	}
	if c.StopCompressionRatio <= 0 {
		result = multierror.Append(result, fmt.Errorf("stop_compression_ratio must be > 0, got %f", c.StopCompressionRatio))
	}
	if c.MaxRelations < 0 {
		result = multierror.Append(result, fmt.Errorf("max_relations must be >= 0, got %d", c.MaxRelations))
	}
	return result.ErrorOrNil()
}
