// Package report builds the structured final report spec.md §7 requires
// ("a structured final report... is always emitted to the log file as long
// as the KB loaded"), broken down by phase and CB-pool operator the way
// original_source/c++'s PerformanceMonitor does (SPEC_FULL.md "SUPPLEMENTED
// FEATURES").
package report

import (
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	uuid "github.com/hashicorp/go-uuid"
	"github.com/hashicorp/go-version"

	"github.com/TramsWang/sinc-go/internal/cb"
)

// SchemaVersion stamps every report the way nomad stamps API responses with
// a version, so a consumer can tell which report shape it is parsing.
var SchemaVersion = version.Must(version.NewVersion("1.0.0"))

// PhaseTiming is one named phase's wall-clock duration (load, per-relation
// mining, dependency analysis, dump).
type PhaseTiming struct {
	Name     string
	Duration time.Duration
}

// PoolStat is a CB-pool operator's invocation/hit counts plus the derived
// hit ratio, flattened out of cb.Pool.Stats() for reporting.
type PoolStat struct {
	Operator    string
	Invocations int
	Hits        int
}

// HitRatio returns Hits/Invocations, or 0 when the operator was never
// invoked.
func (s PoolStat) HitRatio() float64 {
	if s.Invocations == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Invocations)
}

// Report is the run's final structured summary (spec.md §7: "times per
// phase, memory costs, cache hit ratios, counts of rules and entailments").
type Report struct {
	ID             string
	SchemaVersion  string
	KBName         string
	Phases         []PhaseTiming
	PoolStats      []PoolStat
	RelationsMined int
	RulesAccepted  int
	EntailmentsSet int
	Interrupted    bool
}

// New allocates a report with a fresh per-run id (spec.md §7 "a structured
// final report... is always emitted").
func New(kbName string) *Report {
	id, err := uuid.GenerateUUID()
	if err != nil {
		id = "unknown"
	}
	return &Report{ID: id, SchemaVersion: SchemaVersion.String(), KBName: kbName}
}

// Monitor accumulates phase timings and metrics emissions across a run,
// mirroring original_source/c++'s PerformanceMonitor (SPEC_FULL.md
// "SUPPLEMENTED FEATURES").
type Monitor struct {
	log    hclog.Logger
	sink   metrics.MetricSink
	report *Report
}

// NewMonitor wires a Monitor that reports into rep, logs via log (a nil
// logger falls back to discard), and emits go-metrics gauges/counters
// through sink (a nil sink uses an in-memory one, so tests never need a
// real metrics backend).
func NewMonitor(rep *Report, log hclog.Logger, sink metrics.MetricSink) *Monitor {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if sink == nil {
		sink = metrics.NewInmemSink(time.Minute, time.Hour)
	}
	return &Monitor{log: log.Named("report"), sink: sink, report: rep}
}

// StartPhase begins timing a named phase; the returned func records its
// duration on Stop and emits a MeasureSince-style metric.
func (m *Monitor) StartPhase(name string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		m.report.Phases = append(m.report.Phases, PhaseTiming{Name: name, Duration: d})
		m.sink.AddSample([]string{"hornminer", "phase", name, "seconds"}, float32(d.Seconds()))
		m.log.Info("phase complete", "phase", name, "duration", d)
	}
}

// RecordPoolStats flattens pool.Stats() into the report and emits a gauge
// per operator's hit ratio.
func (m *Monitor) RecordPoolStats(pool *cb.Pool) {
	for op, s := range pool.Stats() {
		ps := PoolStat{Operator: op, Invocations: s.Invocations, Hits: s.Hits}
		m.report.PoolStats = append(m.report.PoolStats, ps)
		m.sink.SetGauge([]string{"hornminer", "cbpool", op, "hit_ratio"}, float32(ps.HitRatio()))
	}
}

// RecordRelationMined increments the mined-relation and accepted-rule
// counters.
func (m *Monitor) RecordRelationMined(rulesAccepted, entailmentsSet int) {
	m.report.RelationsMined++
	m.report.RulesAccepted += rulesAccepted
	m.report.EntailmentsSet += entailmentsSet
	m.sink.IncrCounter([]string{"hornminer", "rules", "accepted"}, float32(rulesAccepted))
	m.sink.IncrCounter([]string{"hornminer", "entailments", "set"}, float32(entailmentsSet))
}

// MarkInterrupted records that the run ended via the interrupt contract
// rather than natural completion (spec.md §7 "Interrupt: normal control
// flow... the outer pipeline still runs... and emits the monitor").
func (m *Monitor) MarkInterrupted() {
	m.report.Interrupted = true
}

// Report returns the accumulated report.
func (m *Monitor) Report() *Report { return m.report }

// Emit logs the final report at Info, one structured line with every
// field as a key/value pair (SPEC_FULL.md ambient-stack logging section:
// "the final structured report is emitted via the logger at Info with
// key/value pairs, not a separate templating layer").
func (m *Monitor) Emit() {
	r := m.report
	kvs := []interface{}{
		"report_id", r.ID,
		"schema_version", r.SchemaVersion,
		"kb", r.KBName,
		"relations_mined", r.RelationsMined,
		"rules_accepted", r.RulesAccepted,
		"entailments_set", r.EntailmentsSet,
		"interrupted", r.Interrupted,
	}
	for _, p := range r.Phases {
		kvs = append(kvs, "phase_"+p.Name+"_seconds", p.Duration.Seconds())
	}
	for _, s := range r.PoolStats {
		kvs = append(kvs, "pool_"+s.Operator+"_hit_ratio", s.HitRatio())
	}
	m.log.Info("hornminer run complete", kvs...)
}
