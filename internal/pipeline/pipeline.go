// Package pipeline orchestrates one end-to-end compression run: load the
// KB, mine every target relation, run dependency analysis, dump the
// compressed result, and always emit the final report (spec.md §2 data
// flow, §5 interrupt contract, §7 error handling).
package pipeline

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/TramsWang/sinc-go/internal/cb"
	"github.com/TramsWang/sinc-go/internal/config"
	"github.com/TramsWang/sinc-go/internal/depgraph"
	"github.com/TramsWang/sinc-go/internal/kb"
	"github.com/TramsWang/sinc-go/internal/kbdata"
	"github.com/TramsWang/sinc-go/internal/miner"
	"github.com/TramsWang/sinc-go/internal/report"
	"github.com/TramsWang/sinc-go/internal/rule"
)

// Options bundles everything Run needs: the external I/O collaborators
// (Loader/Dumper), the validated config, and the ambient logging/metrics
// the rest of the module is built against.
type Options struct {
	Loader kb.Loader
	Dumper kb.Dumper
	Config config.Config
	Log    hclog.Logger
	Sink   metrics.MetricSink

	// ShouldContinue is polled between relations; nil means "never
	// interrupt" (spec.md §5 "interruption checkpoints").
	ShouldContinue func() bool
}

// Run executes one full compression pass and returns the final report.
// Configuration errors and KB load errors abort before any report is
// returned or emitted (spec.md §7: both happen before "as long as the KB
// loaded"). Every other failure category is logged and the run goes on to
// emit and return the final report.
func Run(opts Options) (*report.Report, error) {
	log := opts.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("pipeline")

	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if opts.Loader == nil {
		return nil, fmt.Errorf("pipeline: no KB loader configured")
	}
	if opts.ShouldContinue == nil {
		opts.ShouldContinue = func() bool { return true }
	}

	rep := report.New("kb")
	mon := report.NewMonitor(rep, log, opts.Sink)

	stopLoad := mon.StartPhase("load")
	kbase, err := opts.Loader.Load()
	if err != nil {
		return nil, fmt.Errorf("kb load error: %w", err)
	}
	stopLoad()

	pool := cb.NewPool(0)
	graph := depgraph.New()

	targets := kbase.Relations()
	if opts.Config.MaxRelations > 0 && len(targets) > opts.Config.MaxRelations {
		targets = targets[:opts.Config.MaxRelations]
	}

	var allRules []minedRule
	for _, target := range targets {
		stop := mon.StartPhase("mine:" + target.Name)
		m := miner.New(pool, kbase, target, opts.Config, graph, log)
		m.ShouldContinue = opts.ShouldContinue
		rules := m.Mine()
		stop()

		mon.RecordRelationMined(len(rules), countNewlyEntailed(rules))

		for _, r := range rules {
			allRules = append(allRules, minedRule{target: target, r: r})
		}

		if !opts.ShouldContinue() {
			mon.MarkInterrupted()
			log.Warn("interrupted, finalizing with partial results")
			break
		}
	}

	stopDeps := mon.StartPhase("dependency_analysis")
	result, fvsErr := runDependencyAnalysis(graph, kbase, log)
	stopDeps()
	if fvsErr != nil {
		log.Error("dependency analysis failed, skipping dump", "error", fvsErr)
	} else {
		result.NecessaryRecords = necessaryRecords(kbase)
		result.Counterexamples = counterexamples(allRules)
		result.Rules = renderRules(kbase, allRules)
		result.SupplementaryConstants = kb.ComputeSupplementaryConstants(kbase.ConstantUniverseSize(), ruleConstants(allRules), result)

		if opts.Dumper != nil {
			stopDump := mon.StartPhase("dump")
			dumpErr := opts.Dumper.Dump(kbase, result)
			stopDump()
			if dumpErr != nil {
				log.Error("dump failed, continuing to final report", "error", dumpErr)
			}
		}
	}

	mon.RecordPoolStats(pool)
	mon.Emit()
	return mon.Report(), nil
}

type minedRule struct {
	target *kb.Relation
	r      *rule.CachedRule
}

// countNewlyEntailed sums PosEtls over the rules mined for one relation.
// Each rule's PosEtls counts only head rows that were not yet entailed when
// it was evaluated, and the miner marks them before searching for the next
// rule, so the sum is the number of rows those rules newly entailed.
func countNewlyEntailed(rules []*rule.CachedRule) int {
	total := 0
	for _, r := range rules {
		total += int(r.Eval().PosEtls)
	}
	return total
}

// runDependencyAnalysis wraps Tarjan/FVS in a recover so an unexpected
// panic (a programming bug, per spec.md §7) degrades to "log and skip
// dump" instead of crashing the whole run.
func runDependencyAnalysis(graph *depgraph.Graph, kbase *kb.KB, log hclog.Logger) (result *kb.CompressedResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("dependency analysis panic: %v", rec)
		}
	}()

	rowIndex := buildRowIndex(kbase)
	fvsRecords := map[int32][]kbdata.Record{}
	for _, scc := range graph.Tarjan() {
		fvs := graph.MinimumFeedbackVertexSet(scc.Nodes)
		for _, id := range fvs {
			node := graph.Node(id)
			if rec, ok := rowIndex[node.Functor][node.Args]; ok {
				fvsRecords[node.Functor] = append(fvsRecords[node.Functor], rec)
			}
		}
	}
	return &kb.CompressedResult{FeedbackVertexRecords: fvsRecords}, nil
}

func buildRowIndex(kbase *kb.KB) map[int32]map[string]kbdata.Record {
	idx := make(map[int32]map[string]kbdata.Record)
	for _, r := range kbase.Relations() {
		byArgs := make(map[string]kbdata.Record, r.TotalRows())
		for _, row := range r.Rows() {
			byArgs[row.String()] = row
		}
		idx[r.Functor()] = byArgs
	}
	return idx
}

func necessaryRecords(kbase *kb.KB) map[int32][]kbdata.Record {
	out := map[int32][]kbdata.Record{}
	for _, r := range kbase.Relations() {
		if rows := r.NonEntailedRows(); len(rows) > 0 {
			out[r.Functor()] = rows
		}
	}
	return out
}

func counterexamples(rules []minedRule) map[int32][]kbdata.Record {
	out := map[int32][]kbdata.Record{}
	for _, mr := range rules {
		cegs := mr.r.Counterexamples()
		if len(cegs) == 0 {
			continue
		}
		out[mr.target.Functor()] = append(out[mr.target.Functor()], cegs...)
	}
	return out
}

func ruleConstants(rules []minedRule) []int32 {
	var out []int32
	for _, mr := range rules {
		for _, pred := range mr.r.Structure() {
			for _, a := range pred.Args {
				if a.IsConstant() {
					out = append(out, int32(a.Decode()))
				}
			}
		}
	}
	return out
}

// renderRules formats every mined rule as the `Head(...):-Body1(...),...`
// hypothesis grammar spec.md §6 defines, with LV ids renumbered densely
// from 0 in first-occurrence order per rule.
func renderRules(kbase *kb.KB, rules []minedRule) []kb.RuleRecord {
	names := make(map[int32]string, len(kbase.Relations()))
	for _, r := range kbase.Relations() {
		names[r.Functor()] = r.Name
	}

	out := make([]kb.RuleRecord, 0, len(rules))
	for _, mr := range rules {
		out = append(out, kb.RuleRecord{Text: renderRule(names, mr.r.Structure())})
	}
	return out
}

func renderRule(names map[int32]string, structure kbdata.Structure) string {
	dense := map[int]int{}
	nextID := 0
	denseID := func(lv int) int {
		if id, ok := dense[lv]; ok {
			return id
		}
		id := nextID
		dense[lv] = id
		nextID++
		return id
	}

	renderPred := func(p kbdata.Predicate) string {
		name := names[p.Functor]
		if name == "" {
			name = fmt.Sprintf("R%d", p.Functor)
		}
		s := name + "("
		for i, a := range p.Args {
			if i > 0 {
				s += ","
			}
			switch {
			case a.IsConstant():
				s += fmt.Sprintf("%d", a.Decode())
			case a.IsVariable():
				s += fmt.Sprintf("X%d", denseID(int(a.Decode())))
			default:
				s += "?"
			}
		}
		return s + ")"
	}

	text := renderPred(structure.Head()) + ":-"
	for i, p := range structure.Body() {
		if i > 0 {
			text += ","
		}
		text += renderPred(p)
	}
	return text
}
