package miner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TramsWang/sinc-go/internal/cb"
	"github.com/TramsWang/sinc-go/internal/config"
	"github.com/TramsWang/sinc-go/internal/depgraph"
	"github.com/TramsWang/sinc-go/internal/kb"
	"github.com/TramsWang/sinc-go/internal/kbdata"
)

func TestPromisingConstants_ThresholdsByCoverage(t *testing.T) {
	rows := []kbdata.Record{{1, 2}, {1, 3}, {5, 9}}
	got := promisingConstants(rows, 0, 0.5)
	require.Equal(t, []int32{1}, got)

	require.Empty(t, promisingConstants(rows, 0, 0.9))
}

func TestMine_FindsConstantBindingRule(t *testing.T) {
	pool := cb.NewPool(0)
	kbase := kb.New(4)
	target := kb.NewRelation("R", 1, 2, []kbdata.Record{{1, 2}, {1, 3}, {1, 4}})
	kbase.AddRelation(target)

	cfg := config.Default()
	cfg.MinConstantCoverage = 1.0
	cfg.StopCompressionRatio = 0.1

	graph := depgraph.New()
	m := New(pool, kbase, target, cfg, graph, nil)

	rules := m.Mine()
	require.NotEmpty(t, rules)
	require.True(t, rules[0].Eval().Useful())
	require.Len(t, target.NonEntailedRows(), 0)
}

func TestMine_NoUsefulRuleReturnsEmpty(t *testing.T) {
	pool := cb.NewPool(0)
	kbase := kb.New(10)
	target := kb.NewRelation("R", 1, 2, []kbdata.Record{{1, 2}, {3, 4}, {5, 6}})
	kbase.AddRelation(target)

	cfg := config.Default()
	cfg.MinConstantCoverage = 1.0 // no column is constant across all three rows

	graph := depgraph.New()
	m := New(pool, kbase, target, cfg, graph, nil)

	rules := m.Mine()
	require.Empty(t, rules)
}
