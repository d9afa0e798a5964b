package report

import (
	"testing"
	"time"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/require"

	"github.com/TramsWang/sinc-go/internal/cb"
	"github.com/TramsWang/sinc-go/internal/kbdata"
)

func TestMonitor_RecordsPhasesAndPoolStats(t *testing.T) {
	rep := New("test-kb")
	require.NotEmpty(t, rep.ID)

	sink := metrics.NewInmemSink(time.Minute, time.Hour)
	mon := NewMonitor(rep, nil, sink)

	stop := mon.StartPhase("load")
	stop()

	pool := cb.NewPool(0)
	pool.Create([]kbdata.Record{{1}}, 1)
	mon.RecordPoolStats(pool)

	mon.RecordRelationMined(2, 5)

	got := mon.Report()
	require.Len(t, got.Phases, 1)
	require.Equal(t, "load", got.Phases[0].Name)
	require.Equal(t, 2, got.RulesAccepted)
	require.Equal(t, 5, got.EntailmentsSet)
	require.Equal(t, 1, got.RelationsMined)
}

func TestPoolStat_HitRatio(t *testing.T) {
	require.Equal(t, 0.0, PoolStat{}.HitRatio())
	require.InDelta(t, 0.5, PoolStat{Invocations: 4, Hits: 2}.HitRatio(), 1e-9)
}
