package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TramsWang/sinc-go/internal/config"
	"github.com/TramsWang/sinc-go/internal/kb"
	"github.com/TramsWang/sinc-go/internal/kbdata"
)

type fakeLoader struct {
	kbase *kb.KB
	err   error
}

func (f *fakeLoader) Load() (*kb.KB, error) { return f.kbase, f.err }

type fakeDumper struct {
	dumped *kb.CompressedResult
	err    error
}

func (f *fakeDumper) Dump(k *kb.KB, result *kb.CompressedResult) error {
	f.dumped = result
	return f.err
}

func TestRun_ConfigErrorAbortsBeforeLoad(t *testing.T) {
	cfg := config.Default()
	cfg.BeamWidth = 0

	_, err := Run(Options{Loader: &fakeLoader{}, Config: cfg})
	require.Error(t, err)
}

func TestRun_LoadErrorSurfaced(t *testing.T) {
	_, err := Run(Options{Loader: &fakeLoader{err: require.AnError}, Config: config.Default()})
	require.Error(t, err)
}

func TestRun_EndToEnd_MinesAndDumps(t *testing.T) {
	kbase := kb.New(4)
	target := kb.NewRelation("R", 1, 2, []kbdata.Record{{1, 2}, {1, 3}, {1, 4}})
	kbase.AddRelation(target)

	cfg := config.Default()
	cfg.MinConstantCoverage = 1.0
	cfg.StopCompressionRatio = 0.1

	dumper := &fakeDumper{}
	rep, err := Run(Options{
		Loader: &fakeLoader{kbase: kbase},
		Dumper: dumper,
		Config: cfg,
	})
	require.NoError(t, err)
	require.NotNil(t, rep)
	require.Equal(t, 1, rep.RelationsMined)
	require.NotEmpty(t, rep.Phases)
	require.NotNil(t, dumper.dumped)
	require.NotEmpty(t, dumper.dumped.Rules)
}
