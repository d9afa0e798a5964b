package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_AggregatesErrors(t *testing.T) {
	c := Default()
	c.BeamWidth = 0
	c.MinFactCoverage = 2
	c.StopCompressionRatio = -1

	err := c.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "beamwidth")
	require.Contains(t, err.Error(), "min_fact_coverage")
	require.Contains(t, err.Error(), "stop_compression_ratio")
}
