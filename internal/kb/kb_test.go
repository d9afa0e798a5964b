package kb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TramsWang/sinc-go/internal/kbdata"
)

func TestRelation_MarkEntailedIdempotent(t *testing.T) {
	rel := NewRelation("R", 1, 2, []kbdata.Record{{1, 2}, {3, 4}})
	require.True(t, rel.MarkEntailed(0))
	require.False(t, rel.MarkEntailed(0))
	require.True(t, rel.IsEntailed(0))
	require.False(t, rel.IsEntailed(1))
	require.Equal(t, []kbdata.Record{{3, 4}}, rel.NonEntailedRows())
}

func TestComputeSupplementaryConstants(t *testing.T) {
	result := &CompressedResult{
		NecessaryRecords: map[int32][]kbdata.Record{1: {{1, 2}}},
	}
	sup := ComputeSupplementaryConstants(5, nil, result)
	require.Equal(t, []int32{3, 4, 5}, sup)
}

func TestKB_RelationSourceView(t *testing.T) {
	k := New(10)
	rel := NewRelation("R", 1, 2, []kbdata.Record{{1, 2}})
	k.AddRelation(rel)

	require.Equal(t, 2, k.RelationArity(1))
	require.Len(t, k.RelationRows(1), 1)

	head := k.HeadView(rel)
	require.EqualValues(t, 10, head.ConstantUniverseSize())
}
