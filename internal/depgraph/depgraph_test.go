package depgraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func node(f int32, args string) Node { return Node{Functor: f, Args: args} }

func TestTarjan_FindsCycle(t *testing.T) {
	g := New()
	a, b, c := node(1, "a"), node(1, "b"), node(1, "c")
	g.AddEdge(a, b)
	g.AddEdge(b, c)
	g.AddEdge(c, a)
	g.AddEdge(a, node(2, "isolated"))

	sccs := g.Tarjan()
	require.Len(t, sccs, 1)
	require.Len(t, sccs[0].Nodes, 3)
}

func TestTarjan_SelfLoopIsNonTrivial(t *testing.T) {
	g := New()
	a := node(1, "a")
	g.AddEdge(a, a)

	sccs := g.Tarjan()
	require.Len(t, sccs, 1)
	require.Len(t, sccs[0].Nodes, 1)
}

func TestMinimumFeedbackVertexSet_BreaksCycle(t *testing.T) {
	g := New()
	a, b, c := node(1, "a"), node(1, "b"), node(1, "c")
	g.AddEdge(a, b)
	g.AddEdge(b, c)
	g.AddEdge(c, a)

	scc := g.Tarjan()[0]
	fvs := g.MinimumFeedbackVertexSet(scc.Nodes)
	require.NotEmpty(t, fvs)

	remaining := map[int]bool{}
	for _, n := range scc.Nodes {
		remaining[n] = true
	}
	for _, n := range fvs {
		delete(remaining, n)
	}
	ids := make([]int, 0, len(remaining))
	for n := range remaining {
		ids = append(ids, n)
	}
	sub := New()
	for _, n := range ids {
		for w := range g.edges[n] {
			if remaining[w] {
				sub.AddEdge(g.Node(n), g.Node(w))
			}
		}
	}
	require.Empty(t, sub.Tarjan())
	require.True(t, len(fvs) <= len(scc.Nodes))
	require.LessOrEqual(t, len(ids), len(scc.Nodes))
}
