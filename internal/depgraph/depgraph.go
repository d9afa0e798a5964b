// Package depgraph builds the grounded-predicate dependency graph that
// rule commits write into, and runs Tarjan's SCC algorithm plus a minimum
// feedback vertex set heuristic over it (spec.md §4.6).
package depgraph

import "sort"

// Node identifies one grounded predicate: a relation functor together with
// the exact argument tuple (spec.md §4.6 "grounded_predicate").
type Node struct {
	Functor int32
	Args    string // a stable, pre-formatted tuple key (e.g. kbdata.Record.String())
}

// Graph is a shared, append-only registry of grounded-predicate edges:
// each accepted rule contributes "every grounded head depends on every
// grounded body atom that proved it" edges (spec.md §5 "Dependency graph
// and predicate->node map: shared across relation miners; each miner
// appends edges through a single owner reference").
type Graph struct {
	ids    map[Node]int
	nodes  []Node
	edges  []map[int]bool // edges[i] = set of j such that i -> j
	redges []map[int]bool
}

// New constructs an empty graph.
func New() *Graph {
	return &Graph{ids: map[Node]int{}}
}

// AxiomNode is the synthetic sink every body-less rule's grounded head rows
// depend on (spec.md §3 "a synthetic axiom node absorbs edges from
// single-literal rules"). A rule with no body predicates is unconditionally
// true for every row it entails, so those rows depend on nothing but this
// shared node rather than on any real grounded predicate.
var AxiomNode = Node{Functor: -1, Args: "⊥"}

func (g *Graph) nodeID(n Node) int {
	if id, ok := g.ids[n]; ok {
		return id
	}
	id := len(g.nodes)
	g.ids[n] = id
	g.nodes = append(g.nodes, n)
	g.edges = append(g.edges, map[int]bool{})
	g.redges = append(g.redges, map[int]bool{})
	return id
}

// AddEdge records that head depends on body (head's entailment rests on
// body's existence).
func (g *Graph) AddEdge(head, body Node) {
	hi, bi := g.nodeID(head), g.nodeID(body)
	g.edges[hi][bi] = true
	g.redges[bi][hi] = true
}

// NumNodes returns the number of grounded predicates registered so far.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Node returns the grounded predicate for id.
func (g *Graph) Node(id int) Node { return g.nodes[id] }

// SCC is one strongly connected component, large enough to matter for
// dependency cycles: size >= 2, or size 1 with a self-loop (spec.md §4.6,
// §9 Open Question: "a size-1 SCC only counts if the node has a self-loop
// — decided by following the literal Tarjan definition of non-trivial
// SCC, which excludes isolated single nodes without self-loops").
type SCC struct {
	Nodes []int
}

// Tarjan returns every non-trivial SCC of the graph.
func (g *Graph) Tarjan() []SCC {
	n := len(g.nodes)
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	var sccs []SCC
	counter := 0

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		neighbors := make([]int, 0, len(g.edges[v]))
		for w := range g.edges[v] {
			neighbors = append(neighbors, w)
		}
		sort.Ints(neighbors)
		for _, w := range neighbors {
			if index[w] == -1 {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			if len(comp) >= 2 || (len(comp) == 1 && g.edges[comp[0]][comp[0]]) {
				sort.Ints(comp)
				sccs = append(sccs, SCC{Nodes: comp})
			}
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == -1 {
			strongconnect(v)
		}
	}
	return sccs
}

// MinimumFeedbackVertexSet runs the heuristic spec.md §4.6 describes over
// the subgraph induced by nodes: repeatedly pick the node maximizing
// in_degree * out_degree, add it to the cover, remove its edges, and
// cascade-remove nodes left with zero in- or out-degree, until no edges
// remain.
func (g *Graph) MinimumFeedbackVertexSet(nodes []int) []int {
	alive := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		alive[n] = true
	}
	out := make(map[int]map[int]bool, len(nodes))
	in := make(map[int]map[int]bool, len(nodes))
	for _, n := range nodes {
		out[n] = map[int]bool{}
		in[n] = map[int]bool{}
	}
	for _, n := range nodes {
		for w := range g.edges[n] {
			if alive[w] {
				out[n][w] = true
				in[w][n] = true
			}
		}
	}

	edgeCount := func() int {
		c := 0
		for _, m := range out {
			c += len(m)
		}
		return c
	}

	var cover []int
	cascade := func() {
		changed := true
		for changed {
			changed = false
			for n := range alive {
				if len(in[n]) == 0 || len(out[n]) == 0 {
					removeNode(n, alive, in, out)
					changed = true
				}
			}
		}
	}
	cascade()

	for edgeCount() > 0 {
		best, bestScore := -1, -1
		ids := make([]int, 0, len(alive))
		for n := range alive {
			ids = append(ids, n)
		}
		sort.Ints(ids)
		for _, n := range ids {
			score := len(in[n]) * len(out[n])
			if score > bestScore {
				best, bestScore = n, score
			}
		}
		if best == -1 {
			break
		}
		cover = append(cover, best)
		removeNode(best, alive, in, out)
		cascade()
	}
	sort.Ints(cover)
	return cover
}

func removeNode(n int, alive map[int]bool, in, out map[int]map[int]bool) {
	if !alive[n] {
		return
	}
	delete(alive, n)
	for w := range out[n] {
		delete(in[w], n)
	}
	for v := range in[n] {
		delete(out[v], n)
	}
	delete(out, n)
	delete(in, n)
}
