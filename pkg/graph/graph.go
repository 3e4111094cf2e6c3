// Package graph implements the directed-graph and dominance utilities the
// SSA middle end is built on: a plain integer-indexed adjacency structure,
// depth-first search, and Cooper-Harvey-Kennedy dominance.
package graph

// Graph is a directed graph over integer node indices. Edges are kept as
// sets (map[int]struct{}) to stay duplicate-free and give O(1) add/remove,
// mirroring the std::set<int> adjacency used by the original control-flow
// graph this package is modeled on.
type Graph struct {
	nodeCount    int
	successors   []map[int]struct{}
	predecessors []map[int]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// AddNode appends a new node and returns its index.
func (g *Graph) AddNode() int {
	g.successors = append(g.successors, map[int]struct{}{})
	g.predecessors = append(g.predecessors, map[int]struct{}{})
	idx := g.nodeCount
	g.nodeCount++
	return idx
}

// AddEdge adds an edge from -> to. Both must be valid node indices.
func (g *Graph) AddEdge(from, to int) {
	g.successors[from][to] = struct{}{}
	g.predecessors[to][from] = struct{}{}
}

// RemoveEdge removes an edge from -> to, if present.
func (g *Graph) RemoveEdge(from, to int) {
	delete(g.successors[from], to)
	delete(g.predecessors[to], from)
}

// Reverse returns a new graph with every edge flipped.
func (g *Graph) Reverse() *Graph {
	r := &Graph{
		nodeCount:    g.nodeCount,
		successors:   make([]map[int]struct{}, g.nodeCount),
		predecessors: make([]map[int]struct{}, g.nodeCount),
	}
	for i := 0; i < g.nodeCount; i++ {
		r.successors[i] = g.predecessors[i]
		r.predecessors[i] = g.successors[i]
	}
	return r
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return g.nodeCount }

// Successors returns the sorted successor list of node u.
func (g *Graph) Successors(u int) []int { return sortedKeys(g.successors[u]) }

// Predecessors returns the sorted predecessor list of node u.
func (g *Graph) Predecessors(u int) []int { return sortedKeys(g.predecessors[u]) }

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	// insertion sort: adjacency lists here are always tiny (branch fan-out)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
