package graph

// DFSResult holds the outcome of a depth-first walk of a Graph starting
// from a single root: which nodes were reached, and their preorder and
// postorder numbering. The dominance computation below needs the
// postorder (to build a reverse-postorder numbering for the CHK finger
// walk); other passes use Preorder for dominator-tree-ordered renaming.
type DFSResult struct {
	Visited   []bool
	Preorder  []int
	Postorder []int
}

// DepthFirstSearch walks g from root, recording visitation order. Nodes
// unreachable from root are left with Visited[n] == false and do not
// appear in either order slice.
func DepthFirstSearch(g *Graph, root int) DFSResult {
	result := DFSResult{Visited: make([]bool, g.NodeCount())}
	var visit func(int)
	visit = func(u int) {
		result.Visited[u] = true
		result.Preorder = append(result.Preorder, u)
		for _, v := range g.Successors(u) {
			if !result.Visited[v] {
				visit(v)
			}
		}
		result.Postorder = append(result.Postorder, u)
	}
	visit(root)
	return result
}

// ReversePostorder returns nodes reachable from root ordered so that each
// node precedes all of its successors whenever the graph is acyclic along
// that path; used to seed the dominance finger-walk's node numbering.
func ReversePostorder(g *Graph, root int) []int {
	post := DepthFirstSearch(g, root).Postorder
	rpo := make([]int, len(post))
	for i, n := range post {
		rpo[len(post)-1-i] = n
	}
	return rpo
}
