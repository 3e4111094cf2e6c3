package graph

// Dominance holds the immediate-dominator tree and dominance-frontier sets
// of a graph rooted at a single entry node, computed with the
// Cooper-Harvey-Kennedy (CHK) iterative algorithm: repeatedly intersect
// the idom of already-processed predecessors along a reverse-postorder
// numbering until no idom changes.
type Dominance struct {
	root   int
	rpoNum map[int]int // node -> position in reverse postorder (reachable nodes only)
	idom   []int       // idom[n] == n for root, -1 for unreachable
	df     [][]int     // dominance frontier sets, indexed by node
}

// Compute builds the dominance info for g rooted at root. Nodes
// unreachable from root are left with an idom of -1 and an empty frontier.
func Compute(g *Graph, root int) *Dominance {
	rpo := ReversePostorder(g, root)
	rpoNum := make(map[int]int, len(rpo))
	for i, n := range rpo {
		rpoNum[n] = i
	}

	idom := make([]int, g.NodeCount())
	for i := range idom {
		idom[i] = -1
	}
	idom[root] = root

	changed := true
	for changed {
		changed = false
		for _, n := range rpo {
			if n == root {
				continue
			}
			newIdom := -1
			for _, p := range g.Predecessors(n) {
				if idom[p] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p
					continue
				}
				newIdom = intersect(idom, rpoNum, newIdom, p)
			}
			if newIdom != -1 && idom[n] != newIdom {
				idom[n] = newIdom
				changed = true
			}
		}
	}

	df := make([][]int, g.NodeCount())
	for i := range df {
		df[i] = nil
	}
	dfSet := make([]map[int]struct{}, g.NodeCount())
	for i := range dfSet {
		dfSet[i] = map[int]struct{}{}
	}
	for _, n := range rpo {
		preds := g.Predecessors(n)
		if len(preds) < 2 {
			continue
		}
		for _, p := range preds {
			if idom[p] == -1 {
				continue
			}
			runner := p
			for runner != idom[n] {
				dfSet[runner][n] = struct{}{}
				runner = idom[runner]
			}
		}
	}
	for i := range dfSet {
		df[i] = sortedKeys(dfSet[i])
	}

	return &Dominance{root: root, rpoNum: rpoNum, idom: idom, df: df}
}

// finger walk: climb both fingers toward the root via idom links, always
// advancing whichever has the larger reverse-postorder number, until they
// meet at their common ancestor in the dominator tree.
func intersect(idom []int, rpoNum map[int]int, a, b int) int {
	for a != b {
		for rpoNum[a] > rpoNum[b] {
			a = idom[a]
		}
		for rpoNum[b] > rpoNum[a] {
			b = idom[b]
		}
	}
	return a
}

// Idom returns the immediate dominator of n, or -1 if n is unreachable
// from root or n is the root itself.
func (d *Dominance) Idom(n int) int {
	if n == d.root {
		return -1
	}
	return d.idom[n]
}

// Dominates reports whether a dominates b (a == b counts as dominating).
func (d *Dominance) Dominates(a, b int) bool {
	for n := b; n != -1; n = d.Idom(n) {
		if n == a {
			return true
		}
	}
	return false
}

// Frontier returns the dominance frontier of n: the set of nodes where
// n's dominance stops, i.e. nodes with a predecessor dominated by n but
// that are not themselves strictly dominated by n. This is exactly the
// set SSA construction uses to place phi nodes for definitions in n.
func (d *Dominance) Frontier(n int) []int { return d.df[n] }

// Reachable reports whether n was reached from root.
func (d *Dominance) Reachable(n int) bool { return n == d.root || d.idom[n] != -1 }
