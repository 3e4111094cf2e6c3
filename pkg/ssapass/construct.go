// Package ssapass implements the optimization and lowering passes that run
// over a ssa.Subroutine: minimal-SSA construction, dead-code elimination,
// copy propagation, sparse conditional constant propagation, out-of-SSA
// deconstruction, and graph-coloring register allocation.
package ssapass

import (
	"sort"

	"hackvm.dev/toolchain/pkg/graph"
	"hackvm.dev/toolchain/pkg/ssa"
)

// preVar is a pre-SSA variable definition/use site, keyed by source name
// (not yet an ssa.Argument), so the variable set can be known before any
// renaming has happened.
type preVar struct {
	name string
}

// ConstructInput bundles what Cytron-style SSA construction over Sub works
// from: a subroutine already partitioned into basic blocks, the source
// variable names, and for each variable the blocks that assign it. The
// construction steps are separate functions in this file (PhiPlacement for
// phi placement at iterated dominance frontiers, Renamer and
// DominatorTreeChildren for the renaming walk); there is no single entry
// point that runs them over a ConstructInput, and nothing in this repository
// builds one.
type ConstructInput struct {
	Sub       *ssa.Subroutine
	Variables []string
	// AssignedIn maps a variable name to the set of block labels that
	// contain at least one definition of it.
	AssignedIn map[string]map[uint32]bool
}

// PhiPlacement computes, for every variable, the set of blocks needing a
// phi per Cytron's algorithm: iterated dominance frontier of its
// definition blocks.
func PhiPlacement(sub *ssa.Subroutine, assignedIn map[string]map[uint32]bool) map[string]map[uint32]bool {
	dom := sub.Dominance()
	placement := map[string]map[uint32]bool{}

	for _, v := range sortedKeys(assignedIn) {
		defs := assignedIn[v]
		hasPhi := map[uint32]bool{}
		worklist := make([]uint32, 0, len(defs))
		for b := range defs {
			worklist = append(worklist, b)
		}
		for len(worklist) > 0 {
			x := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, y := range dom.Frontier(int(x)) {
				yy := uint32(y)
				if hasPhi[yy] {
					continue
				}
				hasPhi[yy] = true
				if !defs[yy] {
					worklist = append(worklist, yy)
				}
			}
		}
		placement[v] = hasPhi
	}
	return placement
}

func sortedKeys(m map[string]map[uint32]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Renamer drives the dominator-tree-preorder renaming step: per variable a
// stack of currently-visible SSA registers and a monotonic counter. Callers
// walk the dominator tree themselves (DominatorTreeChildren gives the
// children), calling Fresh at definitions, Current at uses, and Mark/Restore
// on entering and leaving a block. Nothing in this repository calls
// NewRenamer.
type Renamer struct {
	sub     *ssa.Subroutine
	stacks  map[string][]ssa.Argument
	counter map[string]int
}

func NewRenamer(sub *ssa.Subroutine) *Renamer {
	return &Renamer{sub: sub, stacks: map[string][]ssa.Argument{}, counter: map[string]int{}}
}

// Fresh allocates a new SSA register for variable v, interning its text name
// as `v` for the first definition and `v_<i>` (i = 1, 2, ...) after that, and
// pushes it as the current definition of v. It also calls Regs.Fresh(v),
// whose handle is discarded.
func (r *Renamer) Fresh(v string) ssa.Argument {
	i := r.counter[v]
	r.counter[v] = i + 1
	handle, _ := r.sub.Regs.Fresh(v)
	_ = handle
	reg := ssa.Reg(r.sub.Regs.Intern(v + suffix(i)))
	r.stacks[v] = append(r.stacks[v], reg)
	return reg
}

// Current returns the top-of-stack SSA register currently bound to v.
func (r *Renamer) Current(v string) (ssa.Argument, bool) {
	s := r.stacks[v]
	if len(s) == 0 {
		return ssa.Argument{}, false
	}
	return s[len(s)-1], true
}

// Mark records the depth of every stack; Restore truncates the stacks back
// to their state at the matching Mark, implementing the "leaving x, pop all subscripts pushed" step.
type Mark map[string]int

func (r *Renamer) Mark() Mark {
	m := make(Mark, len(r.stacks))
	for v, s := range r.stacks {
		m[v] = len(s)
	}
	return m
}

func (r *Renamer) Restore(m Mark) {
	for v, depth := range m {
		r.stacks[v] = r.stacks[v][:depth]
	}
}

func suffix(i int) string {
	if i == 0 {
		return ""
	}
	digits := [20]byte{}
	n := i
	pos := len(digits)
	for n > 0 {
		pos--
		digits[pos] = byte('0' + n%10)
		n /= 10
	}
	return "_" + string(digits[pos:])
}

// DominatorTreeChildren returns, for every node, its immediate children in
// the dominator tree, used to drive the preorder recursion Cytron's
// renaming step requires.
func DominatorTreeChildren(dom *graph.Dominance, nodeCount int) map[int][]int {
	children := map[int][]int{}
	for n := 0; n < nodeCount; n++ {
		if !dom.Reachable(n) {
			continue
		}
		idom := dom.Idom(n)
		if idom == -1 {
			continue
		}
		children[idom] = append(children[idom], n)
	}
	return children
}
