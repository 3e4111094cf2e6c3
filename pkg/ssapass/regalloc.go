package ssapass

import (
	"sort"

	"hackvm.dev/toolchain/pkg/ssa"
)

const physicalColors = 7 // %R0..%R6

// livenessResult holds per-block uevar/varkill/liveout sets, the classic
// interval-list-free liveness formulation driven to a fixed point over the
// CFG (Cooper & Torczon's iterative dataflow algorithm).
type livenessResult struct {
	uevar   map[uint32]map[ssa.Argument]bool
	varkill map[uint32]map[ssa.Argument]bool
	liveOut map[uint32]map[ssa.Argument]bool
}

func computeLiveness(sub *ssa.Subroutine) livenessResult {
	res := livenessResult{
		uevar:   map[uint32]map[ssa.Argument]bool{},
		varkill: map[uint32]map[ssa.Argument]bool{},
		liveOut: map[uint32]map[ssa.Argument]bool{},
	}
	for _, b := range sub.Blocks() {
		ue := map[ssa.Argument]bool{}
		kill := map[ssa.Argument]bool{}
		for _, in := range b.Instructions {
			for _, u := range in.Uses() {
				if !kill[u] {
					ue[u] = true
				}
			}
			if d, ok := in.Def(); ok {
				kill[d] = true
			}
		}
		res.uevar[b.Label] = ue
		res.varkill[b.Label] = kill
		res.liveOut[b.Label] = map[ssa.Argument]bool{}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range sub.Blocks() {
			next := map[ssa.Argument]bool{}
			for _, succ := range sub.CFG().Successors(int(b.Label)) {
				s := uint32(succ)
				for r := range res.uevar[s] {
					next[r] = true
				}
				for r := range res.liveOut[s] {
					if !res.varkill[s][r] {
						next[r] = true
					}
				}
			}
			if !setEqual(next, res.liveOut[b.Label]) {
				res.liveOut[b.Label] = next
				changed = true
			}
		}
	}
	return res
}

func setEqual(a, b map[ssa.Argument]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// interferenceGraph is an adjacency-set graph over ssa.Argument nodes.
type interferenceGraph struct {
	adj map[ssa.Argument]map[ssa.Argument]bool
}

func newInterferenceGraph() *interferenceGraph {
	return &interferenceGraph{adj: map[ssa.Argument]map[ssa.Argument]bool{}}
}

func (g *interferenceGraph) node(a ssa.Argument) {
	if g.adj[a] == nil {
		g.adj[a] = map[ssa.Argument]bool{}
	}
}

func (g *interferenceGraph) edge(a, b ssa.Argument) {
	if a == b {
		return
	}
	g.node(a)
	g.node(b)
	g.adj[a][b] = true
	g.adj[b][a] = true
}

func buildInterferenceGraph(sub *ssa.Subroutine, live livenessResult) *interferenceGraph {
	g := newInterferenceGraph()
	for _, b := range sub.Blocks() {
		livenow := map[ssa.Argument]bool{}
		for r := range live.liveOut[b.Label] {
			livenow[r] = true
			g.node(r)
		}
		for i := len(b.Instructions) - 1; i >= 0; i-- {
			in := b.Instructions[i]
			if d, ok := in.Def(); ok {
				for y := range livenow {
					if y != d {
						g.edge(d, y)
					}
				}
				delete(livenow, d)
			}
			for _, u := range in.Uses() {
				livenow[u] = true
				g.node(u)
			}
		}
	}
	return g
}

// colorResult maps a register to a physical color 0..6, or -1 if it was
// spilled.
type colorResult map[ssa.Argument]int

// color runs Chaitin-Briggs simplify/select: repeatedly remove any node of
// degree < physicalColors (always colorable); if none exists, pick the
// max-degree node as an optimistic spill candidate and remove it anyway.
// Restoring in reverse removal order, assign the lowest color unused among
// already-restored neighbors; mark spilled if none is free.
func color(g *interferenceGraph) colorResult {
	remaining := map[ssa.Argument]bool{}
	for n := range g.adj {
		remaining[n] = true
	}

	var order []ssa.Argument
	degree := func(n ssa.Argument) int {
		d := 0
		for nb := range g.adj[n] {
			if remaining[nb] {
				d++
			}
		}
		return d
	}

	for len(remaining) > 0 {
		var picked ssa.Argument
		found := false
		for n := range remaining {
			if degree(n) < physicalColors {
				picked = n
				found = true
				break
			}
		}
		if !found {
			maxDeg := -1
			for n := range remaining {
				if d := degree(n); d > maxDeg {
					maxDeg, picked = d, n
				}
			}
		}
		order = append(order, picked)
		delete(remaining, picked)
	}

	result := colorResult{}
	restored := map[ssa.Argument]bool{}
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		used := map[int]bool{}
		for nb := range g.adj[n] {
			if restored[nb] {
				if c, ok := result[nb]; ok && c >= 0 {
					used[c] = true
				}
			}
		}
		assigned := -1
		for c := 0; c < physicalColors; c++ {
			if !used[c] {
				assigned = c
				break
			}
		}
		result[n] = assigned
		restored[n] = true
	}
	return result
}

// AllocateRegisters runs the full iterate-until-no-spill register
// allocation loop: liveness, interference graph, coloring; any spilled
// register is materialized as LOAD-before-use / STORE-after-def against a
// fresh `#SPILL_x` local and the loop repeats.
func AllocateRegisters(sub *ssa.Subroutine) {
	for {
		live := computeLiveness(sub)
		g := buildInterferenceGraph(sub, live)
		colors := color(g)

		spilled := spilledRegs(colors)
		if len(spilled) == 0 {
			rewriteColors(sub, colors)
			return
		}
		materializeSpills(sub, spilled)
	}
}

func spilledRegs(colors colorResult) []ssa.Argument {
	var out []ssa.Argument
	for r, c := range colors {
		if c < 0 {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func materializeSpills(sub *ssa.Subroutine, spilled []ssa.Argument) {
	spillSlot := map[ssa.Argument]ssa.Argument{}
	for _, r := range spilled {
		h, _ := sub.Locals.Fresh("SPILL_" + sub.Regs.Name(r.Handle))
		spillSlot[r] = ssa.Local(h)
	}

	for _, b := range sub.Blocks() {
		var rewritten []ssa.Instruction
		for _, in := range b.Instructions {
			cur := in
			for _, r := range spilled {
				used := false
				for _, u := range cur.Uses() {
					if u == r {
						used = true
						break
					}
				}
				if used {
					fresh, _ := sub.Regs.Fresh(sub.Regs.Name(r.Handle) + "_reload")
					freshReg := ssa.Reg(fresh)
					rewritten = append(rewritten, ssa.NewLoad(freshReg, spillSlot[r]))
					cur = cur.RewriteUses(r, freshReg)
				}
			}
			if d, ok := cur.Def(); ok {
				if slot, isSpill := spillSlot[d]; isSpill {
					if cur.Op == ssa.MOV {
						rewritten = append(rewritten, ssa.NewStore(slot, cur.Args[1]))
						continue
					}
					rewritten = append(rewritten, cur)
					rewritten = append(rewritten, ssa.NewStore(slot, d))
					continue
				}
			}
			rewritten = append(rewritten, cur)
		}
		b.Instructions = rewritten
	}
}

func rewriteColors(sub *ssa.Subroutine, colors colorResult) {
	name := func(c int) string { return "R" + indexSuffix(c) }
	rep := map[ssa.Argument]ssa.Argument{}
	for r, c := range colors {
		if c >= 0 {
			h := sub.Regs.Intern(name(c))
			rep[r] = ssa.Reg(h)
		}
	}
	for _, b := range sub.Blocks() {
		kept := b.Instructions[:0]
		for _, in := range b.Instructions {
			rewritten := in
			rewritten.Args = append([]ssa.Argument(nil), in.Args...)
			if d, ok := in.Def(); ok {
				if r, ok := rep[d]; ok {
					rewritten.Args[0] = r
				}
			}
			for _, u := range in.Uses() {
				if r, ok := rep[u]; ok {
					rewritten = rewritten.RewriteUses(u, r)
				}
			}
			if rewritten.Op == ssa.MOV && rewritten.Args[0] == rewritten.Args[1] {
				continue
			}
			kept = append(kept, rewritten)
		}
		b.Instructions = kept
	}
}
