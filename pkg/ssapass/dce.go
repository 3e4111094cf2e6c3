package ssapass

import "hackvm.dev/toolchain/pkg/ssa"

type dceSite struct {
	block uint32
	index int
}

// DCE runs aggressive dead-code elimination over sub in place: every
// instruction with an externally visible effect (terminator, CALL, LOAD,
// STORE) is essential; essentiality then propagates backward through
// definer chains and through each essential instruction's block's reverse
// dominance frontier (so control that decides whether an essential
// instruction executes is kept); everything else is swept.
func DCE(sub *ssa.Subroutine) {
	essential := map[dceSite]bool{}
	var worklist []dceSite

	defSite := map[ssa.Argument]dceSite{}
	for _, b := range sub.Blocks() {
		for i, in := range b.Instructions {
			if d, ok := in.Def(); ok {
				defSite[d] = dceSite{b.Label, i}
			}
		}
	}

	for _, b := range sub.Blocks() {
		for i, in := range b.Instructions {
			if isPrelive(in) {
				site := dceSite{b.Label, i}
				essential[site] = true
				worklist = append(worklist, site)
			}
		}
	}

	rdom := sub.ReverseDominance()

	markTerminator := func(block uint32) {
		b := sub.Block(block)
		if b == nil || len(b.Instructions) == 0 {
			return
		}
		site := dceSite{block, len(b.Instructions) - 1}
		if !essential[site] {
			essential[site] = true
			worklist = append(worklist, site)
		}
	}

	for len(worklist) > 0 {
		site := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		b := sub.Block(site.block)
		in := b.Instructions[site.index]

		for _, use := range in.Uses() {
			if ds, ok := defSite[use]; ok && !essential[ds] {
				essential[ds] = true
				worklist = append(worklist, ds)
			}
		}

		for _, rf := range rdom.Frontier(int(site.block)) {
			markTerminator(uint32(rf))
		}
	}

	for _, b := range sub.Blocks() {
		kept := b.Instructions[:0]
		for i, in := range b.Instructions {
			if in.Op.IsTerminator() || essential[dceSite{b.Label, i}] {
				kept = append(kept, in)
			}
		}
		b.Instructions = kept
	}
}

// isPrelive reports whether in may have an externally visible effect and
// must never be deleted regardless of whether its result is used.
func isPrelive(in ssa.Instruction) bool {
	switch in.Op {
	case ssa.JUMP, ssa.JLT, ssa.JEQ, ssa.RETURN, ssa.CALL, ssa.LOAD, ssa.STORE:
		return true
	default:
		return false
	}
}
