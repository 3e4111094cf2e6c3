package ssapass

import "hackvm.dev/toolchain/pkg/ssa"

// CopyPropagation runs the two-pass MOV-chain substitution: first every
// `mov dst src` is recorded as a substitution dst -> src, following any
// existing chain so no transitively indirect entry remains; then every
// non-phi instruction's uses are rewritten through the substitution table.
// Phis are left untouched to preserve join semantics; a following DCE pass
// is expected to delete the now-dead MOVs.
func CopyPropagation(sub *ssa.Subroutine) {
	subst := map[ssa.Argument]ssa.Argument{}

	resolve := func(a ssa.Argument) ssa.Argument {
		seen := map[ssa.Argument]bool{}
		for {
			next, ok := subst[a]
			if !ok || seen[a] {
				return a
			}
			seen[a] = true
			a = next
		}
	}

	for _, b := range sub.Blocks() {
		for _, in := range b.Instructions {
			if in.Op == ssa.MOV && in.Args[0].IsReg() {
				subst[in.Args[0]] = resolve(in.Args[1])
			}
		}
	}

	for _, b := range sub.Blocks() {
		for i, in := range b.Instructions {
			if in.Op == ssa.PHI {
				continue
			}
			rewritten := in
			for _, use := range in.Uses() {
				if to, ok := subst[use]; ok {
					rewritten = rewritten.RewriteUses(use, to)
				}
			}
			b.Instructions[i] = rewritten
		}
	}
}
