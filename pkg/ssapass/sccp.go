package ssapass

import "hackvm.dev/toolchain/pkg/ssa"

// latticeKind is a register's abstract value in the SCCP lattice:
// TOP (not yet reached/no information) > Constant(k) > BOTTOM (proven
// non-constant).
type latticeKind uint8

const (
	latticeTop latticeKind = iota
	latticeConstant
	latticeBottom
)

type latticeValue struct {
	kind latticeKind
	k    int16
}

// SCCP runs sparse conditional constant propagation over sub in place: it
// discovers which blocks are reachable and which registers hold a known
// constant by co-simulating the CFG and the SSA def-use graph, then
// rewrites constant-valued uses and resolves constant-guarded branches to
// an unconditional jump.
func SCCP(sub *ssa.Subroutine) {
	values := map[ssa.Argument]*latticeValue{}
	reached := map[uint32]bool{}

	var cfgWork []uint32
	var ssaWork []ssa.Argument

	valueOf := func(a ssa.Argument) latticeValue {
		if a.Kind == ssa.ArgConstant {
			return latticeValue{kind: latticeConstant, k: a.Const}
		}
		if !a.IsReg() {
			return latticeValue{kind: latticeBottom}
		}
		if v, ok := values[a]; ok {
			return *v
		}
		return latticeValue{kind: latticeTop}
	}

	lower := func(dst ssa.Argument, v latticeValue) {
		cur, ok := values[dst]
		if !ok {
			cur = &latticeValue{kind: latticeTop}
			values[dst] = cur
		}
		if cur.kind == latticeBottom {
			return
		}
		if cur.kind == v.kind && (v.kind != latticeConstant || cur.k == v.k) {
			return
		}
		if cur.kind == latticeTop || (cur.kind == latticeConstant && v.kind == latticeBottom) {
			*cur = v
			ssaWork = append(ssaWork, dst)
		}
	}

	uses := map[ssa.Argument][]dceSite{}
	for _, b := range sub.Blocks() {
		for i, in := range b.Instructions {
			for _, u := range in.Uses() {
				uses[u] = append(uses[u], dceSite{b.Label, i})
			}
		}
	}

	evalInstr := func(block uint32, idx int, in ssa.Instruction) {
		switch in.Op {
		case ssa.PHI:
			result := latticeValue{kind: latticeTop}
			for _, arm := range in.Phis {
				if !reached[arm.Pred.Handle] {
					continue
				}
				v := valueOf(arm.Val)
				result = meet(result, v)
			}
			lower(in.Args[0], result)

		case ssa.MOV:
			lower(in.Args[0], valueOf(in.Args[1]))

		case ssa.ADD, ssa.SUB, ssa.AND, ssa.OR:
			a, b := valueOf(in.Args[1]), valueOf(in.Args[2])
			lower(in.Args[0], foldBinary(in.Op, a, b))

		case ssa.NEG, ssa.NOT:
			a := valueOf(in.Args[1])
			lower(in.Args[0], foldUnary(in.Op, a))

		case ssa.ARGUMENT, ssa.LOAD, ssa.CALL:
			lower(in.Args[0], latticeValue{kind: latticeBottom})

		case ssa.JUMP:
			enqueueBlock(&cfgWork, reached, in.Args[0].Handle)

		case ssa.JLT, ssa.JEQ:
			a, b := valueOf(in.Args[0]), valueOf(in.Args[1])
			if a.kind == latticeConstant && b.kind == latticeConstant {
				taken := in.Args[2]
				notTaken := in.Args[3]
				cond := (in.Op == ssa.JLT && a.k < b.k) || (in.Op == ssa.JEQ && a.k == b.k)
				if !cond {
					taken, notTaken = notTaken, taken
				}
				_ = notTaken
				enqueueBlock(&cfgWork, reached, taken.Handle)
			} else {
				enqueueBlock(&cfgWork, reached, in.Args[2].Handle)
				enqueueBlock(&cfgWork, reached, in.Args[3].Handle)
			}
		}
	}

	enqueueBlock(&cfgWork, reached, sub.Entry)

	for len(cfgWork) > 0 || len(ssaWork) > 0 {
		for len(cfgWork) > 0 {
			block := cfgWork[len(cfgWork)-1]
			cfgWork = cfgWork[:len(cfgWork)-1]
			b := sub.Block(block)
			if b == nil {
				continue
			}
			for i, in := range b.Instructions {
				evalInstr(block, i, in)
			}
		}
		for len(ssaWork) > 0 {
			reg := ssaWork[len(ssaWork)-1]
			ssaWork = ssaWork[:len(ssaWork)-1]
			for _, site := range uses[reg] {
				if !reached[site.block] {
					continue
				}
				b := sub.Block(site.block)
				evalInstr(site.block, site.index, b.Instructions[site.index])
			}
		}
	}

	for _, b := range sub.Blocks() {
		if !reached[b.Label] {
			continue
		}
		for i, in := range b.Instructions {
			if in.Op == ssa.PHI {
				continue
			}
			rewritten := in
			for _, use := range in.Uses() {
				v := valueOf(use)
				if v.kind == latticeConstant {
					rewritten = rewritten.RewriteUses(use, ssa.Const(v.k))
				}
			}
			b.Instructions[i] = rewritten
		}
		if term, ok := b.Terminator(); ok && (term.Op == ssa.JLT || term.Op == ssa.JEQ) {
			a, bb := valueOf(term.Args[0]), valueOf(term.Args[1])
			if a.kind == latticeConstant && bb.kind == latticeConstant {
				cond := (term.Op == ssa.JLT && a.k < bb.k) || (term.Op == ssa.JEQ && a.k == bb.k)
				target := term.Args[3]
				if cond {
					target = term.Args[2]
				}
				sub.SetTerminator(b.Label, ssa.NewJump(target))
			}
		}
	}
}

func enqueueBlock(work *[]uint32, reached map[uint32]bool, label uint32) {
	if reached[label] {
		return
	}
	reached[label] = true
	*work = append(*work, label)
}

func meet(a, b latticeValue) latticeValue {
	if a.kind == latticeTop {
		return b
	}
	if b.kind == latticeTop {
		return a
	}
	if a.kind == latticeConstant && b.kind == latticeConstant && a.k == b.k {
		return a
	}
	return latticeValue{kind: latticeBottom}
}

// foldBinary/foldUnary fold constant operands with bit-accurate
// two's-complement 16-bit ALU semantics, matching the CPU's own evaluation
// (see pkg/cpu).
func foldBinary(op ssa.Opcode, a, b latticeValue) latticeValue {
	if a.kind == latticeBottom || b.kind == latticeBottom {
		return latticeValue{kind: latticeBottom}
	}
	if a.kind == latticeTop || b.kind == latticeTop {
		return latticeValue{kind: latticeTop}
	}
	var r int16
	switch op {
	case ssa.ADD:
		r = a.k + b.k
	case ssa.SUB:
		r = a.k - b.k
	case ssa.AND:
		r = a.k & b.k
	case ssa.OR:
		r = a.k | b.k
	}
	return latticeValue{kind: latticeConstant, k: r}
}

func foldUnary(op ssa.Opcode, a latticeValue) latticeValue {
	if a.kind == latticeBottom {
		return latticeValue{kind: latticeBottom}
	}
	if a.kind == latticeTop {
		return latticeValue{kind: latticeTop}
	}
	var r int16
	switch op {
	case ssa.NEG:
		r = -a.k
	case ssa.NOT:
		r = ^a.k
	}
	return latticeValue{kind: latticeConstant, k: r}
}
