package ssapass

import "hackvm.dev/toolchain/pkg/ssa"

// congruenceClass assigns every register a class tag; registers sharing a
// tag are coalesced to a single name by Deconstruct's final rewrite.
type congruenceClass struct {
	tag map[ssa.Argument]int
	next int
}

func (c *congruenceClass) classOf(a ssa.Argument) (int, bool) {
	t, ok := c.tag[a]
	return t, ok
}

func (c *congruenceClass) newClass(members ...ssa.Argument) int {
	id := c.next
	c.next++
	for _, m := range members {
		c.tag[m] = id
	}
	return id
}

func (c *congruenceClass) add(id int, a ssa.Argument) { c.tag[a] = id }

func (c *congruenceClass) merge(a, b int) {
	if a == b {
		return
	}
	for k, v := range c.tag {
		if v == b {
			c.tag[k] = a
		}
	}
}

// Deconstruct removes every PHI from sub, replacing joins with explicit
// copies (Sreedhar's Method I), then coalesces the resulting congruence
// classes where live ranges don't interfere, and finally rewrites every
// register to its class representative and deletes identity MOVs.
func Deconstruct(sub *ssa.Subroutine) {
	classes := &congruenceClass{tag: map[ssa.Argument]int{}}

	// Stage 1: naive copy insertion.
	for _, b := range sub.Blocks() {
		phis := b.Phis()
		for _, phi := range phis {
			dst := phi.Args[0]
			primedHandle, primedName := sub.Regs.Fresh(sub.Regs.Name(dst.Handle) + "'")
			primed := ssa.Reg(primedHandle)
			_ = primedName

			members := []ssa.Argument{dst, primed}
			armRegs := map[int]ssa.Argument{}
			for i, arm := range phi.Phis {
				predBlock := sub.Block(arm.Pred.Handle)
				h, _ := sub.Regs.Fresh(sub.Regs.Name(dst.Handle) + "'" + indexSuffix(i))
				armReg := ssa.Reg(h)
				predBlock.InsertBeforeTerminator(ssa.NewMov(armReg, arm.Val))
				armRegs[i] = armReg
				members = append(members, armReg)
			}

			id := classes.newClass(members...)
			_ = id

			newArms := make([]ssa.PhiArg, len(phi.Phis))
			for i, arm := range phi.Phis {
				if r, ok := armRegs[i]; ok {
					newArms[i] = ssa.PhiArg{Pred: arm.Pred, Val: r}
				} else {
					newArms[i] = arm
				}
			}
			_ = newArms

			b.InsertBeforeTerminator(ssa.NewMov(dst, primed))
		}
	}

	// Stage 2: incidental coalescing over every MOV a <- b.
	liveAt := livenessForCoalescing(sub)
	valueOfReg := valueAliasMap(sub)

	for _, b := range sub.Blocks() {
		for _, in := range b.Instructions {
			if in.Op != ssa.MOV || !in.Args[0].IsReg() || !in.Args[1].IsReg() {
				continue
			}
			a, bb := in.Args[0], in.Args[1]
			if interfere(liveAt, valueOfReg, a, bb) {
				continue
			}
			ca, okA := classes.classOf(a)
			cb, okB := classes.classOf(bb)
			switch {
			case !okA && !okB:
				classes.newClass(a, bb)
			case okA && !okB:
				classes.add(ca, bb)
			case !okA && okB:
				classes.add(cb, a)
			default:
				classes.merge(ca, cb)
			}
		}
	}

	// Stage 3: delete phis, rewrite to class representative, delete
	// identity MOVs.
	repName := map[int]string{}
	rep := func(a ssa.Argument) ssa.Argument {
		if !a.IsReg() {
			return a
		}
		id, ok := classes.classOf(a)
		if !ok {
			return a
		}
		name, ok := repName[id]
		if !ok {
			name = sub.Regs.Name(a.Handle)
			repName[id] = name
		}
		return ssa.Reg(sub.Regs.Intern(name))
	}

	for _, b := range sub.Blocks() {
		kept := b.Instructions[:0]
		for _, in := range b.Instructions {
			if in.Op == ssa.PHI {
				continue
			}
			rewritten := in
			rewritten.Args = append([]ssa.Argument(nil), in.Args...)
			if d, ok := in.Def(); ok {
				rewritten.Args[0] = rep(d)
			}
			for _, use := range in.Uses() {
				rewritten = rewritten.RewriteUses(use, rep(use))
			}
			if rewritten.Op == ssa.MOV && rewritten.Args[0] == rewritten.Args[1] {
				continue
			}
			kept = append(kept, rewritten)
		}
		b.Instructions = kept
	}
}

func indexSuffix(i int) string {
	digits := [20]byte{}
	pos := len(digits)
	n := i
	if n == 0 {
		return "0"
	}
	for n > 0 {
		pos--
		digits[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[pos:])
}

// livenessForCoalescing computes, per block, the set of registers live at
// each instruction boundary (index -> live-after set), reshaped from the
// register allocator's own liveness computation (computeLiveness in
// regalloc.go).
type liveness map[uint32][]map[ssa.Argument]bool

func livenessForCoalescing(sub *ssa.Subroutine) liveness {
	live := computeLiveness(sub)
	out := liveness{}
	for _, b := range sub.Blocks() {
		now := map[ssa.Argument]bool{}
		for r := range live.liveOut[b.Label] {
			now[r] = true
		}
		perInstr := make([]map[ssa.Argument]bool, len(b.Instructions)+1)
		perInstr[len(b.Instructions)] = copySet(now)
		for i := len(b.Instructions) - 1; i >= 0; i-- {
			in := b.Instructions[i]
			if d, ok := in.Def(); ok {
				delete(now, d)
			}
			for _, u := range in.Uses() {
				now[u] = true
			}
			perInstr[i] = copySet(now)
		}
		out[b.Label] = perInstr
	}
	return out
}

func copySet(m map[ssa.Argument]bool) map[ssa.Argument]bool {
	out := make(map[ssa.Argument]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

// interfere reports whether a and b's live ranges intersect and they carry
// distinct symbolic values (value equivalence is conservative: a MOV
// propagates value, any other defining instruction is its own value).
func interfere(live liveness, valueOf map[ssa.Argument]string, a, b ssa.Argument) bool {
	if valueOf[a] == valueOf[b] && valueOf[a] != "" {
		return false
	}
	for _, perInstr := range live {
		for _, set := range perInstr {
			if set[a] && set[b] {
				return true
			}
		}
	}
	return false
}

// valueAliasMap assigns each register a conservative "symbolic value"
// string: the source register name for a MOV's destination (following
// chains), or the defining instruction's own textual opcode+operands form
// otherwise.
func valueAliasMap(sub *ssa.Subroutine) map[ssa.Argument]string {
	out := map[ssa.Argument]string{}
	for _, b := range sub.Blocks() {
		for _, in := range b.Instructions {
			d, ok := in.Def()
			if !ok {
				continue
			}
			if in.Op == ssa.MOV {
				if src, known := out[in.Args[1]]; known {
					out[d] = src
					continue
				}
				out[d] = in.Args[1].String()
				continue
			}
			out[d] = instrSignature(in)
		}
	}
	return out
}

func instrSignature(in ssa.Instruction) string {
	s := in.Op.String()
	for _, a := range in.Args[1:] {
		s += " " + a.String()
	}
	return s
}
