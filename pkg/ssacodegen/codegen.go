// Package ssacodegen lowers a post-allocation ssa.Unit to an asm.Program
// under the fixed calling convention: R11 holds the locals-frame base,
// R12 the arguments-frame base, R13 mirrors the stack pointer used by the
// call/return trampolines, R14 is scratch, R15 carries the return value or
// callee target. Every SSA register must already be either a physical
// color (%R0..%R6) or a LOAD/STORE pair against a #SPILL_x local — running
// this package before ssapass.Deconstruct/AllocateRegisters violates that
// precondition and its behavior is undefined.
package ssacodegen

import (
	"fmt"
	"sort"
	"strconv"

	"hackvm.dev/toolchain/pkg/asm"
	"hackvm.dev/toolchain/pkg/ssa"
)

const (
	regLocals   = "R11"
	regArgs     = "R12"
	regSP       = "R13"
	regScratch  = "R14"
	regReturn   = "R15"
)

var trampolineRegs = []string{"R0", "R1", "R2", "R3", "R4", "R5", "R6", regArgs, regLocals}

// Bootstrap emits the handwritten call-Sys.init-and-halt prologue followed
// by the shared __returnHelper and __callHelper trampolines, run once
// ahead of any subroutine's generated code.
func Bootstrap() asm.Program {
	var out asm.Program
	emitA := func(loc string) { out = append(out, asm.AInstruction{Location: loc}) }
	emitC := func(dest, comp, jump string) { out = append(out, asm.CInstruction{Dest: dest, Comp: comp, Jump: jump}) }
	emitL := func(name string) { out = append(out, asm.LabelDecl{Name: name}) }

	emitA("__halt")
	emitC("D", "A", "")
	emitA("256")
	emitC("M", "D", "")
	emitA(strconv.Itoa(256 + len(trampolineRegs) + 1))
	emitC("D", "A", "")
	emitA(regLocals)
	emitC("M", "D", "")
	emitA("Sys.init")
	emitL("__halt")
	emitC("", "0", "JMP")

	emitL("__returnHelper")
	emitA(regLocals)
	emitC("D", "M", "")
	emitA(regSP)
	emitC("M", "D", "")
	for _, r := range trampolineRegs {
		emitA(regSP)
		emitC("AM", "M-1", "")
		emitC("D", "M", "")
		emitA(r)
		emitC("M", "D", "")
	}
	emitA(regSP)
	emitC("AM", "M-1", "")
	emitC("A", "M", "")
	emitC("", "0", "JMP")

	emitL("__callHelper")
	for i := len(trampolineRegs) - 1; i >= 0; i-- {
		r := trampolineRegs[i]
		emitA(r)
		emitC("D", "M", "")
		emitA(regSP)
		emitC("AM", "M+1", "")
		emitC("M", "D", "")
	}
	emitA(regSP)
	emitC("D", "M+1", "")
	emitA(regLocals)
	emitC("M", "D", "")
	emitA(regScratch)
	emitC("D", "M", "")
	emitA(regArgs)
	emitC("M", "D", "")
	emitA(regReturn)
	emitC("A", "M", "")
	emitC("", "0", "JMP")

	return out
}

// Generator lowers one ssa.Unit's subroutines to assembly.
type Generator struct {
	unit *ssa.Unit
}

func NewGenerator(u *ssa.Unit) *Generator { return &Generator{unit: u} }

// Generate returns the bootstrap followed by every subroutine's code.
func (g *Generator) Generate() (asm.Program, error) {
	out := Bootstrap()
	for _, sub := range g.unit.Subroutines() {
		code, err := g.generateSubroutine(sub)
		if err != nil {
			return nil, fmt.Errorf("generating %s: %w", sub.Name, err)
		}
		out = append(out, code...)
	}
	return out, nil
}

type subGen struct {
	sub          *ssa.Subroutine
	unit         *ssa.Unit
	prefix       string
	localOffset  map[uint32]int
	returnCount  int
	out          asm.Program
}

func (g *Generator) generateSubroutine(sub *ssa.Subroutine) (asm.Program, error) {
	sg := &subGen{sub: sub, unit: g.unit, prefix: sub.Name, localOffset: map[uint32]int{}}
	sg.assignLocalOffsets()

	for _, b := range sub.Blocks() {
		if b.Label == sub.Exit {
			continue
		}
		if b.Label == sub.Entry {
			sg.emitL(sg.prefix)
		}
		sg.emitL(sg.prefix + "." + sub.Labels.Name(b.Label))
		for _, in := range b.Instructions {
			if err := sg.instruction(in); err != nil {
				return nil, err
			}
		}
	}
	return sg.out, nil
}

// assignLocalOffsets sorts #SPILL_x locals by descending use count (same
// heuristic as the reference generator: more-used slots get the earliest,
// smallest-encoding offsets) and assigns them sequential frame offsets.
func (sg *subGen) assignLocalOffsets() {
	counts := map[uint32]int{}
	walk := func(in ssa.Instruction) {
		for _, a := range in.Args {
			if a.Kind == ssa.ArgLocal {
				counts[a.Handle]++
			}
		}
	}
	for _, b := range sg.sub.Blocks() {
		for _, in := range b.Instructions {
			walk(in)
		}
	}
	handles := make([]uint32, 0, len(counts))
	for h := range counts {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		if counts[handles[i]] != counts[handles[j]] {
			return counts[handles[i]] > counts[handles[j]]
		}
		return handles[i] < handles[j]
	})
	for i, h := range handles {
		sg.localOffset[h] = i
	}
}

func (sg *subGen) emitA(loc string)  { sg.out = append(sg.out, asm.AInstruction{Location: loc}) }
func (sg *subGen) emitAInt(n int)    { sg.emitA(strconv.Itoa(n)) }
func (sg *subGen) emitC(dest, comp, jump string) {
	sg.out = append(sg.out, asm.CInstruction{Dest: dest, Comp: comp, Jump: jump})
}
func (sg *subGen) emitL(name string) { sg.out = append(sg.out, asm.LabelDecl{Name: name}) }

// handle loads operand a's value into D, picking the comp form matching
// whether a resolves through an A-instruction to a register/global (M) or
// is an immediate constant (A, after @n).
func (sg *subGen) handle(a ssa.Argument) error {
	switch a.Kind {
	case ssa.ArgReg:
		sg.emitA(sg.sub.Regs.Name(a.Handle))
		sg.emitC("D", "M", "")
	case ssa.ArgGlobal:
		sg.emitA(sg.unit.Globals.Name(a.Handle))
		sg.emitC("D", "M", "")
	case ssa.ArgConstant:
		sg.emitAInt(int(a.Const))
		sg.emitC("D", "A", "")
	case ssa.ArgLocal:
		return fmt.Errorf("local %q used directly as a value operand", sg.sub.Locals.Name(a.Handle))
	default:
		return fmt.Errorf("unsupported operand kind for value load")
	}
	return nil
}

func (sg *subGen) regStore(dst ssa.Argument) {
	sg.emitA(sg.sub.Regs.Name(dst.Handle))
	sg.emitC("M", "D", "")
}

func (sg *subGen) push(reg string) {
	sg.emitA(reg)
	sg.emitC("D", "M", "")
	sg.emitA(regSP)
	sg.emitC("AM", "M+1", "")
	sg.emitC("M", "D", "")
}

func (sg *subGen) instruction(in ssa.Instruction) error {
	switch in.Op {
	case ssa.JUMP:
		sg.emitA(sg.prefix + "." + sg.sub.Labels.Name(in.Args[0].Handle))
		sg.emitC("", "0", "JMP")

	case ssa.JLT, ssa.JEQ:
		jump := "JLT"
		if in.Op == ssa.JEQ {
			jump = "JEQ"
		}
		// D <- arg[1] (rhs), then D <- arg[0] - D, matching handle_compare
		// in the reference ssa2asm generator: the subtraction's sign
		// drives the chosen comparison jump.
		if err := sg.handle(in.Args[1]); err != nil {
			return err
		}
		if err := sg.subtractFrom(in.Args[0]); err != nil {
			return err
		}
		sg.emitA(sg.prefix + "." + sg.sub.Labels.Name(in.Args[2].Handle))
		sg.emitC("", "D", jump)
		sg.emitA(sg.prefix + "." + sg.sub.Labels.Name(in.Args[3].Handle))
		sg.emitC("", "0", "JMP")

	case ssa.RETURN:
		if err := sg.handle(in.Args[0]); err != nil {
			return err
		}
		sg.emitA(regReturn)
		sg.emitC("M", "D", "")
		sg.emitA("__returnHelper")
		sg.emitC("", "0", "JMP")

	case ssa.CALL:
		returnAddr := fmt.Sprintf("%s.return.%d", sg.prefix, sg.returnCount)
		sg.returnCount++

		sg.emitAInt(len(sg.localOffset))
		sg.emitC("D", "A", "")
		sg.emitA(regLocals)
		sg.emitC("D", "D+M", "")
		sg.emitA(regSP)
		sg.emitC("M", "D-1", "")
		sg.emitA(regScratch)
		sg.emitC("M", "D", "")
		for _, arg := range in.Args[2:] {
			if err := sg.handle(arg); err != nil {
				return err
			}
			sg.emitA(regSP)
			sg.emitC("AM", "M+1", "")
			sg.emitC("M", "D", "")
		}
		sg.emitA(returnAddr)
		sg.emitC("D", "A", "")
		sg.emitA(regSP)
		sg.emitC("AM", "M+1", "")
		sg.emitC("M", "D", "")
		sg.emitA(sg.unit.Globals.Name(in.Args[1].Handle))
		sg.emitC("D", "A", "")
		sg.emitA(regReturn)
		sg.emitC("M", "D", "")
		sg.emitA("__callHelper")
		sg.emitC("", "0", "JMP")
		sg.emitL(returnAddr)
		sg.emitA(regReturn)
		sg.emitC("D", "M", "")
		sg.regStore(in.Args[0])

	case ssa.ADD, ssa.AND, ssa.OR:
		a, b := adjustSymmetric(in.Args[0], in.Args[1], in.Args[2])
		if err := sg.binary(in.Op, in.Args[0], a, b); err != nil {
			return err
		}
	case ssa.SUB:
		if err := sg.binary(in.Op, in.Args[0], in.Args[1], in.Args[2]); err != nil {
			return err
		}

	case ssa.NOT, ssa.NEG:
		comp := map[ssa.Opcode]string{ssa.NOT: "!", ssa.NEG: "-"}[in.Op]
		if err := sg.unary(in.Args[0], in.Args[1], comp); err != nil {
			return err
		}

	case ssa.STORE:
		if err := sg.store(in.Args[0], in.Args[1]); err != nil {
			return err
		}

	case ssa.ARGUMENT:
		sg.emitAInt(int(in.Args[1].Const))
		sg.emitC("D", "A", "")
		sg.emitA(regArgs)
		sg.emitC("A", "D+M", "")
		sg.emitC("D", "M", "")
		sg.regStore(in.Args[0])

	case ssa.LOAD:
		if err := sg.load(in.Args[0], in.Args[1]); err != nil {
			return err
		}

	case ssa.MOV:
		if err := sg.handle(in.Args[1]); err != nil {
			return err
		}
		sg.regStore(in.Args[0])

	case ssa.PHI:
		return fmt.Errorf("phi reached code generator; run ssapass.Deconstruct first")

	default:
		return fmt.Errorf("unsupported opcode %s", in.Op)
	}
	return nil
}

// adjustSymmetric swaps (a, b) so that, if dst already equals a, the shorter
// downstream peephole sequence is possible (the symmetric-operation
// heuristic from the calling convention notes).
func adjustSymmetric(dst, a, b ssa.Argument) (ssa.Argument, ssa.Argument) {
	if a == dst {
		return b, a
	}
	return a, b
}

func (sg *subGen) binary(op ssa.Opcode, dst, a, b ssa.Argument) error {
	if err := sg.handle(a); err != nil {
		return err
	}
	comp, err := sg.compCombine(op, b)
	if err != nil {
		return err
	}
	sg.emitC("D", comp, "")
	sg.regStore(dst)
	return nil
}

func (sg *subGen) unary(dst, a ssa.Argument, op string) error {
	switch a.Kind {
	case ssa.ArgReg:
		sg.emitA(sg.sub.Regs.Name(a.Handle))
		sg.emitC("D", op+"M", "")
	case ssa.ArgGlobal:
		sg.emitA(sg.unit.Globals.Name(a.Handle))
		sg.emitC("D", op+"M", "")
	case ssa.ArgConstant:
		sg.emitAInt(int(a.Const))
		sg.emitC("D", op+"A", "")
	default:
		return fmt.Errorf("unsupported unary operand kind")
	}
	sg.regStore(dst)
	return nil
}

// compCombine emits "D <op> M" or "D <op> A" depending on b's operand
// class: register/global operands live in memory (M), constants are
// addressed immediates (A).
func (sg *subGen) compCombine(op ssa.Opcode, b ssa.Argument) (string, error) {
	base := map[ssa.Opcode]string{ssa.ADD: "D+", ssa.SUB: "D-", ssa.AND: "D&", ssa.OR: "D|"}[op]
	if base == "" {
		return "", fmt.Errorf("opcode %s is not a binary ALU op", op)
	}
	switch b.Kind {
	case ssa.ArgReg:
		sg.emitA(sg.sub.Regs.Name(b.Handle))
		return base + "M", nil
	case ssa.ArgGlobal:
		sg.emitA(sg.unit.Globals.Name(b.Handle))
		return base + "M", nil
	case ssa.ArgConstant:
		sg.emitAInt(int(b.Const))
		return base + "A", nil
	default:
		return "", fmt.Errorf("unsupported rhs operand kind")
	}
}

func (sg *subGen) store(addr, src ssa.Argument) error {
	switch addr.Kind {
	case ssa.ArgReg:
		if err := sg.handle(src); err != nil {
			return err
		}
		sg.emitA(sg.sub.Regs.Name(addr.Handle))
		sg.emitC("A", "M", "")
		sg.emitC("M", "D", "")
	case ssa.ArgGlobal:
		if err := sg.handle(src); err != nil {
			return err
		}
		sg.emitA(sg.unit.Globals.Name(addr.Handle))
		sg.emitC("M", "D", "")
	case ssa.ArgLocal:
		sg.emitAInt(sg.localOffset[addr.Handle])
		sg.emitC("D", "A", "")
		sg.emitA(regLocals)
		sg.emitC("D", "D+M", "")
		sg.emitA(regScratch)
		sg.emitC("M", "D", "")
		if err := sg.handle(src); err != nil {
			return err
		}
		sg.emitA(regScratch)
		sg.emitC("A", "M", "")
		sg.emitC("M", "D", "")
	default:
		return fmt.Errorf("unsupported store address kind")
	}
	return nil
}

func (sg *subGen) load(dst, addr ssa.Argument) error {
	switch addr.Kind {
	case ssa.ArgReg:
		sg.emitA(sg.sub.Regs.Name(addr.Handle))
		sg.emitC("A", "M", "")
		sg.emitC("D", "M", "")
	case ssa.ArgGlobal:
		sg.emitA(sg.unit.Globals.Name(addr.Handle))
		sg.emitC("D", "M", "")
	case ssa.ArgLocal:
		sg.emitAInt(sg.localOffset[addr.Handle])
		sg.emitC("D", "A", "")
		sg.emitA(regLocals)
		sg.emitC("A", "D+M", "")
		sg.emitC("D", "M", "")
	default:
		return fmt.Errorf("unsupported load address kind")
	}
	sg.regStore(dst)
	return nil
}

// subtractFrom emits D <- a - D, the second half of a compare sequence
// (handle_compare in the reference generator).
func (sg *subGen) subtractFrom(a ssa.Argument) error {
	switch a.Kind {
	case ssa.ArgReg:
		sg.emitA(sg.sub.Regs.Name(a.Handle))
		sg.emitC("D", "M-D", "")
	case ssa.ArgGlobal:
		sg.emitA(sg.unit.Globals.Name(a.Handle))
		sg.emitC("D", "M-D", "")
	case ssa.ArgConstant:
		sg.emitAInt(int(a.Const))
		sg.emitC("D", "A-D", "")
	default:
		return fmt.Errorf("unsupported compare operand kind")
	}
	return nil
}
