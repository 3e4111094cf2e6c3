package vm

import (
	"container/list"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"hackvm.dev/toolchain/pkg/asm"
)

// ----------------------------------------------------------------------------
// Peephole-optimized Vm Lowerer
//
// PeepholeLowerer is the alternate path through the VM-to-ASM pipeline: every Module is
// first translated to the peephole IR (translate), rewritten to a fixed point by Optimize,
// and only then turned into assembly. Each command's surviving in/fin flags (see
// command.go) tell the writer whether it may skip fetching its left operand from the
// stack (it is already in D, left there by the command just written) and whether it must
// push its result back (or may leave it in D for the next command to consume directly).
// This mirrors the degrees of freedom the naive, always-through-the-stack Lowerer gives up.
type PeepholeLowerer struct {
	program Program

	out            []asm.Instruction
	filename       string
	function       string
	compareCounter int
	returnCounter  int
	callStubs      map[int]bool // arg counts for which a shared __call<N> trampoline already exists
}

func NewPeepholeLowerer(p Program) PeepholeLowerer {
	return PeepholeLowerer{program: p, callStubs: map[int]bool{}}
}

// Lower runs translate+Optimize+write over every Module, in filename order, then appends
// the shared return trampoline every 'return' command jumps to.
func (pl *PeepholeLowerer) Lower() (asm.Program, error) {
	if pl.program == nil || len(pl.program) == 0 {
		return nil, fmt.Errorf("the given 'program' is empty or nil")
	}

	names := make([]string, 0, len(pl.program))
	for name := range pl.program {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pl.filename = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

		cmds := translate(pl.program[name])
		Optimize(cmds)

		for e := cmds.Front(); e != nil; e = e.Next() {
			if err := pl.write(cmdAt(e)); err != nil {
				return nil, fmt.Errorf("error lowering module '%s': %w", name, err)
			}
		}
	}

	pl.writeReturnHelper()
	return asm.Program(pl.out), nil
}

func (pl *PeepholeLowerer) emitA(location string) { pl.out = append(pl.out, asm.AInstruction{Location: location}) }
func (pl *PeepholeLowerer) emitC(dest, comp string) {
	pl.out = append(pl.out, asm.CInstruction{Dest: dest, Comp: comp})
}
func (pl *PeepholeLowerer) emitJump(comp, jump string) {
	pl.out = append(pl.out, asm.CInstruction{Comp: comp, Jump: jump})
}
func (pl *PeepholeLowerer) emitLabel(name string) { pl.out = append(pl.out, asm.LabelDecl{Name: name}) }

func constructIndexed(prefix string, i int) string { return prefix + strconv.Itoa(i) }
func constructScoped(fn, label string) string       { return fn + "$" + label }

func (pl *PeepholeLowerer) push() {
	pl.emitA("SP")
	pl.emitC("M", "M+1")
	pl.emitC("A", "M-1")
	pl.emitC("M", "D")
}

func (pl *PeepholeLowerer) pop() {
	pl.emitA("SP")
	pl.emitC("AM", "M-1")
	pl.emitC("D", "M")
}

func (pl *PeepholeLowerer) poptop(in bool) {
	if in {
		pl.pop()
		pl.emitC("A", "A-1")
		return
	}
	pl.emitA("SP")
	pl.emitC("A", "M-1")
}

func (pl *PeepholeLowerer) unaryCompare(intArg int) {
	switch intArg {
	case 0:
		// D - 0 is a no-op
	case 1:
		pl.emitC("D", "D-1")
	case -1:
		pl.emitC("D", "D+1")
	default:
		pl.emitA(strconv.Itoa(intArg))
		pl.emitC("D", "D-A")
	}
}

func (pl *PeepholeLowerer) basePointer(segment SegmentType) string {
	switch segment {
	case Local:
		return "LCL"
	case Argument:
		return "ARG"
	case This:
		return "THIS"
	case That:
		return "THAT"
	default:
		return ""
	}
}

// load sets dest ("A" or "D") to the absolute address of segment[index]. Only Local,
// Argument, This and That route through here; the other segments resolve to a fixed cell.
func (pl *PeepholeLowerer) load(dest string, segment SegmentType, index int) error {
	if index > 2 {
		pl.emitA(strconv.Itoa(index))
		pl.emitC("D", "A")
	}
	base := pl.basePointer(segment)
	if base == "" {
		return fmt.Errorf("segment '%s' has no base pointer", segment)
	}
	pl.emitA(base)

	switch index {
	case 0:
		pl.emitC(dest, "M")
	case 1:
		pl.emitC(dest, "M+1")
	case 2:
		pl.emitC(dest, "M+1")
		if dest == "D" {
			pl.emitC("D", "D+1")
		}
		if dest == "A" {
			pl.emitC("A", "A+1")
		}
	default:
		pl.emitC(dest, "D+M")
	}
	return nil
}

// directAddress resolves the fixed memory cell for the segments that need no
// base-pointer indirection.
func (pl *PeepholeLowerer) directAddress(segment SegmentType, index int) (string, error) {
	switch segment {
	case Static:
		return pl.filename + "." + strconv.Itoa(index), nil
	case Pointer:
		return strconv.Itoa(3 + index), nil
	case Temp:
		return strconv.Itoa(5 + index), nil
	default:
		return "", fmt.Errorf("segment '%s' is not a direct segment", segment)
	}
}

// pushLoad sets D to the value held at segment[index].
func (pl *PeepholeLowerer) pushLoad(segment SegmentType, index int) error {
	switch segment {
	case Static, Pointer, Temp:
		addr, err := pl.directAddress(segment, index)
		if err != nil {
			return err
		}
		pl.emitA(addr)
		pl.emitC("D", "M")
		return nil
	default:
		if err := pl.load("A", segment, index); err != nil {
			return err
		}
		pl.emitC("D", "M")
		return nil
	}
}

func (pl *PeepholeLowerer) write(c command) error {
	switch c.typ {
	case cConstant:
		pl.writeConstant(c.fin, c.int1)
	case cPush:
		if err := pl.writePush(c.fin, c.segment1, c.int1); err != nil {
			return err
		}
	case cPopDirect:
		return pl.writePopDirect(c.in, c.segment1, c.int1)
	case cPopIndirect:
		return pl.writePopIndirect(c.segment1, c.int1)
	case cPopIndirectPush:
		return pl.writePopIndirectPush(c.fin, c.segment1, c.int1)
	case cCopy:
		return pl.writeCopy(c.segment1, c.int1, c.segment2, c.int2)
	case cUnary:
		return pl.writeUnary(c.in, c.fin, c.unary, c.int1)
	case cBinary:
		return pl.writeBinary(c.in, c.fin, c.binary)
	case cCompare:
		pl.writeCompare(c.in, c.fin, c.compare)
	case cUnaryCompare:
		pl.writeUnaryCompare(c.in, c.fin, c.compare, c.int1)
	case cLabel:
		pl.emitLabel(constructScoped(pl.function, c.arg1))
	case cGoto:
		pl.writeGoto(c.arg1)
	case cIf:
		pl.writeIf(c.in, c.compare, c.arg1, false, false, 0)
	case cCompareIf:
		pl.writeIf(c.in, c.compare, c.arg1, true, false, 0)
	case cUnaryCompareIf:
		pl.writeIf(c.in, c.compare, c.arg1, true, true, c.int1)
	case cFunction:
		pl.writeFunction(c.arg1, c.int1)
	case cCall:
		pl.writeCall(c.arg1, c.int1)
	case cReturn:
		pl.emitA("__return")
		pl.emitJump("0", "JMP")
	case cNop:
		// no-op: a blank line or stray comment in the source VM file
	default:
		return fmt.Errorf("command of type %d survived optimization unresolved", c.typ)
	}
	return nil
}

// ----------------------------------------------------------------------------
// CONSTANT, PUSH, PCOMP_DIRECT, PCOMP_INDIRECT, COPY

func (pl *PeepholeLowerer) writeConstant(fin bool, value int) {
	if fin && -2 <= value && value <= 2 {
		pl.emitA("SP")
		pl.emitC("M", "M+1")
		pl.emitC("A", "M-1")
		switch value {
		case -2:
			pl.emitC("M", "-1")
			pl.emitC("M", "M-1")
		case -1:
			pl.emitC("M", "-1")
		case 0:
			pl.emitC("M", "0")
		case 1:
			pl.emitC("M", "1")
		case 2:
			pl.emitC("M", "1")
			pl.emitC("M", "M+1")
		}
		return
	}

	switch {
	case value == -1:
		pl.emitC("D", "-1")
	case value == 0:
		pl.emitC("D", "0")
	case value == 1:
		pl.emitC("D", "1")
	case value < 0:
		pl.emitA(strconv.Itoa(-value))
		pl.emitC("D", "-A")
	default:
		pl.emitA(strconv.Itoa(value))
		pl.emitC("D", "A")
	}
	if fin {
		pl.push()
	}
}

func (pl *PeepholeLowerer) writePush(fin bool, segment SegmentType, index int) error {
	if err := pl.pushLoad(segment, index); err != nil {
		return err
	}
	if fin {
		pl.push()
	}
	return nil
}

func (pl *PeepholeLowerer) writePopDirect(in bool, segment SegmentType, index int) error {
	if in {
		pl.pop()
	}
	addr, err := pl.directAddress(segment, index)
	if err != nil {
		return err
	}
	pl.emitA(addr)
	pl.emitC("M", "D")
	return nil
}

func (pl *PeepholeLowerer) writePopIndirect(segment SegmentType, index int) error {
	if err := pl.load("D", segment, index); err != nil {
		return err
	}
	pl.emitA("R15")
	pl.emitC("M", "D")
	pl.pop()
	pl.emitA("R15")
	pl.emitC("A", "M")
	pl.emitC("M", "D")
	return nil
}

func (pl *PeepholeLowerer) writePopIndirectPush(fin bool, segment SegmentType, index int) error {
	if err := pl.writePopIndirect(segment, index); err != nil {
		return err
	}
	if fin {
		pl.push()
	}
	return nil
}

func (pl *PeepholeLowerer) writeCopy(sseg SegmentType, sind int, dseg SegmentType, dind int) error {
	if sseg == dseg {
		if sind == dind {
			return nil // no need to copy
		}
		if abs(dind-sind) < 4 { // 4 is empiric constant
			if err := pl.load("A", sseg, sind); err != nil {
				return err
			}
			pl.emitC("D", "M")
			for i := sind; i > dind; i-- {
				pl.emitC("A", "A-1")
			}
			for i := sind; i < dind; i++ {
				pl.emitC("A", "A+1")
			}
			pl.emitC("M", "D")
			return nil
		}
	}

	if err := pl.load("D", dseg, dind); err != nil {
		return err
	}
	pl.emitA("R15")
	pl.emitC("M", "D")
	if err := pl.pushLoad(sseg, sind); err != nil {
		return err
	}
	pl.emitA("R15")
	pl.emitC("A", "M")
	pl.emitC("M", "D")
	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ----------------------------------------------------------------------------
// UNARY, BINARY

func (pl *PeepholeLowerer) writeUnary(in, fin bool, op unaryKind, intArg int) error {
	if in && fin {
		comp := map[unaryKind]string{
			uNot: "!M", uNeg: "-M", uAddC: "D+M", uSubC: "M-D", uBusC: "D-M", uAndC: "D&M", uOrC: "D|M",
		}

		switch op {
		case uNot, uNeg:
			pl.emitA("SP")
			pl.emitC("A", "M-1")
			pl.emitC("M", comp[op])
		case uDouble:
			pl.emitA("SP")
			pl.emitC("A", "M-1")
			pl.emitC("D", "M")
			pl.emitC("M", "D+M")
		case uSubC:
			if intArg == 1 {
				pl.emitA("SP")
				pl.emitC("A", "M-1")
				pl.emitC("M", "M-1")
				return nil
			}
			fallthrough
		case uAddC, uBusC, uAndC, uOrC:
			pl.emitA(strconv.Itoa(intArg))
			pl.emitC("D", "A")
			pl.emitA("SP")
			pl.emitC("A", "M-1")
			pl.emitC("M", comp[op])
		}
		return nil
	}

	if in {
		pl.pop()
	}
	switch op {
	case uNot:
		pl.emitC("D", "!D")
	case uNeg:
		pl.emitC("D", "-D")
	case uDouble:
		pl.emitC("A", "D")
		pl.emitC("D", "D+A")
	case uAddC:
		if intArg == 1 {
			pl.emitC("D", "D+1")
		} else {
			pl.emitA(strconv.Itoa(intArg))
			pl.emitC("D", "D+A")
		}
	case uSubC:
		if intArg == 1 {
			pl.emitC("D", "D-1")
		} else {
			pl.emitA(strconv.Itoa(intArg))
			pl.emitC("D", "D-A")
		}
	case uBusC:
		pl.emitA(strconv.Itoa(intArg))
		pl.emitC("D", "A-D")
	case uAndC:
		pl.emitA(strconv.Itoa(intArg))
		pl.emitC("D", "D&A")
	case uOrC:
		pl.emitA(strconv.Itoa(intArg))
		pl.emitC("D", "D|A")
	}
	if fin {
		pl.push()
	}
	return nil
}

func (pl *PeepholeLowerer) writeBinary(in, fin bool, op binaryKind) error {
	var dest string
	if fin {
		dest = "M"
		pl.poptop(in)
	} else {
		dest = "D"
		if in {
			pl.pop()
		}
		pl.emitA("SP")
		pl.emitC("AM", "M-1")
	}

	comp, ok := map[binaryKind]string{bAdd: "D+M", bSub: "M-D", bBus: "D-M", bAnd: "D&M", bOr: "D|M"}[op]
	if !ok {
		return fmt.Errorf("unrecognized binary operation %d", op)
	}
	pl.emitC(dest, comp)
	return nil
}

// ----------------------------------------------------------------------------
// UNARY_COMPARE, COMPARE

func (pl *PeepholeLowerer) compareBranches(fin bool, spec compareSpec) {
	jump := spec.jump()
	switchLabel := constructIndexed("__compareSwitch", pl.compareCounter)
	endLabel := constructIndexed("__compareEnd", pl.compareCounter)
	pl.compareCounter++

	if fin {
		pl.emitA(endLabel)
		pl.emitJump("D", jump)
		pl.emitA("SP")
		pl.emitC("A", "M-1")
		pl.emitC("M", "0") // adjust to false
		pl.emitLabel(endLabel)
		return
	}

	pl.emitA(switchLabel)
	pl.emitJump("D", jump)
	pl.emitC("D", "0")
	pl.emitA(endLabel)
	pl.emitJump("0", "JMP")
	pl.emitLabel(switchLabel)
	pl.emitC("D", "-1")
	pl.emitLabel(endLabel)
}

func (pl *PeepholeLowerer) writeUnaryCompare(in, fin bool, spec compareSpec, intArg int) {
	if fin {
		if in {
			pl.emitA("SP")
			pl.emitC("A", "M-1")
			pl.emitC("D", "M")
		} else {
			pl.emitA("SP")
			pl.emitC("M", "M+1")
			pl.emitC("A", "M-1")
		}
		pl.emitC("M", "-1") // default is true
	} else if in {
		pl.pop()
	}
	pl.unaryCompare(intArg)
	pl.compareBranches(fin, spec)
}

func (pl *PeepholeLowerer) writeCompare(in, fin bool, spec compareSpec) {
	pl.poptop(in)
	pl.emitC("D", "M-D")
	if fin {
		pl.emitC("M", "-1") // default is true
	} else {
		pl.emitA("SP")
		pl.emitC("M", "M-1")
	}
	pl.compareBranches(fin, spec)
}

// ----------------------------------------------------------------------------
// LABEL, GOTO, IF, COMPARE_IF, UNARY_COMPARE_IF

func (pl *PeepholeLowerer) writeGoto(label string) {
	pl.emitA(constructScoped(pl.function, label))
	pl.emitJump("0", "JMP")
}

func (pl *PeepholeLowerer) writeIf(in bool, spec compareSpec, label string, compare, useConst bool, intConst int) {
	if in {
		pl.pop()
	}
	if compare {
		if useConst {
			pl.unaryCompare(intConst)
		} else {
			pl.emitA("SP")
			pl.emitC("AM", "M-1")
			pl.emitC("D", "M-D")
		}
	}
	pl.emitA(constructScoped(pl.function, label))
	pl.emitJump("D", spec.jump())
}

// ----------------------------------------------------------------------------
// FUNCTION, CALL, RETURN

func (pl *PeepholeLowerer) writeFunction(name string, localc int) {
	pl.function = name
	pl.emitLabel(name)

	switch {
	case localc == 0:
		// nothing to zero
	case localc == 1:
		pl.emitA("SP")
		pl.emitC("M", "M+1")
		pl.emitC("A", "M-1")
		pl.emitC("M", "0")
	default: // 2*localc+4 instructions
		pl.emitA("SP")
		pl.emitC("A", "M")
		for i := 1; i < localc; i++ {
			pl.emitC("M", "0")
			pl.emitC("A", "A+1")
		}
		pl.emitC("M", "0")
		pl.emitC("D", "A+1") // "unroll"
		pl.emitA("SP")
		pl.emitC("M", "D")
	}
}

// writeCall shares a single call stub per distinct argument count: the first call with a
// given argc emits the full frame-save sequence, every later call with the same argc just
// jumps into it. 45 instructions the first time, 8 thereafter.
func (pl *PeepholeLowerer) writeCall(name string, argc int) {
	found := pl.callStubs[argc]

	callLabel := constructIndexed("__call", argc)
	returnAddress := constructIndexed("__returnAddress", pl.returnCounter)
	pl.returnCounter++

	pl.emitA(name)
	pl.emitC("D", "A")
	pl.emitA("R15")
	pl.emitC("M", "D") // R15 = callee address
	pl.emitA(returnAddress)
	pl.emitC("D", "A")

	if found {
		pl.emitA(callLabel)
		pl.emitJump("0", "JMP")
	} else {
		pl.emitLabel(callLabel)
		pl.push() // push returnAddress
		for _, base := range []string{"LCL", "ARG", "THIS", "THAT"} {
			pl.emitA(base)
			pl.emitC("D", "M")
			pl.push()
		}
		pl.emitA("SP")
		pl.emitC("D", "M")
		pl.emitA("LCL")
		pl.emitC("M", "D") // LCL = SP
		pl.emitA(strconv.Itoa(argc + 5))
		pl.emitC("D", "D-A")
		pl.emitA("ARG")
		pl.emitC("M", "D") // ARG = SP - argc - 5
		pl.emitA("R15")
		pl.emitC("A", "M")
		pl.emitJump("0", "JMP")
		pl.callStubs[argc] = true
	}

	pl.emitLabel(returnAddress)
}

// writeReturnHelper appends the single shared '__return' routine every 'return' command
// jumps to: it restores the caller's segment pointers from the frame 'call' pushed and
// resumes execution at the saved return address.
func (pl *PeepholeLowerer) writeReturnHelper() {
	pl.emitLabel("__return")

	pl.emitA("5")
	pl.emitC("D", "A")
	pl.emitA("LCL")
	pl.emitC("A", "M-D")
	pl.emitC("D", "M")
	pl.emitA("R15")
	pl.emitC("M", "D") // R15 = *(LCL-5), the return address

	pl.emitA("SP")
	pl.emitC("AM", "M-1")
	pl.emitC("D", "M") // return value
	pl.emitA("ARG")
	pl.emitC("A", "M")
	pl.emitC("M", "D") // *ARG = pop()

	pl.emitC("D", "A+1")
	pl.emitA("SP")
	pl.emitC("M", "D") // SP = ARG + 1

	pl.emitA("LCL")
	pl.emitC("D", "M")
	pl.emitA("R14")
	pl.emitC("AM", "D-1")
	pl.emitC("D", "M")
	pl.emitA("THAT")
	pl.emitC("M", "D") // THAT = M[LCL-1]

	for _, base := range []string{"THIS", "ARG", "LCL"} {
		pl.emitA("R14")
		pl.emitC("AM", "M-1")
		pl.emitC("D", "M")
		pl.emitA(base)
		pl.emitC("M", "D")
	}

	pl.emitA("R15")
	pl.emitC("A", "M")
	pl.emitJump("0", "JMP")
}

var _ = list.List{} // translate's return type; referenced for doc-linking purposes only
