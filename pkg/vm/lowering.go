package vm

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"hackvm.dev/toolchain/pkg/asm"
)

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' (one Module per source file) and produces its
// 'asm.Program' counterpart.
//
// Each Module is lowered independently and in filename order (so that a build stays
// reproducible regardless of Go's unordered map iteration), but every Module shares the
// same calling convention: a single '__return' helper, restoring the caller's segment
// pointers off the frame saved by 'call', is emitted once and shared by every 'return'
// across every file. A fresh label-suffix counter scopes internal compare/call-site
// labels to each function and call-site so two files never collide on a symbol.
type Lowerer struct {
	program Program

	out            []asm.Instruction
	filename       string // basename (sans extension) of the Module currently being lowered, used for Static scoping
	function       string // name of the FuncDecl currently being lowered, used for Label/Goto scoping
	compareCounter int
	returnCounter  int
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
// Requires the argument Program 'p' to be not nil.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p}
}

// Triggers the lowering process on every Module of the Program, in filename order, and
// appends the shared calling-convention helper used by every 'return' operation.
func (hl *Lowerer) Lowerer() (asm.Program, error) {
	if hl.program == nil || len(hl.program) == 0 {
		return nil, fmt.Errorf("the given 'program' is empty or nil")
	}

	names := make([]string, 0, len(hl.program))
	for name := range hl.program {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		hl.filename = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		for _, operation := range hl.program[name] {
			if err := hl.write(operation); err != nil {
				return nil, fmt.Errorf("error lowering module '%s': %w", name, err)
			}
		}
	}

	hl.emitReturnHelper()

	return asm.Program(hl.out), nil
}

// emit appends a single asm.Instruction to the program being built.
func (hl *Lowerer) emit(inst asm.Instruction) { hl.out = append(hl.out, inst) }

func (hl *Lowerer) emitA(location string) { hl.emit(asm.AInstruction{Location: location}) }
func (hl *Lowerer) emitC(dest, comp string) {
	hl.emit(asm.CInstruction{Dest: dest, Comp: comp})
}
func (hl *Lowerer) emitJump(comp, jump string) {
	hl.emit(asm.CInstruction{Comp: comp, Jump: jump})
}
func (hl *Lowerer) emitLabel(name string) { hl.emit(asm.LabelDecl{Name: name}) }

// scoped qualifies a VM-level label with the enclosing function, matching the VM
// specification's function-local label scoping rule.
func (hl *Lowerer) scoped(label string) string { return hl.function + "$" + label }

// push appends the value currently held in D onto the stack, advancing SP.
func (hl *Lowerer) push() {
	hl.emitA("SP")
	hl.emitC("A", "M")
	hl.emitC("M", "D")
	hl.emitA("SP")
	hl.emitC("M", "M+1")
}

// pop loads D with the stack top and retreats SP, leaving A pointed at the popped slot.
func (hl *Lowerer) pop() {
	hl.emitA("SP")
	hl.emitC("AM", "M-1")
	hl.emitC("D", "M")
}

func (hl *Lowerer) write(op Operation) error {
	switch top := op.(type) {
	case MemoryOp:
		return hl.writeMemoryOp(top)
	case ArithmeticOp:
		return hl.writeArithmeticOp(top)
	case LabelDecl:
		hl.emitLabel(hl.scoped(top.Name))
		return nil
	case GotoOp:
		return hl.writeGotoOp(top)
	case FuncDecl:
		return hl.writeFuncDecl(top)
	case FuncCallOp:
		return hl.writeFuncCallOp(top)
	case ReturnOp:
		hl.emitA("__return")
		hl.emitJump("0", "JMP")
		return nil
	default:
		return fmt.Errorf("unrecognized operation '%T'", op)
	}
}

// ----------------------------------------------------------------------------
// Memory Op

func (hl *Lowerer) writeMemoryOp(op MemoryOp) error {
	switch op.Operation {
	case Push:
		if err := hl.loadSegmentValue(op.Segment, op.Offset); err != nil {
			return err
		}
		hl.push()
		return nil
	case Pop:
		switch op.Segment {
		case Constant:
			return fmt.Errorf("unable to pop into the 'constant' segment")
		case Static, Pointer, Temp:
			hl.pop()
			hl.emitA(hl.directAddress(op.Segment, op.Offset))
			hl.emitC("M", "D")
			return nil
		default: // Local, Argument, This, That: indirect through a base pointer
			hl.loadIndirectAddress(op.Segment, op.Offset)
			hl.emitA("R13")
			hl.emitC("M", "D")
			hl.pop()
			hl.emitA("R13")
			hl.emitC("A", "M")
			hl.emitC("M", "D")
			return nil
		}
	default:
		return fmt.Errorf("unrecognized memory operation '%s'", op.Operation)
	}
}

// directAddress returns the raw numeric/symbolic address for the segments that map onto
// a single fixed memory cell per offset (no base-pointer indirection required).
func (hl *Lowerer) directAddress(segment SegmentType, offset uint16) string {
	switch segment {
	case Static:
		return hl.filename + "." + strconv.Itoa(int(offset))
	case Pointer:
		return strconv.Itoa(3 + int(offset))
	case Temp:
		return strconv.Itoa(5 + int(offset))
	default:
		return ""
	}
}

// loadSegmentValue loads D with the value held at segment[offset].
func (hl *Lowerer) loadSegmentValue(segment SegmentType, offset uint16) error {
	switch segment {
	case Constant:
		hl.emitA(strconv.Itoa(int(offset)))
		hl.emitC("D", "A")
		return nil
	case Static, Pointer, Temp:
		hl.emitA(hl.directAddress(segment, offset))
		hl.emitC("D", "M")
		return nil
	case Local, Argument, This, That:
		hl.loadIndirectAddress(segment, offset)
		hl.emitC("A", "D")
		hl.emitC("D", "M")
		return nil
	default:
		return fmt.Errorf("unrecognized segment '%s'", segment)
	}
}

// loadIndirectAddress loads D with the absolute address of segment[offset], for one of
// the four pointer-indirected segments.
func (hl *Lowerer) loadIndirectAddress(segment SegmentType, offset uint16) {
	hl.emitA(strconv.Itoa(int(offset)))
	hl.emitC("D", "A")
	hl.emitA(string(hl.basePointer(segment)))
	hl.emitC("D", "D+M")
}

func (hl *Lowerer) basePointer(segment SegmentType) string {
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

// ----------------------------------------------------------------------------
// Arithmetic Op

func (hl *Lowerer) writeArithmeticOp(op ArithmeticOp) error {
	switch op.Operation {
	case Neg, Not:
		hl.emitA("SP")
		hl.emitC("A", "M-1")
		comp := map[ArithOpType]string{Neg: "-M", Not: "!M"}[op.Operation]
		hl.emitC("M", comp)
		return nil
	case Add, Sub, And, Or:
		hl.pop() // D = y
		hl.emitC("A", "A-1") // A points at x
		comp := map[ArithOpType]string{Add: "M+D", Sub: "M-D", And: "M&D", Or: "M|D"}[op.Operation]
		hl.emitC("M", comp)
		return nil
	case Eq, Gt, Lt:
		return hl.writeCompare(op.Operation)
	default:
		return fmt.Errorf("unrecognized arithmetic operation '%s'", op.Operation)
	}
}

var compareJump = map[ArithOpType]string{Eq: "JEQ", Gt: "JGT", Lt: "JLT"}

func (hl *Lowerer) writeCompare(op ArithOpType) error {
	jump, ok := compareJump[op]
	if !ok {
		return fmt.Errorf("'%s' is not a comparison operation", op)
	}

	trueLabel := fmt.Sprintf("__compareTrue.%d", hl.compareCounter)
	endLabel := fmt.Sprintf("__compareEnd.%d", hl.compareCounter)
	hl.compareCounter++

	hl.pop()                   // D = y
	hl.emitC("A", "A-1")       // A points at x
	hl.emitC("D", "M-D")       // D = x - y
	hl.emitA(trueLabel)
	hl.emitJump("D", jump)
	hl.emitA("SP")
	hl.emitC("A", "M-1")
	hl.emitC("M", "0") // false
	hl.emitA(endLabel)
	hl.emitJump("0", "JMP")
	hl.emitLabel(trueLabel)
	hl.emitA("SP")
	hl.emitC("A", "M-1")
	hl.emitC("M", "-1") // true
	hl.emitLabel(endLabel)
	return nil
}

// ----------------------------------------------------------------------------
// Control flow: Label, Goto

func (hl *Lowerer) writeGotoOp(op GotoOp) error {
	switch op.Jump {
	case Unconditional:
		hl.emitA(hl.scoped(op.Label))
		hl.emitJump("0", "JMP")
		return nil
	case Conditional:
		hl.pop()
		hl.emitA(hl.scoped(op.Label))
		hl.emitJump("D", "JNE")
		return nil
	default:
		return fmt.Errorf("unrecognized jump type '%s'", op.Jump)
	}
}

// ----------------------------------------------------------------------------
// Function, Call, Return

func (hl *Lowerer) writeFuncDecl(op FuncDecl) error {
	hl.function = op.Name
	hl.emitLabel(op.Name)

	for i := uint16(0); i < op.NLocal; i++ {
		hl.emitC("D", "0")
		hl.push()
	}
	return nil
}

// 47 instructions per call site; matches the classic textbook calling convention of
// saving the caller's LCL/ARG/THIS/THAT and the return address on the stack itself.
func (hl *Lowerer) writeFuncCallOp(op FuncCallOp) error {
	returnLabel := fmt.Sprintf("%s$ret.%d", hl.function, hl.returnCounter)
	hl.returnCounter++

	hl.emitA(returnLabel)
	hl.emitC("D", "A")
	hl.push()
	for _, base := range []string{"LCL", "ARG", "THIS", "THAT"} {
		hl.emitA(base)
		hl.emitC("D", "M")
		hl.push()
	}

	hl.emitA("SP")
	hl.emitC("D", "M")
	hl.emitA(strconv.Itoa(int(op.NArgs) + 5))
	hl.emitC("D", "D-A")
	hl.emitA("ARG")
	hl.emitC("M", "D") // ARG = SP - NArgs - 5

	hl.emitA("SP")
	hl.emitC("D", "M")
	hl.emitA("LCL")
	hl.emitC("M", "D") // LCL = SP

	hl.emitA(op.Name)
	hl.emitJump("0", "JMP")

	hl.emitLabel(returnLabel)
	return nil
}

// emitReturnHelper appends the single shared '__return' routine every ReturnOp jumps to.
// It restores the caller's segment pointers from the frame 'call' saved on the stack and
// resumes execution at the saved return address.
func (hl *Lowerer) emitReturnHelper() {
	hl.emitLabel("__return")

	hl.emitA("LCL")
	hl.emitC("D", "M")
	hl.emitA("R13")
	hl.emitC("M", "D") // frame = LCL

	hl.emitA("5")
	hl.emitC("A", "D-A")
	hl.emitC("D", "M")
	hl.emitA("R14")
	hl.emitC("M", "D") // retAddr = *(frame-5)

	hl.pop()
	hl.emitA("ARG")
	hl.emitC("A", "M")
	hl.emitC("M", "D") // *ARG = pop()

	hl.emitA("ARG")
	hl.emitC("D", "M+1")
	hl.emitA("SP")
	hl.emitC("M", "D") // SP = ARG + 1

	for _, base := range []string{"THAT", "THIS", "ARG", "LCL"} {
		hl.emitA("R13")
		hl.emitC("AM", "M-1")
		hl.emitC("D", "M")
		hl.emitA(base)
		hl.emitC("M", "D")
	}

	hl.emitA("R14")
	hl.emitC("A", "M")
	hl.emitJump("0", "JMP")
}
