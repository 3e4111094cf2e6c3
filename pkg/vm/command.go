package vm

import "container/list"

// ----------------------------------------------------------------------------
// Peephole intermediate representation
//
// The straightforward Lowerer in lowering.go turns every VM Operation into its own
// self-contained, stack-in/stack-out instruction sequence. That is simple and always
// correct, but wasteful: a 'push'  immediately followed by a 'pop' never needed to touch
// the stack at all, and a comparison immediately followed by an 'if-goto' can skip
// materializing the boolean it is about to test. The alternate, optimizing pipeline
// (see Optimize and the PeepholeLowerer) works over a richer per-instruction IR - modeled
// after the VM compiler's internal two-phase design - that records, per command, whether
// its left operand is already sitting on the stack ('in') and whether its result must be
// pushed back onto the stack ('fin') rather than left in a register. Peephole passes
// rewrite runs of commands to flip those flags from true to false, eliding the
// corresponding push/pop pair; the writer then honors whatever in/fin combination survives.

type commandType int

const (
	cNop commandType = iota
	cConstant
	cUnary
	cBinary
	cCompare
	cPush
	cPopDirect
	cPopIndirect
	cPopIndirectPush
	cCopy
	cLabel
	cGoto
	cIf
	cUnaryCompare
	cUnaryCompareIf
	cCompareIf
	cFunction
	cCall
	cReturn
	cIn  // helper marker inserted/removed by s_replicate/s_reduce/s_reconstruct
	cFin // helper marker inserted/removed by s_replicate/s_reduce/s_reconstruct
)

// unaryKind enumerates every unary transform a stack value can go through, including the
// constant-folded forms (xC) peephole passes introduce once a CONSTANT operand has been
// absorbed into its consumer.
type unaryKind int

const (
	uNeg unaryKind = iota
	uNot
	uAddC
	uSubC
	uBusC // reverse-subtract-by-constant: result = const - x
	uAndC
	uOrC
	uDouble
)

type binaryKind int

const (
	bAdd binaryKind = iota
	bSub
	bBus // reverse subtraction: result = rhs - lhs, introduced by o_const_swap
	bAnd
	bOr
)

// compareSpec names a three-way comparison as the disjunction of the outcomes it accepts,
// mirroring the VM's lt/eq/gt command fields. negate and swap match the algebraic
// identities used by o_negated_compare/o_negated_if and o_const_swap respectively.
type compareSpec struct{ lt, eq, gt bool }

func (c compareSpec) negate() compareSpec { return compareSpec{!c.lt, !c.eq, !c.gt} }
func (c compareSpec) swap() compareSpec   { return compareSpec{c.gt, c.eq, c.lt} }

// jump returns the Hack jump mnemonic that fires exactly when the comparison holds,
// given that the relevant quantity has already been loaded into D.
func (c compareSpec) jump() string {
	switch {
	case c.lt && c.eq && c.gt:
		return "JMP"
	case c.lt && c.eq && !c.gt:
		return "JLE"
	case c.lt && !c.eq && c.gt:
		return "JNE"
	case c.lt && !c.eq && !c.gt:
		return "JLT"
	case !c.lt && c.eq && c.gt:
		return "JGE"
	case !c.lt && c.eq && !c.gt:
		return "JEQ"
	case !c.lt && !c.eq && c.gt:
		return "JGT"
	default:
		return ""
	}
}

// command is one node of the peephole IR: a tagged union of every shape a VM instruction
// can take once CONSTANT/PUSH/POP nodes start fusing with their neighbors.
type command struct {
	typ commandType

	arg1 string // label name, for Label/Goto/If/CompareIf/UnaryCompareIf/Function/Call

	unary   unaryKind
	binary  binaryKind
	compare compareSpec

	segment1, segment2 SegmentType
	int1, int2         int

	in, fin bool
}

// translate lowers a Module's flat Operation list into the peephole IR's doubly-linked
// command list, in the same shape the VM compiler's own parser would have produced: every
// command initially both consumes its operand from the stack and leaves its result there.
func translate(ops []Operation) *list.List {
	cmds := list.New()
	for _, op := range ops {
		c := command{in: true, fin: true}

		switch top := op.(type) {
		case MemoryOp:
			switch top.Operation {
			case Push:
				if top.Segment == Constant {
					c.typ = cConstant
					c.int1 = int(top.Offset)
				} else {
					c.typ = cPush
					c.segment1 = top.Segment
					c.int1 = int(top.Offset)
				}
			case Pop:
				c.segment1 = top.Segment
				c.int1 = int(top.Offset)
				switch top.Segment {
				case Local, Argument, This, That:
					c.typ = cPopIndirect
				default: // Pointer, Temp, Static
					c.typ = cPopDirect
				}
			}
		case ArithmeticOp:
			switch top.Operation {
			case Add:
				c.typ, c.binary = cBinary, bAdd
			case Sub:
				c.typ, c.binary = cBinary, bSub
			case And:
				c.typ, c.binary = cBinary, bAnd
			case Or:
				c.typ, c.binary = cBinary, bOr
			case Neg:
				c.typ, c.unary = cUnary, uNeg
			case Not:
				c.typ, c.unary = cUnary, uNot
			case Lt:
				c.typ, c.compare = cCompare, compareSpec{lt: true}
			case Eq:
				c.typ, c.compare = cCompare, compareSpec{eq: true}
			case Gt:
				c.typ, c.compare = cCompare, compareSpec{gt: true}
			}
		case LabelDecl:
			c.typ, c.arg1 = cLabel, top.Name
		case GotoOp:
			c.arg1 = top.Label
			if top.Jump == Conditional {
				c.typ, c.compare = cIf, compareSpec{lt: true, gt: true}
			} else {
				c.typ = cGoto
			}
		case FuncDecl:
			c.typ, c.arg1, c.int1 = cFunction, top.Name, int(top.NLocal)
		case FuncCallOp:
			c.typ, c.arg1, c.int1 = cCall, top.Name, int(top.NArgs)
		case ReturnOp:
			c.typ = cReturn
		default:
			c.typ = cNop
		}

		cmds.PushBack(c)
	}
	return cmds
}

func cmdAt(e *list.Element) command   { return e.Value.(command) }
func setCmd(e *list.Element, c command) { e.Value = c }
