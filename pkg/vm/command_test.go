package vm

import (
	"container/list"
	"testing"
)

func collect(cmds *list.List) []command {
	out := make([]command, 0, cmds.Len())
	for e := cmds.Front(); e != nil; e = e.Next() {
		out = append(out, cmdAt(e))
	}
	return out
}

func TestTranslate(t *testing.T) {
	ops := []Operation{
		MemoryOp{Operation: Push, Segment: Constant, Offset: 7},
		MemoryOp{Operation: Push, Segment: Local, Offset: 2},
		MemoryOp{Operation: Pop, Segment: Argument, Offset: 1},
		MemoryOp{Operation: Pop, Segment: Temp, Offset: 3},
		ArithmeticOp{Operation: Add},
		ArithmeticOp{Operation: Neg},
		ArithmeticOp{Operation: Lt},
		LabelDecl{Name: "LOOP"},
		GotoOp{Jump: Unconditional, Label: "LOOP"},
		GotoOp{Jump: Conditional, Label: "LOOP"},
		FuncDecl{Name: "Main.run", NLocal: 2},
		FuncCallOp{Name: "Math.add", NArgs: 2},
		ReturnOp{},
	}

	cmds := translate(ops)
	got := collect(cmds)
	if len(got) != len(ops) {
		t.Fatalf("expected %d commands, got %d", len(ops), len(got))
	}

	test := func(i int, typ commandType) {
		if got[i].typ != typ {
			t.Errorf("command %d: expected type %d, got %d", i, typ, got[i].typ)
		}
		if !got[i].in || !got[i].fin {
			t.Errorf("command %d: expected in=fin=true right after translate", i)
		}
	}

	test(0, cConstant)
	test(1, cPush)
	test(2, cPopIndirect)
	test(3, cPopDirect)
	test(4, cBinary)
	test(5, cUnary)
	test(6, cCompare)
	test(7, cLabel)
	test(8, cGoto)
	test(9, cIf)
	test(10, cFunction)
	test(11, cCall)
	test(12, cReturn)

	if got[6].compare != (compareSpec{lt: true}) {
		t.Errorf("lt should translate to compareSpec{lt: true}, got %+v", got[6].compare)
	}
	if got[9].compare != (compareSpec{lt: true, gt: true}) {
		t.Errorf("if-goto should translate to a nonzero test, got %+v", got[9].compare)
	}
}

func TestCompareSpecJump(t *testing.T) {
	test := func(spec compareSpec, expected string) {
		if got := spec.jump(); got != expected {
			t.Errorf("%+v.jump() = %q, expected %q", spec, got, expected)
		}
	}

	test(compareSpec{lt: true}, "JLT")
	test(compareSpec{eq: true}, "JEQ")
	test(compareSpec{gt: true}, "JGT")
	test(compareSpec{lt: true, gt: true}, "JNE")
	test(compareSpec{eq: true, gt: true}, "JGE")
	test(compareSpec{lt: true, eq: true}, "JLE")
	test(compareSpec{lt: true, eq: true, gt: true}, "JMP")
}

func TestCompareSpecNegateAndSwap(t *testing.T) {
	lt := compareSpec{lt: true}
	if lt.negate() != (compareSpec{eq: true, gt: true}) {
		t.Errorf("negate of 'lt' should be 'ge', got %+v", lt.negate())
	}
	if lt.swap() != (compareSpec{gt: true}) {
		t.Errorf("swap of 'lt' should be 'gt', got %+v", lt.swap())
	}
}
