package vm

import "testing"

func TestPeepholeLowererSimpleAdd(t *testing.T) {
	program := Program{
		"SimpleAdd.vm": Module{
			MemoryOp{Operation: Push, Segment: Constant, Offset: 7},
			MemoryOp{Operation: Push, Segment: Constant, Offset: 8},
			ArithmeticOp{Operation: Add},
		},
	}

	lowerer := NewPeepholeLowerer(program)
	asmProgram, err := lowerer.Lower()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	// "constant 7; constant 8; add" folds to a single constant at compile time; the checks
	// below are that some code is emitted and that exactly one '__return' trampoline is present.
	if len(asmProgram) == 0 {
		t.Fatal("expected a non-empty instruction stream")
	}
	if countLabels(asmProgram, "__return") != 1 {
		t.Error("expected exactly one '__return' trampoline")
	}
}

func TestPeepholeLowererEmptyProgram(t *testing.T) {
	lowerer := NewPeepholeLowerer(Program{})
	if _, err := lowerer.Lower(); err == nil {
		t.Error("expected an error lowering an empty program")
	}
}

func TestPeepholeLowererSharedCallStub(t *testing.T) {
	program := Program{
		"Main.vm": Module{
			FuncDecl{Name: "Main.main", NLocal: 0},
			FuncCallOp{Name: "Math.add", NArgs: 2},
			FuncCallOp{Name: "Math.sub", NArgs: 2},
			ReturnOp{},
		},
	}

	lowerer := NewPeepholeLowerer(program)
	asmProgram, err := lowerer.Lower()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	// Both calls share the same argument count (2), so only one '__call2' trampoline
	// should be emitted and reused by the second call site.
	if n := countLabels(asmProgram, "__call2"); n != 1 {
		t.Errorf("expected exactly one shared '__call2' trampoline, got %d", n)
	}
}
