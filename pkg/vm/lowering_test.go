package vm

import (
	"testing"

	"hackvm.dev/toolchain/pkg/asm"
)

func countLabels(prog asm.Program, name string) int {
	n := 0
	for _, inst := range prog {
		if l, ok := inst.(asm.LabelDecl); ok && l.Name == name {
			n++
		}
	}
	return n
}

func TestLowererSimpleAdd(t *testing.T) {
	program := Program{
		"SimpleAdd.vm": Module{
			MemoryOp{Operation: Push, Segment: Constant, Offset: 7},
			MemoryOp{Operation: Push, Segment: Constant, Offset: 8},
			ArithmeticOp{Operation: Add},
		},
	}

	lowerer := NewLowerer(program)
	asmProgram, err := lowerer.Lowerer()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	// 3 VM ops with no function/call/return in the whole program still get the shared
	// '__return' trampoline appended once.
	if n := countLabels(asmProgram, "__return"); n != 1 {
		t.Errorf("expected exactly one '__return' label, got %d", n)
	}
	if len(asmProgram) == 0 {
		t.Fatal("expected a non-empty instruction stream")
	}
}

func TestLowererEmptyProgram(t *testing.T) {
	lowerer := NewLowerer(Program{})
	if _, err := lowerer.Lowerer(); err == nil {
		t.Error("expected an error lowering an empty program")
	}
}

func TestLowererFunctionCallReturn(t *testing.T) {
	program := Program{
		"Main.vm": Module{
			FuncDecl{Name: "Main.main", NLocal: 0},
			FuncCallOp{Name: "Main.helper", NArgs: 0},
			ReturnOp{},
			FuncDecl{Name: "Main.helper", NLocal: 1},
			MemoryOp{Operation: Push, Segment: Constant, Offset: 0},
			ReturnOp{},
		},
	}

	lowerer := NewLowerer(program)
	asmProgram, err := lowerer.Lowerer()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if countLabels(asmProgram, "Main.main") != 1 {
		t.Error("expected the 'Main.main' function label to be emitted once")
	}
	if countLabels(asmProgram, "Main.helper") != 1 {
		t.Error("expected the 'Main.helper' function label to be emitted once")
	}
	if countLabels(asmProgram, "__return") != 1 {
		t.Error("expected exactly one shared '__return' trampoline across both functions")
	}
}
