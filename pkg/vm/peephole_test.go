package vm

import (
	"container/list"
	"testing"
)

func listOf(cmds ...command) *list.List {
	l := list.New()
	for _, c := range cmds {
		l.PushBack(c)
	}
	return l
}

func TestOBloatedGoto(t *testing.T) {
	// if-goto L; goto M; label L:  ==>  not; if-goto M; label L:
	cmds := listOf(
		command{typ: cIf, arg1: "L", compare: compareSpec{lt: true, gt: true}},
		command{typ: cGoto, arg1: "M"},
		command{typ: cLabel, arg1: "L"},
	)

	optimize3(cmds, oBloatedGoto)

	got := collect(cmds)
	if len(got) != 3 {
		t.Fatalf("expected 3 commands after folding, got %d", len(got))
	}
	if got[0].typ != cUnary || got[0].unary != uNot {
		t.Errorf("expected the first command to become a NOT unary, got %+v", got[0])
	}
	if got[1].typ != cIf || got[1].arg1 != "M" {
		t.Errorf("expected the conditional jump to target M, got %+v", got[1])
	}
	if got[1].compare != (compareSpec{lt: true, gt: true}) {
		t.Errorf("expected the original compare to be preserved, got %+v", got[1].compare)
	}
}

func TestOConstExpression3(t *testing.T) {
	cmds := listOf(
		command{typ: cConstant, int1: 2},
		command{typ: cConstant, int1: 3},
		command{typ: cBinary, binary: bAdd},
	)
	optimize3(cmds, oConstExpression3)

	got := collect(cmds)
	if len(got) != 1 || got[0].typ != cConstant || got[0].int1 != 5 {
		t.Fatalf("expected a single constant 5, got %+v", got)
	}
}

func TestOConstExpression3Compare(t *testing.T) {
	cmds := listOf(
		command{typ: cConstant, int1: 2},
		command{typ: cConstant, int1: 5},
		command{typ: cCompare, compare: compareSpec{lt: true}},
	)
	optimize3(cmds, oConstExpression3)

	got := collect(cmds)
	if len(got) != 1 || got[0].typ != cConstant || got[0].int1 != -1 {
		t.Fatalf("expected a single constant -1 (true), got %+v", got)
	}
}

func TestOConstSwap(t *testing.T) {
	// constant 3; push local 0; sub  ==>  push local 0; constant 3; bus (reverse sub)
	cmds := listOf(
		command{typ: cConstant, int1: 3},
		command{typ: cPush, segment1: Local, int1: 0},
		command{typ: cBinary, binary: bSub},
	)
	if !optimize3Once(cmds, oConstSwap) {
		t.Fatal("expected oConstSwap to fire")
	}

	got := collect(cmds)
	if got[0].typ != cPush || got[0].segment1 != Local || got[0].int1 != 0 {
		t.Errorf("expected the push to move first, got %+v", got[0])
	}
	if got[1].typ != cConstant || got[1].int1 != 3 {
		t.Errorf("expected the constant to move second, got %+v", got[1])
	}
	if got[2].typ != cBinary || got[2].binary != bBus {
		t.Errorf("expected sub to become the reverse-subtract bus, got %+v", got[2])
	}
}

// optimize3Once runs cb exactly once, on the first three commands of cmds (no sliding window,
// no restart-to-fixpoint), and reports whether it fired: enough to probe a single rewrite.
func optimize3Once(cmds *list.List, cb func(*list.List, *list.Element, *list.Element, *list.Element) bool) bool {
	c1 := cmds.Front()
	if c1 == nil {
		return false
	}
	c2 := c1.Next()
	if c2 == nil {
		return false
	}
	c3 := c2.Next()
	if c3 == nil {
		return false
	}
	return cb(cmds, c1, c2, c3)
}

func TestOBinaryEqualArg(t *testing.T) {
	cmds := listOf(
		command{typ: cPush, segment1: Local, int1: 1},
		command{typ: cPush, segment1: Local, int1: 1},
		command{typ: cBinary, binary: bAdd},
	)
	optimize3(cmds, oBinaryEqualArg)

	got := collect(cmds)
	if len(got) != 2 {
		t.Fatalf("expected one push to be dropped, got %d commands", len(got))
	}
	if got[0].typ != cPush {
		t.Errorf("expected the surviving push first, got %+v", got[0])
	}
	if got[1].typ != cUnary || got[1].unary != uDouble {
		t.Errorf("expected the add to become a double, got %+v", got[1])
	}
}

func TestStackElisionChain(t *testing.T) {
	// push local 0; push local 1; add -- the second push's value can be left in D and
	// fed straight into 'add' (no stack round-trip), while the first push still has to
	// land on the stack since 'add' needs both operands and only one register is free.
	cmds := listOf(
		command{typ: cPush, segment1: Local, int1: 0, in: true, fin: true},
		command{typ: cPush, segment1: Local, int1: 1, in: true, fin: true},
		command{typ: cBinary, binary: bAdd, in: true, fin: true},
	)

	optimize1(cmds, sReplicate)
	optimize2(cmds, sReduce)
	optimize2(cmds, sReconstruct)

	got := collect(cmds)
	for _, c := range got {
		if c.typ == cIn || c.typ == cFin {
			t.Fatalf("no IN/FIN marker should survive the chain, got %+v", got)
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 surviving commands, got %d: %+v", len(got), got)
	}

	if !got[0].fin {
		t.Errorf("first push has no predecessor to chain from, expected fin=true, got %+v", got[0])
	}
	if got[1].fin {
		t.Errorf("second push's value feeds 'add' directly, expected fin=false, got %+v", got[1])
	}
	if got[2].in {
		t.Errorf("'add' consumes the second push's value straight from D, expected in=false, got %+v", got[2])
	}
	if !got[2].fin {
		t.Errorf("nothing consumes 'add' here, expected fin=true, got %+v", got[2])
	}
}
