package ssa

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	pc "github.com/prataprc/goparsec"
)

// ----------------------------------------------------------------------------
// Text format serializer
//
// `define @name { block $label { instr; ... } ... }` is both the input and
// the output of the middle end: tests feed it in, passes run over the
// resulting Unit, and the result is formatted back out for comparison.
// Argument sigils: '#' constant, '%' reg, '@' global, '&' local, '$' label.

// Format renders a Unit to its canonical textual form. Per the open
// question on phi-operand ordering, each phi's (pred, val) pairs are
// emitted sorted by predecessor label name so two semantically-identical
// subroutines always produce byte-identical text.
func Format(u *Unit) string {
	var b strings.Builder
	for _, s := range u.Subroutines() {
		formatSubroutine(&b, u, s)
	}
	return b.String()
}

func formatSubroutine(b *strings.Builder, u *Unit, s *Subroutine) {
	fmt.Fprintf(b, "define @%s {\n", s.Name)
	for _, block := range s.Blocks() {
		fmt.Fprintf(b, "block $%s {\n", s.Labels.Name(block.Label))
		for _, in := range block.Instructions {
			b.WriteString("  ")
			formatInstruction(b, u, s, in)
			b.WriteString(";\n")
		}
		b.WriteString("}\n")
	}
	b.WriteString("}\n")
}

func formatInstruction(b *strings.Builder, u *Unit, s *Subroutine, in Instruction) {
	if in.Op == PHI {
		dst := formatArg(u, s, in.Args[0])
		fmt.Fprintf(b, "%s = phi", dst)
		arms := append([]PhiArg(nil), in.Phis...)
		sortPhiArms(s, arms)
		for i, arm := range arms {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(b, " [%s %s]", formatArg(u, s, arm.Pred), formatArg(u, s, arm.Val))
		}
		return
	}

	if def, ok := in.Def(); ok {
		fmt.Fprintf(b, "%s = %s", formatArg(u, s, def), in.Op)
		for _, a := range in.Args[1:] {
			fmt.Fprintf(b, " %s", formatArg(u, s, a))
		}
		return
	}

	fmt.Fprintf(b, "%s", in.Op)
	for _, a := range in.Args {
		fmt.Fprintf(b, " %s", formatArg(u, s, a))
	}
}

func sortPhiArms(s *Subroutine, arms []PhiArg) {
	for i := 1; i < len(arms); i++ {
		for j := i; j > 0; j-- {
			a := s.Labels.Name(arms[j-1].Pred.Handle)
			bN := s.Labels.Name(arms[j].Pred.Handle)
			if a <= bN {
				break
			}
			arms[j-1], arms[j] = arms[j], arms[j-1]
		}
	}
}

func formatArg(u *Unit, s *Subroutine, a Argument) string {
	switch a.Kind {
	case ArgConstant:
		return fmt.Sprintf("#%d", a.Const)
	case ArgReg:
		return "%" + s.Regs.Name(a.Handle)
	case ArgGlobal:
		return "@" + u.Globals.Name(a.Handle)
	case ArgLocal:
		return "&" + s.Locals.Name(a.Handle)
	case ArgLabel:
		return "$" + s.Labels.Name(a.Handle)
	default:
		return "?"
	}
}

// ----------------------------------------------------------------------------
// Grammar

var textAST = pc.NewAST("ssa", 100)

var (
	pUnit = textAST.ManyUntil("unit", nil, pDefine, pc.End())

	pDefine = textAST.And("define", nil,
		pc.Atom("define", "define"), pc.Atom("@", "@"), pIdent,
		pc.Atom("{", "{"), textAST.Many("blocks", nil, pBlock), pc.Atom("}", "}"),
	)

	pBlock = textAST.And("block", nil,
		pc.Atom("block", "block"), pc.Atom("$", "$"), pIdent,
		pc.Atom("{", "{"), textAST.Many("instrs", nil, pInstrLine), pc.Atom("}", "}"),
	)

	pInstrLine = textAST.And("instr-line", nil, pInstr, pc.Atom(";", ";"))

	pInstr = textAST.OrdChoice("instr", nil, pAssign, pVoidInstr)

	pAssign = textAST.And("assign", nil, pArg, pc.Atom("=", "="), pRHS)

	pRHS = textAST.OrdChoice("rhs", nil, pPhi, pOpApply)

	pPhi = textAST.And("phi", nil, pc.Atom("phi", "phi"),
		textAST.Many("arms", nil, textAST.And("arm", nil,
			pc.Atom("[", "["), pArg, pArg, pc.Atom("]", "]"),
			textAST.Maybe("comma", nil, pc.Atom(",", ",")))))

	pOpApply = textAST.And("op-apply", nil, pOpcode, textAST.Many("operands", nil, pArg))

	pVoidInstr = textAST.And("void-instr", nil, pOpcode, textAST.Many("operands", nil, pArg))

	pOpcode = textAST.OrdChoice("opcode", nil,
		pc.Atom("argument", "argument"), pc.Atom("mov", "mov"),
		pc.Atom("add", "add"), pc.Atom("sub", "sub"), pc.Atom("and", "and"), pc.Atom("or", "or"),
		pc.Atom("neg", "neg"), pc.Atom("not", "not"), pc.Atom("load", "load"), pc.Atom("store", "store"),
		pc.Atom("call", "call"), pc.Atom("return", "return"), pc.Atom("jump", "jump"),
		pc.Atom("jlt", "jlt"), pc.Atom("jeq", "jeq"),
	)

	pArg = textAST.OrdChoice("arg", nil, pConstArg, pRegArg, pGlobalArg, pLocalArg, pLabelArg)

	pConstArg = textAST.And("const-arg", nil, pc.Atom("#", "#"), pc.Int())
	pRegArg   = textAST.And("reg-arg", nil, pc.Atom("%", "%"), pIdent)
	pGlobalArg = textAST.And("global-arg", nil, pc.Atom("@", "@"), pIdent)
	pLocalArg  = textAST.And("local-arg", nil, pc.Atom("&", "&"), pIdent)
	pLabelArg  = textAST.And("label-arg", nil, pc.Atom("$", "$"), pIdent)

	pIdent = textAST.OrdChoice("ident", nil, pc.Int(), pc.Ident())
)

// TextParser reads the SSA text format into a Unit.
type TextParser struct{ reader io.Reader }

func NewTextParser(r io.Reader) TextParser { return TextParser{reader: r} }

func (p TextParser) Parse() (*Unit, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read from io.Reader: %w", err)
	}

	if os.Getenv("PARSEC_DEBUG") != "" {
		textAST.SetDebug()
	}

	root, _ := textAST.Parsewith(pUnit, pc.NewScanner(content))
	if root == nil {
		return nil, &ParseError{Message: "failed to parse SSA text"}
	}

	unit := NewUnit()
	for _, child := range root.GetChildren() {
		if child.GetName() != "define" {
			continue
		}
		sub, err := parseDefine(unit, child)
		if err != nil {
			return nil, err
		}
		unit.AddSubroutine(sub)
	}
	return unit, nil
}

func parseDefine(u *Unit, node pc.Queryable) (*Subroutine, error) {
	children := node.GetChildren()
	if len(children) < 4 {
		return nil, &ParseError{Message: "malformed define block"}
	}
	name := children[2].GetValue()
	sub := NewSubroutine(name)

	blocksNode := children[4]
	for _, blockNode := range blocksNode.GetChildren() {
		if err := parseBlockHeader(sub, blockNode); err != nil {
			return nil, err
		}
	}
	for _, blockNode := range blocksNode.GetChildren() {
		if err := parseBlockBody(u, sub, blockNode); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func parseBlockHeader(sub *Subroutine, node pc.Queryable) error {
	children := node.GetChildren()
	if len(children) < 3 {
		return &ParseError{Message: "malformed block header"}
	}
	name := children[2].GetValue()
	if name != "entry" && name != "exit" {
		sub.AddBlock(name)
	}
	return nil
}

func parseBlockBody(u *Unit, sub *Subroutine, node pc.Queryable) error {
	children := node.GetChildren()
	name := children[2].GetValue()
	label := sub.Labels.Intern(name)
	instrsNode := children[4]

	for _, lineNode := range instrsNode.GetChildren() {
		if lineNode.GetName() != "instr-line" {
			continue
		}
		instrNode := lineNode.GetChildren()[0]
		in, isTerm, err := parseInstr(u, sub, instrNode)
		if err != nil {
			return err
		}
		if isTerm {
			if err := sub.SetTerminator(label, in); err != nil {
				return err
			}
		} else if in.Op == PHI {
			sub.blocks[label].AppendPhi(in)
		} else {
			sub.blocks[label].Append(in)
		}
	}
	return nil
}

func parseInstr(u *Unit, sub *Subroutine, node pc.Queryable) (Instruction, bool, error) {
	switch node.GetName() {
	case "assign":
		children := node.GetChildren()
		dst := parseArg(u, sub, children[0])
		rhs := children[2]
		inner := rhs.GetChildren()[0]
		if inner.GetName() == "phi" {
			arms := parsePhiArms(u, sub, inner)
			return NewPhi(dst, arms), false, nil
		}
		return parseOpApply(u, sub, dst, inner, true)

	case "void-instr":
		zero := Argument{}
		in, isTerm, err := parseOpApply(u, sub, zero, node, false)
		return in, isTerm, err
	}
	return Instruction{}, false, &ParseError{Message: "unrecognized instruction node " + node.GetName()}
}

func parsePhiArms(u *Unit, sub *Subroutine, node pc.Queryable) []PhiArg {
	var arms []PhiArg
	armsNode := node.GetChildren()[1]
	for _, arm := range armsNode.GetChildren() {
		c := arm.GetChildren()
		pred := parseArg(u, sub, c[1])
		val := parseArg(u, sub, c[2])
		arms = append(arms, PhiArg{Pred: pred, Val: val})
	}
	return arms
}

func parseOpApply(u *Unit, sub *Subroutine, dst Argument, node pc.Queryable, hasDst bool) (Instruction, bool, error) {
	children := node.GetChildren()
	opName := children[0].GetValue()
	operandsNode := children[1]
	var operands []Argument
	for _, o := range operandsNode.GetChildren() {
		operands = append(operands, parseArg(u, sub, o))
	}

	switch opName {
	case "argument":
		return NewArgument(dst, operands[0]), false, nil
	case "mov":
		return NewMov(dst, operands[0]), false, nil
	case "add":
		return NewBinary(ADD, dst, operands[0], operands[1]), false, nil
	case "sub":
		return NewBinary(SUB, dst, operands[0], operands[1]), false, nil
	case "and":
		return NewBinary(AND, dst, operands[0], operands[1]), false, nil
	case "or":
		return NewBinary(OR, dst, operands[0], operands[1]), false, nil
	case "neg":
		return NewUnary(NEG, dst, operands[0]), false, nil
	case "not":
		return NewUnary(NOT, dst, operands[0]), false, nil
	case "load":
		return NewLoad(dst, operands[0]), false, nil
	case "store":
		return NewStore(operands[0], operands[1]), false, nil
	case "call":
		return NewCall(dst, operands[0], operands[1:]...), false, nil
	case "return":
		return NewReturn(operands[0]), true, nil
	case "jump":
		return NewJump(operands[0]), true, nil
	case "jlt":
		return NewBranch(JLT, operands[0], operands[1], operands[2], operands[3]), true, nil
	case "jeq":
		return NewBranch(JEQ, operands[0], operands[1], operands[2], operands[3]), true, nil
	}
	return Instruction{}, false, &ParseError{Message: "unknown opcode " + opName}
}

func parseArg(u *Unit, sub *Subroutine, node pc.Queryable) Argument {
	children := node.GetChildren()
	switch node.GetName() {
	case "const-arg":
		v, _ := strconv.Atoi(children[1].GetValue())
		return Const(int16(v))
	case "reg-arg":
		return Reg(sub.Regs.Intern(children[1].GetValue()))
	case "global-arg":
		return Global(u.Globals.Intern(children[1].GetValue()))
	case "local-arg":
		return Local(sub.Locals.Intern(children[1].GetValue()))
	case "label-arg":
		return Label(sub.Labels.Intern(children[1].GetValue()))
	}
	return Argument{}
}
