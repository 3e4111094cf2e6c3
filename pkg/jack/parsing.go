package jack

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	pc "github.com/prataprc/goparsec"

	"hackvm.dev/toolchain/pkg/utils"
)

var ast = pc.NewAST("jack_program", 0)

// Comments in Jack are stripped at the lexical level (same approach as the reference
// tokenizer) rather than threaded through the grammar, it keeps every other PC free of
// "or a comment" alternatives.
var commentPattern = regexp.MustCompile(`//[^\n]*|/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`)

// ----------------------------------------------------------------------------
// Lexical fragments

var (
	// Generic Identifier parser (for class, variable and subroutine names)
	pIdent = pc.Token(`[A-Za-z_][0-9a-zA-Z_]*`, "IDENT")

	pDot      = pc.Atom(".", "DOT")
	pSemi     = pc.Atom(";", "SEMI")
	pComma    = pc.Atom(",", "COMMA")
	pLBrace   = pc.Atom("{", "LBRACE")
	pRBrace   = pc.Atom("}", "RBRACE")
	pLParen   = pc.Atom("(", "LPAREN")
	pRParen   = pc.Atom(")", "RPAREN")
	pLBracket = pc.Atom("[", "LBRACKET")
	pRBracket = pc.Atom("]", "RBRACKET")
	pEquals   = pc.Atom("=", "EQUALS")

	// A type is either one of the 3 primitives or a class name, 'void' is only a valid
	// return type but is parsed here too since the grammar shape is otherwise identical.
	pDataType = ast.OrdChoice("data_type", nil,
		pc.Atom("int", "INT"), pc.Atom("char", "CHAR"), pc.Atom("boolean", "BOOL"),
		pc.Atom("void", "VOID"), pIdent,
	)
)

// ----------------------------------------------------------------------------
// Class & declarations

var (
	pClass = ast.And("class_decl", nil,
		pc.Atom("class", "CLASS"), pIdent, pLBrace,
		ast.Kleene("class_var_decs", nil, pClassVarDec),
		ast.Kleene("subroutine_decs", nil, pSubroutineDec),
		pRBrace,
	)

	pClassVarDec = ast.And("class_var_dec", nil,
		pVarScope, pDataType, pIdent,
		ast.Kleene("more_vars", nil, pIdent, pComma),
		pSemi,
	)

	pVarScope = ast.OrdChoice("var_scope", nil, pc.Atom("static", "STATIC"), pc.Atom("field", "FIELD"))

	pSubroutineDec = ast.And("subroutine_decl", nil,
		pSubroutineKind, pDataType, pIdent,
		pLParen, ast.Kleene("parameters", nil, pParameter, pComma), pRParen,
		pLBrace,
		ast.Kleene("var_decs", nil, pVarDec),
		ast.Kleene("statements", nil, pStatement),
		pRBrace,
	)

	pSubroutineKind = ast.OrdChoice("subroutine_kind", nil,
		pc.Atom("constructor", "CONSTRUCTOR"), pc.Atom("function", "FUNCTION"), pc.Atom("method", "METHOD"),
	)

	pParameter = ast.And("parameter", nil, pDataType, pIdent)

	pVarDec = ast.And("var_dec", nil,
		pc.Atom("var", "VAR"), pDataType, pIdent,
		ast.Kleene("more_vars", nil, pIdent, pComma),
		pSemi,
	)
)

// ----------------------------------------------------------------------------
// Statements

var (
	pStatement = ast.OrdChoice("statement", nil, pLetStmt, pIfStmt, pWhileStmt, pDoStmt, pReturnStmt)

	pLetStmt = ast.And("let_stmt", nil,
		pc.Atom("let", "LET"), pIdent,
		ast.Kleene("subscript", nil, ast.And("index", nil, pLBracket, pExpr, pRBracket)),
		pEquals, pExpr, pSemi,
	)

	pIfStmt = ast.And("if_stmt", nil,
		pc.Atom("if", "IF"), pLParen, pExpr, pRParen,
		pLBrace, ast.Kleene("then_block", nil, pStatement), pRBrace,
		ast.Kleene("else_block", nil, ast.And("else_part", nil,
			pc.Atom("else", "ELSE"), pLBrace, ast.Kleene("stmts", nil, pStatement), pRBrace,
		)),
	)

	pWhileStmt = ast.And("while_stmt", nil,
		pc.Atom("while", "WHILE"), pLParen, pExpr, pRParen,
		pLBrace, ast.Kleene("body", nil, pStatement), pRBrace,
	)

	pDoStmt = ast.And("do_stmt", nil, pc.Atom("do", "DO"), pSubroutineCall, pSemi)

	pReturnStmt = ast.And("return_stmt", nil, pc.Atom("return", "RETURN"), ast.Kleene("value", nil, pExpr), pSemi)

	// Supports both 'Class.method(...)'/'var.method(...)' (qualified) and 'method(...)'
	// (implicit this-class) call syntax, resolving which one it is is deferred to lowering.
	pSubroutineCall = ast.And("subroutine_call", nil,
		pIdent, ast.Kleene("qualifier", nil, ast.And("qualified_name", nil, pDot, pIdent)),
		pLParen, ast.Kleene("args", nil, pExpr, pComma), pRParen,
	)
)

// ----------------------------------------------------------------------------
// Expressions

var (
	// Jack expressions have no operator precedence: they are evaluated strictly
	// left-to-right, term by term, which is why this is a flat Kleene and not a
	// precedence-climbing grammar.
	pExpr = ast.And("expression", nil, pTerm, ast.Kleene("more_terms", nil, ast.And("more_term", nil, pBinOp, pTerm)))

	pBinOp = ast.OrdChoice("bin_op", nil,
		pc.Atom("+", "PLUS"), pc.Atom("-", "MINUS"), pc.Atom("*", "STAR"), pc.Atom("/", "SLASH"),
		pc.Atom("&", "AMP"), pc.Atom("|", "PIPE"), pc.Atom("<", "LT"), pc.Atom(">", "GT"), pc.Atom("=", "EQ"),
	)

	// NOTE: ordering here matters, 'pSubroutineCall' and 'pArrayAccess' must be tried
	// before the bare 'pIdent' alternative, otherwise the identifier alone would always
	// match first and leave the trailing '(' or '[' dangling for the caller to choke on.
	pTerm = ast.OrdChoice("term", nil,
		pKeywordConstant,
		pUnaryTerm,
		pParenExpr,
		pSubroutineCall,
		pArrayAccess,
		pc.Float(), pc.Int(),
		pc.Token(`"(?:\\.|[^"\\])*"`, "STRING"),
		pIdent,
	)

	pKeywordConstant = ast.OrdChoice("keyword_constant", nil,
		pc.Atom("true", "TRUE"), pc.Atom("false", "FALSE"), pc.Atom("null", "NULL"), pc.Atom("this", "THIS"),
	)

	pUnaryTerm = ast.And("unary_term", nil, pUnaryOp, pTerm)
	pUnaryOp   = ast.OrdChoice("unary_op", nil, pc.Atom("-", "NEG"), pc.Atom("~", "TILDE"))

	pParenExpr = ast.And("paren_expr", nil, pLParen, pExpr, pRParen)

	pArrayAccess = ast.And("array_access", nil, pIdent, pLBracket, pExpr, pRBracket)
)

// ----------------------------------------------------------------------------
// Jack Parser

// This section defines the Parser for the nand2tetris Jack language.
//
// It uses parser combinator(s) to obtain the AST from the source code (the latter can be provided)
// in multiple ways using a generic io.Reader, the library reads up the feature flags (as env vars):
// - PARSEC_DEBUG: Verbose logging to inspect which of the PCs gets triggered and match
// - EXPORT_AST:   Exports in the DEBUG_FOLDER a Graphviz representation of the AST
// - PRINT_AST:    Print on the stdout a textual representation of the AST
type Parser struct{ reader io.Reader }

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// Parser entrypoint divides the 2 phases of the parsing pipeline
// Text --> AST: This step is done using PCs and returns a generic traversable AST
// AST --> IR: This step is done by traversing the AST and extracting the 'jack.Class'
func (p *Parser) Parse() (Class, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return Class{}, fmt.Errorf("cannot read from 'io.Reader': %s", err)
	}

	root, success := p.FromSource(content)
	if !success {
		return Class{}, fmt.Errorf("failed to parse AST from input content")
	}

	return p.FromAST(root)
}

// Scans the textual input stream coming from the 'reader' method and returns a traversable AST
// (Abstract Syntax Tree) that can be eventually visited to extract/transform the info available.
func (p *Parser) FromSource(source []byte) (pc.Queryable, bool) {
	stripped := commentPattern.ReplaceAll(source, []byte(" "))

	// Feature flag: Enable 'goparsec' library's debug logs
	if os.Getenv("PARSEC_DEBUG") != "" {
		ast.SetDebug()
	}

	// We generate the traversable Abstract Syntax Tree from the source content
	root, _ := ast.Parsewith(pClass, pc.NewScanner(stripped))

	// Feature flag: Enables export of the AST as Dot file (debug.ast.dot)
	if os.Getenv("EXPORT_AST") != "" {
		file, _ := os.Create(fmt.Sprintf("%s/debug.ast.dot", os.Getenv("DEBUG_FOLDER")))
		defer file.Close()

		file.Write([]byte(ast.Dotstring("\"Jack AST\"")))
	}

	// Feature flag: Enables pretty printing of the AST on the console
	if os.Getenv("PRINT_AST") != "" {
		ast.Prettyprint()
	}

	return root, root != nil
}

// This function takes the root node of the raw parsed AST and does a DFS on it parsing
// one by one each subtree and returning a 'jack.Class' that can be used as in-memory and
// type-safe AST not dependent on the parsing library used.
func (p *Parser) FromAST(root pc.Queryable) (Class, error) {
	if root.GetName() != "class_decl" {
		return Class{}, fmt.Errorf("expected node 'class_decl', found %s", root.GetName())
	}
	if children := root.GetChildren(); len(children) != 6 {
		return Class{}, fmt.Errorf("expected node 'class_decl' with 6 children, got %d", len(children))
	}

	children := root.GetChildren()
	class := Class{Name: children[1].GetValue()}

	for _, varDecNode := range children[3].GetChildren() {
		variables, err := p.HandleClassVarDec(varDecNode)
		if err != nil {
			return Class{}, fmt.Errorf("error handling class variable declaration: %w", err)
		}
		for _, variable := range variables {
			class.Fields.Set(variable.Name, variable)
		}
	}

	for _, subroutineNode := range children[4].GetChildren() {
		subroutine, err := p.HandleSubroutineDec(subroutineNode)
		if err != nil {
			return Class{}, fmt.Errorf("error handling subroutine declaration in class '%s': %w", class.Name, err)
		}
		class.Subroutines.Set(subroutine.Name, subroutine)
	}

	return class, nil
}

// Specialized function to convert a "class_var_dec" node into one or more 'jack.Variable'.
func (Parser) HandleClassVarDec(node pc.Queryable) ([]Variable, error) {
	if node.GetName() != "class_var_dec" {
		return nil, fmt.Errorf("expected node 'class_var_dec', got %s", node.GetName())
	}
	children := node.GetChildren()
	if len(children) != 5 {
		return nil, fmt.Errorf("expected node 'class_var_dec' with 5 children, got %d", len(children))
	}

	varType := Field
	if children[0].GetValue() == "static" {
		varType = Static
	}
	dataType, className := dataTypeFromNode(children[1])

	names := []string{children[2].GetValue()}
	for _, more := range children[3].GetChildren() {
		names = append(names, more.GetValue())
	}

	variables := make([]Variable, 0, len(names))
	for _, name := range names {
		variables = append(variables, Variable{Name: name, Type: varType, DataType: dataType, ClassName: className})
	}
	return variables, nil
}

// Specialized function to convert a "var_dec" node into one or more local 'jack.Variable'.
func (Parser) HandleVarDec(node pc.Queryable) ([]Variable, error) {
	if node.GetName() != "var_dec" {
		return nil, fmt.Errorf("expected node 'var_dec', got %s", node.GetName())
	}
	children := node.GetChildren()
	if len(children) != 5 {
		return nil, fmt.Errorf("expected node 'var_dec' with 5 children, got %d", len(children))
	}

	dataType, className := dataTypeFromNode(children[1])

	names := []string{children[2].GetValue()}
	for _, more := range children[3].GetChildren() {
		names = append(names, more.GetValue())
	}

	variables := make([]Variable, 0, len(names))
	for _, name := range names {
		variables = append(variables, Variable{Name: name, Type: Local, DataType: dataType, ClassName: className})
	}
	return variables, nil
}

// Specialized function to convert a "parameter" node into a 'jack.Variable'.
func (Parser) HandleParameter(node pc.Queryable) (Variable, error) {
	if node.GetName() != "parameter" {
		return Variable{}, fmt.Errorf("expected node 'parameter', got %s", node.GetName())
	}
	children := node.GetChildren()
	if len(children) != 2 {
		return Variable{}, fmt.Errorf("expected node 'parameter' with 2 children, got %d", len(children))
	}

	dataType, className := dataTypeFromNode(children[0])
	return Variable{Name: children[1].GetValue(), Type: Parameter, DataType: dataType, ClassName: className}, nil
}

// Specialized function to convert a "subroutine_decl" node into a 'jack.Subroutine'.
func (p *Parser) HandleSubroutineDec(node pc.Queryable) (Subroutine, error) {
	if node.GetName() != "subroutine_decl" {
		return Subroutine{}, fmt.Errorf("expected node 'subroutine_decl', got %s", node.GetName())
	}
	children := node.GetChildren()
	if len(children) != 10 {
		return Subroutine{}, fmt.Errorf("expected node 'subroutine_decl' with 10 children, got %d", len(children))
	}

	kind := subroutineKindFromValue(children[0].GetValue())
	returnType, _ := dataTypeFromNode(children[1])
	name := children[2].GetValue()

	arguments := utils.OrderedMap[string, Variable]{}
	for _, parameterNode := range children[4].GetChildren() {
		parameter, err := p.HandleParameter(parameterNode)
		if err != nil {
			return Subroutine{}, fmt.Errorf("error handling parameter of subroutine '%s': %w", name, err)
		}
		arguments.Set(parameter.Name, parameter)
	}

	statements := []Statement{}
	for _, varDecNode := range children[7].GetChildren() {
		variables, err := p.HandleVarDec(varDecNode)
		if err != nil {
			return Subroutine{}, fmt.Errorf("error handling local variable of subroutine '%s': %w", name, err)
		}
		statements = append(statements, VarStmt{Vars: variables})
	}

	body, err := p.HandleStatements(children[8])
	if err != nil {
		return Subroutine{}, fmt.Errorf("error handling body of subroutine '%s': %w", name, err)
	}
	statements = append(statements, body...)

	return Subroutine{Name: name, Type: kind, Return: returnType, Arguments: arguments, Statements: statements}, nil
}

// Generalized function to convert a Kleene node's children into a list of 'jack.Statement'.
func (p *Parser) HandleStatements(node pc.Queryable) ([]Statement, error) {
	statements := make([]Statement, 0, len(node.GetChildren()))
	for _, child := range node.GetChildren() {
		statement, err := p.HandleStatement(child)
		if err != nil {
			return nil, err
		}
		statements = append(statements, statement)
	}
	return statements, nil
}

// Generalized function to dispatch a single statement node to its specialized handler.
func (p *Parser) HandleStatement(node pc.Queryable) (Statement, error) {
	switch node.GetName() {
	case "let_stmt":
		return p.HandleLetStmt(node)
	case "if_stmt":
		return p.HandleIfStmt(node)
	case "while_stmt":
		return p.HandleWhileStmt(node)
	case "do_stmt":
		return p.HandleDoStmt(node)
	case "return_stmt":
		return p.HandleReturnStmt(node)
	default:
		return nil, fmt.Errorf("unrecognized statement node: %s", node.GetName())
	}
}

// Specialized function to convert a "let_stmt" node to a 'jack.LetStmt'.
func (p *Parser) HandleLetStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 6 {
		return nil, fmt.Errorf("expected node 'let_stmt' with 6 children, got %d", len(children))
	}

	rhs, err := p.HandleExpression(children[4])
	if err != nil {
		return nil, fmt.Errorf("error handling RHS of 'let' statement: %w", err)
	}

	name := children[1].GetValue()
	subscript := children[2].GetChildren()
	if len(subscript) == 1 {
		indexNode := subscript[0].GetChildren()
		if len(indexNode) != 3 {
			return nil, fmt.Errorf("expected node 'index' with 3 children, got %d", len(indexNode))
		}

		index, err := p.HandleExpression(indexNode[1])
		if err != nil {
			return nil, fmt.Errorf("error handling array index of 'let' statement: %w", err)
		}
		return LetStmt{Lhs: ArrayExpr{Var: name, Index: index}, Rhs: rhs}, nil
	}

	return LetStmt{Lhs: VarExpr{Var: name}, Rhs: rhs}, nil
}

// Specialized function to convert an "if_stmt" node to a 'jack.IfStmt'.
func (p *Parser) HandleIfStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 8 {
		return nil, fmt.Errorf("expected node 'if_stmt' with 8 children, got %d", len(children))
	}

	condition, err := p.HandleExpression(children[2])
	if err != nil {
		return nil, fmt.Errorf("error handling condition of 'if' statement: %w", err)
	}

	thenBlock, err := p.HandleStatements(children[5])
	if err != nil {
		return nil, fmt.Errorf("error handling 'then' block of 'if' statement: %w", err)
	}

	elseBlock := []Statement{}
	if elseParts := children[7].GetChildren(); len(elseParts) == 1 {
		elsePart := elseParts[0].GetChildren()
		if len(elsePart) != 4 {
			return nil, fmt.Errorf("expected node 'else_part' with 4 children, got %d", len(elsePart))
		}

		elseBlock, err = p.HandleStatements(elsePart[2])
		if err != nil {
			return nil, fmt.Errorf("error handling 'else' block of 'if' statement: %w", err)
		}
	}

	return IfStmt{Condition: condition, ThenBlock: thenBlock, ElseBlock: elseBlock}, nil
}

// Specialized function to convert a "while_stmt" node to a 'jack.WhileStmt'.
func (p *Parser) HandleWhileStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 7 {
		return nil, fmt.Errorf("expected node 'while_stmt' with 7 children, got %d", len(children))
	}

	condition, err := p.HandleExpression(children[2])
	if err != nil {
		return nil, fmt.Errorf("error handling condition of 'while' statement: %w", err)
	}

	block, err := p.HandleStatements(children[5])
	if err != nil {
		return nil, fmt.Errorf("error handling body of 'while' statement: %w", err)
	}

	return WhileStmt{Condition: condition, Block: block}, nil
}

// Specialized function to convert a "do_stmt" node to a 'jack.DoStmt'.
func (p *Parser) HandleDoStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 3 {
		return nil, fmt.Errorf("expected node 'do_stmt' with 3 children, got %d", len(children))
	}

	expr, err := p.HandleSubroutineCall(children[1])
	if err != nil {
		return nil, fmt.Errorf("error handling call of 'do' statement: %w", err)
	}

	return DoStmt{FuncCall: expr}, nil
}

// Specialized function to convert a "return_stmt" node to a 'jack.ReturnStmt'.
func (p *Parser) HandleReturnStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 3 {
		return nil, fmt.Errorf("expected node 'return_stmt' with 3 children, got %d", len(children))
	}

	value := children[1].GetChildren()
	if len(value) == 0 {
		return ReturnStmt{}, nil
	}

	expr, err := p.HandleExpression(value[0])
	if err != nil {
		return nil, fmt.Errorf("error handling value of 'return' statement: %w", err)
	}
	return ReturnStmt{Expr: expr}, nil
}

// Specialized function to convert a "subroutine_call" node to a 'jack.FuncCallExpr'.
func (p *Parser) HandleSubroutineCall(node pc.Queryable) (FuncCallExpr, error) {
	if node.GetName() != "subroutine_call" {
		return FuncCallExpr{}, fmt.Errorf("expected node 'subroutine_call', got %s", node.GetName())
	}
	children := node.GetChildren()
	if len(children) != 5 {
		return FuncCallExpr{}, fmt.Errorf("expected node 'subroutine_call' with 5 children, got %d", len(children))
	}

	first, isExtCall, varName, funcName := children[0].GetValue(), false, "", children[0].GetValue()

	if qualifiers := children[1].GetChildren(); len(qualifiers) == 1 {
		qualified := qualifiers[0].GetChildren()
		if len(qualified) != 2 {
			return FuncCallExpr{}, fmt.Errorf("expected node 'qualified_name' with 2 children, got %d", len(qualified))
		}
		isExtCall, varName, funcName = true, first, qualified[1].GetValue()
	}

	arguments := make([]Expression, 0, len(children[3].GetChildren()))
	for _, argNode := range children[3].GetChildren() {
		arg, err := p.HandleExpression(argNode)
		if err != nil {
			return FuncCallExpr{}, fmt.Errorf("error handling argument of call to '%s': %w", funcName, err)
		}
		arguments = append(arguments, arg)
	}

	return FuncCallExpr{IsExtCall: isExtCall, Var: varName, FuncName: funcName, Arguments: arguments}, nil
}

// Generalized function to convert an "expression" node to a 'jack.Expression'.
func (p *Parser) HandleExpression(node pc.Queryable) (Expression, error) {
	if node.GetName() != "expression" {
		return nil, fmt.Errorf("expected node 'expression', got %s", node.GetName())
	}
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected node 'expression' with 2 children, got %d", len(children))
	}

	expr, err := p.HandleTerm(children[0])
	if err != nil {
		return nil, fmt.Errorf("error handling first term of expression: %w", err)
	}

	for _, more := range children[1].GetChildren() {
		moreChildren := more.GetChildren()
		if len(moreChildren) != 2 {
			return nil, fmt.Errorf("expected node 'more_term' with 2 children, got %d", len(moreChildren))
		}

		op, err := binaryOpFromValue(moreChildren[0].GetValue())
		if err != nil {
			return nil, err
		}

		rhs, err := p.HandleTerm(moreChildren[1])
		if err != nil {
			return nil, fmt.Errorf("error handling term following operator '%s': %w", moreChildren[0].GetValue(), err)
		}

		expr = BinaryExpr{Type: op, Lhs: expr, Rhs: rhs}
	}

	return expr, nil
}

// Generalized function to dispatch a single term node to its specialized handler.
func (p *Parser) HandleTerm(node pc.Queryable) (Expression, error) {
	switch node.GetName() {
	case "TRUE":
		return LiteralExpr{Type: Bool, Value: "true"}, nil
	case "FALSE":
		return LiteralExpr{Type: Bool, Value: "false"}, nil
	case "NULL":
		return LiteralExpr{Type: Null, Value: "null"}, nil
	case "THIS":
		return VarExpr{Var: "this"}, nil
	case "unary_term":
		return p.HandleUnaryTerm(node)
	case "paren_expr":
		return p.HandleParenExpr(node)
	case "subroutine_call":
		return p.HandleSubroutineCall(node)
	case "array_access":
		return p.HandleArrayAccessTerm(node)
	case "STRING":
		return LiteralExpr{Type: String, Value: strings.Trim(node.GetValue(), `"`)}, nil
	case "IDENT":
		return VarExpr{Var: node.GetValue()}, nil
	default:
		if _, err := strconv.ParseFloat(node.GetValue(), 64); err == nil {
			return LiteralExpr{Type: Int, Value: node.GetValue()}, nil
		}
		return nil, fmt.Errorf("unrecognized term node '%s' (%s)", node.GetName(), node.GetValue())
	}
}

// Specialized function to convert a "unary_term" node to a 'jack.UnaryExpr'.
func (p *Parser) HandleUnaryTerm(node pc.Queryable) (Expression, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected node 'unary_term' with 2 children, got %d", len(children))
	}

	rhs, err := p.HandleTerm(children[1])
	if err != nil {
		return nil, fmt.Errorf("error handling operand of unary expression: %w", err)
	}

	op := Minus
	if children[0].GetValue() == "~" {
		op = BoolNot
	}
	return UnaryExpr{Type: op, Rhs: rhs}, nil
}

// Specialized function to convert a "paren_expr" node back into its inner 'jack.Expression'.
func (p *Parser) HandleParenExpr(node pc.Queryable) (Expression, error) {
	children := node.GetChildren()
	if len(children) != 3 {
		return nil, fmt.Errorf("expected node 'paren_expr' with 3 children, got %d", len(children))
	}
	return p.HandleExpression(children[1])
}

// Specialized function to convert an "array_access" node (used as a term) to a 'jack.ArrayExpr'.
func (p *Parser) HandleArrayAccessTerm(node pc.Queryable) (Expression, error) {
	children := node.GetChildren()
	if len(children) != 4 {
		return nil, fmt.Errorf("expected node 'array_access' with 4 children, got %d", len(children))
	}

	index, err := p.HandleExpression(children[2])
	if err != nil {
		return nil, fmt.Errorf("error handling index of array access: %w", err)
	}
	return ArrayExpr{Var: children[0].GetValue(), Index: index}, nil
}

// ----------------------------------------------------------------------------
// Helpers

// Maps a "data_type" leaf node to its 'jack.DataType' counterpart, returning the class
// name too when the type turns out to be an object (i.e. neither a primitive nor void).
func dataTypeFromNode(node pc.Queryable) (DataType, string) {
	switch node.GetValue() {
	case "int":
		return Int, ""
	case "char":
		return Char, ""
	case "boolean":
		return Bool, ""
	case "void":
		return Void, ""
	default:
		return Object, node.GetValue()
	}
}

// Maps a "subroutine_kind" leaf value to its 'jack.SubroutineType' counterpart.
func subroutineKindFromValue(value string) SubroutineType {
	switch value {
	case "constructor":
		return Constructor
	case "method":
		return Method
	default:
		return Function
	}
}

// Maps a "bin_op" leaf value to its 'jack.ExprType' counterpart.
func binaryOpFromValue(value string) (ExprType, error) {
	switch value {
	case "+":
		return Plus, nil
	case "-":
		return Minus, nil
	case "*":
		return Multiply, nil
	case "/":
		return Divide, nil
	case "&":
		return BoolAnd, nil
	case "|":
		return BoolOr, nil
	case "<":
		return LessThan, nil
	case ">":
		return GreatThan, nil
	case "=":
		return Equal, nil
	default:
		return "", fmt.Errorf("unrecognized binary operator '%s'", value)
	}
}
