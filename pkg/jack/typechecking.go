package jack

import (
	"fmt"
	"strings"
)

// The TypeChecker implements the semantic-checking pass distinct from parsing: it resolves
// every variable reference against the active ScopeTable, checks subroutine call arity, and
// verifies that a call's callee is actually declared somewhere in the program. It does not
// produce any output, it's a validation-only pass meant to be run before 'Lowerer.Lowerer()'.
type TypeChecker struct {
	program Program
	scopes  ScopeTable // Keeps track of the scopes and declared variables inside each one
}

func NewTypeChecker(program Program) TypeChecker {
	return TypeChecker{program: program}
}

func (tc *TypeChecker) Check() (bool, error) {
	if tc.program == nil {
		return false, fmt.Errorf("the given 'program' is empty or nil")
	}

	for name, class := range tc.program {
		_, err := tc.HandleClass(class)
		if err != nil {
			return false, fmt.Errorf("error handling lowering of class '%s': %w", name, err)
		}

	}

	return true, nil
}

// Specialized function to type-check a 'jack.Class' and nested fields.
func (tc *TypeChecker) HandleClass(class Class) (bool, error) {
	tc.scopes.PushClassScope(class.Name) // Keep track of the current scope being processed
	defer tc.scopes.PopClassScope()      // Reset the function name after processing

	for _, field := range class.Fields.Entries() {
		_, err := tc.HandleVarStmt(VarStmt{Vars: []Variable{field}})
		if err != nil {
			return false, fmt.Errorf("error handling field '%s' in class '%s': %w", field.Name, class.Name, err)
		}
	}

	for _, subroutine := range class.Subroutines.Entries() {
		_, err := tc.HandleSubroutine(subroutine)
		if err != nil {
			return false, fmt.Errorf("error handling subroutine '%s' in class '%s': %w", subroutine.Name, class.Name, err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.Subroutine' and nested fields.
func (tc *TypeChecker) HandleSubroutine(subroutine Subroutine) (bool, error) {
	tc.scopes.PushSubRoutineScope(subroutine.Name) // Keep track of the current subroutine function being processed
	defer tc.scopes.PopSubroutineScope()           // Reset the function name after processing

	if subroutine.Type == Method {
		tc.scopes.RegisterVariable(Variable{Name: "__obj", Type: Parameter, DataType: Object})
	}

	// We add to the current scope also all of the arguments of the subroutine
	for _, arg := range subroutine.Arguments.Entries() {
		// Like this we're actually supporting shadowing of variables, so if a variable
		// with the same name is already present in the current scope, we just temporarily
		// override it with the most update one instead of returning an error (like Go does
		tc.scopes.RegisterVariable(arg)
	}

	for _, stmt := range subroutine.Statements {
		_, err := tc.HandleStatement(stmt)
		if err != nil {
			return false, fmt.Errorf("error handling nested statement %T: %w", stmt, err)
		}
	}

	return true, nil
}

// Generalized function to type-check multiple statements types.
func (tc *TypeChecker) HandleStatement(stmt Statement) (bool, error) {
	switch tStmt := stmt.(type) {
	case DoStmt:
		return tc.HandleDoStmt(tStmt)
	case VarStmt:
		return tc.HandleVarStmt(tStmt)
	case LetStmt:
		return tc.HandleLetStmt(tStmt)
	case IfStmt:
		return tc.HandleIfStmt(tStmt)
	case WhileStmt:
		return tc.HandleWhileStmt(tStmt)
	case ReturnStmt:
		return tc.HandleReturnStmt(tStmt)
	default:
		return false, fmt.Errorf("unrecognized statement: %T", stmt)
	}
}

// Specialized function to type-check a 'jack.DoStmt', verifying its callee exists.
func (tc *TypeChecker) HandleDoStmt(statement DoStmt) (bool, error) {
	if _, err := tc.HandleFuncCallExpr(statement.FuncCall); err != nil {
		return false, fmt.Errorf("error handling nested function call expression: %w", err)
	}
	return true, nil
}

// Specialized function to type-check a 'jack.VarStmt', registering its variables in scope.
func (tc *TypeChecker) HandleVarStmt(statement VarStmt) (bool, error) {
	for _, variable := range statement.Vars {
		tc.scopes.RegisterVariable(variable)
	}
	return true, nil
}

// Specialized function to type-check a 'jack.LetStmt', verifying the LHS is resolvable and
// the RHS is well-formed (no coercion checking is done, here or in the lowerer: Jack allows freely
// mixing int/char/boolean and any two object types at assignment time).
func (tc *TypeChecker) HandleLetStmt(statement LetStmt) (bool, error) {
	if _, err := tc.HandleExpression(statement.Rhs); err != nil {
		return false, fmt.Errorf("error handling RHS expression: %w", err)
	}

	switch lhs := statement.Lhs.(type) {
	case VarExpr:
		if lhs.Var == "this" {
			return true, nil
		}
		if _, _, err := tc.scopes.ResolveVariable(lhs.Var); err != nil {
			return false, fmt.Errorf("error resolving LHS variable: %w", err)
		}
	case ArrayExpr:
		if _, err := tc.HandleExpression(lhs); err != nil {
			return false, fmt.Errorf("error handling LHS array expression: %w", err)
		}
	default:
		return false, fmt.Errorf("LHS expression must be either a 'VarExpr' or an 'ArrayExpr', got: %T", statement.Lhs)
	}

	return true, nil
}

// Specialized function to type-check a 'jack.IfStmt' and its nested blocks.
func (tc *TypeChecker) HandleIfStmt(statement IfStmt) (bool, error) {
	if _, err := tc.HandleExpression(statement.Condition); err != nil {
		return false, fmt.Errorf("error handling if condition expression: %w", err)
	}

	for _, stmt := range statement.ThenBlock {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error handling statement in 'then' block: %w", err)
		}
	}

	for _, stmt := range statement.ElseBlock {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error handling statement in 'else' block: %w", err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.WhileStmt' and its nested block.
func (tc *TypeChecker) HandleWhileStmt(statement WhileStmt) (bool, error) {
	if _, err := tc.HandleExpression(statement.Condition); err != nil {
		return false, fmt.Errorf("error handling while condition expression: %w", err)
	}

	for _, stmt := range statement.Block {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error handling statement in while block: %w", err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.ReturnStmt' (and its optional expression).
func (tc *TypeChecker) HandleReturnStmt(statement ReturnStmt) (bool, error) {
	if statement.Expr == nil {
		return true, nil
	}

	if _, err := tc.HandleExpression(statement.Expr); err != nil {
		return false, fmt.Errorf("error handling return expression: %w", err)
	}
	return true, nil
}

// Generalized function to type-check multiple expression types, resolving every nested
// variable reference and call target along the way.
func (tc *TypeChecker) HandleExpression(expr Expression) (bool, error) {
	switch tExpr := expr.(type) {
	case VarExpr:
		return tc.HandleVarExpr(tExpr)
	case LiteralExpr:
		return true, nil
	case ArrayExpr:
		return tc.HandleArrayExpr(tExpr)
	case UnaryExpr:
		return tc.HandleExpression(tExpr.Rhs)
	case BinaryExpr:
		if _, err := tc.HandleExpression(tExpr.Lhs); err != nil {
			return false, fmt.Errorf("error handling nested LHS expression: %w", err)
		}
		if _, err := tc.HandleExpression(tExpr.Rhs); err != nil {
			return false, fmt.Errorf("error handling nested RHS expression: %w", err)
		}
		return true, nil
	case FuncCallExpr:
		return tc.HandleFuncCallExpr(tExpr)
	default:
		return false, fmt.Errorf("unrecognized expression: %T", expr)
	}
}

// Specialized function to type-check a 'jack.VarExpr', resolving it against the scope table.
func (tc *TypeChecker) HandleVarExpr(expression VarExpr) (bool, error) {
	if expression.Var == "this" {
		return true, nil
	}

	if _, _, err := tc.scopes.ResolveVariable(expression.Var); err != nil {
		return false, fmt.Errorf("error resolving variable '%s': %w", expression.Var, err)
	}
	return true, nil
}

// Specialized function to type-check a 'jack.ArrayExpr', resolving the base variable and
// recursively checking the index expression.
func (tc *TypeChecker) HandleArrayExpr(expression ArrayExpr) (bool, error) {
	if _, _, err := tc.scopes.ResolveVariable(expression.Var); err != nil {
		return false, fmt.Errorf("error resolving array variable '%s': %w", expression.Var, err)
	}

	if _, err := tc.HandleExpression(expression.Index); err != nil {
		return false, fmt.Errorf("error handling index expression: %w", err)
	}
	return true, nil
}

// Specialized function to type-check a 'jack.FuncCallExpr', verifying the callee exists
// (either as a local/qualified subroutine or an external class's subroutine) and that the
// number of arguments provided matches its declared arity.
func (tc *TypeChecker) HandleFuncCallExpr(expression FuncCallExpr) (bool, error) {
	for _, arg := range expression.Arguments {
		if _, err := tc.HandleExpression(arg); err != nil {
			return false, fmt.Errorf("error handling argument expression: %w", err)
		}
	}

	if !expression.IsExtCall {
		className := strings.Split(tc.scopes.GetScope(), ".")[0]

		class, exists := tc.program[className]
		if !exists {
			return false, fmt.Errorf("class definition not found for '%s'", className)
		}

		routine, exists := class.Subroutines.Get(expression.FuncName)
		if !exists {
			return false, fmt.Errorf("subroutine '%s' not found in class '%s'", expression.FuncName, className)
		}

		if routine.Arguments.Size() != len(expression.Arguments) {
			return false, fmt.Errorf("subroutine '%s.%s' expects %d argument(s), got %d",
				className, expression.FuncName, routine.Arguments.Size(), len(expression.Arguments))
		}
		return true, nil
	}

	// Qualified call: either 'variable.method(...)' (resolved as a method on an object
	// instance) or 'Class.function(...)' (resolved as a call to a static/constructor).
	if _, variable, err := tc.scopes.ResolveVariable(expression.Var); err == nil {
		if variable.DataType != Object {
			return false, fmt.Errorf("variable '%s' is not an object", expression.Var)
		}

		class, exists := tc.program[variable.ClassName]
		if !exists {
			return false, fmt.Errorf("class definition not found for '%s'", variable.ClassName)
		}

		routine, exists := class.Subroutines.Get(expression.FuncName)
		if !exists {
			return false, fmt.Errorf("subroutine '%s' not found in class '%s'", expression.FuncName, variable.ClassName)
		}

		if routine.Arguments.Size() != len(expression.Arguments) {
			return false, fmt.Errorf("subroutine '%s.%s' expects %d argument(s), got %d",
				variable.ClassName, expression.FuncName, routine.Arguments.Size(), len(expression.Arguments))
		}
		return true, nil
	}

	class, exists := tc.program[expression.Var]
	if !exists {
		return false, fmt.Errorf("class definition not found for '%s'", expression.Var)
	}

	routine, exists := class.Subroutines.Get(expression.FuncName)
	if !exists {
		return false, fmt.Errorf("subroutine '%s' not found in class '%s'", expression.FuncName, expression.Var)
	}

	if routine.Arguments.Size() != len(expression.Arguments) {
		return false, fmt.Errorf("subroutine '%s.%s' expects %d argument(s), got %d",
			expression.Var, expression.FuncName, routine.Arguments.Size(), len(expression.Arguments))
	}

	return true, nil
}
