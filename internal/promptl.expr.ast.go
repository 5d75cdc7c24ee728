package internal

import (
	"fmt"
	"strings"
)

// ExprNode is an expression AST node. The set of node kinds is closed.
type ExprNode interface {
	Offset() int
	String() string
	exprNode()
}

type exprBase struct {
	offset int
}

func (b exprBase) Offset() int { return b.offset }
func (exprBase) exprNode()     {}

// LiteralExpr is a number, string, boolean or null literal
type LiteralExpr struct {
	exprBase
	Value any
}

func (e *LiteralExpr) String() string {
	if s, ok := e.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return ToDisplayString(e.Value)
}

// IdentExpr references a variable or global function
type IdentExpr struct {
	exprBase
	Name string
}

func (e *IdentExpr) String() string { return e.Name }

// ArrayExpr is an array literal
type ArrayExpr struct {
	exprBase
	Elements []ExprNode
}

func (e *ArrayExpr) String() string {
	return "[" + joinExprs(e.Elements) + "]"
}

// ObjectProperty is one key of an object literal. Computed keys are
// evaluated, static keys are taken verbatim.
type ObjectProperty struct {
	Key      string
	Computed ExprNode
	Value    ExprNode
}

// ObjectExpr is an object literal
type ObjectExpr struct {
	exprBase
	Properties []ObjectProperty
}

func (e *ObjectExpr) String() string {
	parts := make([]string, 0, len(e.Properties))
	for _, p := range e.Properties {
		key := p.Key
		if p.Computed != nil {
			key = "[" + p.Computed.String() + "]"
		}
		parts = append(parts, key+": "+p.Value.String())
	}
	return FmtOpenBrace + strings.Join(parts, FmtCommaSep) + FmtCloseBrace
}

// MemberExpr is `object.name`, `object[expr]` or `object?.name`
type MemberExpr struct {
	exprBase
	Object   ExprNode
	Property ExprNode
	Name     string
	Computed bool
	Optional bool
}

func (e *MemberExpr) String() string {
	if e.Computed {
		return e.Object.String() + "[" + e.Property.String() + "]"
	}
	sep := "."
	if e.Optional {
		sep = "?."
	}
	return e.Object.String() + sep + e.Name
}

// CallExpr is a function or method call
type CallExpr struct {
	exprBase
	Callee ExprNode
	Args   []ExprNode
}

func (e *CallExpr) String() string {
	return e.Callee.String() + "(" + joinExprs(e.Args) + ")"
}

// UnaryExpr applies a unary operator
type UnaryExpr struct {
	exprBase
	Operator string
	Operand  ExprNode
	Prefix   bool
}

func (e *UnaryExpr) String() string {
	if len(e.Operator) > 1 {
		return "(" + e.Operator + " " + e.Operand.String() + ")"
	}
	return "(" + e.Operator + e.Operand.String() + ")"
}

// UpdateExpr is `++x`, `x++`, `--x` or `x--`
type UpdateExpr struct {
	exprBase
	Operator string
	Target   ExprNode
	Prefix   bool
}

func (e *UpdateExpr) String() string {
	if e.Prefix {
		return "(" + e.Operator + e.Target.String() + ")"
	}
	return "(" + e.Target.String() + e.Operator + ")"
}

// BinaryExpr applies an eager binary operator
type BinaryExpr struct {
	exprBase
	Operator string
	Left     ExprNode
	Right    ExprNode
}

func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + " " + e.Operator + " " + e.Right.String() + ")"
}

// LogicalExpr applies a short-circuiting operator (||, &&, ??)
type LogicalExpr struct {
	exprBase
	Operator string
	Left     ExprNode
	Right    ExprNode
}

func (e *LogicalExpr) String() string {
	return "(" + e.Left.String() + " " + e.Operator + " " + e.Right.String() + ")"
}

// ConditionalExpr is `test ? consequent : alternate`
type ConditionalExpr struct {
	exprBase
	Test       ExprNode
	Consequent ExprNode
	Alternate  ExprNode
}

func (e *ConditionalExpr) String() string {
	return "(" + e.Test.String() + " ? " + e.Consequent.String() + " : " + e.Alternate.String() + ")"
}

// AssignExpr is `target op value` for any assignment operator
type AssignExpr struct {
	exprBase
	Operator string
	Target   ExprNode
	Value    ExprNode
}

func (e *AssignExpr) String() string {
	return "(" + e.Target.String() + " " + e.Operator + " " + e.Value.String() + ")"
}

func joinExprs(nodes []ExprNode) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, FmtCommaSep)
}
