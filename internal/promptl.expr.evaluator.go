package internal

import (
	"fmt"
)

// Env is the variable environment an expression is evaluated against
type Env interface {
	Lookup(name string) (any, bool)
	Assign(name string, value any)
}

// ExprEvaluator walks an expression AST. It is stateless apart from the
// environment it reads and assigns through.
type ExprEvaluator struct {
	env     Env
	funcs   *FuncRegistry
	missing func(name string)
}

// NewExprEvaluator creates an evaluator. missing is called for every
// identifier read that is neither a variable nor a type descriptor; it may
// be nil.
func NewExprEvaluator(env Env, funcs *FuncRegistry, missing func(name string)) *ExprEvaluator {
	return &ExprEvaluator{env: env, funcs: funcs, missing: missing}
}

// EvaluateExpression parses and evaluates input in one go
func EvaluateExpression(input string, env Env, funcs *FuncRegistry) (any, error) {
	node, err := ParseExpression(input)
	if err != nil {
		return nil, err
	}
	return NewExprEvaluator(env, funcs, nil).Evaluate(node)
}

// Evaluate computes the value of node
func (e *ExprEvaluator) Evaluate(node ExprNode) (any, error) {
	switch n := node.(type) {
	case *LiteralExpr:
		return n.Value, nil
	case *IdentExpr:
		return e.lookup(n.Name), nil
	case *ArrayExpr:
		out := make([]any, 0, len(n.Elements))
		for _, el := range n.Elements {
			v, err := e.Evaluate(el)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *ObjectExpr:
		return e.evalObject(n)
	case *MemberExpr:
		obj, err := e.Evaluate(n.Object)
		if err != nil {
			return nil, err
		}
		key, err := e.memberKey(n)
		if err != nil {
			return nil, err
		}
		return MemberAccess(obj, key)
	case *CallExpr:
		return e.evalCall(n)
	case *UnaryExpr:
		v, err := e.Evaluate(n.Operand)
		if err != nil {
			return nil, err
		}
		return ApplyUnary(n.Operator, v, n.Prefix)
	case *UpdateExpr:
		return e.evalUpdate(n)
	case *BinaryExpr:
		left, err := e.Evaluate(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.Evaluate(n.Right)
		if err != nil {
			return nil, err
		}
		return ApplyBinary(n.Operator, left, right)
	case *LogicalExpr:
		left, err := e.Evaluate(n.Left)
		if err != nil {
			return nil, err
		}
		return ApplyLogical(n.Operator, left, func() (any, error) {
			return e.Evaluate(n.Right)
		})
	case *ConditionalExpr:
		test, err := e.Evaluate(n.Test)
		if err != nil {
			return nil, err
		}
		if Truthy(test) {
			return e.Evaluate(n.Consequent)
		}
		return e.Evaluate(n.Alternate)
	case *AssignExpr:
		return e.evalAssign(n)
	}
	return nil, NewEvalError(ErrMsgExprUnsupportedNode, fmt.Sprintf("%T", node))
}

// lookup resolves an identifier read as a value: variables first, then type
// descriptors. Anything else is reported as missing and reads as nil.
func (e *ExprEvaluator) lookup(name string) any {
	if v, ok := e.env.Lookup(name); ok {
		return v
	}
	if desc, ok := TypeDescriptors[name]; ok {
		return desc
	}
	if e.missing != nil {
		e.missing(name)
	}
	return nil
}

// callee resolves the function position of a call. Registered functions are
// only visible here, so a variable sharing a builtin's name is still a
// parameter when read on its own.
func (e *ExprEvaluator) callee(node ExprNode) (any, error) {
	ident, ok := node.(*IdentExpr)
	if !ok {
		return e.Evaluate(node)
	}
	if v, ok := e.env.Lookup(ident.Name); ok {
		return v, nil
	}
	if e.funcs != nil && e.funcs.Has(ident.Name) {
		return e.funcs.Callable(ident.Name), nil
	}
	return e.lookup(ident.Name), nil
}

func (e *ExprEvaluator) evalObject(n *ObjectExpr) (any, error) {
	out := make(map[string]any, len(n.Properties))
	for _, prop := range n.Properties {
		key := prop.Key
		if prop.Computed != nil {
			k, err := e.Evaluate(prop.Computed)
			if err != nil {
				return nil, err
			}
			key = toPropertyKey(k)
		}
		v, err := e.Evaluate(prop.Value)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func (e *ExprEvaluator) memberKey(n *MemberExpr) (any, error) {
	if !n.Computed {
		return n.Name, nil
	}
	return e.Evaluate(n.Property)
}

func (e *ExprEvaluator) evalCall(n *CallExpr) (any, error) {
	callee, err := e.callee(n.Callee)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := e.Evaluate(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	switch fn := callee.(type) {
	case Callable:
		return fn.Call(args)
	case Method:
		return fn(nil, args)
	}
	return nil, NewEvalError(ErrMsgExprNotCallable, n.Callee.String())
}

func (e *ExprEvaluator) evalAssign(n *AssignExpr) (any, error) {
	value, err := e.Evaluate(n.Value)
	if err != nil {
		return nil, err
	}
	var current any
	if n.Operator != "=" {
		if current, err = e.Evaluate(n.Target); err != nil {
			return nil, err
		}
	}
	result, err := ApplyAssignment(n.Operator, current, value)
	if err != nil {
		return nil, err
	}
	if err := e.store(n.Target, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *ExprEvaluator) evalUpdate(n *UpdateExpr) (any, error) {
	current, err := e.Evaluate(n.Target)
	if err != nil {
		return nil, err
	}
	old := ToNumber(current)
	op := "+"
	if n.Operator == "--" {
		op = "-"
	}
	updated, err := ApplyBinary(op, old, float64(1))
	if err != nil {
		return nil, err
	}
	if err := e.store(n.Target, updated); err != nil {
		return nil, err
	}
	if n.Prefix {
		return updated, nil
	}
	return old, nil
}

// store writes value to an identifier or member target
func (e *ExprEvaluator) store(target ExprNode, value any) error {
	switch t := target.(type) {
	case *IdentExpr:
		e.env.Assign(t.Name, value)
		return nil
	case *MemberExpr:
		obj, err := e.Evaluate(t.Object)
		if err != nil {
			return err
		}
		key, err := e.memberKey(t)
		if err != nil {
			return err
		}
		switch container := obj.(type) {
		case map[string]any:
			container[toPropertyKey(key)] = value
			return nil
		case []any:
			if idx, ok := toIndex(key); ok && idx < len(container) {
				container[idx] = value
				return nil
			}
		}
		return NewEvalError(ErrMsgExprInvalidTarget, t.String())
	}
	return NewEvalError(ErrMsgExprInvalidTarget, target.String())
}
