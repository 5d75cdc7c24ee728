package internal

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// BinaryOperator evaluates an eager binary operator
type BinaryOperator func(left, right any) (any, error)

// LogicalOperator evaluates a short-circuiting operator. The right operand
// is only computed when the operator needs it.
type LogicalOperator func(left any, right func() (any, error)) (any, error)

// UnaryOperator evaluates a unary operator. prefix is false for postfix use.
type UnaryOperator func(value any, prefix bool) (any, error)

// AssignmentOperator computes the value to store for `target op= value`
type AssignmentOperator func(current, value any) (any, error)

var binaryOperators = map[string]BinaryOperator{
	"==":  func(l, r any) (any, error) { return LooseEqual(l, r), nil },
	"!=":  func(l, r any) (any, error) { return !LooseEqual(l, r), nil },
	"===": func(l, r any) (any, error) { return StrictEqual(l, r), nil },
	"!==": func(l, r any) (any, error) { return !StrictEqual(l, r), nil },
	"<":   relational(func(c int) bool { return c < 0 }),
	"<=":  relational(func(c int) bool { return c <= 0 }),
	">":   relational(func(c int) bool { return c > 0 }),
	">=":  relational(func(c int) bool { return c >= 0 }),
	"<<": func(l, r any) (any, error) {
		return float64(toInt32(l) << (toUint32(r) & 31)), nil
	},
	">>": func(l, r any) (any, error) {
		return float64(toInt32(l) >> (toUint32(r) & 31)), nil
	},
	">>>": func(l, r any) (any, error) {
		return float64(toUint32(l) >> (toUint32(r) & 31)), nil
	},
	"+": add,
	"-": arithmetic(func(a, b float64) float64 { return a - b }),
	"*": arithmetic(func(a, b float64) float64 { return a * b }),
	"/": arithmetic(func(a, b float64) float64 { return a / b }),
	"%": arithmetic(math.Mod),
	"|": func(l, r any) (any, error) { return float64(toInt32(l) | toInt32(r)), nil },
	"^": func(l, r any) (any, error) { return float64(toInt32(l) ^ toInt32(r)), nil },
	"&": func(l, r any) (any, error) { return float64(toInt32(l) & toInt32(r)), nil },
	"in": func(l, r any) (any, error) {
		switch container := Normalize(r).(type) {
		case map[string]any:
			_, ok := container[toPropertyKey(l)]
			return ok, nil
		case []any:
			idx, ok := toIndex(l)
			return ok && idx < len(container), nil
		}
		return nil, NewEvalError(ErrMsgExprInOperand, TypeOf(r))
	},
	"instanceof": func(l, r any) (any, error) {
		desc, ok := r.(TypeDescriptor)
		if !ok {
			return nil, NewEvalError(ErrMsgExprInstanceofTarget, ToDisplayString(r))
		}
		return desc.Matches(l), nil
	},
}

var logicalOperators = map[string]LogicalOperator{
	"||": func(l any, r func() (any, error)) (any, error) {
		if Truthy(l) {
			return l, nil
		}
		return r()
	},
	"&&": func(l any, r func() (any, error)) (any, error) {
		if !Truthy(l) {
			return l, nil
		}
		return r()
	},
	"??": func(l any, r func() (any, error)) (any, error) {
		if l != nil {
			return l, nil
		}
		return r()
	},
}

var unaryOperators = map[string]UnaryOperator{
	"-": func(v any, prefix bool) (any, error) {
		if !prefix {
			return v, nil
		}
		return -ToNumber(v), nil
	},
	"+": func(v any, prefix bool) (any, error) {
		if !prefix {
			return v, nil
		}
		return ToNumber(v), nil
	},
	"!":      func(v any, _ bool) (any, error) { return !Truthy(v), nil },
	"~":      func(v any, _ bool) (any, error) { return float64(^toInt32(v)), nil },
	"typeof": func(v any, _ bool) (any, error) { return TypeOf(v), nil },
	"void":   func(any, bool) (any, error) { return nil, nil },
}

var assignmentOperators = map[string]AssignmentOperator{
	"=": func(_, v any) (any, error) { return v, nil },
}

func init() {
	// compound assignments reuse the binary table: `a op= b` is `a = a op b`
	for _, op := range []string{"+", "-", "*", "/", "%", "<<", ">>", ">>>", "|", "^", "&"} {
		bin := binaryOperators[op]
		assignmentOperators[op+"="] = func(cur, v any) (any, error) { return bin(cur, v) }
	}
}

// ApplyBinary evaluates `left op right` for an eager operator
func ApplyBinary(op string, left, right any) (any, error) {
	fn, ok := binaryOperators[op]
	if !ok {
		return nil, &UnsupportedOperatorError{Operator: op}
	}
	return fn(left, right)
}

// ApplyLogical evaluates a short-circuiting operator
func ApplyLogical(op string, left any, right func() (any, error)) (any, error) {
	fn, ok := logicalOperators[op]
	if !ok {
		return nil, &UnsupportedOperatorError{Operator: op}
	}
	return fn(left, right)
}

// ApplyUnary evaluates a unary operator
func ApplyUnary(op string, value any, prefix bool) (any, error) {
	fn, ok := unaryOperators[op]
	if !ok {
		return nil, &UnsupportedOperatorError{Operator: op}
	}
	return fn(value, prefix)
}

// ApplyAssignment computes the new value for `target op value`. The caller
// stores the result.
func ApplyAssignment(op string, current, value any) (any, error) {
	fn, ok := assignmentOperators[op]
	if !ok {
		return nil, &UnsupportedOperatorError{Operator: op}
	}
	return fn(current, value)
}

// MemberAccess reads property from object. Methods are returned bound to
// object. Reading from nil yields nil.
func MemberAccess(object, property any) (any, error) {
	key := toPropertyKey(property)
	switch obj := Normalize(object).(type) {
	case nil:
		return nil, nil
	case map[string]any:
		v, ok := obj[key]
		if !ok {
			return nil, nil
		}
		if m, ok := v.(Method); ok {
			return &BoundMethod{Receiver: obj, Name: key, Fn: m}, nil
		}
		return v, nil
	case []any:
		if key == PropLength {
			return float64(len(obj)), nil
		}
		if idx, ok := toIndex(property); ok {
			if idx < len(obj) {
				return obj[idx], nil
			}
			return nil, nil
		}
		if m, ok := arrayMethods[key]; ok {
			return &BoundMethod{Receiver: obj, Name: key, Fn: m}, nil
		}
		return nil, nil
	case string:
		runes := []rune(obj)
		if key == PropLength {
			return float64(len(runes)), nil
		}
		if idx, ok := toIndex(property); ok {
			if idx < len(runes) {
				return string(runes[idx]), nil
			}
			return nil, nil
		}
		if m, ok := stringMethods[key]; ok {
			return &BoundMethod{Receiver: obj, Name: key, Fn: m}, nil
		}
		return nil, nil
	}
	return nil, nil
}

// LooseEqual implements `==`: numbers, strings and booleans are compared
// numerically when their types differ.
func LooseEqual(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isPrimitive(a) && isPrimitive(b) {
		if TypeOf(a) == TypeOf(b) {
			return StrictEqual(a, b)
		}
		return ToNumber(a) == ToNumber(b)
	}
	return StrictEqual(a, b)
}

// StrictEqual implements `===`: types must match
func StrictEqual(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if TypeOf(a) != TypeOf(b) {
		return false
	}
	switch av := a.(type) {
	case nil:
		return true
	case float64:
		return av == b.(float64)
	case string:
		return av == b.(string)
	case bool:
		return av == b.(bool)
	}
	return reflect.DeepEqual(a, b)
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case bool, float64, string:
		return true
	}
	return false
}

func relational(accept func(int) bool) BinaryOperator {
	return func(l, r any) (any, error) {
		l, r = Normalize(l), Normalize(r)
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok && rok {
			return accept(strings.Compare(ls, rs)), nil
		}
		a, b := ToNumber(l), ToNumber(r)
		if math.IsNaN(a) || math.IsNaN(b) {
			return false, nil
		}
		switch {
		case a < b:
			return accept(-1), nil
		case a > b:
			return accept(1), nil
		}
		return accept(0), nil
	}
}

func arithmetic(fn func(a, b float64) float64) BinaryOperator {
	return func(l, r any) (any, error) {
		return fn(ToNumber(l), ToNumber(r)), nil
	}
}

// add concatenates when either side is a string or a composite value
func add(l, r any) (any, error) {
	l, r = Normalize(l), Normalize(r)
	if isNumeric(l) && isNumeric(r) {
		return ToNumber(l) + ToNumber(r), nil
	}
	_, ls := l.(string)
	_, rs := r.(string)
	if ls || rs || !isPrimitive(l) && l != nil || !isPrimitive(r) && r != nil {
		return ToDisplayString(l) + ToDisplayString(r), nil
	}
	return ToNumber(l) + ToNumber(r), nil
}

func isNumeric(v any) bool {
	switch v.(type) {
	case nil, bool, float64:
		return true
	}
	return false
}

func toInt32(v any) int32 {
	f := ToNumber(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(uint32(int64(math.Trunc(f))))
}

func toUint32(v any) uint32 {
	return uint32(toInt32(v))
}

// PropLength is the length property of strings and arrays
const PropLength = "length"

var stringMethods = map[string]Method{
	"toUpperCase": stringMethod(func(s string, _ []any) (any, error) { return strings.ToUpper(s), nil }),
	"toLowerCase": stringMethod(func(s string, _ []any) (any, error) { return strings.ToLower(s), nil }),
	"trim":        stringMethod(func(s string, _ []any) (any, error) { return strings.TrimSpace(s), nil }),
	"includes": stringMethod(func(s string, args []any) (any, error) {
		return strings.Contains(s, argString(args, 0)), nil
	}),
	"startsWith": stringMethod(func(s string, args []any) (any, error) {
		return strings.HasPrefix(s, argString(args, 0)), nil
	}),
	"endsWith": stringMethod(func(s string, args []any) (any, error) {
		return strings.HasSuffix(s, argString(args, 0)), nil
	}),
	"split": stringMethod(func(s string, args []any) (any, error) {
		parts := strings.Split(s, argString(args, 0))
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}),
	"replace": stringMethod(func(s string, args []any) (any, error) {
		return strings.Replace(s, argString(args, 0), argString(args, 1), 1), nil
	}),
	"slice": stringMethod(func(s string, args []any) (any, error) {
		runes := []rune(s)
		start, end := sliceBounds(len(runes), args)
		return string(runes[start:end]), nil
	}),
	"indexOf": stringMethod(func(s string, args []any) (any, error) {
		idx := strings.Index(s, argString(args, 0))
		if idx < 0 {
			return float64(-1), nil
		}
		return float64(len([]rune(s[:idx]))), nil
	}),
	"concat": stringMethod(func(s string, args []any) (any, error) {
		var sb strings.Builder
		sb.WriteString(s)
		for _, a := range args {
			sb.WriteString(ToDisplayString(a))
		}
		return sb.String(), nil
	}),
}

var arrayMethods = map[string]Method{
	"join": arrayMethod(func(items []any, args []any) (any, error) {
		sep := ","
		if len(args) > 0 && args[0] != nil {
			sep = ToDisplayString(args[0])
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = ToDisplayString(item)
		}
		return strings.Join(parts, sep), nil
	}),
	"includes": arrayMethod(func(items []any, args []any) (any, error) {
		return indexOf(items, argAt(args, 0)) >= 0, nil
	}),
	"indexOf": arrayMethod(func(items []any, args []any) (any, error) {
		return float64(indexOf(items, argAt(args, 0))), nil
	}),
	"slice": arrayMethod(func(items []any, args []any) (any, error) {
		start, end := sliceBounds(len(items), args)
		out := make([]any, end-start)
		copy(out, items[start:end])
		return out, nil
	}),
	"concat": arrayMethod(func(items []any, args []any) (any, error) {
		out := append([]any{}, items...)
		for _, a := range args {
			if more, ok := Normalize(a).([]any); ok {
				out = append(out, more...)
			} else {
				out = append(out, a)
			}
		}
		return out, nil
	}),
}

func stringMethod(fn func(s string, args []any) (any, error)) Method {
	return func(this any, args []any) (any, error) {
		s, ok := this.(string)
		if !ok {
			return nil, NewEvalError(ErrMsgExprNotCallable, fmt.Sprintf("%T", this))
		}
		return fn(s, args)
	}
}

func arrayMethod(fn func(items []any, args []any) (any, error)) Method {
	return func(this any, args []any) (any, error) {
		items, ok := Normalize(this).([]any)
		if !ok {
			return nil, NewEvalError(ErrMsgExprNotCallable, fmt.Sprintf("%T", this))
		}
		return fn(items, args)
	}
}

func indexOf(items []any, target any) int {
	for i, item := range items {
		if StrictEqual(item, target) {
			return i
		}
	}
	return -1
}

// sliceBounds resolves JavaScript slice(start, end) arguments, negative
// values counting from the end
func sliceBounds(length int, args []any) (int, int) {
	clamp := func(v any, def int) int {
		if v == nil {
			return def
		}
		n := int(math.Trunc(ToNumber(v)))
		if n < 0 {
			n += length
		}
		return max(0, min(n, length))
	}
	start := clamp(argAt(args, 0), 0)
	end := clamp(argAt(args, 1), length)
	if end < start {
		end = start
	}
	return start, end
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func argString(args []any, i int) string {
	return ToDisplayString(argAt(args, i))
}
