package internal

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Type names reported by typeof
const (
	TypeNameUndefined = "undefined"
	TypeNameBoolean   = "boolean"
	TypeNameNumber    = "number"
	TypeNameString    = "string"
	TypeNameFunction  = "function"
	TypeNameObject    = "object"
)

// Display strings for special numbers
const (
	DisplayNaN         = "NaN"
	DisplayInfinity    = "Infinity"
	DisplayNegInfinity = "-Infinity"
	DisplayFunction    = "[function]"
)

// Callable is any value that can be invoked from an expression
type Callable interface {
	Call(args []any) (any, error)
}

// NativeFunc adapts a plain Go function to Callable
type NativeFunc func(args []any) (any, error)

// Call implements Callable
func (f NativeFunc) Call(args []any) (any, error) {
	return f(args)
}

// Method is a function that receives the object it was read from
type Method func(this any, args []any) (any, error)

// BoundMethod is a Method bound to its owning object by member access
type BoundMethod struct {
	Receiver any
	Name     string
	Fn       Method
}

// Call implements Callable
func (m *BoundMethod) Call(args []any) (any, error) {
	return m.Fn(m.Receiver, args)
}

// TypeDescriptor is the right-hand side of instanceof
type TypeDescriptor string

// Type descriptors exposed as globals
const (
	TypeArray    TypeDescriptor = "Array"
	TypeObject   TypeDescriptor = "Object"
	TypeString   TypeDescriptor = "String"
	TypeNumber   TypeDescriptor = "Number"
	TypeBoolean  TypeDescriptor = "Boolean"
	TypeFunction TypeDescriptor = "Function"
)

// TypeDescriptors maps global names to descriptors
var TypeDescriptors = map[string]TypeDescriptor{
	string(TypeArray):    TypeArray,
	string(TypeObject):   TypeObject,
	string(TypeString):   TypeString,
	string(TypeNumber):   TypeNumber,
	string(TypeBoolean):  TypeBoolean,
	string(TypeFunction): TypeFunction,
}

// Matches reports whether v is an instance of the descriptor
func (d TypeDescriptor) Matches(v any) bool {
	v = Normalize(v)
	switch d {
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		switch v.(type) {
		case map[string]any, []any, Callable, Method:
			return true
		}
		return false
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		_, ok := v.(float64)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeFunction:
		return IsCallable(v)
	}
	return false
}

// IsCallable reports whether v can be invoked
func IsCallable(v any) bool {
	switch v.(type) {
	case Callable, Method:
		return true
	}
	return false
}

// Normalize converts Go values into the expression value model: float64 for
// numbers, []any for sequences and map[string]any for objects.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, string, float64, []any, map[string]any, Callable, Method, TypeDescriptor:
		return v
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case func(args []any) (any, error):
		return NativeFunc(val)
	}
	return normalizeReflect(v)
}

func normalizeReflect(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.Struct:
		data, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var out map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			return v
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

// Truthy applies JavaScript truthiness: nil, false, 0, NaN and "" are false
func Truthy(v any) bool {
	switch val := Normalize(v).(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case string:
		return val != ""
	}
	return true
}

// ToNumber converts a value to float64. nil converts to 0; strings that are
// not numeric convert to NaN.
func ToNumber(v any) float64 {
	switch val := Normalize(v).(type) {
	case nil:
		return 0
	case bool:
		if val {
			return 1
		}
		return 0
	case float64:
		return val
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// TypeOf returns the typeof name of a value
func TypeOf(v any) string {
	switch Normalize(v).(type) {
	case nil:
		return TypeNameUndefined
	case bool:
		return TypeNameBoolean
	case float64:
		return TypeNameNumber
	case string:
		return TypeNameString
	case Callable, Method:
		return TypeNameFunction
	}
	return TypeNameObject
}

// ToDisplayString renders a value the way interpolation prints it: nil is
// empty, numbers use the shortest decimal form, arrays and objects are JSON.
func ToDisplayString(v any) string {
	switch val := Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return KeywordTrue
		}
		return KeywordFalse
	case float64:
		return formatNumber(val)
	case Callable, Method:
		return DisplayFunction
	case TypeDescriptor:
		return string(val)
	case []any, map[string]any:
		data, err := json.Marshal(toJSONValue(val))
		if err != nil {
			return ""
		}
		return string(data)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return DisplayNaN
	case math.IsInf(f, 1):
		return DisplayInfinity
	case math.IsInf(f, -1):
		return DisplayNegInfinity
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// toJSONValue strips values that encoding/json cannot represent
func toJSONValue(v any) any {
	switch val := Normalize(v).(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONValue(item)
		}
		return out
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case Callable, Method:
		return nil
	default:
		return val
	}
}

// ToJSONValue returns v in a form encoding/json can always marshal
func ToJSONValue(v any) any {
	return toJSONValue(v)
}

// SortedKeys returns the keys of m in ascending order
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toPropertyKey converts a member access key to its string form
func toPropertyKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ToDisplayString(v)
}

// toIndex converts a property key to an array index
func toIndex(v any) (int, bool) {
	switch val := Normalize(v).(type) {
	case float64:
		if val != math.Trunc(val) || val < 0 {
			return 0, false
		}
		return int(val), true
	case string:
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
