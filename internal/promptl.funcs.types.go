package internal

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

func registerTypeFuncs(r *FuncRegistry) {
	fixed(r, FuncNameToString, 1, func(args []any) (any, error) {
		return ToDisplayString(args[0]), nil
	})

	// toInt truncates toward zero
	fixed(r, FuncNameToInt, 1, func(args []any) (any, error) {
		f := ToNumber(args[0])
		if math.IsNaN(f) {
			return nil, errors.New(ErrMsgFuncConversion)
		}
		return math.Trunc(f), nil
	})

	fixed(r, FuncNameToFloat, 1, func(args []any) (any, error) {
		f := ToNumber(args[0])
		if math.IsNaN(f) {
			return nil, errors.New(ErrMsgFuncConversion)
		}
		return f, nil
	})

	// toBool accepts the strings "true"/"false"/"1"/"0" as well as truthiness
	fixed(r, FuncNameToBool, 1, func(args []any) (any, error) {
		if s, ok := args[0].(string); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return nil, errors.New(ErrMsgFuncConversion)
			}
			return b, nil
		}
		return Truthy(args[0]), nil
	})

	fixed(r, FuncNameTypeOf, 1, func(args []any) (any, error) {
		if _, ok := args[0].([]any); ok {
			return "array", nil
		}
		return TypeOf(args[0]), nil
	})

	fixed(r, FuncNameIsNil, 1, func(args []any) (any, error) {
		return args[0] == nil, nil
	})

	fixed(r, FuncNameIsEmpty, 1, func(args []any) (any, error) {
		return isEmpty(args[0]), nil
	})

	// json(v, indent?) renders v as JSON
	r.MustRegister(&Func{
		Name:    FuncNameJSON,
		MinArgs: 1,
		MaxArgs: 2,
		Fn: func(args []any) (any, error) {
			var (
				data []byte
				err  error
			)
			if len(args) > 1 && Truthy(args[1]) {
				data, err = json.MarshalIndent(toJSONValue(args[0]), "", "  ")
			} else {
				data, err = json.Marshal(toJSONValue(args[0]))
			}
			if err != nil {
				return nil, err
			}
			return string(data), nil
		},
	})
}

// isEmpty reports nil, "", empty arrays and empty objects
func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}
