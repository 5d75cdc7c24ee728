package internal

import (
	"errors"
	"strings"
	"unicode/utf8"
)

func registerCollectionFuncs(r *FuncRegistry) {
	// len(x) works on strings, arrays and objects
	fixed(r, FuncNameLen, 1, func(args []any) (any, error) {
		switch v := args[0].(type) {
		case nil:
			return float64(0), nil
		case string:
			return float64(utf8.RuneCountInString(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		}
		return nil, errors.New(ErrMsgFuncExpectedArray)
	})

	fixed(r, FuncNameFirst, 1, func(args []any) (any, error) {
		items, err := arrayArg(args[0])
		if err != nil || len(items) == 0 {
			return nil, err
		}
		return items[0], nil
	})

	fixed(r, FuncNameLast, 1, func(args []any) (any, error) {
		items, err := arrayArg(args[0])
		if err != nil || len(items) == 0 {
			return nil, err
		}
		return items[len(items)-1], nil
	})

	// join(items, sep?) joins the display form of each element
	r.MustRegister(&Func{
		Name:    FuncNameJoin,
		MinArgs: 1,
		MaxArgs: 2,
		Fn: func(args []any) (any, error) {
			items, err := arrayArg(args[0])
			if err != nil {
				return nil, err
			}
			sep := ""
			if len(args) > 1 {
				sep = ToDisplayString(args[1])
			}
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = ToDisplayString(item)
			}
			return strings.Join(parts, sep), nil
		},
	})

	// keys(obj) returns the sorted keys
	fixed(r, FuncNameKeys, 1, func(args []any) (any, error) {
		obj, err := objectArg(args[0])
		if err != nil {
			return nil, err
		}
		keys := SortedKeys(obj)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	})

	// values(obj) returns values in key order
	fixed(r, FuncNameValues, 1, func(args []any) (any, error) {
		obj, err := objectArg(args[0])
		if err != nil {
			return nil, err
		}
		keys := SortedKeys(obj)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = obj[k]
		}
		return out, nil
	})

	fixed(r, FuncNameHas, 2, func(args []any) (any, error) {
		obj, err := objectArg(args[0])
		if err != nil {
			return nil, err
		}
		_, ok := obj[toPropertyKey(args[1])]
		return ok, nil
	})
}

func arrayArg(v any) ([]any, error) {
	switch items := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return items, nil
	}
	return nil, errors.New(ErrMsgFuncExpectedArray)
}

func objectArg(v any) (map[string]any, error) {
	switch obj := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return obj, nil
	}
	return nil, errors.New(ErrMsgFuncExpectedObject)
}
