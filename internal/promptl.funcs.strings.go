package internal

import (
	"strings"
)

// stringOp1 lifts a one-string function into a builtin
func stringOp1(fn func(string) any) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		return fn(s), nil
	}
}

// stringOp2 lifts a two-string function into a builtin
func stringOp2(fn func(a, b string) any) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		a, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		b, err := stringArg(args, 1)
		if err != nil {
			return nil, err
		}
		return fn(a, b), nil
	}
}

func registerStringFuncs(r *FuncRegistry) {
	fixed(r, FuncNameUpper, 1, stringOp1(func(s string) any { return strings.ToUpper(s) }))
	fixed(r, FuncNameLower, 1, stringOp1(func(s string) any { return strings.ToLower(s) }))
	fixed(r, FuncNameTrim, 1, stringOp1(func(s string) any { return strings.TrimSpace(s) }))
	fixed(r, FuncNameTrimPrefix, 2, stringOp2(func(s, p string) any { return strings.TrimPrefix(s, p) }))
	fixed(r, FuncNameTrimSuffix, 2, stringOp2(func(s, p string) any { return strings.TrimSuffix(s, p) }))
	fixed(r, FuncNameHasPrefix, 2, stringOp2(func(s, p string) any { return strings.HasPrefix(s, p) }))
	fixed(r, FuncNameHasSuffix, 2, stringOp2(func(s, p string) any { return strings.HasSuffix(s, p) }))

	// split(s, sep) returns an array of strings
	fixed(r, FuncNameSplit, 2, stringOp2(func(s, sep string) any {
		parts := strings.Split(s, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	}))

	// replace(s, old, new) replaces every occurrence
	fixed(r, FuncNameReplace, 3, func(args []any) (any, error) {
		s, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		old, err := stringArg(args, 1)
		if err != nil {
			return nil, err
		}
		repl, err := stringArg(args, 2)
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(s, old, repl), nil
	})

	// contains works on strings (substring) and arrays (element)
	fixed(r, FuncNameContains, 2, func(args []any) (any, error) {
		switch haystack := args[0].(type) {
		case string:
			return strings.Contains(haystack, ToDisplayString(args[1])), nil
		case []any:
			return indexOf(haystack, args[1]) >= 0, nil
		case map[string]any:
			_, ok := haystack[toPropertyKey(args[1])]
			return ok, nil
		}
		return false, nil
	})
}
