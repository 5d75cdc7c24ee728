package promptl

import (
	"github.com/itsatony/go-promptl/internal"
)

// Func is a custom global function callable from template expressions.
type Func struct {
	// Name is the identifier used in expressions (e.g. "slugify" for slugify(x))
	Name string
	// MinArgs is the minimum number of arguments required
	MinArgs int
	// MaxArgs is the maximum number of arguments allowed (-1 for variadic)
	MaxArgs int
	// Fn receives normalised arguments: numbers as float64, lists as []any
	// and objects as map[string]any
	Fn func(args []any) (any, error)
}

// RegisterFunc registers a custom function for use in expressions.
//
// Example:
//
//	engine.RegisterFunc(&promptl.Func{
//	    Name:    "double",
//	    MinArgs: 1,
//	    MaxArgs: 1,
//	    Fn: func(args []any) (any, error) {
//	        n, _ := args[0].(float64)
//	        return n * 2, nil
//	    },
//	})
//
// The function can then be used in templates:
//
//	{{ if double(count) > 10 }}...{{ endif }}
//
// Names are first-come: builtins and earlier registrations cannot be
// replaced.
func (e *Engine) RegisterFunc(f *Func) error {
	if f == nil || f.Fn == nil {
		return NewFuncRegistrationError(ErrMsgFuncNilFunc, "")
	}
	if f.Name == "" {
		return NewFuncRegistrationError(ErrMsgFuncEmptyName, "")
	}

	err := e.funcs.Register(&internal.Func{
		Name:    f.Name,
		MinArgs: f.MinArgs,
		MaxArgs: f.MaxArgs,
		Fn:      f.Fn,
	})
	if err != nil {
		return NewFuncRegistrationError(ErrMsgFuncRegisterErr+": "+err.Error(), f.Name)
	}
	return nil
}

// MustRegisterFunc registers a custom function and panics on error.
func (e *Engine) MustRegisterFunc(f *Func) {
	if err := e.RegisterFunc(f); err != nil {
		panic(err)
	}
}

// HasFunc checks if a function is registered with the given name.
func (e *Engine) HasFunc(name string) bool {
	return e.funcs.Has(name)
}

// ListFuncs returns all registered function names, sorted.
func (e *Engine) ListFuncs() []string {
	return e.funcs.List()
}
