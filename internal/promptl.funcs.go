package internal

import (
	"fmt"
	"sort"
	"sync"
)

// Func is a global function callable from expressions
type Func struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic
	Fn      func(args []any) (any, error)
}

// FuncRegistry holds the global functions visible to templates
type FuncRegistry struct {
	funcs map[string]*Func
	mu    sync.RWMutex
}

// NewFuncRegistry creates an empty registry
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{funcs: make(map[string]*Func)}
}

// NewBuiltinFuncRegistry creates a registry preloaded with the builtins
func NewBuiltinFuncRegistry() *FuncRegistry {
	r := NewFuncRegistry()
	RegisterBuiltinFuncs(r)
	return r
}

// Register adds a function. Names are first-come and reserved words are rejected.
func (r *FuncRegistry) Register(f *Func) error {
	if f == nil || f.Fn == nil {
		return &FuncError{Message: ErrMsgFuncNilFunc}
	}
	if !IsIdentifier(f.Name) {
		return &FuncError{Message: ErrMsgFuncInvalidName, FuncName: f.Name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[f.Name]; exists {
		return &FuncError{Message: ErrMsgFuncAlreadyExists, FuncName: f.Name}
	}
	r.funcs[f.Name] = f
	return nil
}

// MustRegister adds a function and panics on error
func (r *FuncRegistry) MustRegister(f *Func) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// Has checks if a function is registered
func (r *FuncRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// Callable returns a Callable that dispatches to the named function
func (r *FuncRegistry) Callable(name string) Callable {
	return NativeFunc(func(args []any) (any, error) {
		return r.Call(name, args)
	})
}

// Call invokes a function by name after checking its arity
func (r *FuncRegistry) Call(name string, args []any) (any, error) {
	r.mu.RLock()
	f, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &FuncError{Message: ErrMsgFuncNotFound, FuncName: name}
	}

	switch n := len(args); {
	case n < f.MinArgs:
		return nil, &FuncError{Message: ErrMsgFuncTooFewArgs, FuncName: name, Detail: fmt.Sprintf(fmtArity, f.MinArgs, n)}
	case f.MaxArgs >= 0 && n > f.MaxArgs:
		return nil, &FuncError{Message: ErrMsgFuncTooManyArgs, FuncName: name, Detail: fmt.Sprintf(fmtArity, f.MaxArgs, n)}
	}

	normalized := make([]any, len(args))
	for i, a := range args {
		normalized[i] = Normalize(a)
	}
	result, err := f.Fn(normalized)
	if err != nil {
		return nil, &FuncError{Message: ErrMsgFuncFailed, FuncName: name, Cause: err}
	}
	return result, nil
}

// List returns all registered function names, sorted
func (r *FuncRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the registry
func (r *FuncRegistry) Clone() *FuncRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewFuncRegistry()
	for k, v := range r.funcs {
		c.funcs[k] = v
	}
	return c
}

// FuncError reports registration and invocation failures
type FuncError struct {
	Message  string
	FuncName string
	Detail   string
	Cause    error
}

// Error implements the error interface
func (e *FuncError) Error() string {
	msg := e.Message
	if e.FuncName != "" {
		msg = fmt.Sprintf(ErrFmtWithDetail, msg, e.FuncName)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Cause != nil {
		msg = fmt.Sprintf(ErrFmtWithCause, msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *FuncError) Unwrap() error {
	return e.Cause
}

const fmtArity = "expected %d, got %d"

// Function error messages
const (
	ErrMsgFuncNilFunc        = "function cannot be nil"
	ErrMsgFuncInvalidName    = "function name must be a non-reserved identifier"
	ErrMsgFuncAlreadyExists  = "function already registered"
	ErrMsgFuncNotFound       = "function not found"
	ErrMsgFuncTooFewArgs     = "too few arguments"
	ErrMsgFuncTooManyArgs    = "too many arguments"
	ErrMsgFuncFailed         = "function failed"
	ErrMsgFuncExpectedString = "expected string argument"
	ErrMsgFuncExpectedArray  = "expected array argument"
	ErrMsgFuncExpectedObject = "expected object argument"
	ErrMsgFuncConversion     = "type conversion failed"
)

// Built-in function names
const (
	FuncNameLen        = "len"
	FuncNameContains   = "contains"
	FuncNameUpper      = "upper"
	FuncNameLower      = "lower"
	FuncNameTrim       = "trim"
	FuncNameTrimPrefix = "trimPrefix"
	FuncNameTrimSuffix = "trimSuffix"
	FuncNameHasPrefix  = "hasPrefix"
	FuncNameHasSuffix  = "hasSuffix"
	FuncNameReplace    = "replace"
	FuncNameSplit      = "split"
	FuncNameJoin       = "join"
	FuncNameFirst      = "first"
	FuncNameLast       = "last"
	FuncNameKeys       = "keys"
	FuncNameValues     = "values"
	FuncNameHas        = "has"
	FuncNameToString   = "toString"
	FuncNameToInt      = "toInt"
	FuncNameToFloat    = "toFloat"
	FuncNameToBool     = "toBool"
	FuncNameTypeOf     = "typeOf"
	FuncNameIsNil      = "isNil"
	FuncNameIsEmpty    = "isEmpty"
	FuncNameDefault    = "default"
	FuncNameCoalesce   = "coalesce"
	FuncNameJSON       = "json"
)

// RegisterBuiltinFuncs registers all built-in functions with the registry
func RegisterBuiltinFuncs(r *FuncRegistry) {
	registerStringFuncs(r)
	registerCollectionFuncs(r)
	registerTypeFuncs(r)
	registerUtilFuncs(r)
}

// fixed registers a function with an exact arity
func fixed(r *FuncRegistry, name string, arity int, fn func(args []any) (any, error)) {
	r.MustRegister(&Func{Name: name, MinArgs: arity, MaxArgs: arity, Fn: fn})
}

func stringArg(args []any, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s (argument %d)", ErrMsgFuncExpectedString, i)
	}
	return s, nil
}
