package internal

// Scope is one level of the lexical variable chain. Lookups walk up to the
// root; assignment updates the nearest scope that already defines the name
// and otherwise defines it locally.
type Scope struct {
	vars   map[string]any
	parent *Scope
}

// NewScope creates a root scope. data is deep-copied so evaluation can
// never mutate caller-owned parameters.
func NewScope(data map[string]any) *Scope {
	vars := make(map[string]any, len(data))
	for k, v := range data {
		vars[k] = CloneValue(v)
	}
	return &Scope{vars: vars}
}

// Child creates a nested scope
func (s *Scope) Child() *Scope {
	return &Scope{vars: map[string]any{}, parent: s}
}

// Parent returns the enclosing scope, nil for the root
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Lookup implements Env
func (s *Scope) Lookup(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Assign implements Env
func (s *Scope) Assign(name string, value any) {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = value
			return
		}
	}
	s.vars[name] = value
}

// Define binds name in this scope, shadowing outer bindings
func (s *Scope) Define(name string, value any) {
	s.vars[name] = value
}

// Snapshot flattens the chain into one map, inner bindings winning
func (s *Scope) Snapshot() map[string]any {
	var chain []*Scope
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	out := map[string]any{}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vars {
			out[k] = v
		}
	}
	return out
}

// Has reports whether name is bound anywhere in the chain
func (s *Scope) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// CloneValue deep-copies arrays and objects after normalization
func CloneValue(v any) any {
	switch val := Normalize(v).(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	default:
		return val
	}
}
