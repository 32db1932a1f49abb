package merge

// Scope tracks the position of a merge step inside the result tree plus
// the pattern variable bindings accumulated on the way down. Scopes form
// a parent-linked chain; each instance of a pattern subtree gets its own,
// so bindings never leak between sibling instances.
type Scope struct {
	parent  *Scope
	key     string
	pattern bool
	varName string
	value   string
}

// Enter returns a child scope for a literal branch key.
func (s *Scope) Enter(key string) *Scope {
	return &Scope{parent: s, key: key}
}

// Bind returns a child scope for a pattern match, binding varName to the
// matched key. An empty varName still records the match for path and
// filtering purposes.
func (s *Scope) Bind(key, varName string) *Scope {
	return &Scope{parent: s, key: key, pattern: true, varName: varName, value: key}
}

// Path returns the result-tree keys from the root down to this scope.
func (s *Scope) Path() []string {
	var out []string
	for cur := s; cur != nil; cur = cur.parent {
		if cur.key != "" {
			out = append(out, cur.key)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Lookup resolves a variable binding, nearest enclosing scope first.
func (s *Scope) Lookup(name string) (string, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.varName != "" && cur.varName == name {
			return cur.value, true
		}
	}
	return "", false
}

// Bindings returns every variable binding visible from this scope, the
// nearest declaration winning on name clashes.
func (s *Scope) Bindings() map[string]string {
	out := make(map[string]string)
	var collect func(*Scope)
	collect = func(cur *Scope) {
		if cur == nil {
			return
		}
		collect(cur.parent)
		if cur.varName != "" {
			out[cur.varName] = cur.value
		}
	}
	collect(s)
	return out
}

// BoundValues returns the matched keys of enclosing pattern scopes,
// outermost first.
func (s *Scope) BoundValues() []string {
	var out []string
	for cur := s; cur != nil; cur = cur.parent {
		if cur.pattern {
			out = append(out, cur.value)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// InPattern reports whether this scope sits inside a pattern instance.
func (s *Scope) InPattern() bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.pattern {
			return true
		}
	}
	return false
}
