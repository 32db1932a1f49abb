package interp

import (
	"fmt"
	"strings"

	"github.com/agentic-research/tessera/api"
)

// Definition is a named parser definition from the schema's definitions
// section. The body is kept verbatim: the interpreter only needs the name,
// collaborators may read declared fields (descriptions, file patterns)
// from the body. A definition can be referenced by any number of leaves;
// each reference site is an independent leaf sharing the same identity.
type Definition struct {
	Name string
	Body *api.Object
}

// Field returns a named entry of the definition body, when present.
func (d *Definition) Field(key string) (any, bool) {
	if d.Body == nil {
		return nil, false
	}
	return d.Body.Get(key)
}

// Properties returns the definition's declared field descriptions, when
// present.
func (d *Definition) Properties() (*api.Object, bool) {
	v, ok := d.Field(api.KeyProperties)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*api.Object)
	return obj, ok
}

// Registry is the lookup table definition references resolve against.
// It is built once per document and never mutated afterwards.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// NewRegistry builds a registry from the definitions section. A nil
// section yields an empty registry. Names must not contain the path
// separator, since "/" delimits reference paths.
func NewRegistry(defs *api.Object) (*Registry, error) {
	r := &Registry{defs: make(map[string]*Definition)}
	if defs == nil {
		return r, nil
	}
	for pair := defs.Oldest(); pair != nil; pair = pair.Next() {
		if strings.Contains(pair.Key, "/") {
			return nil, &SchemaError{
				Path:   api.KeyDefs + "/" + pair.Key,
				Kind:   InvalidDefinitionName,
				Detail: fmt.Sprintf("name %q contains the path separator", pair.Key),
			}
		}
		def := &Definition{Name: pair.Key}
		if body, ok := pair.Value.(*api.Object); ok {
			def.Body = body
		}
		r.defs[pair.Key] = def
		r.order = append(r.order, pair.Key)
	}
	return r, nil
}

// Resolve resolves a document reference such as "#/$defs/station_parser".
// Segments past the definition name are accepted but carry no meaning yet;
// only the name selects the definition.
func (r *Registry) Resolve(ref string) (*Definition, error) {
	if !strings.HasPrefix(ref, api.RefPrefix) {
		return nil, fmt.Errorf("reference %q: expected prefix %q", ref, api.RefPrefix)
	}
	rest := strings.TrimPrefix(ref, api.RefPrefix)
	name, _, _ := strings.Cut(rest, "/")
	if name == "" {
		return nil, fmt.Errorf("reference %q: empty definition name", ref)
	}
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("reference %q: no such definition", ref)
	}
	return def, nil
}

// Lookup returns a definition by bare name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Names returns definition names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
