package merge

import (
	"github.com/agentic-research/tessera/api"

	"github.com/agentic-research/tessera/internal/interp"
)

// annotate enriches a resolved value with the field declarations of the
// definition it came from. Scalar fields that the definition describes
// are wrapped as {"value": ..., "description": ..., "type": ...}
// according to the engine options; nested objects recurse through the
// declaration's own properties. Fields the definition does not describe
// pass through untouched.
func (e *Engine) annotate(v any, def *interp.Definition) any {
	if def == nil {
		return v
	}
	props, ok := def.Properties()
	if !ok {
		return v
	}
	return e.annotateObject(v, props)
}

func (e *Engine) annotateObject(v any, props *api.Object) any {
	obj, ok := v.(*api.Object)
	if !ok {
		return v
	}
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		dv, ok := props.Get(pair.Key)
		if !ok {
			continue
		}
		decl, ok := dv.(*api.Object)
		if !ok {
			continue
		}
		if sub, ok := pair.Value.(*api.Object); ok {
			nested, ok := decl.Get(api.KeyProperties)
			if !ok {
				continue
			}
			if nestedProps, ok := nested.(*api.Object); ok {
				obj.Set(pair.Key, e.annotateObject(sub, nestedProps))
			}
			continue
		}
		wrapped := api.NewObject()
		wrapped.Set("value", pair.Value)
		if e.AddDescription {
			if d, ok := decl.Get("description"); ok {
				wrapped.Set("description", d)
			}
		}
		if e.AddType {
			if t, ok := decl.Get("type"); ok {
				wrapped.Set("type", t)
			}
		}
		if wrapped.Len() > 1 {
			obj.Set(pair.Key, wrapped)
		}
	}
	return obj
}
