package parse

import (
	"fmt"
	"io"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/agentic-research/tessera/api"
)

// ParseHCL decodes an attribute-only HCL document. Attributes keep their
// declaration order; expressions are evaluated without a context, so
// only literal values are supported.
func ParseHCL(r io.Reader, path string) (any, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	file, diags := hclparse.NewParser().ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse hcl %s: %w", path, diags)
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("read hcl attributes %s: %w", path, diags)
	}

	list := make([]*hcl.Attribute, 0, len(attrs))
	for _, a := range attrs {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Range.Start.Byte < list[j].Range.Start.Byte
	})

	out := api.NewObject()
	for _, a := range list {
		v, diags := a.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("evaluate hcl attribute %q in %s: %w", a.Name, path, diags)
		}
		native, err := ctyToNative(v)
		if err != nil {
			return nil, fmt.Errorf("convert hcl attribute %q in %s: %w", a.Name, path, err)
		}
		out.Set(a.Name, native)
	}
	return out, nil
}

// HCL returns the built-in HCL parser.
func HCL() Parser {
	return New("hcl", []string{"*.hcl"}, ParseHCL)
}

// ctyToNative converts a cty value to its natural Go counterpart.
// Objects and maps become ordered objects, iterated in cty's key order.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, ev := it.Element()
			native, err := ctyToNative(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := api.NewObject()
		it := v.ElementIterator()
		for it.Next() {
			kv, ev := it.Element()
			key := kv.AsString()
			native, err := ctyToNative(ev)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key, err)
			}
			out.Set(key, native)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported hcl value type %s", ty.FriendlyName())
	}
}

// FormatFunc maps a declared format name to its built-in parse function.
func FormatFunc(format string) (ParseFunc, bool) {
	switch format {
	case "json":
		return ParseJSON, true
	case "yaml", "yml":
		return ParseYAML, true
	case "hcl":
		return ParseHCL, true
	}
	return nil, false
}
