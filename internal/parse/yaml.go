package parse

import (
	"fmt"
	"io"

	"github.com/goccy/go-yaml"

	"github.com/agentic-research/tessera/api"
)

// ParseYAML decodes a YAML document with mapping order preserved.
func ParseYAML(r io.Reader, path string) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc any
	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.UseOrderedMap()); err != nil {
		return nil, fmt.Errorf("parse yaml %s: %w", path, err)
	}
	return fromYAML(doc), nil
}

// YAML returns the built-in YAML parser.
func YAML() Parser {
	return New("yaml", []string{"*.yaml", "*.yml"}, ParseYAML)
}

// fromYAML converts goccy's ordered mapping representation into the
// ordered object type used everywhere else.
func fromYAML(v any) any {
	switch val := v.(type) {
	case yaml.MapSlice:
		out := api.NewObject()
		for _, item := range val {
			out.Set(fmt.Sprint(item.Key), fromYAML(item.Value))
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromYAML(item)
		}
		return out
	default:
		return val
	}
}
