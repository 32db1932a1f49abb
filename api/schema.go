// Package api defines the public schema document model consumed by the
// interpreter. A document is JSON-Schema shaped: a "properties" section
// describing the desired output structure and a "$defs" section holding
// parser definitions. Declared key order is significant (it becomes output
// key order), so documents are decoded into insertion-ordered objects.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is a JSON object with insertion-ordered keys. Nested objects
// decode as *Object as well, so order survives at every level.
type Object = orderedmap.OrderedMap[string, any]

// NewObject returns an empty ordered object.
func NewObject() *Object { return orderedmap.New[string, any]() }

// Schema keys and syntax markers recognized by the interpreter.
const (
	// KeyProperties introduces literal structural children.
	KeyProperties = "properties"
	// KeyPatternProperties introduces pattern-keyed children.
	KeyPatternProperties = "patternProperties"
	// KeyAdditionalProperties and KeyUnevaluatedProperties are treated as
	// transparent structural containers, like KeyProperties.
	KeyAdditionalProperties  = "additionalProperties"
	KeyUnevaluatedProperties = "unevaluatedProperties"
	// KeyDefs is the definitions section at the document root.
	KeyDefs = "$defs"
	// KeyRef marks a parser reference inside a dictionary.
	KeyRef = "$ref"
	// RefPrefix is the accepted reference root. References are unix-style
	// paths below it, e.g. "#/$defs/station_parser".
	RefPrefix = "#/$defs/"

	// DirectivePrefix marks contextual directive keys.
	DirectivePrefix = "!"
	DirVarName      = "!varname"
	DirParsing      = "!parsing"
	DirCalculate    = "!calculate"
)

// Extension keywords optionally present in a definition body. They let a
// document declare which files feed a definition and how to decode them,
// so format parsers can be registered without writing Go code. The
// interpreter itself ignores them.
const (
	KeyPatterns = "x-patterns"
	KeyFormat   = "x-format"
)

// Document is a loaded schema document with key order intact.
type Document struct {
	root *Object
}

// Parse decodes a schema document from JSON bytes. The top level must be
// an object.
func Parse(data []byte) (*Document, error) {
	root := NewObject()
	if err := json.Unmarshal(data, root); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &Document{root: root}, nil
}

// Load reads and parses a schema document from a JSON file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Root returns the underlying root object.
func (d *Document) Root() *Object { return d.root }

// Properties returns the structural section, if present.
func (d *Document) Properties() (*Object, bool) { return d.section(KeyProperties) }

// Defs returns the definitions section, if present.
func (d *Document) Defs() (*Object, bool) { return d.section(KeyDefs) }

func (d *Document) section(key string) (*Object, bool) {
	v, ok := d.root.Get(key)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*Object)
	return obj, ok
}

// DecodeValue decodes arbitrary JSON preserving object key order at every
// nesting level. Objects decode as *Object, arrays as []any.
func DecodeValue(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("decode value: empty input")
	}
	switch trimmed[0] {
	case '{':
		obj := NewObject()
		if err := json.Unmarshal(trimmed, obj); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(raw))
		for _, r := range raw {
			v, err := DecodeValue(r)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
