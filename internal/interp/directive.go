package interp

import (
	"math"
	"regexp"

	"github.com/agentic-research/tessera/api"
	"github.com/expr-lang/expr/vm"
)

// Directive is a contextual instruction attached to a schema dictionary.
// The set is closed: VarNameDirective, ParsingDirective and
// CalculateDirective cover every accepted "!"-prefixed key, and consumers
// switch over the concrete types.
type Directive interface {
	directive()
}

// VarNameDirective names the variable that binds the literal key matched
// by the enclosing pattern container.
type VarNameDirective struct {
	Name string
}

// ParsingDirective narrows which files and which parts of their parsed
// output feed a leaf.
type ParsingDirective struct {
	// Path restricts source files by relative path. Segments are regular
	// expressions, "*" matches any single segment and "{var}" references
	// a pattern variable bound higher up the tree.
	Path string
	// Keys selects parts of the parsed value: slash-separated per-level
	// regular expressions, or a JSONPath expression when the key starts
	// with "$".
	Keys []string
	// Unpack unwraps that many levels of single-key nesting; UnpackAll
	// unwraps as deep as possible, zero leaves the value as is.
	Unpack int
}

// UnpackAll makes a ParsingDirective unwrap every singular nesting level.
const UnpackAll = -1

// CalculateDirective derives a leaf value by evaluating an expression
// over other parsed leaves. The program is compiled once at
// interpretation time and run per merge.
type CalculateDirective struct {
	// Expression is the declared source, whitespace stripped, with
	// "{name}" placeholders for the variables.
	Expression string
	Program    *vm.Program
	Variables  []CalculateVariable
}

// CalculateVariable names one expression input and the leaf producing it.
type CalculateVariable struct {
	Name string
	Leaf *ParserLeaf
}

func (*VarNameDirective) directive()   {}
func (*ParsingDirective) directive()   {}
func (*CalculateDirective) directive() {}

var exprVarPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// exprSource rewrites a brace-style expression to evaluator syntax and
// returns the distinct variable names it references in order of first
// use. "{a} / {b}" becomes "a / b".
func exprSource(expression string) (string, []string) {
	var names []string
	seen := make(map[string]bool)
	src := exprVarPattern.ReplaceAllStringFunc(expression, func(m string) string {
		name := m[1 : len(m)-1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return name
	})
	return src, names
}

func parseVarName(v any, path []string) (*VarNameDirective, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, schemaErr(path, BadDirective, "!varname must be a non-empty string, got %v", v)
	}
	return &VarNameDirective{Name: s}, nil
}

func parseParsing(v any, path []string) (*ParsingDirective, error) {
	obj, ok := v.(*api.Object)
	if !ok {
		return nil, schemaErr(path, BadDirective, "!parsing payload must be an object, got %T", v)
	}
	d := &ParsingDirective{}
	if pv, ok := obj.Get("path"); ok {
		s, ok := pv.(string)
		if !ok {
			return nil, schemaErr(path, BadDirective, "path must be a string, got %T", pv)
		}
		d.Path = s
	}
	if kv, ok := obj.Get("keys"); ok {
		list, ok := kv.([]any)
		if !ok {
			return nil, schemaErr(path, BadDirective, "keys must be a list, got %T", kv)
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, schemaErr(path, BadDirective, "keys entries must be strings, got %T", item)
			}
			d.Keys = append(d.Keys, s)
		}
	}
	if uv, ok := obj.Get("unpack"); ok {
		switch u := uv.(type) {
		case bool:
			if !u {
				return nil, schemaErr(path, BadDirective, "unpack=false has no effect")
			}
			d.Unpack = UnpackAll
		case float64:
			if u <= 0 || u != math.Trunc(u) {
				return nil, schemaErr(path, BadDirective, "unpack must be a positive integer, got %v", u)
			}
			d.Unpack = int(u)
		default:
			return nil, schemaErr(path, BadDirective, "unpack must be boolean or integer, got %T", uv)
		}
	}
	return d, nil
}
