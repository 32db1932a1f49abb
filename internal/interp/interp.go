// Package interp turns a schema document into the interpreted tree the
// merge engine walks. Interpretation is a recursive descent over the
// document's properties in declared key order: dictionaries containing a
// reference become parser leaves, pattern-keyed containers become pattern
// contexts, everything else structural becomes a branch. All structural
// validation happens here, so a tree that interprets cleanly can be merged
// without shape surprises.
package interp

import (
	"regexp"
	"strings"

	"github.com/agentic-research/tessera/api"
	"github.com/expr-lang/expr"
)

// Interpret builds the interpreted tree for a schema document. It fails
// with a *SchemaError on the first structural problem found.
func Interpret(doc *api.Document) (*Tree, error) {
	defs, _ := doc.Defs()
	reg, err := NewRegistry(defs)
	if err != nil {
		return nil, err
	}
	props, ok := doc.Properties()
	if !ok {
		return nil, &SchemaError{Kind: UnsupportedType, Detail: "document has no properties object"}
	}
	in := &interpreter{defs: reg}
	node, _, err := in.object(props, nil, walkState{})
	if err != nil {
		return nil, err
	}
	root, ok := node.(*Branch)
	if !ok {
		return nil, &SchemaError{Kind: UnsupportedType, Detail: "top-level properties must hold structure, not a reference"}
	}
	return &Tree{Root: root, Defs: reg}, nil
}

// walkState carries the context a dictionary inherits from its ancestors,
// snapshotted at the moment the child is reached.
type walkState struct {
	// inPattern is true anywhere inside a pattern subtree; declaring a
	// second pattern container there is rejected.
	inPattern bool
	// patternChild is true for the immediate value of a pattern key and
	// its transparent containers; only there may !varname appear.
	patternChild bool
	// parsing is the nearest inherited !parsing context.
	parsing *ParsingDirective
}

type interpreter struct {
	defs *Registry
}

// object interprets one schema dictionary and returns the resulting node
// plus the variable name a !varname declared, which only the pattern
// container rule consumes.
func (in *interpreter) object(o *api.Object, path []string, st walkState) (Node, string, error) {
	c := &dict{in: in, st: st, branch: NewBranch()}
	if err := c.walk(o, path); err != nil {
		return nil, "", err
	}
	return c.finish(path)
}

// dict accumulates the interpretation of a single schema dictionary. The
// transparent property containers recurse into the same dict, so
// "properties" does not introduce a structural level of its own.
type dict struct {
	in      *interpreter
	st      walkState
	branch  *Branch
	varName string
	parsing *ParsingDirective
	calc    *CalculateDirective
	def     *Definition
}

// source reports whether the dictionary already holds a result source, a
// reference or a calculation. A dictionary may hold at most one.
func (c *dict) source() bool { return c.def != nil || c.calc != nil }

func (c *dict) inheritedParsing() *ParsingDirective {
	if c.parsing != nil {
		return c.parsing
	}
	return c.st.parsing
}

func (c *dict) walk(o *api.Object, path []string) error {
	for pair := o.Oldest(); pair != nil; pair = pair.Next() {
		if err := c.key(pair.Key, pair.Value, path); err != nil {
			return err
		}
	}
	return nil
}

func (c *dict) key(key string, value any, path []string) error {
	kp := appendPath(path, key)
	switch key {
	case api.KeyRef:
		s, ok := value.(string)
		if !ok {
			return schemaErr(kp, UnsupportedType, "reference must be a string, got %T", value)
		}
		if c.source() {
			return schemaErr(kp, MultipleReferences, "dictionary already has a result source")
		}
		def, err := c.in.defs.Resolve(s)
		if err != nil {
			return schemaErr(kp, UnresolvedReference, "%v", err)
		}
		c.def = def

	case api.DirVarName:
		if c.source() {
			return schemaErr(kp, DirectiveAfterReference, "!varname declared after the reference")
		}
		if !c.st.patternChild {
			return schemaErr(kp, MisplacedVarName, "!varname is only legal directly inside a pattern-keyed container")
		}
		d, err := parseVarName(value, kp)
		if err != nil {
			return err
		}
		c.varName = d.Name

	case api.DirParsing:
		if c.source() {
			return schemaErr(kp, DirectiveAfterReference, "!parsing declared after the reference")
		}
		d, err := parseParsing(value, kp)
		if err != nil {
			return err
		}
		c.parsing = d

	case api.DirCalculate:
		if c.def != nil {
			return schemaErr(kp, DirectiveAfterReference, "!calculate declared after the reference")
		}
		if c.calc != nil {
			return schemaErr(kp, MultipleReferences, "dictionary already has a calculation")
		}
		d, err := c.in.calculate(value, kp, c.st)
		if err != nil {
			return err
		}
		c.calc = d

	case api.KeyProperties, api.KeyAdditionalProperties, api.KeyUnevaluatedProperties:
		obj, ok := value.(*api.Object)
		if !ok {
			return schemaErr(kp, UnsupportedType, "%s must be an object, got %T", key, value)
		}
		// Transparent container: contents belong to this dictionary.
		return c.walk(obj, kp)

	case api.KeyPatternProperties:
		return c.patterns(value, kp)

	case api.KeyDefs:
		// Consumed at registry construction.

	default:
		if strings.HasPrefix(key, api.DirectivePrefix) {
			return schemaErr(kp, UnknownDirective, "unrecognized directive %q", key)
		}
		if obj, ok := value.(*api.Object); ok {
			child := walkState{inPattern: c.st.inPattern, parsing: c.inheritedParsing()}
			node, _, err := c.in.object(obj, kp, child)
			if err != nil {
				return err
			}
			c.branch.Children.Set(key, node)
		}
		// Strings and other scalar values are inert schema keywords.
	}
	return nil
}

func (c *dict) patterns(value any, kp []string) error {
	obj, ok := value.(*api.Object)
	if !ok {
		return schemaErr(kp, UnsupportedType, "patternProperties must be an object, got %T", value)
	}
	if c.st.inPattern {
		return schemaErr(kp, MisplacedPattern, "pattern container nested inside another pattern subtree")
	}
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		pp := appendPath(kp, pair.Key)
		sub, ok := pair.Value.(*api.Object)
		if !ok {
			return schemaErr(pp, UnsupportedType, "pattern value must be an object, got %T", pair.Value)
		}
		re, err := regexp.Compile(pair.Key)
		if err != nil {
			return schemaErr(pp, BadDirective, "invalid pattern: %v", err)
		}
		child := walkState{inPattern: true, patternChild: true, parsing: c.inheritedParsing()}
		node, varName, err := c.in.object(sub, pp, child)
		if err != nil {
			return err
		}
		c.branch.Children.Set(pair.Key, &PatternContext{
			Expr:    pair.Key,
			Pattern: re,
			VarName: varName,
			Child:   node,
		})
	}
	return nil
}

func (c *dict) finish(path []string) (Node, string, error) {
	if c.source() {
		if c.branch.Children.Len() > 0 {
			return nil, "", schemaErr(path, UnsupportedType, "parser reference mixed with nested structure")
		}
		leaf := &ParserLeaf{Def: c.def, Calculate: c.calc, Parsing: c.inheritedParsing()}
		return leaf, c.varName, nil
	}
	return c.branch, c.varName, nil
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// calculate parses and validates a !calculate payload. The expression is
// compiled here so a malformed calculation fails the run before any file
// is parsed; variables are interpreted as leaves with the same walk.
func (in *interpreter) calculate(v any, path []string, st walkState) (*CalculateDirective, error) {
	obj, ok := v.(*api.Object)
	if !ok {
		return nil, schemaErr(path, BadDirective, "!calculate payload must be an object, got %T", v)
	}
	ev, ok := obj.Get("expression")
	if !ok {
		return nil, schemaErr(path, BadDirective, "missing expression")
	}
	es, ok := ev.(string)
	if !ok {
		return nil, schemaErr(path, BadDirective, "expression must be a string, got %T", ev)
	}
	expression := whitespacePattern.ReplaceAllString(es, "")
	src, names := exprSource(expression)
	program, err := expr.Compile(src)
	if err != nil {
		return nil, schemaErr(path, BadDirective, "expression %q does not compile: %v", expression, err)
	}

	vv, ok := obj.Get("variables")
	if !ok {
		return nil, schemaErr(path, BadDirective, "missing variables")
	}
	vars, ok := vv.(*api.Object)
	if !ok {
		return nil, schemaErr(path, BadDirective, "variables must be an object, got %T", vv)
	}
	if vars.Len() != len(names) {
		return nil, schemaErr(path, BadDirective,
			"expression references %d variables, %d declared", len(names), vars.Len())
	}
	used := make(map[string]bool, len(names))
	for _, n := range names {
		used[n] = true
	}

	d := &CalculateDirective{Expression: expression, Program: program}
	for pair := vars.Oldest(); pair != nil; pair = pair.Next() {
		vp := appendPath(path, "variables", pair.Key)
		if !used[pair.Key] {
			return nil, schemaErr(vp, BadDirective, "variable %q does not appear in the expression", pair.Key)
		}
		sub, ok := pair.Value.(*api.Object)
		if !ok {
			return nil, schemaErr(vp, BadDirective, "variable must be an object, got %T", pair.Value)
		}
		node, _, err := in.object(sub, vp, walkState{inPattern: st.inPattern, parsing: st.parsing})
		if err != nil {
			return nil, err
		}
		leaf, ok := node.(*ParserLeaf)
		if !ok || leaf.Def == nil {
			return nil, schemaErr(vp, BadDirective, "variable must reference a parser definition")
		}
		d.Variables = append(d.Variables, CalculateVariable{Name: pair.Key, Leaf: leaf})
	}
	return d, nil
}
