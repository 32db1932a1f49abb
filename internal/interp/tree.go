package interp

import (
	"regexp"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Node is an interpreted tree node. The set is closed: Branch, ParserLeaf
// and PatternContext.
type Node interface {
	node()
}

// Branch is a named mapping of child name to node. Child order follows
// the schema declaration and is preserved through to the output.
type Branch struct {
	Children *orderedmap.OrderedMap[string, Node]
}

// NewBranch returns an empty branch.
func NewBranch() *Branch {
	return &Branch{Children: orderedmap.New[string, Node]()}
}

// ParserLeaf is a terminal node holding the dictionary's single result
// source: either a definition reference, or a calculation derived from
// other leaves. Parsing, when set, narrows the files and value parts that
// feed the leaf.
type ParserLeaf struct {
	Def       *Definition
	Parsing   *ParsingDirective
	Calculate *CalculateDirective
}

// PatternContext wraps a subtree whose key is a pattern rather than a
// literal name. At merge time the subtree is instantiated once per
// matched key, with VarName (when set) bound to the literal match inside
// that instance.
type PatternContext struct {
	// Expr is the declared pattern key, Pattern its compiled form.
	Expr    string
	Pattern *regexp.Regexp
	VarName string
	Child   Node
}

func (*Branch) node()         {}
func (*ParserLeaf) node()     {}
func (*PatternContext) node() {}

// Tree is the interpreted schema: an immutable structural tree plus the
// definition registry it was resolved against. Built once at
// configuration time and shared by every merge pass.
type Tree struct {
	Root *Branch
	Defs *Registry
}

// Walk visits every node depth-first in declared order, pattern subtrees
// under their pattern expression key. The root branch is visited with an
// empty path.
func (t *Tree) Walk(fn func(path []string, n Node)) {
	walkNode(nil, t.Root, fn)
}

func walkNode(path []string, n Node, fn func([]string, Node)) {
	fn(path, n)
	switch v := n.(type) {
	case *Branch:
		for pair := v.Children.Oldest(); pair != nil; pair = pair.Next() {
			walkNode(appendPath(path, pair.Key), pair.Value, fn)
		}
	case *PatternContext:
		walkNode(appendPath(path, v.Expr), v.Child, fn)
	}
}

func appendPath(path []string, keys ...string) []string {
	out := make([]string, 0, len(path)+len(keys))
	out = append(out, path...)
	return append(out, keys...)
}
