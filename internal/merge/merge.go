// Package merge materializes an interpreted schema tree into a result
// tree. The engine walks schema and result in lock step: branches become
// ordered objects, pattern contexts fan out into one subtree instance per
// matched key, and parser leaves are resolved through a provider pair
// supplied by the caller. Data problems never abort a pass; they degrade
// to Missing markers and warnings so one bad file cannot sink an archive.
package merge

import (
	"errors"

	"github.com/expr-lang/expr"

	"github.com/agentic-research/tessera/api"
	"github.com/agentic-research/tessera/internal/interp"
)

// ErrAbsent signals that a provider holds no value for a leaf. The engine
// degrades the position to a Missing marker instead of failing the pass.
var ErrAbsent = errors.New("merge: no result for leaf")

// MatchProvider yields the literal keys discovered during exploration
// that satisfy a pattern context. Keys are returned in a stable order and
// without duplicates.
type MatchProvider interface {
	Matches(pc *interp.PatternContext, scope *Scope) ([]string, error)
}

// ResultProvider resolves a parser leaf to its parsing result within a
// scope. Absence is reported with ErrAbsent; any other error is treated
// as a resolution failure for that position only.
type ResultProvider interface {
	Resolve(leaf *interp.ParserLeaf, scope *Scope) (any, error)
}

// WarningSource is an optional provider capability. Providers that gather
// recoverable problems while matching or resolving expose them here, and
// the engine drains them into the Result after every call.
type WarningSource interface {
	DrainWarnings() []Warning
}

// Engine merges parsing results into the shape of an interpreted tree.
// One Engine value serves one configuration; Merge may be called once per
// interpreted tree and result set.
type Engine struct {
	Matches MatchProvider
	Results ResultProvider

	// AddDescription and AddType enrich scalar leaf fields with the
	// description and type declared for them in the definition body.
	AddDescription bool
	AddType        bool
}

// Merge performs the depth-first pass over the interpreted tree and
// returns the populated result. The interpreted tree is read-only during
// the pass; the returned tree is exclusively owned by the caller.
func (e *Engine) Merge(t *interp.Tree) *Result {
	res := &Result{Tree: api.NewObject()}
	e.branch(t.Root, nil, res.Tree, res)
	return res
}

// branch materializes one schema branch into out, children in declared
// order. Pattern contexts expand in place, so their instances occupy the
// pattern's position among the literal siblings.
func (e *Engine) branch(b *interp.Branch, scope *Scope, out *api.Object, res *Result) {
	for pair := b.Children.Oldest(); pair != nil; pair = pair.Next() {
		switch n := pair.Value.(type) {
		case *interp.Branch:
			sub := api.NewObject()
			e.branch(n, scope.Enter(pair.Key), sub, res)
			out.Set(pair.Key, sub)
		case *interp.PatternContext:
			e.fanOut(n, scope, out, res)
		case *interp.ParserLeaf:
			out.Set(pair.Key, e.leaf(n, scope.Enter(pair.Key), res))
		}
	}
}

// fanOut expands a pattern context into one subtree instance per matched
// key. Zero matches is not an error; the parent branch simply gains no
// children here.
func (e *Engine) fanOut(pc *interp.PatternContext, scope *Scope, out *api.Object, res *Result) {
	keys, err := e.Matches.Matches(pc, scope)
	e.drain(res, scope.Path())
	if err != nil {
		res.warnf(append(scope.Path(), pc.Expr), "matching pattern: %v", err)
		return
	}
	for _, key := range keys {
		inst := scope.Bind(key, pc.VarName)
		switch n := pc.Child.(type) {
		case *interp.Branch:
			sub := api.NewObject()
			e.branch(n, inst, sub, res)
			out.Set(key, sub)
		case *interp.ParserLeaf:
			out.Set(key, e.leaf(n, inst, res))
		}
	}
}

// leaf resolves one parser leaf position. Absence and resolution failures
// degrade to the Missing marker with a warning, keeping the output
// schema-complete and sibling positions unaffected.
func (e *Engine) leaf(l *interp.ParserLeaf, scope *Scope, res *Result) any {
	if l.Calculate != nil {
		return e.calculate(l.Calculate, scope, res)
	}
	v, err := e.Results.Resolve(l, scope)
	e.drain(res, scope.Path())
	if err != nil {
		if errors.Is(err, ErrAbsent) {
			res.warnf(scope.Path(), "no result for definition %q", l.Def.Name)
		} else {
			res.warnf(scope.Path(), "resolving definition %q: %v", l.Def.Name, err)
		}
		return Missing{}
	}
	v = deepCopy(v)
	if e.AddDescription || e.AddType {
		v = e.annotate(v, l.Def)
	}
	return v
}

// calculate resolves every source leaf of a calculation, widens numeric
// operands and runs the compiled expression. A missing operand takes the
// whole position down to a Missing marker.
func (e *Engine) calculate(c *interp.CalculateDirective, scope *Scope, res *Result) any {
	if e.AddDescription || e.AddType {
		res.warnf(scope.Path(), "field annotations do not apply to calculated values")
	}
	env := make(map[string]any, len(c.Variables))
	for _, v := range c.Variables {
		val, err := e.Results.Resolve(v.Leaf, scope)
		e.drain(res, scope.Path())
		if err != nil {
			res.warnf(scope.Path(), "calculate operand %q: %v", v.Name, err)
			return Missing{}
		}
		env[v.Name] = coerceNumber(val)
	}
	out, err := expr.Run(c.Program, env)
	if err != nil {
		res.warnf(scope.Path(), "calculate %q: %v", c.Expression, err)
		return Missing{}
	}
	return out
}

// drain collects pending warnings from providers that expose them.
// Warnings without a position are attributed to the current path.
func (e *Engine) drain(res *Result, path []string) {
	for _, src := range []any{e.Matches, e.Results} {
		ws, ok := src.(WarningSource)
		if !ok {
			continue
		}
		for _, w := range ws.DrainWarnings() {
			if w.Path == "" {
				res.warnf(path, "%s", w.Reason)
				continue
			}
			res.Warnings = append(res.Warnings, w)
		}
	}
}

// coerceNumber widens any numeric type to float64 so expressions behave
// the same regardless of which parser produced the operand.
func coerceNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
