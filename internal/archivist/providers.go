package archivist

import (
	"fmt"
	"path"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/agentic-research/tessera/api"
	"github.com/agentic-research/tessera/internal/explore"
	"github.com/agentic-research/tessera/internal/interp"
	"github.com/agentic-research/tessera/internal/merge"
	"github.com/agentic-research/tessera/internal/parse"
)

// pathMatcher answers pattern fan-out queries from the exploration
// snapshot: the candidate keys for a pattern are the directory names
// seen on explored paths.
type pathMatcher struct {
	explored *explore.Explored
}

func newPathMatcher(ex *explore.Explored) *pathMatcher {
	return &pathMatcher{explored: ex}
}

func (m *pathMatcher) Matches(pc *interp.PatternContext, scope *merge.Scope) ([]string, error) {
	keys := m.explored.ComponentKeys(pc.Pattern)
	bound := scope.BoundValues()
	if len(bound) == 0 {
		return keys, nil
	}
	// Keep only keys that co-occur with the keys already bound above.
	var out []string
	for _, key := range keys {
		with := append(append([]string(nil), bound...), key)
		if !m.explored.FilesWith(with).IsEmpty() {
			out = append(out, key)
		}
	}
	return out, nil
}

// cacheResolver resolves parser leaves from the extraction cache. A leaf
// named X draws on every file parser X produced a result for, narrowed
// by the keys bound on the way down and by the leaf's path filter. Data
// problems are reported through the warning channel and never fail a
// resolve outright; a leaf with no surviving source is absent.
type cacheResolver struct {
	explored *explore.Explored
	cache    *parse.Cache
	regexes  *regexCache
	pending  []merge.Warning
}

func newCacheResolver(ex *explore.Explored, cache *parse.Cache, regexes *regexCache) *cacheResolver {
	return &cacheResolver{explored: ex, cache: cache, regexes: regexes}
}

func (r *cacheResolver) warnf(format string, args ...any) {
	r.pending = append(r.pending, merge.Warning{Reason: fmt.Sprintf(format, args...)})
}

// DrainWarnings hands accumulated warnings to the merge engine.
func (r *cacheResolver) DrainWarnings() []merge.Warning {
	out := r.pending
	r.pending = nil
	return out
}

type resolved struct {
	entry *parse.CacheEntry
	value any
}

func (r *cacheResolver) Resolve(leaf *interp.ParserLeaf, scope *merge.Scope) (any, error) {
	pcache, ok := r.cache.Parser(leaf.Def.Name)
	if !ok {
		return nil, merge.ErrAbsent
	}
	candidates := pcache.Files()
	bound := scope.BoundValues()
	if len(bound) > 0 {
		candidates.And(r.explored.FilesWith(bound))
	}

	var survivors []*parse.CacheEntry
	it := candidates.Iterator()
	for it.HasNext() {
		entry, ok := pcache.Entry(it.Next())
		if !ok {
			continue
		}
		if leaf.Parsing != nil && leaf.Parsing.Path != "" {
			match, err := r.pathFilter(leaf.Parsing.Path, entry.Parts, scope)
			if err != nil {
				r.warnf("path filter for %s: %v", entry.Path, err)
				continue
			}
			if !match {
				continue
			}
		}
		survivors = append(survivors, entry)
	}

	var loaded []resolved
	for _, entry := range survivors {
		v, err := entry.Value()
		if err != nil {
			r.warnf("load result for %s: %v", entry.Path, err)
			continue
		}
		if leaf.Parsing != nil && len(leaf.Parsing.Keys) > 0 {
			v = r.filterKeys(v, leaf.Parsing.Keys, scope)
			if v == nil {
				r.warnf("keys filter selected nothing from %s", entry.Path)
				continue
			}
		}
		if leaf.Parsing != nil && leaf.Parsing.Unpack != 0 {
			v = r.unpack(v, leaf.Parsing.Unpack)
		}
		loaded = append(loaded, resolved{entry: entry, value: v})
	}

	if len(loaded) == 0 {
		return nil, merge.ErrAbsent
	}
	if len(loaded) == 1 {
		return loaded[0].value, nil
	}
	return r.accumulate(loaded, bound), nil
}

// pathFilter matches a path expression against the trailing segments of
// a file's relative path, file name included. Shorter expressions
// constrain only the deepest segments.
func (r *cacheResolver) pathFilter(expr string, parts []string, scope *merge.Scope) (bool, error) {
	segs := strings.Split(expr, "/")
	if len(segs) > len(parts) {
		return false, nil
	}
	for i := 1; i <= len(segs); i++ {
		ok, err := r.regexes.segMatch(segs[len(segs)-i], parts[len(parts)-i], scope)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// filterKeys narrows a parsed value to the fields named by the keys
// filter. Slash-separated keys select matching nested fields level by
// level and the selections merge into one object; keys starting with $
// are JSONPath expressions whose hits are stored under the expression
// itself. A filter that selects nothing returns nil.
func (r *cacheResolver) filterKeys(v any, keys []string, scope *merge.Scope) any {
	obj, ok := v.(*api.Object)
	if !ok {
		r.warnf("keys filter needs an object value, got %T", v)
		return nil
	}
	out := api.NewObject()
	matched := false
	for _, key := range keys {
		if strings.HasPrefix(key, "$") {
			expr, err := jp.ParseString(key)
			if err != nil {
				r.warnf("jsonpath %q: %v", key, err)
				continue
			}
			hits := expr.Get(toPlain(obj))
			if len(hits) == 0 {
				continue
			}
			if len(hits) == 1 {
				out.Set(key, hits[0])
			} else {
				out.Set(key, hits)
			}
			matched = true
			continue
		}
		sub := r.selectPath(obj, strings.Split(key, "/"), scope)
		if sub == nil {
			continue
		}
		mergeObjects(out, sub)
		matched = true
	}
	if !matched {
		return nil
	}
	return out
}

func (r *cacheResolver) selectPath(obj *api.Object, parts []string, scope *merge.Scope) *api.Object {
	out := api.NewObject()
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		ok, err := r.regexes.segMatch(parts[0], pair.Key, scope)
		if err != nil {
			r.warnf("keys filter: %v", err)
			continue
		}
		if !ok {
			continue
		}
		if len(parts) == 1 {
			out.Set(pair.Key, pair.Value)
			continue
		}
		sub, isObj := pair.Value.(*api.Object)
		if !isObj {
			continue
		}
		if nested := r.selectPath(sub, parts[1:], scope); nested != nil {
			out.Set(pair.Key, nested)
		}
	}
	if out.Len() == 0 {
		return nil
	}
	return out
}

// unpack strips wrapper levels from a filtered value: one level merges
// the children of every field into a single object. Negative levels
// unpack as deep as the shape allows.
func (r *cacheResolver) unpack(v any, levels int) any {
	for levels != 0 {
		obj, ok := v.(*api.Object)
		if !ok || obj.Len() == 0 {
			break
		}
		merged := api.NewObject()
		flat := true
		for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
			sub, isObj := pair.Value.(*api.Object)
			if !isObj {
				flat = false
				break
			}
			mergeObjects(merged, sub)
		}
		if !flat {
			break
		}
		v = merged
		if levels > 0 {
			levels--
		}
	}
	return v
}

// accumulate combines several surviving results for one leaf. Files that
// only differ below the bound directories keep their distinguishing
// segments as nesting; fully ambiguous sets collapse into a list in walk
// order.
func (r *cacheResolver) accumulate(loaded []resolved, bound []string) any {
	rests := make([][]string, len(loaded))
	flat := true
	for i, rv := range loaded {
		rests[i] = distinguishing(rv.entry.Dir(), bound)
		if len(rests[i]) > 0 {
			flat = false
		}
	}
	if flat {
		out := make([]any, len(loaded))
		for i, rv := range loaded {
			out[i] = rv.value
		}
		return out
	}
	out := api.NewObject()
	for i, rv := range loaded {
		rest := rests[i]
		if len(rest) == 0 {
			rest = []string{stem(rv.entry.Name())}
		}
		deepSet(out, rest, rv.value, rv.entry.Path, r.warnf)
	}
	return out
}

// distinguishing removes the first occurrence of each bound key from a
// file's directory segments, leaving the parts that set it apart from
// sibling survivors.
func distinguishing(dir, bound []string) []string {
	rest := append([]string(nil), dir...)
	for _, b := range bound {
		for i, seg := range rest {
			if seg == b {
				rest = append(rest[:i], rest[i+1:]...)
				break
			}
		}
	}
	return rest
}

func stem(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// deepSet places v at the nested path given by parts, creating
// intermediate objects as needed. Later values win on collision, with a
// warning naming the source file.
func deepSet(obj *api.Object, parts []string, v any, source string, warnf func(string, ...any)) {
	cur := obj
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur.Get(part)
		if ok {
			if sub, isObj := next.(*api.Object); isObj {
				cur = sub
				continue
			}
			warnf("value at %q replaced by subtree from %s", part, source)
		}
		sub := api.NewObject()
		cur.Set(part, sub)
		cur = sub
	}
	last := parts[len(parts)-1]
	if _, exists := cur.Get(last); exists {
		warnf("value at %q replaced by later result from %s", last, source)
	}
	cur.Set(last, v)
}

// mergeObjects folds src into dst, merging nested objects and letting
// later scalar values win.
func mergeObjects(dst, src *api.Object) {
	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		if cur, ok := dst.Get(pair.Key); ok {
			a, aok := cur.(*api.Object)
			b, bok := pair.Value.(*api.Object)
			if aok && bok {
				mergeObjects(a, b)
				continue
			}
		}
		dst.Set(pair.Key, pair.Value)
	}
}

// toPlain converts ordered objects into plain maps for JSONPath
// evaluation.
func toPlain(v any) any {
	switch val := v.(type) {
	case *api.Object:
		out := make(map[string]any, val.Len())
		for pair := val.Oldest(); pair != nil; pair = pair.Next() {
			out[pair.Key] = toPlain(pair.Value)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toPlain(item)
		}
		return out
	default:
		return val
	}
}
