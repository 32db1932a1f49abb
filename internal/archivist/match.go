package archivist

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentic-research/tessera/internal/merge"
)

// bindPattern recognizes {name} references to pattern variables inside
// path segments.
var bindPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// regexCache memoizes compiled segment expressions. Path and key filters
// re-match the same handful of expressions across every candidate file,
// so a small LRU covers a whole run.
type regexCache struct {
	lru *lru.Cache[string, *regexp.Regexp]
}

func newRegexCache() *regexCache {
	c, _ := lru.New[string, *regexp.Regexp](256)
	return &regexCache{lru: c}
}

func (rc *regexCache) compile(expr string) (*regexp.Regexp, error) {
	if re, ok := rc.lru.Get(expr); ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	rc.lru.Add(expr, re)
	return re, nil
}

// segMatch reports whether one filter segment accepts a path segment.
// "*" accepts anything, {name} references expand to their bound keys,
// and anything that is not an exact literal match is retried as a
// regular expression.
func (rc *regexCache) segMatch(seg, name string, scope *merge.Scope) (bool, error) {
	if seg == "*" {
		return true, nil
	}
	if strings.Contains(seg, "{") {
		expanded, ok := expandBindings(seg, scope)
		if !ok {
			return false, nil
		}
		seg = expanded
	}
	if seg == name {
		return true, nil
	}
	re, err := rc.compile(seg)
	if err != nil {
		return false, fmt.Errorf("filter segment %q: %w", seg, err)
	}
	return re.MatchString(name), nil
}

// expandBindings substitutes {name} references with the keys bound by
// enclosing pattern matches. A reference without a binding leaves the
// segment unsatisfiable.
func expandBindings(seg string, scope *merge.Scope) (string, bool) {
	ok := true
	out := bindPattern.ReplaceAllStringFunc(seg, func(m string) string {
		v, found := scope.Lookup(m[1 : len(m)-1])
		if !found {
			ok = false
			return m
		}
		return v
	})
	return out, ok
}
