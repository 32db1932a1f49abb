// Package export renders merged results into their final on-disk
// representation. Formats are pluggable rules keyed by name, so callers
// can add their own next to the built-in JSON and YAML renderers.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/agentic-research/tessera/api"
	"github.com/agentic-research/tessera/internal/merge"
)

// ErrUnknownFormat reports a format name with no registered rule.
var ErrUnknownFormat = errors.New("export: unknown format")

// Rule renders one merge result to w.
type Rule func(w io.Writer, res *merge.Result) error

// Registry maps format names to rendering rules. Lookups are
// case-insensitive.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry returns a registry with the built-in formats registered.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[string]Rule)}
	r.Register("json", JSON)
	r.Register("yaml", YAML)
	r.Register("yml", YAML)
	return r
}

// Register adds or replaces the rule for a format.
func (r *Registry) Register(format string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[strings.ToLower(format)] = rule
}

// Get returns the rule registered for a format.
func (r *Registry) Get(format string) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return rule, nil
}

// Export renders res to w in the named format.
func (r *Registry) Export(w io.Writer, format string, res *merge.Result) error {
	rule, err := r.Get(format)
	if err != nil {
		return err
	}
	return rule(w, res)
}

// JSON renders the result tree as indented JSON.
func JSON(w io.Writer, res *merge.Result) error {
	data, err := json.MarshalIndent(res.Tree, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// YAML renders the result tree as YAML, with key order preserved and
// missing markers emitted as null.
func YAML(w io.Writer, res *merge.Result) error {
	data, err := yaml.Marshal(toYAML(res.Tree))
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write yaml: %w", err)
	}
	return nil
}

func toYAML(v any) any {
	switch val := v.(type) {
	case *api.Object:
		out := make(yaml.MapSlice, 0, val.Len())
		for pair := val.Oldest(); pair != nil; pair = pair.Next() {
			out = append(out, yaml.MapItem{Key: pair.Key, Value: toYAML(pair.Value)})
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toYAML(item)
		}
		return out
	case merge.Missing:
		return nil
	default:
		return val
	}
}
