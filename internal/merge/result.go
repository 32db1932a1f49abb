package merge

import (
	"fmt"
	"strings"

	"github.com/agentic-research/tessera/api"
)

// Missing marks a leaf position whose parser produced no usable value.
// The marker keeps the output tree schema-complete; it serializes as
// null.
type Missing struct{}

func (Missing) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (Missing) String() string { return "<missing>" }

// Warning records a recoverable data problem at one result position.
type Warning struct {
	Path   string
	Reason string
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Reason
	}
	return w.Path + ": " + w.Reason
}

// Result is the output of one merge pass: the populated ordered tree and
// the warnings gathered while building it.
type Result struct {
	Tree     *api.Object
	Warnings []Warning
}

func (r *Result) warnf(path []string, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{
		Path:   strings.Join(path, "/"),
		Reason: fmt.Sprintf(format, args...),
	})
}

// deepCopy clones a value structurally so sibling subtree instances never
// share mutable state. Ordered objects, plain maps and slices are copied
// recursively; scalars pass through.
func deepCopy(v any) any {
	switch val := v.(type) {
	case *api.Object:
		out := api.NewObject()
		for pair := val.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, deepCopy(pair.Value))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
