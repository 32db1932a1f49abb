package archivist

import (
	"fmt"

	"github.com/agentic-research/tessera/api"
	"github.com/agentic-research/tessera/internal/merge"
	"github.com/agentic-research/tessera/internal/parse"
)

// Mirror builds the schemaless result: every cached value sits at its
// source file's relative path, so the output mirrors the explored tree.
func Mirror(cache *parse.Cache) *merge.Result {
	res := &merge.Result{Tree: api.NewObject()}
	warnf := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, merge.Warning{Reason: fmt.Sprintf(format, args...)})
	}
	for _, entry := range cache.Entries() {
		v, err := entry.Value()
		if err != nil {
			warnf("load result for %s: %v", entry.Path, err)
			continue
		}
		deepSet(res.Tree, entry.Parts, v, entry.Path, warnf)
	}
	return res
}
