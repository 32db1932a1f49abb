// Package archivist drives the full pipeline: explore a source tree or
// archive, run the registered parsers over matching files, merge the
// results into the shape an interpreted schema prescribes (or mirror the
// tree when no schema is set) and export the outcome.
package archivist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentic-research/tessera/api"
	"github.com/agentic-research/tessera/internal/explore"
	"github.com/agentic-research/tessera/internal/export"
	"github.com/agentic-research/tessera/internal/interp"
	"github.com/agentic-research/tessera/internal/merge"
	"github.com/agentic-research/tessera/internal/parse"
)

// ErrOutputExists reports a refusal to replace an existing output file.
var ErrOutputExists = errors.New("archivist: output file exists")

const scratchStore = "tessera-cache.db"

// Archivist owns the registries and configuration of one pipeline. Set a
// schema before running to get schema-shaped output; without one the
// output mirrors the source tree.
type Archivist struct {
	cfg     Config
	log     *slog.Logger
	parsers *parse.Registry
	exports *export.Registry
	tree    *interp.Tree
}

// New returns an archivist with the built-in export formats registered.
// A nil logger falls back to the default logger.
func New(cfg Config, logger *slog.Logger) *Archivist {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.normalize()
	return &Archivist{
		cfg:     cfg,
		log:     logger,
		parsers: parse.NewRegistry(),
		exports: export.NewRegistry(),
	}
}

// Parsers exposes the parser registry for custom registrations.
func (a *Archivist) Parsers() *parse.Registry { return a.parsers }

// Exports exposes the export registry for custom formats.
func (a *Archivist) Exports() *export.Registry { return a.exports }

// Tree returns the interpreted schema, or nil when none is set.
func (a *Archivist) Tree() *interp.Tree { return a.tree }

// SetSchema interprets a schema document and registers the file parsers
// its definitions declare. Interpretation errors are fatal; a schema
// that fails here never reaches the merge phase.
func (a *Archivist) SetSchema(doc *api.Document) error {
	tree, err := interp.Interpret(doc)
	if err != nil {
		return err
	}
	a.tree = tree
	a.registerDeclared(tree.Defs)
	return nil
}

// registerDeclared turns x-patterns/x-format declarations on definition
// bodies into registered file parsers.
func (a *Archivist) registerDeclared(defs *interp.Registry) {
	for _, name := range defs.Names() {
		def, _ := defs.Lookup(name)
		pv, hasPatterns := def.Field(api.KeyPatterns)
		fv, hasFormat := def.Field(api.KeyFormat)
		if !hasPatterns && !hasFormat {
			continue
		}
		patterns := stringList(pv)
		format, _ := fv.(string)
		if len(patterns) == 0 || format == "" {
			a.log.Warn("incomplete parser declaration", "definition", name)
			continue
		}
		fn, ok := parse.FormatFunc(format)
		if !ok {
			a.log.Warn("unknown declared format", "definition", name, "format", format)
			continue
		}
		a.parsers.Register(parse.New(name, patterns, fn))
		a.log.Debug("registered declared parser", "definition", name, "format", format, "patterns", patterns)
	}
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}

// Report summarizes one archive run.
type Report struct {
	Source     string
	OutputPath string
	Files      int
	Parsed     int
	Warnings   []merge.Warning
}

// Run executes the pipeline against source, a directory or a supported
// archive, and writes the configured output file.
func (a *Archivist) Run(ctx context.Context, source string) (*Report, error) {
	fsys, cleanup, err := explore.PrepareSource(source, a.cfg.ExtractionDirectory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		if a.cfg.AutoCleanup {
			defer func() {
				if err := cleanup(); err != nil {
					a.log.Warn("cleanup failed", "error", err)
				}
			}()
		} else {
			a.log.Info("keeping extracted contents", "directory", a.cfg.ExtractionDirectory)
		}
	}

	explored, err := explore.Explore(fsys, ".")
	if err != nil {
		return nil, err
	}
	a.log.Info("explored source", "source", source, "files", explored.Len())

	cache, closeCache, err := a.newCache()
	if err != nil {
		return nil, err
	}
	defer closeCache()

	parsed, err := a.extract(ctx, explored, cache)
	if err != nil {
		return nil, err
	}
	a.log.Info("extraction finished", "results", parsed)

	res := a.mergeResults(explored, cache)
	for _, w := range res.Warnings {
		a.log.Warn("merge warning", "path", w.Path, "reason", w.Reason)
	}

	outPath, err := a.write(res)
	if err != nil {
		return nil, err
	}
	a.log.Info("wrote output", "path", outPath)

	return &Report{
		Source:     source,
		OutputPath: outPath,
		Files:      explored.Len(),
		Parsed:     parsed,
		Warnings:   res.Warnings,
	}, nil
}

func (a *Archivist) newCache() (*parse.Cache, func(), error) {
	if !a.cfg.LazyLoad {
		return parse.NewCache(nil), func() {}, nil
	}
	if err := os.MkdirAll(a.cfg.ExtractionDirectory, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create extraction directory: %w", err)
	}
	storePath := filepath.Join(a.cfg.ExtractionDirectory, scratchStore)
	store, err := parse.OpenStore(storePath)
	if err != nil {
		return nil, nil, err
	}
	closeCache := func() {
		if err := store.Close(); err != nil {
			a.log.Warn("closing result store", "error", err)
		}
		if err := os.Remove(storePath); err != nil {
			a.log.Warn("removing result store", "error", err)
		}
	}
	return parse.NewCache(store), closeCache, nil
}

// extract runs every matching parser over every explored file. A parser
// failure skips that file for that parser and is logged, nothing more.
func (a *Archivist) extract(ctx context.Context, explored *explore.Explored, cache *parse.Cache) (int, error) {
	parsed := 0
	for _, entry := range explored.Entries() {
		if err := ctx.Err(); err != nil {
			return parsed, err
		}
		rel := strings.Join(entry.Parts, "/")
		matching, err := a.parsers.Match(rel)
		if err != nil {
			return parsed, err
		}
		for _, p := range matching {
			value, err := a.parseOne(p, explored, entry, rel)
			if err != nil {
				a.log.Warn("parse failed", "parser", p.Name(), "file", rel, "error", err)
				continue
			}
			if err := cache.Add(p.Name(), entry.ID, entry.Parts, value); err != nil {
				return parsed, err
			}
			parsed++
		}
	}
	return parsed, nil
}

func (a *Archivist) parseOne(p parse.Parser, explored *explore.Explored, entry explore.Entry, rel string) (any, error) {
	r, err := explored.Open(entry)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return p.Parse(r, rel)
}

func (a *Archivist) mergeResults(explored *explore.Explored, cache *parse.Cache) *merge.Result {
	if a.tree == nil {
		return Mirror(cache)
	}
	eng := &merge.Engine{
		Matches:        newPathMatcher(explored),
		Results:        newCacheResolver(explored, cache, newRegexCache()),
		AddDescription: a.cfg.AddDescription,
		AddType:        a.cfg.AddType,
	}
	return eng.Merge(a.tree)
}

func (a *Archivist) write(res *merge.Result) (string, error) {
	outPath := filepath.Join(a.cfg.OutputDirectory, a.cfg.OutputFile)
	if !a.cfg.Overwrite {
		if _, err := os.Stat(outPath); err == nil {
			return "", fmt.Errorf("%w: %s", ErrOutputExists, outPath)
		}
	}
	if err := os.MkdirAll(a.cfg.OutputDirectory, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create output %s: %w", outPath, err)
	}
	if err := a.exports.Export(f, a.cfg.OutputFormat, res); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close output %s: %w", outPath, err)
	}
	return outPath, nil
}
