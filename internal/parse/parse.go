// Package parse turns explored files into structured values. Parsers are
// small named units registered against path patterns; the extraction
// phase runs every parser whose pattern matches a file and caches the
// result for the merge phase.
package parse

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
)

// ErrUnknownParser reports a lookup for a parser name that was never
// registered.
var ErrUnknownParser = errors.New("parse: unknown parser")

// Parser extracts a structured value from one kind of file.
type Parser interface {
	// Name identifies the parser; results are cached under it.
	Name() string
	// Patterns returns the path patterns this parser claims.
	Patterns() []string
	// Parse reads one file. The path is relative to the exploration
	// root and only provided for diagnostics.
	Parse(r io.Reader, path string) (any, error)
}

// ParseFunc adapts a plain function to the parsing part of Parser.
type ParseFunc func(r io.Reader, path string) (any, error)

type fileParser struct {
	name     string
	patterns []string
	fn       ParseFunc
}

// New builds a Parser from a name, a pattern list and a parse function.
func New(name string, patterns []string, fn ParseFunc) Parser {
	return &fileParser{name: name, patterns: patterns, fn: fn}
}

func (p *fileParser) Name() string       { return p.name }
func (p *fileParser) Patterns() []string { return p.patterns }

func (p *fileParser) Parse(r io.Reader, path string) (any, error) {
	return p.fn(r, path)
}

// MatchPath reports whether the trailing segments of name satisfy the
// pattern. Pattern segments use shell globbing and match from the right,
// so "*.json" matches any JSON file anywhere and "meta/*.yaml" any YAML
// file directly inside a meta directory.
func MatchPath(pattern, name string) (bool, error) {
	ps := strings.Split(pattern, "/")
	ns := strings.Split(name, "/")
	if len(ps) > len(ns) {
		return false, nil
	}
	for i := 1; i <= len(ps); i++ {
		ok, err := path.Match(ps[len(ps)-i], ns[len(ns)-i])
		if err != nil {
			return false, fmt.Errorf("match pattern %q: %w", pattern, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Registry holds the parsers available to one archivist run.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Registering a name twice replaces the earlier
// parser but keeps its position.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parsers[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.parsers[p.Name()] = p
}

// Get returns the parser registered under name.
func (r *Registry) Get(name string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownParser, name)
	}
	return p, nil
}

// Names returns the registered parser names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Match returns every parser claiming the given relative path, in
// registration order.
func (r *Registry) Match(name string) ([]Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Parser
	for _, pname := range r.order {
		p := r.parsers[pname]
		for _, pattern := range p.Patterns() {
			ok, err := MatchPath(pattern, name)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}
