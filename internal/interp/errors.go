package interp

import (
	"fmt"
	"strings"
)

// ErrorKind classifies structural schema errors.
type ErrorKind int

const (
	// UnsupportedType marks a schema value that is neither object nor
	// string where a branch or leaf was expected.
	UnsupportedType ErrorKind = iota
	// MultipleReferences marks a dictionary with more than one result
	// source: a second reference, or a reference next to a calculation.
	MultipleReferences
	// DirectiveAfterReference marks a directive declared after the
	// reference key it belongs to.
	DirectiveAfterReference
	// UnresolvedReference marks a reference that does not resolve inside
	// the definitions section.
	UnresolvedReference
	// InvalidDefinitionName marks a definition name containing the path
	// separator.
	InvalidDefinitionName
	// UnknownDirective marks an unrecognized "!"-prefixed key.
	UnknownDirective
	// MisplacedVarName marks a !varname declared outside a pattern-keyed
	// container.
	MisplacedVarName
	// MisplacedPattern marks a pattern-keyed container nested inside
	// another pattern subtree.
	MisplacedPattern
	// BadDirective marks a malformed directive payload or an invalid
	// pattern expression.
	BadDirective
)

func (k ErrorKind) String() string {
	switch k {
	case UnsupportedType:
		return "unsupported type"
	case MultipleReferences:
		return "multiple references"
	case DirectiveAfterReference:
		return "directive after reference"
	case UnresolvedReference:
		return "unresolved reference"
	case InvalidDefinitionName:
		return "invalid definition name"
	case UnknownDirective:
		return "unknown directive"
	case MisplacedVarName:
		return "misplaced varname"
	case MisplacedPattern:
		return "misplaced pattern"
	case BadDirective:
		return "bad directive"
	}
	return "unknown error"
}

// SchemaError reports a structural problem in the schema document.
// Structural errors are fatal: they mean the desired output shape cannot
// be determined, so interpretation aborts on the first one.
type SchemaError struct {
	// Path locates the offending key inside the document, slash-joined
	// from the top-level properties.
	Path   string
	Kind   ErrorKind
	Detail string
}

func (e *SchemaError) Error() string {
	path := e.Path
	if path == "" {
		path = "(root)"
	}
	return fmt.Sprintf("schema %s: %s: %s", path, e.Kind, e.Detail)
}

func schemaErr(path []string, kind ErrorKind, format string, args ...any) *SchemaError {
	return &SchemaError{
		Path:   strings.Join(path, "/"),
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
}
