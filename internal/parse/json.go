package parse

import (
	"fmt"
	"io"

	"github.com/agentic-research/tessera/api"
)

// ParseJSON decodes a JSON document with key order preserved.
func ParseJSON(r io.Reader, path string) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	v, err := api.DecodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("parse json %s: %w", path, err)
	}
	return v, nil
}

// JSON returns the built-in JSON parser.
func JSON() Parser {
	return New("json", []string{"*.json"}, ParseJSON)
}
