package types

import (
	"fmt"
	"sort"
	"strings"
)

// Parser derives a feature value from a file.
//
// Implementations are registered by name in a Registry. Extract may block on
// file I/O or on an external tool; it is never retried.
type Parser interface {
	// Name suffixes the feature key: {token}_{name}
	Name() string

	// ValueKind selects the feature map the result is stored in
	ValueKind() ValueKind

	// Extract reads path, decompressing it first when compressed is set
	Extract(path string, compressed bool) (Value, error)
}

// Registry maps parser names to parsers
type Registry map[string]Parser

// Register adds a parser under its own name
func (r Registry) Register(p Parser) {
	r[p.Name()] = p
}

// Names returns the registered parser names in sorted order
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up the comma separated parser list assigned to a file token.
// assignments maps token names to lists such as "file_lines,file_size".
func (r Registry) Resolve(token string, assignments map[string]string) ([]Parser, error) {
	list, ok := assignments[token]
	if !ok || strings.TrimSpace(list) == "" {
		return nil, fmt.Errorf("%w: file %q", ErrNoParserAssigned, token)
	}

	var parsers []Parser
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		p, ok := r[name]
		if !ok {
			return nil, fmt.Errorf("%w: parser %q for file %q", ErrParserUnavailable, name, token)
		}
		parsers = append(parsers, p)
	}
	return parsers, nil
}
