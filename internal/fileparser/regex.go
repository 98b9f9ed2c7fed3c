package fileparser

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"

	"github.com/dshills/jobfeat/pkg/types"
)

// Regex extracts the first capture group of the first matching line. A
// pattern without groups yields the whole match.
type Regex struct {
	name    string
	kind    types.ValueKind
	pattern *regexp.Regexp
}

// NewRegex compiles pattern into a parser
func NewRegex(name string, kind types.ValueKind, pattern string) (*Regex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex for parser %q: %w", name, err)
	}
	return &Regex{name: name, kind: kind, pattern: re}, nil
}

func (p *Regex) Name() string               { return p.name }
func (p *Regex) ValueKind() types.ValueKind { return p.kind }

// Extract implements types.Parser
func (p *Regex) Extract(path string, compressed bool) (types.Value, error) {
	r, err := open(path, compressed)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), readBufferSize)
	for scanner.Scan() {
		m := p.pattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		text := m[0]
		if len(m) > 1 {
			text = m[1]
		}
		if p.kind == types.Category {
			return types.Text(text), nil
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("match %q in %s is not numeric: %w", text, path, err)
		}
		return types.Number(v), nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return nil, fmt.Errorf("unable to parse %q from %s", p.pattern.String(), path)
}
