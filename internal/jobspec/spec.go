package jobspec

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/jobfeat/pkg/types"
)

// tokenName is the accepted form of a placeholder name
var tokenName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Token is a named placeholder of a compiled specification
type Token struct {
	Name string
	Kind types.TokenKind
}

// Spec is a compiled job specification. It is immutable once built and safe
// for concurrent use.
type Spec struct {
	source   string
	tokens   []Token
	index    map[string]int
	parsers  map[string][]types.Parser
	pattern  *regexp.Regexp
	segments []segment
}

// compileOptions tunes a single compilation
type compileOptions struct {
	// namedIgnore captures every ignore placeholder, naming anonymous ones
	// ignore_0, ignore_1, ...
	namedIgnore bool

	// skipParsers leaves file tokens without parsers
	skipParsers bool
}

// Compile builds a Spec from specification text such as
//
//	monomer -T {threads:numeric} -C {complexity:category}
//
// assignments maps each file token to a comma separated list of parser names
// looked up in available.
func Compile(source string, assignments map[string]string, available types.Registry) (*Spec, error) {
	return compileSegments(source, scanSegments(source), assignments, available, compileOptions{})
}

// compileSegments assembles the anchored pattern and token table
func compileSegments(source string, segs []segment, assignments map[string]string, available types.Registry, opts compileOptions) (*Spec, error) {
	spec := newSpec()
	spec.source = source
	segs = append([]segment(nil), segs...)

	used := make(map[string]bool)
	for _, seg := range segs {
		if seg.isPlaceholder() && seg.name != "" {
			used[seg.name] = true
		}
	}

	seen := make(map[string]bool)
	ignoreIndex := 0
	var pattern strings.Builder
	pattern.WriteByte('^')

	for i, seg := range segs {
		if !seg.isPlaceholder() {
			pattern.WriteString(regexp.QuoteMeta(seg.literal))
			continue
		}

		kind, err := types.ParseTokenKind(seg.kind)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", seg.raw, err)
		}

		if seg.name == "" && kind != types.KindIgnore {
			return nil, fmt.Errorf("%w: %s", types.ErrUnnamedToken, seg.raw)
		}
		if seg.name != "" {
			if !tokenName.MatchString(seg.name) {
				return nil, fmt.Errorf("%w: %q in %s", types.ErrInvalidTokenName, seg.name, seg.raw)
			}
			if seen[seg.name] {
				return nil, fmt.Errorf("%w: %q", types.ErrDuplicateToken, seg.name)
			}
			seen[seg.name] = true
		}

		if kind == types.KindIgnore {
			if !opts.namedIgnore {
				pattern.WriteString("(?:" + kind.Fragment() + ")")
				continue
			}
			if seg.name == "" {
				for used[fmt.Sprintf("ignore_%d", ignoreIndex)] {
					ignoreIndex++
				}
				seg.name = fmt.Sprintf("ignore_%d", ignoreIndex)
				ignoreIndex++
				segs[i] = seg
			}
			pattern.WriteString("(?P<" + seg.name + ">" + kind.Fragment() + ")")
			continue
		}

		pattern.WriteString("(?P<" + seg.name + ">" + kind.Fragment() + ")")
		if err := spec.addToken(seg.name, kind, assignments, available, opts.skipParsers); err != nil {
			return nil, err
		}
	}
	pattern.WriteByte('$')

	if !opts.skipParsers {
		if err := spec.checkAssignments(assignments); err != nil {
			return nil, err
		}
	}

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern for %q: %w", source, err)
	}
	spec.pattern = re
	spec.segments = segs

	return spec, nil
}

// FromVariables builds a Spec without source text or pattern from declared
// variables. Such a spec only matches variable maps.
func FromVariables(variables []types.Variable, assignments map[string]string, available types.Registry) (*Spec, error) {
	spec := newSpec()

	for _, v := range variables {
		if v.Name == "" {
			return nil, fmt.Errorf("%w: variable of kind %q", types.ErrUnnamedToken, v.Kind)
		}
		kind, err := types.ParseTokenKind(v.Kind)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		if _, ok := spec.index[v.Name]; ok {
			return nil, fmt.Errorf("%w: %q", types.ErrDuplicateToken, v.Name)
		}
		if err := spec.addToken(v.Name, kind, assignments, available, false); err != nil {
			return nil, err
		}
	}

	if err := spec.checkAssignments(assignments); err != nil {
		return nil, err
	}

	return spec, nil
}

// FromVariableMap is FromVariables over a name to kind map, declared in name order
func FromVariableMap(variables map[string]string, assignments map[string]string, available types.Registry) (*Spec, error) {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make([]types.Variable, len(names))
	for i, name := range names {
		vars[i] = types.Variable{Name: name, Kind: variables[name]}
	}
	return FromVariables(vars, assignments, available)
}

func newSpec() *Spec {
	return &Spec{
		index:   make(map[string]int),
		parsers: make(map[string][]types.Parser),
	}
}

// addToken registers a token and resolves its parsers
func (s *Spec) addToken(name string, kind types.TokenKind, assignments map[string]string, available types.Registry, skipParsers bool) error {
	s.index[name] = len(s.tokens)
	s.tokens = append(s.tokens, Token{Name: name, Kind: kind})

	if !kind.IsFile() || skipParsers {
		return nil
	}

	parsers, err := available.Resolve(name, assignments)
	if err != nil {
		return err
	}
	s.parsers[name] = parsers
	return nil
}

// checkAssignments rejects parser assignments for tokens that are not files
func (s *Spec) checkAssignments(assignments map[string]string) error {
	names := make([]string, 0, len(assignments))
	for name := range assignments {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := s.parsers[name]; !ok {
			return fmt.Errorf("%w: %q", types.ErrOrphanedAssignment, name)
		}
	}
	return nil
}

// Source returns the job spec text, empty for variable map specs
func (s *Spec) Source() string {
	return s.source
}

// Tokens returns the named tokens in declaration order
func (s *Spec) Tokens() []Token {
	tokens := make([]Token, len(s.tokens))
	copy(tokens, s.tokens)
	return tokens
}

// Kind returns the kind of a token
func (s *Spec) Kind(name string) (types.TokenKind, bool) {
	i, ok := s.index[name]
	if !ok {
		return "", false
	}
	return s.tokens[i].Kind, true
}

// Parsers returns the parsers of a file token in assignment order
func (s *Spec) Parsers(name string) []types.Parser {
	parsers := make([]types.Parser, len(s.parsers[name]))
	copy(parsers, s.parsers[name])
	return parsers
}

// Pattern returns the anchored pattern, nil for variable map specs
func (s *Spec) Pattern() *regexp.Regexp {
	return s.pattern
}

// CheckVariables reports whether declared variables agree with the job spec's
// tokens, by name and by kind
func (s *Spec) CheckVariables(variables map[string]string) error {
	keys := make(map[string]any, len(variables))
	for name := range variables {
		keys[name] = nil
	}
	if err := s.checkKeys(keys); err != nil {
		return err
	}

	for _, tok := range s.tokens {
		if variables[tok.Name] != string(tok.Kind) {
			return fmt.Errorf("%w: variable %q is %s in the job spec, not %s",
				types.ErrVariableMismatch, tok.Name, tok.Kind, variables[tok.Name])
		}
	}
	return nil
}
