package jobspec

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/dshills/jobfeat/pkg/types"
)

// MatchCommand extracts the features of a command.
//
// A command that does not match the whole pattern yields a *MismatchError
// carrying the rendered diagnostic, or an error wrapping
// types.ErrCannotAlign when no explanation can be built.
func (s *Spec) MatchCommand(command string) (*types.FeatureRecord, error) {
	if s.pattern == nil {
		return nil, types.ErrNoPattern
	}

	m := s.pattern.FindStringSubmatch(command)
	if m == nil {
		diagnostic, err := s.Explain(command)
		if err != nil {
			return nil, err
		}
		return nil, &MismatchError{Command: command, Diagnostic: diagnostic}
	}

	values := make(map[string]any, len(s.tokens))
	for i, name := range s.pattern.SubexpNames() {
		if name != "" {
			values[name] = m[i]
		}
	}

	diagnose := func() string {
		diagnostic, err := s.Explain(command)
		if err != nil {
			return ""
		}
		return diagnostic
	}
	return s.extract(values, diagnose)
}

// MatchVariables extracts features from typed values keyed by token name.
// The key set must equal the token names exactly.
func (s *Spec) MatchVariables(values map[string]any) (*types.FeatureRecord, error) {
	if err := s.checkKeys(values); err != nil {
		return nil, err
	}
	return s.extract(values, nil)
}

// checkKeys compares a key set with the token names in both directions
func (s *Spec) checkKeys(values map[string]any) error {
	var missing, extra []string
	for _, tok := range s.tokens {
		if _, ok := values[tok.Name]; !ok {
			missing = append(missing, tok.Name)
		}
	}
	for name := range values {
		if _, ok := s.index[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(extra)
	return &VariablesError{Missing: missing, Extra: extra}
}

// extract converts values token by token. diagnose, when set, renders the
// diagnostic attached to numeric parse failures.
func (s *Spec) extract(values map[string]any, diagnose func() string) (*types.FeatureRecord, error) {
	record := types.NewFeatureRecord()

	for _, tok := range s.tokens {
		raw := values[tok.Name]

		switch tok.Kind {
		case types.KindNumeric:
			n, err := cast.ToFloat64E(raw)
			if err == nil && (math.IsNaN(n) || math.IsInf(n, 0)) {
				err = fmt.Errorf("%v is not finite", n)
			}
			if err != nil {
				extractErr := &ExtractionError{
					Token: tok.Name,
					Text:  cast.ToString(raw),
					Err:   fmt.Errorf("%w: %w", types.ErrNumericParse, err),
				}
				if diagnose != nil {
					extractErr.Diagnostic = diagnose()
				}
				return nil, extractErr
			}
			record.Numerics[tok.Name] = types.Number(n)

		case types.KindCategory:
			text, err := cast.ToStringE(raw)
			if err != nil {
				return nil, &ExtractionError{Token: tok.Name, Err: err}
			}
			record.Categories[tok.Name] = types.Text(text)

		case types.KindFile, types.KindGzipFile, types.KindFileList:
			path, err := cast.ToStringE(raw)
			if err != nil {
				return nil, &ExtractionError{Token: tok.Name, Err: err}
			}
			if err := s.extractFile(record, tok, path); err != nil {
				return nil, err
			}

		case types.KindIgnore:
			// Consumes text, never produces a feature
		}
	}

	return record, nil
}

// extractFile runs every parser of a file token over path
func (s *Spec) extractFile(record *types.FeatureRecord, tok Token, path string) error {
	var paths []string
	if tok.Kind == types.KindFileList {
		var err error
		paths, err = readFileList(path)
		if err != nil {
			return &ExtractionError{Token: tok.Name, Path: path, Err: fmt.Errorf("%w: %w", types.ErrExtraction, err)}
		}
	}

	for _, p := range s.parsers[tok.Name] {
		var value types.Value
		if tok.Kind == types.KindFileList {
			list := make(types.List, 0, len(paths))
			for _, item := range paths {
				v, err := p.Extract(item, false)
				if err != nil {
					return &ExtractionError{Token: tok.Name, Parser: p.Name(), Path: item, Err: fmt.Errorf("%w: %w", types.ErrExtraction, err)}
				}
				list = append(list, v)
			}
			value = list
		} else {
			v, err := p.Extract(path, tok.Kind.Compressed())
			if err != nil {
				return &ExtractionError{Token: tok.Name, Parser: p.Name(), Path: path, Err: fmt.Errorf("%w: %w", types.ErrExtraction, err)}
			}
			value = v
		}

		record.Set(p.ValueKind(), tok.Name+"_"+p.Name(), value)
	}
	return nil
}

// readFileList reads one path per line, skipping blank lines
func readFileList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			paths = append(paths, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file list: %w", err)
	}
	return paths, nil
}
