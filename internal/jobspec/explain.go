package jobspec

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dshills/jobfeat/internal/align"
	"github.com/dshills/jobfeat/pkg/types"
)

// Diagnostic glyphs
const (
	glyphBar      = '│'
	glyphWarning  = '⚠'
	glyphConflict = '╳'
	glyphExcess   = '∧' // in the job spec, not the command
	glyphMissing  = '∨' // in the command, not the job spec
	glyphArrow    = "⇒"
)

// Headers prepended by ExplainExact
const (
	headerParsable   = "Able to parse"
	headerUnparsable = "Failed to parse"
)

// Explain renders why a command does not match its job spec, as three lines of
// equal width: the job spec with each placeholder shown as
// {name⇒value}, an indicator line, and the command.
//
// The command is aligned with an edit-distance search, so a value is shown
// for every placeholder even when the command has typos. A numeric value
// that does not parse is flagged with ⚠.
func (s *Spec) Explain(command string) (string, error) {
	return s.explain(command, false)
}

// ExplainExact is Explain that first tries the exact pattern. The result is
// prefixed with "Able to parse" or "Failed to parse".
func (s *Spec) ExplainExact(command string) (string, error) {
	return s.explain(command, true)
}

func (s *Spec) explain(command string, tryExact bool) (string, error) {
	if s.pattern == nil {
		return "", types.ErrNoPattern
	}

	named, err := compileSegments(s.source, scanSegments(s.source), nil, nil,
		compileOptions{namedIgnore: true, skipParsers: true})
	if err != nil {
		return "", fmt.Errorf("failed to recompile specification: %w", err)
	}

	var values []string
	parsable := false
	if tryExact {
		if m := named.pattern.FindStringSubmatch(command); m != nil {
			values = named.exactValues(m)
			parsable = true
		}
	}
	if !parsable {
		values, err = named.alignedValues(command)
		if err != nil {
			return "", err
		}
	}

	out := render(named.segments, values, command, s.index, s.tokens)
	if tryExact {
		header := headerUnparsable
		if parsable {
			header = headerParsable
		}
		out = header + "\n" + out
	}
	return out, nil
}

// exactValues returns the captured text of each placeholder in order
func (s *Spec) exactValues(m []string) []string {
	byName := make(map[string]string)
	for i, name := range s.pattern.SubexpNames() {
		if name != "" {
			byName[name] = m[i]
		}
	}

	var values []string
	for _, seg := range s.segments {
		if seg.isPlaceholder() {
			values = append(values, byName[seg.name])
		}
	}
	return values
}

// alignedValues returns the text each placeholder absorbs in the best
// error-tolerant alignment of the command
func (s *Spec) alignedValues(command string) ([]string, error) {
	skeleton := make([]align.Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		if seg.isPlaceholder() {
			skeleton = append(skeleton, align.Segment{Accepts: seg.tokenKind().AcceptsRune})
		} else {
			skeleton = append(skeleton, align.Segment{Literal: seg.literal})
		}
	}

	result, err := align.Align(skeleton, command, align.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCannotAlign, err)
	}

	runes := []rune(command)
	values := make([]string, len(result.Spans))
	for i, span := range result.Spans {
		values[i] = string(runes[span.Start:span.End])
	}
	return values, nil
}

// placement locates one placeholder inside the job spec with matches
type placement struct {
	start, end int // rune offsets of the value
	value      []rune
	display    []rune
	numeric    bool
}

// render lays out the job spec, indicator and command lines from the
// opcodes between the job spec with matches and the command
func render(segs []segment, values []string, command string, index map[string]int, tokens []Token) string {
	var withMatches []rune
	var places []placement

	slot := 0
	for _, seg := range segs {
		if !seg.isPlaceholder() {
			withMatches = append(withMatches, visible(seg.literal)...)
			continue
		}

		value := visible(values[slot])
		slot++

		numeric := false
		if i, ok := index[seg.name]; ok {
			numeric = tokens[i].Kind == types.KindNumeric
		}
		places = append(places, placement{
			start:   len(withMatches),
			end:     len(withMatches) + len(value),
			value:   value,
			display: []rune("{" + seg.name + glyphArrow + string(value) + "}"),
			numeric: numeric,
		})
		withMatches = append(withMatches, value...)
	}

	cmd := visible(command)
	matcher := difflib.NewMatcherWithJunk(runeStrings(withMatches), runeStrings(cmd), false, nil)

	var specLine, indLine, cmdLine []rune
	next := 0
	for _, op := range matcher.GetOpCodes() {
		a := withMatches[op.I1:op.I2]
		b := cmd[op.J1:op.J2]

		switch op.Tag {
		case 'e':
			// Placeholders that began in an earlier run stay plain text
			for next < len(places) && places[next].start < op.I1 {
				next++
			}

			cursor := op.I1
			for next < len(places) && places[next].end <= op.I2 {
				p := places[next]
				next++

				plain := withMatches[cursor:p.start]
				specLine = append(specLine, plain...)
				indLine = append(indLine, repeat(' ', len(plain))...)
				cmdLine = append(cmdLine, plain...)

				specLine = append(specLine, p.display...)
				indLine = append(indLine, indicator(p)...)
				cmdLine = append(cmdLine, callout(p)...)
				cursor = p.end
			}

			plain := withMatches[cursor:op.I2]
			specLine = append(specLine, plain...)
			indLine = append(indLine, repeat(' ', len(plain))...)
			cmdLine = append(cmdLine, plain...)

		case 'r':
			width := max(len(a), len(b))
			specLine = append(append(specLine, a...), repeat(' ', width-len(a))...)
			cmdLine = append(append(cmdLine, b...), repeat(' ', width-len(b))...)
			indLine = append(indLine, repeat(glyphConflict, width)...)

		case 'd':
			specLine = append(specLine, a...)
			cmdLine = append(cmdLine, repeat(' ', len(a))...)
			indLine = append(indLine, repeat(glyphExcess, len(a))...)

		case 'i':
			specLine = append(specLine, repeat(' ', len(b))...)
			cmdLine = append(cmdLine, b...)
			indLine = append(indLine, repeat(glyphMissing, len(b))...)
		}
	}

	return strings.Join([]string{string(specLine), string(indLine), string(cmdLine)}, "\n")
}

// indicator brackets the display form, flagging unparsable numeric values
func indicator(p placement) []rune {
	ind := repeat(' ', len(p.display))
	ind[0] = glyphBar
	ind[len(ind)-1] = glyphBar
	if p.numeric {
		if _, err := strconv.ParseFloat(string(p.value), 64); err != nil {
			ind[len(ind)/2] = glyphWarning
		}
	}
	return ind
}

// callout surrounds the matched command text so it spans the display form:
// └──┤value├──┘
func callout(p placement) []rune {
	added := len(p.display) - len(p.value)
	left := added/2 + added%2 - 2
	right := added/2 - 2

	out := make([]rune, 0, len(p.display))
	out = append(out, '└')
	out = append(out, repeat('─', left)...)
	out = append(out, '┤')
	out = append(out, p.value...)
	out = append(out, '├')
	out = append(out, repeat('─', right)...)
	out = append(out, '┘')
	return out
}

// visible replaces control runes with one-rune stand-ins
func visible(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '\n':
			runes[i] = '␤'
		case r == '\t':
			runes[i] = '→'
		case r < 0x20:
			runes[i] = 0x2400 + r
		case r == 0x7f:
			runes[i] = '␡'
		case unicode.IsControl(r):
			runes[i] = '�'
		}
	}
	return runes
}

func repeat(r rune, n int) []rune {
	out := make([]rune, n)
	for i := range out {
		out[i] = r
	}
	return out
}

func runeStrings(runes []rune) []string {
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}
