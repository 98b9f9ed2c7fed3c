package jobspec

import (
	"strings"

	"github.com/dshills/jobfeat/pkg/types"
)

// segment is a piece of specification text: literal text or a placeholder
type segment struct {
	literal string

	// Placeholder fields; raw is empty for literal segments
	raw  string // the placeholder as written, braces included
	name string
	kind string
}

func (s segment) isPlaceholder() bool {
	return s.raw != ""
}

// tokenKind returns the parsed kind of a placeholder validated by compileSegments
func (s segment) tokenKind() types.TokenKind {
	return types.TokenKind(s.kind)
}

// scanSegments splits specification text into literal and placeholder
// segments in a single left to right pass.
//
// A placeholder runs from '{' to the nearest following '}' and has the body
// "name:kind" or "kind". A '{' that is never closed, or that encloses
// nothing, is literal text.
func scanSegments(source string) []segment {
	var segs []segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(source); {
		if source[i] != '{' {
			lit.WriteByte(source[i])
			i++
			continue
		}

		end := strings.IndexByte(source[i+1:], '}')
		if end <= 0 {
			lit.WriteByte(source[i])
			i++
			continue
		}

		body := source[i+1 : i+1+end]
		seg := segment{raw: source[i : i+end+2], kind: body}
		if colon := strings.IndexByte(body, ':'); colon > 0 {
			seg.name = body[:colon]
			seg.kind = body[colon+1:]
		}

		flush()
		segs = append(segs, seg)
		i += end + 2
	}
	flush()

	return segs
}
