package align

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAlignment is returned when no alignment within the error bound exists
	ErrNoAlignment = errors.New("no alignment found")
)

// maxCells bounds the size of the dynamic programming table
const maxCells = 1 << 24

// Segment is one piece of the skeleton a command is aligned against: either
// literal text or a placeholder whose runes are priced by Accepts
type Segment struct {
	Literal string
	Accepts func(r rune) bool // nil for literal segments
}

// IsPlaceholder returns true for placeholder segments
func (s Segment) IsPlaceholder() bool {
	return s.Accepts != nil
}

// Options configures the alignment search
type Options struct {
	// MaxErrors is the largest edit cost accepted; 0 means unbounded
	MaxErrors int
}

// Span is a half-open range of rune offsets in the command
type Span struct {
	Start int
	End   int
}

// Alignment is the best error-tolerant match of a command against a skeleton
type Alignment struct {
	// Spans holds the command runes captured by each placeholder, in segment order
	Spans []Span
	// Cost is the number of edits in the alignment
	Cost int
}

// unit is a single literal rune or a whole placeholder
type unit struct {
	literal rune
	accepts func(rune) bool
	slot    int // placeholder index, -1 for literal runes
}

// backtrace moves
const (
	moveMatch   byte = 'm' // literal rune consumed a command rune
	moveDelete  byte = 'd' // unit skipped
	moveInsert  byte = 'i' // command rune skipped
	moveCapture byte = 'p' // placeholder ended at this command offset
	moveStart   byte = 's' // placeholder started with this rune
	moveExtend  byte = 'c' // placeholder continued with this rune
)

// Align finds the cheapest alignment of command against segments.
//
// Literal runes match for free and cost one edit to substitute, delete or
// insert. A placeholder absorbs one or more runes, each free when Accepts
// allows it and one edit otherwise, or is deleted for one edit. When two
// alignments cost the same, runes are absorbed into placeholders rather than
// reported as insertions.
func Align(segments []Segment, command string, opts Options) (*Alignment, error) {
	units, slots := flatten(segments)
	cmd := []rune(command)
	n := len(cmd)

	if (len(units)+1)*(n+1) > maxCells {
		return nil, fmt.Errorf("%w: command too long to align (%d runes)", ErrNoAlignment, n)
	}

	cost := make([][]int, len(units)+1)
	moves := make([][]byte, len(units)+1)
	inMoves := make([][]byte, len(units)+1)

	cost[0] = make([]int, n+1)
	moves[0] = make([]byte, n+1)
	for j := 1; j <= n; j++ {
		cost[0][j] = j
		moves[0][j] = moveInsert
	}

	inside := make([]int, n+1)
	for u, un := range units {
		prev := cost[u]
		row := make([]int, n+1)
		mv := make([]byte, n+1)

		if un.slot < 0 {
			row[0], mv[0] = prev[0]+1, moveDelete
			for j := 1; j <= n; j++ {
				sub := 1
				if cmd[j-1] == un.literal {
					sub = 0
				}
				row[j], mv[j] = prev[j-1]+sub, moveMatch
				if c := prev[j] + 1; c < row[j] {
					row[j], mv[j] = c, moveDelete
				}
				if c := row[j-1] + 1; c < row[j] {
					row[j], mv[j] = c, moveInsert
				}
			}
		} else {
			in := make([]byte, n+1)
			row[0], mv[0] = prev[0]+1, moveDelete
			for j := 1; j <= n; j++ {
				price := 1
				if un.accepts(cmd[j-1]) {
					price = 0
				}
				inside[j], in[j] = prev[j-1]+price, moveStart
				if j > 1 {
					if c := inside[j-1] + price; c <= inside[j] {
						inside[j], in[j] = c, moveExtend
					}
				}

				row[j], mv[j] = inside[j], moveCapture
				if c := row[j-1] + 1; c < row[j] {
					row[j], mv[j] = c, moveInsert
				}
				if c := prev[j] + 1; c < row[j] {
					row[j], mv[j] = c, moveDelete
				}
			}
			inMoves[u+1] = in
		}

		cost[u+1] = row
		moves[u+1] = mv
	}

	total := cost[len(units)][n]
	if opts.MaxErrors > 0 && total > opts.MaxErrors {
		return nil, fmt.Errorf("%w: best alignment needs %d edits, limit is %d", ErrNoAlignment, total, opts.MaxErrors)
	}

	spans := make([]Span, slots)
	u, j := len(units), n
	for u > 0 || j > 0 {
		if u == 0 {
			j--
			continue
		}
		un := units[u-1]
		switch moves[u][j] {
		case moveMatch:
			u--
			j--
		case moveDelete:
			if un.slot >= 0 {
				spans[un.slot] = Span{Start: j, End: j}
			}
			u--
		case moveInsert:
			j--
		case moveCapture:
			end := j
			for inMoves[u][j] == moveExtend {
				j--
			}
			j--
			spans[un.slot] = Span{Start: j, End: end}
			u--
		default:
			return nil, fmt.Errorf("%w: corrupt backtrace at unit %d offset %d", ErrNoAlignment, u, j)
		}
	}

	return &Alignment{Spans: spans, Cost: total}, nil
}

// flatten expands literal segments into runes and counts placeholders
func flatten(segments []Segment) ([]unit, int) {
	var units []unit
	slots := 0
	for _, seg := range segments {
		if seg.IsPlaceholder() {
			units = append(units, unit{accepts: seg.Accepts, slot: slots})
			slots++
			continue
		}
		for _, r := range seg.Literal {
			units = append(units, unit{literal: r, slot: -1})
		}
	}
	return units, slots
}
