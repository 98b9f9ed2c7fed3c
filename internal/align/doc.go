// Package align computes error-tolerant alignments of a command string against
// a skeleton of literal text and typed placeholders.
//
// The alignment is an edit-distance search (Needleman-Wunsch style) in which a
// placeholder behaves like a character class repeated one or more times:
//
//	segments := []align.Segment{
//	    {Literal: "monomer -T "},
//	    {Accepts: isNumeric},
//	}
//	result, err := align.Align(segments, "monomer -T 2A", align.Options{})
//	// result.Cost == 1, result.Spans[0] covers "2A"
//
// Alignments explain mismatches; they never decide whether a command matches.
package align
