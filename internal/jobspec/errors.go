package jobspec

import (
	"fmt"
	"strings"

	"github.com/dshills/jobfeat/pkg/types"
)

// MismatchError is returned when a command does not match the anchored
// pattern. Diagnostic holds the three line explanation.
type MismatchError struct {
	Command    string
	Diagnostic string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v:\n%s", types.ErrMismatch, e.Diagnostic)
}

func (e *MismatchError) Unwrap() error {
	return types.ErrMismatch
}

// ExtractionError is returned when matched text cannot be turned into a
// feature value
type ExtractionError struct {
	Token  string
	Parser string // empty unless a file parser failed
	Path   string // empty unless a file was read
	Text   string // matched text for numeric tokens
	Err    error

	// Diagnostic is set when the failing value came from a command
	Diagnostic string
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "token %q", e.Token)
	if e.Parser != "" {
		fmt.Fprintf(&b, " parser %q", e.Parser)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " file %q", e.Path)
	}
	if e.Text != "" {
		fmt.Fprintf(&b, " text %q", e.Text)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Diagnostic != "" {
		b.WriteString("\n")
		b.WriteString(e.Diagnostic)
	}
	return b.String()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// VariablesError is returned when a variable map does not carry exactly the
// spec's token names
type VariablesError struct {
	Missing []string // tokens without a value
	Extra   []string // values without a token
}

func (e *VariablesError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "extra "+strings.Join(e.Extra, ", "))
	}
	return fmt.Sprintf("%v: %s", types.ErrVariableMismatch, strings.Join(parts, "; "))
}

func (e *VariablesError) Unwrap() error {
	return types.ErrVariableMismatch
}
