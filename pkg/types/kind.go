package types

import "fmt"

// TokenKind is the type of a placeholder in a job specification
type TokenKind string

const (
	KindNumeric  TokenKind = "numeric"
	KindCategory TokenKind = "category"
	KindFile     TokenKind = "file"
	KindGzipFile TokenKind = "gzip_file"
	KindFileList TokenKind = "file_list"
	KindIgnore   TokenKind = "ignore"
)

// Pattern fragments for each kind. Everything but numeric matches lazily so
// the literal text that follows a placeholder decides where it ends.
const (
	numericFragment = `[-0-9.]+`
	anyFragment     = `.+?`
)

// ParseTokenKind converts a kind string from a specification into a TokenKind
func ParseTokenKind(s string) (TokenKind, error) {
	kind := TokenKind(s)
	if err := kind.Validate(); err != nil {
		return "", err
	}
	return kind, nil
}

// Validate checks if the token kind is one of the recognized kinds
func (k TokenKind) Validate() error {
	switch k {
	case KindNumeric, KindCategory, KindFile, KindGzipFile, KindFileList, KindIgnore:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
}

// Fragment returns the regular expression matched by a placeholder of this kind
func (k TokenKind) Fragment() string {
	if k == KindNumeric {
		return numericFragment
	}
	return anyFragment
}

// IsFile returns true for kinds whose value is derived by file parsers
func (k TokenKind) IsFile() bool {
	return k == KindFile || k == KindGzipFile || k == KindFileList
}

// Compressed reports whether parsers should decompress the file first
func (k TokenKind) Compressed() bool {
	return k == KindGzipFile
}

// AcceptsRune reports whether r belongs to the character class of the kind.
// Used by the aligner to price a placeholder absorbing a rune.
func (k TokenKind) AcceptsRune(r rune) bool {
	if k == KindNumeric {
		return r == '-' || r == '.' || (r >= '0' && r <= '9')
	}
	return r != '\n'
}

func (k TokenKind) String() string {
	return string(k)
}

// ValueKind is the type of value a file parser produces
type ValueKind string

const (
	Numeric  ValueKind = "numerical"
	Category ValueKind = "categorical"
)

// ParseValueKind accepts the configuration spellings of a value kind
func ParseValueKind(s string) (ValueKind, error) {
	switch s {
	case "numerical", "numeric", "NUMERICAL", "NUMERIC":
		return Numeric, nil
	case "categorical", "category", "CATEGORICAL", "CATEGORY":
		return Category, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownValueKind, s)
	}
}

func (v ValueKind) String() string {
	return string(v)
}

// Variable declares one named input of a specification built from a
// variable map. Kind is kept as written so errors can name it.
type Variable struct {
	Name string
	Kind string
}
