package types

import "errors"

// Configuration errors, raised while compiling a job specification
var (
	ErrUnknownKind        = errors.New("unknown token kind")
	ErrUnknownValueKind   = errors.New("unknown value kind")
	ErrUnnamedToken       = errors.New("token has no name")
	ErrInvalidTokenName   = errors.New("invalid token name")
	ErrDuplicateToken     = errors.New("duplicate token name")
	ErrNoParserAssigned   = errors.New("no file parser assigned")
	ErrParserUnavailable  = errors.New("file parser not available")
	ErrOrphanedAssignment = errors.New("file parser assigned to unknown token")
)

// Match errors, raised while matching a command or a variable map
var (
	ErrNoPattern        = errors.New("no pattern to match against")
	ErrMismatch         = errors.New("job spec does not match command")
	ErrCannotAlign      = errors.New("unexplainable mismatch: no alignment possible")
	ErrVariableMismatch = errors.New("variables do not match specification")
)

// Extraction errors, raised while turning matched text into features
var (
	ErrNumericParse = errors.New("cannot parse numeric value")
	ErrExtraction   = errors.New("file parser failed")
)
