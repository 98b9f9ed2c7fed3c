package fileparser

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dshills/jobfeat/pkg/types"
)

// awkBinary is the interpreter used by awk based parsers
var awkBinary = "awk"

// AwkCommand runs an inline awk program over the file.
//
// Numerical parsers return every whitespace separated field of the output as
// a List of numbers; categorical parsers return the trimmed output.
type AwkCommand struct {
	name   string
	kind   types.ValueKind
	script string
}

// NewAwkCommand creates a parser running script
func NewAwkCommand(name string, kind types.ValueKind, script string) *AwkCommand {
	return &AwkCommand{name: name, kind: kind, script: script}
}

func (p *AwkCommand) Name() string               { return p.name }
func (p *AwkCommand) ValueKind() types.ValueKind { return p.kind }

// Extract implements types.Parser
func (p *AwkCommand) Extract(path string, compressed bool) (types.Value, error) {
	return runAwk(p.kind, []string{p.script}, path, compressed)
}

// AwkFile runs an awk program stored in a file, with the same output rules as
// AwkCommand
type AwkFile struct {
	name       string
	kind       types.ValueKind
	scriptFile string
}

// NewAwkFile creates a parser running the program in scriptFile
func NewAwkFile(name string, kind types.ValueKind, scriptFile string) *AwkFile {
	return &AwkFile{name: name, kind: kind, scriptFile: scriptFile}
}

func (p *AwkFile) Name() string               { return p.name }
func (p *AwkFile) ValueKind() types.ValueKind { return p.kind }

// Extract implements types.Parser
func (p *AwkFile) Extract(path string, compressed bool) (types.Value, error) {
	return runAwk(p.kind, []string{"-f", p.scriptFile}, path, compressed)
}

// runAwk runs awk with args over path. Compressed input is piped through
// stdin after decompression.
func runAwk(kind types.ValueKind, args []string, path string, compressed bool) (types.Value, error) {
	var stdin io.ReadCloser
	if compressed {
		r, err := open(path, true)
		if err != nil {
			return nil, err
		}
		defer func() { _ = r.Close() }()
		stdin = r
		args = append(args, "-")
	} else {
		args = append(args, path)
	}

	cmd := exec.Command(awkBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("awk failed on %s: %w: %s", path, err, msg)
		}
		return nil, fmt.Errorf("awk failed on %s: %w", path, err)
	}

	return convertOutput(kind, stdout.String())
}

// convertOutput turns program output into a feature value
func convertOutput(kind types.ValueKind, out string) (types.Value, error) {
	if kind == types.Category {
		return types.Text(strings.TrimSpace(out)), nil
	}

	fields := strings.Fields(out)
	values := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("output %q is not numeric: %w", field, err)
		}
		values = append(values, v)
	}
	return types.Numbers(values...), nil
}
