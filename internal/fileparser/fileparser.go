package fileparser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/dshills/jobfeat/pkg/types"
)

// Built-in parser names
const (
	NameSize     = "file_size"
	NameLines    = "file_lines"
	NameChecksum = "file_checksum"
)

// readBufferSize is the chunk size used when scanning files
const readBufferSize = 1024 * 1024

// Builtins returns a registry holding the built-in parsers
func Builtins() types.Registry {
	registry := types.Registry{}
	registry.Register(NewSize())
	registry.Register(NewLines())
	registry.Register(NewChecksum())
	return registry
}

// open returns a reader over the file content, decompressed when compressed is set
func open(path string, compressed bool) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	if !compressed {
		return f, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read gzip header of %s: %w", path, err)
	}
	return &gzipFile{Reader: zr, file: f}, nil
}

// gzipFile closes both the decompressor and the underlying file
type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	zerr := g.Reader.Close()
	ferr := g.file.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}

// Size reports the size of a file in bytes; for compressed files the size of
// the decompressed content
type Size struct{}

// NewSize creates the file_size parser
func NewSize() *Size {
	return &Size{}
}

func (p *Size) Name() string               { return NameSize }
func (p *Size) ValueKind() types.ValueKind { return types.Numeric }

// Extract implements types.Parser
func (p *Size) Extract(path string, compressed bool) (types.Value, error) {
	if !compressed {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		return types.Number(info.Size()), nil
	}

	r, err := open(path, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	return types.Number(n), nil
}

// Lines counts the lines of a file as the number of newlines plus one, so
// the last line counts even without a trailing newline
type Lines struct{}

// NewLines creates the file_lines parser
func NewLines() *Lines {
	return &Lines{}
}

func (p *Lines) Name() string               { return NameLines }
func (p *Lines) ValueKind() types.ValueKind { return types.Numeric }

// Extract implements types.Parser
func (p *Lines) Extract(path string, compressed bool) (types.Value, error) {
	r, err := open(path, compressed)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	lines := 1
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		lines += bytes.Count(buf[:n], []byte{'\n'})
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return types.Number(lines), nil
}

// Checksum reports the SHA-256 of the file content as a categorical value
type Checksum struct{}

// NewChecksum creates the file_checksum parser
func NewChecksum() *Checksum {
	return &Checksum{}
}

func (p *Checksum) Name() string               { return NameChecksum }
func (p *Checksum) ValueKind() types.ValueKind { return types.Category }

// Extract implements types.Parser
func (p *Checksum) Extract(path string, compressed bool) (types.Value, error) {
	r, err := open(path, compressed)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return types.Text(hex.EncodeToString(hash.Sum(nil))), nil
}
