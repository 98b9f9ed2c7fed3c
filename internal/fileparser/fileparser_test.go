package fileparser

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jobfeat/pkg/types"
)

const threeLines = "here is\n        some lines\n        of text"

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeGzip(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.txt.gz")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func requireAwk(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(awkBinary); err != nil {
		t.Skip("awk not installed")
	}
}

func TestBuiltins(t *testing.T) {
	registry := Builtins()
	assert.Equal(t, []string{NameChecksum, NameLines, NameSize}, registry.Names())
	assert.Equal(t, types.Numeric, registry[NameSize].ValueKind())
	assert.Equal(t, types.Numeric, registry[NameLines].ValueKind())
	assert.Equal(t, types.Category, registry[NameChecksum].ValueKind())
}

func TestSize(t *testing.T) {
	v, err := NewSize().Extract(writeFile(t, threeLines), false)
	require.NoError(t, err)
	assert.Equal(t, types.Number(42), v)

	v, err = NewSize().Extract(writeGzip(t, threeLines), true)
	require.NoError(t, err)
	assert.Equal(t, types.Number(42), v)

	_, err = NewSize().Extract(filepath.Join(t.TempDir(), "missing"), false)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"three lines", threeLines, 3},
		{"trailing newline", "a\nb\n", 3},
		{"empty", "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewLines().Extract(writeFile(t, tt.content), false)
			require.NoError(t, err)
			assert.Equal(t, types.Number(tt.want), v)
		})
	}

	v, err := NewLines().Extract(writeGzip(t, threeLines), true)
	require.NoError(t, err)
	assert.Equal(t, types.Number(3), v)
}

func TestLines_NotGzip(t *testing.T) {
	_, err := NewLines().Extract(writeFile(t, threeLines), true)
	assert.Error(t, err)
}

func TestChecksum(t *testing.T) {
	sum := sha256.Sum256([]byte(threeLines))
	want := types.Text(hex.EncodeToString(sum[:]))

	v, err := NewChecksum().Extract(writeFile(t, threeLines), false)
	require.NoError(t, err)
	assert.Equal(t, want, v)

	v, err = NewChecksum().Extract(writeGzip(t, threeLines), true)
	require.NoError(t, err)
	assert.Equal(t, want, v)
}

func TestRegex(t *testing.T) {
	path := writeFile(t, "header\nepochs: 12\nlr: 0.1\nmodel: resnet\n")

	p, err := NewRegex("epochs", types.Numeric, `^epochs: (\d+)`)
	require.NoError(t, err)
	v, err := p.Extract(path, false)
	require.NoError(t, err)
	assert.Equal(t, types.Number(12), v)

	p, err = NewRegex("model", types.Category, `model: \w+`)
	require.NoError(t, err)
	v, err = p.Extract(path, false)
	require.NoError(t, err)
	assert.Equal(t, types.Text("model: resnet"), v)

	p, err = NewRegex("missing", types.Numeric, `^batch: (\d+)`)
	require.NoError(t, err)
	_, err = p.Extract(path, false)
	assert.Error(t, err)

	p, err = NewRegex("bad_number", types.Numeric, `^model: (\w+)`)
	require.NoError(t, err)
	_, err = p.Extract(path, false)
	assert.Error(t, err)

	_, err = NewRegex("broken", types.Numeric, `(`)
	assert.Error(t, err)
}

func TestAwkCommand(t *testing.T) {
	requireAwk(t)
	path := writeFile(t, "epochs: 12\nepochs: 30\nmodel: resnet\n")

	p := NewAwkCommand("epochs", types.Numeric, `/^epochs:/ {print $2}`)
	v, err := p.Extract(path, false)
	require.NoError(t, err)
	assert.Equal(t, types.Numbers(12, 30), v)

	p = NewAwkCommand("model", types.Category, `/^model:/ {print $2}`)
	v, err = p.Extract(path, false)
	require.NoError(t, err)
	assert.Equal(t, types.Text("resnet"), v)

	p = NewAwkCommand("model_as_number", types.Numeric, `/^model:/ {print $2}`)
	_, err = p.Extract(path, false)
	assert.Error(t, err)
}

func TestAwkCommand_Gzip(t *testing.T) {
	requireAwk(t)
	path := writeGzip(t, "epochs: 7\n")

	v, err := NewAwkCommand("epochs", types.Numeric, `{print $2}`).Extract(path, true)
	require.NoError(t, err)
	assert.Equal(t, types.Numbers(7), v)
}

func TestAwkCommand_Failure(t *testing.T) {
	requireAwk(t)
	path := writeFile(t, "x\n")

	_, err := NewAwkCommand("broken", types.Numeric, `{print $2`).Extract(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "awk failed")
}

func TestAwkFile(t *testing.T) {
	requireAwk(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "count.awk")
	require.NoError(t, os.WriteFile(script, []byte("END {print NR}\n"), 0644))

	v, err := NewAwkFile("records", types.Numeric, script).Extract(writeFile(t, "a\nb\nc\n"), false)
	require.NoError(t, err)
	assert.Equal(t, types.Numbers(3), v)
}

func TestCache(t *testing.T) {
	path := writeFile(t, threeLines)
	counting := &countingParser{Parser: NewSize()}

	cache := NewCache(0)
	p := cache.Wrap(counting)
	assert.Equal(t, NameSize, p.Name())

	for i := 0; i < 3; i++ {
		v, err := p.Extract(path, false)
		require.NoError(t, err)
		assert.Equal(t, types.Number(42), v)
	}
	assert.Equal(t, 1, counting.calls)
	assert.Equal(t, 1, cache.Len())

	// A modified file is parsed again
	require.NoError(t, os.WriteFile(path, []byte("short"), 0644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	v, err := p.Extract(path, false)
	require.NoError(t, err)
	assert.Equal(t, types.Number(5), v)
	assert.Equal(t, 2, counting.calls)
}

// listParser reports a fixed list for every file
type listParser struct{}

func (listParser) Name() string               { return "layers" }
func (listParser) ValueKind() types.ValueKind { return types.Numeric }
func (listParser) Extract(string, bool) (types.Value, error) {
	return types.Numbers(12, 14, 16), nil
}

func TestCache_ListsAreCopied(t *testing.T) {
	path := writeFile(t, threeLines)
	p := NewCache(8).Wrap(listParser{})

	v, err := p.Extract(path, false)
	require.NoError(t, err)
	v.(types.List)[0] = types.Number(99)

	v, err = p.Extract(path, false)
	require.NoError(t, err)
	assert.Equal(t, types.Numbers(12, 14, 16), v)

	v.(types.List)[1] = types.Text("changed")

	v, err = p.Extract(path, false)
	require.NoError(t, err)
	assert.Equal(t, types.Numbers(12, 14, 16), v)
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	counting := &countingParser{Parser: NewSize()}
	p := NewCache(8).Wrap(counting)

	missing := filepath.Join(t.TempDir(), "missing")
	_, err := p.Extract(missing, false)
	assert.Error(t, err)
	_, err = p.Extract(missing, false)
	assert.Error(t, err)
	assert.Equal(t, 2, counting.calls)
}

func TestCache_WrapAll(t *testing.T) {
	cache := NewCache(8)
	registry := cache.WrapAll(Builtins())
	assert.Equal(t, Builtins().Names(), registry.Names())

	path := writeFile(t, threeLines)
	_, err := registry[NameLines].Extract(path, false)
	require.NoError(t, err)
	_, err = registry[NameSize].Extract(path, false)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

type countingParser struct {
	types.Parser
	calls int
}

func (c *countingParser) Extract(path string, compressed bool) (types.Value, error) {
	c.calls++
	return c.Parser.Extract(path, compressed)
}
