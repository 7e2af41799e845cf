package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkFile(t *testing.T, opts Options, path, language, source string) *FileChunks {
	t.Helper()
	c := New(opts)
	defer c.Close()

	fc, err := c.Chunk(context.Background(), path, language, []byte(source))
	require.NoError(t, err)
	return fc
}

func byKind(fc *FileChunks, kind Kind) []*Chunk {
	var out []*Chunk
	for _, ch := range fc.Chunks {
		if ch.Kind == kind {
			out = append(out, ch)
		}
	}
	return out
}

const pySource = `"""Utility helpers for arithmetic."""


def add(a, b):
    """Add two numbers.

    Returns the sum.
    """
    result = a + b
    return result


def sub(a, b):
    """Subtract b from a."""
    result = a - b
    return result


class Greeter:
    """Greets people politely."""

    def hello(self, name):
        """Say hello to name."""
        greeting = "Hello, " + name
        print(greeting)
        return greeting
`

func TestMetadataChunkAlwaysFirst(t *testing.T) {
	fc := chunkFile(t, Options{FileTokenThreshold: 1}, "util.py", "python", pySource)

	require.NotEmpty(t, fc.Chunks)
	meta := fc.Chunks[0]
	assert.Equal(t, KindMetadata, meta.Kind)
	assert.Equal(t, 2, meta.FunctionCount)
	assert.Equal(t, 1, meta.ClassCount)
	assert.Equal(t, "Utility helpers for arithmetic.", meta.Docstring)
	assert.Equal(t, 1, meta.StartLine)
}

func TestSmallFileGetsWholeFileChunkPlusSymbols(t *testing.T) {
	fc := chunkFile(t, Options{}, "util.py", "python", pySource)

	assert.Equal(t, KindMetadata, fc.Chunks[0].Kind)
	assert.Equal(t, KindWholeFile, fc.Chunks[1].Kind)
	assert.Equal(t, pySource, fc.Chunks[1].Source)

	// Symbols are extracted regardless of file size; the default
	// minimum span drops the 4-line sub.
	var names []string
	for _, ch := range fc.Chunks[2:] {
		names = append(names, ch.Name)
	}
	assert.Equal(t, []string{"add", "Greeter", "Greeter.hello"}, names)
}

func TestOneLinerSymbolsWithLowMinSpan(t *testing.T) {
	source := "def add(a, b): return a + b\n\n\ndef sub(a, b): return a - b\n" +
		"\n# trailing commentary keeping the file above the length floor\n"
	fc := chunkFile(t, Options{MinSymbolLines: 1}, "util.py", "python", source)

	var names []string
	for _, ch := range byKind(fc, KindFunction) {
		names = append(names, ch.Name)
	}
	assert.Equal(t, []string{"add", "sub"}, names)
}

func TestLargeFileGetsSymbolChunks(t *testing.T) {
	// Threshold 1 forces per-symbol chunking.
	fc := chunkFile(t, Options{FileTokenThreshold: 1, MinSymbolLines: 3}, "util.py", "python", pySource)

	functions := byKind(fc, KindFunction)
	require.Len(t, functions, 2)
	assert.Equal(t, "add", functions[0].Name)
	assert.Equal(t, "sub", functions[1].Name)
	assert.Contains(t, functions[0].Source, "result = a + b")
	assert.Equal(t, "Add two numbers.\n\n    Returns the sum.", functions[0].Docstring)
	assert.Equal(t, []string{"a", "b"}, functions[0].Parameters)

	headers := byKind(fc, KindClassHeader)
	require.Len(t, headers, 1)
	assert.Equal(t, "Greeter", headers[0].Name)
	assert.Contains(t, headers[0].Source, "class Greeter")
	assert.Contains(t, headers[0].Source, "Greets people politely.")

	methods := byKind(fc, KindMethod)
	require.Len(t, methods, 1)
	assert.Equal(t, "Greeter.hello", methods[0].Name)
	assert.Equal(t, "Greeter", methods[0].ParentSymbol)
	assert.Equal(t, []string{"name"}, methods[0].Parameters, "self is dropped")
}

func TestMinSymbolLinesSkipsSmallSymbols(t *testing.T) {
	source := `def tiny(): return 1

def larger(a, b):
    """Do a larger thing with the two inputs provided."""
    x = a * 2
    y = b * 3
    return x + y
`
	fc := chunkFile(t, Options{FileTokenThreshold: 1, MinSymbolLines: 5}, "m.py", "python", source)

	functions := byKind(fc, KindFunction)
	require.Len(t, functions, 1)
	assert.Equal(t, "larger", functions[0].Name)
}

func TestNestedClassesRecurse(t *testing.T) {
	source := `class Outer:
    """Outer container."""

    class Inner:
        """Inner container."""

        def work(self):
            """Do the inner work carefully and slowly."""
            a = 1
            b = 2
            return a + b
`
	fc := chunkFile(t, Options{FileTokenThreshold: 1, MinSymbolLines: 3}, "n.py", "python", source)

	headers := byKind(fc, KindClassHeader)
	require.Len(t, headers, 2)
	assert.Equal(t, "Outer", headers[0].Name)
	assert.Equal(t, "Outer.Inner", headers[1].Name)

	methods := byKind(fc, KindMethod)
	require.Len(t, methods, 1)
	assert.Equal(t, "Outer.Inner.work", methods[0].Name)
}

func TestPythonDecorators(t *testing.T) {
	source := `@cached
@retry(times=3)
def fetch(url):
    """Fetch a URL with caching and retries applied."""
    conn = open_connection(url)
    data = conn.read()
    return data
`
	fc := chunkFile(t, Options{FileTokenThreshold: 1, MinSymbolLines: 3}, "d.py", "python", source)

	functions := byKind(fc, KindFunction)
	require.Len(t, functions, 1)
	assert.Equal(t, []string{"@cached", "@retry(times=3)"}, functions[0].Decorators)
}

func TestGoSymbols(t *testing.T) {
	source := `package calc

// Add adds two ints.
func Add(a, b int) int {
	sum := a + b
	// keep it simple
	return sum
}

type Counter struct {
	n int
}

func (c *Counter) Incr(delta int) int {
	c.n += delta
	if c.n < 0 {
		c.n = 0
	}
	return c.n
}
`
	fc := chunkFile(t, Options{FileTokenThreshold: 1, MinSymbolLines: 3}, "calc.go", "go", source)

	functions := byKind(fc, KindFunction)
	require.Len(t, functions, 1)
	assert.Equal(t, "Add", functions[0].Name)
	assert.Equal(t, "func Add(a, b int) int", functions[0].Signature)

	methods := byKind(fc, KindMethod)
	require.Len(t, methods, 1)
	assert.Equal(t, "Counter.Incr", methods[0].Name)
	assert.Equal(t, "Counter", methods[0].ParentSymbol)
}

func TestUnsupportedLanguageDegradesToWholeFile(t *testing.T) {
	source := strings.Repeat("SELECT * FROM users WHERE id = 1;\n", 50)
	fc := chunkFile(t, Options{}, "query.sql", "sql", source)

	require.Len(t, fc.Chunks, 2)
	assert.Equal(t, KindWholeFile, fc.Chunks[1].Kind)
	assert.False(t, fc.ParseDegraded)
}

func TestUnsupportedLanguageTruncatesAtThreshold(t *testing.T) {
	source := strings.Repeat("SELECT something FROM somewhere;\n", 2000)
	fc := chunkFile(t, Options{FileTokenThreshold: 600}, "big.sql", "sql", source)

	require.Len(t, fc.Chunks, 2)
	meta := fc.Chunks[0]
	assert.Equal(t, 600, meta.TruncatedTokens)
	body := fc.Chunks[1]
	assert.Less(t, len(body.Source), len(source))
}

func TestLineNumbersAreOneIndexed(t *testing.T) {
	fc := chunkFile(t, Options{FileTokenThreshold: 1, MinSymbolLines: 3}, "util.py", "python", pySource)

	functions := byKind(fc, KindFunction)
	require.NotEmpty(t, functions)
	assert.Equal(t, 4, functions[0].StartLine)
	assert.GreaterOrEqual(t, functions[0].EndLine, functions[0].StartLine)
}

func TestHeadOfFileCaps(t *testing.T) {
	long := strings.Repeat("line\n", 500)
	head := headOfFile([]byte(long), 200, 1<<20)
	assert.Equal(t, 200, countLines(head))

	wide := strings.Repeat("x", 10000)
	head = headOfFile([]byte(wide), 200, 4096)
	assert.Len(t, head, 4096)
}

func TestTruncateAtTokensWhitespaceBoundary(t *testing.T) {
	content := []byte(strings.Repeat("word ", 1000))
	clipped, truncated := truncateAtTokens(content, 75) // 100 bytes
	assert.True(t, truncated)
	assert.LessOrEqual(t, len(clipped), 100)
	assert.False(t, strings.HasSuffix(string(clipped), " "), "clip backs off to a boundary")

	small := []byte("short")
	same, truncated := truncateAtTokens(small, 1000)
	assert.False(t, truncated)
	assert.Equal(t, small, same)
}
