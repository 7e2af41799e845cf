package walker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// collect drains the walk channel into files and skips keyed by path.
func collect(t *testing.T, root string, opts Options) (map[string]*File, map[string]SkipReason) {
	t.Helper()
	opts.RootDir = root

	results, err := Walk(context.Background(), opts)
	require.NoError(t, err)

	files := make(map[string]*File)
	skips := make(map[string]SkipReason)
	for r := range results {
		require.NoError(t, r.Err)
		if r.File != nil {
			files[r.File.Path] = r.File
		}
		if r.Skip != nil {
			skips[r.Skip.Path] = r.Skip.Reason
		}
	}
	return files, skips
}

const pyBody = `def add(a, b):
    """Add two numbers together and return the arithmetic sum."""
    result = a + b
    total = result
    return total
`

func TestWalkFindsSourceFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "util.py", pyBody)
	writeFile(t, root, "pkg/lib.go", "package pkg\n\nfunc Lib() int {\n\treturn 42 // answer to everything\n}\n"+strings.Repeat("// padding\n", 10))

	files, _ := collect(t, root, Options{})

	require.Contains(t, files, "util.py")
	require.Contains(t, files, "pkg/lib.go")
	assert.Equal(t, "python", files["util.py"].Language)
	assert.Equal(t, "go", files["pkg/lib.go"].Language)
	assert.Equal(t, 5, files["util.py"].LineCount)
}

func TestSkipPolicyJunkPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.min.js", strings.Repeat("x();", 100))
	writeFile(t, root, "bundle.js.map", strings.Repeat("{}", 100))
	writeFile(t, root, "proto/service.pb.go", "package proto\n"+strings.Repeat("// gen\n", 50))

	files, skips := collect(t, root, Options{})

	assert.Empty(t, files)
	assert.Equal(t, SkipJunkPattern, skips["app.min.js"])
	assert.Equal(t, SkipJunkPattern, skips["bundle.js.map"])
	assert.Equal(t, SkipJunkPattern, skips["proto/service.pb.go"])
}

func TestSkipPolicyPrunesDependencyDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "node_modules/lodash/index.js", strings.Repeat("module.exports = 1;\n", 20))
	writeFile(t, root, ".git/hooks/pre-commit.sh", strings.Repeat("echo hi\n", 30))
	writeFile(t, root, "src/main.py", pyBody)

	files, skips := collect(t, root, Options{})

	assert.Len(t, files, 1)
	assert.Contains(t, files, "src/main.py")
	// Pruned subtrees produce no skip records at all.
	assert.NotContains(t, skips, "node_modules/lodash/index.js")
}

func TestSkipPolicySizeCap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "generated.py", strings.Repeat("x = 1\n", 400000)) // ~2.4 MB

	files, skips := collect(t, root, Options{MaxFileBytes: 1 << 20})

	assert.Empty(t, files)
	assert.Equal(t, SkipTooLarge, skips["generated.py"])
}

func TestSkipPolicyUnknownExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data.bin", strings.Repeat("\x00\x01", 200))
	writeFile(t, root, "notes.xyz", strings.Repeat("hello world ", 20))

	files, skips := collect(t, root, Options{})

	assert.Empty(t, files)
	assert.Equal(t, SkipNoLanguage, skips["data.bin"])
	assert.Equal(t, SkipNoLanguage, skips["notes.xyz"])
}

func TestSkipPolicyMinLength(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "tiny.py", "x = 1\n")
	writeFile(t, root, "spaces.py", strings.Repeat(" \n\t", 200))

	files, skips := collect(t, root, Options{})

	assert.Empty(t, files)
	assert.Equal(t, SkipTooShort, skips["tiny.py"])
	assert.Equal(t, SkipTooShort, skips["spaces.py"])
}

func TestExtraJunkPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "migrations/0001_init.py", pyBody)
	writeFile(t, root, "app.py", pyBody)

	files, skips := collect(t, root, Options{JunkPatterns: []string{"migrations/**"}})

	assert.Contains(t, files, "app.py")
	assert.Equal(t, SkipJunkPattern, skips["migrations/0001_init.py"])
}

func TestWalkCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("pkg", "file"+strings.Repeat("x", i%5)+".py"), pyBody)
	}

	ctx, cancel := context.WithCancel(context.Background())
	results, err := Walk(ctx, Options{RootDir: root, BufferSize: 1, Parallelism: 1})
	require.NoError(t, err)

	cancel()
	// Channel must close rather than deadlock against the full buffer.
	for range results {
	}
}

func TestWalkRejectsMissingRoot(t *testing.T) {
	_, err := Walk(context.Background(), Options{RootDir: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
}
