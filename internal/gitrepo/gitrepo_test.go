package gitrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobHashMatchesGitFormat(t *testing.T) {
	// `echo -n 'hello' | git hash-object --stdin`
	assert.Equal(t, "b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0", BlobHash([]byte("hello")))
	// Empty blob is a well-known constant.
	assert.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", BlobHash(nil))
}

func TestBlobHashChangesWithContent(t *testing.T) {
	a := BlobHash([]byte("def add(a, b): return a + b"))
	b := BlobHash([]byte("def add(a, b): return a - b"))
	assert.NotEqual(t, a, b)
}

func TestContentHashNeverCollidesWithBlobHash(t *testing.T) {
	h := ContentHash([]byte("hello"))
	assert.True(t, strings.HasPrefix(h, "raw:"))
	assert.NotEqual(t, h, BlobHash([]byte("hello")))
}

func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))

	var sb strings.Builder
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "main.py"), []byte(sb.String()), 0o644))
	return root
}

func TestReadSliceFullFile(t *testing.T) {
	co, err := Open(writeTree(t))
	require.NoError(t, err)

	slice, err := co.ReadSlice("pkg/main.py", 0, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 20, slice.TotalLines)
	assert.False(t, slice.Truncated)
	assert.True(t, strings.HasPrefix(slice.Code, "line 1\n"))
	assert.True(t, strings.HasSuffix(slice.Code, "line 20"))
}

func TestReadSliceRange(t *testing.T) {
	co, err := Open(writeTree(t))
	require.NoError(t, err)

	slice, err := co.ReadSlice("pkg/main.py", 5, 7, 0)
	require.NoError(t, err)

	assert.Equal(t, "line 5\nline 6\nline 7", slice.Code)
	assert.Equal(t, 20, slice.TotalLines)
}

func TestReadSliceByteCap(t *testing.T) {
	co, err := Open(writeTree(t))
	require.NoError(t, err)

	slice, err := co.ReadSlice("pkg/main.py", 0, 0, 30)
	require.NoError(t, err)

	assert.True(t, slice.Truncated)
	assert.LessOrEqual(t, len(slice.Code), 30)
	assert.False(t, strings.HasSuffix(slice.Code, "\n"), "clip lands on a line boundary")
}

func TestReadSliceStartPastEnd(t *testing.T) {
	co, err := Open(writeTree(t))
	require.NoError(t, err)

	slice, err := co.ReadSlice("pkg/main.py", 100, 200, 0)
	require.NoError(t, err)
	assert.Empty(t, slice.Code)
	assert.Equal(t, 20, slice.TotalLines)
}

func TestResolveRejectsEscapes(t *testing.T) {
	co, err := Open(writeTree(t))
	require.NoError(t, err)

	_, err = co.ReadSlice("../etc/passwd", 0, 0, 0)
	assert.Error(t, err)

	_, err = co.ReadSlice("/etc/passwd", 0, 0, 0)
	assert.Error(t, err)
}

func TestFileCommitPlainDirUsesContentHash(t *testing.T) {
	root := writeTree(t)
	co, err := Open(root)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(root, "pkg", "main.py"))
	require.NoError(t, err)

	commit, err := co.FileCommit("pkg/main.py")
	require.NoError(t, err)
	assert.Equal(t, ContentHash(content), commit)
	assert.True(t, strings.HasPrefix(commit, "raw:"))
}

func TestCommitForGitRepoUsesBlobHash(t *testing.T) {
	root := writeTree(t)
	_, err := git.PlainInit(root, false)
	require.NoError(t, err)

	co, err := Open(root)
	require.NoError(t, err)

	content := []byte("def add(a, b): return a + b")
	assert.Equal(t, BlobHash(content), co.CommitFor(content))

	commit, err := co.FileCommit("pkg/main.py")
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(commit, "raw:"))
}

func TestOpenRejectsFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestHeadCommitEmptyForPlainDir(t *testing.T) {
	co, err := Open(writeTree(t))
	require.NoError(t, err)
	assert.Empty(t, co.HeadCommit())
}
