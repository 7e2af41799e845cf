package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbhalerao/codesmriti/internal/document"
	"github.com/kbhalerao/codesmriti/internal/embed"
	"github.com/kbhalerao/codesmriti/internal/gitrepo"
	"github.com/kbhalerao/codesmriti/internal/store"
)

const testDims = 16

// hashEmbedder derives a deterministic unit vector from input text, so
// identical texts land on identical vectors across document and query
// paths (the prefixes are stripped before hashing to make
// self-retrieval exact).
type hashEmbedder struct{}

func (hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.TrimPrefix(t, embed.DocumentPrefix)
		t = strings.TrimPrefix(t, embed.QueryPrefix)
		sum := sha256.Sum256([]byte(t))
		v := make([]float32, testDims)
		for j := range v {
			v[j] = float32(sum[j]) + 1
		}
		out[i] = v
	}
	return out, nil
}

func (hashEmbedder) Dimensions() int   { return testDims }
func (hashEmbedder) ModelName() string { return "hash" }
func (hashEmbedder) Close() error      { return nil }

type fixture struct {
	engine  *Engine
	adapter store.Adapter
	encoder *embed.Encoder
	root    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	adapter, err := store.NewAdapter(store.Config{Dims: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	encoder := embed.NewEncoder(hashEmbedder{}, embed.EncoderConfig{})
	root := t.TempDir()

	opener := func(tenant, repo string) (*gitrepo.Checkout, error) {
		return gitrepo.Open(root)
	}

	return &fixture{
		engine:  New(adapter, encoder, opener, Config{}),
		adapter: adapter,
		encoder: encoder,
		root:    root,
	}
}

// seedDoc embeds the summary through the real encoder and upserts.
func (f *fixture) seedDoc(t *testing.T, d *document.Document) {
	t.Helper()
	vectors, err := f.encoder.EncodeDocuments(context.Background(), []string{d.SummaryText})
	require.NoError(t, err)
	d.Embedding = vectors[0]

	res, err := f.adapter.UpsertDocuments(context.Background(), []*document.Document{d})
	require.NoError(t, err)
	require.Empty(t, res.FailedIDs)
}

func symDoc(tenant, repo, path, name, summary string) *document.Document {
	return &document.Document{
		ID:          document.SymbolDocID(tenant, repo, path, name),
		TenantID:    tenant,
		RepoID:      repo,
		Type:        document.TypeSymbolIndex,
		Path:        path,
		SummaryText: summary,
		ParentID:    document.FileDocID(tenant, repo, path),
		ContentHash: document.HashContent([]byte(summary)),
		SymbolName:  name,
		SymbolKind:  document.SymbolKindFunction,
		StartLine:   1,
		EndLine:     8,
	}
}

func fDoc(tenant, repo, path, summary string) *document.Document {
	return &document.Document{
		ID:          document.FileDocID(tenant, repo, path),
		TenantID:    tenant,
		RepoID:      repo,
		Type:        document.TypeFileIndex,
		Path:        path,
		SummaryText: summary,
		ParentID:    document.ModuleDocID(tenant, repo, document.ModulePathOf(path)),
		ContentHash: document.HashContent([]byte(summary)),
		FileCommit:  "c-" + path,
		Language:    "python",
		LineCount:   25,
	}
}

func modDoc(tenant, repo, path, summary string) *document.Document {
	parentID := document.RepoDocID(tenant, repo)
	if parent, ok := document.ParentModulePath(path); ok {
		parentID = document.ModuleDocID(tenant, repo, parent)
	}
	return &document.Document{
		ID:          document.ModuleDocID(tenant, repo, path),
		TenantID:    tenant,
		RepoID:      repo,
		Type:        document.TypeModuleSummary,
		Path:        path,
		SummaryText: summary,
		ParentID:    parentID,
		ContentHash: document.HashChildren(nil, nil),
	}
}

func TestSearchSelfRetrieval(t *testing.T) {
	f := newFixture(t)

	docs := []*document.Document{
		symDoc("t1", "r", "util.py", "add", "Adds two numbers together and returns the arithmetic sum of both."),
		symDoc("t1", "r", "util.py", "sub", "Subtracts the second number from the first and returns the difference."),
		symDoc("t1", "r", "util.py", "mul", "Multiplies two numbers together and produces their combined product."),
	}
	for _, d := range docs {
		f.seedDoc(t, d)
	}

	for _, d := range docs {
		hits, err := f.engine.Search(context.Background(), &Request{
			TenantID:  "t1",
			QueryText: d.SummaryText,
			Level:     LevelSymbol,
			Limit:     3,
		})
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, d.ID, hits[0].Document.ID)
		assert.GreaterOrEqual(t, hits[0].Score, 0.99)
	}
}

func TestSearchTenantIsolation(t *testing.T) {
	f := newFixture(t)

	f.seedDoc(t, symDoc("t1", "r", "a.py", "hash", "Computes a cryptographic digest of the provided content bytes."))
	f.seedDoc(t, symDoc("t2", "r", "a.py", "hash", "Computes a cryptographic digest of the provided content bytes too."))

	hits, err := f.engine.Search(context.Background(), &Request{
		TenantID:  "t2",
		QueryText: "cryptographic digest of content",
		Level:     LevelSymbol,
		Limit:     10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, "t2", h.Document.TenantID)
	}
}

func TestSearchRepoFilterNoLeakage(t *testing.T) {
	f := newFixture(t)

	f.seedDoc(t, fDoc("t1", "owner/repo", "walker.py", "Walks the repository tree and yields candidate files for ingestion."))
	f.seedDoc(t, fDoc("t1", "second/repo", "walker.py", "Walks a different repository tree and yields candidate files as well."))

	hits, err := f.engine.Search(context.Background(), &Request{
		TenantID:   "t1",
		QueryText:  "walks the repository tree",
		Level:      LevelFile,
		RepoFilter: "owner/repo",
		Limit:      10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, "owner/repo", h.Document.RepoID)
	}
}

func TestSearchLevelRoutingViaClassifier(t *testing.T) {
	f := newFixture(t)

	f.seedDoc(t, symDoc("t1", "r", "u.py", "normalize", "Scales a vector to unit length before it is stored anywhere."))
	f.seedDoc(t, fDoc("t1", "r", "u.py", "Holds vector helper functions used by the embedding pipeline code."))

	// "find function X" routes to symbols without an explicit level.
	hits, err := f.engine.Search(context.Background(), &Request{
		TenantID:  "t1",
		QueryText: "find function normalize",
		Limit:     5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, document.TypeSymbolIndex, hits[0].Document.Type)
}

func TestSearchPreviewMode(t *testing.T) {
	f := newFixture(t)

	long := strings.Repeat("This summary sentence keeps going with more detail. ", 20)
	f.seedDoc(t, fDoc("t1", "r", "long.py", long))

	hits, err := f.engine.Search(context.Background(), &Request{
		TenantID:    "t1",
		QueryText:   "summary sentence detail",
		Level:       LevelFile,
		Limit:       1,
		PreviewMode: true,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.LessOrEqual(t, len(hits[0].Document.SummaryText), 210)
	assert.True(t, strings.HasSuffix(hits[0].Document.SummaryText, "…"))
}

func TestSearchDropsShortSummaries(t *testing.T) {
	f := newFixture(t)

	f.seedDoc(t, symDoc("t1", "r", "s.py", "stub", "tiny stub summary under fifty bytes here"))
	f.seedDoc(t, symDoc("t1", "r", "s.py", "real", "A genuinely descriptive summary easily longer than fifty bytes of text."))

	hits, err := f.engine.Search(context.Background(), &Request{
		TenantID:  "t1",
		QueryText: "descriptive summary",
		Level:     LevelSymbol,
		Limit:     10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.GreaterOrEqual(t, len(h.Document.SummaryText), 50)
	}
}

func TestSearchValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Search(context.Background(), &Request{QueryText: "x"})
	assert.Error(t, err, "missing tenant")

	_, err = f.engine.Search(context.Background(), &Request{TenantID: "t1", QueryText: "   "})
	assert.Error(t, err, "empty query")

	_, err = f.engine.Search(context.Background(), &Request{TenantID: "t1", QueryText: "x", Level: "paragraph"})
	assert.Error(t, err, "unknown level")
}

func TestSearchEmptyIndexReturnsNoHits(t *testing.T) {
	f := newFixture(t)
	hits, err := f.engine.Search(context.Background(), &Request{
		TenantID:  "t1",
		QueryText: "anything at all",
		Level:     LevelSymbol,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestListRepos(t *testing.T) {
	f := newFixture(t)

	f.seedDoc(t, &document.Document{
		ID:          document.RepoDocID("t1", "b/repo"),
		TenantID:    "t1",
		RepoID:      "b/repo",
		Type:        document.TypeRepoSummary,
		SummaryText: "A repository that stores the second half of the test corpus data.",
		ContentHash: "h1",
		Languages:   []string{"python"},
		DocCounts:   map[string]int{"file_index": 3},
	})
	f.seedDoc(t, &document.Document{
		ID:          document.RepoDocID("t1", "a/repo"),
		TenantID:    "t1",
		RepoID:      "a/repo",
		Type:        document.TypeRepoSummary,
		SummaryText: "A repository holding the first half of the corpus used by the tests.",
		ContentHash: "h2",
		Languages:   []string{"go", "python"},
		DocCounts:   map[string]int{"file_index": 5},
	})

	repos, err := f.engine.ListRepos(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "a/repo", repos[0].RepoID)
	assert.Equal(t, []string{"go", "python"}, repos[0].Languages)
	assert.Equal(t, 5, repos[0].DocCounts["file_index"])
}

func TestExploreStructure(t *testing.T) {
	f := newFixture(t)

	f.seedDoc(t, modDoc("t1", "r", "", "The repository root module grouping all of the top level packages."))
	f.seedDoc(t, modDoc("t1", "r", "pkg", "The pkg folder holding the core implementation files of the project."))
	f.seedDoc(t, modDoc("t1", "r", "pkg/sub", "A nested folder with specialized helpers for the core implementation."))
	f.seedDoc(t, fDoc("t1", "r", "main.py", "The program entry point parsing flags and starting the application."))
	f.seedDoc(t, fDoc("t1", "r", "pkg/core.py", "Core logic implementing the main behaviors of this small project."))

	root, err := f.engine.ExploreStructure(context.Background(), "t1", "r", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg"}, root.Directories)
	require.Len(t, root.Files, 1)
	assert.Equal(t, "main.py", root.Files[0].Path)
	assert.Equal(t, "python", root.Files[0].Language)
	assert.Equal(t, 25, root.Files[0].LineCount)
	assert.Contains(t, root.Summary, "root module")

	pkg, err := f.engine.ExploreStructure(context.Background(), "t1", "r", "pkg")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/sub"}, pkg.Directories)
	require.Len(t, pkg.Files, 1)
	assert.Equal(t, "pkg/core.py", pkg.Files[0].Path)
}

func TestGetFileReadsFromCheckout(t *testing.T) {
	f := newFixture(t)

	content := "def main():\n    run()\n    return 0\n"
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "pkg", "core.py"), []byte(content), 0o644))

	f.seedDoc(t, fDoc("t1", "r", "pkg/core.py", "Core logic implementing the main behaviors of this small project."))

	got, err := f.engine.GetFile(context.Background(), "t1", "r", "pkg/core.py", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalLines)
	assert.Equal(t, "python", got.Language)
	assert.False(t, got.Truncated)
	assert.Contains(t, got.Code, "def main():")

	ranged, err := f.engine.GetFile(context.Background(), "t1", "r", "pkg/core.py", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, "    run()", ranged.Code)
}

func TestGetFileByteCap(t *testing.T) {
	f := newFixture(t)

	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&sb, "line number %d with some extra padding text\n", i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "big.py"), []byte(sb.String()), 0o644))

	engine := New(f.adapter, f.encoder, func(string, string) (*gitrepo.Checkout, error) {
		return gitrepo.Open(f.root)
	}, Config{FetchByteCap: 500})

	got, err := engine.GetFile(context.Background(), "t1", "r", "big.py", 0, 0)
	require.NoError(t, err)
	assert.True(t, got.Truncated)
	assert.LessOrEqual(t, len(got.Code), 500)
}
