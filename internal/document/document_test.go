package document

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitVec(dims int) []float32 {
	v := make([]float32, dims)
	v[0] = 1
	return v
}

func validSymbol() *Document {
	return &Document{
		ID:          SymbolDocID("t1", "owner/repo", "util.py", "add"),
		TenantID:    "t1",
		RepoID:      "owner/repo",
		Type:        TypeSymbolIndex,
		SummaryText: "Adds two numbers.",
		Embedding:   unitVec(8),
		ParentID:    FileDocID("t1", "owner/repo", "util.py"),
		ContentHash: HashContent([]byte("def add(a, b): return a + b")),
		SymbolName:  "add",
		SymbolKind:  SymbolKindFunction,
		StartLine:   1,
		EndLine:     5,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestDeterministicIDs(t *testing.T) {
	assert.Equal(t, "t1:owner/repo:repo_summary:owner/repo", RepoDocID("t1", "owner/repo"))
	assert.Equal(t, "t1:owner/repo:module_summary:", ModuleDocID("t1", "owner/repo", ""))
	assert.Equal(t, "t1:owner/repo:module_summary:pkg/sub", ModuleDocID("t1", "owner/repo", "pkg/sub"))
	assert.Equal(t, "t1:owner/repo:file_index:pkg/util.py", FileDocID("t1", "owner/repo", "pkg/util.py"))
	assert.Equal(t, "t1:owner/repo:symbol_index:util.py#Greeter.hello",
		SymbolDocID("t1", "owner/repo", "util.py", "Greeter.hello"))
}

func TestValidateAcceptsGoodSymbol(t *testing.T) {
	require.NoError(t, validSymbol().Validate(8))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Document)
	}{
		{"missing tenant", func(d *Document) { d.TenantID = "" }},
		{"missing parent", func(d *Document) { d.ParentID = "" }},
		{"missing hash", func(d *Document) { d.ContentHash = "" }},
		{"bad type", func(d *Document) { d.Type = "blob" }},
		{"missing symbol name", func(d *Document) { d.SymbolName = "" }},
		{"bad symbol kind", func(d *Document) { d.SymbolKind = "macro" }},
		{"inverted span", func(d *Document) { d.StartLine = 9; d.EndLine = 3 }},
		{"wrong dims", func(d *Document) { d.Embedding = unitVec(4) }},
		{"non-unit embedding", func(d *Document) {
			d.Embedding = []float32{0.5, 0.5, 0, 0, 0, 0, 0, 0}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validSymbol()
			tt.mutate(d)
			assert.Error(t, d.Validate(8))
		})
	}
}

func TestValidateUnitTolerance(t *testing.T) {
	d := validSymbol()
	// Slightly off unit but inside 1e-3.
	d.Embedding = make([]float32, 8)
	d.Embedding[0] = 1.0005
	require.NoError(t, d.Validate(8))

	d.Embedding[0] = 1.01
	require.Error(t, d.Validate(8))
}

func TestRepoDocHasNoParent(t *testing.T) {
	d := &Document{
		ID:          RepoDocID("t1", "r"),
		TenantID:    "t1",
		RepoID:      "r",
		Type:        TypeRepoSummary,
		ContentHash: "abc",
	}
	require.NoError(t, d.Validate(0))

	d.ParentID = "something"
	require.Error(t, d.Validate(0))
}

func TestHashChildrenOrderSensitive(t *testing.T) {
	a := HashChildren([]string{"x", "y"}, []string{"sx", "sy"})
	b := HashChildren([]string{"y", "x"}, []string{"sy", "sx"})
	c := HashChildren([]string{"x", "y"}, []string{"sx", "sy"})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}

func TestHashChildrenSeparatorsUnambiguous(t *testing.T) {
	a := HashChildren([]string{"ab"}, []string{"c"})
	b := HashChildren([]string{"a"}, []string{"bc"})
	assert.NotEqual(t, a, b)
}

func TestNorm(t *testing.T) {
	assert.InDelta(t, 1.0, Norm([]float32{0.6, 0.8}), 1e-9)
	assert.InDelta(t, 0.0, Norm(nil), 1e-9)
	assert.InDelta(t, math.Sqrt(2), Norm([]float32{1, 1}), 1e-9)
}

func TestModulePathHelpers(t *testing.T) {
	assert.Equal(t, "", ModulePathOf("util.py"))
	assert.Equal(t, "pkg", ModulePathOf("pkg/util.py"))
	assert.Equal(t, "pkg/sub", ModulePathOf("pkg/sub/util.py"))

	parent, ok := ParentModulePath("pkg/sub")
	assert.True(t, ok)
	assert.Equal(t, "pkg", parent)

	parent, ok = ParentModulePath("pkg")
	assert.True(t, ok)
	assert.Equal(t, "", parent)

	_, ok = ParentModulePath("")
	assert.False(t, ok)
}

func TestCanonicalSymbolName(t *testing.T) {
	assert.Equal(t, "add", CanonicalSymbolName("", "add"))
	assert.Equal(t, "Greeter.hello", CanonicalSymbolName("Greeter", "hello"))
}
