// Package document defines the hierarchical document model persisted by
// the ingestion pipeline: repo_summary -> module_summary -> file_index ->
// symbol_index. Documents carry summaries and provenance, never raw
// source code.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Type is the document kind.
type Type string

const (
	TypeRepoSummary   Type = "repo_summary"
	TypeModuleSummary Type = "module_summary"
	TypeFileIndex     Type = "file_index"
	TypeSymbolIndex   Type = "symbol_index"
)

// SymbolKind classifies symbol_index documents.
type SymbolKind string

const (
	SymbolKindFunction SymbolKind = "function"
	SymbolKindClass    SymbolKind = "class"
	SymbolKindMethod   SymbolKind = "method"
)

// UnitNormTolerance is the allowed deviation from unit length for
// stored embeddings.
const UnitNormTolerance = 1e-3

// Document is one persistent record of the four kinds. Cross-references
// are ids only; no object pointers are ever stored.
type Document struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	RepoID      string    `json:"repo_id"`
	Type        Type      `json:"type"`
	SummaryText string    `json:"summary_text"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	ChildrenIDs []string  `json:"children_ids,omitempty"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Module/file attributes.
	Path      string `json:"path,omitempty"`
	Language  string `json:"language,omitempty"`
	LineCount int    `json:"line_count,omitempty"`

	// FileCommit is the Git blob hash of the last ingested version
	// (file_index only).
	FileCommit string `json:"file_commit,omitempty"`

	// Symbol attributes (symbol_index only).
	SymbolName  string     `json:"symbol_name,omitempty"`
	SymbolKind  SymbolKind `json:"symbol_kind,omitempty"`
	StartLine   int        `json:"start_line,omitempty"`
	EndLine     int        `json:"end_line,omitempty"`
	ParentClass string     `json:"parent_class,omitempty"`

	// Repo attributes (repo_summary only).
	Languages []string       `json:"languages,omitempty"`
	DocCounts map[string]int `json:"doc_counts,omitempty"`

	// Degradation flags.
	AggregationTruncated bool `json:"aggregation_truncated,omitempty"`
	SummaryDegraded      bool `json:"summary_degraded,omitempty"`
	ParseDegraded        bool `json:"parse_degraded,omitempty"`
}

// RepoDocID builds the deterministic id of a repo_summary document.
func RepoDocID(tenant, repo string) string {
	return fmt.Sprintf("%s:%s:%s:%s", tenant, repo, TypeRepoSummary, repo)
}

// ModuleDocID builds the id of a module_summary document. The root
// module uses the empty path.
func ModuleDocID(tenant, repo, path string) string {
	return fmt.Sprintf("%s:%s:%s:%s", tenant, repo, TypeModuleSummary, path)
}

// FileDocID builds the id of a file_index document.
func FileDocID(tenant, repo, path string) string {
	return fmt.Sprintf("%s:%s:%s:%s", tenant, repo, TypeFileIndex, path)
}

// SymbolDocID builds the id of a symbol_index document. name is the
// canonical symbol name; methods use "Class.method".
func SymbolDocID(tenant, repo, path, name string) string {
	return fmt.Sprintf("%s:%s:%s:%s#%s", tenant, repo, TypeSymbolIndex, path, name)
}

// ParentTypeOf returns the required parent document kind, empty for
// repo_summary.
func ParentTypeOf(t Type) Type {
	switch t {
	case TypeModuleSummary:
		// Sub-modules parent to modules; the root module parents to
		// the repo. Both are legal, checked by the store.
		return TypeModuleSummary
	case TypeFileIndex:
		return TypeModuleSummary
	case TypeSymbolIndex:
		return TypeFileIndex
	default:
		return ""
	}
}

// HashContent hashes a raw source slice for change detection.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashChildren hashes the ordered list of child ids and their summaries.
// This is the content hash of module and repo documents.
func HashChildren(ids, summaries []string) string {
	h := sha256.New()
	for i, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
		if i < len(summaries) {
			h.Write([]byte(summaries[i]))
		}
		h.Write([]byte{0xff})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Norm returns the L2 norm of a vector.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Validate enforces the data-model invariants that gate every write:
// unit embedding, parent linkage, hash presence, and no raw source.
func (d *Document) Validate(dims int) error {
	if d.ID == "" || d.TenantID == "" || d.RepoID == "" {
		return fmt.Errorf("document missing identity fields: %q", d.ID)
	}

	switch d.Type {
	case TypeRepoSummary, TypeModuleSummary, TypeFileIndex, TypeSymbolIndex:
	default:
		return fmt.Errorf("unknown document type %q", d.Type)
	}

	if d.Type != TypeRepoSummary && d.ParentID == "" {
		return fmt.Errorf("%s document %q has no parent", d.Type, d.ID)
	}
	if d.Type == TypeRepoSummary && d.ParentID != "" {
		return fmt.Errorf("repo_summary %q must not have a parent", d.ID)
	}

	if d.ContentHash == "" {
		return fmt.Errorf("document %q has no content hash", d.ID)
	}

	if len(d.Embedding) > 0 {
		if dims > 0 && len(d.Embedding) != dims {
			return fmt.Errorf("document %q embedding has %d dims, want %d", d.ID, len(d.Embedding), dims)
		}
		if n := Norm(d.Embedding); math.Abs(n-1) > UnitNormTolerance {
			return fmt.Errorf("document %q embedding norm %.6f is not unit", d.ID, n)
		}
	}

	if d.Type == TypeSymbolIndex {
		if d.SymbolName == "" {
			return fmt.Errorf("symbol document %q has no symbol name", d.ID)
		}
		switch d.SymbolKind {
		case SymbolKindFunction, SymbolKindClass, SymbolKindMethod:
		default:
			return fmt.Errorf("symbol document %q has unknown kind %q", d.ID, d.SymbolKind)
		}
		if d.StartLine <= 0 || d.EndLine < d.StartLine {
			return fmt.Errorf("symbol document %q has invalid span %d-%d", d.ID, d.StartLine, d.EndLine)
		}
	}

	return nil
}

// CanonicalSymbolName joins a class and method into the stored name.
func CanonicalSymbolName(parentClass, name string) string {
	if parentClass == "" {
		return name
	}
	return parentClass + "." + name
}

// ModulePathOf returns the folder path of a file path, "" at the root.
func ModulePathOf(filePath string) string {
	idx := strings.LastIndex(filePath, "/")
	if idx < 0 {
		return ""
	}
	return filePath[:idx]
}

// ParentModulePath returns the enclosing module path, "" for top-level
// modules, and ok=false for the root module itself.
func ParentModulePath(modulePath string) (string, bool) {
	if modulePath == "" {
		return "", false
	}
	idx := strings.LastIndex(modulePath, "/")
	if idx < 0 {
		return "", true
	}
	return modulePath[:idx], true
}

// SortedCopy returns ids sorted lexicographically; child lists are
// always stored in this order so content hashes are stable.
func SortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}
