// Package search is the retrieval engine: intent classification, level
// routing, query embedding, pre-filtered hybrid search with defensive
// post-filtering, and the navigation operations built on top of it.
package search

import (
	"github.com/kbhalerao/codesmriti/internal/document"
)

// Level is the document kind targeted by a query.
type Level string

const (
	LevelSymbol Level = "symbol"
	LevelFile   Level = "file"
	LevelModule Level = "module"
	LevelRepo   Level = "repo"
	// LevelDoc targets conceptual documentation queries; it routes to
	// module summaries, the broadest prose the index holds below the
	// repo roll-up.
	LevelDoc Level = "doc"
)

// DocType maps a level to the stored document kind.
func (l Level) DocType() document.Type {
	switch l {
	case LevelSymbol:
		return document.TypeSymbolIndex
	case LevelModule, LevelDoc:
		return document.TypeModuleSummary
	case LevelRepo:
		return document.TypeRepoSummary
	default:
		return document.TypeFileIndex
	}
}

// Valid reports whether the level is one of the recognized values.
func (l Level) Valid() bool {
	switch l {
	case LevelSymbol, LevelFile, LevelModule, LevelRepo, LevelDoc:
		return true
	}
	return false
}

// Request is one search call.
type Request struct {
	TenantID  string
	QueryText string

	// Level routes the query; empty lets the intent classifier decide.
	Level Level

	Limit      int
	RepoFilter string

	// PreviewMode truncates summaries in the returned hits.
	PreviewMode bool
}

// Hit is one returned result.
type Hit struct {
	Document *document.Document
	Score    float64
}

// RepoInfo is one entry of list_repos.
type RepoInfo struct {
	RepoID    string         `json:"repo_id"`
	DocCounts map[string]int `json:"doc_counts"`
	Languages []string       `json:"languages"`
}

// StructureEntry is one file row of explore_structure.
type StructureEntry struct {
	Path      string `json:"path"`
	Language  string `json:"language"`
	LineCount int    `json:"line_count"`
}

// Structure is the explore_structure response.
type Structure struct {
	Directories []string         `json:"directories"`
	Files       []StructureEntry `json:"files"`
	Summary     string           `json:"summary,omitempty"`
}

// FileContent is the get_file response.
type FileContent struct {
	Code       string `json:"code"`
	TotalLines int    `json:"total_lines"`
	Language   string `json:"language"`
	Truncated  bool   `json:"truncated"`
}
