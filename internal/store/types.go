// Package store is the persistence layer: a SQLite document store as
// the source of truth, with a bleve keyword index and a chromem vector
// collection as derived search projections. The adapter keeps all three
// in step and answers pre-filtered hybrid search.
package store

import (
	"context"

	"github.com/kbhalerao/codesmriti/internal/document"
)

// Hit is one search result.
type Hit struct {
	Document *document.Document

	// Score is the vector similarity when the vector leg found the
	// document, otherwise its RRF score; higher is better.
	Score float64

	// VecScore is the vector similarity leg (0-1, 0 when absent).
	VecScore float64

	// KeywordScore is the keyword leg's raw bleve score (0 when absent).
	KeywordScore float64
}

// HybridRequest is one pre-filtered hybrid search. The keyword
// predicate {type, tenant_id, repo_id?} applies on both legs before
// any scoring.
type HybridRequest struct {
	TenantID string
	RepoID   string // optional repo filter
	Type     document.Type

	// QueryVector drives the kNN clause; must be unit length.
	QueryVector []float32

	// QueryText drives the keyword text-match leg.
	QueryText string

	// K is the kNN oversampled candidate count.
	K int

	// Limit caps the fused result list.
	Limit int
}

// UpsertResult accounts per-document outcomes of a batched write.
type UpsertResult struct {
	Upserted  int
	FailedIDs []string
}

// Adapter is the storage surface the rest of the system sees.
type Adapter interface {
	// UpsertDocuments bulk-writes documents in batches, atomic per
	// document, with per-document accounting and failed-id retry.
	UpsertDocuments(ctx context.Context, docs []*document.Document) (*UpsertResult, error)

	// MutateEmbedding replaces one document's embedding in place.
	MutateEmbedding(ctx context.Context, id string, vector []float32) error

	// GetFileCommits returns {path -> file_commit} for every stored
	// file_index document of the repo, in one query.
	GetFileCommits(ctx context.Context, tenant, repo string) (map[string]string, error)

	// DeleteByFile cascade-deletes a file_index document and its
	// symbol children.
	DeleteByFile(ctx context.Context, tenant, repo, path string) error

	// DeleteByRepo cascade-deletes every document of the repo.
	DeleteByRepo(ctx context.Context, tenant, repo string) error

	// DeleteDocuments removes specific documents by id; used for
	// roll-up documents whose subtree emptied out.
	DeleteDocuments(ctx context.Context, ids []string) error

	// HybridSearch answers one pre-filtered keyword AND kNN request.
	HybridSearch(ctx context.Context, req *HybridRequest) ([]*Hit, error)

	// FetchDocument loads one document by id, nil when absent.
	FetchDocument(ctx context.Context, id string) (*document.Document, error)

	// FetchChildren loads the direct children of a document.
	FetchChildren(ctx context.Context, id string) ([]*document.Document, error)

	// ListByType loads all documents of one kind for a tenant,
	// optionally restricted to a repo.
	ListByType(ctx context.Context, tenant, repo string, docType document.Type) ([]*document.Document, error)

	// Close releases the document store and the keyword index.
	Close() error
}
