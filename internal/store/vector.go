package store

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/kbhalerao/codesmriti/internal/document"
)

const vectorCollection = "documents"

// VectorStore holds the kNN side of hybrid search in a chromem
// collection. The metadata where-filter gives true pre-filter
// semantics: candidates must satisfy {type, tenant_id, repo_id?}
// before similarity scoring.
type VectorStore struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	dir        string
}

// NewVectorStore opens a persistent store under dir; empty dir keeps
// everything in memory for tests.
func NewVectorStore(dir string) (*VectorStore, error) {
	var db *chromem.DB
	var err error
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(vectorCollection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create vector collection: %w", err)
	}

	return &VectorStore{db: db, collection: col, dir: dir}, nil
}

// rejectEmbeddingFunc guards against accidental text-side embedding:
// every vector entering the store is precomputed by the pipeline.
func rejectEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings are precomputed; text embedding is not available here")
}

// Add upserts documents with their precomputed embeddings.
func (v *VectorStore) Add(ctx context.Context, docs []*document.Document) error {
	if len(docs) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	entries := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) == 0 {
			continue
		}
		entries = append(entries, chromem.Document{
			ID:        d.ID,
			Embedding: d.Embedding,
			// Content mirrors the summary so results are debuggable;
			// retrieval always goes back to SQLite for the document.
			Content:  d.SummaryText,
			Metadata: vectorMetadata(d),
		})
	}
	if len(entries) == 0 {
		return nil
	}

	return v.collection.AddDocuments(ctx, entries, 1)
}

// UpdateEmbedding replaces one vector in place.
func (v *VectorStore) UpdateEmbedding(ctx context.Context, d *document.Document) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.collection.AddDocument(ctx, chromem.Document{
		ID:        d.ID,
		Embedding: d.Embedding,
		Content:   d.SummaryText,
		Metadata:  vectorMetadata(d),
	})
}

// Delete removes vectors by id.
func (v *VectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.collection.Delete(ctx, nil, nil, ids...)
}

// VectorResult is one kNN hit.
type VectorResult struct {
	ID         string
	Similarity float32
}

// Query runs pre-filtered kNN: where carries the keyword predicate, k
// the oversampled candidate count.
func (v *VectorStore) Query(ctx context.Context, queryVector []float32, k int, tenant, repo string, docType document.Type) ([]*VectorResult, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	where := map[string]string{
		"tenant_id": tenant,
		"type":      string(docType),
	}
	if repo != "" {
		where["repo_id"] = repo
	}

	// chromem rejects nResults beyond the (filtered) collection size.
	if count := v.collection.Count(); count == 0 {
		return nil, nil
	} else if k > count {
		k = count
	}

	results, err := v.collection.QueryEmbedding(ctx, queryVector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	out := make([]*VectorResult, 0, len(results))
	for _, r := range results {
		out = append(out, &VectorResult{ID: r.ID, Similarity: r.Similarity})
	}
	return out, nil
}

// Count returns the vector count.
func (v *VectorStore) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.collection.Count()
}

func vectorMetadata(d *document.Document) map[string]string {
	return map[string]string{
		"tenant_id": d.TenantID,
		"repo_id":   d.RepoID,
		"type":      string(d.Type),
		"path":      d.Path,
	}
}
