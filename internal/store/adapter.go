package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/kbhalerao/codesmriti/internal/document"
	"github.com/kbhalerao/codesmriti/internal/errors"
)

// Config tunes the storage adapter.
type Config struct {
	// DataDir holds the SQLite file, keyword index, and vector store.
	// Empty means fully in-memory (tests).
	DataDir string

	// BatchSize is the write batch size (default 100).
	BatchSize int

	// Dims validates embeddings on the write path.
	Dims int
}

// storageAdapter keeps SQLite authoritative and the two search
// projections in step with it.
type storageAdapter struct {
	documents *DocumentStore
	keyword   *KeywordIndex
	vector    *VectorStore
	batchSize int
	dims      int
}

var _ Adapter = (*storageAdapter)(nil)

// NewAdapter opens all three backing stores.
func NewAdapter(cfg Config) (Adapter, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	var sqlitePath, keywordPath, vectorDir string
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		sqlitePath = filepath.Join(cfg.DataDir, "documents.db")
		keywordPath = filepath.Join(cfg.DataDir, "keyword.bleve")
		vectorDir = filepath.Join(cfg.DataDir, "vectors")
	} else {
		sqlitePath = ":memory:"
	}

	documents, err := NewDocumentStore(sqlitePath)
	if err != nil {
		return nil, err
	}
	keyword, err := NewKeywordIndex(keywordPath)
	if err != nil {
		_ = documents.Close()
		return nil, err
	}
	vector, err := NewVectorStore(vectorDir)
	if err != nil {
		_ = documents.Close()
		_ = keyword.Close()
		return nil, err
	}

	return &storageAdapter{
		documents: documents,
		keyword:   keyword,
		vector:    vector,
		batchSize: cfg.BatchSize,
		dims:      cfg.Dims,
	}, nil
}

// UpsertDocuments streams batches with per-document accounting. A
// document failing validation or write is recorded and retried once at
// the end; survivors are reported in FailedIDs.
func (a *storageAdapter) UpsertDocuments(ctx context.Context, docs []*document.Document) (*UpsertResult, error) {
	result := &UpsertResult{}

	var failed []*document.Document
	for start := 0; start < len(docs); start += a.batchSize {
		end := start + a.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		for _, d := range docs[start:end] {
			select {
			case <-ctx.Done():
				return result, errors.Wrap(errors.ErrCodeCancelled, ctx.Err())
			default:
			}
			if err := a.upsertOne(ctx, d); err != nil {
				slog.Warn("document upsert failed, will retry",
					slog.String("id", d.ID), slog.String("error", err.Error()))
				failed = append(failed, d)
				continue
			}
			result.Upserted++
		}
	}

	// Retry only the failed ids.
	for _, d := range failed {
		if err := a.upsertOne(ctx, d); err != nil {
			result.FailedIDs = append(result.FailedIDs, d.ID)
			continue
		}
		result.Upserted++
	}

	return result, nil
}

// upsertOne validates the invariants, writes SQLite first, then the
// projections. A document violating the data model is never written.
func (a *storageAdapter) upsertOne(ctx context.Context, d *document.Document) error {
	if err := d.Validate(a.dims); err != nil {
		return errors.InvariantViolation(err.Error(), err)
	}

	if err := a.documents.Upsert(ctx, d); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}

	if err := a.keyword.Index(d.ID, d.SummaryText, string(d.Type), d.TenantID, d.RepoID, d.Path); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}

	if err := a.vector.Add(ctx, []*document.Document{d}); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}

	return nil
}

// MutateEmbedding replaces one embedding in place, without rewriting
// the document.
func (a *storageAdapter) MutateEmbedding(ctx context.Context, id string, vector []float32) error {
	if a.dims > 0 && len(vector) != a.dims {
		return errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dims, want %d", len(vector), a.dims), nil)
	}
	if n := document.Norm(vector); math.Abs(n-1) > document.UnitNormTolerance {
		return errors.New(errors.ErrCodeNonUnitEmbedding,
			fmt.Sprintf("embedding norm %.6f is not unit", n), nil)
	}

	if err := a.documents.MutateEmbedding(ctx, id, vector); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}

	d, err := a.documents.Get(ctx, id)
	if err != nil || d == nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}
	return a.vector.UpdateEmbedding(ctx, d)
}

// GetFileCommits serves the reconciler's one bulk read.
func (a *storageAdapter) GetFileCommits(ctx context.Context, tenant, repo string) (map[string]string, error) {
	return a.documents.FileCommits(ctx, tenant, repo)
}

// DeleteByFile cascades through all three stores.
func (a *storageAdapter) DeleteByFile(ctx context.Context, tenant, repo, path string) error {
	ids, err := a.documents.DeleteByFile(ctx, tenant, repo, path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}
	return a.deleteFromProjections(ctx, ids)
}

// DeleteByRepo cascades through all three stores.
func (a *storageAdapter) DeleteByRepo(ctx context.Context, tenant, repo string) error {
	ids, err := a.documents.DeleteByRepo(ctx, tenant, repo)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}
	return a.deleteFromProjections(ctx, ids)
}

// DeleteDocuments removes specific documents from all three stores.
func (a *storageAdapter) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := a.documents.DeleteByIDs(ctx, ids); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}
	return a.deleteFromProjections(ctx, ids)
}

func (a *storageAdapter) deleteFromProjections(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := a.keyword.Delete(ids); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}
	if err := a.vector.Delete(ctx, ids); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}
	return nil
}

// HybridSearch runs both pre-filtered legs, fuses them with RRF, and
// materializes documents from SQLite.
func (a *storageAdapter) HybridSearch(ctx context.Context, req *HybridRequest) ([]*Hit, error) {
	if req.Limit <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "limit must be positive", nil)
	}
	k := req.K
	if k <= 0 {
		k = req.Limit * 2
	}

	vecResults, err := a.vector.Query(ctx, req.QueryVector, k, req.TenantID, req.RepoID, req.Type)
	if err != nil {
		return nil, err
	}

	keywordResults, err := a.keyword.Search(ctx, req.QueryText, string(req.Type), req.TenantID, req.RepoID, k)
	if err != nil {
		return nil, err
	}

	fused := rrfFuse(keywordResults, vecResults, DefaultRRFConstant)

	hits := make([]*Hit, 0, req.Limit)
	for _, f := range fused {
		if len(hits) >= req.Limit {
			break
		}
		d, err := a.documents.Get(ctx, f.id)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, err)
		}
		if d == nil {
			// Projection ahead of the document store; skip defensively.
			continue
		}
		hits = append(hits, &Hit{
			Document:     d,
			Score:        hitScore(f),
			VecScore:     f.vecScore,
			KeywordScore: f.keywordScore,
		})
	}
	return hits, nil
}

// hitScore surfaces the vector similarity when present (it is the
// calibrated 0-1 signal); keyword-only hits fall back to the RRF score.
func hitScore(f *fusedHit) float64 {
	if f.vecRank > 0 {
		return f.vecScore
	}
	return f.rrfScore
}

// FetchDocument loads one document by id.
func (a *storageAdapter) FetchDocument(ctx context.Context, id string) (*document.Document, error) {
	return a.documents.Get(ctx, id)
}

// FetchChildren loads a document's direct children.
func (a *storageAdapter) FetchChildren(ctx context.Context, id string) ([]*document.Document, error) {
	return a.documents.Children(ctx, id)
}

// ListByType lists all documents of one kind.
func (a *storageAdapter) ListByType(ctx context.Context, tenant, repo string, docType document.Type) ([]*document.Document, error) {
	return a.documents.ByType(ctx, tenant, repo, docType)
}

// Close closes the document store and the keyword index, reporting the
// first failure; the vector store has no close step.
func (a *storageAdapter) Close() error {
	err := a.documents.Close()
	if kerr := a.keyword.Close(); err == nil {
		err = kerr
	}
	return err
}
