package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kbhalerao/codesmriti/internal/document"
	"github.com/kbhalerao/codesmriti/internal/embed"
	"github.com/kbhalerao/codesmriti/internal/errors"
	"github.com/kbhalerao/codesmriti/internal/gitrepo"
	"github.com/kbhalerao/codesmriti/internal/store"
)

// minSummaryBytes drops degenerate hits whose summary carries no
// information.
const minSummaryBytes = 50

// Config tunes the engine.
type Config struct {
	// Oversample multiplies the limit to form the kNN k.
	Oversample int

	// PreviewChars truncates summaries in preview mode.
	PreviewChars int

	// DefaultLimit applies when a request has none.
	DefaultLimit int

	// MaxLimit caps any request.
	MaxLimit int

	// FetchByteCap bounds one get_file response.
	FetchByteCap int
}

// CheckoutOpener resolves the on-disk checkout of a (tenant, repo);
// get_file reads source from there, never from documents.
type CheckoutOpener func(tenant, repo string) (*gitrepo.Checkout, error)

// Engine answers search and navigation requests. It reads only from
// the storage adapter and the on-disk checkouts.
type Engine struct {
	adapter    store.Adapter
	encoder    *embed.Encoder
	classifier *IntentClassifier
	checkouts  CheckoutOpener
	config     Config
}

// New creates the engine.
func New(adapter store.Adapter, encoder *embed.Encoder, checkouts CheckoutOpener, cfg Config) *Engine {
	if cfg.Oversample <= 0 {
		cfg.Oversample = 2
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = 200
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.FetchByteCap <= 0 {
		cfg.FetchByteCap = 64 * 1024
	}
	return &Engine{
		adapter:    adapter,
		encoder:    encoder,
		classifier: NewIntentClassifier(),
		checkouts:  checkouts,
		config:     cfg,
	}
}

// Search runs the full retrieval pipeline: intent classification,
// query embedding, pre-filtered hybrid search, defensive post-filter,
// and preview truncation.
func (e *Engine) Search(ctx context.Context, req *Request) ([]*Hit, error) {
	if req.TenantID == "" {
		return nil, errors.New(errors.ErrCodeUnauthenticated, "search requires a tenant", nil)
	}
	if strings.TrimSpace(req.QueryText) == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "query text is empty", nil)
	}

	level := req.Level
	if level == "" {
		level = e.classifier.Classify(req.QueryText)
	}
	if !level.Valid() {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown level %q", level), nil)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}
	if limit > e.config.MaxLimit {
		limit = e.config.MaxLimit
	}

	queryVector, err := e.encoder.EncodeQuery(ctx, req.QueryText)
	if err != nil {
		return nil, err
	}

	hybridReq := &store.HybridRequest{
		TenantID:    req.TenantID,
		RepoID:      req.RepoFilter,
		Type:        level.DocType(),
		QueryVector: queryVector,
		QueryText:   req.QueryText,
		K:           limit * e.config.Oversample,
		Limit:       limit * e.config.Oversample,
	}

	raw, err := e.adapter.HybridSearch(ctx, hybridReq)
	if err != nil {
		// Typed non-retryable errors (bad input, missing index) pass
		// through; anything else is treated as transient and retried
		// once before surfacing the typed search error.
		var typed *errors.Error
		if errors.As(err, &typed) && !typed.Retryable {
			return nil, err
		}
		raw, err = e.adapter.HybridSearch(ctx, hybridReq)
		if err != nil {
			slog.Warn("hybrid search failed after retry", slog.String("error", err.Error()))
			return nil, errors.ErrSearchUnavailable
		}
	}

	hits := e.postFilter(raw, req.TenantID, level.DocType(), limit)

	if req.PreviewMode {
		for _, h := range hits {
			h.Document.SummaryText = preview(h.Document.SummaryText, e.config.PreviewChars)
		}
	}
	return hits, nil
}

// postFilter defensively re-checks type and tenant agreement, drops
// short summaries, and caps the result count. The store pre-filters
// already; this guards against pre-filter anomalies.
func (e *Engine) postFilter(raw []*store.Hit, tenant string, docType document.Type, limit int) []*Hit {
	hits := make([]*Hit, 0, limit)
	for _, h := range raw {
		if h.Document == nil {
			continue
		}
		if h.Document.TenantID != tenant || h.Document.Type != docType {
			slog.Warn("post-filter dropped mismatched hit",
				slog.String("id", h.Document.ID))
			continue
		}
		if len(h.Document.SummaryText) < minSummaryBytes {
			continue
		}
		// Hits carry summaries and provenance, not vectors.
		h.Document.Embedding = nil
		hits = append(hits, &Hit{Document: h.Document, Score: h.Score})
		if len(hits) >= limit {
			break
		}
	}
	return hits
}

// ListRepos lists the tenant's repositories from repo_summary docs.
func (e *Engine) ListRepos(ctx context.Context, tenant string) ([]*RepoInfo, error) {
	if tenant == "" {
		return nil, errors.New(errors.ErrCodeUnauthenticated, "list_repos requires a tenant", nil)
	}

	docs, err := e.adapter.ListByType(ctx, tenant, "", document.TypeRepoSummary)
	if err != nil {
		return nil, err
	}

	repos := make([]*RepoInfo, 0, len(docs))
	for _, d := range docs {
		repos = append(repos, &RepoInfo{
			RepoID:    d.RepoID,
			DocCounts: d.DocCounts,
			Languages: d.Languages,
		})
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].RepoID < repos[j].RepoID })
	return repos, nil
}

// ExploreStructure synthesizes a directory listing from module_summary
// and file_index documents under path.
func (e *Engine) ExploreStructure(ctx context.Context, tenant, repo, path string) (*Structure, error) {
	if tenant == "" {
		return nil, errors.New(errors.ErrCodeUnauthenticated, "explore_structure requires a tenant", nil)
	}
	path = strings.Trim(path, "/")

	structure := &Structure{Directories: []string{}, Files: []StructureEntry{}}

	if module, err := e.adapter.FetchDocument(ctx, document.ModuleDocID(tenant, repo, path)); err != nil {
		return nil, err
	} else if module != nil {
		structure.Summary = module.SummaryText
	}

	modules, err := e.adapter.ListByType(ctx, tenant, repo, document.TypeModuleSummary)
	if err != nil {
		return nil, err
	}
	for _, m := range modules {
		if parent, ok := document.ParentModulePath(m.Path); ok && parent == path {
			structure.Directories = append(structure.Directories, m.Path)
		}
	}

	files, err := e.adapter.ListByType(ctx, tenant, repo, document.TypeFileIndex)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if document.ModulePathOf(f.Path) != path {
			continue
		}
		structure.Files = append(structure.Files, StructureEntry{
			Path:      f.Path,
			Language:  f.Language,
			LineCount: f.LineCount,
		})
	}

	sort.Strings(structure.Directories)
	sort.Slice(structure.Files, func(i, j int) bool {
		return structure.Files[i].Path < structure.Files[j].Path
	})
	return structure, nil
}

// GetFile reads a source span from the on-disk checkout. Raw code is
// never stored in documents; this is the only code-fetch path.
func (e *Engine) GetFile(ctx context.Context, tenant, repo, path string, startLine, endLine int) (*FileContent, error) {
	if tenant == "" {
		return nil, errors.New(errors.ErrCodeUnauthenticated, "get_file requires a tenant", nil)
	}
	if e.checkouts == nil {
		return nil, errors.New(errors.ErrCodeRepoMissing, "no checkout access configured", nil)
	}

	checkout, err := e.checkouts(tenant, repo)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRepoMissing, err)
	}

	slice, err := checkout.ReadSlice(path, startLine, endLine, e.config.FetchByteCap)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}

	language := ""
	if doc, err := e.adapter.FetchDocument(ctx, document.FileDocID(tenant, repo, path)); err == nil && doc != nil {
		language = doc.Language
	}

	return &FileContent{
		Code:       slice.Code,
		TotalLines: slice.TotalLines,
		Language:   language,
		Truncated:  slice.Truncated,
	}, nil
}

func preview(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	clipped := text[:maxChars]
	if idx := strings.LastIndexByte(clipped, ' '); idx > maxChars/2 {
		clipped = clipped[:idx]
	}
	return clipped + "…"
}
