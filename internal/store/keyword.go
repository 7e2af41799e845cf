package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/kbhalerao/codesmriti/internal/errors"
)

// filterAnalyzer is the keyword analyzer used for the predicate fields:
// a single tokenizer plus lowercasing, so a field value is one term.
const filterAnalyzer = "keyword_lower"

// summaryAnalyzer tokenizes summary text for the BM25 text-match leg.
const summaryAnalyzer = "summary_text"

// KeywordIndex wraps bleve for the keyword side of hybrid search: term
// predicates over type/tenant/repo plus scored text match on summaries.
type KeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// keywordDoc is the projection indexed per document.
type keywordDoc struct {
	Summary  string `json:"summary"`
	Type     string `json:"type"`
	TenantID string `json:"tenant_id"`
	RepoID   string `json:"repo_id"`
	Path     string `json:"path"`
}

// NewKeywordIndex opens or creates the index. Empty path builds an
// in-memory index for tests.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	mapping, err := buildIndexMapping()
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		idx, err = bleve.New(path, mapping)
	} else {
		idx, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	return &KeywordIndex{index: idx, path: path}, nil
}

func buildIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomAnalyzer(filterAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("define filter analyzer: %w", err)
	}

	if err := im.AddCustomAnalyzer(summaryAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("define summary analyzer: %w", err)
	}

	filterField := bleve.NewTextFieldMapping()
	filterField.Analyzer = filterAnalyzer
	filterField.Store = false
	filterField.IncludeInAll = false

	summaryField := bleve.NewTextFieldMapping()
	summaryField.Analyzer = summaryAnalyzer
	summaryField.Store = false
	summaryField.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("summary", summaryField)
	doc.AddFieldMappingsAt("type", filterField)
	doc.AddFieldMappingsAt("tenant_id", filterField)
	doc.AddFieldMappingsAt("repo_id", filterField)
	doc.AddFieldMappingsAt("path", filterField)

	im.DefaultMapping = doc
	return im, nil
}

// Index upserts one document projection.
func (k *KeywordIndex) Index(id, summary, docType, tenant, repo, path string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.index.Index(id, &keywordDoc{
		Summary:  summary,
		Type:     docType,
		TenantID: tenant,
		RepoID:   repo,
		Path:     path,
	})
}

// Delete removes documents by id.
func (k *KeywordIndex) Delete(ids []string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	batch := k.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return k.index.Batch(batch)
}

// KeywordResult is one scored keyword hit.
type KeywordResult struct {
	ID    string
	Score float64
}

// Search runs the keyword leg: the {type, tenant, repo?} term predicate
// conjoined with a text match on summaries. An empty queryText turns
// the request into a pure predicate scan.
func (k *KeywordIndex) Search(ctx context.Context, queryText, docType, tenant, repo string, limit int) ([]*KeywordResult, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		// Index missing at query time is a typed, non-retryable error.
		return nil, errors.ErrIndexUnavailable
	}

	typeQuery := bleve.NewTermQuery(strings.ToLower(docType))
	typeQuery.SetField("type")
	tenantQuery := bleve.NewTermQuery(strings.ToLower(tenant))
	tenantQuery.SetField("tenant_id")

	conjunction := bleve.NewConjunctionQuery(typeQuery, tenantQuery)

	if repo != "" {
		repoQuery := bleve.NewTermQuery(strings.ToLower(repo))
		repoQuery.SetField("repo_id")
		conjunction.AddQuery(repoQuery)
	}

	if queryText != "" {
		matchQuery := bleve.NewMatchQuery(queryText)
		matchQuery.SetField("summary")
		conjunction.AddQuery(matchQuery)
	}

	req := bleve.NewSearchRequestOptions(conjunction, limit, 0, false)
	result, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	hits := make([]*KeywordResult, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, &KeywordResult{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (k *KeywordIndex) Count() (uint64, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.index.DocCount()
}

// Close closes the index.
func (k *KeywordIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.index.Close()
}
