package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kbhalerao/codesmriti/internal/document"
)

// DocumentStore persists documents in SQLite. It is the source of
// truth; the adapter writes it before the search projections.
type DocumentStore struct {
	db *sql.DB
}

const documentSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	type TEXT NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	summary_text TEXT NOT NULL DEFAULT '',
	embedding BLOB,
	parent_id TEXT NOT NULL DEFAULT '',
	children_ids TEXT NOT NULL DEFAULT '[]',
	content_hash TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	line_count INTEGER NOT NULL DEFAULT 0,
	file_commit TEXT NOT NULL DEFAULT '',
	symbol_name TEXT NOT NULL DEFAULT '',
	symbol_kind TEXT NOT NULL DEFAULT '',
	start_line INTEGER NOT NULL DEFAULT 0,
	end_line INTEGER NOT NULL DEFAULT 0,
	parent_class TEXT NOT NULL DEFAULT '',
	languages TEXT NOT NULL DEFAULT '[]',
	doc_counts TEXT NOT NULL DEFAULT '{}',
	aggregation_truncated INTEGER NOT NULL DEFAULT 0,
	summary_degraded INTEGER NOT NULL DEFAULT 0,
	parse_degraded INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_tenant_repo_type ON documents(tenant_id, repo_id, type);
CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent_id);
CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(tenant_id, repo_id, path);
`

// NewDocumentStore opens (or creates) the store at path. ":memory:" is
// supported for tests.
func NewDocumentStore(path string) (*DocumentStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer; WAL keeps readers unblocked during ingestion.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if _, err := db.Exec(documentSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DocumentStore{db: db}, nil
}

// Close closes the database.
func (s *DocumentStore) Close() error { return s.db.Close() }

const upsertSQL = `
INSERT INTO documents (
	id, tenant_id, repo_id, type, path, summary_text, embedding, parent_id,
	children_ids, content_hash, language, line_count, file_commit,
	symbol_name, symbol_kind, start_line, end_line, parent_class,
	languages, doc_counts, aggregation_truncated, summary_degraded,
	parse_degraded, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	summary_text = excluded.summary_text,
	embedding = excluded.embedding,
	parent_id = excluded.parent_id,
	children_ids = excluded.children_ids,
	content_hash = excluded.content_hash,
	language = excluded.language,
	line_count = excluded.line_count,
	file_commit = excluded.file_commit,
	symbol_name = excluded.symbol_name,
	symbol_kind = excluded.symbol_kind,
	start_line = excluded.start_line,
	end_line = excluded.end_line,
	parent_class = excluded.parent_class,
	languages = excluded.languages,
	doc_counts = excluded.doc_counts,
	aggregation_truncated = excluded.aggregation_truncated,
	summary_degraded = excluded.summary_degraded,
	parse_degraded = excluded.parse_degraded,
	updated_at = excluded.updated_at
`

// Upsert writes one document, creating or replacing by id. CreatedAt is
// preserved on replace by the conflict clause leaving it untouched.
func (s *DocumentStore) Upsert(ctx context.Context, d *document.Document) error {
	now := time.Now().UTC()
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	childrenJSON, _ := json.Marshal(sliceOrEmpty(d.ChildrenIDs))
	languagesJSON, _ := json.Marshal(sliceOrEmpty(d.Languages))
	countsJSON, _ := json.Marshal(mapOrEmpty(d.DocCounts))

	_, err := s.db.ExecContext(ctx, upsertSQL,
		d.ID, d.TenantID, d.RepoID, string(d.Type), d.Path, d.SummaryText,
		encodeVector(d.Embedding), d.ParentID, string(childrenJSON),
		d.ContentHash, d.Language, d.LineCount, d.FileCommit,
		d.SymbolName, string(d.SymbolKind), d.StartLine, d.EndLine,
		d.ParentClass, string(languagesJSON), string(countsJSON),
		boolToInt(d.AggregationTruncated), boolToInt(d.SummaryDegraded),
		boolToInt(d.ParseDegraded), createdAt, now,
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", d.ID, err)
	}
	return nil
}

// Get loads one document, nil when absent.
func (s *DocumentStore) Get(ctx context.Context, id string) (*document.Document, error) {
	rows, err := s.db.QueryContext(ctx, selectSQL+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Children loads the direct children of a document, ordered by id.
func (s *DocumentStore) Children(ctx context.Context, parentID string) ([]*document.Document, error) {
	rows, err := s.db.QueryContext(ctx, selectSQL+" WHERE parent_id = ? ORDER BY id", parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ByType loads every document of one kind for a tenant, optionally
// restricted to a repo, ordered by path then id.
func (s *DocumentStore) ByType(ctx context.Context, tenant, repo string, docType document.Type) ([]*document.Document, error) {
	query := selectSQL + " WHERE tenant_id = ? AND type = ?"
	args := []any{tenant, string(docType)}
	if repo != "" {
		query += " AND repo_id = ?"
		args = append(args, repo)
	}
	query += " ORDER BY path, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// FileCommits returns {path -> file_commit} for the repo in one query.
func (s *DocumentStore) FileCommits(ctx context.Context, tenant, repo string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, file_commit FROM documents WHERE tenant_id = ? AND repo_id = ? AND type = ?",
		tenant, repo, string(document.TypeFileIndex))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	commits := make(map[string]string)
	for rows.Next() {
		var path, commit string
		if err := rows.Scan(&path, &commit); err != nil {
			return nil, err
		}
		commits[path] = commit
	}
	return commits, rows.Err()
}

// MutateEmbedding replaces only the embedding column of one document.
func (s *DocumentStore) MutateEmbedding(ctx context.Context, id string, vector []float32) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET embedding = ?, updated_at = ? WHERE id = ?",
		encodeVector(vector), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	return nil
}

// DeleteByFile removes a file_index document and its symbol children,
// returning the deleted ids so search projections can follow.
func (s *DocumentStore) DeleteByFile(ctx context.Context, tenant, repo, path string) ([]string, error) {
	fileID := document.FileDocID(tenant, repo, path)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM documents WHERE id = ? OR parent_id = ?", fileID, fileID)
	if err != nil {
		return nil, err
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE id = ? OR parent_id = ?", fileID, fileID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteByIDs removes documents by id.
func (s *DocumentStore) DeleteByIDs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByRepo removes every document of the repo, returning the ids.
func (s *DocumentStore) DeleteByRepo(ctx context.Context, tenant, repo string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM documents WHERE tenant_id = ? AND repo_id = ?", tenant, repo)
	if err != nil {
		return nil, err
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE tenant_id = ? AND repo_id = ?", tenant, repo)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

const selectSQL = `
SELECT id, tenant_id, repo_id, type, path, summary_text, embedding,
	parent_id, children_ids, content_hash, language, line_count,
	file_commit, symbol_name, symbol_kind, start_line, end_line,
	parent_class, languages, doc_counts, aggregation_truncated,
	summary_degraded, parse_degraded, created_at, updated_at
FROM documents`

func scanDocuments(rows *sql.Rows) ([]*document.Document, error) {
	var docs []*document.Document
	for rows.Next() {
		var (
			d             document.Document
			docType       string
			symbolKind    string
			embedding     []byte
			childrenJSON  string
			languagesJSON string
			countsJSON    string
			truncated     int
			degraded      int
			parseDegraded int
		)
		err := rows.Scan(&d.ID, &d.TenantID, &d.RepoID, &docType, &d.Path,
			&d.SummaryText, &embedding, &d.ParentID, &childrenJSON,
			&d.ContentHash, &d.Language, &d.LineCount, &d.FileCommit,
			&d.SymbolName, &symbolKind, &d.StartLine, &d.EndLine,
			&d.ParentClass, &languagesJSON, &countsJSON, &truncated,
			&degraded, &parseDegraded, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return nil, err
		}

		d.Type = document.Type(docType)
		d.SymbolKind = document.SymbolKind(symbolKind)
		d.Embedding = decodeVector(embedding)
		d.AggregationTruncated = truncated != 0
		d.SummaryDegraded = degraded != 0
		d.ParseDegraded = parseDegraded != 0
		_ = json.Unmarshal([]byte(childrenJSON), &d.ChildrenIDs)
		_ = json.Unmarshal([]byte(languagesJSON), &d.Languages)
		_ = json.Unmarshal([]byte(countsJSON), &d.DocCounts)

		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// encodeVector packs float32s little-endian; nil stays nil.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func mapOrEmpty(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
