// Package server exposes the job API over HTTP: submit, inspect, list,
// and cancel ingestion jobs, plus the search and navigation endpoints.
// Every route except /health sits behind the tenant bearer-token
// middleware.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kbhalerao/codesmriti/internal/auth"
	"github.com/kbhalerao/codesmriti/internal/errors"
	"github.com/kbhalerao/codesmriti/internal/gitrepo"
	"github.com/kbhalerao/codesmriti/internal/job"
	"github.com/kbhalerao/codesmriti/internal/search"
)

// Server is the HTTP surface.
type Server struct {
	queue    *job.Queue
	engine   *search.Engine
	verifier *auth.Verifier

	// checkoutDir is the root under which (tenant, repo) working
	// trees live.
	checkoutDir string
}

// New creates the server.
func New(queue *job.Queue, engine *search.Engine, verifier *auth.Verifier, checkoutDir string) *Server {
	return &Server{
		queue:       queue,
		engine:      engine,
		verifier:    verifier,
		checkoutDir: checkoutDir,
	}
}

// CheckoutPath resolves the working tree of a (tenant, repo). The repo
// id's slash becomes a directory separator.
func (s *Server) CheckoutPath(tenant, repo string) string {
	return filepath.Join(s.checkoutDir, tenant, filepath.FromSlash(repo))
}

// CheckoutOpener adapts CheckoutPath for the search engine.
func (s *Server) CheckoutOpener() search.CheckoutOpener {
	return func(tenant, repo string) (*gitrepo.Checkout, error) {
		return gitrepo.Open(s.CheckoutPath(tenant, repo))
	}
}

// Router builds the chi router with auth applied to every route except
// /health.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.verifier.Middleware)

		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Delete("/jobs/{id}", s.handleCancelJob)

		r.Post("/search", s.handleSearch)
		r.Get("/repos", s.handleListRepos)
		r.Get("/repos/structure", s.handleExploreStructure)
		r.Get("/repos/file", s.handleGetFile)
	})

	return r
}

type createJobRequest struct {
	RepoID string `json:"repo_id"`
	Kind   string `json:"kind,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFromContext(r.Context())

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RepoID == "" {
		writeError(w, http.StatusBadRequest, "repo_id is required")
		return
	}

	j := job.NewJob(tenant, req.RepoID, s.CheckoutPath(tenant, req.RepoID), job.Kind(req.Kind))
	if err := s.queue.Submit(j); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, j.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFromContext(r.Context())
	writeJSON(w, http.StatusOK, s.queue.List(tenant))
}

// jobForTenant loads a job and enforces tenant ownership; cross-tenant
// ids read as not found.
func (s *Server) jobForTenant(r *http.Request) *job.Job {
	tenant, _ := auth.TenantFromContext(r.Context())
	j := s.queue.Get(chi.URLParam(r, "id"))
	if j == nil || j.TenantID != tenant {
		return nil
	}
	return j
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j := s.jobForTenant(r)
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j.Snapshot())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	j := s.jobForTenant(r)
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !j.Cancel() {
		writeError(w, http.StatusConflict, "job is not cancellable")
		return
	}
	writeJSON(w, http.StatusOK, j.Snapshot())
}

type searchRequest struct {
	QueryText   string `json:"query_text"`
	Level       string `json:"level,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	RepoFilter  string `json:"repo_filter,omitempty"`
	PreviewMode bool   `json:"preview_mode,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFromContext(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hits, err := s.engine.Search(r.Context(), &search.Request{
		TenantID:    tenant,
		QueryText:   req.QueryText,
		Level:       search.Level(req.Level),
		Limit:       req.Limit,
		RepoFilter:  req.RepoFilter,
		PreviewMode: req.PreviewMode,
	})
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFromContext(r.Context())
	repos, err := s.engine.ListRepos(r.Context(), tenant)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) handleExploreStructure(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFromContext(r.Context())
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		writeError(w, http.StatusBadRequest, "repo is required")
		return
	}

	structure, err := s.engine.ExploreStructure(r.Context(), tenant, repo, r.URL.Query().Get("path"))
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, structure)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFromContext(r.Context())
	q := r.URL.Query()
	repo, path := q.Get("repo"), q.Get("path")
	if repo == "" || path == "" {
		writeError(w, http.StatusBadRequest, "repo and path are required")
		return
	}

	startLine, _ := strconv.Atoi(q.Get("start_line"))
	endLine, _ := strconv.Atoi(q.Get("end_line"))

	content, err := s.engine.GetFile(r.Context(), tenant, repo, path, startLine, endLine)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// writeSearchError maps typed engine errors onto HTTP statuses.
func writeSearchError(w http.ResponseWriter, err error) {
	switch errors.KindOf(err) {
	case errors.KindAuth:
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.KindInvariant:
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.KindSearch:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.KindIO:
		writeError(w, http.StatusNotFound, err.Error())
	default:
		slog.Warn("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
