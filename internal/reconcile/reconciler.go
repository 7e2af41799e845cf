// Package reconcile decides, per file, whether an ingestion run needs
// to re-summarize it. Reconciliation is file-granular: a file is fully
// reprocessed even when only one symbol changed, which keeps
// aggregation consistent and avoids partial-symbol lookups.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/kbhalerao/codesmriti/internal/store"
)

// Decision classifies one file against the stored index.
type Decision string

const (
	// DecisionNew means the path has no stored file_index.
	DecisionNew Decision = "new"

	// DecisionUpdated means the stored commit differs; the old
	// documents are cascade-deleted before re-summarization.
	DecisionUpdated Decision = "updated"

	// DecisionUnchanged means the commit matches; all chunks are
	// dropped and nothing is summarized.
	DecisionUnchanged Decision = "unchanged"
)

// Reconciler compares the working tree against stored file commits.
type Reconciler struct {
	adapter store.Adapter
	tenant  string
	repo    string

	stored map[string]string
	seen   map[string]bool
}

// New issues the one bulk read of stored commits for (tenant, repo).
func New(ctx context.Context, adapter store.Adapter, tenant, repo string) (*Reconciler, error) {
	stored, err := adapter.GetFileCommits(ctx, tenant, repo)
	if err != nil {
		return nil, err
	}
	return &Reconciler{
		adapter: adapter,
		tenant:  tenant,
		repo:    repo,
		stored:  stored,
		seen:    make(map[string]bool, len(stored)),
	}, nil
}

// Classify decides one file's fate given its current commit. For
// updated files the stale documents are cascade-deleted here, before
// any new chunk enters summarization.
func (r *Reconciler) Classify(ctx context.Context, path, currentCommit string) (Decision, error) {
	r.seen[path] = true

	storedCommit, ok := r.stored[path]
	if !ok {
		return DecisionNew, nil
	}
	if storedCommit == currentCommit {
		return DecisionUnchanged, nil
	}

	if err := r.adapter.DeleteByFile(ctx, r.tenant, r.repo, path); err != nil {
		return "", err
	}
	return DecisionUpdated, nil
}

// DeleteVanished cascade-deletes every stored file the walk never
// visited. Called once after the walk completes; returns the deleted
// paths.
func (r *Reconciler) DeleteVanished(ctx context.Context) ([]string, error) {
	var deleted []string
	for path := range r.stored {
		if r.seen[path] {
			continue
		}
		if err := r.adapter.DeleteByFile(ctx, r.tenant, r.repo, path); err != nil {
			return deleted, err
		}
		slog.Debug("deleted vanished file",
			slog.String("repo", r.repo), slog.String("path", path))
		deleted = append(deleted, path)
	}
	return deleted, nil
}

// StoredCount reports how many files the index knew before this run.
func (r *Reconciler) StoredCount() int { return len(r.stored) }
