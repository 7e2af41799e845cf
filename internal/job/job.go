// Package job provides the orchestrator: a per-tenant serialized job
// queue with a cross-tenant worker pool, progress reporting at file
// boundaries, and cooperative cancellation.
package job

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbhalerao/codesmriti/internal/ingest"
)

// Kind is the ingestion mode. Both kinds run the same reconciling
// pipeline and neither clears the index; against an empty index every
// file reconciles as new.
type Kind string

const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
)

// State is the job lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Job is one ingestion request for (tenant, repo).
type Job struct {
	ID       string
	TenantID string
	RepoID   string
	Kind     Kind

	// RootDir is the repository checkout to ingest.
	RootDir string

	mu       sync.RWMutex
	state    State
	err      string
	created  time.Time
	started  time.Time
	finished time.Time

	progress *ingest.Progress
	cancel   func()
}

// NewJob creates a queued job.
func NewJob(tenant, repo, rootDir string, kind Kind) *Job {
	if kind == "" {
		kind = KindIncremental
	}
	return &Job{
		ID:       uuid.NewString(),
		TenantID: tenant,
		RepoID:   repo,
		Kind:     kind,
		RootDir:  rootDir,
		state:    StateQueued,
		created:  time.Now(),
		progress: ingest.NewProgress(),
	}
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Err returns the failure message, empty unless failed.
func (j *Job) Err() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Progress returns the live progress tracker.
func (j *Job) Progress() *ingest.Progress { return j.progress }

// Snapshot is the externally visible job state.
type Snapshot struct {
	ID       string          `json:"id"`
	TenantID string          `json:"tenant_id"`
	RepoID   string          `json:"repo_id"`
	Kind     Kind            `json:"kind"`
	State    State           `json:"state"`
	Error    string          `json:"error,omitempty"`
	Created  time.Time       `json:"created_at"`
	Progress ingest.Snapshot `json:"progress"`
}

// Snapshot captures the job for API responses.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Snapshot{
		ID:       j.ID,
		TenantID: j.TenantID,
		RepoID:   j.RepoID,
		Kind:     j.Kind,
		State:    j.state,
		Error:    j.err,
		Created:  j.created,
		Progress: j.progress.Snapshot(),
	}
}

func (j *Job) setRunning(cancel func()) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateQueued {
		return false
	}
	j.state = StateRunning
	j.started = time.Now()
	j.cancel = cancel
	return true
}

func (j *Job) finish(state State, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	// A cancel request always wins; the pipeline error it provokes is
	// not a failure.
	if j.state == StateCancelled {
		return
	}
	j.state = state
	j.err = errMsg
	j.finished = time.Now()
	j.cancel = nil
}

// Cancel requests cooperative cancellation. Queued jobs cancel
// immediately; running jobs finish their current file and exit at the
// next checkpoint.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.state {
	case StateQueued:
		j.state = StateCancelled
		j.finished = time.Now()
		return true
	case StateRunning:
		j.state = StateCancelled
		if j.cancel != nil {
			j.cancel()
		}
		return true
	default:
		return false
	}
}
