package job

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kbhalerao/codesmriti/internal/ingest"
)

// Runner executes one ingestion run; satisfied by *ingest.Pipeline.
type Runner interface {
	Run(ctx context.Context, tenant, repo, rootDir string, progress *ingest.Progress) (*ingest.Result, error)
}

// Config tunes the queue.
type Config struct {
	// WorkerPoolSize bounds jobs running concurrently across tenants.
	WorkerPoolSize int

	// QueueCapacity bounds pending jobs; Submit rejects beyond it.
	QueueCapacity int
}

// Queue serializes jobs per tenant and runs them across tenants on a
// bounded worker pool.
type Queue struct {
	runner Runner
	config Config

	mu      sync.Mutex
	jobs    map[string]*Job   // by job id
	pending map[string][]*Job // per-tenant FIFO
	active  map[string]bool   // tenants with a running job
	total   int               // queued jobs across tenants

	work     chan struct{}
	shutdown chan struct{}
	done     sync.WaitGroup
}

// NewQueue creates and starts the queue workers.
func NewQueue(runner Runner, cfg Config) *Queue {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}

	q := &Queue{
		runner:   runner,
		config:   cfg,
		jobs:     make(map[string]*Job),
		pending:  make(map[string][]*Job),
		active:   make(map[string]bool),
		work:     make(chan struct{}, cfg.QueueCapacity),
		shutdown: make(chan struct{}),
	}

	for i := 0; i < cfg.WorkerPoolSize; i++ {
		q.done.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues a job. Jobs for the same tenant run one at a time in
// submission order.
func (q *Queue) Submit(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.shutdown:
		return fmt.Errorf("queue is shut down")
	default:
	}

	if q.total >= q.config.QueueCapacity {
		return fmt.Errorf("job queue is full (%d pending)", q.total)
	}

	q.jobs[job.ID] = job
	q.pending[job.TenantID] = append(q.pending[job.TenantID], job)
	q.total++

	select {
	case q.work <- struct{}{}:
	default:
	}
	return nil
}

// Get returns a job by id, nil when unknown.
func (q *Queue) Get(id string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[id]
}

// List returns the tenant's jobs, newest first.
func (q *Queue) List(tenant string) []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Snapshot
	for _, j := range q.jobs {
		if j.TenantID == tenant {
			out = append(out, j.Snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out
}

// Cancel requests cancellation of a job by id.
func (q *Queue) Cancel(id string) bool {
	job := q.Get(id)
	if job == nil {
		return false
	}
	return job.Cancel()
}

// Close stops accepting jobs and waits for running jobs to finish
// their current work.
func (q *Queue) Close() {
	q.mu.Lock()
	select {
	case <-q.shutdown:
		q.mu.Unlock()
		return
	default:
	}
	close(q.shutdown)
	q.mu.Unlock()

	q.done.Wait()
}

// next pops a runnable job: the oldest queued job of any tenant that
// has no job currently running.
func (q *Queue) next() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		popped := false
		for tenant, jobs := range q.pending {
			if q.active[tenant] || len(jobs) == 0 {
				continue
			}

			job := jobs[0]
			q.pending[tenant] = jobs[1:]
			q.total--
			popped = true

			// Jobs cancelled while queued are dropped here; rescan so
			// the tenant's next job still gets picked up.
			if job.State() != StateQueued {
				continue
			}

			q.active[tenant] = true
			return job
		}
		if !popped {
			return nil
		}
	}
}

func (q *Queue) release(tenant string) {
	q.mu.Lock()
	q.active[tenant] = false
	hasMore := len(q.pending[tenant]) > 0
	q.mu.Unlock()

	if hasMore {
		select {
		case q.work <- struct{}{}:
		default:
		}
	}
}

func (q *Queue) worker() {
	defer q.done.Done()
	for {
		select {
		case <-q.shutdown:
			return
		case <-q.work:
		}

		for {
			job := q.next()
			if job == nil {
				break
			}
			q.execute(job)
			q.release(job.TenantID)
		}
	}
}

// execute runs one job to completion.
func (q *Queue) execute(job *Job) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !job.setRunning(cancel) {
		return
	}

	slog.Info("job started",
		slog.String("job", job.ID),
		slog.String("tenant", job.TenantID),
		slog.String("repo", job.RepoID),
		slog.String("kind", string(job.Kind)))

	result, err := q.runner.Run(ctx, job.TenantID, job.RepoID, job.RootDir, job.progress)
	switch {
	case err == nil:
		job.finish(StateCompleted, "")
		slog.Info("job completed",
			slog.String("job", job.ID),
			slog.Int("files", result.Files),
			slog.Int("upserted", result.Upserted))
	case ctx.Err() != nil:
		job.finish(StateCancelled, "")
		slog.Info("job cancelled", slog.String("job", job.ID))
	default:
		job.finish(StateFailed, err.Error())
		slog.Warn("job failed",
			slog.String("job", job.ID),
			slog.String("error", err.Error()))
	}
}
