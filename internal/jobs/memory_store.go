package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/errandhq/errand/pkg/types"
)

// MemoryStore is an in-process JobStore used for tests and for deployments
// that accept losing queued work on restart. All operations are guarded by
// a single mutex, which also makes the PENDING→ACTIVE claim exclusive.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*types.Job
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*types.Job)}
}

// Enqueue creates a PENDING job due at now + opts.Delay.
func (s *MemoryStore) Enqueue(ctx context.Context, queue string, payload []byte, opts EnqueueOptions) (*types.Job, error) {
	opts = opts.withDefaults()
	now := time.Now()

	job := &types.Job{
		ID:          uuid.New().String(),
		QueueName:   queue,
		Payload:     append([]byte(nil), payload...),
		MaxAttempts: opts.MaxAttempts,
		NextRunAt:   now.Add(opts.Delay),
		Backoff:     opts.Backoff,
		State:       types.JobPending,
		CreatedAt:   now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return copyJob(job), nil
}

// AcquireDue claims up to limit due PENDING jobs, earliest due time first.
func (s *MemoryStore) AcquireDue(ctx context.Context, queue string, now time.Time, limit int) ([]*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*types.Job
	for _, job := range s.jobs {
		if job.QueueName == queue && job.State == types.JobPending && !job.NextRunAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*types.Job, 0, len(due))
	for _, job := range due {
		job.State = types.JobActive
		claimed = append(claimed, copyJob(job))
	}
	return claimed, nil
}

// MarkCompleted transitions an ACTIVE job to COMPLETED.
func (s *MemoryStore) MarkCompleted(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now()
	job.State = types.JobCompleted
	job.CompletedAt = &now
	return nil
}

// MarkFailed records a failed attempt and returns the job to PENDING.
func (s *MemoryStore) MarkFailed(ctx context.Context, jobID string, attempts int, lastError string, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Attempts = attempts
	job.LastError = lastError
	if nextRunAt.After(job.NextRunAt) {
		job.NextRunAt = nextRunAt
	}
	job.State = types.JobPending
	return nil
}

// MarkDead transitions a job to DEAD, retained for inspection.
func (s *MemoryStore) MarkDead(ctx context.Context, jobID string, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Attempts = attempts
	job.LastError = lastError
	job.State = types.JobDead
	return nil
}

// RequeueStuck returns ACTIVE jobs to PENDING.
func (s *MemoryStore) RequeueStuck(ctx context.Context, queue string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, job := range s.jobs {
		if job.State == types.JobActive && (queue == "" || job.QueueName == queue) {
			job.State = types.JobPending
			count++
		}
	}
	return count, nil
}

// Metrics returns job counts by state.
func (s *MemoryStore) Metrics(ctx context.Context, queue string) (types.QueueMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m types.QueueMetrics
	for _, job := range s.jobs {
		if queue != "" && job.QueueName != queue {
			continue
		}
		switch job.State {
		case types.JobPending:
			m.Pending++
		case types.JobActive:
			m.Active++
		case types.JobCompleted:
			m.Completed++
		case types.JobDead:
			m.Dead++
		}
	}
	return m, nil
}

// Get returns a copy of a job by ID, for tests and inspection.
func (s *MemoryStore) Get(jobID string) (*types.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	return copyJob(job), true
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func copyJob(job *types.Job) *types.Job {
	c := *job
	c.Payload = append([]byte(nil), job.Payload...)
	return &c
}
