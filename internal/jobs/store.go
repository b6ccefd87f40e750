package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/errandhq/errand/pkg/types"
)

// ErrJobNotFound is returned by store mutations that reference a job ID
// the store does not hold.
var ErrJobNotFound = errors.New("job not found")

// DefaultMaxAttempts bounds job retries when the enqueue options leave
// MaxAttempts unset.
const DefaultMaxAttempts = 3

// EnqueueOptions configures a single enqueue call. Zero values fall back
// to queue defaults.
type EnqueueOptions struct {
	// Delay postpones the first execution: nextRunAt = now + Delay.
	Delay time.Duration

	// MaxAttempts caps executions before the job goes dead (default 3).
	MaxAttempts int

	// Backoff selects the retry delay curve (default exponential, 1s base).
	Backoff types.BackoffPolicy
}

func (o EnqueueOptions) withDefaults() EnqueueOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff.Type == "" {
		o.Backoff.Type = types.BackoffExponential
	}
	if o.Backoff.BaseDelay <= 0 {
		o.Backoff.BaseDelay = time.Second
	}
	return o
}

// JobStore is the durable backing for the job queue. Implementations must
// make AcquireDue's PENDING→ACTIVE transition exclusive: a single job is
// never claimed by two workers concurrently.
type JobStore interface {
	// Enqueue creates a PENDING job due at now + opts.Delay.
	Enqueue(ctx context.Context, queue string, payload []byte, opts EnqueueOptions) (*types.Job, error)

	// AcquireDue atomically claims up to limit due PENDING jobs in
	// nextRunAt ascending order, transitioning each to ACTIVE.
	AcquireDue(ctx context.Context, queue string, now time.Time, limit int) ([]*types.Job, error)

	// MarkCompleted transitions an ACTIVE job to COMPLETED (terminal).
	MarkCompleted(ctx context.Context, jobID string) error

	// MarkFailed records a failed attempt and returns the job to PENDING
	// with the given due time.
	MarkFailed(ctx context.Context, jobID string, attempts int, lastError string, nextRunAt time.Time) error

	// MarkDead transitions a job to DEAD (terminal, retained for
	// inspection) after its attempts are exhausted.
	MarkDead(ctx context.Context, jobID string, attempts int, lastError string) error

	// RequeueStuck returns ACTIVE jobs to PENDING. Called at startup to
	// recover jobs orphaned by a previous crash; the re-run this causes
	// is the at-least-once contract at work.
	RequeueStuck(ctx context.Context, queue string) (int, error)

	// Metrics returns job counts by state for one queue, or for all
	// queues combined when queue is empty. Read-only.
	Metrics(ctx context.Context, queue string) (types.QueueMetrics, error)

	// Close releases the store's resources.
	Close() error
}
