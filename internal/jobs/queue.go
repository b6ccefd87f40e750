package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/errandhq/errand/pkg/types"
)

// ProcessorFunc executes one job. Delivery is at-least-once, so the
// function must be idempotent for a given payload. A returned error counts
// as a failed attempt; the retry/backoff state machine takes it from there
// and the error never propagates past dead-lettering.
type ProcessorFunc func(ctx context.Context, job *types.Job) error

// QueueConfig tunes one named queue's worker pool.
type QueueConfig struct {
	// Concurrency is the number of jobs the queue may run in parallel
	// (default 4).
	Concurrency int

	// PollInterval is how often the queue looks for newly due jobs
	// (default 100ms).
	PollInterval time.Duration

	// RatePerSecond limits job starts; 0 disables the limiter. Retries
	// pass through the same limiter as fresh jobs, so a flapping job
	// cannot starve the rest of the queue's budget.
	RatePerSecond float64
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	return c
}

// Queue runs one named queue's poll/execute loop over a JobStore.
// Distinct jobs run in parallel up to the configured concurrency; a single
// job is never run by two workers because the store's claim is exclusive.
type Queue struct {
	name      string
	store     JobStore
	processor ProcessorFunc
	config    QueueConfig
	limiter   *rate.Limiter

	cancel   context.CancelFunc
	inflight sync.WaitGroup
	done     chan struct{}
}

// newQueue wires a queue; Start launches the loop.
func newQueue(name string, store JobStore, processor ProcessorFunc, config QueueConfig) *Queue {
	config = config.withDefaults()
	q := &Queue{
		name:      name,
		store:     store,
		processor: processor,
		config:    config,
		done:      make(chan struct{}),
	}
	if config.RatePerSecond > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), 1)
	}
	return q
}

// Start launches the queue's poll loop.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	go q.loop(ctx)
	log.Printf("jobs: queue %s started (concurrency=%d)", q.name, q.config.Concurrency)
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.done)

	slots := make(chan struct{}, q.config.Concurrency)
	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Claim at most as many jobs as there are free worker slots.
		free := q.config.Concurrency - len(slots)
		if free == 0 {
			continue
		}

		claimed, err := q.store.AcquireDue(ctx, q.name, time.Now(), free)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("ERROR: jobs: queue %s failed to acquire due jobs: %v", q.name, err)
			}
			continue
		}

		for i, job := range claimed {
			if q.limiter != nil {
				if err := q.limiter.Wait(ctx); err != nil {
					// Shutdown while throttled: put the whole
					// remaining batch back.
					for _, held := range claimed[i:] {
						q.release(held)
					}
					return
				}
			}

			slots <- struct{}{}
			q.inflight.Add(1)
			go func(job *types.Job) {
				defer q.inflight.Done()
				defer func() { <-slots }()
				q.execute(ctx, job)
			}(job)
		}
	}
}

// execute runs one claimed job and applies the retry/backoff state machine
// to the outcome. Once ACTIVE a job runs to completion or failure; there
// is no mid-execution cancellation.
func (q *Queue) execute(ctx context.Context, job *types.Job) {
	err := q.run(ctx, job)

	// Store updates use a background context so a shutdown between
	// execution and bookkeeping cannot lose the outcome.
	dbCtx := context.Background()

	if err == nil {
		if mErr := q.store.MarkCompleted(dbCtx, job.ID); mErr != nil {
			log.Printf("ERROR: jobs: queue %s failed to mark %s completed: %v", q.name, job.ID, mErr)
		}
		return
	}

	job.Attempts++
	if job.Attempts >= job.MaxAttempts {
		log.Printf("WARNING: jobs: queue %s job %s dead after %d attempts: %v",
			q.name, job.ID, job.Attempts, err)
		if mErr := q.store.MarkDead(dbCtx, job.ID, job.Attempts, err.Error()); mErr != nil {
			log.Printf("ERROR: jobs: queue %s failed to mark %s dead: %v", q.name, job.ID, mErr)
		}
		return
	}

	retryAt := RetryAt(job, time.Now())
	log.Printf("jobs: queue %s job %s failed (attempt %d/%d), retrying at %s: %v",
		q.name, job.ID, job.Attempts, job.MaxAttempts, retryAt.Format(time.RFC3339), err)
	if mErr := q.store.MarkFailed(dbCtx, job.ID, job.Attempts, err.Error(), retryAt); mErr != nil {
		log.Printf("ERROR: jobs: queue %s failed to mark %s failed: %v", q.name, job.ID, mErr)
	}
}

// run invokes the processor with panic recovery: a panicking processor is
// a failed attempt, not a crashed worker.
func (q *Queue) run(ctx context.Context, job *types.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return q.processor(ctx, job)
}

// release returns an unexecuted claim to PENDING during shutdown.
func (q *Queue) release(job *types.Job) {
	if err := q.store.MarkFailed(context.Background(), job.ID, job.Attempts, "", job.NextRunAt); err != nil {
		log.Printf("WARNING: jobs: queue %s failed to release job %s: %v", q.name, job.ID, err)
	}
}

// Stop halts the poll loop and waits for in-flight jobs to drain, up to
// the timeout. Jobs still running after the timeout are left ACTIVE and
// will be recovered by RequeueStuck on the next start.
func (q *Queue) Stop(timeout time.Duration) {
	if q.cancel != nil {
		q.cancel()
	}
	<-q.done

	drained := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		log.Printf("jobs: queue %s drained", q.name)
	case <-time.After(timeout):
		log.Printf("WARNING: jobs: queue %s shutdown timeout, in-flight jobs left active", q.name)
	}
}
