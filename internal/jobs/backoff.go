// Package jobs provides durable, retryable execution of deferred work,
// partitioned into named queues so that backoff and concurrency policy
// can differ per work category.
//
// Delivery is at-least-once: a crash between executing a job and marking
// it completed causes a re-run, so every processor must be safe to execute
// more than once with the same payload.
package jobs

import (
	"time"

	"github.com/errandhq/errand/pkg/types"
)

// NextDelay computes the delay before the next retry after the given
// attempt count (1-based: attempt 1 is the first failed execution).
//
// Fixed policy: constant BaseDelay.
// Exponential policy: BaseDelay * 2^(attempt-1), so successive delays for
// attempts 1..4 with a 1s base are 1s, 2s, 4s, 8s.
func NextDelay(policy types.BackoffPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := policy.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	switch policy.Type {
	case types.BackoffFixed:
		return base
	case types.BackoffExponential:
		return base << uint(attempt-1)
	default:
		return base
	}
}

// RetryAt returns the next due time after a failed attempt. The result is
// never earlier than the job's current due time, keeping nextRunAt
// monotonically non-decreasing across retries.
func RetryAt(job *types.Job, now time.Time) time.Time {
	at := now.Add(NextDelay(job.Backoff, job.Attempts))
	if at.Before(job.NextRunAt) {
		return job.NextRunAt
	}
	return at
}
