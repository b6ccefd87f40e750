package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/errandhq/errand/pkg/types"
)

func TestNextDelayExponential(t *testing.T) {
	policy := types.BackoffPolicy{Type: types.BackoffExponential, BaseDelay: 1000 * time.Millisecond}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
	}
	for attempt := 1; attempt <= 4; attempt++ {
		assert.Equal(t, want[attempt-1], NextDelay(policy, attempt), "attempt %d", attempt)
	}
}

func TestNextDelayFixed(t *testing.T) {
	policy := types.BackoffPolicy{Type: types.BackoffFixed, BaseDelay: 500 * time.Millisecond}
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, 500*time.Millisecond, NextDelay(policy, attempt))
	}
}

func TestNextDelayDefaultsForZeroValues(t *testing.T) {
	assert.Equal(t, time.Second, NextDelay(types.BackoffPolicy{}, 0))
	assert.Equal(t, time.Second, NextDelay(types.BackoffPolicy{Type: types.BackoffFixed}, 3))
}

func TestRetryAtNeverMovesBackward(t *testing.T) {
	now := time.Now()
	job := &types.Job{
		Attempts:  1,
		NextRunAt: now.Add(time.Hour), // job was scheduled far in the future
		Backoff:   types.BackoffPolicy{Type: types.BackoffFixed, BaseDelay: time.Second},
	}

	at := RetryAt(job, now)
	assert.Equal(t, job.NextRunAt, at, "retry time must not regress below the current due time")

	job.NextRunAt = now.Add(-time.Minute)
	at = RetryAt(job, now)
	assert.True(t, at.After(job.NextRunAt))
}

func TestRetryAtMonotonicAcrossAttempts(t *testing.T) {
	job := &types.Job{
		NextRunAt: time.Now(),
		Backoff:   types.BackoffPolicy{Type: types.BackoffExponential, BaseDelay: 100 * time.Millisecond},
	}

	prev := job.NextRunAt
	for attempt := 1; attempt <= 5; attempt++ {
		job.Attempts = attempt
		at := RetryAt(job, time.Now())
		assert.False(t, at.Before(prev), "attempt %d regressed", attempt)
		job.NextRunAt = at
		prev = at
	}
}
