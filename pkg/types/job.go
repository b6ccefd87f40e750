package types

import "time"

// JobState represents the lifecycle state of a deferred job.
type JobState string

// Job lifecycle constants.
const (
	// JobPending indicates the job is waiting to become due.
	JobPending JobState = "pending"

	// JobActive indicates a worker has exclusively claimed the job.
	JobActive JobState = "active"

	// JobCompleted indicates the job finished successfully. Terminal;
	// retained per retention policy, never re-run.
	JobCompleted JobState = "completed"

	// JobFailed indicates the most recent attempt failed and a retry is
	// pending. Stored jobs in this state return to pending with a new
	// due time.
	JobFailed JobState = "failed"

	// JobDead indicates the job exhausted its attempts. Terminal; retained
	// for inspection, requires external intervention.
	JobDead JobState = "dead"
)

// CanTransitionTo validates job state transitions.
//
// Valid transitions:
//
//	pending -> active
//	active  -> completed | failed | dead
//	failed  -> pending | dead
//	completed, dead -> (terminal)
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case JobPending:
		return next == JobActive
	case JobActive:
		return next == JobCompleted || next == JobFailed || next == JobDead
	case JobFailed:
		return next == JobPending || next == JobDead
	default:
		return false
	}
}

// BackoffType selects the retry delay curve for a job.
type BackoffType string

// Backoff curve constants.
const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// BackoffPolicy maps an attempt count to the delay before the next retry.
type BackoffPolicy struct {
	Type      BackoffType   `json:"type"`
	BaseDelay time.Duration `json:"base_delay"`
}

// Job is a unit of deferred, retryable work tracked by the job queue.
// Delivery is at-least-once: processors must be idempotent.
type Job struct {
	ID          string        `json:"id"`
	QueueName   string        `json:"queue_name"`
	Payload     []byte        `json:"payload"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	NextRunAt   time.Time     `json:"next_run_at"`
	Backoff     BackoffPolicy `json:"backoff"`
	State       JobState      `json:"state"`
	LastError   string        `json:"last_error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// QueueMetrics holds read-only job counts by state for one queue.
type QueueMetrics struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Dead      int `json:"dead"`
}
