package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // registers the "postgres" driver

	"github.com/errandhq/errand/pkg/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	queue_name   TEXT NOT NULL,
	payload      BYTEA,
	attempts     INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL,
	next_run_at  TIMESTAMPTZ NOT NULL,
	backoff_type TEXT NOT NULL,
	backoff_base BIGINT NOT NULL,
	state        TEXT NOT NULL,
	last_error   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(queue_name, state, next_run_at);
`

// PostgresStore implements JobStore on PostgreSQL. Multiple daemon
// instances can share one database: the claim query uses
// FOR UPDATE SKIP LOCKED so concurrent workers never take the same job.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobs: failed to ping postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobs: failed to create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Enqueue creates a PENDING job due at now + opts.Delay.
func (s *PostgresStore) Enqueue(ctx context.Context, queue string, payload []byte, opts EnqueueOptions) (*types.Job, error) {
	opts = opts.withDefaults()
	now := time.Now()

	job := &types.Job{
		ID:          uuid.New().String(),
		QueueName:   queue,
		Payload:     payload,
		MaxAttempts: opts.MaxAttempts,
		NextRunAt:   now.Add(opts.Delay),
		Backoff:     opts.Backoff,
		State:       types.JobPending,
		CreatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, queue_name, payload, attempts, max_attempts,
			next_run_at, backoff_type, backoff_base, state, created_at)
		VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.QueueName, job.Payload, job.MaxAttempts, job.NextRunAt,
		string(job.Backoff.Type), job.Backoff.BaseDelay.Milliseconds(),
		string(job.State), job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to enqueue on %s: %w", queue, err)
	}
	return job, nil
}

// AcquireDue claims up to limit due PENDING jobs in a single transaction.
func (s *PostgresStore) AcquireDue(ctx context.Context, queue string, now time.Time, limit int) ([]*types.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, queue_name, payload, attempts, max_attempts, next_run_at,
			backoff_type, backoff_base, last_error, created_at
		FROM jobs
		WHERE queue_name = $1 AND state = $2 AND next_run_at <= $3
		ORDER BY next_run_at ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED`,
		queue, string(types.JobPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to query due jobs: %w", err)
	}

	jobs, err := scanPostgresJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
		job.State = types.JobActive
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET state = $1 WHERE id = ANY($2)`,
		string(types.JobActive), pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("jobs: failed to claim jobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("jobs: failed to commit claim: %w", err)
	}
	return jobs, nil
}

// MarkCompleted transitions an ACTIVE job to COMPLETED.
func (s *PostgresStore) MarkCompleted(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = $1, completed_at = NOW() WHERE id = $2`,
		string(types.JobCompleted), jobID)
	if err != nil {
		return fmt.Errorf("jobs: failed to complete job %s: %w", jobID, err)
	}
	return checkFound(res)
}

// MarkFailed records a failed attempt and returns the job to PENDING.
func (s *PostgresStore) MarkFailed(ctx context.Context, jobID string, attempts int, lastError string, nextRunAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = $1, attempts = $2, last_error = $3,
			next_run_at = GREATEST(next_run_at, $4)
		WHERE id = $5`,
		string(types.JobPending), attempts, lastError, nextRunAt, jobID)
	if err != nil {
		return fmt.Errorf("jobs: failed to mark job %s failed: %w", jobID, err)
	}
	return checkFound(res)
}

// MarkDead transitions a job to DEAD, retained for inspection.
func (s *PostgresStore) MarkDead(ctx context.Context, jobID string, attempts int, lastError string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = $1, attempts = $2, last_error = $3 WHERE id = $4`,
		string(types.JobDead), attempts, lastError, jobID)
	if err != nil {
		return fmt.Errorf("jobs: failed to mark job %s dead: %w", jobID, err)
	}
	return checkFound(res)
}

// RequeueStuck returns ACTIVE jobs to PENDING after a crash.
func (s *PostgresStore) RequeueStuck(ctx context.Context, queue string) (int, error) {
	query := `UPDATE jobs SET state = $1 WHERE state = $2`
	args := []any{string(types.JobPending), string(types.JobActive)}
	if queue != "" {
		query += ` AND queue_name = $3`
		args = append(args, queue)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("jobs: failed to requeue stuck jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Metrics returns job counts by state.
func (s *PostgresStore) Metrics(ctx context.Context, queue string) (types.QueueMetrics, error) {
	query := `SELECT state, COUNT(*) FROM jobs`
	var args []any
	if queue != "" {
		query += ` WHERE queue_name = $1`
		args = append(args, queue)
	}
	query += ` GROUP BY state`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return types.QueueMetrics{}, fmt.Errorf("jobs: failed to query metrics: %w", err)
	}
	defer rows.Close()

	var m types.QueueMetrics
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return types.QueueMetrics{}, fmt.Errorf("jobs: failed to scan metrics: %w", err)
		}
		switch types.JobState(state) {
		case types.JobPending:
			m.Pending = count
		case types.JobActive:
			m.Active = count
		case types.JobCompleted:
			m.Completed = count
		case types.JobDead:
			m.Dead = count
		}
	}
	return m, rows.Err()
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanPostgresJobs(rows *sql.Rows) ([]*types.Job, error) {
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		var (
			job         types.Job
			backoffType string
			backoffBase int64
		)
		if err := rows.Scan(&job.ID, &job.QueueName, &job.Payload, &job.Attempts,
			&job.MaxAttempts, &job.NextRunAt, &backoffType, &backoffBase,
			&job.LastError, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("jobs: failed to scan job: %w", err)
		}
		job.Backoff = types.BackoffPolicy{
			Type:      types.BackoffType(backoffType),
			BaseDelay: time.Duration(backoffBase) * time.Millisecond,
		}
		job.State = types.JobPending
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}
