package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/errandhq/errand/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	queue_name   TEXT NOT NULL,
	payload      BLOB,
	attempts     INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL,
	next_run_at  INTEGER NOT NULL,
	backoff_type TEXT NOT NULL,
	backoff_base INTEGER NOT NULL,
	state        TEXT NOT NULL,
	last_error   TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(queue_name, state, next_run_at);
`

// SQLiteStore implements JobStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed job store at the
// given DSN.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load; it also makes the PENDING->ACTIVE claim exclusive.
	// WAL mode allows concurrent readers to proceed without blocking.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobs: failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobs: failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Enqueue creates a PENDING job due at now + opts.Delay.
func (s *SQLiteStore) Enqueue(ctx context.Context, queue string, payload []byte, opts EnqueueOptions) (*types.Job, error) {
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
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.QueueName, job.Payload, job.MaxAttempts,
		job.NextRunAt.UnixMilli(), string(job.Backoff.Type),
		job.Backoff.BaseDelay.Milliseconds(), string(job.State),
		job.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to enqueue on %s: %w", queue, err)
	}
	return job, nil
}

// AcquireDue claims up to limit due PENDING jobs, earliest due first.
// The claim is a conditional UPDATE per candidate, so a row that another
// claimer took first is simply skipped.
func (s *SQLiteStore) AcquireDue(ctx context.Context, queue string, now time.Time, limit int) ([]*types.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue_name, payload, attempts, max_attempts, next_run_at,
			backoff_type, backoff_base, last_error, created_at
		FROM jobs
		WHERE queue_name = ? AND state = ? AND next_run_at <= ?
		ORDER BY next_run_at ASC
		LIMIT ?`,
		queue, string(types.JobPending), now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to query due jobs: %w", err)
	}

	candidates, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	var claimed []*types.Job
	for _, job := range candidates {
		res, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET state = ? WHERE id = ? AND state = ?`,
			string(types.JobActive), job.ID, string(types.JobPending))
		if err != nil {
			return claimed, fmt.Errorf("jobs: failed to claim job %s: %w", job.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			job.State = types.JobActive
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

// MarkCompleted transitions an ACTIVE job to COMPLETED.
func (s *SQLiteStore) MarkCompleted(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, completed_at = ? WHERE id = ?`,
		string(types.JobCompleted), time.Now().UnixMilli(), jobID)
	if err != nil {
		return fmt.Errorf("jobs: failed to complete job %s: %w", jobID, err)
	}
	return checkFound(res)
}

// MarkFailed records a failed attempt and returns the job to PENDING.
// next_run_at only moves forward, never back.
func (s *SQLiteStore) MarkFailed(ctx context.Context, jobID string, attempts int, lastError string, nextRunAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, attempts = ?, last_error = ?,
			next_run_at = MAX(next_run_at, ?)
		WHERE id = ?`,
		string(types.JobPending), attempts, lastError, nextRunAt.UnixMilli(), jobID)
	if err != nil {
		return fmt.Errorf("jobs: failed to mark job %s failed: %w", jobID, err)
	}
	return checkFound(res)
}

// MarkDead transitions a job to DEAD, retained for inspection.
func (s *SQLiteStore) MarkDead(ctx context.Context, jobID string, attempts int, lastError string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, attempts = ?, last_error = ? WHERE id = ?`,
		string(types.JobDead), attempts, lastError, jobID)
	if err != nil {
		return fmt.Errorf("jobs: failed to mark job %s dead: %w", jobID, err)
	}
	return checkFound(res)
}

// RequeueStuck returns ACTIVE jobs to PENDING after a crash.
func (s *SQLiteStore) RequeueStuck(ctx context.Context, queue string) (int, error) {
	query := `UPDATE jobs SET state = ? WHERE state = ?`
	args := []any{string(types.JobPending), string(types.JobActive)}
	if queue != "" {
		query += ` AND queue_name = ?`
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
func (s *SQLiteStore) Metrics(ctx context.Context, queue string) (types.QueueMetrics, error) {
	query := `SELECT state, COUNT(*) FROM jobs`
	var args []any
	if queue != "" {
		query += ` WHERE queue_name = ?`
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

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanJobs(rows *sql.Rows) ([]*types.Job, error) {
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		var (
			job         types.Job
			nextRunAt   int64
			backoffType string
			backoffBase int64
			createdAt   int64
		)
		if err := rows.Scan(&job.ID, &job.QueueName, &job.Payload, &job.Attempts,
			&job.MaxAttempts, &nextRunAt, &backoffType, &backoffBase,
			&job.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("jobs: failed to scan job: %w", err)
		}
		job.NextRunAt = time.UnixMilli(nextRunAt)
		job.Backoff = types.BackoffPolicy{
			Type:      types.BackoffType(backoffType),
			BaseDelay: time.Duration(backoffBase) * time.Millisecond,
		}
		job.CreatedAt = time.UnixMilli(createdAt)
		job.State = types.JobPending
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func checkFound(res sql.Result) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}
