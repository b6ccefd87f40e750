package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandhq/errand/pkg/types"
)

// storeFactory lets the lifecycle tests run against every JobStore backend.
type storeFactory func(t *testing.T) JobStore

func memoryFactory(t *testing.T) JobStore {
	return NewMemoryStore()
}

func sqliteFactory(t *testing.T) JobStore {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestJobStoreLifecycle(t *testing.T) {
	backends := map[string]storeFactory{
		"memory": memoryFactory,
		"sqlite": sqliteFactory,
	}
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("enqueue and acquire", func(t *testing.T) {
				testEnqueueAndAcquire(t, factory(t))
			})
			t.Run("delay defers due time", func(t *testing.T) {
				testDelayDefersDueTime(t, factory(t))
			})
			t.Run("acquire is exclusive", func(t *testing.T) {
				testAcquireIsExclusive(t, factory(t))
			})
			t.Run("failure requeues with monotonic due time", func(t *testing.T) {
				testFailureRequeue(t, factory(t))
			})
			t.Run("dead jobs are retained", func(t *testing.T) {
				testDeadRetention(t, factory(t))
			})
			t.Run("requeue stuck", func(t *testing.T) {
				testRequeueStuck(t, factory(t))
			})
			t.Run("metrics by state", func(t *testing.T) {
				testMetricsByState(t, factory(t))
			})
			t.Run("mark missing job", func(t *testing.T) {
				testMarkMissing(t, factory(t))
			})
		})
	}
}

func testEnqueueAndAcquire(t *testing.T, store JobStore) {
	ctx := context.Background()

	job, err := store.Enqueue(ctx, "reminders", []byte(`{"note":"dentist"}`), EnqueueOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "reminders", job.QueueName)
	assert.Equal(t, types.JobPending, job.State)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)
	assert.Equal(t, 0, job.Attempts)

	claimed, err := store.AcquireDue(ctx, "reminders", time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, job.ID, claimed[0].ID)
	assert.Equal(t, types.JobActive, claimed[0].State)
	assert.Equal(t, []byte(`{"note":"dentist"}`), claimed[0].Payload)

	require.NoError(t, store.MarkCompleted(ctx, job.ID))
	claimed, err = store.AcquireDue(ctx, "reminders", time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func testDelayDefersDueTime(t *testing.T, store JobStore) {
	ctx := context.Background()

	_, err := store.Enqueue(ctx, "reminders", []byte("x"), EnqueueOptions{Delay: time.Hour})
	require.NoError(t, err)

	claimed, err := store.AcquireDue(ctx, "reminders", time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "delayed job must not be due yet")

	claimed, err = store.AcquireDue(ctx, "reminders", time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func testAcquireIsExclusive(t *testing.T, store JobStore) {
	ctx := context.Background()

	_, err := store.Enqueue(ctx, "reminders", []byte("x"), EnqueueOptions{})
	require.NoError(t, err)

	first, err := store.AcquireDue(ctx, "reminders", time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := store.AcquireDue(ctx, "reminders", time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, second, "a claimed job must not be claimable again")
}

func testFailureRequeue(t *testing.T, store JobStore) {
	ctx := context.Background()

	job, err := store.Enqueue(ctx, "reminders", []byte("x"), EnqueueOptions{})
	require.NoError(t, err)

	claimed, err := store.AcquireDue(ctx, "reminders", time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	retryAt := time.Now().Add(time.Hour)
	require.NoError(t, store.MarkFailed(ctx, job.ID, 1, "calendar unavailable", retryAt))

	// Not due again until retryAt.
	claimed, err = store.AcquireDue(ctx, "reminders", time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = store.AcquireDue(ctx, "reminders", retryAt.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempts)
	assert.Equal(t, "calendar unavailable", claimed[0].LastError)
}

func testDeadRetention(t *testing.T, store JobStore) {
	ctx := context.Background()

	job, err := store.Enqueue(ctx, "reminders", []byte("x"), EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)

	claimed, err := store.AcquireDue(ctx, "reminders", time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, store.MarkDead(ctx, job.ID, 1, "gave up"))

	claimed, err = store.AcquireDue(ctx, "reminders", time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "dead jobs must never run again")

	metrics, err := store.Metrics(ctx, "reminders")
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Dead)
}

func testRequeueStuck(t *testing.T, store JobStore) {
	ctx := context.Background()

	job, err := store.Enqueue(ctx, "reminders", []byte("x"), EnqueueOptions{})
	require.NoError(t, err)
	claimed, err := store.AcquireDue(ctx, "reminders", time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err := store.RequeueStuck(ctx, "reminders")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	claimed, err = store.AcquireDue(ctx, "reminders", time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, job.ID, claimed[0].ID)
}

func testMetricsByState(t *testing.T, store JobStore) {
	ctx := context.Background()

	pending, err := store.Enqueue(ctx, "reminders", []byte("a"), EnqueueOptions{Delay: time.Hour})
	require.NoError(t, err)
	_ = pending

	done, err := store.Enqueue(ctx, "reminders", []byte("b"), EnqueueOptions{})
	require.NoError(t, err)
	_, err = store.AcquireDue(ctx, "reminders", time.Now(), 1)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, done.ID))

	// A job on another queue must not leak into these metrics.
	_, err = store.Enqueue(ctx, "documents", []byte("c"), EnqueueOptions{})
	require.NoError(t, err)

	metrics, err := store.Metrics(ctx, "reminders")
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Pending)
	assert.Equal(t, 1, metrics.Completed)
	assert.Equal(t, 0, metrics.Active)
	assert.Equal(t, 0, metrics.Dead)
}

func testMarkMissing(t *testing.T, store JobStore) {
	ctx := context.Background()
	assert.ErrorIs(t, store.MarkCompleted(ctx, "no-such-job"), ErrJobNotFound)
	assert.ErrorIs(t, store.MarkFailed(ctx, "no-such-job", 1, "x", time.Now()), ErrJobNotFound)
	assert.ErrorIs(t, store.MarkDead(ctx, "no-such-job", 1, "x"), ErrJobNotFound)
}
