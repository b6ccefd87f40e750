package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/errandhq/errand/pkg/types"
)

// Manager owns the named queues over a shared JobStore. Handlers enqueue
// through it; the daemon registers processors and starts it once.
type Manager struct {
	store           JobStore
	defaults        EnqueueOptions
	shutdownTimeout time.Duration

	mu      sync.Mutex
	queues  map[string]*Queue
	started bool
}

// ManagerConfig tunes queue-wide defaults.
type ManagerConfig struct {
	// Defaults apply to enqueues that leave options unset.
	Defaults EnqueueOptions

	// ShutdownTimeout bounds the drain wait per queue (default 30s).
	ShutdownTimeout time.Duration
}

// NewManager creates a manager over the given store.
func NewManager(store JobStore, config ManagerConfig) *Manager {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	return &Manager{
		store:           store,
		defaults:        config.Defaults.withDefaults(),
		shutdownTimeout: config.ShutdownTimeout,
		queues:          make(map[string]*Queue),
	}
}

// Process registers the processor for a named queue. Each queue has
// exactly one processor; registering twice replaces it only before Start.
func (m *Manager) Process(queue string, processor ProcessorFunc, config QueueConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("jobs: cannot register queue %s after start", queue)
	}
	if _, exists := m.queues[queue]; exists {
		log.Printf("WARNING: jobs: replacing processor for queue %s", queue)
	}
	m.queues[queue] = newQueue(queue, m.store, processor, config)
	return nil
}

// Enqueue creates a job on the named queue. Unset options fall back to
// the manager defaults.
func (m *Manager) Enqueue(ctx context.Context, queue string, payload []byte, opts EnqueueOptions) (*types.Job, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = m.defaults.MaxAttempts
	}
	if opts.Backoff.Type == "" {
		opts.Backoff = m.defaults.Backoff
	}
	return m.store.Enqueue(ctx, queue, payload, opts)
}

// Start recovers jobs stranded ACTIVE by a previous run, then launches
// every registered queue's worker loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("jobs: manager already started")
	}

	for name, q := range m.queues {
		n, err := m.store.RequeueStuck(ctx, name)
		if err != nil {
			return fmt.Errorf("jobs: recovery failed for queue %s: %w", name, err)
		}
		if n > 0 {
			log.Printf("jobs: requeued %d stuck jobs on %s", n, name)
		}
		q.Start(ctx)
	}

	m.started = true
	log.Printf("jobs: manager started with %d queues", len(m.queues))
	return nil
}

// Metrics returns job counts by state for one queue. Read-only, no side
// effects.
func (m *Manager) Metrics(ctx context.Context, queue string) (types.QueueMetrics, error) {
	return m.store.Metrics(ctx, queue)
}

// Shutdown stops every queue, drains in-flight jobs, and closes the
// store. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, q := range queues {
		wg.Add(1)
		go func(q *Queue) {
			defer wg.Done()
			q.Stop(m.shutdownTimeout)
		}(q)
	}
	wg.Wait()

	if err := m.store.Close(); err != nil {
		log.Printf("WARNING: jobs: failed to close job store: %v", err)
	}
	log.Println("jobs: manager shut down")
}
