// Package scheduler runs named recurring tasks on cron expressions.
//
// Each trigger is identified by name. Scheduling a name that already
// exists replaces the previous trigger, so a recurring reminder can be
// redefined without leaking its old schedule.
package scheduler

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/errandhq/errand/internal/jobs"
)

// Task is the unit of scheduled work. The context is cancelled when the
// scheduler shuts down.
type Task func(ctx context.Context)

// Scheduler owns a single cron runner and a registry of named triggers.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	parser   cron.Parser
	entries  map[string]cron.EntryID
	ctx      context.Context
	cancel   context.CancelFunc
	location *time.Location
}

// New builds a scheduler evaluating cron expressions in the given
// location. A nil location means UTC.
func New(location *time.Location) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(location)),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		entries:  make(map[string]cron.EntryID),
		ctx:      ctx,
		cancel:   cancel,
		location: location,
	}
	s.cron.Start()
	return s
}

// Schedule registers a named trigger firing task on the cron expression.
// It reports whether the expression was valid; an invalid expression
// leaves the registry untouched. If a trigger with the same name exists
// it is cancelled first, so the previous schedule never fires again.
// With runImmediately the task also fires once right away, in addition
// to its cron schedule.
func (s *Scheduler) Schedule(name, expr string, task Task, runImmediately bool) bool {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		log.Printf("WARNING: scheduler: invalid cron expression %q for trigger %s: %v", expr, name, err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[name]; ok {
		s.cron.Remove(prev)
		log.Printf("scheduler: replacing trigger %s", name)
	}

	run := func() { s.fire(name, task) }
	s.entries[name] = s.cron.Schedule(schedule, cron.FuncJob(run))
	log.Printf("scheduler: trigger %s scheduled (%s)", name, expr)

	if runImmediately {
		go run()
	}
	return true
}

// Cancel removes a named trigger. It reports whether the trigger existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	log.Printf("scheduler: trigger %s cancelled", name)
	return true
}

// Names returns the registered trigger names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fire runs one task invocation with panic recovery. A panicking task
// must not take down the cron runner or suppress future firings.
func (s *Scheduler) fire(name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: scheduler: trigger %s panicked: %v", name, r)
		}
	}()
	if s.ctx.Err() != nil {
		return
	}
	task(s.ctx)
}

// Shutdown stops the cron runner and waits for in-flight tasks to
// return. Scheduled triggers never fire after Shutdown returns.
func (s *Scheduler) Shutdown() {
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	log.Println("scheduler: stopped")
}

// EnqueueTask adapts a job enqueue into a Task, so a recurring trigger
// can feed the durable queue instead of doing work inline. Failures are
// logged; the trigger keeps firing on schedule.
func EnqueueTask(manager *jobs.Manager, queue string, payload []byte, opts jobs.EnqueueOptions) Task {
	return func(ctx context.Context) {
		if _, err := manager.Enqueue(ctx, queue, payload, opts); err != nil {
			log.Printf("ERROR: scheduler: failed to enqueue on %s: %v", queue, err)
		}
	}
}
