// Package assistant composes the command router, the intent pipeline,
// and the job queue into the user-facing facade. Free text goes through
// Submit; structured commands go through Execute. Deferred work
// (reminders, document generation) runs on the job queue, and recurring
// work is driven by the cron scheduler.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/errandhq/errand/internal/auth"
	"github.com/errandhq/errand/internal/jobs"
	"github.com/errandhq/errand/internal/kv"
	"github.com/errandhq/errand/internal/nlp"
	"github.com/errandhq/errand/internal/processor"
	"github.com/errandhq/errand/internal/router"
	"github.com/errandhq/errand/internal/scheduler"
	"github.com/errandhq/errand/pkg/types"
)

// Queue names for the assistant's deferred work.
const (
	ReminderQueue = "reminders"
	DocumentQueue = "documents"
)

// Services are the external collaborators the assistant acts through.
type Services struct {
	Calendar  CalendarAPI
	Documents DocumentAPI
	Notifier  Notifier
	Auth      *auth.Supervisor
}

// Assistant is the top-level facade. Construct with New, register the
// job processors via WireQueues before starting the job manager, then
// feed it user input.
type Assistant struct {
	router      *router.Router
	interpreter *nlp.Interpreter
	processor   *processor.Processor
	manager     *jobs.Manager
	scheduler   *scheduler.Scheduler
	sessions    *kv.SessionStore
	state       kv.Store
	services    Services
}

// New wires the assistant. The router gets the standard middleware chain
// and all built-in domain handlers. lowConfidenceThreshold gates intent
// execution; pass 0 for the default.
func New(
	interpreter *nlp.Interpreter,
	manager *jobs.Manager,
	sched *scheduler.Scheduler,
	sessions *kv.SessionStore,
	state kv.Store,
	services Services,
	lowConfidenceThreshold float64,
) *Assistant {
	r := router.New()
	r.Use(router.RequestID())
	r.Use(router.Logging())

	a := &Assistant{
		router:      r,
		interpreter: interpreter,
		processor:   processor.New(r, lowConfidenceThreshold),
		manager:     manager,
		scheduler:   sched,
		sessions:    sessions,
		state:       state,
		services:    services,
	}
	a.registerHandlers()
	return a
}

// Router exposes the command router so callers can register additional
// handlers or middleware before traffic starts.
func (a *Assistant) Router() *router.Router {
	return a.router
}

// Submit interprets free text for a user and executes the resulting
// intent. It returns what the assistant understood alongside the
// outcome, and never an error: not-understood input comes back as a
// structured failure the caller can show the user.
func (a *Assistant) Submit(ctx context.Context, userID, text string) (*types.Intent, *types.CommandResult) {
	session := a.sessions.Get(userID)
	session.Lock()
	defer session.Unlock()

	cctx := types.NewContext(userID)
	cctx.SessionData = session.Data

	intent := a.interpreter.Interpret(ctx, text)
	log.Printf("assistant: request %s resolved to %s (confidence %.2f, %d entities)",
		cctx.RequestID, intent.Type, intent.Confidence, len(intent.Entities))

	return intent, a.processor.Process(ctx, intent, cctx)
}

// Interpret exposes the NLP pipeline without executing the intent, for
// callers that preview what the assistant understood.
func (a *Assistant) Interpret(ctx context.Context, text string) *types.Intent {
	return a.interpreter.Interpret(ctx, text)
}

// Execute dispatches a structured command directly, bypassing the NLP
// pipeline. Handler errors propagate; this is the integration surface,
// not the conversational one.
func (a *Assistant) Execute(ctx context.Context, cmd *types.Command) (*types.CommandResult, error) {
	return a.router.Dispatch(ctx, cmd)
}

// WireQueues registers the assistant's job processors on the manager.
// Call once before the manager starts.
func (a *Assistant) WireQueues(reminderConfig, documentConfig jobs.QueueConfig) error {
	if err := a.manager.Process(ReminderQueue, a.processReminderJob, reminderConfig); err != nil {
		return err
	}
	return a.manager.Process(DocumentQueue, a.processDocumentJob, documentConfig)
}

// ScheduleRecurringDocument sets up a named cron trigger that enqueues a
// document-generation job on each firing. It reports whether the cron
// expression was valid.
func (a *Assistant) ScheduleRecurringDocument(name, cronExpr, userID, template string) bool {
	payload, err := json.Marshal(documentPayload{
		UserID:   userID,
		Template: template,
		Title:    name,
	})
	if err != nil {
		log.Printf("ERROR: assistant: failed to encode document payload for %s: %v", name, err)
		return false
	}
	task := scheduler.EnqueueTask(a.manager, DocumentQueue, payload, jobs.EnqueueOptions{})
	return a.scheduler.Schedule(name, cronExpr, task, false)
}

// CancelRecurring removes a named cron trigger.
func (a *Assistant) CancelRecurring(name string) bool {
	return a.scheduler.Cancel(name)
}

// validToken runs a service's token through the auth supervisor,
// translating refresh failures into AUTH_ERROR results.
func (a *Assistant) validToken(ctx context.Context, service string) (auth.Token, *types.CommandResult) {
	token, err := a.services.Auth.EnsureValid(ctx, service)
	if err != nil {
		return auth.Token{}, types.Fail(types.ErrCodeAuthError,
			fmt.Sprintf("Authentication with %s failed; please reconnect the service", service))
	}
	return token, nil
}
