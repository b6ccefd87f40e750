package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/errandhq/errand/internal/jobs"
	"github.com/errandhq/errand/internal/kv"
	"github.com/errandhq/errand/pkg/types"
)

// Session keys the handlers use to carry context between commands.
const (
	sessionLastEventID    = "last_event_id"
	sessionLastReminderID = "last_reminder_id"
)

// reminderPayload is the wire form of a deferred reminder job.
type reminderPayload struct {
	ReminderID string `json:"reminder_id"`
	UserID     string `json:"user_id"`
	Message    string `json:"message"`
	When       string `json:"when,omitempty"`
}

// documentPayload is the wire form of a document-generation job.
type documentPayload struct {
	UserID   string `json:"user_id"`
	Template string `json:"template,omitempty"`
	Title    string `json:"title"`
}

func (a *Assistant) registerHandlers() {
	a.router.Register("calendar.event.create", a.handleEventCreate)
	a.router.Register("calendar.event.update", a.handleEventUpdate)
	a.router.Register("calendar.event.delete", a.handleEventDelete)
	a.router.Register("calendar.event.query", a.handleEventQuery)
	a.router.Register("document.create", a.handleDocumentCreate)
	a.router.Register("reminder.set", a.handleReminderSet)
	a.router.Register("reminder.cancel", a.handleReminderCancel)
}

// commandEntities recovers the extracted entities the processor attached
// to the command. Structured callers may omit them.
func commandEntities(cmd *types.Command) []types.Entity {
	if cmd.Parameters == nil {
		return nil
	}
	entities, _ := cmd.Parameters["entities"].([]types.Entity)
	return entities
}

// entityValue returns the first value of the given entity type, falling
// back to a same-named string parameter for structured commands.
func entityValue(cmd *types.Command, t types.EntityType, param string) string {
	if e := types.FirstEntity(commandEntities(cmd), t); e != nil {
		return e.Value
	}
	return cmd.Param(param)
}

func eventFromCommand(cmd *types.Command) Event {
	entities := commandEntities(cmd)
	event := Event{
		Title:    entityValue(cmd, types.EntityTitle, "title"),
		When:     entityValue(cmd, types.EntityDateTime, "when"),
		Duration: entityValue(cmd, types.EntityDuration, "duration"),
		Location: entityValue(cmd, types.EntityLocation, "location"),
	}
	for _, person := range types.EntitiesOfType(entities, types.EntityPerson) {
		event.Attendees = append(event.Attendees, person.Value)
	}
	if event.Title == "" && len(event.Attendees) > 0 {
		event.Title = "Meeting with " + event.Attendees[0]
	}
	return event
}

func (a *Assistant) handleEventCreate(ctx context.Context, cmd *types.Command) (*types.CommandResult, error) {
	token, fail := a.validToken(ctx, "calendar")
	if fail != nil {
		return fail, nil
	}

	event := eventFromCommand(cmd)
	if event.Title == "" && event.When == "" {
		return types.Fail(types.ErrCodeProcessingError,
			"Could not tell what event to create; try including a title or a time"), nil
	}

	created, err := a.services.Calendar.CreateEvent(ctx, token, event)
	if err != nil {
		return nil, fmt.Errorf("assistant: calendar create failed: %w", err)
	}

	cmd.Context.SessionData[sessionLastEventID] = created.ID
	log.Printf("assistant: created event %s for user %s", created.ID, cmd.Context.UserID)
	return types.OK(created), nil
}

func (a *Assistant) handleEventUpdate(ctx context.Context, cmd *types.Command) (*types.CommandResult, error) {
	token, fail := a.validToken(ctx, "calendar")
	if fail != nil {
		return fail, nil
	}

	event := eventFromCommand(cmd)
	event.ID = cmd.Param("event_id")
	if event.ID == "" {
		// "move it to friday" refers to the event discussed last.
		event.ID, _ = cmd.Context.SessionData[sessionLastEventID].(string)
	}
	if event.ID == "" {
		return types.Fail(types.ErrCodeProcessingError,
			"Could not tell which event to update"), nil
	}

	updated, err := a.services.Calendar.UpdateEvent(ctx, token, event)
	if err != nil {
		return nil, fmt.Errorf("assistant: calendar update failed: %w", err)
	}

	cmd.Context.SessionData[sessionLastEventID] = updated.ID
	return types.OK(updated), nil
}

func (a *Assistant) handleEventDelete(ctx context.Context, cmd *types.Command) (*types.CommandResult, error) {
	token, fail := a.validToken(ctx, "calendar")
	if fail != nil {
		return fail, nil
	}

	eventID := cmd.Param("event_id")
	if eventID == "" {
		eventID, _ = cmd.Context.SessionData[sessionLastEventID].(string)
	}
	if eventID == "" {
		return types.Fail(types.ErrCodeProcessingError,
			"Could not tell which event to cancel"), nil
	}

	if err := a.services.Calendar.DeleteEvent(ctx, token, eventID); err != nil {
		return nil, fmt.Errorf("assistant: calendar delete failed: %w", err)
	}

	delete(cmd.Context.SessionData, sessionLastEventID)
	return types.OK(map[string]any{"deleted": eventID}), nil
}

func (a *Assistant) handleEventQuery(ctx context.Context, cmd *types.Command) (*types.CommandResult, error) {
	token, fail := a.validToken(ctx, "calendar")
	if fail != nil {
		return fail, nil
	}

	query := EventQuery{Range: entityValue(cmd, types.EntityDateTime, "range")}
	events, err := a.services.Calendar.QueryEvents(ctx, token, query)
	if err != nil {
		return nil, fmt.Errorf("assistant: calendar query failed: %w", err)
	}
	return types.OK(map[string]any{"events": events, "count": len(events)}), nil
}

func (a *Assistant) handleDocumentCreate(ctx context.Context, cmd *types.Command) (*types.CommandResult, error) {
	title := entityValue(cmd, types.EntityTitle, "title")
	if title == "" {
		title = "Untitled document"
	}

	// Document generation is slow; it runs on the queue, not inline.
	payload, err := json.Marshal(documentPayload{
		UserID:   cmd.Context.UserID,
		Template: cmd.Param("template"),
		Title:    title,
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to encode document job: %w", err)
	}

	job, err := a.manager.Enqueue(ctx, DocumentQueue, payload, jobs.EnqueueOptions{})
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to enqueue document job: %w", err)
	}

	return types.OK(map[string]any{"job_id": job.ID, "title": title, "status": "queued"}), nil
}

func (a *Assistant) handleReminderSet(ctx context.Context, cmd *types.Command) (*types.CommandResult, error) {
	message := entityValue(cmd, types.EntityTitle, "message")
	if message == "" {
		message = "Reminder"
	}
	when := entityValue(cmd, types.EntityDateTime, "when")

	reminderID := uuid.New().String()
	payload := reminderPayload{
		ReminderID: reminderID,
		UserID:     cmd.Context.UserID,
		Message:    message,
		When:       when,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to encode reminder: %w", err)
	}

	// The kv record is the cancellation flag: the job skips delivery when
	// the record is gone by firing time.
	if err := a.state.Set(ctx, reminderKey(reminderID), encoded, 0); err != nil {
		return nil, fmt.Errorf("assistant: failed to record reminder: %w", err)
	}

	job, err := a.manager.Enqueue(ctx, ReminderQueue, encoded, jobs.EnqueueOptions{
		Delay: reminderDelay(when, time.Now()),
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to enqueue reminder: %w", err)
	}

	cmd.Context.SessionData[sessionLastReminderID] = reminderID
	log.Printf("assistant: reminder %s queued as job %s", reminderID, job.ID)
	return types.OK(map[string]any{"reminder_id": reminderID, "message": message, "when": when}), nil
}

func (a *Assistant) handleReminderCancel(ctx context.Context, cmd *types.Command) (*types.CommandResult, error) {
	reminderID := cmd.Param("reminder_id")
	if reminderID == "" {
		reminderID, _ = cmd.Context.SessionData[sessionLastReminderID].(string)
	}
	if reminderID == "" {
		return types.Fail(types.ErrCodeProcessingError,
			"Could not tell which reminder to cancel"), nil
	}

	if _, err := a.state.Get(ctx, reminderKey(reminderID)); err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return types.Fail(types.ErrCodeProcessingError,
				"That reminder no longer exists"), nil
		}
		return nil, fmt.Errorf("assistant: failed to look up reminder: %w", err)
	}
	if err := a.state.Delete(ctx, reminderKey(reminderID)); err != nil {
		return nil, fmt.Errorf("assistant: failed to cancel reminder: %w", err)
	}

	delete(cmd.Context.SessionData, sessionLastReminderID)
	return types.OK(map[string]any{"cancelled": reminderID}), nil
}

// processReminderJob delivers a due reminder unless it was cancelled in
// the meantime. Cancellation is not an error; the job completes quietly.
func (a *Assistant) processReminderJob(ctx context.Context, job *types.Job) error {
	var payload reminderPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("assistant: malformed reminder payload: %w", err)
	}

	if _, err := a.state.Get(ctx, reminderKey(payload.ReminderID)); err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			log.Printf("assistant: reminder %s cancelled before firing", payload.ReminderID)
			return nil
		}
		return fmt.Errorf("assistant: failed to check reminder %s: %w", payload.ReminderID, err)
	}

	if err := a.services.Notifier.Notify(ctx, payload.UserID, payload.Message); err != nil {
		return fmt.Errorf("assistant: failed to deliver reminder %s: %w", payload.ReminderID, err)
	}

	// Delivered; drop the record so a late cancel is a clean miss.
	if err := a.state.Delete(ctx, reminderKey(payload.ReminderID)); err != nil {
		log.Printf("WARNING: assistant: failed to clear delivered reminder %s: %v", payload.ReminderID, err)
	}
	return nil
}

// processDocumentJob generates one document through the document service.
func (a *Assistant) processDocumentJob(ctx context.Context, job *types.Job) error {
	var payload documentPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("assistant: malformed document payload: %w", err)
	}

	token, err := a.services.Auth.EnsureValid(ctx, "documents")
	if err != nil {
		return fmt.Errorf("assistant: document auth failed: %w", err)
	}

	doc, err := a.services.Documents.CreateDocument(ctx, token, Document{
		Title:    payload.Title,
		Template: payload.Template,
		Created:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("assistant: document generation failed: %w", err)
	}

	log.Printf("assistant: generated document %s (%s) for user %s", doc.ID, doc.Title, payload.UserID)
	return nil
}

func reminderKey(id string) string {
	return "reminder:" + id
}
