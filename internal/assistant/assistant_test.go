package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandhq/errand/internal/auth"
	"github.com/errandhq/errand/internal/jobs"
	"github.com/errandhq/errand/internal/kv"
	"github.com/errandhq/errand/internal/nlp"
	"github.com/errandhq/errand/internal/scheduler"
	"github.com/errandhq/errand/pkg/types"
)

type fakeCalendar struct {
	mu      sync.Mutex
	nextID  int
	events  map[string]Event
	failErr error
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]Event)}
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, token auth.Token, event Event) (Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return Event{}, c.failErr
	}
	c.nextID++
	event.ID = fmt.Sprintf("evt-%d", c.nextID)
	c.events[event.ID] = event
	return event, nil
}

func (c *fakeCalendar) UpdateEvent(ctx context.Context, token auth.Token, event Event) (Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.events[event.ID]
	if !ok {
		return Event{}, errors.New("event not found")
	}
	if event.When != "" {
		existing.When = event.When
	}
	if event.Title != "" {
		existing.Title = event.Title
	}
	c.events[event.ID] = existing
	return existing, nil
}

func (c *fakeCalendar) DeleteEvent(ctx context.Context, token auth.Token, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.events[eventID]; !ok {
		return errors.New("event not found")
	}
	delete(c.events, eventID)
	return nil
}

func (c *fakeCalendar) QueryEvents(ctx context.Context, token auth.Token, query EventQuery) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		out = append(out, e)
	}
	return out, nil
}

type fakeDocuments struct {
	mu      sync.Mutex
	created []Document
}

func (d *fakeDocuments) CreateDocument(ctx context.Context, token auth.Token, doc Document) (Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc.ID = fmt.Sprintf("doc-%d", len(d.created)+1)
	d.created = append(d.created, doc)
	return doc, nil
}

func (d *fakeDocuments) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.created)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, userID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, userID+": "+message)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type testHarness struct {
	assistant *Assistant
	calendar  *fakeCalendar
	documents *fakeDocuments
	notifier  *fakeNotifier
	manager   *jobs.Manager
	scheduler *scheduler.Scheduler
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	pattern, err := nlp.NewPatternClassifier(nlp.DefaultRules())
	require.NoError(t, err)
	interpreter := nlp.NewInterpreter(nlp.NewFallbackClassifier(pattern))

	supervisor := auth.NewSupervisor(nil, 0)
	for _, service := range []string{"calendar", "documents"} {
		require.NoError(t, supervisor.Register(service, auth.RefresherFunc(
			func(ctx context.Context, token auth.Token) (auth.Token, error) {
				return token, nil
			})))
		require.NoError(t, supervisor.SetToken(service, auth.Token{
			AccessToken: "test-token",
			Expiry:      time.Now().Add(time.Hour),
		}))
	}

	manager := jobs.NewManager(jobs.NewMemoryStore(), jobs.ManagerConfig{ShutdownTimeout: time.Second})
	sched := scheduler.New(nil)
	t.Cleanup(sched.Shutdown)

	sessions, err := kv.NewSessionStore(0)
	require.NoError(t, err)

	calendar := newFakeCalendar()
	documents := &fakeDocuments{}
	notifier := &fakeNotifier{}

	a := New(interpreter, manager, sched, sessions, kv.NewMemoryStore(), Services{
		Calendar:  calendar,
		Documents: documents,
		Notifier:  notifier,
		Auth:      supervisor,
	}, 0)

	queueConfig := jobs.QueueConfig{Concurrency: 2, PollInterval: 5 * time.Millisecond}
	require.NoError(t, a.WireQueues(queueConfig, queueConfig))
	require.NoError(t, manager.Start(context.Background()))
	t.Cleanup(manager.Shutdown)

	return &testHarness{
		assistant: a,
		calendar:  calendar,
		documents: documents,
		notifier:  notifier,
		manager:   manager,
		scheduler: sched,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitCreatesEventFromFreeText(t *testing.T) {
	h := newHarness(t)

	_, result := h.assistant.Submit(context.Background(), "alice",
		"schedule a meeting with Jane tomorrow at 3pm")
	require.True(t, result.Success, "result: %+v", result)

	data := result.Data.(map[string]any)
	assert.Equal(t, string(types.IntentCreateEvent), data["intent"])

	require.Len(t, h.calendar.events, 1)
	for _, event := range h.calendar.events {
		assert.Contains(t, event.Attendees, "Jane")
		assert.Contains(t, event.When, "tomorrow at 3pm")
	}
}

func TestSubmitThenUpdateUsesSessionContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, result := h.assistant.Submit(ctx, "alice", "schedule a meeting with Jane tomorrow at 3pm")
	require.True(t, result.Success)

	// The follow-up names no event; the session remembers the last one.
	_, result = h.assistant.Submit(ctx, "alice", "reschedule the meeting to friday")
	require.True(t, result.Success, "result: %+v", result)

	require.Len(t, h.calendar.events, 1)
	for _, event := range h.calendar.events {
		assert.Contains(t, event.When, "friday")
	}
}

func TestSessionContextIsPerUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, result := h.assistant.Submit(ctx, "alice", "schedule a meeting with Jane tomorrow at 3pm")
	require.True(t, result.Success)

	// Bob has no event in his session to reschedule.
	_, result = h.assistant.Submit(ctx, "bob", "reschedule the meeting to friday")
	require.False(t, result.Success)
	assert.Equal(t, types.ErrCodeProcessingError, result.ErrorCode())
}

func TestSubmitUnknownInputFailsGracefully(t *testing.T) {
	h := newHarness(t)

	_, result := h.assistant.Submit(context.Background(), "alice", "purple monkey dishwasher")
	require.False(t, result.Success)
	assert.Equal(t, types.ErrCodeLowConfidence, result.ErrorCode())
	assert.Empty(t, h.calendar.events)
}

func TestSubmitReturnsInterpretedIntent(t *testing.T) {
	h := newHarness(t)

	intent, result := h.assistant.Submit(context.Background(), "alice",
		"schedule a meeting with Jane tomorrow at 3pm")
	require.True(t, result.Success)
	require.NotNil(t, intent)
	assert.Equal(t, types.IntentCreateEvent, intent.Type)
	assert.GreaterOrEqual(t, intent.Confidence, 0.5)
	assert.NotEmpty(t, intent.Entities)

	// The intent comes back even when execution fails, so the caller
	// can still show what was understood.
	intent, result = h.assistant.Submit(context.Background(), "alice", "purple monkey dishwasher")
	require.False(t, result.Success)
	require.NotNil(t, intent)
	assert.Equal(t, types.IntentUnknown, intent.Type)
}

func TestConcurrentSubmitSameUser(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, result := h.assistant.Submit(context.Background(), "alice",
				"schedule a meeting with Jane tomorrow at 3pm")
			assert.True(t, result.Success)
		}()
	}
	wg.Wait()

	assert.Len(t, h.calendar.events, 8)
}

func TestReminderSetDeliversThroughQueue(t *testing.T) {
	h := newHarness(t)

	// No time phrase resolves to an immediate reminder.
	_, result := h.assistant.Submit(context.Background(), "alice",
		"remind me to call the dentist")
	require.True(t, result.Success, "result: %+v", result)

	waitFor(t, 2*time.Second, func() bool { return h.notifier.count() == 1 },
		"reminder was never delivered")
}

func TestReminderWithFutureTimeStaysPending(t *testing.T) {
	h := newHarness(t)

	_, result := h.assistant.Submit(context.Background(), "alice",
		"remind me to call the dentist tomorrow at 9am")
	require.True(t, result.Success, "result: %+v", result)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, h.notifier.count(), "a tomorrow reminder must not fire now")

	metrics, err := h.manager.Metrics(context.Background(), ReminderQueue)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Pending)
}

func TestReminderCancelSuppressesDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Set the reminder through the structured surface so it is not
	// racing the queue before we cancel it.
	setResult, err := h.assistant.Execute(ctx, &types.Command{
		Name: "reminder.set",
		Parameters: map[string]any{
			"message": "call the dentist",
		},
		Context: types.NewContext("alice"),
	})
	require.NoError(t, err)
	require.True(t, setResult.Success)
	reminderID := setResult.Data.(map[string]any)["reminder_id"].(string)

	cancelResult, err := h.assistant.Execute(ctx, &types.Command{
		Name:       "reminder.cancel",
		Parameters: map[string]any{"reminder_id": reminderID},
		Context:    types.NewContext("alice"),
	})
	require.NoError(t, err)

	if cancelResult.Success {
		// Cancelled before firing: delivery must never happen.
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 0, h.notifier.count())
	} else {
		// The queue won the race and already delivered it.
		assert.Equal(t, 1, h.notifier.count())
	}
}

func TestDocumentCreateRunsOnQueue(t *testing.T) {
	h := newHarness(t)

	_, result := h.assistant.Submit(context.Background(), "alice",
		"create a document about the quarterly review")
	require.True(t, result.Success, "result: %+v", result)

	waitFor(t, 2*time.Second, func() bool { return h.documents.count() == 1 },
		"document was never generated")
}

func TestCalendarFailureSurfacesAsProcessingError(t *testing.T) {
	h := newHarness(t)
	h.calendar.failErr = errors.New("calendar API is down")

	_, result := h.assistant.Submit(context.Background(), "alice",
		"schedule a meeting with Jane tomorrow at 3pm")
	require.False(t, result.Success)
	assert.Equal(t, types.ErrCodeProcessingError, result.ErrorCode())
}

func TestAuthFailureSurfacesAsAuthError(t *testing.T) {
	h := newHarness(t)

	// Force the calendar token to near-expiry with a failing refresher.
	supervisor := auth.NewSupervisor(nil, 0)
	require.NoError(t, supervisor.Register("calendar", auth.RefresherFunc(
		func(ctx context.Context, token auth.Token) (auth.Token, error) {
			return auth.Token{}, errors.New("invalid_grant")
		})))
	require.NoError(t, supervisor.SetToken("calendar", auth.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Minute),
	}))
	h.assistant.services.Auth = supervisor

	_, result := h.assistant.Submit(context.Background(), "alice",
		"schedule a meeting with Jane tomorrow at 3pm")
	require.False(t, result.Success)
	assert.Equal(t, types.ErrCodeAuthError, result.ErrorCode())
}

func TestRecurringDocumentTrigger(t *testing.T) {
	h := newHarness(t)

	ok := h.assistant.ScheduleRecurringDocument("weekly-report", "0 8 * * 1", "alice", "weekly")
	require.True(t, ok)
	assert.Contains(t, h.scheduler.Names(), "weekly-report")

	assert.False(t, h.assistant.ScheduleRecurringDocument("bad", "not cron", "alice", "weekly"))
	assert.True(t, h.assistant.CancelRecurring("weekly-report"))
	assert.False(t, h.assistant.CancelRecurring("weekly-report"))
}

func TestExecuteStructuredCommand(t *testing.T) {
	h := newHarness(t)

	result, err := h.assistant.Execute(context.Background(), &types.Command{
		Name: "calendar.event.create",
		Parameters: map[string]any{
			"title": "Standup",
			"when":  "monday 9am",
		},
		Context: types.NewContext("alice"),
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	event := result.Data.(Event)
	assert.Equal(t, "Standup", event.Title)
	assert.Equal(t, "monday 9am", event.When)
}

func TestExecuteWithBareContextDoesNotPanic(t *testing.T) {
	h := newHarness(t)

	// A transport adapter that only sets UserID omits the session map;
	// the handler's session writes must still work.
	result, err := h.assistant.Execute(context.Background(), &types.Command{
		Name: "calendar.event.create",
		Parameters: map[string]any{
			"title": "Standup",
			"when":  "monday 9am",
		},
		Context: types.CommandContext{UserID: "alice"},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	result, err = h.assistant.Execute(context.Background(), &types.Command{
		Name:    "reminder.set",
		Context: types.CommandContext{UserID: "alice"},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestExecuteUnknownCommand(t *testing.T) {
	h := newHarness(t)

	result, err := h.assistant.Execute(context.Background(), &types.Command{
		Name:    "calendar.event.explode",
		Context: types.NewContext("alice"),
	})
	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Equal(t, types.ErrCodeNoHandler, result.ErrorCode())
}
