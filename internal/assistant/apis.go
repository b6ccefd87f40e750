package assistant

import (
	"context"
	"time"

	"github.com/errandhq/errand/internal/auth"
)

// Event is a calendar entry as the assistant understands it. Times stay
// as the user's phrasing ("tomorrow at 3pm") until the calendar backend
// resolves them; the assistant does not own date parsing.
type Event struct {
	ID        string   `json:"id,omitempty"`
	Title     string   `json:"title"`
	When      string   `json:"when,omitempty"`
	Duration  string   `json:"duration,omitempty"`
	Location  string   `json:"location,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
}

// EventQuery selects events by free-text time range ("today", "next
// week").
type EventQuery struct {
	Range string `json:"range,omitempty"`
}

// Document is a generated artifact such as a report or meeting notes.
type Document struct {
	ID       string    `json:"id,omitempty"`
	Title    string    `json:"title"`
	Template string    `json:"template,omitempty"`
	Created  time.Time `json:"created,omitempty"`
}

// CalendarAPI is the external calendar the assistant manages events on.
// Every call receives a token the auth supervisor has already validated.
type CalendarAPI interface {
	CreateEvent(ctx context.Context, token auth.Token, event Event) (Event, error)
	UpdateEvent(ctx context.Context, token auth.Token, event Event) (Event, error)
	DeleteEvent(ctx context.Context, token auth.Token, eventID string) error
	QueryEvents(ctx context.Context, token auth.Token, query EventQuery) ([]Event, error)
}

// DocumentAPI is the external document service the assistant generates
// documents through.
type DocumentAPI interface {
	CreateDocument(ctx context.Context, token auth.Token, doc Document) (Document, error)
}

// Notifier delivers a due reminder to the user. Implementations are
// expected to be safe for concurrent use; reminder jobs may fire in
// parallel.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, userID, message string) error

func (f NotifierFunc) Notify(ctx context.Context, userID, message string) error {
	return f(ctx, userID, message)
}
