package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/errandhq/errand/internal/auth"
	"github.com/errandhq/errand/internal/kv"
)

// LocalCalendar implements CalendarAPI on the kv store. It is the
// default backend when no external calendar is connected; events live
// under "event:" keys and survive restarts with a durable store.
type LocalCalendar struct {
	store kv.Store
}

func NewLocalCalendar(store kv.Store) *LocalCalendar {
	return &LocalCalendar{store: store}
}

func eventKey(id string) string { return "event:" + id }

const eventIndexKey = "event:index"

func (c *LocalCalendar) CreateEvent(ctx context.Context, token auth.Token, event Event) (Event, error) {
	event.ID = uuid.New().String()
	if err := c.save(ctx, event); err != nil {
		return Event{}, err
	}
	if err := c.updateIndex(ctx, event.ID, true); err != nil {
		return Event{}, err
	}
	return event, nil
}

func (c *LocalCalendar) UpdateEvent(ctx context.Context, token auth.Token, event Event) (Event, error) {
	existing, err := c.load(ctx, event.ID)
	if err != nil {
		return Event{}, err
	}
	if event.Title != "" {
		existing.Title = event.Title
	}
	if event.When != "" {
		existing.When = event.When
	}
	if event.Duration != "" {
		existing.Duration = event.Duration
	}
	if event.Location != "" {
		existing.Location = event.Location
	}
	if len(event.Attendees) > 0 {
		existing.Attendees = event.Attendees
	}
	if err := c.save(ctx, existing); err != nil {
		return Event{}, err
	}
	return existing, nil
}

func (c *LocalCalendar) DeleteEvent(ctx context.Context, token auth.Token, eventID string) error {
	if _, err := c.load(ctx, eventID); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, eventKey(eventID)); err != nil {
		return fmt.Errorf("assistant: failed to delete event %s: %w", eventID, err)
	}
	return c.updateIndex(ctx, eventID, false)
}

func (c *LocalCalendar) QueryEvents(ctx context.Context, token auth.Token, query EventQuery) ([]Event, error) {
	ids, err := c.index(ctx)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(ids))
	for _, id := range ids {
		event, err := c.load(ctx, id)
		if errors.Is(err, kv.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if query.Range != "" && !strings.Contains(strings.ToLower(event.When), strings.ToLower(query.Range)) {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (c *LocalCalendar) save(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("assistant: failed to encode event: %w", err)
	}
	if err := c.store.Set(ctx, eventKey(event.ID), data, 0); err != nil {
		return fmt.Errorf("assistant: failed to store event: %w", err)
	}
	return nil
}

func (c *LocalCalendar) load(ctx context.Context, id string) (Event, error) {
	data, err := c.store.Get(ctx, eventKey(id))
	if err != nil {
		return Event{}, err
	}
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("assistant: corrupt event %s: %w", id, err)
	}
	return event, nil
}

func (c *LocalCalendar) index(ctx context.Context) ([]string, error) {
	data, err := c.store.Get(ctx, eventIndexKey)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("assistant: corrupt event index: %w", err)
	}
	return ids, nil
}

func (c *LocalCalendar) updateIndex(ctx context.Context, id string, add bool) error {
	ids, err := c.index(ctx)
	if err != nil {
		return err
	}
	if add {
		ids = append(ids, id)
	} else {
		kept := ids[:0]
		for _, existing := range ids {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		ids = kept
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("assistant: failed to encode event index: %w", err)
	}
	return c.store.Set(ctx, eventIndexKey, data, 0)
}

// LocalDocuments implements DocumentAPI by writing markdown files into a
// directory.
type LocalDocuments struct {
	dir string
}

func NewLocalDocuments(dir string) (*LocalDocuments, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("assistant: failed to create document directory: %w", err)
	}
	return &LocalDocuments{dir: dir}, nil
}

func (d *LocalDocuments) CreateDocument(ctx context.Context, token auth.Token, doc Document) (Document, error) {
	doc.ID = uuid.New().String()
	if doc.Created.IsZero() {
		doc.Created = time.Now()
	}

	content := fmt.Sprintf("# %s\n\nCreated: %s\n", doc.Title, doc.Created.Format(time.RFC3339))
	if doc.Template != "" {
		content += fmt.Sprintf("Template: %s\n", doc.Template)
	}

	path := filepath.Join(d.dir, doc.ID+".md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return Document{}, fmt.Errorf("assistant: failed to write document: %w", err)
	}
	return doc, nil
}

// LogNotifier delivers reminders to the process log. Stand-in until a
// push channel is connected.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, userID, message string) error {
	log.Printf("assistant: REMINDER for %s: %s", userID, message)
	return nil
}
