// Package types defines the core data structures for the errand assistant:
// commands, command results, extracted entities, intents, and deferred jobs.
// These types are shared between the router, the NLP pipeline, and the job
// queue and carry no behavior beyond validation and state transitions.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Command is a named unit of work dispatched through the router.
// Name is a dot-namespaced identifier ("calendar.event.create") that
// uniquely selects a handler. A Command is immutable once dispatched.
type Command struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Context    CommandContext `json:"context"`
}

// CommandContext carries cross-cutting metadata for a single invocation.
// It is created at ingress and read-only inside handlers, except for
// SessionData which handlers may extend with pipeline-local state such as
// accumulated entities.
type CommandContext struct {
	UserID      string         `json:"user_id"`
	RequestID   string         `json:"request_id"`
	Timestamp   time.Time      `json:"timestamp"`
	SessionData map[string]any `json:"session_data,omitempty"`
}

// NewContext creates a CommandContext for a new invocation with a fresh
// request ID.
func NewContext(userID string) CommandContext {
	return CommandContext{
		UserID:      userID,
		RequestID:   uuid.New().String(),
		Timestamp:   time.Now(),
		SessionData: make(map[string]any),
	}
}

// Param returns a string parameter by key, or the empty string when the key
// is absent or holds a non-string value.
func (c *Command) Param(key string) string {
	if c.Parameters == nil {
		return ""
	}
	if v, ok := c.Parameters[key].(string); ok {
		return v
	}
	return ""
}
