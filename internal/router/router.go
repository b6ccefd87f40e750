// Package router provides the command router: a stable many-to-one mapping
// from a dot-namespaced command name to exactly one handler, with a linear
// middleware chain applied before dispatch.
//
// The router is a thin dispatch boundary. It does not recover handler
// errors; they surface to the caller. The intent processor is the
// resilience boundary for the natural-language path.
package router

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/errandhq/errand/pkg/types"
)

// Handler executes a single command and returns a terminal result.
// Handlers may enqueue deferred work on the job queue; slow or rate-limited
// work should never run inline.
type Handler func(ctx context.Context, cmd *types.Command) (*types.CommandResult, error)

// Middleware receives a command and returns a possibly transformed command
// before the next middleware runs or before final dispatch. Returning an
// error aborts the dispatch.
type Middleware func(ctx context.Context, cmd *types.Command) (*types.Command, error)

// Router maps command names to handlers. Registration is last-wins:
// re-registering a name overwrites the previous handler with a logged
// warning. This is deliberate hot-swap support, not an error.
//
// The registry supports concurrent dispatch under a single-writer
// registration discipline.
type Router struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	middlewares []Middleware
}

// New creates an empty router.
func New() *Router {
	return &Router{
		handlers: make(map[string]Handler),
	}
}

// Register installs a handler for the given command name. The last
// registration wins; overwriting an existing handler is logged so hot
// swaps stay observable.
func (r *Router) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		log.Printf("WARNING: router: overwriting handler for %q", name)
	}
	r.handlers[name] = handler
}

// Use appends a middleware to the chain. Middlewares run in registration
// order for every dispatched command.
func (r *Router) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// HandlerNames returns the currently registered command names. Read-only
// introspection for metrics and debugging.
func (r *Router) HandlerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch runs the middleware chain over the command and invokes the
// handler registered for the (possibly transformed) name.
//
// Router-level failures (missing name, no handler) come back as failed
// results with MISSING_COMMAND / NO_HANDLER codes and a nil error. Handler
// and middleware errors propagate to the caller unrecovered.
func (r *Router) Dispatch(ctx context.Context, cmd *types.Command) (*types.CommandResult, error) {
	if cmd == nil || cmd.Name == "" {
		return types.Fail(types.ErrCodeMissingCommand, "Missing command"), nil
	}

	r.mu.RLock()
	chain := r.middlewares
	r.mu.RUnlock()

	// Middleware and handler execution for a single command is strictly
	// sequential; no reordering across the chain.
	for _, mw := range chain {
		next, err := mw(ctx, cmd)
		if err != nil {
			return nil, fmt.Errorf("router: middleware failed for %q: %w", cmd.Name, err)
		}
		if next != nil {
			cmd = next
		}
	}

	r.mu.RLock()
	handler, ok := r.handlers[cmd.Name]
	r.mu.RUnlock()

	if !ok {
		return types.Fail(types.ErrCodeNoHandler,
			fmt.Sprintf("No handler registered for %q", cmd.Name)), nil
	}

	if cmd.Parameters == nil {
		cmd.Parameters = make(map[string]any)
	}
	if cmd.Context.SessionData == nil {
		cmd.Context.SessionData = make(map[string]any)
	}

	return handler(ctx, cmd)
}
