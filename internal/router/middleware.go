package router

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/errandhq/errand/pkg/types"
)

// RequestID stamps a fresh request ID and timestamp onto commands that
// arrive without one, so every dispatch is traceable.
func RequestID() Middleware {
	return func(ctx context.Context, cmd *types.Command) (*types.Command, error) {
		if cmd.Context.RequestID == "" {
			cmd.Context.RequestID = uuid.New().String()
		}
		if cmd.Context.Timestamp.IsZero() {
			cmd.Context.Timestamp = time.Now()
		}
		return cmd, nil
	}
}

// Logging logs every dispatched command with its request ID.
func Logging() Middleware {
	return func(ctx context.Context, cmd *types.Command) (*types.Command, error) {
		log.Printf("router: dispatching %s (request=%s user=%s)",
			cmd.Name, cmd.Context.RequestID, cmd.Context.UserID)
		return cmd, nil
	}
}
