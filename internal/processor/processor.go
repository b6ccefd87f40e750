// Package processor gates intent execution on confidence and dispatches
// to a domain action by intent type. It is the resilience boundary for the
// natural-language path: domain-action failures and panics are recovered
// into structured PROCESSING_ERROR results, so callers never see a raw
// error from this path.
package processor

import (
	"context"
	"fmt"
	"log"

	"github.com/errandhq/errand/internal/router"
	"github.com/errandhq/errand/pkg/types"
)

// DefaultLowConfidenceThreshold rejects intents the pipeline is not sure
// about before any domain action runs.
const DefaultLowConfidenceThreshold = 0.5

// intentCommands maps each supported intent to the command it dispatches.
var intentCommands = map[types.IntentType]string{
	types.IntentCreateEvent:    "calendar.event.create",
	types.IntentUpdateEvent:    "calendar.event.update",
	types.IntentDeleteEvent:    "calendar.event.delete",
	types.IntentQueryEvents:    "calendar.event.query",
	types.IntentCreateDocument: "document.create",
	types.IntentSetReminder:    "reminder.set",
	types.IntentCancelReminder: "reminder.cancel",
}

// CommandFor returns the command name an intent dispatches to.
func CommandFor(t types.IntentType) (string, bool) {
	name, ok := intentCommands[t]
	return name, ok
}

// Processor validates intents and routes them to domain actions through
// the command router.
type Processor struct {
	router    *router.Router
	threshold float64
}

// New creates a processor over the given router. A non-positive threshold
// falls back to the default.
func New(r *router.Router, lowConfidenceThreshold float64) *Processor {
	if lowConfidenceThreshold <= 0 {
		lowConfidenceThreshold = DefaultLowConfidenceThreshold
	}
	return &Processor{router: r, threshold: lowConfidenceThreshold}
}

// Process gates on confidence, then on intent type, then dispatches the
// mapped command. It always returns a structured result, never an error.
func (p *Processor) Process(ctx context.Context, intent *types.Intent, cctx types.CommandContext) (result *types.CommandResult) {
	if intent == nil {
		return types.Fail(types.ErrCodeUnknownIntent, "No intent provided")
	}

	// The confidence gate is independent of intent type: even a supported
	// intent below threshold is rejected without touching a domain action.
	if intent.Confidence < p.threshold {
		return types.Fail(types.ErrCodeLowConfidence,
			fmt.Sprintf("Intent confidence %.2f below threshold %.2f", intent.Confidence, p.threshold))
	}

	if intent.Type == types.IntentUnknown {
		return types.Fail(types.ErrCodeUnknownIntent, "Could not determine what you want to do")
	}

	name, ok := CommandFor(intent.Type)
	if !ok {
		return types.Fail(types.ErrCodeUnknownIntent,
			fmt.Sprintf("No action mapped for intent %s", intent.Type))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: processor: panic in domain action for %s: %v", intent.Type, r)
			result = types.Fail(types.ErrCodeProcessingError, "Internal error while processing the request")
		}
	}()

	cmd := &types.Command{
		Name: name,
		Parameters: map[string]any{
			"intent":   string(intent.Type),
			"entities": intent.Entities,
		},
		Context: cctx,
	}

	res, err := p.router.Dispatch(ctx, cmd)
	if err != nil {
		// The router propagates handler errors; this boundary recovers them.
		log.Printf("ERROR: processor: domain action %s failed (request=%s): %v", name, cctx.RequestID, err)
		return types.Fail(types.ErrCodeProcessingError, "The requested action failed")
	}

	if res.Success {
		data := map[string]any{"intent": string(intent.Type)}
		if res.Data != nil {
			data["result"] = res.Data
		}
		return types.OK(data)
	}
	return res
}
