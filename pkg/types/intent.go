package types

// IntentType is the closed set of actions the assistant understands.
type IntentType string

// Supported intents. IntentUnknown is returned when neither the pattern
// tier nor the model tier produced a match.
const (
	IntentCreateEvent    IntentType = "CREATE_EVENT"
	IntentUpdateEvent    IntentType = "UPDATE_EVENT"
	IntentDeleteEvent    IntentType = "DELETE_EVENT"
	IntentQueryEvents    IntentType = "QUERY_EVENTS"
	IntentCreateDocument IntentType = "CREATE_DOCUMENT"
	IntentSetReminder    IntentType = "SET_REMINDER"
	IntentCancelReminder IntentType = "CANCEL_REMINDER"
	IntentUnknown        IntentType = "UNKNOWN"
)

// KnownIntents lists every supported intent except UNKNOWN, in a stable
// order used when building model prompts.
var KnownIntents = []IntentType{
	IntentCreateEvent,
	IntentUpdateEvent,
	IntentDeleteEvent,
	IntentQueryEvents,
	IntentCreateDocument,
	IntentSetReminder,
	IntentCancelReminder,
}

// IsKnownIntent reports whether s names a supported intent (UNKNOWN is not
// considered supported).
func IsKnownIntent(s string) bool {
	for _, it := range KnownIntents {
		if string(it) == s {
			return true
		}
	}
	return false
}

// Intent is the system's best guess at what a free-text input means.
// It is created by the extractor, consumed once by the intent processor,
// and never persisted. Confidence is always in [0,1].
type Intent struct {
	Type       IntentType `json:"type"`
	Confidence float64    `json:"confidence"`
	Entities   []Entity   `json:"entities"`
}
