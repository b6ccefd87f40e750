package llm

import (
	"fmt"
	"strings"

	"github.com/errandhq/errand/pkg/types"
)

// intentDescriptions maps supported intents to brief descriptions for the
// classification prompt.
var intentDescriptions = map[types.IntentType]string{
	types.IntentCreateEvent:    "Create a calendar event or meeting",
	types.IntentUpdateEvent:    "Change an existing calendar event",
	types.IntentDeleteEvent:    "Remove a calendar event",
	types.IntentQueryEvents:    "List or look up calendar events",
	types.IntentCreateDocument: "Create or generate a document",
	types.IntentSetReminder:    "Set a reminder",
	types.IntentCancelReminder: "Cancel a reminder",
}

// IntentClassificationPrompt generates a strict JSON-only prompt that asks
// the model to classify the input against the closed set of supported
// intents. The prompt instructs the model to answer UNKNOWN when no intent
// fits rather than inventing a new one.
func IntentClassificationPrompt(text string) string {
	var b strings.Builder
	for _, it := range types.KnownIntents {
		fmt.Fprintf(&b, "- %s: %s\n", it, intentDescriptions[it])
	}

	return fmt.Sprintf(`TASK: Classify the user request into exactly one intent.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

INTENTS (ONLY these, or UNKNOWN):
%s- UNKNOWN: None of the above

REQUIRED JSON STRUCTURE:
Your response MUST start with { and end with }
{"intent":"CREATE_EVENT","confidence":0.85}

VALIDATION (STRICT):
1. Start with { - End with }
2. "intent" must be one of the listed values
3. "confidence" is a number between 0 and 1
4. No extra fields
5. No trailing commas

USER REQUEST:
%s

JSON RESPONSE:`, b.String(), text)
}
