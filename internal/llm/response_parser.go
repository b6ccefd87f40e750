package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/errandhq/errand/pkg/types"
)

// ErrNoIntent is returned when the model response names no supported
// intent, either explicitly (UNKNOWN) or via an unrecognized value.
var ErrNoIntent = errors.New("model response contains no supported intent")

// classificationResponse represents the model's classification result.
type classificationResponse struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// ParseIntentResponse parses a model classification response into an
// intent type. It tolerates markdown fences and surrounding prose despite
// the strict prompt, because local models add them anyway.
//
// Unrecognized or UNKNOWN intent names return ErrNoIntent so the caller
// can distinguish "model answered nothing useful" from a transport error.
func ParseIntentResponse(raw string) (types.IntentType, float64, error) {
	jsonStr := extractJSON(raw)

	var resp classificationResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return types.IntentUnknown, 0, fmt.Errorf("failed to parse classification response: %w", err)
	}

	name := strings.ToUpper(strings.TrimSpace(resp.Intent))
	if !types.IsKnownIntent(name) {
		return types.IntentUnknown, 0, ErrNoIntent
	}

	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return types.IntentType(name), confidence, nil
}

// extractJSON extracts the first valid JSON object from a string that may
// contain extra text. This handles cases where LLMs add explanations
// before/after the JSON despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // no JSON found, return as-is and let the parser fail
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return text[start : i+1]
			}
		}
	}

	return text[start:]
}
