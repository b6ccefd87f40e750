package nlp

import (
	"context"
	"errors"
	"fmt"

	"github.com/errandhq/errand/internal/llm"
	"github.com/errandhq/errand/pkg/types"
)

// ModelConfidence is the fixed confidence assigned to model-tier matches,
// reflecting the tier's lower reliability compared to the pattern tier.
const ModelConfidence = 0.7

// ModelClassifier delegates classification to an external model with a
// constrained prompt enumerating the closed set of supported intents.
// It is the fallback tier, consulted only when no pattern matches.
type ModelClassifier struct {
	generator llm.TextGenerator
}

// NewModelClassifier builds a model-tier classifier over a text generator.
func NewModelClassifier(generator llm.TextGenerator) *ModelClassifier {
	return &ModelClassifier{generator: generator}
}

// Classify asks the model to pick one supported intent. A model answer of
// UNKNOWN (or an unrecognized intent name) maps to ErrNoMatch; transport
// and provider failures surface as errors so the fallback chain can count
// them separately.
func (mc *ModelClassifier) Classify(ctx context.Context, text string) (*types.Intent, error) {
	prompt := llm.IntentClassificationPrompt(text)

	raw, err := mc.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("nlp: model classification failed: %w", err)
	}

	intentType, _, err := llm.ParseIntentResponse(raw)
	if err != nil {
		if errors.Is(err, llm.ErrNoIntent) {
			return nil, ErrNoMatch
		}
		return nil, fmt.Errorf("nlp: unusable model response: %w", err)
	}

	return &types.Intent{
		Type:       intentType,
		Confidence: ModelConfidence,
	}, nil
}
