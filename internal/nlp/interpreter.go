package nlp

import (
	"context"
	"errors"
	"log"

	"github.com/errandhq/errand/pkg/types"
)

// UnknownConfidence is assigned when neither tier produced a match.
// Callers treat anything at or below this as "nothing understood".
const UnknownConfidence = 0.2

// Interpreter turns raw text into a ranked intent with entities.
// Entity extraction runs unconditionally; intent classification runs
// through the configured (typically tiered) classifier.
type Interpreter struct {
	classifier Classifier
}

// NewInterpreter builds an interpreter over a classifier. Compose the
// classifier with NewFallbackClassifier to get pattern-then-model tiers.
func NewInterpreter(classifier Classifier) *Interpreter {
	return &Interpreter{classifier: classifier}
}

// Interpret never fails: malformed, empty, or not-understood input
// degrades to an UNKNOWN intent with low confidence and whatever entities
// were extractable. The returned intent always has a non-nil entity slice.
func (in *Interpreter) Interpret(ctx context.Context, text string) *types.Intent {
	entities := ExtractEntities(text)

	intent, err := in.classifier.Classify(ctx, text)
	if err != nil {
		if !errors.Is(err, ErrNoMatch) {
			// Tier failures degrade identically to "nothing understood";
			// the fallback chain already counted them.
			log.Printf("WARNING: nlp: classification degraded to UNKNOWN: %v", err)
		}
		return &types.Intent{
			Type:       types.IntentUnknown,
			Confidence: UnknownConfidence,
			Entities:   entities,
		}
	}

	intent.Entities = entities
	return intent
}
