// Package nlp turns raw text into a typed intent with confidence-scored
// entities. Intent detection is a two-tier strategy: an ordered pattern
// tier answers first, and a model tier is consulted only when no pattern
// matches. Entity extraction is independent of intent detection and always
// runs over the input.
package nlp

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/errandhq/errand/pkg/types"
)

// ErrNoMatch is returned by a classifier that understood the input but
// found no supported intent in it. Fallback composition treats it as
// "fall through to the next tier"; anything else is a tier failure.
var ErrNoMatch = errors.New("no intent matched")

// Classifier maps free text to an intent. Implementations return ErrNoMatch
// when nothing matched and a different error when the tier itself failed
// (timeout, provider outage). Both degrade to UNKNOWN at the interpreter
// boundary, but the distinction is kept for observability.
type Classifier interface {
	Classify(ctx context.Context, text string) (*types.Intent, error)
}

// FallbackClassifier composes classifiers as tiers: each is tried in order
// and ErrNoMatch falls through to the next. Tier errors are counted and
// logged, then also fall through, so a failing model provider degrades to
// "nothing understood" instead of propagating.
type FallbackClassifier struct {
	tiers []Classifier

	noMatches  atomic.Uint64
	tierErrors atomic.Uint64
}

// NewFallbackClassifier builds a fallback chain over the given tiers.
func NewFallbackClassifier(tiers ...Classifier) *FallbackClassifier {
	return &FallbackClassifier{tiers: tiers}
}

// Classify tries each tier in order and returns the first match.
// Returns ErrNoMatch when every tier declined or failed.
func (f *FallbackClassifier) Classify(ctx context.Context, text string) (*types.Intent, error) {
	for _, tier := range f.tiers {
		intent, err := tier.Classify(ctx, text)
		if err == nil {
			return intent, nil
		}
		if errors.Is(err, ErrNoMatch) {
			f.noMatches.Add(1)
			continue
		}
		f.tierErrors.Add(1)
		log.Printf("WARNING: nlp: classifier tier failed, falling through: %v", err)
	}
	return nil, ErrNoMatch
}

// Counters reports how often tiers declined versus failed. Read-only
// introspection; both outcomes look identical to callers of Classify.
func (f *FallbackClassifier) Counters() (noMatches, tierErrors uint64) {
	return f.noMatches.Load(), f.tierErrors.Load()
}
