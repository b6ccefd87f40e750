package nlp

import (
	"context"
	"sync"

	"github.com/errandhq/errand/pkg/types"
)

// PatternConfidence is the fixed confidence assigned to pattern-tier
// matches. The pattern tier is the most reliable tier.
const PatternConfidence = 0.9

// PatternClassifier evaluates an ordered rule set against normalized input.
// The first pattern that matches wins. Rules can be hot-swapped via
// SetRules under concurrent classification.
type PatternClassifier struct {
	mu    sync.RWMutex
	rules []compiledRule
}

// NewPatternClassifier builds a classifier from a rule set.
func NewPatternClassifier(rs *RuleSet) (*PatternClassifier, error) {
	pc := &PatternClassifier{}
	if err := pc.SetRules(rs); err != nil {
		return nil, err
	}
	return pc, nil
}

// SetRules replaces the active rule set atomically. Invalid rules leave
// the previous set in place.
func (pc *PatternClassifier) SetRules(rs *RuleSet) error {
	compiled, err := rs.compile()
	if err != nil {
		return err
	}

	pc.mu.Lock()
	pc.rules = compiled
	pc.mu.Unlock()
	return nil
}

// Classify matches the normalized text against the rules in order.
// Returns ErrNoMatch when no pattern fires.
func (pc *PatternClassifier) Classify(ctx context.Context, text string) (*types.Intent, error) {
	normalized := Normalize(text)

	pc.mu.RLock()
	rules := pc.rules
	pc.mu.RUnlock()

	for _, rule := range rules {
		for _, re := range rule.patterns {
			if re.MatchString(normalized) {
				return &types.Intent{
					Type:       rule.intent,
					Confidence: PatternConfidence,
				}, nil
			}
		}
	}
	return nil, ErrNoMatch
}
