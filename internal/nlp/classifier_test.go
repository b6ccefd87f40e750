package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandhq/errand/pkg/types"
)

// stubGenerator is a canned TextGenerator for model-tier tests.
type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func (s *stubGenerator) GetModel() string { return "stub" }

func newPatternClassifier(t *testing.T) *PatternClassifier {
	t.Helper()
	pc, err := NewPatternClassifier(DefaultRules())
	require.NoError(t, err)
	return pc
}

func TestPatternClassifier_Matches(t *testing.T) {
	pc := newPatternClassifier(t)

	tests := []struct {
		text string
		want types.IntentType
	}{
		{"Schedule a meeting with Jane tomorrow at 3pm", types.IntentCreateEvent},
		{"cancel my 2pm meeting", types.IntentDeleteEvent},
		{"reschedule the standup to friday", types.IntentUpdateEvent},
		{"what's on my calendar today", types.IntentQueryEvents},
		{"remind me to submit the report", types.IntentSetReminder},
		{"cancel the reminder about standup", types.IntentCancelReminder},
		{"draft a report about Q3", types.IntentCreateDocument},
	}

	for _, tc := range tests {
		intent, err := pc.Classify(context.Background(), tc.text)
		require.NoError(t, err, "input %q", tc.text)
		assert.Equal(t, tc.want, intent.Type, "input %q", tc.text)
		assert.Equal(t, PatternConfidence, intent.Confidence)
	}
}

func TestPatternClassifier_NoMatch(t *testing.T) {
	pc := newPatternClassifier(t)
	_, err := pc.Classify(context.Background(), "tell me a joke")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestPatternClassifier_FirstRuleWins(t *testing.T) {
	pc, err := NewPatternClassifier(&RuleSet{Rules: []Rule{
		{Intent: string(types.IntentSetReminder), Patterns: []string{`\breminder\b`}},
		{Intent: string(types.IntentCancelReminder), Patterns: []string{`\bcancel\b.*\breminder\b`}},
	}})
	require.NoError(t, err)

	// Both rules match; registration order decides.
	intent, err := pc.Classify(context.Background(), "cancel the reminder")
	require.NoError(t, err)
	assert.Equal(t, types.IntentSetReminder, intent.Type)
}

func TestPatternClassifier_SetRulesHotSwap(t *testing.T) {
	pc := newPatternClassifier(t)

	err := pc.SetRules(&RuleSet{Rules: []Rule{
		{Intent: string(types.IntentCreateDocument), Patterns: []string{`.*`}},
	}})
	require.NoError(t, err)

	intent, err := pc.Classify(context.Background(), "schedule a meeting")
	require.NoError(t, err)
	assert.Equal(t, types.IntentCreateDocument, intent.Type)
}

func TestPatternClassifier_InvalidRulesKeepPrevious(t *testing.T) {
	pc := newPatternClassifier(t)

	err := pc.SetRules(&RuleSet{Rules: []Rule{
		{Intent: "NOT_AN_INTENT", Patterns: []string{`.*`}},
	}})
	assert.Error(t, err)

	err = pc.SetRules(&RuleSet{Rules: []Rule{
		{Intent: string(types.IntentCreateEvent), Patterns: []string{`[unclosed`}},
	}})
	assert.Error(t, err)

	intent, err := pc.Classify(context.Background(), "schedule a meeting with Bob")
	require.NoError(t, err)
	assert.Equal(t, types.IntentCreateEvent, intent.Type)
}

func TestModelClassifier_Match(t *testing.T) {
	mc := NewModelClassifier(&stubGenerator{response: `{"intent":"CREATE_EVENT","confidence":0.92}`})
	intent, err := mc.Classify(context.Background(), "pencil in some time with the design folks")
	require.NoError(t, err)
	assert.Equal(t, types.IntentCreateEvent, intent.Type)
	assert.Equal(t, ModelConfidence, intent.Confidence, "model tier confidence is fixed")
}

func TestModelClassifier_UnknownMapsToNoMatch(t *testing.T) {
	mc := NewModelClassifier(&stubGenerator{response: `{"intent":"UNKNOWN","confidence":0.9}`})
	_, err := mc.Classify(context.Background(), "how do magnets work")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestModelClassifier_ProviderErrorIsNotNoMatch(t *testing.T) {
	mc := NewModelClassifier(&stubGenerator{err: errors.New("connection refused")})
	_, err := mc.Classify(context.Background(), "anything")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMatch)
}

func TestFallbackClassifier_PatternFirstThenModel(t *testing.T) {
	pc := newPatternClassifier(t)
	mc := NewModelClassifier(&stubGenerator{response: `{"intent":"SET_REMINDER","confidence":0.8}`})
	fc := NewFallbackClassifier(pc, mc)

	// Pattern tier answers; the model tier is never consulted.
	intent, err := fc.Classify(context.Background(), "schedule a meeting with Jane")
	require.NoError(t, err)
	assert.Equal(t, types.IntentCreateEvent, intent.Type)
	assert.Equal(t, PatternConfidence, intent.Confidence)

	// Pattern tier declines; the model tier answers.
	intent, err = fc.Classify(context.Background(), "don't let me forget about the dentist")
	require.NoError(t, err)
	assert.Equal(t, types.IntentSetReminder, intent.Type)
	assert.Equal(t, ModelConfidence, intent.Confidence)
}

func TestFallbackClassifier_CountsErrorsSeparatelyFromNoMatch(t *testing.T) {
	pc := newPatternClassifier(t)
	failing := NewModelClassifier(&stubGenerator{err: errors.New("timeout")})
	fc := NewFallbackClassifier(pc, failing)

	_, err := fc.Classify(context.Background(), "abstract nonsense")
	assert.ErrorIs(t, err, ErrNoMatch)

	noMatches, tierErrors := fc.Counters()
	assert.Equal(t, uint64(1), noMatches, "pattern tier declined")
	assert.Equal(t, uint64(1), tierErrors, "model tier failed")
}
