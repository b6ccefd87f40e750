package nlp

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/errandhq/errand/pkg/types"
)

// Rule binds an intent to an ordered list of regular expressions. Rules
// are evaluated in file order and the first matching pattern wins.
type Rule struct {
	Intent   string   `yaml:"intent"`
	Patterns []string `yaml:"patterns"`
}

// RuleSet is the on-disk format for pattern-tier rules.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// compiledRule is a Rule with its patterns compiled.
type compiledRule struct {
	intent   types.IntentType
	patterns []*regexp.Regexp
}

// LoadRules reads and validates a pattern-rule YAML file.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nlp: failed to read rules file: %w", err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("nlp: failed to parse rules file: %w", err)
	}
	if len(rs.Rules) == 0 {
		return nil, fmt.Errorf("nlp: rules file %s contains no rules", path)
	}
	return &rs, nil
}

// compile validates intent names and regexes. Order is preserved.
func (rs *RuleSet) compile() ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if !types.IsKnownIntent(r.Intent) {
			return nil, fmt.Errorf("nlp: rule references unknown intent %q", r.Intent)
		}
		cr := compiledRule{intent: types.IntentType(r.Intent)}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("nlp: invalid pattern %q for %s: %w", p, r.Intent, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		compiled = append(compiled, cr)
	}
	return compiled, nil
}

// DefaultRules returns the built-in pattern rules used when no rules file
// is configured. Ordering matters: earlier rules shadow later ones.
func DefaultRules() *RuleSet {
	return &RuleSet{Rules: []Rule{
		{
			Intent: string(types.IntentCancelReminder),
			Patterns: []string{
				`\b(cancel|delete|remove)\b.*\breminders?\b`,
			},
		},
		{
			Intent: string(types.IntentSetReminder),
			Patterns: []string{
				`\bremind me\b`,
				`\b(set|add|create)\b.*\breminder\b`,
			},
		},
		{
			Intent: string(types.IntentDeleteEvent),
			Patterns: []string{
				`\b(cancel|delete|remove)\b.*\b(meeting|event|appointment|call)\b`,
			},
		},
		{
			Intent: string(types.IntentUpdateEvent),
			Patterns: []string{
				`\b(move|reschedule|update|change|push)\b.*\b(meeting|event|appointment|call)\b`,
				`\breschedule\b`,
			},
		},
		{
			Intent: string(types.IntentCreateEvent),
			Patterns: []string{
				`\b(schedule|book|set up|arrange|create|add)\b.*\b(meeting|event|appointment|call)\b`,
				`\bmeet(ing)? with\b`,
				`\bput\b.*\bon (my|the) calendar\b`,
			},
		},
		{
			Intent: string(types.IntentQueryEvents),
			Patterns: []string{
				`\b(what|show|list|any|do i have)\b.*\b(meetings?|events?|appointments?|calendar|schedule)\b`,
				`\bwhat('s| is) on my calendar\b`,
			},
		},
		{
			Intent: string(types.IntentCreateDocument),
			Patterns: []string{
				`\b(create|generate|draft|write|prepare)\b.*\b(document|doc|report|notes|summary)\b`,
			},
		},
	}}
}
