package nlp

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/errandhq/errand/pkg/types"
)

// Normalize trims and lower-cases input for pattern matching.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Extraction confidence per extractor. Duration and date phrases have
// rigid shapes; location and title captures are fuzzier.
const (
	dateTimeConfidence = 0.8
	durationConfidence = 0.9
	locationConfidence = 0.6
	personConfidence   = 0.8
	titleConfidence    = 0.7
)

var (
	timePhrase  = `\d{1,2}(?::\d{2})?\s*(?:am|pm)`
	dayPhrase   = `(?:tomorrow|today|tonight|this (?:morning|afternoon|evening)|next week|(?:next |this )?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday))`
	monthPhrase = `(?:on\s+)?(?:january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept?|oct|nov|dec)\.?\s+\d{1,2}(?:st|nd|rd|th)?`

	dateTimeRe = regexp.MustCompile(`(?i)(?:(?:` + dayPhrase + `|` + monthPhrase + `)(?:\s+at\s+` + timePhrase + `)?|(?:at\s+)?` + timePhrase + `)`)

	durationRe = regexp.MustCompile(`(?i)\b(?:for\s+)?(\d+(?:\.\d+)?)\s*(minutes?|mins?|hours?|hrs?)\b`)

	// "at the office", "in conference room b". The lookahead-free capture
	// stops at punctuation or a following time/person phrase.
	locationRe = regexp.MustCompile(`(?i)\b(?:at|in)\s+((?:the\s+)?[a-z][a-z0-9 ]{2,40}?)(?:[,.!?]|$|\s+(?:tomorrow|today|tonight|next|this|at|on|with|for|from)\b)`)

	personRe = regexp.MustCompile(`(?i)\bwith\s+([a-z]+(?:\s+(?:and\s+)?[a-z]+)?)\b`)

	quotedTitleRe = regexp.MustCompile(`"([^"]{1,80})"|'([^']{1,80})'`)
	aboutTitleRe  = regexp.MustCompile(`(?i)\babout\s+(.{2,60}?)(?:[,.!?]|$|\s+(?:tomorrow|today|tonight|next|this|at|on|with|for)\b)`)
)

// words that follow "with"/"at"/"in" without naming a person or place.
var captureStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "my": true, "me": true,
	"our": true, "your": true, "their": true, "some": true,
	"everyone": true, "team": true, "noon": true, "midnight": true,
}

// nonNameWords end a person-name capture when the regex ran past the name.
var nonNameWords = map[string]bool{
	"at": true, "on": true, "in": true, "for": true, "from": true,
	"about": true, "to": true, "next": true, "this": true,
}

// timeWords suppresses location captures that are really time phrases.
var timeWords = map[string]bool{
	"tomorrow": true, "today": true, "tonight": true, "noon": true,
	"midnight": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true, "sunday": true,
}

// ExtractEntities runs the ordered per-type extractors over the trimmed
// input. Each extractor may append zero or more entities and overlapping
// spans are allowed: no de-duplication is performed, downstream consumers
// pick the entity they need by type. Returns an empty slice, never nil.
func ExtractEntities(text string) []types.Entity {
	text = strings.TrimSpace(text)
	entities := make([]types.Entity, 0)
	if text == "" {
		return entities
	}

	entities = append(entities, extractDateTimes(text)...)
	entities = append(entities, extractDurations(text)...)
	entities = append(entities, extractLocations(text)...)
	entities = append(entities, extractPersons(text)...)
	entities = append(entities, extractTitles(text)...)
	return entities
}

func extractDateTimes(text string) []types.Entity {
	var out []types.Entity
	for _, loc := range dateTimeRe.FindAllStringIndex(text, -1) {
		value := strings.TrimSpace(text[loc[0]:loc[1]])
		out = append(out, types.Entity{
			Type:       types.EntityDateTime,
			Value:      value,
			Confidence: dateTimeConfidence,
			Span:       &types.Span{Start: loc[0], End: loc[1]},
		})
	}
	return out
}

func extractDurations(text string) []types.Entity {
	var out []types.Entity
	for _, m := range durationRe.FindAllStringSubmatchIndex(text, -1) {
		value := text[m[0]:m[1]]
		amount, _ := strconv.ParseFloat(text[m[2]:m[3]], 64)
		unit := strings.ToLower(text[m[4]:m[5]])

		minutes := amount
		if strings.HasPrefix(unit, "h") {
			minutes = amount * 60
		}

		out = append(out, types.Entity{
			Type:       types.EntityDuration,
			Value:      strings.TrimSpace(value),
			Confidence: durationConfidence,
			Span:       &types.Span{Start: m[0], End: m[1]},
			Metadata:   map[string]any{"minutes": minutes},
		})
	}
	return out
}

func extractLocations(text string) []types.Entity {
	var out []types.Entity
	for _, m := range locationRe.FindAllStringSubmatchIndex(text, -1) {
		value := strings.TrimSpace(text[m[2]:m[3]])
		if strings.HasPrefix(strings.ToLower(value), "the ") {
			value = strings.TrimSpace(value[4:])
		}
		words := strings.Fields(value)
		if len(words) == 0 {
			continue
		}
		firstWord := strings.ToLower(words[0])
		if timeWords[firstWord] || (captureStopwords[firstWord] && len(words) == 1) {
			continue
		}
		out = append(out, types.Entity{
			Type:       types.EntityLocation,
			Value:      value,
			Confidence: locationConfidence,
			Span:       &types.Span{Start: m[2], End: m[3]},
		})
	}
	return out
}

func extractPersons(text string) []types.Entity {
	var out []types.Entity
	for _, m := range personRe.FindAllStringSubmatchIndex(text, -1) {
		raw := strings.TrimSpace(text[m[2]:m[3]])
		for _, name := range splitNames(raw) {
			name = trimNonNameWords(name)
			if name == "" {
				continue
			}
			out = append(out, types.Entity{
				Type:       types.EntityPerson,
				Value:      capitalizeName(name),
				Confidence: personConfidence,
				Span:       &types.Span{Start: m[2], End: m[3]},
			})
		}
	}
	return out
}

// trimNonNameWords cuts a captured name at the first word that cannot be
// part of a person's name ("with jane tomorrow" captures "jane tomorrow").
func trimNonNameWords(name string) string {
	words := strings.Fields(name)
	kept := words[:0]
	for _, w := range words {
		lw := strings.ToLower(w)
		if timeWords[lw] || captureStopwords[lw] || nonNameWords[lw] {
			break
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func extractTitles(text string) []types.Entity {
	var out []types.Entity
	for _, m := range quotedTitleRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if start == -1 {
			start, end = m[4], m[5]
		}
		out = append(out, types.Entity{
			Type:       types.EntityTitle,
			Value:      text[start:end],
			Confidence: titleConfidence,
			Span:       &types.Span{Start: start, End: end},
		})
	}
	for _, m := range aboutTitleRe.FindAllStringSubmatchIndex(text, -1) {
		value := strings.TrimSpace(text[m[2]:m[3]])
		if value == "" {
			continue
		}
		out = append(out, types.Entity{
			Type:       types.EntityTitle,
			Value:      value,
			Confidence: titleConfidence,
			Span:       &types.Span{Start: m[2], End: m[3]},
		})
	}
	return out
}

// splitNames breaks "jane and bob" into individual names.
func splitNames(raw string) []string {
	parts := regexp.MustCompile(`(?i)\s+and\s+`).Split(raw, -1)
	var names []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			names = append(names, p)
		}
	}
	return names
}

// capitalizeName upper-cases the first letter of each word so lower-cased
// input still yields presentable person values.
func capitalizeName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
