package assistant

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// defaultReminderHour is used when a day is named without a clock time
// ("remind me tomorrow").
const defaultReminderHour = 9

var (
	clockRe    = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	relativeRe = regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(minutes?|mins?|hours?|hrs?)\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// reminderDelay resolves a free-text time phrase to a delay from now.
// Phrases it cannot place resolve to zero, firing the reminder
// immediately rather than silently dropping it.
func reminderDelay(when string, now time.Time) time.Duration {
	when = strings.ToLower(strings.TrimSpace(when))
	if when == "" {
		return 0
	}

	if m := relativeRe.FindStringSubmatch(when); m != nil {
		amount, _ := strconv.Atoi(m[1])
		unit := time.Minute
		if strings.HasPrefix(m[2], "h") {
			unit = time.Hour
		}
		return time.Duration(amount) * unit
	}

	target := now
	dayOffset := 0
	hasDay := false
	switch {
	case strings.Contains(when, "tomorrow"):
		dayOffset = 1
		hasDay = true
	case strings.Contains(when, "today"), strings.Contains(when, "tonight"):
		hasDay = true
	default:
		for name, wd := range weekdays {
			if !strings.Contains(when, name) {
				continue
			}
			dayOffset = int(wd-now.Weekday()+7) % 7
			if dayOffset == 0 || strings.Contains(when, "next "+name) {
				dayOffset += 7
			}
			hasDay = true
			break
		}
	}
	target = target.AddDate(0, 0, dayOffset)

	hour, minute := defaultReminderHour, 0
	hasClock := false
	if m := clockRe.FindStringSubmatch(when); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if strings.EqualFold(m[3], "pm") && hour < 12 {
			hour += 12
		}
		if strings.EqualFold(m[3], "am") && hour == 12 {
			hour = 0
		}
		hasClock = true
	}

	if !hasDay && !hasClock {
		return 0
	}

	at := time.Date(target.Year(), target.Month(), target.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		if hasDay {
			// "today at 8am" said in the afternoon: fire now.
			return 0
		}
		// A bare clock time that already passed means the next day.
		at = at.AddDate(0, 0, 1)
	}
	return at.Sub(now)
}
