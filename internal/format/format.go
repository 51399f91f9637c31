// Package format holds the pure display helpers shared by every dashboard
// view: date formatting, age calculation, severity/status classification,
// and clinical frequency normalization. Functions that depend on the current
// time take it as a parameter so callers can supply fixed clocks.
package format

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Date renders a long-form absolute date, e.g. "January 15, 2024".
func Date(t time.Time) string {
	return t.Format("January 2, 2006")
}

// DateTime renders a short absolute date with time, e.g. "Jan 15, 2024 9:30 AM".
func DateTime(t time.Time) string {
	return t.Format("Jan 2, 2006 3:04 PM")
}

const dayMillis = 24 * 60 * 60 * 1000

// RelativeDate renders target relative to now: "Today", "Tomorrow",
// "Yesterday", "In N days" or "N days ago" within a seven-day window, and
// the long-form absolute date beyond it.
//
// The day offset is the ceiling of the millisecond difference divided by one
// day, not a 24-hour-bucket floor. A target 23h59m ahead is therefore
// "Tomorrow", and one 12h behind is still "Today".
func RelativeDate(now, target time.Time) string {
	diffMs := target.UnixMilli() - now.UnixMilli()
	days := int(math.Ceil(float64(diffMs) / dayMillis))

	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "Tomorrow"
	case days == -1:
		return "Yesterday"
	case days > 0 && days <= 7:
		return "In " + strconv.Itoa(days) + " days"
	case days < 0 && days >= -7:
		return strconv.Itoa(-days) + " days ago"
	}
	return Date(target)
}

// Age returns whole years between a date of birth and now, using the
// completed-birthdays rule: the age decrements by one when the current
// month/day falls before the birth month/day. Unparseable input yields 0.
func Age(dateOfBirth string, now time.Time) int {
	birth, err := time.Parse("2006-01-02", dateOfBirth)
	if err != nil {
		birth, err = time.Parse(time.RFC3339, dateOfBirth)
		if err != nil {
			return 0
		}
	}
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() ||
		(now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// Tier is a priority-ordered visual classification bucket. Every
// classification function is total: unrecognized input maps to TierNeutral.
type Tier int

const (
	TierNeutral Tier = iota
	TierGood
	TierDone
	TierWarn
	TierBad
	TierCritical
)

func (t Tier) String() string {
	switch t {
	case TierGood:
		return "good"
	case TierDone:
		return "done"
	case TierWarn:
		return "warn"
	case TierBad:
		return "bad"
	case TierCritical:
		return "critical"
	}
	return "neutral"
}

// SeverityTier maps a care-gap severity to its display tier,
// case-insensitively.
func SeverityTier(severity string) Tier {
	switch strings.ToLower(severity) {
	case "critical":
		return TierCritical
	case "high":
		return TierBad
	case "medium":
		return TierWarn
	case "low":
		return TierGood
	}
	return TierNeutral
}

// StatusTier maps a medication or appointment status to its display tier,
// grouping semantically equivalent states.
func StatusTier(status string) Tier {
	switch strings.ToLower(status) {
	case "active", "scheduled":
		return TierGood
	case "completed":
		return TierDone
	case "on-hold", "pending":
		return TierWarn
	case "stopped", "cancelled", "no-show":
		return TierBad
	}
	return TierNeutral
}

// frequencySynonyms is matched in order; the first substring hit wins.
var frequencySynonyms = []struct {
	substrings []string
	token      string
}{
	{[]string{"once daily", "qd"}, "1x/day"},
	{[]string{"twice daily", "bid"}, "2x/day"},
	{[]string{"three times", "tid"}, "3x/day"},
	{[]string{"four times", "qid"}, "4x/day"},
	{[]string{"as needed", "prn"}, "As needed"},
}

// Frequency reduces a free-text clinical frequency ("Take twice daily with
// food", "tablet PRN") to a compact display token. Input that matches no
// synonym passes through unchanged.
func Frequency(frequency string) string {
	lower := strings.ToLower(frequency)
	for _, entry := range frequencySynonyms {
		for _, sub := range entry.substrings {
			if strings.Contains(lower, sub) {
				return entry.token
			}
		}
	}
	return frequency
}

// Truncate shortens text to at most max runes, replacing the tail with an
// ellipsis when it does.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// Initials builds uppercase initials from a first and last name. The first
// rune is taken, not the first byte, so multibyte names stay intact.
func Initials(firstName, lastName string) string {
	var b strings.Builder
	for _, name := range []string{firstName, lastName} {
		for _, r := range name {
			b.WriteString(strings.ToUpper(string(r)))
			break
		}
	}
	return b.String()
}
