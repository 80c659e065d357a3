// Package kst converts between UTC instants and KST (UTC+9) calendar
// representations. Attendance records are bucketed by KST calendar day, so
// every layer has to agree on which day an instant belongs to regardless of
// the timezone the process happens to run in. All conversions here go through
// one fixed +09:00 offset and never touch the host-local zone.
package kst

import (
	"fmt"
	"strings"
	"time"
)

// Zone is the fixed +09:00 offset shared by every conversion in this package.
var Zone = time.FixedZone("KST", 9*60*60)

const (
	dayLayout     = "2006-01-02"
	clockLayout   = "15:04"
	composeLayout = "2006-01-02 15:04"
)

// ParseError reports malformed temporal input. Malformed input is a caller
// contract violation and is never silently coerced to "now" or epoch.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("kst: cannot parse %q: %s", e.Input, e.Reason)
}

// ParseInstant parses an ISO-8601 timestamp with an explicit offset or Z.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &ParseError{Input: s, Reason: "not an ISO-8601 instant"}
	}
	return t, nil
}

// CalendarDayOf returns the KST calendar day (YYYY-MM-DD) the instant falls on.
func CalendarDayOf(instant time.Time) string {
	return instant.In(Zone).Format(dayLayout)
}

// TimeOfDay returns the KST wall-clock time (HH:mm, 24-hour) of the instant.
func TimeOfDay(instant time.Time) string {
	return instant.In(Zone).Format(clockLayout)
}

// ComposeInstant builds the instant at the given KST calendar day and
// wall-clock time. The result carries a literal +09:00 offset rather than a
// conversion through the host zone. Both arguments must already be canonical
// (YYYY-MM-DD and HH:mm); anything else fails with a ParseError.
func ComposeInstant(day, clock string) (time.Time, error) {
	t, err := time.ParseInLocation(composeLayout, day+" "+clock, Zone)
	if err != nil {
		return time.Time{}, &ParseError{Input: day + " " + clock, Reason: "want YYYY-MM-DD and HH:mm"}
	}
	// time.Parse tolerates a few non-canonical spellings (single-digit
	// fields, out-of-range normalization is rejected but "2026-1-2" is not).
	// Round-trip to enforce the canonical form.
	if t.Format(dayLayout) != day || t.Format(clockLayout) != clock {
		return time.Time{}, &ParseError{Input: day + " " + clock, Reason: "not canonical YYYY-MM-DD / HH:mm"}
	}
	return t, nil
}

// ParseDay validates a canonical KST calendar day string.
func ParseDay(day string) (string, error) {
	t, err := time.ParseInLocation(dayLayout, day, Zone)
	if err != nil || t.Format(dayLayout) != day {
		return "", &ParseError{Input: day, Reason: "want YYYY-MM-DD"}
	}
	return day, nil
}

// DisplayDate renders a calendar day as YYYY.MM.DD for presentation.
func DisplayDate(day string) string {
	return strings.ReplaceAll(day, "-", ".")
}

// DisplayDateTime renders an instant as a KST date-time for presentation.
func DisplayDateTime(instant time.Time) string {
	return instant.In(Zone).Format("2006.01.02 15:04")
}
