package export

import (
	"strings"
	"time"
)

// DateRule selects how a date column is rendered.
type DateRule int

const (
	// DateNone leaves the value as is.
	DateNone DateRule = iota
	// DateUS renders MM/DD/YYYY.
	DateUS
	// DateUK renders DD/MM/YYYY from the date part only.
	DateUK
	// DateTime12h renders e.g. "25-Aug-25 8:41 PM".
	DateTime12h
)

const (
	sourceDateTime = "2006-01-02 15:04:05"
	sourceDate     = "2006-01-02"
)

// String returns the rule name.
func (r DateRule) String() string {
	switch r {
	case DateUS:
		return "MM/DD/YYYY"
	case DateUK:
		return "DD/MM/YYYY"
	case DateTime12h:
		return "DD-Mon-YY H:MM AM"
	default:
		return "none"
	}
}

// Apply formats a source date string. Empty and unparseable strings are
// returned unchanged.
func (r DateRule) Apply(s string) string {
	if s == "" || r == DateNone {
		return s
	}

	switch r {
	case DateUS:
		t, ok := parseSource(s)
		if !ok {
			return s
		}
		return t.Format("01/02/2006")
	case DateUK:
		datePart, _, _ := strings.Cut(s, " ")
		t, err := time.Parse(sourceDate, datePart)
		if err != nil {
			return s
		}
		return t.Format("02/01/2006")
	case DateTime12h:
		t, err := time.Parse(sourceDateTime, s)
		if err != nil {
			return s
		}
		return t.Format("02-Jan-06 3:04 PM")
	}
	return s
}

func parseSource(s string) (time.Time, bool) {
	if t, err := time.Parse(sourceDateTime, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(sourceDate, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// CleanText replaces carriage returns and newlines with spaces and trims
// surrounding whitespace. Non-string values are returned unchanged.
func CleanText(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return cleanString(s)
}

func cleanString(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
