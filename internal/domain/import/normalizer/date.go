package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrEmptyDate = errors.New("empty date")

// ParseDate parses a date cell with the given Go layout and returns midnight UTC
// of that calendar day. Cells carrying a time after the date ("2024-01-15 10:32:00",
// "2024-01-15T10:32:00Z") are retried on the leading date part only.
func ParseDate(raw, layout string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrEmptyDate
	}

	t, err := time.Parse(layout, s)
	if err == nil {
		return calendarDay(t), nil
	}

	if prefix, ok := datePrefix(s, layout); ok {
		if t, perr := time.Parse(layout, prefix); perr == nil {
			return calendarDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q does not match layout %q: %w", s, layout, err)
}

// datePrefix cuts s at the first 'T' or space past the layout's own length.
func datePrefix(s, layout string) (string, bool) {
	if len(s) <= len(layout) {
		return "", false
	}
	if i := strings.IndexAny(s[len(layout):], " T"); i >= 0 {
		return s[:len(layout)+i], true
	}
	return "", false
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
