package core

import (
	"time"
)

// =============================================================================
// WINDOW - Time boundary for reports and settlement queries
// =============================================================================

// MaxWindowDays bounds period reports. A year plus a leap day.
const MaxWindowDays = 366

const DateLayout = "2006-01-02"

// Window is an inclusive [From, To] time range.
//
// Examples:
//   - One business day: 2025-03-10 00:00:00 .. 2025-03-10 23:59:59.999999999
//   - A month:          2025-03-01 00:00:00 .. 2025-03-31 23:59:59.999999999
type Window struct {
	From time.Time
	To   time.Time
}

// Day returns the window covering the calendar day of t in t's location.
func Day(t time.Time) Window {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return Window{From: start, To: start.AddDate(0, 0, 1).Add(-time.Nanosecond)}
}

// Days returns the window from the start of `from` to the end of `to`.
func Days(from, to time.Time) Window {
	return Window{From: Day(from).From, To: Day(to).To}
}

// ParseDay parses a YYYY-MM-DD date into a one-day window in loc.
func ParseDay(s string, loc *time.Location) (Window, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return Window{}, &ValidationError{Field: "date", Message: "use YYYY-MM-DD", Err: ErrInvalidWindow}
	}
	return Day(d), nil
}

// ParseRange parses two YYYY-MM-DD dates into an inclusive multi-day window.
func ParseRange(from, to string, loc *time.Location) (Window, error) {
	f, err := time.ParseInLocation(DateLayout, from, loc)
	if err != nil {
		return Window{}, &ValidationError{Field: "from", Message: "use YYYY-MM-DD", Err: ErrInvalidWindow}
	}
	t, err := time.ParseInLocation(DateLayout, to, loc)
	if err != nil {
		return Window{}, &ValidationError{Field: "to", Message: "use YYYY-MM-DD", Err: ErrInvalidWindow}
	}
	w := Days(f, t)
	return w, w.Validate()
}

// Validate rejects empty, inverted and oversized windows.
func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return &ValidationError{Field: "window", Message: "from and to are required", Err: ErrInvalidWindow}
	}
	if w.To.Before(w.From) {
		return &ValidationError{Field: "window", Message: "end before start", Err: ErrInvalidWindow}
	}
	if w.To.Sub(w.From) > MaxWindowDays*24*time.Hour {
		return &ValidationError{Field: "window", Message: "window longer than 366 days", Err: ErrInvalidWindow}
	}
	return nil
}

// Contains returns true if t is within [From, To].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// String returns a string representation of the window.
func (w Window) String() string {
	return "[" + w.From.Format(time.RFC3339) + ", " + w.To.Format(time.RFC3339) + "]"
}
