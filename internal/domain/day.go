package domain

import "time"

// DayWindow is a half-open interval [Start, End). DayWindowAt builds the one
// covering a local calendar day.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// DayWindowAt returns the day window containing t in the given location.
// A nil location is treated as UTC.
func DayWindowAt(t time.Time, loc *time.Location) DayWindow {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return DayWindow{
		Start: start,
		End:   start.AddDate(0, 0, 1),
	}
}

// Contains reports whether t falls inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Date returns the calendar date of the window at midnight UTC, the form used
// for DATE columns such as last_reset_date.
func (w DayWindow) Date() time.Time {
	return time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, time.UTC)
}
