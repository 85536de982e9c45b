package policy

import (
	"time"
)

// minuteOfDay parses HH:MM.
func minuteOfDay(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// contains reports whether t's wall clock falls in [Start, End). A window
// whose end is before its start spans midnight. Equal or malformed bounds
// never match.
func (q QuietHours) contains(t time.Time) bool {
	start, ok1 := minuteOfDay(q.Start)
	end, ok2 := minuteOfDay(q.End)
	if !ok1 || !ok2 || start == end {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}
