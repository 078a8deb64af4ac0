package domain

import "time"

// CalendarEvent is a parsed VEVENT. Start and End carry absolute instants;
// all-day events carry midnight of their date in the zone they were parsed in.
type CalendarEvent struct {
	UID     string
	Summary string
	Start   time.Time
	End     *time.Time // nil for point events
	AllDay  bool
	RRule   string
	ExDates []time.Time
}

// Duration returns End-Start, or zero for point events
func (e CalendarEvent) Duration() time.Duration {
	if e.End == nil {
		return 0
	}
	return e.End.Sub(e.Start)
}

// IsRecurring reports whether the event carries a recurrence rule
func (e CalendarEvent) IsRecurring() bool {
	return e.RRule != ""
}
