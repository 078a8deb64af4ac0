package calendar

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

const (
	recurrenceLookBehindDays = 31
	recurrenceLookAheadDays  = 62
)

// Match describes the event occurrence that put a user on leave
type Match struct {
	Event      domain.CalendarEvent
	Occurrence time.Time
}

// Matcher decides whether a set of events covers a calendar day
type Matcher struct {
	log *logger.Logger
}

// NewMatcher creates a new matcher
func NewMatcher(log *logger.Logger) *Matcher {
	return &Matcher{log: log}
}

// DayWindow returns the half-open window [start, end) of target's calendar day in loc
func DayWindow(target time.Time, loc *time.Location) (time.Time, time.Time) {
	local := target.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// OnLeave reports the first keyword-matching event or occurrence that
// covers target's day in loc. An empty keyword list matches every event.
func (m *Matcher) OnLeave(events []domain.CalendarEvent, target time.Time, loc *time.Location, keywords []string) (Match, bool) {
	dayStart, dayEnd := DayWindow(target, loc)

	for _, ev := range events {
		if !MatchesKeywords(ev.Summary, keywords) {
			continue
		}

		if covers(ev.AllDay, ev.Start, ev.End, dayStart, dayEnd, loc) {
			return Match{Event: ev, Occurrence: ev.Start}, true
		}

		if !ev.IsRecurring() {
			continue
		}
		occurrences, err := expand(ev, dayStart.AddDate(0, 0, -recurrenceLookBehindDays), dayStart.AddDate(0, 0, recurrenceLookAheadDays), loc)
		if err != nil {
			m.log.Warn("Failed to expand recurring event", "uid", ev.UID, "rrule", ev.RRule, "error", err)
			continue
		}
		duration := ev.Duration()
		for _, occ := range occurrences {
			var end *time.Time
			if ev.End != nil {
				e := occ.Add(duration)
				end = &e
			}
			if covers(ev.AllDay, occ, end, dayStart, dayEnd, loc) {
				return Match{Event: ev, Occurrence: occ}, true
			}
		}
	}
	return Match{}, false
}

// MatchesKeywords reports whether summary contains any keyword, case-insensitively
func MatchesKeywords(summary string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	s := strings.ToLower(summary)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func covers(allDay bool, start time.Time, end *time.Time, dayStart, dayEnd time.Time, loc *time.Location) bool {
	if allDay {
		s := start.In(loc)
		return s.Year() == dayStart.Year() && s.Month() == dayStart.Month() && s.Day() == dayStart.Day()
	}
	if end == nil || !end.After(start) {
		// point event
		return !start.Before(dayStart) && start.Before(dayEnd)
	}
	return start.Before(dayEnd) && end.After(dayStart)
}

func expand(ev domain.CalendarEvent, after, before time.Time, loc *time.Location) ([]time.Time, error) {
	opt, err := rrule.StrToROptionInLocation(ev.RRule, loc)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = ev.Start

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}

	set := &rrule.Set{}
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex)
	}
	return set.Between(after, before, true), nil
}
