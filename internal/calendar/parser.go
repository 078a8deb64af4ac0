package calendar

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
)

const (
	icalDateLayout     = "20060102"
	icalDateTimeLayout = "20060102T150405"
	icalUTCLayout      = "20060102T150405Z"
)

// Parse decodes an iCalendar document into events. Floating times and
// date-only values are interpreted in loc. Events without a usable DTSTART
// are dropped.
func Parse(data []byte, loc *time.Location) ([]domain.CalendarEvent, error) {
	cal, err := ics.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	events := make([]domain.CalendarEvent, 0)
	for _, ev := range cal.Events() {
		event, ok := parseEvent(ev, loc)
		if ok {
			events = append(events, event)
		}
	}
	return events, nil
}

func parseEvent(ev *ics.VEvent, loc *time.Location) (domain.CalendarEvent, bool) {
	startProp := ev.GetProperty(ics.ComponentPropertyDtStart)
	if startProp == nil {
		return domain.CalendarEvent{}, false
	}
	start, dateOnly, err := parseICalTime(startProp.Value, startProp.ICalParameters, loc)
	if err != nil {
		return domain.CalendarEvent{}, false
	}

	event := domain.CalendarEvent{
		UID:   ev.Id(),
		Start: start,
	}
	if summary := ev.GetProperty(ics.ComponentPropertySummary); summary != nil {
		event.Summary = summary.Value
	}

	if endProp := ev.GetProperty(ics.ComponentPropertyDtEnd); endProp != nil {
		if end, _, err := parseICalTime(endProp.Value, endProp.ICalParameters, loc); err == nil {
			event.End = &end
		}
	} else if durProp := ev.GetProperty(ics.ComponentProperty("DURATION")); durProp != nil {
		if d, err := parseDuration(durProp.Value); err == nil {
			end := start.Add(d)
			event.End = &end
		}
	}

	event.AllDay = dateOnly || spansWholeDays(event.Start, event.End, loc)

	if rule := ev.GetProperty(ics.ComponentPropertyRrule); rule != nil {
		event.RRule = strings.TrimPrefix(rule.Value, "RRULE:")
	}

	for _, prop := range ev.Properties {
		if !strings.EqualFold(prop.IANAToken, "EXDATE") {
			continue
		}
		for _, value := range strings.Split(prop.Value, ",") {
			if t, _, err := parseICalTime(value, prop.ICalParameters, loc); err == nil {
				event.ExDates = append(event.ExDates, t)
			}
		}
	}

	return event, true
}

// parseICalTime handles DATE, UTC DATE-TIME, TZID-qualified and floating DATE-TIME values
func parseICalTime(value string, params map[string][]string, loc *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)

	if isDateValue(value, params) {
		t, err := time.ParseInLocation(icalDateLayout, value, loc)
		return t, true, err
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(icalUTCLayout, value)
		return t, false, err
	}

	zone := loc
	if tzid := firstParam(params, "TZID"); tzid != "" {
		if tz, err := time.LoadLocation(strings.Trim(tzid, `"`)); err == nil {
			zone = tz
		}
	}
	t, err := time.ParseInLocation(icalDateTimeLayout, value, zone)
	return t, false, err
}

func isDateValue(value string, params map[string][]string) bool {
	if strings.EqualFold(firstParam(params, "VALUE"), "DATE") {
		return true
	}
	return len(value) == len(icalDateLayout) && !strings.Contains(value, "T")
}

func firstParam(params map[string][]string, key string) string {
	for k, values := range params {
		if strings.EqualFold(k, key) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// spansWholeDays detects all-day events published as midnight-to-midnight date-times
func spansWholeDays(start time.Time, end *time.Time, loc *time.Location) bool {
	if end == nil {
		return false
	}
	s, e := start.In(loc), end.In(loc)
	if !isMidnight(s) || !isMidnight(e) || !e.After(s) {
		return false
	}
	return e.Sub(s)%(24*time.Hour) == 0
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}

// parseDuration parses the RFC 5545 DURATION subset: [+-]P[nW][nD][T[nH][nM][nS]]
func parseDuration(value string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign, s = -1, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			inTime = true
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		num = ""
		switch {
		case r == 'W' && !inTime:
			total += time.Duration(n) * 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			total += time.Duration(n) * 24 * time.Hour
		case r == 'H' && inTime:
			total += time.Duration(n) * time.Hour
		case r == 'M' && inTime:
			total += time.Duration(n) * time.Minute
		case r == 'S' && inTime:
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q", value)
		}
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return sign * total, nil
}
