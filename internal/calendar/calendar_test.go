package calendar

import (
	"strings"
	"testing"
	"time"
)

// buildICS wraps VEVENT bodies into a calendar document
func buildICS(events ...string) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//attendance//test//EN\r\n")
	for _, ev := range events {
		b.WriteString("BEGIN:VEVENT\r\n")
		for _, line := range strings.Split(strings.TrimSpace(ev), "\n") {
			b.WriteString(strings.TrimSpace(line))
			b.WriteString("\r\n")
		}
		b.WriteString("END:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

func mustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

const (
	allDayLeave = `
UID:all-day-1
SUMMARY:휴가
DTSTART;VALUE=DATE:20240315
DTEND;VALUE=DATE:20240316`

	timedVacation = `
UID:timed-1
SUMMARY:Vacation appointment
DTSTART;TZID=Asia/Seoul:20240315T100000
DTEND;TZID=Asia/Seoul:20240315T110000`

	weeklyDayOff = `
UID:weekly-1
SUMMARY:Day off
DTSTART;VALUE=DATE:20240105
DTEND;VALUE=DATE:20240106
RRULE:FREQ=WEEKLY;BYDAY=FR
EXDATE;VALUE=DATE:20240315`

	overnightLeave = `
UID:overnight-1
SUMMARY:Leave (night)
DTSTART;TZID=Asia/Seoul:20240104T220000
DTEND;TZID=Asia/Seoul:20240105T020000
RRULE:FREQ=WEEKLY;BYDAY=TH`

	teamMeeting = `
UID:meeting-1
SUMMARY:Team meeting
DTSTART:20240315T010000Z
DTEND:20240315T020000Z`
)
