package scheduler

import (
	"fmt"
	"time"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
)

const minutesPerDay = 24 * 60

// ComputeTriggerTime shifts base by delayMinutes and wraps around midnight.
// Negative delays roll back into the previous day's clock time.
func ComputeTriggerTime(base domain.ClockTime, delayMinutes int) domain.ClockTime {
	total := ((base.MinutesOfDay()+delayMinutes)%minutesPerDay + minutesPerDay) % minutesPerDay
	return domain.ClockTime{Hour: total / 60, Minute: total % 60}
}

// weekdaySpec builds a Monday-Friday cron spec firing at t in loc
func weekdaySpec(t domain.ClockTime, loc *time.Location) string {
	return fmt.Sprintf("CRON_TZ=%s %d %d * * 1-5", loc.String(), t.Minute, t.Hour)
}

// isWeekend reports whether now falls on Saturday or Sunday in loc
func isWeekend(now time.Time, loc *time.Location) bool {
	switch now.In(loc).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}
