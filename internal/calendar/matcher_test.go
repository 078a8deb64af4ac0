package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-attendance-service/internal/shared/config"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

func TestMatcher_OnLeave(t *testing.T) {
	seoul := mustLoadLocation(t, "Asia/Seoul")
	keywords := config.ParseKeywords(config.DefaultLeaveKeywords)
	matcher := NewMatcher(logger.NewNop())

	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 9, 0, 0, 0, seoul)
	}

	tests := []struct {
		name     string
		event    string
		target   time.Time
		keywords []string
		want     bool
	}{
		{name: "all-day on its date", event: allDayLeave, target: day(2024, 3, 15), keywords: keywords, want: true},
		{name: "all-day day before", event: allDayLeave, target: day(2024, 3, 14), keywords: keywords, want: false},
		{name: "all-day day after", event: allDayLeave, target: day(2024, 3, 16), keywords: keywords, want: false},
		{name: "all-day with UTC target converted to zone", event: allDayLeave, target: time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC), keywords: keywords, want: true},
		{name: "timed event on its day", event: timedVacation, target: day(2024, 3, 15), keywords: keywords, want: true},
		{name: "timed event next day", event: timedVacation, target: day(2024, 3, 16), keywords: keywords, want: false},
		{name: "weekly occurrence", event: weeklyDayOff, target: day(2024, 3, 8), keywords: keywords, want: true},
		{name: "weekly excluded date", event: weeklyDayOff, target: day(2024, 3, 15), keywords: keywords, want: false},
		{name: "weekly non matching weekday", event: weeklyDayOff, target: day(2024, 3, 14), keywords: keywords, want: false},
		{name: "overnight occurrence start day", event: overnightLeave, target: day(2024, 3, 7), keywords: keywords, want: true},
		{name: "overnight occurrence spills into next day", event: overnightLeave, target: day(2024, 3, 8), keywords: keywords, want: true},
		{name: "overnight occurrence not two days later", event: overnightLeave, target: day(2024, 3, 9), keywords: keywords, want: false},
		{name: "non leave summary ignored", event: teamMeeting, target: day(2024, 3, 15), keywords: keywords, want: false},
		{name: "empty keywords match everything", event: teamMeeting, target: day(2024, 3, 15), keywords: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Parse(buildICS(tt.event), seoul)
			require.NoError(t, err)

			_, got := matcher.OnLeave(events, tt.target, seoul, tt.keywords)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatcher_PointEvent(t *testing.T) {
	seoul := mustLoadLocation(t, "Asia/Seoul")
	events, err := Parse(buildICS("UID:p\nSUMMARY:leave\nDTSTART:20240315T000000"), seoul)
	require.NoError(t, err)
	matcher := NewMatcher(logger.NewNop())

	_, onDay := matcher.OnLeave(events, time.Date(2024, 3, 15, 12, 0, 0, 0, seoul), seoul, nil)
	_, dayBefore := matcher.OnLeave(events, time.Date(2024, 3, 14, 12, 0, 0, 0, seoul), seoul, nil)
	assert.True(t, onDay)
	assert.False(t, dayBefore)
}

func TestMatcher_InvalidRuleIsSkipped(t *testing.T) {
	seoul := mustLoadLocation(t, "Asia/Seoul")
	events, err := Parse(buildICS("UID:bad\nSUMMARY:leave\nDTSTART;VALUE=DATE:20240101\nRRULE:FREQ=SOMETIMES"), seoul)
	require.NoError(t, err)

	_, got := NewMatcher(logger.NewNop()).OnLeave(events, time.Date(2024, 3, 15, 12, 0, 0, 0, seoul), seoul, nil)
	assert.False(t, got)
}

func TestDayWindow(t *testing.T) {
	seoul := mustLoadLocation(t, "Asia/Seoul")
	start, end := DayWindow(time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC), seoul)

	assert.True(t, start.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, seoul)))
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestMatchesKeywords(t *testing.T) {
	assert.True(t, MatchesKeywords("My VACATION trip", []string{"vacation"}))
	assert.True(t, MatchesKeywords("연차 사용", []string{"연차"}))
	assert.False(t, MatchesKeywords("Sprint review", []string{"vacation", "holiday"}))
	assert.True(t, MatchesKeywords("anything", []string{}))
}
