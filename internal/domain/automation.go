package domain

import (
	"fmt"
	"strings"
	"time"
)

// ActionKind identifies an attendance action
type ActionKind string

const (
	ActionCheckIn  ActionKind = "checkIn"
	ActionCheckOut ActionKind = "checkOut"
)

// EventKey categorizes a message sent to a user
type EventKey string

const (
	EventCheckInSuccess         EventKey = "checkInSuccess"
	EventCheckOutSuccess        EventKey = "checkOutSuccess"
	EventCheckInSimulated       EventKey = "checkInSimulated"
	EventCheckOutSimulated      EventKey = "checkOutSimulated"
	EventCheckInFailed          EventKey = "checkInFailed"
	EventCheckOutFailed         EventKey = "checkOutFailed"
	EventSkippedOnLeaveCheckIn  EventKey = "skippedOnLeaveCheckIn"
	EventSkippedOnLeaveCheckOut EventKey = "skippedOnLeaveCheckOut"
	EventSkippedWeekend         EventKey = "skippedWeekend"
	EventScheduleRegistered     EventKey = "scheduleRegistered"
)

// ActionEvents lists the message keys reported for one action kind
type ActionEvents struct {
	Success        EventKey
	Simulated      EventKey
	Failed         EventKey
	SkippedOnLeave EventKey
}

var actionEvents = map[ActionKind]ActionEvents{
	ActionCheckIn: {
		Success:        EventCheckInSuccess,
		Simulated:      EventCheckInSimulated,
		Failed:         EventCheckInFailed,
		SkippedOnLeave: EventSkippedOnLeaveCheckIn,
	},
	ActionCheckOut: {
		Success:        EventCheckOutSuccess,
		Simulated:      EventCheckOutSimulated,
		Failed:         EventCheckOutFailed,
		SkippedOnLeave: EventSkippedOnLeaveCheckOut,
	},
}

// Valid reports whether k is a supported action kind
func (k ActionKind) Valid() bool {
	_, ok := actionEvents[k]
	return ok
}

// Events returns the message keys for k
func (k ActionKind) Events() ActionEvents {
	return actionEvents[k]
}

// ParseActionKind accepts "checkIn", "check-in" or "checkin" (and the check-out forms)
func ParseActionKind(s string) (ActionKind, error) {
	normalized := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(s)))
	switch normalized {
	case "checkin":
		return ActionCheckIn, nil
	case "checkout":
		return ActionCheckOut, nil
	}
	return "", fmt.Errorf("unknown action kind %q", s)
}

// AutomationResult is the outcome of one action invocation
type AutomationResult struct {
	RunID       string        `json:"run_id"`
	UserID      string        `json:"user_id"`
	Kind        ActionKind    `json:"kind"`
	Succeeded   bool          `json:"succeeded"`
	Message     string        `json:"message"`
	IsTestMode  bool          `json:"is_test_mode"`
	FailureCode string        `json:"failure_code,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Stage       string        `json:"stage"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Outcome labels the result for metrics and messages: success, simulated or failed
func (r AutomationResult) Outcome() string {
	switch {
	case r.Succeeded && r.IsTestMode:
		return "simulated"
	case r.Succeeded:
		return "success"
	default:
		return "failed"
	}
}

// EventKey returns the message key matching the result
func (r AutomationResult) EventKey() EventKey {
	events := r.Kind.Events()
	switch r.Outcome() {
	case "simulated":
		return events.Simulated
	case "success":
		return events.Success
	default:
		return events.Failed
	}
}

// Skip reasons reported by a trigger that did not run the action
const (
	SkipReasonOnLeave = "on_leave"
	SkipReasonWeekend = "weekend"
)

// TriggerOutcome describes one evaluated trigger: either skipped or executed
type TriggerOutcome struct {
	UserID     string            `json:"user_id"`
	Kind       ActionKind        `json:"kind"`
	Skipped    bool              `json:"skipped"`
	SkipReason string            `json:"skip_reason,omitempty"`
	EventKey   EventKey          `json:"event_key"`
	Result     *AutomationResult `json:"result,omitempty"`
}
