package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AutomationRuns tracks attendance actions by outcome (success, simulated, failed, skipped_leave, skipped_weekend)
	AutomationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_automation_runs_total",
			Help: "Total number of attendance automation runs",
		},
		[]string{"action", "outcome"},
	)

	// AutomationDuration tracks how long a browser session takes
	AutomationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendance_automation_duration_seconds",
			Help:    "Attendance automation duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"action"},
	)

	// LeaveSkips tracks triggers skipped because the user was on leave
	LeaveSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_leave_skips_total",
			Help: "Total number of triggers skipped because the user was on leave",
		},
		[]string{"action"},
	)

	// CalendarFetches tracks leave calendar lookups (hit, fetched, fetch_error, parse_error)
	CalendarFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_calendar_fetches_total",
			Help: "Total number of leave calendar lookups by result",
		},
		[]string{"result"},
	)

	// ActiveSchedules tracks users with live triggers
	ActiveSchedules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "attendance_active_schedules",
			Help: "Number of users with live attendance triggers",
		},
	)

	// NotificationsSent tracks notifications routed to users
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_notifications_total",
			Help: "Total number of notifications by channel and status",
		},
		[]string{"channel", "status"},
	)

	// RateLimitExceeded tracks rate limit violations on the operational API
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"scope"},
	)

	// ConsumerRestarts tracks settings consumer restart events
	ConsumerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_consumer_restarts_total",
			Help: "Total number of settings event consumer restarts",
		},
	)
)
