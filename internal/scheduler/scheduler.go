// Package scheduler owns the per-user recurring check-in and check-out triggers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/metrics"
	"github.com/vhvplatform/go-attendance-service/internal/shared/config"
	apperrors "github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

// ProfileStore reads automation profiles
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserAutomationProfile, error)
	ListSchedulableProfiles(ctx context.Context) ([]*domain.UserAutomationProfile, error)
}

// LeaveChecker answers whether a user is on leave at a point in time
type LeaveChecker interface {
	IsUserOnLeave(ctx context.Context, userID string, target time.Time) bool
}

// Executor runs one attendance action
type Executor interface {
	Execute(ctx context.Context, userID string, kind domain.ActionKind) domain.AutomationResult
}

// Notifier delivers categorized messages; it never reports failures to the caller
type Notifier interface {
	Notify(ctx context.Context, userID string, key domain.EventKey, params map[string]string)
}

// notifyTimeout bounds delivery of one trigger outcome
const notifyTimeout = 30 * time.Second

// Scheduler manages the live triggers of every schedulable user
type Scheduler struct {
	cron        *cron.Cron
	registry    *Registry
	profiles    ProfileStore
	leave       LeaveChecker
	executor    Executor
	notifier    Notifier
	defaultZone string
	defaultLoc  *time.Location
	runTimeout  time.Duration
	now         func() time.Time
	baseCtx     context.Context
	cancel      context.CancelFunc
	log         *logger.Logger
}

// NewScheduler creates a new attendance scheduler
func NewScheduler(profiles ProfileStore, leave LeaveChecker, executor Executor, notifier Notifier, cfg config.ScheduleConfig, log *logger.Logger) *Scheduler {
	log = log.With("component", "scheduler")
	adapter := cronLogger{log: log}

	defaultLoc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		defaultLoc = time.UTC
	}
	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 3 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter)),
		),
		registry:    NewRegistry(),
		profiles:    profiles,
		leave:       leave,
		executor:    executor,
		notifier:    notifier,
		defaultZone: cfg.DefaultTimezone,
		defaultLoc:  defaultLoc,
		runTimeout:  runTimeout,
		now:         time.Now,
		baseCtx:     ctx,
		cancel:      cancel,
		log:         log,
	}
}

// Start starts dispatching triggers
func (s *Scheduler) Start() {
	s.log.Info("Starting attendance scheduler", "active_schedules", s.registry.Len())
	s.cron.Start()
}

// Stop stops dispatching and waits for running triggers until ctx expires,
// then cancels whatever is still in flight.
func (s *Scheduler) Stop(ctx context.Context) {
	s.log.Info("Stopping attendance scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Timed out waiting for running triggers")
	}
	s.cancel()
}

// InitializeAllSchedules schedules every schedulable profile without
// announcing. A failure for one user is logged and the rest continue.
func (s *Scheduler) InitializeAllSchedules(ctx context.Context) (int, error) {
	profiles, err := s.profiles.ListSchedulableProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list schedulable profiles: %w", err)
	}

	scheduled := 0
	for _, p := range profiles {
		if p == nil {
			continue
		}
		if err := s.ScheduleUser(ctx, p.UserID, false); err != nil {
			s.log.Error("Failed to schedule user", "user_id", p.UserID, "error", err)
			continue
		}
		if _, ok := s.registry.get(p.UserID); ok {
			scheduled++
		}
	}

	s.log.Info("Initialized schedules", "profiles", len(profiles), "scheduled", scheduled)
	return scheduled, nil
}

// ScheduleUser discards any live triggers for userID and installs fresh ones
// from the current profile. Profiles that are absent or not schedulable end
// with zero triggers. When announce is set the user is told the new times.
func (s *Scheduler) ScheduleUser(ctx context.Context, userID string, announce bool) error {
	reg, scheduled, err := s.reschedule(ctx, userID)
	metrics.ActiveSchedules.Set(float64(s.registry.Len()))
	if err != nil || !scheduled {
		return err
	}

	if announce {
		s.notify(ctx, userID, domain.EventScheduleRegistered, map[string]string{
			"checkInTime":  reg.checkInAt.String(),
			"checkOutTime": reg.checkOutAt.String(),
			"timezone":     reg.timezone,
		})
	}
	return nil
}

func (s *Scheduler) reschedule(ctx context.Context, userID string) (registration, bool, error) {
	unlock := s.registry.lockUser(userID)
	defer unlock()

	s.removeLocked(userID)

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			s.log.Info("No automation profile, user left unscheduled", "user_id", userID)
			return registration{}, false, nil
		}
		return registration{}, false, fmt.Errorf("failed to load profile: %w", err)
	}
	if !profile.IsSchedulable() {
		s.log.Info("Profile not schedulable, user left unscheduled", "user_id", userID)
		return registration{}, false, nil
	}

	start, err := domain.ParseClockTime(profile.WorkStart)
	if err != nil {
		return registration{}, false, apperrors.NewValidationError("invalid work start time", err)
	}
	end, err := domain.ParseClockTime(profile.WorkEnd)
	if err != nil {
		return registration{}, false, apperrors.NewValidationError("invalid work end time", err)
	}

	loc, ok := profile.Location(s.defaultZone)
	if !ok {
		s.log.Warn("Unknown timezone, falling back to UTC", "user_id", userID, "timezone", profile.Timezone)
	}

	reg := registration{
		userID:     userID,
		timezone:   loc.String(),
		checkInAt:  ComputeTriggerTime(start, profile.CheckInDelayMinutes),
		checkOutAt: ComputeTriggerTime(end, profile.CheckOutDelayMinutes),
	}
	reg.checkInSpec = weekdaySpec(reg.checkInAt, loc)
	reg.checkOutSpec = weekdaySpec(reg.checkOutAt, loc)

	reg.checkIn, err = s.cron.AddFunc(reg.checkInSpec, s.trigger(userID, domain.ActionCheckIn))
	if err != nil {
		return registration{}, false, fmt.Errorf("failed to register check-in trigger: %w", err)
	}
	reg.checkOut, err = s.cron.AddFunc(reg.checkOutSpec, s.trigger(userID, domain.ActionCheckOut))
	if err != nil {
		s.cron.Remove(reg.checkIn)
		return registration{}, false, fmt.Errorf("failed to register check-out trigger: %w", err)
	}

	s.registry.put(reg)
	s.log.Info("Scheduled user",
		"user_id", userID,
		"check_in", reg.checkInSpec,
		"check_out", reg.checkOutSpec,
	)
	return reg, true, nil
}

// UnscheduleUser cancels the user's live triggers. It reports whether any existed.
func (s *Scheduler) UnscheduleUser(userID string) bool {
	unlock := s.registry.lockUser(userID)
	removed := s.removeLocked(userID)
	unlock()

	metrics.ActiveSchedules.Set(float64(s.registry.Len()))
	if removed {
		s.log.Info("Unscheduled user", "user_id", userID)
	}
	return removed
}

func (s *Scheduler) removeLocked(userID string) bool {
	reg, ok := s.registry.take(userID)
	if !ok {
		return false
	}
	s.cron.Remove(reg.checkIn)
	s.cron.Remove(reg.checkOut)
	return true
}

// ActiveSchedules returns a snapshot of the live triggers
func (s *Scheduler) ActiveSchedules() []domain.ScheduleEntryView {
	regs := s.registry.snapshot()
	views := make([]domain.ScheduleEntryView, 0, len(regs))
	for _, reg := range regs {
		views = append(views, domain.ScheduleEntryView{
			UserID:       reg.userID,
			Timezone:     reg.timezone,
			CheckInSpec:  reg.checkInSpec,
			CheckOutSpec: reg.checkOutSpec,
			NextCheckIn:  s.nextRun(reg.checkIn),
			NextCheckOut: s.nextRun(reg.checkOut),
		})
	}
	return views
}

// nextRun reports the entry's next activation, computing it when cron has not started yet
func (s *Scheduler) nextRun(id cron.EntryID) time.Time {
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return time.Time{}
	}
	if entry.Next.IsZero() {
		return entry.Schedule.Next(s.now())
	}
	return entry.Next
}

// LiveTriggers returns the number of registered cron entries
func (s *Scheduler) LiveTriggers() int {
	return len(s.cron.Entries())
}

// trigger builds the cron callback. Each run gets its own bounded context
// detached from the rescheduling call that created it.
func (s *Scheduler) trigger(userID string, kind domain.ActionKind) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.baseCtx, s.runTimeout)
		defer cancel()
		s.RunTrigger(ctx, userID, kind, s.now())
	}
}

// RunTrigger evaluates one trigger: weekend guard, leave check, execution
// and notification, in that order.
func (s *Scheduler) RunTrigger(ctx context.Context, userID string, kind domain.ActionKind, now time.Time) domain.TriggerOutcome {
	outcome := domain.TriggerOutcome{UserID: userID, Kind: kind}
	log := s.log.With("user_id", userID, "action", string(kind))

	loc := s.userLocation(ctx, userID)
	local := now.In(loc)
	params := map[string]string{
		"action": string(kind),
		"date":   local.Format("2006-01-02"),
		"time":   local.Format("15:04"),
	}

	if isWeekend(now, loc) {
		log.Info("Weekend, trigger skipped")
		outcome.Skipped = true
		outcome.SkipReason = domain.SkipReasonWeekend
		outcome.EventKey = domain.EventSkippedWeekend
		s.notify(ctx, userID, outcome.EventKey, params)
		return outcome
	}

	if s.leave.IsUserOnLeave(ctx, userID, now) {
		log.Info("User on leave, trigger skipped")
		metrics.LeaveSkips.WithLabelValues(string(kind)).Inc()
		outcome.Skipped = true
		outcome.SkipReason = domain.SkipReasonOnLeave
		outcome.EventKey = kind.Events().SkippedOnLeave
		s.notify(ctx, userID, outcome.EventKey, params)
		return outcome
	}

	result := s.executor.Execute(ctx, userID, kind)
	outcome.Result = &result
	outcome.EventKey = result.EventKey()

	params["message"] = result.Message
	if !result.Succeeded {
		params["failureCode"] = result.FailureCode
		params["stage"] = result.Stage
	}
	log.Info("Trigger completed", "outcome", result.Outcome(), "run_id", result.RunID)
	s.notify(ctx, userID, outcome.EventKey, params)
	return outcome
}

// notify delivers on a context of its own so a run that used up its budget
// still reports the outcome.
func (s *Scheduler) notify(ctx context.Context, userID string, key domain.EventKey, params map[string]string) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	s.notifier.Notify(nctx, userID, key, params)
}

func (s *Scheduler) userLocation(ctx context.Context, userID string) *time.Location {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return s.defaultLoc
	}
	loc, _ := profile.Location(s.defaultZone)
	return loc
}

// cronLogger routes cron's internal logging into the service logger
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "error", err)...)
}
