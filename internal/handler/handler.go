// Package handler exposes the operational HTTP API.
package handler

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	apperrors "github.com/vhvplatform/go-attendance-service/internal/shared/errors"
)

// ScheduleManager is the scheduler surface used by the API
type ScheduleManager interface {
	ScheduleUser(ctx context.Context, userID string, announce bool) error
	UnscheduleUser(userID string) bool
	ActiveSchedules() []domain.ScheduleEntryView
	RunTrigger(ctx context.Context, userID string, kind domain.ActionKind, now time.Time) domain.TriggerOutcome
}

// ProfileReader loads automation profiles
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserAutomationProfile, error)
}

// LeaveChecker answers leave lookups
type LeaveChecker interface {
	IsUserOnLeave(ctx context.Context, userID string, target time.Time) bool
}

// SettingsUpdater changes credential and channel secrets
type SettingsUpdater interface {
	UpdateCredentials(ctx context.Context, userID string, req domain.UpdateCredentialsRequest) error
	UpdateTelegram(ctx context.Context, userID string, req domain.UpdateTelegramRequest) error
}

// NotificationLister reads notification history
type NotificationLister interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
}

// statusFor maps application error codes to HTTP statuses
func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeProfileNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an AppError body
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = apperrors.NewInternalError("internal error", err)
	}
	c.JSON(statusFor(appErr), appErr)
}
