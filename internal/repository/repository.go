// Package repository stores automation profiles and notification history
// in MongoDB or SQLite.
package repository

import (
	"context"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
)

// ErrNotFound is returned when a profile does not exist
var ErrNotFound = domain.ErrProfileNotFound

// SettingsStore is the contract both backends implement for profiles
type SettingsStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserAutomationProfile, error)
	ListSchedulableProfiles(ctx context.Context) ([]*domain.UserAutomationProfile, error)
	SaveProfile(ctx context.Context, profile *domain.UserAutomationProfile) error
	UpdateSecrets(ctx context.Context, userID string, update domain.SecretUpdate) error
	DeleteProfile(ctx context.Context, userID string) error
}

// NotificationStore records every notification attempt
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}

func schedulableOnly(profiles []*domain.UserAutomationProfile) []*domain.UserAutomationProfile {
	out := profiles[:0]
	for _, p := range profiles {
		if p.IsSchedulable() {
			out = append(out, p)
		}
	}
	return out
}
