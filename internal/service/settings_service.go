package service

import (
	"context"
	"errors"
	"strings"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	apperrors "github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

// SecretStore reads profiles and writes their secret fields
type SecretStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserAutomationProfile, error)
	UpdateSecrets(ctx context.Context, userID string, update domain.SecretUpdate) error
}

// Encrypter seals secrets with a per-secret salt
type Encrypter interface {
	NewSalt() (string, error)
	Encrypt(plaintext, saltHex string) (string, error)
}

// Rescheduler rebuilds a user's triggers after a settings change
type Rescheduler interface {
	ScheduleUser(ctx context.Context, userID string, announce bool) error
}

// SettingsService updates credentials and channel secrets
type SettingsService struct {
	store       SecretStore
	codec       Encrypter
	rescheduler Rescheduler
	log         *logger.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(store SecretStore, codec Encrypter, rescheduler Rescheduler, log *logger.Logger) *SettingsService {
	return &SettingsService{
		store:       store,
		codec:       codec,
		rescheduler: rescheduler,
		log:         log.With("component", "settings"),
	}
}

// UpdateCredentials stores the portal username and password. An empty
// password clears the stored ciphertext and its salt. The user is
// rescheduled afterwards.
func (s *SettingsService) UpdateCredentials(ctx context.Context, userID string, req domain.UpdateCredentialsRequest) error {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return apperrors.NewValidationError("username is required", nil)
	}

	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return err
	}

	ciphertext, salt, err := s.seal(req.Password, profile.PasswordSalt)
	if err != nil {
		return err
	}
	update := domain.SecretUpdate{
		Username:          &username,
		EncryptedPassword: &ciphertext,
		PasswordSalt:      &salt,
	}
	if err := s.store.UpdateSecrets(ctx, userID, update); err != nil {
		return s.storeError(err)
	}
	s.log.Info("Credentials updated", "user_id", userID, "cleared", req.Password == "")

	if s.rescheduler != nil {
		if err := s.rescheduler.ScheduleUser(ctx, userID, true); err != nil {
			s.log.Error("Failed to reschedule after credential change", "user_id", userID, "error", err)
		}
	}
	return nil
}

// UpdateTelegram stores the bot token and chat id. An empty token clears
// the token and its salt; an empty chat id keeps the current one.
func (s *SettingsService) UpdateTelegram(ctx context.Context, userID string, req domain.UpdateTelegramRequest) error {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return err
	}

	ciphertext, salt, err := s.seal(strings.TrimSpace(req.BotToken), profile.BotTokenSalt)
	if err != nil {
		return err
	}
	update := domain.SecretUpdate{
		EncryptedBotToken: &ciphertext,
		BotTokenSalt:      &salt,
	}
	if chatID := strings.TrimSpace(req.ChatID); chatID != "" {
		update.TelegramChatID = &chatID
	}
	if err := s.store.UpdateSecrets(ctx, userID, update); err != nil {
		return s.storeError(err)
	}
	s.log.Info("Telegram settings updated", "user_id", userID, "cleared", req.BotToken == "")
	return nil
}

// seal encrypts plaintext, reusing salt or generating one. Empty plaintext
// yields empty ciphertext and salt.
func (s *SettingsService) seal(plaintext, salt string) (string, string, error) {
	if plaintext == "" {
		return "", "", nil
	}
	if salt == "" {
		var err error
		if salt, err = s.codec.NewSalt(); err != nil {
			return "", "", apperrors.NewInternalError("failed to generate salt", err)
		}
	}
	ciphertext, err := s.codec.Encrypt(plaintext, salt)
	if err != nil {
		return "", "", apperrors.NewInternalError("failed to encrypt secret", err)
	}
	return ciphertext, salt, nil
}

func (s *SettingsService) loadProfile(ctx context.Context, userID string) (*domain.UserAutomationProfile, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, s.storeError(err)
	}
	return profile, nil
}

func (s *SettingsService) storeError(err error) error {
	if errors.Is(err, domain.ErrProfileNotFound) {
		return apperrors.NewProfileNotFoundError("automation profile not found", err)
	}
	return apperrors.NewInternalError("settings store failure", err)
}
