package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/secret"
	apperrors "github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

type fakeRescheduler struct {
	calls []string
	err   error
}

func (f *fakeRescheduler) ScheduleUser(_ context.Context, userID string, announce bool) error {
	if announce {
		f.calls = append(f.calls, userID)
	}
	return f.err
}

type failingEncrypter struct{}

func (failingEncrypter) NewSalt() (string, error)               { return "", errors.New("entropy exhausted") }
func (failingEncrypter) Encrypt(string, string) (string, error) { return "", errors.New("unreachable") }

func newSettingsFixture(t *testing.T) (*SettingsService, *fakeProfileStore, *fakeRescheduler, *secret.Codec) {
	t.Helper()
	codec, err := secret.NewCodec(testMasterKey)
	require.NoError(t, err)

	store := &fakeProfileStore{profiles: map[string]*domain.UserAutomationProfile{
		"u1": {UserID: "u1", Username: "old@example.com"},
	}}
	rescheduler := &fakeRescheduler{}
	return NewSettingsService(store, codec, rescheduler, logger.NewNop()), store, rescheduler, codec
}

func TestUpdateCredentials(t *testing.T) {
	svc, store, rescheduler, codec := newSettingsFixture(t)
	ctx := context.Background()

	err := svc.UpdateCredentials(ctx, "u1", domain.UpdateCredentialsRequest{Username: " new@example.com ", Password: "p@ss"})
	require.NoError(t, err)

	p := store.profiles["u1"]
	assert.Equal(t, "new@example.com", p.Username)
	require.True(t, p.HasCredential())
	plain, err := codec.Decrypt(p.EncryptedPassword, p.PasswordSalt)
	require.NoError(t, err)
	assert.Equal(t, "p@ss", plain)
	assert.Equal(t, []string{"u1"}, rescheduler.calls)

	// the existing salt is reused
	salt := p.PasswordSalt
	require.NoError(t, svc.UpdateCredentials(ctx, "u1", domain.UpdateCredentialsRequest{Username: "new@example.com", Password: "other"}))
	assert.Equal(t, salt, store.profiles["u1"].PasswordSalt)

	// empty password clears ciphertext and salt
	require.NoError(t, svc.UpdateCredentials(ctx, "u1", domain.UpdateCredentialsRequest{Username: "new@example.com"}))
	assert.Empty(t, store.profiles["u1"].EncryptedPassword)
	assert.Empty(t, store.profiles["u1"].PasswordSalt)
	assert.Len(t, rescheduler.calls, 3)
}

func TestUpdateCredentialsErrors(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		req      domain.UpdateCredentialsRequest
		setup    func(*SettingsService, *fakeProfileStore)
		wantCode string
	}{
		{
			name:     "blank username",
			userID:   "u1",
			req:      domain.UpdateCredentialsRequest{Username: "  ", Password: "x"},
			wantCode: apperrors.CodeValidation,
		},
		{
			name:     "unknown user",
			userID:   "ghost",
			req:      domain.UpdateCredentialsRequest{Username: "a", Password: "x"},
			wantCode: apperrors.CodeProfileNotFound,
		},
		{
			name:   "store failure",
			userID: "u1",
			req:    domain.UpdateCredentialsRequest{Username: "a", Password: "x"},
			setup: func(_ *SettingsService, store *fakeProfileStore) {
				store.err = errors.New("db down")
			},
			wantCode: apperrors.CodeInternal,
		},
		{
			name:   "salt generation failure",
			userID: "u1",
			req:    domain.UpdateCredentialsRequest{Username: "a", Password: "x"},
			setup: func(svc *SettingsService, _ *fakeProfileStore) {
				svc.codec = failingEncrypter{}
			},
			wantCode: apperrors.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, rescheduler, _ := newSettingsFixture(t)
			if tt.setup != nil {
				tt.setup(svc, store)
			}

			err := svc.UpdateCredentials(context.Background(), tt.userID, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			assert.Empty(t, rescheduler.calls)
		})
	}
}

func TestUpdateCredentialsRescheduleFailureIsNotFatal(t *testing.T) {
	svc, _, rescheduler, _ := newSettingsFixture(t)
	rescheduler.err = errors.New("invalid work start")

	err := svc.UpdateCredentials(context.Background(), "u1", domain.UpdateCredentialsRequest{Username: "a", Password: "x"})
	assert.NoError(t, err)
}

func TestUpdateTelegram(t *testing.T) {
	svc, store, rescheduler, codec := newSettingsFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.UpdateTelegram(ctx, "u1", domain.UpdateTelegramRequest{BotToken: "123:abc", ChatID: "999"}))
	p := store.profiles["u1"]
	require.True(t, p.HasTelegram())
	token, err := codec.Decrypt(p.EncryptedBotToken, p.BotTokenSalt)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", token)
	assert.Equal(t, "999", p.TelegramChatID)

	// empty chat id keeps the current one; empty token clears the secret
	require.NoError(t, svc.UpdateTelegram(ctx, "u1", domain.UpdateTelegramRequest{}))
	p = store.profiles["u1"]
	assert.Empty(t, p.EncryptedBotToken)
	assert.Empty(t, p.BotTokenSalt)
	assert.Equal(t, "999", p.TelegramChatID)

	assert.Empty(t, rescheduler.calls, "telegram changes do not reschedule")

	err = svc.UpdateTelegram(ctx, "ghost", domain.UpdateTelegramRequest{BotToken: "x"})
	assert.Equal(t, apperrors.CodeProfileNotFound, apperrors.CodeOf(err))
}
