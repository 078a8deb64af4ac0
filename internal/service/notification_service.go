package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/metrics"
	"github.com/vhvplatform/go-attendance-service/internal/shared/config"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

const (
	// OutcomeExchange receives one event per routed message
	OutcomeExchange = "attendance"

	webhookMaxRetries = 3
	maxResponseBody   = 64 << 10
)

// ProfileReader loads automation profiles
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserAutomationProfile, error)
}

// Decrypter opens secrets sealed by the secret codec
type Decrypter interface {
	Decrypt(token, saltHex string) (string, error)
}

// NotificationRecorder persists notification attempts
type NotificationRecorder interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

// EventPublisher publishes JSON events to an exchange
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// NotificationService routes categorized messages to each user's channel
type NotificationService struct {
	profiles     ProfileReader
	codec        Decrypter
	history      NotificationRecorder
	publisher    EventPublisher
	templates    *Templates
	client       *http.Client
	telegramBase string
	limit        rate.Limit
	burst        int
	retryBackoff func(attempt int) time.Duration
	now          func() time.Time
	log          *logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewNotificationService creates a new notification service. publisher may be nil.
func NewNotificationService(profiles ProfileReader, codec Decrypter, history NotificationRecorder, publisher EventPublisher, templates *Templates, cfg config.NotificationConfig, log *logger.Logger) *NotificationService {
	timeout := cfg.WebhookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	return &NotificationService{
		profiles:     profiles,
		codec:        codec,
		history:      history,
		publisher:    publisher,
		templates:    templates,
		client:       &http.Client{Timeout: timeout},
		telegramBase: strings.TrimRight(cfg.TelegramAPIBaseURL, "/"),
		limit:        rate.Limit(perMinute / 60),
		burst:        burst,
		retryBackoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
		now:      time.Now,
		log:      log.With("component", "notification"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Notify renders and delivers one message. Failures are logged and recorded,
// never returned or propagated as panics.
func (s *NotificationService) Notify(ctx context.Context, userID string, key domain.EventKey, params map[string]string) {
	record := &domain.Notification{
		UserID:    userID,
		EventKey:  key,
		Channel:   domain.NotificationChannelNone,
		Status:    domain.NotificationStatusSkipped,
		Params:    params,
		CreatedAt: s.now().UTC(),
	}
	log := s.log.With("user_id", userID, "event_key", string(key))

	defer func() {
		if p := recover(); p != nil {
			log.Error("Notification panicked", "panic", p)
			record.Status = domain.NotificationStatusFailed
			record.Error = fmt.Sprintf("panic: %v", p)
		}
		s.finish(ctx, record, log)
	}()

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		record.Error = fmt.Sprintf("profile unavailable: %v", err)
		log.Warn("Notification skipped, profile unavailable", "error", err)
		return
	}
	if !profile.NotificationsEnabled {
		record.Error = "notifications disabled"
		return
	}
	if !s.limiter(userID).Allow() {
		metrics.RateLimitExceeded.WithLabelValues("notification").Inc()
		record.Error = "rate limited"
		log.Warn("Notification rate limited")
		return
	}

	switch {
	case profile.HasTelegram():
		record.Channel = domain.NotificationChannelTelegram
		record.Message = s.templates.Render(profile.Language, key, params, escapeMarkdown)
		err = s.sendTelegram(ctx, profile, record.Message)
	case profile.WebhookURL != "":
		record.Channel = domain.NotificationChannelWebhook
		record.Message = s.templates.Render(profile.Language, key, params, nil)
		err = s.sendWebhook(ctx, profile.WebhookURL, record)
	default:
		record.Error = "no notification channel configured"
		log.Debug("No notification channel configured")
		return
	}

	if err != nil {
		record.Status = domain.NotificationStatusFailed
		record.Error = err.Error()
		log.Error("Failed to deliver notification", "channel", string(record.Channel), "error", err)
		return
	}
	record.Status = domain.NotificationStatusSent
	log.Info("Notification delivered", "channel", string(record.Channel))
}

func (s *NotificationService) finish(ctx context.Context, record *domain.Notification, log *logger.Logger) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("Notification bookkeeping panicked", "panic", p)
		}
	}()
	metrics.NotificationsSent.WithLabelValues(string(record.Channel), string(record.Status)).Inc()

	if s.history != nil {
		if err := s.history.CreateNotification(ctx, record); err != nil {
			log.Error("Failed to record notification", "error", err)
		}
	}

	if s.publisher != nil {
		body, err := json.Marshal(domain.OutcomeEvent{
			UserID:     record.UserID,
			EventKey:   record.EventKey,
			Params:     record.Params,
			OccurredAt: record.CreatedAt,
		})
		if err == nil {
			err = s.publisher.Publish(OutcomeExchange, "outcome."+string(record.EventKey), body)
		}
		if err != nil {
			log.Error("Failed to publish outcome event", "error", err)
		}
	}
}

func (s *NotificationService) limiter(userID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[userID]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[userID] = l
	}
	return l
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// sendTelegram delivers text through the user's own bot
func (s *NotificationService) sendTelegram(ctx context.Context, profile *domain.UserAutomationProfile, text string) error {
	token, err := s.codec.Decrypt(profile.EncryptedBotToken, profile.BotTokenSalt)
	if err != nil {
		return fmt.Errorf("failed to decrypt bot token: %w", err)
	}

	payload, err := json.Marshal(telegramMessage{
		ChatID:    profile.TelegramChatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.telegramBase, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.New("failed to build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	var body telegramResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !body.OK {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

type webhookPayload struct {
	UserID     string            `json:"user_id"`
	EventKey   domain.EventKey   `json:"event_key"`
	Message    string            `json:"message"`
	Params     map[string]string `json:"params,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// sendWebhook posts the message with retry and quadratic backoff
func (s *NotificationService) sendWebhook(ctx context.Context, target string, record *domain.Notification) error {
	payload, err := json.Marshal(webhookPayload{
		UserID:     record.UserID,
		EventKey:   record.EventKey,
		Message:    record.Message,
		Params:     record.Params,
		OccurredAt: record.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for i := 0; i < webhookMaxRetries; i++ {
		if i > 0 {
			backoff := s.retryBackoff(i)
			s.log.Info("Retrying webhook", "attempt", i+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook aborted: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		if lastErr = s.postWebhook(ctx, target, payload); lastErr == nil {
			return nil
		}
		s.log.Warn("Webhook attempt failed", "attempt", i+1, "error", lastErr)
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", webhookMaxRetries, lastErr)
}

func (s *NotificationService) postWebhook(ctx context.Context, target string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Attendance-Automation-Service/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// redactURLError drops the request URL, which carries the bot token
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
