// Package consumer applies settings-change events from RabbitMQ to the scheduler.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/metrics"
	apperrors "github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
	"github.com/vhvplatform/go-attendance-service/internal/shared/rabbitmq"
)

const (
	settingsExchange   = "attendance"
	settingsQueue      = "attendance_settings_queue"
	settingsRoutingKey = "settings.*"
	consumerTag        = "attendance-scheduler"
	prefetchCount      = 10
	maxRestartBackoff  = 30 * time.Second
)

// Broker is the subset of the RabbitMQ client the consumer needs
type Broker interface {
	DeclareExchange(name, kind string) error
	DeclareQueue(name string) error
	BindQueue(queue, routingKey, exchange string) error
	SetPrefetch(count int) error
	Consume(queue, consumerTag string) (<-chan rabbitmq.Message, error)
	Cancel(consumerTag string) error
	IsClosed() bool
	Reconnect() error
}

// Scheduler is the subset of the scheduler driven by settings events
type Scheduler interface {
	ScheduleUser(ctx context.Context, userID string, announce bool) error
	UnscheduleUser(userID string) bool
}

// CacheInvalidator drops cached calendar data for a user
type CacheInvalidator interface {
	Invalidate(userID string)
}

// EventConsumer consumes settings events from RabbitMQ
type EventConsumer struct {
	broker    Broker
	scheduler Scheduler
	calendar  CacheInvalidator
	log       *logger.Logger
}

// NewEventConsumer creates a new event consumer. calendar may be nil.
func NewEventConsumer(broker Broker, scheduler Scheduler, calendar CacheInvalidator, log *logger.Logger) *EventConsumer {
	return &EventConsumer{
		broker:    broker,
		scheduler: scheduler,
		calendar:  calendar,
		log:       log.With("component", "consumer"),
	}
}

// Setup declares the exchange and queue and binds them
func (c *EventConsumer) Setup() error {
	if err := c.broker.DeclareExchange(settingsExchange, "topic"); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := c.broker.DeclareQueue(settingsQueue); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := c.broker.BindQueue(settingsQueue, settingsRoutingKey, settingsExchange); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return c.broker.SetPrefetch(prefetchCount)
}

// Run consumes until ctx is canceled, restarting the consumer with backoff
// whenever the delivery channel closes. A dropped broker connection is
// redialed and the topology declared again before consuming resumes.
func (c *EventConsumer) Run(ctx context.Context) {
	c.log.Info("Starting settings event consumer", "queue", settingsQueue)
	backoff := time.Second

	for {
		messages, err := c.consume()
		if err != nil {
			c.log.Error("Failed to start consuming", "error", err)
		} else {
			backoff = time.Second
			c.drain(ctx, messages)
		}

		if ctx.Err() != nil {
			_ = c.broker.Cancel(consumerTag)
			c.log.Info("Settings event consumer stopped")
			return
		}

		metrics.ConsumerRestarts.Inc()
		c.log.Warn("Settings event consumer interrupted, restarting", "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxRestartBackoff {
			backoff = maxRestartBackoff
		}
	}
}

func (c *EventConsumer) consume() (<-chan rabbitmq.Message, error) {
	if c.broker.IsClosed() {
		if err := c.broker.Reconnect(); err != nil {
			return nil, fmt.Errorf("failed to reconnect: %w", err)
		}
		if err := c.Setup(); err != nil {
			return nil, err
		}
		c.log.Info("Reconnected to RabbitMQ")
	}
	return c.broker.Consume(settingsQueue, consumerTag)
}

func (c *EventConsumer) drain(ctx context.Context, messages <-chan rabbitmq.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			c.handle(ctx, &msg)
		}
	}
}

func (c *EventConsumer) handle(ctx context.Context, msg *rabbitmq.Message) {
	err := c.Process(ctx, msg.Body)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case isPermanent(err):
		c.log.Error("Dropping settings event", "routing_key", msg.RoutingKey, "error", err)
		_ = msg.Nack(false, false)
	default:
		c.log.Error("Failed to process settings event, requeueing", "routing_key", msg.RoutingKey, "error", err)
		_ = msg.Nack(false, true)
	}
}

// errMalformed marks events that can never be processed
var errMalformed = errors.New("malformed settings event")

// Process applies one settings event
func (c *EventConsumer) Process(ctx context.Context, body []byte) error {
	var event domain.SettingsEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		return fmt.Errorf("%w: missing user_id", errMalformed)
	}

	if c.calendar != nil {
		c.calendar.Invalidate(userID)
	}

	switch event.Type {
	case domain.SettingsEventUpdated:
		c.log.Info("Settings updated, rescheduling", "user_id", userID)
		return c.scheduler.ScheduleUser(ctx, userID, true)
	case domain.SettingsEventDeleted:
		c.log.Info("Settings deleted, unscheduling", "user_id", userID)
		c.scheduler.UnscheduleUser(userID)
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", errMalformed, event.Type)
	}
}

// isPermanent reports errors that a redelivery cannot fix
func isPermanent(err error) bool {
	return errors.Is(err, errMalformed) || apperrors.CodeOf(err) == apperrors.CodeValidation
}
