package domain

import "time"

// NotificationChannel represents the transport a message was routed to
type NotificationChannel string

const (
	NotificationChannelTelegram NotificationChannel = "telegram"
	NotificationChannelWebhook  NotificationChannel = "webhook"
	NotificationChannelNone     NotificationChannel = "none"
)

// NotificationStatus represents the status of a notification
type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusSkipped NotificationStatus = "skipped"
)

// Notification represents a notification record
type Notification struct {
	ID        string              `json:"id" bson:"_id"`
	UserID    string              `json:"user_id" bson:"user_id"`
	EventKey  EventKey            `json:"event_key" bson:"event_key"`
	Channel   NotificationChannel `json:"channel" bson:"channel"`
	Status    NotificationStatus  `json:"status" bson:"status"`
	Message   string              `json:"message,omitempty" bson:"message,omitempty"`
	Params    map[string]string   `json:"params,omitempty" bson:"params,omitempty"`
	Error     string              `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at" bson:"created_at"`
}

// Settings event types published by the settings owner
const (
	SettingsEventUpdated = "settings.updated"
	SettingsEventDeleted = "settings.deleted"
)

// SettingsEvent announces a change to a user's automation profile
type SettingsEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// OutcomeEvent is published for every message routed to a user
type OutcomeEvent struct {
	UserID     string            `json:"user_id"`
	EventKey   EventKey          `json:"event_key"`
	Params     map[string]string `json:"params,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
