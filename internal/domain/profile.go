package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrProfileNotFound is returned by settings stores when a user has no profile
var ErrProfileNotFound = errors.New("automation profile not found")

// UserAutomationProfile holds one user's attendance automation settings
type UserAutomationProfile struct {
	UserID               string    `json:"user_id" bson:"user_id"`
	Username             string    `json:"username" bson:"username"`
	EncryptedPassword    string    `json:"-" bson:"encrypted_password,omitempty"`
	PasswordSalt         string    `json:"-" bson:"password_salt,omitempty"`
	WorkStart            string    `json:"work_start" bson:"work_start"`
	WorkEnd              string    `json:"work_end" bson:"work_end"`
	CheckInDelayMinutes  int       `json:"check_in_delay_minutes" bson:"check_in_delay_minutes"`
	CheckOutDelayMinutes int       `json:"check_out_delay_minutes" bson:"check_out_delay_minutes"`
	Timezone             string    `json:"timezone" bson:"timezone"`
	AutoCheckInEnabled   bool      `json:"auto_check_in_enabled" bson:"auto_check_in_enabled"`
	AutoCheckOutEnabled  bool      `json:"auto_check_out_enabled" bson:"auto_check_out_enabled"`
	LeaveCalendarURL     string    `json:"leave_calendar_url,omitempty" bson:"leave_calendar_url,omitempty"`
	LeaveKeywords        []string  `json:"leave_keywords,omitempty" bson:"leave_keywords,omitempty"`
	LeaveCheckEnabled    *bool     `json:"leave_check_enabled,omitempty" bson:"leave_check_enabled,omitempty"`
	TestMode             bool      `json:"test_mode" bson:"test_mode"`
	NotificationsEnabled bool      `json:"notifications_enabled" bson:"notifications_enabled"`
	Language             string    `json:"language,omitempty" bson:"language,omitempty"`
	TelegramChatID       string    `json:"telegram_chat_id,omitempty" bson:"telegram_chat_id,omitempty"`
	EncryptedBotToken    string    `json:"-" bson:"encrypted_bot_token,omitempty"`
	BotTokenSalt         string    `json:"-" bson:"bot_token_salt,omitempty"`
	WebhookURL           string    `json:"webhook_url,omitempty" bson:"webhook_url,omitempty"`
	CreatedAt            time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" bson:"updated_at"`
}

// IsSchedulable reports whether the profile may own live triggers.
// Both automatic actions must be enabled and the username and work hours must be set.
func (p *UserAutomationProfile) IsSchedulable() bool {
	if p == nil {
		return false
	}
	return p.AutoCheckInEnabled && p.AutoCheckOutEnabled &&
		strings.TrimSpace(p.Username) != "" &&
		strings.TrimSpace(p.WorkStart) != "" &&
		strings.TrimSpace(p.WorkEnd) != ""
}

// HasCredential reports whether both the encrypted password and its salt are present
func (p *UserAutomationProfile) HasCredential() bool {
	return p.EncryptedPassword != "" && p.PasswordSalt != ""
}

// ChecksLeave reports whether trigger runs consult the leave calendar.
// An unset LeaveCheckEnabled counts as enabled.
func (p *UserAutomationProfile) ChecksLeave() bool {
	if strings.TrimSpace(p.LeaveCalendarURL) == "" {
		return false
	}
	return p.LeaveCheckEnabled == nil || *p.LeaveCheckEnabled
}

// HasTelegram reports whether the Telegram channel is fully configured
func (p *UserAutomationProfile) HasTelegram() bool {
	return p.TelegramChatID != "" && p.EncryptedBotToken != "" && p.BotTokenSalt != ""
}

// Location resolves the profile's IANA zone. An empty zone resolves to
// defaultZone. An unknown zone resolves to UTC with ok set to false.
func (p *UserAutomationProfile) Location(defaultZone string) (loc *time.Location, ok bool) {
	name := strings.TrimSpace(p.Timezone)
	if name == "" {
		name = defaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// ClockTime is a local time of day
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" or "HH:MM:SS"; seconds are ignored
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return ClockTime{}, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", s)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// MinutesOfDay returns the number of minutes since midnight
func (c ClockTime) MinutesOfDay() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// SecretUpdate changes the credential and channel fields of a profile.
// Nil fields are left untouched; empty strings clear the stored value.
type SecretUpdate struct {
	Username          *string
	EncryptedPassword *string
	PasswordSalt      *string
	EncryptedBotToken *string
	BotTokenSalt      *string
	TelegramChatID    *string
}
