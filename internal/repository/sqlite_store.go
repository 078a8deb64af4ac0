package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

// sqliteTimeLayout is fixed width so text ordering matches time ordering
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS user_automation_profiles (
		user_id                 TEXT PRIMARY KEY,
		username                TEXT NOT NULL DEFAULT '',
		encrypted_password      TEXT NOT NULL DEFAULT '',
		password_salt           TEXT NOT NULL DEFAULT '',
		work_start              TEXT NOT NULL DEFAULT '',
		work_end                TEXT NOT NULL DEFAULT '',
		check_in_delay_minutes  INTEGER NOT NULL DEFAULT 0,
		check_out_delay_minutes INTEGER NOT NULL DEFAULT 0,
		timezone                TEXT NOT NULL DEFAULT '',
		auto_check_in_enabled   INTEGER NOT NULL DEFAULT 0,
		auto_check_out_enabled  INTEGER NOT NULL DEFAULT 0,
		leave_calendar_url      TEXT NOT NULL DEFAULT '',
		leave_keywords          TEXT NOT NULL DEFAULT '[]',
		leave_check_enabled     INTEGER NOT NULL DEFAULT 1,
		test_mode               INTEGER NOT NULL DEFAULT 0,
		notifications_enabled   INTEGER NOT NULL DEFAULT 0,
		language                TEXT NOT NULL DEFAULT '',
		telegram_chat_id        TEXT NOT NULL DEFAULT '',
		encrypted_bot_token     TEXT NOT NULL DEFAULT '',
		bot_token_salt          TEXT NOT NULL DEFAULT '',
		webhook_url             TEXT NOT NULL DEFAULT '',
		created_at              TEXT NOT NULL,
		updated_at              TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		event_key  TEXT NOT NULL,
		channel    TEXT NOT NULL,
		status     TEXT NOT NULL,
		message    TEXT NOT NULL DEFAULT '',
		params     TEXT NOT NULL DEFAULT '{}',
		error      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_created
		ON attendance_notifications (user_id, created_at DESC)`,
}

const profileColumns = `user_id, username, encrypted_password, password_salt, work_start, work_end,
	check_in_delay_minutes, check_out_delay_minutes, timezone, auto_check_in_enabled,
	auto_check_out_enabled, leave_calendar_url, leave_keywords, leave_check_enabled, test_mode,
	notifications_enabled, language, telegram_chat_id, encrypted_bot_token, bot_token_salt, webhook_url, created_at, updated_at`

const notificationColumns = `id, user_id, event_key, channel, status, message, params, error, created_at`

// profileRow is the column image of a profile
type profileRow struct {
	UserID               string `db:"user_id"`
	Username             string `db:"username"`
	EncryptedPassword    string `db:"encrypted_password"`
	PasswordSalt         string `db:"password_salt"`
	WorkStart            string `db:"work_start"`
	WorkEnd              string `db:"work_end"`
	CheckInDelayMinutes  int    `db:"check_in_delay_minutes"`
	CheckOutDelayMinutes int    `db:"check_out_delay_minutes"`
	Timezone             string `db:"timezone"`
	AutoCheckInEnabled   bool   `db:"auto_check_in_enabled"`
	AutoCheckOutEnabled  bool   `db:"auto_check_out_enabled"`
	LeaveCalendarURL     string `db:"leave_calendar_url"`
	LeaveKeywords        string `db:"leave_keywords"`
	LeaveCheckEnabled    bool   `db:"leave_check_enabled"`
	TestMode             bool   `db:"test_mode"`
	NotificationsEnabled bool   `db:"notifications_enabled"`
	Language             string `db:"language"`
	TelegramChatID       string `db:"telegram_chat_id"`
	EncryptedBotToken    string `db:"encrypted_bot_token"`
	BotTokenSalt         string `db:"bot_token_salt"`
	WebhookURL           string `db:"webhook_url"`
	CreatedAt            string `db:"created_at"`
	UpdatedAt            string `db:"updated_at"`
}

func newProfileRow(p *domain.UserAutomationProfile) (*profileRow, error) {
	keywords, err := json.Marshal(nonNilStrings(p.LeaveKeywords))
	if err != nil {
		return nil, err
	}
	return &profileRow{
		UserID:               p.UserID,
		Username:             p.Username,
		EncryptedPassword:    p.EncryptedPassword,
		PasswordSalt:         p.PasswordSalt,
		WorkStart:            p.WorkStart,
		WorkEnd:              p.WorkEnd,
		CheckInDelayMinutes:  p.CheckInDelayMinutes,
		CheckOutDelayMinutes: p.CheckOutDelayMinutes,
		Timezone:             p.Timezone,
		AutoCheckInEnabled:   p.AutoCheckInEnabled,
		AutoCheckOutEnabled:  p.AutoCheckOutEnabled,
		LeaveCalendarURL:     p.LeaveCalendarURL,
		LeaveKeywords:        string(keywords),
		LeaveCheckEnabled:    p.LeaveCheckEnabled == nil || *p.LeaveCheckEnabled,
		TestMode:             p.TestMode,
		NotificationsEnabled: p.NotificationsEnabled,
		Language:             p.Language,
		TelegramChatID:       p.TelegramChatID,
		EncryptedBotToken:    p.EncryptedBotToken,
		BotTokenSalt:         p.BotTokenSalt,
		WebhookURL:           p.WebhookURL,
		CreatedAt:            p.CreatedAt.UTC().Format(sqliteTimeLayout),
		UpdatedAt:            p.UpdatedAt.UTC().Format(sqliteTimeLayout),
	}, nil
}

func (r *profileRow) profile() (*domain.UserAutomationProfile, error) {
	p := &domain.UserAutomationProfile{
		UserID:               r.UserID,
		Username:             r.Username,
		EncryptedPassword:    r.EncryptedPassword,
		PasswordSalt:         r.PasswordSalt,
		WorkStart:            r.WorkStart,
		WorkEnd:              r.WorkEnd,
		CheckInDelayMinutes:  r.CheckInDelayMinutes,
		CheckOutDelayMinutes: r.CheckOutDelayMinutes,
		Timezone:             r.Timezone,
		AutoCheckInEnabled:   r.AutoCheckInEnabled,
		AutoCheckOutEnabled:  r.AutoCheckOutEnabled,
		LeaveCalendarURL:     r.LeaveCalendarURL,
		LeaveCheckEnabled:    &r.LeaveCheckEnabled,
		TestMode:             r.TestMode,
		NotificationsEnabled: r.NotificationsEnabled,
		Language:             r.Language,
		TelegramChatID:       r.TelegramChatID,
		EncryptedBotToken:    r.EncryptedBotToken,
		BotTokenSalt:         r.BotTokenSalt,
		WebhookURL:           r.WebhookURL,
	}

	var err error
	if err = json.Unmarshal([]byte(r.LeaveKeywords), &p.LeaveKeywords); err != nil {
		return nil, fmt.Errorf("corrupt leave keywords for %s: %w", r.UserID, err)
	}
	if len(p.LeaveKeywords) == 0 {
		p.LeaveKeywords = nil
	}
	if p.CreatedAt, err = time.Parse(sqliteTimeLayout, r.CreatedAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = time.Parse(sqliteTimeLayout, r.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// notificationRow is the column image of a notification record
type notificationRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	EventKey  string `db:"event_key"`
	Channel   string `db:"channel"`
	Status    string `db:"status"`
	Message   string `db:"message"`
	Params    string `db:"params"`
	Error     string `db:"error"`
	CreatedAt string `db:"created_at"`
}

func (r *notificationRow) notification() (*domain.Notification, error) {
	n := &domain.Notification{
		ID:       r.ID,
		UserID:   r.UserID,
		EventKey: domain.EventKey(r.EventKey),
		Channel:  domain.NotificationChannel(r.Channel),
		Status:   domain.NotificationStatus(r.Status),
		Message:  r.Message,
		Error:    r.Error,
	}
	var err error
	if err = json.Unmarshal([]byte(r.Params), &n.Params); err != nil {
		return nil, fmt.Errorf("corrupt params for notification %s: %w", r.ID, err)
	}
	if n.CreatedAt, err = time.Parse(sqliteTimeLayout, r.CreatedAt); err != nil {
		return nil, err
	}
	return n, nil
}

// SQLiteStore implements the settings and notification stores on an embedded database
type SQLiteStore struct {
	db  *sqlx.DB
	log *logger.Logger
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(path string, log *logger.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db, log: log}, nil
}

// sqliteAddedColumns are columns introduced after the first schema version
var sqliteAddedColumns = []struct {
	table, column, definition string
}{
	{"user_automation_profiles", "leave_check_enabled", "INTEGER NOT NULL DEFAULT 1"},
}

// Migrate creates the schema and adds columns missing from older databases
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}

	for _, c := range sqliteAddedColumns {
		var present int
		err := s.db.GetContext(ctx, &present,
			`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, c.table, c.column)
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", c.table, err)
		}
		if present > 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE `+c.table+` ADD COLUMN `+c.column+` `+c.definition); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

// Ping tests the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetProfile finds a profile by user ID
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.UserAutomationProfile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM user_automation_profiles WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.profile()
}

// ListSchedulableProfiles returns every profile with both automatic actions enabled.
// Rows that cannot be read are logged and skipped.
func (s *SQLiteStore) ListSchedulableProfiles(ctx context.Context) ([]*domain.UserAutomationProfile, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT `+profileColumns+` FROM user_automation_profiles
		WHERE auto_check_in_enabled = 1 AND auto_check_out_enabled = 1 AND username <> ''
		ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.UserAutomationProfile
	for rows.Next() {
		var row profileRow
		if err := rows.StructScan(&row); err != nil {
			s.log.Warn("Skipping unreadable profile row", "error", err)
			continue
		}
		p, err := row.profile()
		if err != nil {
			s.log.Warn("Skipping corrupt profile", "user_id", row.UserID, "error", err)
			continue
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return schedulableOnly(profiles), nil
}

// SaveProfile inserts or replaces the profile of profile.UserID
func (s *SQLiteStore) SaveProfile(ctx context.Context, profile *domain.UserAutomationProfile) error {
	if strings.TrimSpace(profile.UserID) == "" {
		return errors.New("profile user id is required")
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	row, err := newProfileRow(profile)
	if err != nil {
		return err
	}

	_, err = s.db.NamedExecContext(ctx, `INSERT INTO user_automation_profiles (`+profileColumns+`)
		VALUES (:user_id, :username, :encrypted_password, :password_salt, :work_start, :work_end,
			:check_in_delay_minutes, :check_out_delay_minutes, :timezone, :auto_check_in_enabled,
			:auto_check_out_enabled, :leave_calendar_url, :leave_keywords, :leave_check_enabled, :test_mode,
			:notifications_enabled, :language, :telegram_chat_id, :encrypted_bot_token, :bot_token_salt, :webhook_url, :created_at, :updated_at)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			encrypted_password = excluded.encrypted_password,
			password_salt = excluded.password_salt,
			work_start = excluded.work_start,
			work_end = excluded.work_end,
			check_in_delay_minutes = excluded.check_in_delay_minutes,
			check_out_delay_minutes = excluded.check_out_delay_minutes,
			timezone = excluded.timezone,
			auto_check_in_enabled = excluded.auto_check_in_enabled,
			auto_check_out_enabled = excluded.auto_check_out_enabled,
			leave_calendar_url = excluded.leave_calendar_url,
			leave_keywords = excluded.leave_keywords,
			leave_check_enabled = excluded.leave_check_enabled,
			test_mode = excluded.test_mode,
			notifications_enabled = excluded.notifications_enabled,
			language = excluded.language,
			telegram_chat_id = excluded.telegram_chat_id,
			encrypted_bot_token = excluded.encrypted_bot_token,
			bot_token_salt = excluded.bot_token_salt,
			webhook_url = excluded.webhook_url,
			updated_at = excluded.updated_at`, row)
	return err
}

// UpdateSecrets sets the credential and channel fields named by update
func (s *SQLiteStore) UpdateSecrets(ctx context.Context, userID string, update domain.SecretUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC().Format(sqliteTimeLayout)}

	add := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *value)
		}
	}
	add("username", update.Username)
	add("encrypted_password", update.EncryptedPassword)
	add("password_salt", update.PasswordSalt)
	add("encrypted_bot_token", update.EncryptedBotToken)
	add("bot_token_salt", update.BotTokenSalt)
	add("telegram_chat_id", update.TelegramChatID)

	args = append(args, userID)
	result, err := s.db.ExecContext(ctx,
		`UPDATE user_automation_profiles SET `+strings.Join(sets, ", ")+` WHERE user_id = ?`, args...)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// DeleteProfile removes a profile
func (s *SQLiteStore) DeleteProfile(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM user_automation_profiles WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// CreateNotification stores a notification attempt
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	params, err := json.Marshal(n.Params)
	if err != nil {
		return err
	}

	_, err = s.db.NamedExecContext(ctx, `INSERT INTO attendance_notifications (`+notificationColumns+`)
		VALUES (:id, :user_id, :event_key, :channel, :status, :message, :params, :error, :created_at)`,
		&notificationRow{
			ID:        n.ID,
			UserID:    n.UserID,
			EventKey:  string(n.EventKey),
			Channel:   string(n.Channel),
			Status:    string(n.Status),
			Message:   n.Message,
			Params:    string(params),
			Error:     n.Error,
			CreatedAt: n.CreatedAt.UTC().Format(sqliteTimeLayout),
		})
	return err
}

// ListNotifications returns the newest notifications of a user
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+notificationColumns+`
		FROM attendance_notifications WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}

	notifications := make([]*domain.Notification, 0, len(rows))
	for i := range rows {
		n, err := rows[i].notification()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
