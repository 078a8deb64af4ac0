package domain

import "time"

// UpdateCredentialsRequest sets or clears the portal credentials. An empty password clears the stored secret.
type UpdateCredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password"`
}

// UpdateTelegramRequest sets or clears the Telegram bot token and chat id
type UpdateTelegramRequest struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// ScheduleEntryView describes one user's live triggers
type ScheduleEntryView struct {
	UserID       string    `json:"user_id"`
	Timezone     string    `json:"timezone"`
	CheckInSpec  string    `json:"check_in_spec"`
	CheckOutSpec string    `json:"check_out_spec"`
	NextCheckIn  time.Time `json:"next_check_in"`
	NextCheckOut time.Time `json:"next_check_out"`
}

// LeaveCheckResponse reports a leave lookup for one date
type LeaveCheckResponse struct {
	UserID  string `json:"user_id"`
	Date    string `json:"date"`
	OnLeave bool   `json:"on_leave"`
}
