package entities

import "time"

type User struct {
	ID           int64     `json:"id" db:"id"`
	BotID        int64     `json:"bot_id" db:"bot_id"`
	TelegramID   int64     `json:"telegram_id" db:"telegram_id"`
	Username     string    `json:"username" db:"username"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LanguageCode string    `json:"language_code" db:"language_code"`
	Balance      int64     `json:"balance" db:"balance"`             // Minor units of the bot currency
	ReferralCode string    `json:"referral_code" db:"referral_code"` // Used in t.me/<bot>?start=<code>
	ReferredBy   *int64    `json:"referred_by,omitempty" db:"referred_by"`
	IsBlocked    bool      `json:"is_blocked" db:"is_blocked"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// UserStats is the per-bot summary shown on the dashboard.
type UserStats struct {
	TotalUsers   int64 `json:"total_users" db:"total_users"`
	BlockedUsers int64 `json:"blocked_users" db:"blocked_users"`
	NewToday     int64 `json:"new_today" db:"new_today"` // Since midnight, database time
	TotalBalance int64 `json:"total_balance" db:"total_balance"`
}
