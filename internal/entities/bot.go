package entities

import "time"

// Bot is a tenant: one Telegram bot sold to one SaaS customer.
type Bot struct {
	ID            int64     `json:"id" db:"id"`
	Token         string    `json:"-" db:"token"`
	Username      string    `json:"username" db:"username"`
	WebhookSecret string    `json:"-" db:"webhook_secret"`
	Currency      string    `json:"currency" db:"currency"` // ISO code, or XTR for Telegram Stars
	OwnerID       *int64    `json:"owner_id,omitempty" db:"owner_id"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// BotSetting is a free-form per-bot key/value (welcome text, support link, ...).
type BotSetting struct {
	BotID     int64     `json:"bot_id" db:"bot_id"`
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const (
	SettingWelcomeMessage = "welcome_message"
	SettingSupportLink    = "support_link"
)
