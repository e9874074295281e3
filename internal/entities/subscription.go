package entities

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	ID        int64              `json:"id" db:"id"`
	BotID     int64              `json:"bot_id" db:"bot_id"`
	UserID    int64              `json:"user_id" db:"user_id"`
	PlanID    int64              `json:"plan_id" db:"plan_id"`
	Status    SubscriptionStatus `json:"status" db:"status"`
	StartedAt time.Time          `json:"started_at" db:"started_at"`
	ExpiresAt time.Time          `json:"expires_at" db:"expires_at"`
}

// ExpiringSubscription is a subscription joined with its owner's chat, used for notifications.
type ExpiringSubscription struct {
	Subscription
	TelegramID int64 `db:"telegram_id"`
}
