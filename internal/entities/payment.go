package entities

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentExpired  PaymentStatus = "expired"
	PaymentRefunded PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed, PaymentExpired},
	PaymentPaid:    {PaymentRefunded},
}

// CanTransition reports whether a payment may move from one status to another.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Payment struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	BotID      int64         `json:"bot_id" db:"bot_id"`
	UserID     int64         `json:"user_id" db:"user_id"`
	Gateway    string        `json:"gateway" db:"gateway"`
	ExternalID *string       `json:"external_id,omitempty" db:"external_id"`
	Amount     int64         `json:"amount" db:"amount"`
	Currency   string        `json:"currency" db:"currency"`
	Status     PaymentStatus `json:"status" db:"status"`
	PayURL     *string       `json:"pay_url,omitempty" db:"pay_url"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	PaidAt     *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
}
