package entities

import (
	"time"

	"github.com/google/uuid"
)

type TransactionKind string

const (
	TxTopUp      TransactionKind = "topup"
	TxPurchase   TransactionKind = "purchase"
	TxRefund     TransactionKind = "refund"
	TxAdjustment TransactionKind = "adjustment"
	TxReferral   TransactionKind = "referral"
)

// Transaction is an immutable balance ledger entry. Amount is signed.
type Transaction struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	BotID       int64           `json:"bot_id" db:"bot_id"`
	UserID      int64           `json:"user_id" db:"user_id"`
	Kind        TransactionKind `json:"kind" db:"kind"`
	Amount      int64           `json:"amount" db:"amount"`
	PaymentID   *uuid.UUID      `json:"payment_id,omitempty" db:"payment_id"`
	Description string          `json:"description" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
