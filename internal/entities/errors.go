package entities

import "github.com/go-faster/errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("record already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPaymentState      = errors.New("payment is not in the expected state")
	ErrTenantMissing     = errors.New("no bot in context")
	ErrGatewayDisabled   = errors.New("payment gateway is not enabled")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
)
