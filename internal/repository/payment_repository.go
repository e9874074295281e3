package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"remnabot/internal/entities"
)

const paymentColumns = "id, bot_id, user_id, gateway, external_id, amount, currency, status, pay_url, created_at, paid_at"

type PaymentRepository struct{}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

// Create inserts a pending payment. The id is generated when unset.
func (r *PaymentRepository) Create(ctx context.Context, s *Session, p *entities.Payment, opts ...WriteOption) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.BotID = s.BotID()
	p.Status = entities.PaymentPending

	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		return translate(tx.QueryRowxContext(ctx, `
			INSERT INTO payments (id, bot_id, user_id, gateway, amount, currency, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at`,
			p.ID, p.BotID, p.UserID, p.Gateway, p.Amount, p.Currency, p.Status,
		).Scan(&p.CreatedAt), "create payment")
	})
}

// AttachInvoice records what the gateway returned for the payment.
func (r *PaymentRepository) AttachInvoice(ctx context.Context, s *Session, id uuid.UUID, externalID, payURL string, opts ...WriteOption) error {
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE payments SET external_id = NULLIF($1, ''), pay_url = NULLIF($2, '')
			WHERE bot_id = $3 AND id = $4`,
			externalID, payURL, s.BotID(), id)
		if err != nil {
			return translate(err, "attach invoice")
		}
		return expectOne(res, errors.Wrapf(entities.ErrNotFound, "payment %s", id))
	})
}

func (r *PaymentRepository) GetByID(ctx context.Context, s *Session, id uuid.UUID) (*entities.Payment, error) {
	var p entities.Payment
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &p,
			"SELECT "+paymentColumns+" FROM payments WHERE bot_id = $1 AND id = $2", s.BotID(), id)
	})
	if err != nil {
		return nil, translate(err, "get payment")
	}
	return &p, nil
}

func (r *PaymentRepository) GetByExternalID(ctx context.Context, s *Session, gateway, externalID string) (*entities.Payment, error) {
	var p entities.Payment
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &p,
			"SELECT "+paymentColumns+" FROM payments WHERE bot_id = $1 AND gateway = $2 AND external_id = $3",
			s.BotID(), gateway, externalID)
	})
	if err != nil {
		return nil, translate(err, "get payment by external id")
	}
	return &p, nil
}

// Transition moves the payment from one status to another. The update is
// conditional on the current status, so of two racing transitions only one
// wins; the loser gets ErrPaymentState.
func (r *PaymentRepository) Transition(ctx context.Context, s *Session, id uuid.UUID, from, to entities.PaymentStatus, opts ...WriteOption) (*entities.Payment, error) {
	if !from.CanTransition(to) {
		return nil, errors.Wrapf(entities.ErrPaymentState, "%s -> %s", from, to)
	}

	var paidAt *time.Time
	if to == entities.PaymentPaid {
		now := time.Now().UTC()
		paidAt = &now
	}

	var p entities.Payment
	err := s.write(ctx, opts, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &p, `
			UPDATE payments SET status = $1, paid_at = COALESCE($2, paid_at)
			WHERE bot_id = $3 AND id = $4 AND status = $5
			RETURNING `+paymentColumns,
			to, paidAt, s.BotID(), id, from)
		if err = translate(err, "transition payment"); errors.Is(err, entities.ErrNotFound) {
			return errors.Wrapf(entities.ErrPaymentState, "payment %s is not %s", id, from)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ExpirePending marks pending payments created before cutoff as expired and
// returns how many were expired per gateway.
func (r *PaymentRepository) ExpirePending(ctx context.Context, s *Session, cutoff time.Time, opts ...WriteOption) (map[string]int64, error) {
	var rows []struct {
		Gateway string `db:"gateway"`
		N       int64  `db:"n"`
	}
	err := s.write(ctx, opts, func(tx *sqlx.Tx) error {
		return translate(tx.SelectContext(ctx, &rows, `
			WITH expired AS (
				UPDATE payments SET status = 'expired'
				WHERE bot_id = $1 AND status = 'pending' AND created_at < $2
				RETURNING gateway
			)
			SELECT gateway, COUNT(*) AS n FROM expired GROUP BY gateway`,
			s.BotID(), cutoff), "expire payments")
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Gateway] = row.N
	}
	return counts, nil
}

// CountPaid returns how many payments of the user have been paid, refunded ones included.
func (r *PaymentRepository) CountPaid(ctx context.Context, s *Session, userID int64) (int64, error) {
	var n int64
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &n, `
			SELECT COUNT(*) FROM payments
			WHERE bot_id = $1 AND user_id = $2 AND status IN ('paid', 'refunded')`,
			s.BotID(), userID)
	})
	if err != nil {
		return 0, translate(err, "count paid payments")
	}
	return n, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, s *Session, userID int64, limit int) ([]entities.Payment, error) {
	payments := []entities.Payment{}
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &payments, `
			SELECT `+paymentColumns+` FROM payments
			WHERE bot_id = $1 AND user_id = $2 ORDER BY created_at DESC LIMIT $3`,
			s.BotID(), userID, limit)
	})
	if err != nil {
		return nil, translate(err, "list payments")
	}
	return payments, nil
}
