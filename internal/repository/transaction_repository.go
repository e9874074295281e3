package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"remnabot/internal/entities"
)

const transactionColumns = "id, bot_id, user_id, kind, amount, payment_id, description, created_at"

// TransactionRepository appends to the balance ledger. Entries are never updated.
type TransactionRepository struct{}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{}
}

func (r *TransactionRepository) Record(ctx context.Context, s *Session, t *entities.Transaction, opts ...WriteOption) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.BotID = s.BotID()

	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		return translate(tx.QueryRowxContext(ctx, `
			INSERT INTO transactions (id, bot_id, user_id, kind, amount, payment_id, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at`,
			t.ID, t.BotID, t.UserID, t.Kind, t.Amount, t.PaymentID, t.Description,
		).Scan(&t.CreatedAt), "record transaction")
	})
}

func (r *TransactionRepository) ListByUser(ctx context.Context, s *Session, userID int64, limit int) ([]entities.Transaction, error) {
	txs := []entities.Transaction{}
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &txs, `
			SELECT `+transactionColumns+` FROM transactions
			WHERE bot_id = $1 AND user_id = $2 ORDER BY created_at DESC LIMIT $3`,
			s.BotID(), userID, limit)
	})
	if err != nil {
		return nil, translate(err, "list transactions")
	}
	return txs, nil
}
