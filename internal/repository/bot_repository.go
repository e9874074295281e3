package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"remnabot/internal/entities"
)

const botColumns = "id, token, username, webhook_secret, currency, owner_id, is_active, created_at"

// BotRepository manages the tenant registry. The bots table is not under
// row-level security, any session can read it.
type BotRepository struct{}

func NewBotRepository() *BotRepository {
	return &BotRepository{}
}

func (r *BotRepository) Create(ctx context.Context, s *Session, b *entities.Bot, opts ...WriteOption) error {
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		return translate(tx.QueryRowxContext(ctx, `
			INSERT INTO bots (token, username, webhook_secret, currency, owner_id, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`,
			b.Token, b.Username, b.WebhookSecret, b.Currency, b.OwnerID, b.IsActive,
		).Scan(&b.ID, &b.CreatedAt), "create bot")
	})
}

func (r *BotRepository) GetByID(ctx context.Context, s *Session, id int64) (*entities.Bot, error) {
	var b entities.Bot
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &b, "SELECT "+botColumns+" FROM bots WHERE id = $1", id)
	})
	if err != nil {
		return nil, translate(err, "get bot")
	}
	return &b, nil
}

func (r *BotRepository) GetByUsername(ctx context.Context, s *Session, username string) (*entities.Bot, error) {
	var b entities.Bot
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &b, "SELECT "+botColumns+" FROM bots WHERE username = $1", username)
	})
	if err != nil {
		return nil, translate(err, "get bot by username")
	}
	return &b, nil
}

func (r *BotRepository) List(ctx context.Context, s *Session, activeOnly bool) ([]entities.Bot, error) {
	bots := []entities.Bot{}
	query := "SELECT " + botColumns + " FROM bots"
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY id"

	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &bots, query)
	})
	if err != nil {
		return nil, translate(err, "list bots")
	}
	return bots, nil
}

func (r *BotRepository) SetActive(ctx context.Context, s *Session, id int64, active bool, opts ...WriteOption) error {
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE bots SET is_active = $1 WHERE id = $2", active, id)
		if err != nil {
			return translate(err, "set bot active")
		}
		return expectOne(res, errors.Wrapf(entities.ErrNotFound, "bot %d", id))
	})
}

func (r *BotRepository) SetOwner(ctx context.Context, s *Session, id, adminID int64, opts ...WriteOption) error {
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE bots SET owner_id = $1 WHERE id = $2", adminID, id)
		if err != nil {
			return translate(err, "set bot owner")
		}
		return expectOne(res, errors.Wrapf(entities.ErrNotFound, "bot %d", id))
	})
}

// Delete removes the bot; tenant rows go with it through ON DELETE CASCADE.
func (r *BotRepository) Delete(ctx context.Context, s *Session, id int64, opts ...WriteOption) error {
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM bots WHERE id = $1", id)
		if err != nil {
			return translate(err, "delete bot")
		}
		return expectOne(res, errors.Wrapf(entities.ErrNotFound, "bot %d", id))
	})
}
