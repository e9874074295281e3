package repository

import (
	"context"

	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"

	"remnabot/internal/entities"
)

const userColumns = `id, bot_id, telegram_id, username, first_name, language_code, balance,
	referral_code, referred_by, is_blocked, created_at, updated_at`

type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// NewUser describes a user seen for the first time. ReferralCode and
// ReferredBy are only applied on insert.
type NewUser struct {
	From         *tgbotapi.User
	ReferralCode string
	ReferredBy   *int64
}

// UpsertFromTelegram creates the user or refreshes its profile fields.
// created is true when the row was inserted.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, s *Session, in NewUser, opts ...WriteOption) (user *entities.User, created bool, err error) {
	if in.From == nil {
		return nil, false, errors.Wrap(entities.ErrInvalidInput, "telegram user is nil")
	}

	user = &entities.User{}
	err = s.write(ctx, opts, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, `
			INSERT INTO users (bot_id, telegram_id, username, first_name, language_code, referral_code, referred_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (bot_id, telegram_id) DO UPDATE SET
				username = EXCLUDED.username,
				first_name = EXCLUDED.first_name,
				language_code = EXCLUDED.language_code,
				updated_at = NOW()
			RETURNING `+userColumns+`, (xmax = 0) AS inserted`,
			s.BotID(), in.From.ID, in.From.UserName, in.From.FirstName, in.From.LanguageCode,
			in.ReferralCode, in.ReferredBy)

		return translate(row.Scan(
			&user.ID, &user.BotID, &user.TelegramID, &user.Username, &user.FirstName,
			&user.LanguageCode, &user.Balance, &user.ReferralCode, &user.ReferredBy,
			&user.IsBlocked, &user.CreatedAt, &user.UpdatedAt, &created,
		), "upsert user")
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (r *UserRepository) GetByID(ctx context.Context, s *Session, id int64) (*entities.User, error) {
	return r.getOne(ctx, s, "id", id)
}

func (r *UserRepository) GetByTelegramID(ctx context.Context, s *Session, telegramID int64) (*entities.User, error) {
	return r.getOne(ctx, s, "telegram_id", telegramID)
}

func (r *UserRepository) GetByReferralCode(ctx context.Context, s *Session, code string) (*entities.User, error) {
	return r.getOne(ctx, s, "referral_code", code)
}

func (r *UserRepository) getOne(ctx context.Context, s *Session, column string, value any) (*entities.User, error) {
	var user entities.User
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &user,
			"SELECT "+userColumns+" FROM users WHERE bot_id = $1 AND "+column+" = $2",
			s.BotID(), value)
	})
	if err != nil {
		return nil, translate(err, "get user by "+column)
	}
	return &user, nil
}

// AddBalance applies a signed delta and returns the new balance. A debit that
// would take the balance below zero fails with ErrInsufficientFunds and
// changes nothing.
func (r *UserRepository) AddBalance(ctx context.Context, s *Session, userID, delta int64, opts ...WriteOption) (int64, error) {
	var balance int64
	err := s.write(ctx, opts, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			UPDATE users SET balance = balance + $1, updated_at = NOW()
			WHERE bot_id = $2 AND id = $3 AND balance + $1 >= 0
			RETURNING balance`,
			delta, s.BotID(), userID).Scan(&balance)
		if err == nil {
			return nil
		}
		if err = translate(err, "add balance"); !errors.Is(err, entities.ErrNotFound) {
			return err
		}

		var exists bool
		if err := tx.GetContext(ctx, &exists,
			"SELECT EXISTS (SELECT 1 FROM users WHERE bot_id = $1 AND id = $2)",
			s.BotID(), userID); err != nil {
			return translate(err, "check user")
		}
		if !exists {
			return errors.Wrapf(entities.ErrNotFound, "user %d", userID)
		}
		return errors.Wrapf(entities.ErrInsufficientFunds, "user %d", userID)
	})
	return balance, err
}

func (r *UserRepository) SetBlocked(ctx context.Context, s *Session, userID int64, blocked bool, opts ...WriteOption) error {
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE users SET is_blocked = $1, updated_at = NOW() WHERE bot_id = $2 AND id = $3",
			blocked, s.BotID(), userID)
		if err != nil {
			return translate(err, "set blocked")
		}
		return expectOne(res, errors.Wrapf(entities.ErrNotFound, "user %d", userID))
	})
}

func (r *UserRepository) List(ctx context.Context, s *Session, limit, offset int) ([]entities.User, error) {
	users := []entities.User{}
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &users,
			"SELECT "+userColumns+" FROM users WHERE bot_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3",
			s.BotID(), limit, offset)
	})
	if err != nil {
		return nil, translate(err, "list users")
	}
	return users, nil
}

func (r *UserRepository) Stats(ctx context.Context, s *Session) (*entities.UserStats, error) {
	var stats entities.UserStats
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &stats, `
			SELECT COUNT(*) AS total_users,
				COUNT(*) FILTER (WHERE is_blocked) AS blocked_users,
				COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW())) AS new_today,
				COALESCE(SUM(balance), 0) AS total_balance
			FROM users WHERE bot_id = $1`, s.BotID())
	})
	if err != nil {
		return nil, translate(err, "user stats")
	}
	return &stats, nil
}
