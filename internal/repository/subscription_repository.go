package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"remnabot/internal/entities"
)

const subscriptionColumns = "id, bot_id, user_id, plan_id, status, started_at, expires_at"

type SubscriptionRepository struct{}

func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{}
}

// GetActive returns the user's running subscription or ErrNotFound.
func (r *SubscriptionRepository) GetActive(ctx context.Context, s *Session, userID int64, now time.Time) (*entities.Subscription, error) {
	var sub entities.Subscription
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &sub, `
			SELECT `+subscriptionColumns+` FROM subscriptions
			WHERE bot_id = $1 AND user_id = $2 AND status = 'active' AND expires_at > $3`,
			s.BotID(), userID, now)
	})
	if err != nil {
		return nil, translate(err, "get active subscription")
	}
	return &sub, nil
}

// Extend adds days to the user's active subscription, counting from now when
// it has already lapsed, or starts a new one. A user has at most one active
// subscription per bot.
func (r *SubscriptionRepository) Extend(ctx context.Context, s *Session, userID, planID int64, days int, now time.Time, opts ...WriteOption) (*entities.Subscription, error) {
	var sub entities.Subscription
	err := s.write(ctx, opts, func(tx *sqlx.Tx) error {
		return translate(tx.GetContext(ctx, &sub, `
			INSERT INTO subscriptions (bot_id, user_id, plan_id, status, started_at, expires_at)
			VALUES ($1, $2, $3, 'active', $4, $4 + make_interval(days => $5::int))
			ON CONFLICT (bot_id, user_id) WHERE status = 'active' DO UPDATE SET
				plan_id = EXCLUDED.plan_id,
				expires_at = GREATEST(subscriptions.expires_at, $4) + make_interval(days => $5::int)
			RETURNING `+subscriptionColumns,
			s.BotID(), userID, planID, now, days), "extend subscription")
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ExpireDue flips lapsed subscriptions to expired and returns them with the
// owner's chat id for notification.
func (r *SubscriptionRepository) ExpireDue(ctx context.Context, s *Session, now time.Time, opts ...WriteOption) ([]entities.ExpiringSubscription, error) {
	expired := []entities.ExpiringSubscription{}
	err := s.write(ctx, opts, func(tx *sqlx.Tx) error {
		return translate(tx.SelectContext(ctx, &expired, `
			UPDATE subscriptions sub SET status = 'expired'
			FROM users u
			WHERE u.id = sub.user_id AND sub.bot_id = $1 AND sub.status = 'active' AND sub.expires_at <= $2
			RETURNING sub.id, sub.bot_id, sub.user_id, sub.plan_id, sub.status, sub.started_at, sub.expires_at,
				u.telegram_id`,
			s.BotID(), now), "expire subscriptions")
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, s *Session, userID int64) ([]entities.Subscription, error) {
	subs := []entities.Subscription{}
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &subs, `
			SELECT `+subscriptionColumns+` FROM subscriptions
			WHERE bot_id = $1 AND user_id = $2 ORDER BY started_at DESC`,
			s.BotID(), userID)
	})
	if err != nil {
		return nil, translate(err, "list subscriptions")
	}
	return subs, nil
}
