package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"remnabot/internal/entities"
)

const planColumns = "id, bot_id, title, duration_days, price, is_active, created_at"

type PlanRepository struct{}

func NewPlanRepository() *PlanRepository {
	return &PlanRepository{}
}

func (r *PlanRepository) Create(ctx context.Context, s *Session, p *entities.Plan, opts ...WriteOption) error {
	p.BotID = s.BotID()
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		return translate(tx.QueryRowxContext(ctx, `
			INSERT INTO plans (bot_id, title, duration_days, price, is_active)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`,
			p.BotID, p.Title, p.DurationDays, p.Price, p.IsActive,
		).Scan(&p.ID, &p.CreatedAt), "create plan")
	})
}

func (r *PlanRepository) Update(ctx context.Context, s *Session, p *entities.Plan, opts ...WriteOption) error {
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE plans SET title = $1, duration_days = $2, price = $3, is_active = $4
			WHERE bot_id = $5 AND id = $6`,
			p.Title, p.DurationDays, p.Price, p.IsActive, s.BotID(), p.ID)
		if err != nil {
			return translate(err, "update plan")
		}
		return expectOne(res, errors.Wrapf(entities.ErrNotFound, "plan %d", p.ID))
	})
}

func (r *PlanRepository) GetByID(ctx context.Context, s *Session, id int64) (*entities.Plan, error) {
	var p entities.Plan
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &p,
			"SELECT "+planColumns+" FROM plans WHERE bot_id = $1 AND id = $2", s.BotID(), id)
	})
	if err != nil {
		return nil, translate(err, "get plan")
	}
	return &p, nil
}

func (r *PlanRepository) List(ctx context.Context, s *Session, activeOnly bool) ([]entities.Plan, error) {
	plans := []entities.Plan{}
	query := "SELECT " + planColumns + " FROM plans WHERE bot_id = $1"
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY price, id"

	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &plans, query, s.BotID())
	})
	if err != nil {
		return nil, translate(err, "list plans")
	}
	return plans, nil
}

// Deactivate hides the plan from users. Plans are never deleted because
// subscriptions reference them.
func (r *PlanRepository) Deactivate(ctx context.Context, s *Session, id int64, opts ...WriteOption) error {
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE plans SET is_active = FALSE WHERE bot_id = $1 AND id = $2", s.BotID(), id)
		if err != nil {
			return translate(err, "deactivate plan")
		}
		return expectOne(res, errors.Wrapf(entities.ErrNotFound, "plan %d", id))
	})
}
