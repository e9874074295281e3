package usecases

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"remnabot/internal/entities"
	"remnabot/internal/repository"
)

const maxPageSize = 100

// DashboardUsecase backs the per-bot admin API. The bot comes from ctx.
type DashboardUsecase struct {
	store *repository.Store
}

func NewDashboardUsecase(store *repository.Store) *DashboardUsecase {
	return &DashboardUsecase{store: store}
}

func (u *DashboardUsecase) session(ctx context.Context) *repository.Session {
	return u.store.Session(ctx)
}

// Users

func (u *DashboardUsecase) Stats(ctx context.Context) (*entities.UserStats, error) {
	s := u.session(ctx)
	defer s.Close()
	return u.store.Users.Stats(ctx, s)
}

func (u *DashboardUsecase) ListUsers(ctx context.Context, limit, offset int) ([]entities.User, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	s := u.session(ctx)
	defer s.Close()
	return u.store.Users.List(ctx, s, limit, offset)
}

func (u *DashboardUsecase) SetBlocked(ctx context.Context, userID int64, blocked bool) error {
	s := u.session(ctx)
	defer s.Close()
	return u.store.Users.SetBlocked(ctx, s, userID, blocked)
}

// Plans

func validatePlan(p *entities.Plan) error {
	switch {
	case p.Title == "":
		return errors.Wrap(entities.ErrInvalidInput, "title is required")
	case p.DurationDays <= 0:
		return errors.Wrap(entities.ErrInvalidInput, "duration_days must be positive")
	case p.Price < 0:
		return errors.Wrap(entities.ErrInvalidInput, "price must not be negative")
	}
	return nil
}

func (u *DashboardUsecase) ListPlans(ctx context.Context) ([]entities.Plan, error) {
	s := u.session(ctx)
	defer s.Close()
	return u.store.Plans.List(ctx, s, false)
}

func (u *DashboardUsecase) CreatePlan(ctx context.Context, p *entities.Plan) error {
	if err := validatePlan(p); err != nil {
		return err
	}
	s := u.session(ctx)
	defer s.Close()
	return u.store.Plans.Create(ctx, s, p)
}

func (u *DashboardUsecase) UpdatePlan(ctx context.Context, p *entities.Plan) error {
	if err := validatePlan(p); err != nil {
		return err
	}
	s := u.session(ctx)
	defer s.Close()
	return u.store.Plans.Update(ctx, s, p)
}

func (u *DashboardUsecase) DeletePlan(ctx context.Context, id int64) error {
	s := u.session(ctx)
	defer s.Close()
	return u.store.Plans.Deactivate(ctx, s, id)
}

// Payments and ledger

func (u *DashboardUsecase) GetPayment(ctx context.Context, id uuid.UUID) (*entities.Payment, error) {
	s := u.session(ctx)
	defer s.Close()
	return u.store.Payments.GetByID(ctx, s, id)
}

func (u *DashboardUsecase) UserPayments(ctx context.Context, userID int64) ([]entities.Payment, error) {
	s := u.session(ctx)
	defer s.Close()
	return u.store.Payments.ListByUser(ctx, s, userID, maxPageSize)
}

func (u *DashboardUsecase) UserTransactions(ctx context.Context, userID int64) ([]entities.Transaction, error) {
	s := u.session(ctx)
	defer s.Close()
	return u.store.Transactions.ListByUser(ctx, s, userID, maxPageSize)
}

// Settings

func (u *DashboardUsecase) Settings(ctx context.Context) ([]entities.BotSetting, error) {
	s := u.session(ctx)
	defer s.Close()
	return u.store.Settings.All(ctx, s)
}

func (u *DashboardUsecase) SetSetting(ctx context.Context, key, value string) error {
	if key != entities.SettingWelcomeMessage && key != entities.SettingSupportLink {
		return errors.Wrapf(entities.ErrInvalidInput, "unknown setting %q", key)
	}
	s := u.session(ctx)
	defer s.Close()
	return u.store.Settings.Set(ctx, s, key, value)
}
