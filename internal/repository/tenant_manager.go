package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"remnabot/internal/entities"
)

// TenantDefaults seeds a freshly registered bot.
type TenantDefaults struct {
	Settings map[string]string
	Plans    []entities.Plan
}

// TenantManager provisions and removes tenants. Isolation itself lives in
// the database (row-level security keyed on app.current_bot_id).
type TenantManager struct {
	db       *sqlx.DB
	bots     *BotRepository
	settings *SettingsRepository
	plans    *PlanRepository
}

func NewTenantManager(db *sqlx.DB) *TenantManager {
	return &TenantManager{
		db:       db,
		bots:     NewBotRepository(),
		settings: NewSettingsRepository(),
		plans:    NewPlanRepository(),
	}
}

// Provision inserts the bot with its default settings and plans in a single
// transaction. On error nothing is left behind.
func (t *TenantManager) Provision(ctx context.Context, bot *entities.Bot, defaults TenantDefaults) error {
	// The bot id does not exist yet, so the session starts unscoped and is
	// re-scoped after the insert within the same transaction.
	s := NewSession(t.db)
	defer s.Close()

	if err := t.bots.Create(ctx, s, bot, Deferred()); err != nil {
		return err
	}

	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SELECT set_config('app.current_bot_id', $1, true)",
		formatID(bot.ID)); err != nil {
		return errors.Wrap(err, "scope transaction to new bot")
	}
	s.botID = bot.ID

	for key, value := range defaults.Settings {
		if err := t.settings.Set(ctx, s, key, value, Deferred()); err != nil {
			return err
		}
	}
	for i := range defaults.Plans {
		if err := t.plans.Create(ctx, s, &defaults.Plans[i], Deferred()); err != nil {
			return err
		}
	}

	return s.Commit()
}

// Deprovision deletes the bot and, by cascade, every row it owns.
func (t *TenantManager) Deprovision(ctx context.Context, botID int64) error {
	return t.bots.Delete(ctx, NewSession(t.db), botID)
}
