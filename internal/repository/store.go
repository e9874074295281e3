package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Store groups the repositories around one database handle.
type Store struct {
	DB            *sqlx.DB
	Admins        *AdminRepository
	Bots          *BotRepository
	Settings      *SettingsRepository
	Users         *UserRepository
	Plans         *PlanRepository
	Subscriptions *SubscriptionRepository
	Payments      *PaymentRepository
	Transactions  *TransactionRepository
	Tenants       *TenantManager
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		DB:            db,
		Admins:        NewAdminRepository(),
		Bots:          NewBotRepository(),
		Settings:      NewSettingsRepository(),
		Users:         NewUserRepository(),
		Plans:         NewPlanRepository(),
		Subscriptions: NewSubscriptionRepository(),
		Payments:      NewPaymentRepository(),
		Transactions:  NewTransactionRepository(),
		Tenants:       NewTenantManager(db),
	}
}

// Session opens a session scoped to the bot carried by ctx.
func (st *Store) Session(ctx context.Context) *Session {
	return NewSessionFor(ctx, st.DB)
}

// System opens an unscoped session for the admins and bots tables.
func (st *Store) System() *Session {
	return NewSession(st.DB)
}

// InTx runs fn as one unit of work scoped to the bot in ctx.
func (st *Store) InTx(ctx context.Context, fn func(s *Session) error) error {
	return RunInTx(ctx, st.DB, fn)
}
