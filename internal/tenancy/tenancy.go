// Package tenancy carries the current bot (tenant) through request-scoped contexts.
package tenancy

import (
	"context"

	"remnabot/internal/entities"
)

type contextKey string

const botIDKey contextKey = "bot_id"

// WithBot returns a copy of ctx scoped to botID.
func WithBot(ctx context.Context, botID int64) context.Context {
	return context.WithValue(ctx, botIDKey, botID)
}

// BotID returns the bot the context is scoped to.
func BotID(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(botIDKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// MustBotID is BotID for callers that cannot proceed without a tenant.
func MustBotID(ctx context.Context) (int64, error) {
	id, ok := BotID(ctx)
	if !ok {
		return 0, entities.ErrTenantMissing
	}
	return id, nil
}
