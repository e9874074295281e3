package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"remnabot/internal/entities"
)

// SettingsRepository stores per-bot key/value settings.
type SettingsRepository struct{}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{}
}

// Get returns "" when the key is not set.
func (r *SettingsRepository) Get(ctx context.Context, s *Session, key string) (string, error) {
	var value string
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &value,
			"SELECT value FROM bot_settings WHERE bot_id = $1 AND key = $2", s.BotID(), key)
	})
	if err = translate(err, "get setting"); err != nil {
		if errors.Is(err, entities.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (r *SettingsRepository) Set(ctx context.Context, s *Session, key, value string, opts ...WriteOption) error {
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bot_settings (bot_id, key, value, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (bot_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			s.BotID(), key, value)
		return translate(err, "set setting")
	})
}

func (r *SettingsRepository) All(ctx context.Context, s *Session) ([]entities.BotSetting, error) {
	settings := []entities.BotSetting{}
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &settings,
			"SELECT bot_id, key, value, updated_at FROM bot_settings WHERE bot_id = $1 ORDER BY key", s.BotID())
	})
	if err != nil {
		return nil, translate(err, "list settings")
	}
	return settings, nil
}
