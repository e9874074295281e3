package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"remnabot/internal/entities"
)

const adminColumns = "id, username, password_hash, role, bot_id, created_at"

type AdminRepository struct{}

func NewAdminRepository() *AdminRepository {
	return &AdminRepository{}
}

func (r *AdminRepository) Create(ctx context.Context, s *Session, a *entities.Admin, opts ...WriteOption) error {
	return s.write(ctx, opts, func(tx *sqlx.Tx) error {
		return translate(tx.QueryRowxContext(ctx, `
			INSERT INTO admins (username, password_hash, role, bot_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			a.Username, a.PasswordHash, a.Role, a.BotID).Scan(&a.ID, &a.CreatedAt), "create admin")
	})
}

func (r *AdminRepository) GetByUsername(ctx context.Context, s *Session, username string) (*entities.Admin, error) {
	var a entities.Admin
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &a, "SELECT "+adminColumns+" FROM admins WHERE username = $1", username)
	})
	if err != nil {
		return nil, translate(err, "get admin")
	}
	return &a, nil
}

func (r *AdminRepository) GetByID(ctx context.Context, s *Session, id int64) (*entities.Admin, error) {
	var a entities.Admin
	err := s.read(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &a, "SELECT "+adminColumns+" FROM admins WHERE id = $1", id)
	})
	if err != nil {
		return nil, translate(err, "get admin")
	}
	return &a, nil
}
