package entities

import "time"

const (
	RoleSuperAdmin = "superadmin"
	RoleOwner      = "owner"
)

type Admin struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	BotID        *int64    `json:"bot_id,omitempty" db:"bot_id"` // Set for owners only
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
