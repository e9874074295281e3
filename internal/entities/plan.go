package entities

import "time"

type Plan struct {
	ID           int64     `json:"id" db:"id"`
	BotID        int64     `json:"bot_id" db:"bot_id"`
	Title        string    `json:"title" db:"title"`
	DurationDays int       `json:"duration_days" db:"duration_days"`
	Price        int64     `json:"price" db:"price"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
