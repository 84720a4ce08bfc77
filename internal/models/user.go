package models

import (
	"time"

	"github.com/google/uuid"
)

// User описывает сущность участника системы.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Profile описывает публичный профиль участника. Наличие профиля является
// обязательным условием создания черновика предложения.
type Profile struct {
	Owner     uuid.UUID `db:"owner" json:"owner"`
	FullName  string    `db:"full_name" json:"full_name"`
	Country   *string   `db:"country" json:"country,omitempty"`
	Bio       *string   `db:"bio" json:"bio,omitempty"`
	ImageURL  *string   `db:"image_url" json:"image_url,omitempty"`
	Website   *string   `db:"website" json:"website,omitempty"`
	Contact   *string   `db:"contact" json:"contact,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
