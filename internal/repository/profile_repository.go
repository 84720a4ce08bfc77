package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/grantflow/grantflow-backend/internal/models"
)

// ErrProfileNotFound возвращается, когда профиль участника не найден.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository отвечает за таблицу profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert создаёт профиль или обновляет существующий.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (owner, full_name, country, bio, image_url, website, contact)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			country = EXCLUDED.country,
			bio = EXCLUDED.bio,
			image_url = EXCLUDED.image_url,
			website = EXCLUDED.website,
			contact = EXCLUDED.contact,
			updated_at = NOW()
		RETURNING updated_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		profile.Owner, profile.FullName, profile.Country, profile.Bio,
		profile.ImageURL, profile.Website, profile.Contact,
	).Scan(&profile.UpdatedAt); err != nil {
		return fmt.Errorf("profile repository: upsert %w", err)
	}
	return nil
}

// Get возвращает профиль по владельцу.
func (r *ProfileRepository) Get(ctx context.Context, owner uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	query := `
		SELECT owner, full_name, country, bio, image_url, website, contact, updated_at
		FROM profiles WHERE owner = $1
	`
	if err := r.db.GetContext(ctx, &profile, query, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profile repository: get %w", err)
	}
	return &profile, nil
}

// Exists проверяет наличие профиля.
func (r *ProfileRepository) Exists(ctx context.Context, owner uuid.UUID) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM profiles WHERE owner = $1`, owner); err != nil {
		return false, fmt.Errorf("profile repository: exists %w", err)
	}
	return count > 0, nil
}

// Delete удаляет профиль владельца.
func (r *ProfileRepository) Delete(ctx context.Context, owner uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE owner = $1`, owner)
	if err != nil {
		return fmt.Errorf("profile repository: delete %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("profile repository: delete rows affected %w", err)
	}
	if affected == 0 {
		return ErrProfileNotFound
	}
	return nil
}
