package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
	"github.com/grantflow/grantflow-backend/internal/validation"
)

// ProfileStore описывает зависимости ProfileService от слоя хранилища.
type ProfileStore interface {
	Upsert(ctx context.Context, profile *models.Profile) error
	Get(ctx context.Context, owner uuid.UUID) (*models.Profile, error)
	Delete(ctx context.Context, owner uuid.UUID) error
}

// ProfileService управляет профилями участников. Заполненный профиль
// обязателен для создания черновиков предложений.
type ProfileService struct {
	profiles ProfileStore
}

// NewProfileService создаёт сервис профилей.
func NewProfileService(profiles ProfileStore) *ProfileService {
	return &ProfileService{profiles: profiles}
}

// ProfileInput параметры создания или обновления профиля.
type ProfileInput struct {
	FullName string  `json:"full_name"`
	Country  *string `json:"country,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
	Website  *string `json:"website,omitempty"`
	Contact  *string `json:"contact,omitempty"`
}

// Upsert создаёт или обновляет профиль инициатора.
func (s *ProfileService) Upsert(ctx context.Context, actor Actor, in ProfileInput) (*models.Profile, error) {
	if err := validation.ValidateNonEmpty("full_name", in.FullName); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateLength("full_name", in.FullName, 1, models.MaxTitleLen); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	for field, value := range map[string]*string{
		"country":   in.Country,
		"bio":       in.Bio,
		"image_url": in.ImageURL,
		"website":   in.Website,
		"contact":   in.Contact,
	} {
		if value == nil {
			continue
		}
		if err := validation.ValidateLength(field, *value, 0, models.MaxImageURLLen); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}

	profile := &models.Profile{
		Owner:    actor.ID,
		FullName: in.FullName,
		Country:  in.Country,
		Bio:      in.Bio,
		ImageURL: in.ImageURL,
		Website:  in.Website,
		Contact:  in.Contact,
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return nil, mapRepositoryError(err)
	}
	return profile, nil
}

// Get возвращает профиль участника.
func (s *ProfileService) Get(ctx context.Context, owner uuid.UUID) (*models.Profile, error) {
	profile, err := s.profiles.Get(ctx, owner)
	return profile, mapRepositoryError(err)
}

// Delete удаляет профиль. Разрешено владельцу и админу.
func (s *ProfileService) Delete(ctx context.Context, actor Actor, owner uuid.UUID) error {
	if actor.ID != owner && !actor.IsAdmin() {
		return apperror.ErrForbidden
	}
	return mapRepositoryError(s.profiles.Delete(ctx, owner))
}
