package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
	"github.com/grantflow/grantflow-backend/internal/repository"
)

type mockProfileStore struct {
	mock.Mock
}

func (m *mockProfileStore) Upsert(ctx context.Context, profile *models.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *mockProfileStore) Get(ctx context.Context, owner uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockProfileStore) Delete(ctx context.Context, owner uuid.UUID) error {
	args := m.Called(ctx, owner)
	return args.Error(0)
}

func TestProfileService_Upsert_Success(t *testing.T) {
	store := new(mockProfileStore)
	svc := NewProfileService(store)

	ctx := context.Background()
	actor := Actor{ID: uuid.New()}
	store.On("Upsert", ctx, mock.AnythingOfType("*models.Profile")).Return(nil)

	bio := "Инженер распределённых систем"
	profile, err := svc.Upsert(ctx, actor, ProfileInput{FullName: "Алиса Иванова", Bio: &bio})
	assert.NoError(t, err)
	assert.Equal(t, actor.ID, profile.Owner)
	assert.Equal(t, "Алиса Иванова", profile.FullName)
	store.AssertExpectations(t)
}

func TestProfileService_Upsert_EmptyFullName(t *testing.T) {
	store := new(mockProfileStore)
	svc := NewProfileService(store)

	_, err := svc.Upsert(context.Background(), Actor{ID: uuid.New()}, ProfileInput{FullName: "  "})
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestProfileService_Get_NotFound(t *testing.T) {
	store := new(mockProfileStore)
	svc := NewProfileService(store)

	ctx := context.Background()
	owner := uuid.New()
	store.On("Get", ctx, owner).Return(nil, repository.ErrProfileNotFound)

	_, err := svc.Get(ctx, owner)
	assert.True(t, apperror.IsNotFound(err))
}

func TestProfileService_Delete_Forbidden(t *testing.T) {
	store := new(mockProfileStore)
	svc := NewProfileService(store)

	err := svc.Delete(context.Background(), Actor{ID: uuid.New(), Role: models.RoleMember}, uuid.New())
	assert.True(t, apperror.IsForbidden(err))
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestProfileService_Delete_ByAdmin(t *testing.T) {
	store := new(mockProfileStore)
	svc := NewProfileService(store)

	ctx := context.Background()
	owner := uuid.New()
	store.On("Delete", ctx, owner).Return(nil)

	err := svc.Delete(ctx, Actor{ID: uuid.New(), Role: models.RoleAdmin}, owner)
	assert.NoError(t, err)
	store.AssertExpectations(t)
}
