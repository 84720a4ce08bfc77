package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grantflow/grantflow-backend/internal/ballot"
	"github.com/grantflow/grantflow-backend/internal/logger"
	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
	"github.com/grantflow/grantflow-backend/internal/validation"
	"github.com/grantflow/grantflow-backend/internal/ws"
)

// ProposalStore описывает зависимости ProposalService от слоя хранилища.
type ProposalStore interface {
	GetByID(ctx context.Context, id int64) (*models.Proposal, error)
	GetBody(ctx context.Context, id int64) (*models.ProposalBody, error)
	ListByStatusCategory(ctx context.Context, status, category string, limit, offset int) ([]models.Proposal, error)
	ListByProposer(ctx context.Context, proposer uuid.UUID, limit, offset int) ([]models.Proposal, error)
	ListByReviewer(ctx context.Context, reviewer uuid.UUID, limit, offset int) ([]models.Proposal, error)
	ListRecentlyUpdated(ctx context.Context, limit, offset int) ([]models.Proposal, error)
	CreateDraft(ctx context.Context, proposer uuid.UUID, in models.ProposalDraftInput) (*models.Proposal, error)
	UpdateDraft(ctx context.Context, prop *models.Proposal, content *string) (*models.Proposal, error)
	Submit(ctx context.Context, id int64) (*models.Proposal, error)
	Review(ctx context.Context, id int64, approve bool, memo string) (*models.Proposal, error)
	SetReviewer(ctx context.Context, id int64, reviewer uuid.UUID) (*models.Proposal, error)
	BeginVoting(ctx context.Context, id int64, ballotHandle string, voteEndTime time.Time) (*models.Proposal, error)
	SkipVoting(ctx context.Context, id int64, memo string) (*models.Proposal, error)
	Cancel(ctx context.Context, id int64, memo string) (*models.Proposal, error)
	Delete(ctx context.Context, id int64) error
}

// LedgerReader предоставляет сервисам доступ к политикам казначейства.
type LedgerReader interface {
	Get(ctx context.Context) (*models.Ledger, error)
}

// ProfileChecker проверяет наличие профиля участника.
type ProfileChecker interface {
	Exists(ctx context.Context, owner uuid.UUID) (bool, error)
}

// UserChecker проверяет наличие активного пользователя.
type UserChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// BallotClient описывает внешний сервис голосований.
type BallotClient interface {
	CreateBallot(ctx context.Context, in ballot.CreateBallotInput) error
	UpdateDetails(ctx context.Context, handle, title, description string) error
	OpenVoting(ctx context.Context, handle string, endTime time.Time) error
	CloseVoting(ctx context.Context, handle string, broadcast bool) error
	CancelBallot(ctx context.Context, handle, memo string) error
	GetTreasury(ctx context.Context) (*ballot.Treasury, error)
}

// Notifier отправляет события через WebSocket.
type Notifier interface {
	NotifyUser(userID uuid.UUID, event string, data any) error
	NotifyAll(event string, data any) error
}

// Actor описывает авторизованного инициатора операции.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// IsAdmin сообщает, имеет ли инициатор права администратора.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// ProposalService реализует жизненный цикл предложений о финансировании.
type ProposalService struct {
	proposals  ProposalStore
	ledger     LedgerReader
	profiles   ProfileChecker
	users      UserChecker
	ballots    BallotClient
	tokens     TokenTransferer
	feeAccount string
	notifier   Notifier
}

// NewProposalService создаёт сервис предложений. feeAccount — счёт сервиса
// голосований, на который уходит сбор за открытие голосования.
func NewProposalService(
	proposals ProposalStore,
	ledger LedgerReader,
	profiles ProfileChecker,
	users UserChecker,
	ballots BallotClient,
	tokens TokenTransferer,
	feeAccount string,
	notifier Notifier,
) *ProposalService {
	return &ProposalService{
		proposals:  proposals,
		ledger:     ledger,
		profiles:   profiles,
		users:      users,
		ballots:    ballots,
		tokens:     tokens,
		feeAccount: feeAccount,
		notifier:   notifier,
	}
}

// Get возвращает предложение по идентификатору.
func (s *ProposalService) Get(ctx context.Context, id int64) (*models.Proposal, error) {
	prop, err := s.proposals.GetByID(ctx, id)
	return prop, mapRepositoryError(err)
}

// GetBody возвращает полное описание предложения.
func (s *ProposalService) GetBody(ctx context.Context, id int64) (*models.ProposalBody, error) {
	body, err := s.proposals.GetBody(ctx, id)
	return body, mapRepositoryError(err)
}

// List возвращает страницу предложений. Пустые status и category
// означают отсутствие фильтра.
func (s *ProposalService) List(ctx context.Context, status, category string, limit, offset int) ([]models.Proposal, error) {
	if status != "" {
		if _, ok := models.ValidProposalStatuses[status]; !ok {
			return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный статус предложения")
		}
	}
	limit, offset = normalizePage(limit, offset)
	props, err := s.proposals.ListByStatusCategory(ctx, status, category, limit, offset)
	return props, mapRepositoryError(err)
}

// ListByProposer возвращает предложения автора.
func (s *ProposalService) ListByProposer(ctx context.Context, proposer uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	limit, offset = normalizePage(limit, offset)
	props, err := s.proposals.ListByProposer(ctx, proposer, limit, offset)
	return props, mapRepositoryError(err)
}

// ListByReviewer возвращает предложения, закреплённые за ревьюером.
func (s *ProposalService) ListByReviewer(ctx context.Context, reviewer uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	limit, offset = normalizePage(limit, offset)
	props, err := s.proposals.ListByReviewer(ctx, reviewer, limit, offset)
	return props, mapRepositoryError(err)
}

// ListRecent возвращает недавно обновлённые предложения.
func (s *ProposalService) ListRecent(ctx context.Context, limit, offset int) ([]models.Proposal, error) {
	limit, offset = normalizePage(limit, offset)
	props, err := s.proposals.ListRecentlyUpdated(ctx, limit, offset)
	return props, mapRepositoryError(err)
}

// CreateDraft создаёт черновик предложения. Требуется заполненный профиль
// участника; с баланса автора списывается сбор за черновик.
func (s *ProposalService) CreateDraft(ctx context.Context, actor Actor, in models.ProposalDraftInput) (*models.Proposal, error) {
	if err := s.validateDraftInput(&in); err != nil {
		return nil, err
	}

	hasProfile, err := s.profiles.Exists(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if !hasProfile {
		return nil, apperror.New(apperror.ErrCodeConflict, "сначала заполните профиль участника")
	}

	ledger, err := s.ledger.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !ledger.IsActiveCategory(in.Category) {
		return nil, apperror.New(apperror.ErrCodeValidation, "категория не существует или выведена из употребления")
	}

	prop, err := s.proposals.CreateDraft(ctx, actor.ID, in)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	return prop, nil
}

// EditDraft частично обновляет черновик. Разрешено только автору.
func (s *ProposalService) EditDraft(ctx context.Context, actor Actor, id int64, in models.ProposalEditInput) (*models.Proposal, error) {
	prop, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID {
		return nil, apperror.ErrForbidden
	}
	if prop.Status != models.ProposalStatusDrafting {
		return nil, apperror.New(apperror.ErrCodeConflict, "редактировать можно только черновик")
	}

	merged := *prop
	if in.Title != nil {
		merged.Title = *in.Title
	}
	if in.Description != nil {
		merged.Description = *in.Description
	}
	if in.ImageURL != nil {
		merged.ImageURL = *in.ImageURL
	}
	if in.RoadMap != nil {
		merged.RoadMap = *in.RoadMap
	}
	if in.EstimatedTime != nil {
		merged.EstimatedTime = *in.EstimatedTime
	}
	if in.Category != nil {
		merged.Category = *in.Category
	}

	draft := models.ProposalDraftInput{
		Title:         merged.Title,
		Description:   merged.Description,
		ImageURL:      merged.ImageURL,
		RoadMap:       merged.RoadMap,
		EstimatedTime: merged.EstimatedTime,
		Category:      merged.Category,
	}
	if in.Content != nil {
		draft.Content = *in.Content
	}
	if err := s.validateDraftInput(&draft); err != nil {
		return nil, err
	}

	if in.Category != nil {
		ledger, err := s.ledger.Get(ctx)
		if err != nil {
			return nil, err
		}
		if !ledger.IsActiveCategory(*in.Category) {
			return nil, apperror.New(apperror.ErrCodeValidation, "категория не существует или выведена из употребления")
		}
	}

	updated, err := s.proposals.UpdateDraft(ctx, &merged, in.Content)
	return updated, mapRepositoryError(err)
}

// Submit подаёт черновик на рассмотрение. Разрешено только автору.
func (s *ProposalService) Submit(ctx context.Context, actor Actor, id int64) (*models.Proposal, error) {
	prop, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID {
		return nil, apperror.ErrForbidden
	}

	updated, err := s.proposals.Submit(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	s.notifyStatus(updated)
	return updated, nil
}

// Review фиксирует решение администратора по поданному предложению.
func (s *ProposalService) Review(ctx context.Context, actor Actor, id int64, approve bool, memo string) (*models.Proposal, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	if err := validation.ValidateLength("memo", memo, 0, validation.MaxMemoLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	updated, err := s.proposals.Review(ctx, id, approve, memo)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	s.notifyStatus(updated)
	return updated, nil
}

// SetReviewer закрепляет ревьюера за предложением. Только админ.
func (s *ProposalService) SetReviewer(ctx context.Context, actor Actor, id int64, reviewer uuid.UUID) (*models.Proposal, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}

	exists, err := s.users.Exists(ctx, reviewer)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.ErrUserNotFound
	}

	updated, err := s.proposals.SetReviewer(ctx, id, reviewer)
	return updated, mapRepositoryError(err)
}

// BeginVoting открывает голосование по одобренному предложению. Разрешено
// только автору: с его баланса списывается сбор за голосование.
func (s *ProposalService) BeginVoting(ctx context.Context, actor Actor, id int64) (*models.Proposal, error) {
	prop, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID {
		return nil, apperror.ErrForbidden
	}

	ledger, err := s.ledger.Get(ctx)
	if err != nil {
		return nil, err
	}

	handle := fmt.Sprintf("gf-%d-%s", id, uuid.NewString()[:8])
	voteEnd := time.Now().Add(time.Duration(ledger.VoteDuration) * time.Second)

	updated, err := s.proposals.BeginVoting(ctx, id, handle, voteEnd)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	// Сбор за голосование уходит на счёт сервиса голосований отдельным
	// переводом. Сбой не откатывает списание: перевод повторяется вручную
	// по журналу.
	if err := s.tokens.Transfer(ctx, s.feeAccount, models.BallotFee, fmt.Sprintf("ballot fee, proposal %d", id)); err != nil {
		logger.Log.WithFields(map[string]interface{}{
			"proposal_id": id,
			"amount":      models.BallotFee,
			"error":       err.Error(),
		}).Error("proposal service: не удалось перевести сбор за голосование")
	}

	// Внешнее голосование создаётся после фиксации статуса. Сбой здесь не
	// откатывает перевод: итоги сверяются webhook'ом, а голосование можно
	// пересоздать вручную.
	if err := s.ballots.CreateBallot(ctx, ballot.CreateBallotInput{
		Handle:      handle,
		Title:       updated.Title,
		Description: updated.Description,
		EndTime:     voteEnd,
	}); err != nil {
		logger.Log.WithFields(map[string]interface{}{
			"proposal_id": id,
			"handle":      handle,
			"error":       err.Error(),
		}).Error("proposal service: не удалось создать голосование")
	} else {
		// Полное Markdown описание зеркалируется на страницу голосования.
		if body, err := s.proposals.GetBody(ctx, id); err == nil {
			if err := s.ballots.UpdateDetails(ctx, handle, updated.Title, body.Content); err != nil {
				logger.Log.WithFields(map[string]interface{}{
					"proposal_id": id,
					"handle":      handle,
					"error":       err.Error(),
				}).Warn("proposal service: не удалось передать описание голосования")
			}
		}
		if err := s.ballots.OpenVoting(ctx, handle, voteEnd); err != nil {
			logger.Log.WithFields(map[string]interface{}{
				"proposal_id": id,
				"handle":      handle,
				"error":       err.Error(),
			}).Error("proposal service: не удалось открыть голосование")
		}
	}

	s.notifyStatus(updated)
	return updated, nil
}

// EndVoting просит сервис голосований закрыть голосование. Разрешено
// автору и админу; срок контролирует сам сервис голосований, итоги
// придут обратным вызовом.
func (s *ProposalService) EndVoting(ctx context.Context, actor Actor, id int64) (*models.Proposal, error) {
	prop, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID && !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	if prop.Status != models.ProposalStatusVoting {
		return nil, apperror.New(apperror.ErrCodeConflict, "предложение не на голосовании")
	}
	if prop.BallotHandle == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "голосование не зарегистрировано")
	}

	if err := s.ballots.CloseVoting(ctx, *prop.BallotHandle, true); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось закрыть голосование")
	}

	return prop, nil
}

// SkipVoting переводит поданное предложение сразу в работу. Только админ.
func (s *ProposalService) SkipVoting(ctx context.Context, actor Actor, id int64, memo string) (*models.Proposal, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}

	updated, err := s.proposals.SkipVoting(ctx, id, memo)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	s.notifyStatus(updated)
	return updated, nil
}

// Cancel отменяет предложение до начала работ. Разрешено автору и админу.
func (s *ProposalService) Cancel(ctx context.Context, actor Actor, id int64, memo string) (*models.Proposal, error) {
	prop, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID && !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}

	wasVoting := prop.Status == models.ProposalStatusVoting

	updated, err := s.proposals.Cancel(ctx, id, memo)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	if wasVoting && updated.BallotHandle != nil {
		if err := s.ballots.CancelBallot(ctx, *updated.BallotHandle, memo); err != nil {
			logger.Log.WithFields(map[string]interface{}{
				"proposal_id": id,
				"handle":      *updated.BallotHandle,
				"error":       err.Error(),
			}).Error("proposal service: не удалось отменить голосование")
		}
	}

	s.notifyStatus(updated)
	return updated, nil
}

// Delete удаляет предложение в терминальном статусе. Разрешено автору
// и админу.
func (s *ProposalService) Delete(ctx context.Context, actor Actor, id int64) error {
	prop, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		return mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID && !actor.IsAdmin() {
		return apperror.ErrForbidden
	}

	return mapRepositoryError(s.proposals.Delete(ctx, id))
}

// validateDraftInput проверяет пользовательские поля черновика.
func (s *ProposalService) validateDraftInput(in *models.ProposalDraftInput) error {
	checks := []error{
		validation.ValidateNonEmpty("title", in.Title),
		validation.ValidateLength("title", in.Title, 1, models.MaxTitleLen),
		validation.ValidateLength("description", in.Description, 0, models.MaxDescrLen),
		validation.ValidateLength("content", in.Content, 0, models.MaxBodyLen),
		validation.ValidateLength("image_url", in.ImageURL, 0, models.MaxImageURLLen),
		validation.ValidateLength("road_map", in.RoadMap, 0, models.MaxRoadMapLen),
		validation.ValidateCategoryName(in.Category),
	}
	for _, err := range checks {
		if err != nil {
			return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}
	if in.EstimatedTime <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "оценка срока должна быть положительной")
	}
	return nil
}

// notifyStatus рассылает событие о смене статуса предложения.
func (s *ProposalService) notifyStatus(prop *models.Proposal) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyAll(ws.EventProposalStatusChanged, map[string]any{
		"proposal_id": prop.ID,
		"status":      prop.Status,
	}); err != nil {
		logger.Log.WithField("proposal_id", prop.ID).Warn("proposal service: не удалось отправить событие")
	}
}

// normalizePage приводит параметры пагинации к допустимым значениям.
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
