package service

import (
	"context"

	"github.com/grantflow/grantflow-backend/internal/logger"
	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
	"github.com/grantflow/grantflow-backend/internal/validation"
	"github.com/grantflow/grantflow-backend/internal/ws"
)

// DeliverableStore описывает зависимости DeliverableService от слоя
// хранилища.
type DeliverableStore interface {
	Get(ctx context.Context, proposalID, deliverableID int64) (*models.Deliverable, error)
	ListByProposal(ctx context.Context, proposalID int64) ([]models.Deliverable, error)
	Add(ctx context.Context, proposalID int64, in models.DeliverableInput) (*models.Deliverable, error)
	Edit(ctx context.Context, proposalID, deliverableID int64, in models.DeliverableInput) (*models.Deliverable, error)
	Remove(ctx context.Context, proposalID, deliverableID int64) error
	SubmitReport(ctx context.Context, proposalID, deliverableID int64, report string) (*models.Deliverable, error)
	Review(ctx context.Context, proposalID, deliverableID int64, accept bool, memo string) (*models.Deliverable, error)
	ClaimFunds(ctx context.Context, proposalID, deliverableID int64) (*models.Deliverable, *models.Proposal, error)
}

// proposalGetter достаточно сервису этапов для проверок авторизации.
type proposalGetter interface {
	GetByID(ctx context.Context, id int64) (*models.Proposal, error)
}

// DeliverableService реализует жизненный цикл этапов работ.
type DeliverableService struct {
	deliverables DeliverableStore
	proposals    proposalGetter
	users        UserChecker
	notifier     Notifier
}

// NewDeliverableService создаёт сервис этапов.
func NewDeliverableService(
	deliverables DeliverableStore,
	proposals proposalGetter,
	users UserChecker,
	notifier Notifier,
) *DeliverableService {
	return &DeliverableService{
		deliverables: deliverables,
		proposals:    proposals,
		users:        users,
		notifier:     notifier,
	}
}

// Get возвращает этап.
func (s *DeliverableService) Get(ctx context.Context, proposalID, deliverableID int64) (*models.Deliverable, error) {
	deliv, err := s.deliverables.Get(ctx, proposalID, deliverableID)
	return deliv, mapRepositoryError(err)
}

// List возвращает все этапы предложения.
func (s *DeliverableService) List(ctx context.Context, proposalID int64) ([]models.Deliverable, error) {
	delivs, err := s.deliverables.ListByProposal(ctx, proposalID)
	return delivs, mapRepositoryError(err)
}

// Add добавляет этап к черновику. Разрешено автору предложения.
func (s *DeliverableService) Add(ctx context.Context, actor Actor, proposalID int64, in models.DeliverableInput) (*models.Deliverable, error) {
	prop, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID {
		return nil, apperror.ErrForbidden
	}

	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	exists, err := s.users.Exists(ctx, in.Recipient)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.New(apperror.ErrCodeNotFound, "получатель средств не найден")
	}

	deliv, err := s.deliverables.Add(ctx, proposalID, in)
	return deliv, mapRepositoryError(err)
}

// Edit обновляет этап черновика. Разрешено автору предложения.
func (s *DeliverableService) Edit(ctx context.Context, actor Actor, proposalID, deliverableID int64, in models.DeliverableInput) (*models.Deliverable, error) {
	prop, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID {
		return nil, apperror.ErrForbidden
	}

	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	exists, err := s.users.Exists(ctx, in.Recipient)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.New(apperror.ErrCodeNotFound, "получатель средств не найден")
	}

	deliv, err := s.deliverables.Edit(ctx, proposalID, deliverableID, in)
	return deliv, mapRepositoryError(err)
}

// Remove удаляет этап черновика. Разрешено автору предложения.
func (s *DeliverableService) Remove(ctx context.Context, actor Actor, proposalID, deliverableID int64) error {
	prop, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID {
		return apperror.ErrForbidden
	}

	return mapRepositoryError(s.deliverables.Remove(ctx, proposalID, deliverableID))
}

// SubmitReport подаёт отчёт о выполнении этапа. Разрешено автору
// предложения; допускает повторную подачу после отклонения.
func (s *DeliverableService) SubmitReport(ctx context.Context, actor Actor, proposalID, deliverableID int64, report string) (*models.Deliverable, error) {
	prop, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID {
		return nil, apperror.ErrForbidden
	}

	if err := validation.ValidateNonEmpty("report", report); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateLength("report", report, 1, validation.MaxReportLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	deliv, err := s.deliverables.SubmitReport(ctx, proposalID, deliverableID, report)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	s.notifyStatus(prop, deliv)
	return deliv, nil
}

// Review рассматривает отчёт. Разрешено назначенному ревьюеру
// предложения.
func (s *DeliverableService) Review(ctx context.Context, actor Actor, proposalID, deliverableID int64, accept bool, memo string) (*models.Deliverable, error) {
	prop, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if prop.Reviewer == nil || *prop.Reviewer != actor.ID {
		return nil, apperror.ErrForbidden
	}

	if err := validation.ValidateLength("memo", memo, 0, validation.MaxMemoLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	deliv, err := s.deliverables.Review(ctx, proposalID, deliverableID, accept, memo)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	s.notifyStatus(prop, deliv)
	return deliv, nil
}

// ClaimFunds выплачивает средства по принятому этапу. Разрешено автору
// предложения и получателю этапа.
func (s *DeliverableService) ClaimFunds(ctx context.Context, actor Actor, proposalID, deliverableID int64) (*models.Deliverable, error) {
	prop, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	deliv, err := s.deliverables.Get(ctx, proposalID, deliverableID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if prop.Proposer != actor.ID && deliv.Recipient != actor.ID {
		return nil, apperror.ErrForbidden
	}

	claimed, updated, err := s.deliverables.ClaimFunds(ctx, proposalID, deliverableID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyUser(claimed.Recipient, ws.EventFundsClaimed, map[string]any{
			"proposal_id":    proposalID,
			"deliverable_id": deliverableID,
			"amount":         claimed.Requested,
		}); err != nil {
			logger.Log.WithField("proposal_id", proposalID).Warn("deliverable service: не удалось отправить событие")
		}
		if updated.Status == models.ProposalStatusCompleted {
			if err := s.notifier.NotifyAll(ws.EventProposalStatusChanged, map[string]any{
				"proposal_id": updated.ID,
				"status":      updated.Status,
			}); err != nil {
				logger.Log.WithField("proposal_id", proposalID).Warn("deliverable service: не удалось отправить событие")
			}
		}
	}

	return claimed, nil
}

// validateInput проверяет пользовательские поля этапа.
func (s *DeliverableService) validateInput(in models.DeliverableInput) error {
	if err := validation.ValidatePositiveAmount("requested", in.Requested); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateLength("small_description", in.SmallDescription, 0, models.MaxSmallDescLen); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if in.DaysToComplete <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "срок выполнения должен быть положительным")
	}
	return nil
}

// notifyStatus рассылает событие о смене статуса этапа автору и
// получателю.
func (s *DeliverableService) notifyStatus(prop *models.Proposal, deliv *models.Deliverable) {
	if s.notifier == nil {
		return
	}
	payload := map[string]any{
		"proposal_id":    deliv.ProposalID,
		"deliverable_id": deliv.DeliverableID,
		"status":         deliv.Status,
	}
	if err := s.notifier.NotifyUser(prop.Proposer, ws.EventDeliverableStatusChanged, payload); err != nil {
		logger.Log.WithField("proposal_id", deliv.ProposalID).Warn("deliverable service: не удалось отправить событие")
	}
	if deliv.Recipient != prop.Proposer {
		if err := s.notifier.NotifyUser(deliv.Recipient, ws.EventDeliverableStatusChanged, payload); err != nil {
			logger.Log.WithField("proposal_id", deliv.ProposalID).Warn("deliverable service: не удалось отправить событие")
		}
	}
}
