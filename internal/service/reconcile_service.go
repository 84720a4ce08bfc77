package service

import (
	"context"
	"errors"

	"github.com/grantflow/grantflow-backend/internal/logger"
	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
	"github.com/grantflow/grantflow-backend/internal/repository"
	"github.com/grantflow/grantflow-backend/internal/ws"
)

// VoteBroadcast описывает итоги голосования, присланные сервисом
// голосований.
type VoteBroadcast struct {
	Handle string `json:"handle"`
	Yes    int64  `json:"yes"`
	No     int64  `json:"no"`
}

// reconcileStore достаточно сервису сверки из слоя хранилища.
type reconcileStore interface {
	GetByBallotHandle(ctx context.Context, handle string) (*models.Proposal, error)
	ApplyVotePass(ctx context.Context, id int64, yes, no int64) (*models.Proposal, error)
	ApplyVoteFail(ctx context.Context, id int64, yes, no int64) (*models.Proposal, error)
}

// ReconcileService применяет итоги завершённых голосований к
// предложениям. Повторная доставка одного и того же итога безопасна.
type ReconcileService struct {
	proposals reconcileStore
	ledger    LedgerReader
	ballots   BallotClient
	notifier  Notifier
}

// NewReconcileService создаёт сервис сверки итогов.
func NewReconcileService(
	proposals reconcileStore,
	ledger LedgerReader,
	ballots BallotClient,
	notifier Notifier,
) *ReconcileService {
	return &ReconcileService{
		proposals: proposals,
		ledger:    ledger,
		ballots:   ballots,
		notifier:  notifier,
	}
}

// Apply обрабатывает итоги голосования. Неизвестный handle и уже
// разрешённое голосование считаются no-op.
func (s *ReconcileService) Apply(ctx context.Context, in VoteBroadcast) (*models.Proposal, error) {
	if in.Yes < 0 || in.No < 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "итоги голосования не могут быть отрицательными")
	}

	prop, err := s.proposals.GetByBallotHandle(ctx, in.Handle)
	if err != nil {
		if errors.Is(err, repository.ErrProposalNotFound) {
			logger.Log.WithField("handle", in.Handle).Info("reconcile: неизвестное голосование, итог пропущен")
			return nil, nil
		}
		return nil, err
	}
	if prop.Status != models.ProposalStatusVoting {
		return prop, nil
	}

	ledger, err := s.ledger.Get(ctx)
	if err != nil {
		return nil, err
	}

	treasury, err := s.ballots.GetTreasury(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить казну голосующего токена")
	}

	passed := VotePassed(in.Yes, in.No, treasury.Supply, ledger.QuorumThreshold, ledger.YesThreshold)

	var updated *models.Proposal
	if passed {
		updated, err = s.proposals.ApplyVotePass(ctx, prop.ID, in.Yes, in.No)
		if errors.Is(err, repository.ErrTreasuryInsufficient) {
			// Голоса набраны, но свободных средств не хватает. Предложение
			// остаётся в voting: итог можно применить повторно, когда казна
			// пополнится.
			logger.Log.WithFields(map[string]interface{}{
				"proposal_id": prop.ID,
				"requested":   prop.TotalRequestedFunds,
			}).Warn("reconcile: голосование пройдено, но средств недостаточно")
		}
	} else {
		updated, err = s.proposals.ApplyVoteFail(ctx, prop.ID, in.Yes, in.No)
	}
	if err != nil {
		if errors.Is(err, repository.ErrInvalidStatus) {
			// Итог уже применён параллельной доставкой.
			return prop, nil
		}
		return nil, mapRepositoryError(err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyAll(ws.EventProposalStatusChanged, map[string]any{
			"proposal_id": updated.ID,
			"status":      updated.Status,
		}); err != nil {
			logger.Log.WithField("proposal_id", updated.ID).Warn("reconcile: не удалось отправить событие")
		}
	}

	return updated, nil
}

// VotePassed решает исход голосования: суммарная явка должна достичь
// кворума от эмиссии токена, а доля «за» — порога одобрения от явки.
// Пороговые суммы усекаются до целого числа базовых единиц.
func VotePassed(yes, no, supply int64, quorumThreshold, yesThreshold float64) bool {
	total := yes + no
	if total <= 0 {
		return false
	}
	quorumAmount := int64(float64(supply) * quorumThreshold / 100)
	approveAmount := int64(float64(total) * yesThreshold / 100)
	return total >= quorumAmount && yes >= approveAmount
}
