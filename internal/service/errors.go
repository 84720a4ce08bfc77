package service

import (
	"errors"

	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
	"github.com/grantflow/grantflow-backend/internal/repository"
)

// mapRepositoryError переводит сигнальные ошибки слоя хранилища в
// ошибки приложения с корректным HTTP статусом.
func mapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrProposalNotFound):
		return apperror.ErrProposalNotFound
	case errors.Is(err, repository.ErrDeliverableNotFound):
		return apperror.ErrDeliverableNotFound
	case errors.Is(err, repository.ErrBalanceNotFound):
		return apperror.ErrBalanceNotFound
	case errors.Is(err, repository.ErrProfileNotFound):
		return apperror.ErrProfileNotFound
	case errors.Is(err, repository.ErrUserNotFound):
		return apperror.ErrUserNotFound
	case errors.Is(err, repository.ErrInsufficientFunds):
		return apperror.Wrap(err, apperror.ErrCodeInsufficientFunds, "недостаточно средств на балансе")
	case errors.Is(err, repository.ErrDepositedInsufficient):
		return apperror.Wrap(err, apperror.ErrCodeInsufficientFunds, "недостаточно депонированных средств")
	case errors.Is(err, repository.ErrTreasuryInsufficient):
		return apperror.Wrap(err, apperror.ErrCodeInsufficientFunds, "в казне недостаточно свободных средств")
	case errors.Is(err, repository.ErrBalanceNotEmpty):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "баланс не пуст")
	case errors.Is(err, repository.ErrInvalidStatus):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "предложение находится в другом статусе")
	case errors.Is(err, repository.ErrDeliverableStatus):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "этап находится в другом статусе")
	case errors.Is(err, repository.ErrReviewerNotSet):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "ревьюер не назначен")
	case errors.Is(err, repository.ErrDeliverableLimit):
		return apperror.Wrap(err, apperror.ErrCodeValidation, "превышено число этапов")
	case errors.Is(err, repository.ErrLastDeliverable):
		return apperror.Wrap(err, apperror.ErrCodeValidation, "должен остаться хотя бы один этап")
	case errors.Is(err, repository.ErrRequestedBounds):
		return apperror.Wrap(err, apperror.ErrCodeValidation, "сумма вне границ политики финансирования")
	case errors.Is(err, repository.ErrProposalLimit):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "достигнут предел числа предложений")
	case errors.Is(err, repository.ErrCategoryExists):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "категория уже существует")
	case errors.Is(err, repository.ErrCategoryNotFound):
		return apperror.Wrap(err, apperror.ErrCodeNotFound, "категория не найдена")
	default:
		return err
	}
}
