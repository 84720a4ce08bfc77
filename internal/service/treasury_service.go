package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/grantflow/grantflow-backend/internal/logger"
	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
	"github.com/grantflow/grantflow-backend/internal/validation"
	"github.com/grantflow/grantflow-backend/internal/ws"
)

// Меморандум входящего перевода, который казначейство игнорирует.
const depositMemoSkip = "skip"

// Меморандум входящего перевода, пополняющего общие фонды.
const depositMemoFund = "fund"

// LedgerStore описывает зависимости TreasuryService от записи казначейства.
type LedgerStore interface {
	Get(ctx context.Context) (*models.Ledger, error)
	SetVoteDuration(ctx context.Context, seconds int64) error
	SetThresholds(ctx context.Context, quorum, yes float64) error
	SetRequestedBounds(ctx context.Context, min, max int64) error
	AddCategory(ctx context.Context, category string) error
	DeprecateCategory(ctx context.Context, category string) error
}

// BalanceStore описывает операции со свободными балансами участников.
type BalanceStore interface {
	Get(ctx context.Context, owner uuid.UUID) (*models.Balance, error)
	Deposit(ctx context.Context, owner uuid.UUID, amount int64) (*models.Balance, error)
	Donate(ctx context.Context, amount int64) error
	Withdraw(ctx context.Context, owner uuid.UUID, amount int64) (*models.Balance, error)
	Delete(ctx context.Context, owner uuid.UUID) error
}

// userResolver находит участника по имени из мемо перевода.
type userResolver interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// TokenTransferer выполняет исходящие переводы токен-сервисом.
type TokenTransferer interface {
	Transfer(ctx context.Context, recipient string, amount int64, memo string) error
}

// TransferNotice описывает входящий перевод от токен-сервиса.
type TransferNotice struct {
	From   string `json:"from"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

// TreasuryService управляет записью казначейства, политиками
// финансирования и балансами участников.
type TreasuryService struct {
	ledger   LedgerStore
	balances BalanceStore
	users    userResolver
	tokens   TokenTransferer
	notifier Notifier
}

// NewTreasuryService создаёт сервис казначейства.
func NewTreasuryService(
	ledger LedgerStore,
	balances BalanceStore,
	users userResolver,
	tokens TokenTransferer,
	notifier Notifier,
) *TreasuryService {
	return &TreasuryService{
		ledger:   ledger,
		balances: balances,
		users:    users,
		tokens:   tokens,
		notifier: notifier,
	}
}

// GetLedger возвращает текущее состояние казначейства.
func (s *TreasuryService) GetLedger(ctx context.Context) (*models.Ledger, error) {
	return s.ledger.Get(ctx)
}

// SetVoteDuration задаёт длительность голосований. Только админ.
func (s *TreasuryService) SetVoteDuration(ctx context.Context, actor Actor, seconds int64) error {
	if !actor.IsAdmin() {
		return apperror.ErrForbidden
	}
	if seconds <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "длительность голосования должна быть положительной")
	}
	return s.ledger.SetVoteDuration(ctx, seconds)
}

// SetThresholds задаёт пороги кворума и одобрения. Только админ.
func (s *TreasuryService) SetThresholds(ctx context.Context, actor Actor, quorum, yes float64) error {
	if !actor.IsAdmin() {
		return apperror.ErrForbidden
	}
	if quorum <= 0 || quorum > 100 {
		return apperror.New(apperror.ErrCodeValidation, "порог кворума должен быть в интервале (0, 100]")
	}
	if yes <= 0 || yes > 100 {
		return apperror.New(apperror.ErrCodeValidation, "порог одобрения должен быть в интервале (0, 100]")
	}
	return s.ledger.SetThresholds(ctx, quorum, yes)
}

// SetRequestedBounds задаёт границы запрашиваемых сумм. Только админ.
func (s *TreasuryService) SetRequestedBounds(ctx context.Context, actor Actor, min, max int64) error {
	if !actor.IsAdmin() {
		return apperror.ErrForbidden
	}
	if min <= 0 || max < min {
		return apperror.New(apperror.ErrCodeValidation, "границы сумм должны удовлетворять 0 < min <= max")
	}
	return s.ledger.SetRequestedBounds(ctx, min, max)
}

// AddCategory добавляет или возвращает в употребление категорию. Только
// админ.
func (s *TreasuryService) AddCategory(ctx context.Context, actor Actor, category string) error {
	if !actor.IsAdmin() {
		return apperror.ErrForbidden
	}
	if err := validation.ValidateCategoryName(category); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	return mapRepositoryError(s.ledger.AddCategory(ctx, category))
}

// DeprecateCategory выводит категорию из употребления. Только админ.
// Существующие предложения категории не затрагиваются.
func (s *TreasuryService) DeprecateCategory(ctx context.Context, actor Actor, category string) error {
	if !actor.IsAdmin() {
		return apperror.ErrForbidden
	}
	return mapRepositoryError(s.ledger.DeprecateCategory(ctx, category))
}

// HandleTransfer обрабатывает уведомление токен-сервиса о входящем
// переводе. Мемо "skip" игнорируется, "fund" пополняет общие фонды,
// любое другое мемо не меняет адресата: зачисление всегда идёт на
// баланс отправителя.
func (s *TreasuryService) HandleTransfer(ctx context.Context, notice TransferNotice) error {
	if notice.Amount <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "сумма перевода должна быть положительной")
	}

	switch strings.TrimSpace(notice.Memo) {
	case depositMemoSkip:
		return nil
	case depositMemoFund:
		return mapRepositoryError(s.balances.Donate(ctx, notice.Amount))
	}

	user, err := s.users.GetByUsername(ctx, notice.From)
	if err != nil {
		return mapRepositoryError(err)
	}

	balance, err := s.balances.Deposit(ctx, user.ID, notice.Amount)
	if err != nil {
		return mapRepositoryError(err)
	}

	s.notifyBalance(user.ID, balance)
	return nil
}

// GetBalance возвращает свободный баланс участника.
func (s *TreasuryService) GetBalance(ctx context.Context, owner uuid.UUID) (*models.Balance, error) {
	balance, err := s.balances.Get(ctx, owner)
	return balance, mapRepositoryError(err)
}

// Withdraw выводит средства участника на внешний счёт. При сбое
// исходящего перевода списание откатывается обратным зачислением.
func (s *TreasuryService) Withdraw(ctx context.Context, actor Actor, amount int64, destination string) (*models.Balance, error) {
	if err := validation.ValidatePositiveAmount("amount", amount); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateNonEmpty("destination", destination); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	balance, err := s.balances.Withdraw(ctx, actor.ID, amount)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	if err := s.tokens.Transfer(ctx, destination, amount, "grantflow withdrawal"); err != nil {
		logger.Log.WithFields(map[string]interface{}{
			"owner":  actor.ID,
			"amount": amount,
			"error":  err.Error(),
		}).Error("treasury service: исходящий перевод не выполнен, списание откатывается")

		if restored, depErr := s.balances.Deposit(ctx, actor.ID, amount); depErr != nil {
			logger.Log.WithFields(map[string]interface{}{
				"owner":  actor.ID,
				"amount": amount,
				"error":  depErr.Error(),
			}).Error("treasury service: не удалось вернуть средства после сбоя перевода")
		} else {
			balance = restored
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "перевод не выполнен")
	}

	s.notifyBalance(actor.ID, balance)
	return balance, nil
}

// DeleteBalance удаляет запись пустого баланса владельца.
func (s *TreasuryService) DeleteBalance(ctx context.Context, actor Actor, owner uuid.UUID) error {
	if actor.ID != owner && !actor.IsAdmin() {
		return apperror.ErrForbidden
	}
	return mapRepositoryError(s.balances.Delete(ctx, owner))
}

func (s *TreasuryService) notifyBalance(owner uuid.UUID, balance *models.Balance) {
	if s.notifier == nil || balance == nil {
		return
	}
	if err := s.notifier.NotifyUser(owner, ws.EventBalanceUpdated, balance); err != nil {
		logger.Log.WithField("owner", owner).Warn("treasury service: не удалось отправить событие")
	}
}
