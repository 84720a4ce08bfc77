package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
	"github.com/grantflow/grantflow-backend/internal/repository"
)

type mockLedgerStore struct {
	mock.Mock
}

func (m *mockLedgerStore) Get(ctx context.Context) (*models.Ledger, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ledger), args.Error(1)
}

func (m *mockLedgerStore) SetVoteDuration(ctx context.Context, seconds int64) error {
	args := m.Called(ctx, seconds)
	return args.Error(0)
}

func (m *mockLedgerStore) SetThresholds(ctx context.Context, quorum, yes float64) error {
	args := m.Called(ctx, quorum, yes)
	return args.Error(0)
}

func (m *mockLedgerStore) SetRequestedBounds(ctx context.Context, min, max int64) error {
	args := m.Called(ctx, min, max)
	return args.Error(0)
}

func (m *mockLedgerStore) AddCategory(ctx context.Context, category string) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

func (m *mockLedgerStore) DeprecateCategory(ctx context.Context, category string) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

type mockBalanceStore struct {
	mock.Mock
}

func (m *mockBalanceStore) Get(ctx context.Context, owner uuid.UUID) (*models.Balance, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Balance), args.Error(1)
}

func (m *mockBalanceStore) Deposit(ctx context.Context, owner uuid.UUID, amount int64) (*models.Balance, error) {
	args := m.Called(ctx, owner, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Balance), args.Error(1)
}

func (m *mockBalanceStore) Donate(ctx context.Context, amount int64) error {
	args := m.Called(ctx, amount)
	return args.Error(0)
}

func (m *mockBalanceStore) Withdraw(ctx context.Context, owner uuid.UUID, amount int64) (*models.Balance, error) {
	args := m.Called(ctx, owner, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Balance), args.Error(1)
}

func (m *mockBalanceStore) Delete(ctx context.Context, owner uuid.UUID) error {
	args := m.Called(ctx, owner)
	return args.Error(0)
}

type mockUserResolver struct {
	mock.Mock
}

func (m *mockUserResolver) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockTokenTransferer struct {
	mock.Mock
}

func (m *mockTokenTransferer) Transfer(ctx context.Context, recipient string, amount int64, memo string) error {
	args := m.Called(ctx, recipient, amount, memo)
	return args.Error(0)
}

func newTreasuryService(ledger *mockLedgerStore, balances *mockBalanceStore, users *mockUserResolver, tokens *mockTokenTransferer, notifier *mockNotifier) *TreasuryService {
	return NewTreasuryService(ledger, balances, users, tokens, notifier)
}

func TestTreasuryService_HandleTransfer_SkipMemo(t *testing.T) {
	balances := new(mockBalanceStore)
	svc := newTreasuryService(new(mockLedgerStore), balances, new(mockUserResolver), new(mockTokenTransferer), new(mockNotifier))

	err := svc.HandleTransfer(context.Background(), TransferNotice{From: "exchange", Amount: 100, Memo: "skip"})
	assert.NoError(t, err)
	balances.AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything, mock.Anything)
	balances.AssertNotCalled(t, "Donate", mock.Anything, mock.Anything)
}

func TestTreasuryService_HandleTransfer_FundMemo(t *testing.T) {
	balances := new(mockBalanceStore)
	svc := newTreasuryService(new(mockLedgerStore), balances, new(mockUserResolver), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	balances.On("Donate", ctx, int64(500*models.AssetPrecision)).Return(nil)

	err := svc.HandleTransfer(ctx, TransferNotice{From: "donor", Amount: 500 * models.AssetPrecision, Memo: "fund"})
	assert.NoError(t, err)
	balances.AssertExpectations(t)
}

func TestTreasuryService_HandleTransfer_CreditsSender(t *testing.T) {
	balances := new(mockBalanceStore)
	users := new(mockUserResolver)
	notifier := new(mockNotifier)
	svc := newTreasuryService(new(mockLedgerStore), balances, users, new(mockTokenTransferer), notifier)

	ctx := context.Background()
	userID := uuid.New()
	users.On("GetByUsername", ctx, "bob").Return(&models.User{ID: userID, Username: "bob"}, nil)
	balances.On("Deposit", ctx, userID, int64(50)).Return(&models.Balance{Owner: userID, Amount: 50}, nil)
	notifier.On("NotifyUser", userID, mock.Anything, mock.Anything).Return(nil)

	err := svc.HandleTransfer(ctx, TransferNotice{From: "bob", Amount: 50, Memo: ""})
	assert.NoError(t, err)
	users.AssertExpectations(t)
	balances.AssertExpectations(t)
}

func TestTreasuryService_HandleTransfer_ArbitraryMemoCreditsSender(t *testing.T) {
	balances := new(mockBalanceStore)
	users := new(mockUserResolver)
	notifier := new(mockNotifier)
	svc := newTreasuryService(new(mockLedgerStore), balances, users, new(mockTokenTransferer), notifier)

	ctx := context.Background()
	userID := uuid.New()
	users.On("GetByUsername", ctx, "alice").Return(&models.User{ID: userID, Username: "alice"}, nil)
	balances.On("Deposit", ctx, userID, int64(300)).Return(&models.Balance{Owner: userID, Amount: 300}, nil)
	notifier.On("NotifyUser", userID, mock.Anything, mock.Anything).Return(nil)

	// Произвольное мемо не выбирает адресата: зачисление идёт отправителю.
	err := svc.HandleTransfer(ctx, TransferNotice{From: "alice", Amount: 300, Memo: "invoice 42"})
	assert.NoError(t, err)
	balances.AssertExpectations(t)
}

func TestTreasuryService_HandleTransfer_UnknownSender(t *testing.T) {
	users := new(mockUserResolver)
	svc := newTreasuryService(new(mockLedgerStore), new(mockBalanceStore), users, new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	users.On("GetByUsername", ctx, "ghost").Return(nil, repository.ErrUserNotFound)

	err := svc.HandleTransfer(ctx, TransferNotice{From: "ghost", Amount: 10, Memo: ""})
	assert.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestTreasuryService_HandleTransfer_NonPositiveAmount(t *testing.T) {
	svc := newTreasuryService(new(mockLedgerStore), new(mockBalanceStore), new(mockUserResolver), new(mockTokenTransferer), new(mockNotifier))

	err := svc.HandleTransfer(context.Background(), TransferNotice{From: "exchange", Amount: 0, Memo: "fund"})
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestTreasuryService_Withdraw_Success(t *testing.T) {
	balances := new(mockBalanceStore)
	tokens := new(mockTokenTransferer)
	notifier := new(mockNotifier)
	svc := newTreasuryService(new(mockLedgerStore), balances, new(mockUserResolver), tokens, notifier)

	ctx := context.Background()
	owner := uuid.New()
	balances.On("Withdraw", ctx, owner, int64(200)).Return(&models.Balance{Owner: owner, Amount: 800}, nil)
	tokens.On("Transfer", ctx, "external-acct", int64(200), mock.AnythingOfType("string")).Return(nil)
	notifier.On("NotifyUser", owner, mock.Anything, mock.Anything).Return(nil)

	balance, err := svc.Withdraw(ctx, Actor{ID: owner}, 200, "external-acct")
	assert.NoError(t, err)
	assert.Equal(t, int64(800), balance.Amount)
	tokens.AssertExpectations(t)
}

func TestTreasuryService_Withdraw_TransferFails_Refunds(t *testing.T) {
	balances := new(mockBalanceStore)
	tokens := new(mockTokenTransferer)
	svc := newTreasuryService(new(mockLedgerStore), balances, new(mockUserResolver), tokens, new(mockNotifier))

	ctx := context.Background()
	owner := uuid.New()
	balances.On("Withdraw", ctx, owner, int64(200)).Return(&models.Balance{Owner: owner, Amount: 800}, nil)
	tokens.On("Transfer", ctx, "external-acct", int64(200), mock.AnythingOfType("string")).Return(errors.New("service unavailable"))
	balances.On("Deposit", ctx, owner, int64(200)).Return(&models.Balance{Owner: owner, Amount: 1000}, nil)

	_, err := svc.Withdraw(ctx, Actor{ID: owner}, 200, "external-acct")
	assert.Error(t, err)
	balances.AssertExpectations(t)
}

func TestTreasuryService_Withdraw_InsufficientFunds(t *testing.T) {
	balances := new(mockBalanceStore)
	svc := newTreasuryService(new(mockLedgerStore), balances, new(mockUserResolver), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	owner := uuid.New()
	balances.On("Withdraw", ctx, owner, int64(5000)).Return(nil, repository.ErrInsufficientFunds)

	_, err := svc.Withdraw(ctx, Actor{ID: owner}, 5000, "external-acct")
	assert.Error(t, err)
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeInsufficientFunds, appErr.Code)
}

func TestTreasuryService_SetThresholds_RequiresAdmin(t *testing.T) {
	svc := newTreasuryService(new(mockLedgerStore), new(mockBalanceStore), new(mockUserResolver), new(mockTokenTransferer), new(mockNotifier))

	err := svc.SetThresholds(context.Background(), Actor{ID: uuid.New(), Role: models.RoleMember}, 10, 50)
	assert.True(t, apperror.IsForbidden(err))
}

func TestTreasuryService_SetThresholds_Bounds(t *testing.T) {
	ledger := new(mockLedgerStore)
	svc := newTreasuryService(ledger, new(mockBalanceStore), new(mockUserResolver), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	admin := Actor{ID: uuid.New(), Role: models.RoleAdmin}

	assert.Error(t, svc.SetThresholds(ctx, admin, 0, 50))
	assert.Error(t, svc.SetThresholds(ctx, admin, 101, 50))
	assert.Error(t, svc.SetThresholds(ctx, admin, 10, 0))
	assert.Error(t, svc.SetThresholds(ctx, admin, 10, 101))

	ledger.On("SetThresholds", ctx, float64(100), float64(100)).Return(nil)
	assert.NoError(t, svc.SetThresholds(ctx, admin, 100, 100))
	ledger.AssertExpectations(t)
}

func TestTreasuryService_SetRequestedBounds_Invalid(t *testing.T) {
	svc := newTreasuryService(new(mockLedgerStore), new(mockBalanceStore), new(mockUserResolver), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	admin := Actor{ID: uuid.New(), Role: models.RoleAdmin}

	assert.Error(t, svc.SetRequestedBounds(ctx, admin, 0, 100))
	assert.Error(t, svc.SetRequestedBounds(ctx, admin, 200, 100))
}

func TestTreasuryService_AddCategory_InvalidName(t *testing.T) {
	svc := newTreasuryService(new(mockLedgerStore), new(mockBalanceStore), new(mockUserResolver), new(mockTokenTransferer), new(mockNotifier))

	err := svc.AddCategory(context.Background(), Actor{ID: uuid.New(), Role: models.RoleAdmin}, "Плохая Категория")
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestTreasuryService_DeleteBalance_OwnerOrAdmin(t *testing.T) {
	balances := new(mockBalanceStore)
	svc := newTreasuryService(new(mockLedgerStore), balances, new(mockUserResolver), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	owner := uuid.New()

	err := svc.DeleteBalance(ctx, Actor{ID: uuid.New(), Role: models.RoleMember}, owner)
	assert.True(t, apperror.IsForbidden(err))

	balances.On("Delete", ctx, owner).Return(nil)
	assert.NoError(t, svc.DeleteBalance(ctx, Actor{ID: owner, Role: models.RoleMember}, owner))
	balances.AssertExpectations(t)
}
