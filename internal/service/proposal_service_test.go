package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/grantflow/grantflow-backend/internal/ballot"
	"github.com/grantflow/grantflow-backend/internal/logger"
	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	m.Run()
}

type mockProposalStore struct {
	mock.Mock
}

func (m *mockProposalStore) GetByID(ctx context.Context, id int64) (*models.Proposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalStore) GetBody(ctx context.Context, id int64) (*models.ProposalBody, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProposalBody), args.Error(1)
}

func (m *mockProposalStore) ListByStatusCategory(ctx context.Context, status, category string, limit, offset int) ([]models.Proposal, error) {
	args := m.Called(ctx, status, category, limit, offset)
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *mockProposalStore) ListByProposer(ctx context.Context, proposer uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	args := m.Called(ctx, proposer, limit, offset)
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *mockProposalStore) ListByReviewer(ctx context.Context, reviewer uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	args := m.Called(ctx, reviewer, limit, offset)
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *mockProposalStore) ListRecentlyUpdated(ctx context.Context, limit, offset int) ([]models.Proposal, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *mockProposalStore) CreateDraft(ctx context.Context, proposer uuid.UUID, in models.ProposalDraftInput) (*models.Proposal, error) {
	args := m.Called(ctx, proposer, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalStore) UpdateDraft(ctx context.Context, prop *models.Proposal, content *string) (*models.Proposal, error) {
	args := m.Called(ctx, prop, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalStore) Submit(ctx context.Context, id int64) (*models.Proposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalStore) Review(ctx context.Context, id int64, approve bool, memo string) (*models.Proposal, error) {
	args := m.Called(ctx, id, approve, memo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalStore) SetReviewer(ctx context.Context, id int64, reviewer uuid.UUID) (*models.Proposal, error) {
	args := m.Called(ctx, id, reviewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalStore) BeginVoting(ctx context.Context, id int64, ballotHandle string, voteEndTime time.Time) (*models.Proposal, error) {
	args := m.Called(ctx, id, ballotHandle, voteEndTime)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalStore) SkipVoting(ctx context.Context, id int64, memo string) (*models.Proposal, error) {
	args := m.Called(ctx, id, memo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalStore) Cancel(ctx context.Context, id int64, memo string) (*models.Proposal, error) {
	args := m.Called(ctx, id, memo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalStore) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockLedgerReader struct {
	mock.Mock
}

func (m *mockLedgerReader) Get(ctx context.Context) (*models.Ledger, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ledger), args.Error(1)
}

type mockProfileChecker struct {
	mock.Mock
}

func (m *mockProfileChecker) Exists(ctx context.Context, owner uuid.UUID) (bool, error) {
	args := m.Called(ctx, owner)
	return args.Bool(0), args.Error(1)
}

type mockUserChecker struct {
	mock.Mock
}

func (m *mockUserChecker) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockBallotClient struct {
	mock.Mock
}

func (m *mockBallotClient) CreateBallot(ctx context.Context, in ballot.CreateBallotInput) error {
	args := m.Called(ctx, in)
	return args.Error(0)
}

func (m *mockBallotClient) UpdateDetails(ctx context.Context, handle, title, description string) error {
	args := m.Called(ctx, handle, title, description)
	return args.Error(0)
}

func (m *mockBallotClient) OpenVoting(ctx context.Context, handle string, endTime time.Time) error {
	args := m.Called(ctx, handle, endTime)
	return args.Error(0)
}

func (m *mockBallotClient) CloseVoting(ctx context.Context, handle string, broadcast bool) error {
	args := m.Called(ctx, handle, broadcast)
	return args.Error(0)
}

func (m *mockBallotClient) CancelBallot(ctx context.Context, handle, memo string) error {
	args := m.Called(ctx, handle, memo)
	return args.Error(0)
}

func (m *mockBallotClient) GetTreasury(ctx context.Context) (*ballot.Treasury, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ballot.Treasury), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyUser(userID uuid.UUID, event string, data any) error {
	args := m.Called(userID, event, data)
	return args.Error(0)
}

func (m *mockNotifier) NotifyAll(event string, data any) error {
	args := m.Called(event, data)
	return args.Error(0)
}

func testLedger() *models.Ledger {
	return &models.Ledger{
		AvailableFunds:  1_000_000 * models.AssetPrecision,
		VoteDuration:    1209600,
		QuorumThreshold: 10,
		YesThreshold:    50,
		MinRequested:    1000 * models.AssetPrecision,
		MaxRequested:    500000 * models.AssetPrecision,
		Categories:      []string{"infrastructure", "tooling"},
		CatDeprecated:   []string{"legacy"},
	}
}

func validDraftInput() models.ProposalDraftInput {
	return models.ProposalDraftInput{
		Title:         "Индексатор событий",
		Description:   "Сервис индексирования событий сети",
		Content:       "Полное описание",
		EstimatedTime: 90,
		Category:      "infrastructure",
	}
}

func newProposalService(store *mockProposalStore, ledger *mockLedgerReader, profiles *mockProfileChecker, users *mockUserChecker, ballots *mockBallotClient, tokens *mockTokenTransferer, notifier *mockNotifier) *ProposalService {
	return NewProposalService(store, ledger, profiles, users, ballots, tokens, "ballot-service", notifier)
}

func TestProposalService_CreateDraft_Success(t *testing.T) {
	store := new(mockProposalStore)
	ledger := new(mockLedgerReader)
	profiles := new(mockProfileChecker)
	svc := newProposalService(store, ledger, profiles, new(mockUserChecker), new(mockBallotClient), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	actor := Actor{ID: uuid.New(), Role: models.RoleMember}
	in := validDraftInput()

	profiles.On("Exists", ctx, actor.ID).Return(true, nil)
	ledger.On("Get", ctx).Return(testLedger(), nil)
	expected := &models.Proposal{ID: 1, Proposer: actor.ID, Status: models.ProposalStatusDrafting}
	store.On("CreateDraft", ctx, actor.ID, in).Return(expected, nil)

	prop, err := svc.CreateDraft(ctx, actor, in)
	assert.NoError(t, err)
	assert.Equal(t, expected, prop)
	store.AssertExpectations(t)
}

func TestProposalService_CreateDraft_NoProfile(t *testing.T) {
	store := new(mockProposalStore)
	ledger := new(mockLedgerReader)
	profiles := new(mockProfileChecker)
	svc := newProposalService(store, ledger, profiles, new(mockUserChecker), new(mockBallotClient), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	actor := Actor{ID: uuid.New(), Role: models.RoleMember}

	profiles.On("Exists", ctx, actor.ID).Return(false, nil)

	_, err := svc.CreateDraft(ctx, actor, validDraftInput())
	assert.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
	store.AssertNotCalled(t, "CreateDraft", mock.Anything, mock.Anything, mock.Anything)
}

func TestProposalService_CreateDraft_DeprecatedCategory(t *testing.T) {
	store := new(mockProposalStore)
	ledger := new(mockLedgerReader)
	profiles := new(mockProfileChecker)
	svc := newProposalService(store, ledger, profiles, new(mockUserChecker), new(mockBallotClient), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	actor := Actor{ID: uuid.New(), Role: models.RoleMember}

	in := validDraftInput()
	in.Category = "legacy"

	profiles.On("Exists", ctx, actor.ID).Return(true, nil)
	ledger.On("Get", ctx).Return(testLedger(), nil)

	_, err := svc.CreateDraft(ctx, actor, in)
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestProposalService_CreateDraft_TitleTooLong(t *testing.T) {
	svc := newProposalService(new(mockProposalStore), new(mockLedgerReader), new(mockProfileChecker), new(mockUserChecker), new(mockBallotClient), new(mockTokenTransferer), new(mockNotifier))

	in := validDraftInput()
	for len(in.Title) <= models.MaxTitleLen {
		in.Title += "x"
	}

	_, err := svc.CreateDraft(context.Background(), Actor{ID: uuid.New()}, in)
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestProposalService_Submit_NotProposer(t *testing.T) {
	store := new(mockProposalStore)
	svc := newProposalService(store, new(mockLedgerReader), new(mockProfileChecker), new(mockUserChecker), new(mockBallotClient), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	store.On("GetByID", ctx, int64(7)).Return(&models.Proposal{ID: 7, Proposer: uuid.New()}, nil)

	_, err := svc.Submit(ctx, Actor{ID: uuid.New()}, 7)
	assert.True(t, apperror.IsForbidden(err))
	store.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestProposalService_EditDraft_ProposerOnly(t *testing.T) {
	store := new(mockProposalStore)
	svc := newProposalService(store, new(mockLedgerReader), new(mockProfileChecker), new(mockUserChecker), new(mockBallotClient), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	store.On("GetByID", ctx, int64(4)).Return(&models.Proposal{ID: 4, Proposer: uuid.New(), Status: models.ProposalStatusDrafting}, nil)

	title := "Новый заголовок"
	_, err := svc.EditDraft(ctx, Actor{ID: uuid.New(), Role: models.RoleAdmin}, 4, models.ProposalEditInput{Title: &title})
	assert.True(t, apperror.IsForbidden(err))
	store.AssertNotCalled(t, "UpdateDraft", mock.Anything, mock.Anything, mock.Anything)
}

func TestProposalService_Review_RequiresAdmin(t *testing.T) {
	store := new(mockProposalStore)
	svc := newProposalService(store, new(mockLedgerReader), new(mockProfileChecker), new(mockUserChecker), new(mockBallotClient), new(mockTokenTransferer), new(mockNotifier))

	_, err := svc.Review(context.Background(), Actor{ID: uuid.New(), Role: models.RoleMember}, 1, true, "")
	assert.True(t, apperror.IsForbidden(err))
}

func TestProposalService_Review_Approve(t *testing.T) {
	store := new(mockProposalStore)
	notifier := new(mockNotifier)
	svc := newProposalService(store, new(mockLedgerReader), new(mockProfileChecker), new(mockUserChecker), new(mockBallotClient), new(mockTokenTransferer), notifier)

	ctx := context.Background()
	approved := &models.Proposal{ID: 3, Status: models.ProposalStatusApproved}
	store.On("Review", ctx, int64(3), true, "выглядит сильно").Return(approved, nil)
	notifier.On("NotifyAll", mock.Anything, mock.Anything).Return(nil)

	prop, err := svc.Review(ctx, Actor{ID: uuid.New(), Role: models.RoleAdmin}, 3, true, "выглядит сильно")
	assert.NoError(t, err)
	assert.Equal(t, models.ProposalStatusApproved, prop.Status)
	notifier.AssertCalled(t, "NotifyAll", mock.Anything, mock.Anything)
}

func TestProposalService_SetReviewer_UnknownUser(t *testing.T) {
	store := new(mockProposalStore)
	users := new(mockUserChecker)
	svc := newProposalService(store, new(mockLedgerReader), new(mockProfileChecker), users, new(mockBallotClient), new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	reviewer := uuid.New()
	users.On("Exists", ctx, reviewer).Return(false, nil)

	_, err := svc.SetReviewer(ctx, Actor{ID: uuid.New(), Role: models.RoleAdmin}, 1, reviewer)
	assert.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestProposalService_BeginVoting_CreatesBallot(t *testing.T) {
	store := new(mockProposalStore)
	ledger := new(mockLedgerReader)
	ballots := new(mockBallotClient)
	tokens := new(mockTokenTransferer)
	notifier := new(mockNotifier)
	svc := newProposalService(store, ledger, new(mockProfileChecker), new(mockUserChecker), ballots, tokens, notifier)

	ctx := context.Background()
	proposer := uuid.New()
	store.On("GetByID", ctx, int64(5)).Return(&models.Proposal{ID: 5, Proposer: proposer, Status: models.ProposalStatusApproved}, nil)
	ledger.On("Get", ctx).Return(testLedger(), nil)

	voting := &models.Proposal{ID: 5, Proposer: proposer, Status: models.ProposalStatusVoting, Title: "Индексатор"}
	store.On("BeginVoting", ctx, int64(5), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(voting, nil)
	store.On("GetBody", ctx, int64(5)).Return(&models.ProposalBody{ProposalID: 5, Content: "Полное описание"}, nil)
	tokens.On("Transfer", ctx, "ballot-service", models.BallotFee, mock.AnythingOfType("string")).Return(nil)
	ballots.On("CreateBallot", ctx, mock.AnythingOfType("ballot.CreateBallotInput")).Return(nil)
	ballots.On("UpdateDetails", ctx, mock.AnythingOfType("string"), "Индексатор", "Полное описание").Return(nil)
	ballots.On("OpenVoting", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)
	notifier.On("NotifyAll", mock.Anything, mock.Anything).Return(nil)

	prop, err := svc.BeginVoting(ctx, Actor{ID: proposer}, 5)
	assert.NoError(t, err)
	assert.Equal(t, models.ProposalStatusVoting, prop.Status)
	ballots.AssertExpectations(t)
	tokens.AssertExpectations(t)
}

func TestProposalService_BeginVoting_ProposerOnly(t *testing.T) {
	store := new(mockProposalStore)
	tokens := new(mockTokenTransferer)
	svc := newProposalService(store, new(mockLedgerReader), new(mockProfileChecker), new(mockUserChecker), new(mockBallotClient), tokens, new(mockNotifier))

	ctx := context.Background()
	store.On("GetByID", ctx, int64(5)).Return(&models.Proposal{ID: 5, Proposer: uuid.New(), Status: models.ProposalStatusApproved}, nil)

	// Сбор платит автор, поэтому даже админ не может открыть голосование
	// за него.
	_, err := svc.BeginVoting(ctx, Actor{ID: uuid.New(), Role: models.RoleAdmin}, 5)
	assert.True(t, apperror.IsForbidden(err))
	store.AssertNotCalled(t, "BeginVoting", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	tokens.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProposalService_BeginVoting_FeeTransferFailureKeepsVoting(t *testing.T) {
	store := new(mockProposalStore)
	ledger := new(mockLedgerReader)
	ballots := new(mockBallotClient)
	tokens := new(mockTokenTransferer)
	notifier := new(mockNotifier)
	svc := newProposalService(store, ledger, new(mockProfileChecker), new(mockUserChecker), ballots, tokens, notifier)

	ctx := context.Background()
	proposer := uuid.New()
	store.On("GetByID", ctx, int64(6)).Return(&models.Proposal{ID: 6, Proposer: proposer, Status: models.ProposalStatusApproved}, nil)
	ledger.On("Get", ctx).Return(testLedger(), nil)

	voting := &models.Proposal{ID: 6, Proposer: proposer, Status: models.ProposalStatusVoting}
	store.On("BeginVoting", ctx, int64(6), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(voting, nil)
	store.On("GetBody", ctx, int64(6)).Return(&models.ProposalBody{ProposalID: 6}, nil)
	tokens.On("Transfer", ctx, "ballot-service", models.BallotFee, mock.AnythingOfType("string")).Return(assert.AnError)
	ballots.On("CreateBallot", ctx, mock.AnythingOfType("ballot.CreateBallotInput")).Return(nil)
	ballots.On("UpdateDetails", ctx, mock.AnythingOfType("string"), mock.Anything, mock.Anything).Return(nil)
	ballots.On("OpenVoting", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)
	notifier.On("NotifyAll", mock.Anything, mock.Anything).Return(nil)

	prop, err := svc.BeginVoting(ctx, Actor{ID: proposer}, 6)
	assert.NoError(t, err)
	assert.Equal(t, models.ProposalStatusVoting, prop.Status)
	tokens.AssertExpectations(t)
}

func TestProposalService_EndVoting_ClosesBallot(t *testing.T) {
	store := new(mockProposalStore)
	ballots := new(mockBallotClient)
	svc := newProposalService(store, new(mockLedgerReader), new(mockProfileChecker), new(mockUserChecker), ballots, new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	proposer := uuid.New()
	handle := "gf-5-abc"
	// Срок ещё не истёк: решение о допустимости закрытия остаётся за
	// сервисом голосований, локальной проверки дедлайна нет.
	future := time.Now().Add(time.Hour)
	store.On("GetByID", ctx, int64(5)).Return(&models.Proposal{
		ID:           5,
		Proposer:     proposer,
		Status:       models.ProposalStatusVoting,
		BallotHandle: &handle,
		VoteEndTime:  &future,
	}, nil)
	ballots.On("CloseVoting", ctx, handle, true).Return(nil)

	_, err := svc.EndVoting(ctx, Actor{ID: proposer}, 5)
	assert.NoError(t, err)
	ballots.AssertExpectations(t)
}

func TestProposalService_EndVoting_NotVoting(t *testing.T) {
	store := new(mockProposalStore)
	ballots := new(mockBallotClient)
	svc := newProposalService(store, new(mockLedgerReader), new(mockProfileChecker), new(mockUserChecker), ballots, new(mockTokenTransferer), new(mockNotifier))

	ctx := context.Background()
	store.On("GetByID", ctx, int64(5)).Return(&models.Proposal{
		ID:       5,
		Proposer: uuid.New(),
		Status:   models.ProposalStatusApproved,
	}, nil)

	_, err := svc.EndVoting(ctx, Actor{ID: uuid.New(), Role: models.RoleAdmin}, 5)
	assert.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
	ballots.AssertNotCalled(t, "CloseVoting", mock.Anything, mock.Anything, mock.Anything)
}

func TestProposalService_Cancel_FromVoting_CancelsBallot(t *testing.T) {
	store := new(mockProposalStore)
	ballots := new(mockBallotClient)
	notifier := new(mockNotifier)
	svc := newProposalService(store, new(mockLedgerReader), new(mockProfileChecker), new(mockUserChecker), ballots, new(mockTokenTransferer), notifier)

	ctx := context.Background()
	proposer := uuid.New()
	handle := "gf-9-def"
	store.On("GetByID", ctx, int64(9)).Return(&models.Proposal{
		ID:           9,
		Proposer:     proposer,
		Status:       models.ProposalStatusVoting,
		BallotHandle: &handle,
	}, nil)
	cancelled := &models.Proposal{ID: 9, Proposer: proposer, Status: models.ProposalStatusCancelled, BallotHandle: &handle}
	store.On("Cancel", ctx, int64(9), "передумал").Return(cancelled, nil)
	ballots.On("CancelBallot", ctx, handle, "передумал").Return(nil)
	notifier.On("NotifyAll", mock.Anything, mock.Anything).Return(nil)

	prop, err := svc.Cancel(ctx, Actor{ID: proposer}, 9, "передумал")
	assert.NoError(t, err)
	assert.Equal(t, models.ProposalStatusCancelled, prop.Status)
	ballots.AssertExpectations(t)
}

func TestProposalService_List_UnknownStatus(t *testing.T) {
	svc := newProposalService(new(mockProposalStore), new(mockLedgerReader), new(mockProfileChecker), new(mockUserChecker), new(mockBallotClient), new(mockTokenTransferer), new(mockNotifier))

	_, err := svc.List(context.Background(), "nonsense", "", 20, 0)
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}
