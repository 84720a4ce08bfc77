package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/grantflow/grantflow-backend/internal/ballot"
	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
	"github.com/grantflow/grantflow-backend/internal/repository"
)

type mockReconcileStore struct {
	mock.Mock
}

func (m *mockReconcileStore) GetByBallotHandle(ctx context.Context, handle string) (*models.Proposal, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockReconcileStore) ApplyVotePass(ctx context.Context, id int64, yes, no int64) (*models.Proposal, error) {
	args := m.Called(ctx, id, yes, no)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockReconcileStore) ApplyVoteFail(ctx context.Context, id int64, yes, no int64) (*models.Proposal, error) {
	args := m.Called(ctx, id, yes, no)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func TestReconcileService_Apply_Pass(t *testing.T) {
	store := new(mockReconcileStore)
	ledger := new(mockLedgerReader)
	ballots := new(mockBallotClient)
	notifier := new(mockNotifier)
	svc := NewReconcileService(store, ledger, ballots, notifier)

	ctx := context.Background()
	store.On("GetByBallotHandle", ctx, "gf-5-abc").Return(&models.Proposal{ID: 5, Status: models.ProposalStatusVoting}, nil)
	ledger.On("Get", ctx).Return(testLedger(), nil)
	ballots.On("GetTreasury", ctx).Return(&ballot.Treasury{Symbol: "GOV", Supply: 50000}, nil)

	passed := &models.Proposal{ID: 5, Status: models.ProposalStatusInProgress}
	store.On("ApplyVotePass", ctx, int64(5), int64(6000), int64(1000)).Return(passed, nil)
	notifier.On("NotifyAll", mock.Anything, mock.Anything).Return(nil)

	prop, err := svc.Apply(ctx, VoteBroadcast{Handle: "gf-5-abc", Yes: 6000, No: 1000})
	assert.NoError(t, err)
	assert.Equal(t, models.ProposalStatusInProgress, prop.Status)
	store.AssertExpectations(t)
}

func TestReconcileService_Apply_Fail(t *testing.T) {
	store := new(mockReconcileStore)
	ledger := new(mockLedgerReader)
	ballots := new(mockBallotClient)
	notifier := new(mockNotifier)
	svc := NewReconcileService(store, ledger, ballots, notifier)

	ctx := context.Background()
	store.On("GetByBallotHandle", ctx, "gf-6-def").Return(&models.Proposal{ID: 6, Status: models.ProposalStatusVoting}, nil)
	ledger.On("Get", ctx).Return(testLedger(), nil)
	ballots.On("GetTreasury", ctx).Return(&ballot.Treasury{Symbol: "GOV", Supply: 50000}, nil)

	failed := &models.Proposal{ID: 6, Status: models.ProposalStatusFailed}
	store.On("ApplyVoteFail", ctx, int64(6), int64(2000), int64(4000)).Return(failed, nil)
	notifier.On("NotifyAll", mock.Anything, mock.Anything).Return(nil)

	prop, err := svc.Apply(ctx, VoteBroadcast{Handle: "gf-6-def", Yes: 2000, No: 4000})
	assert.NoError(t, err)
	assert.Equal(t, models.ProposalStatusFailed, prop.Status)
	store.AssertNotCalled(t, "ApplyVotePass", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileService_Apply_UnknownHandle(t *testing.T) {
	store := new(mockReconcileStore)
	svc := NewReconcileService(store, new(mockLedgerReader), new(mockBallotClient), new(mockNotifier))

	ctx := context.Background()
	store.On("GetByBallotHandle", ctx, "gf-0-void").Return(nil, repository.ErrProposalNotFound)

	prop, err := svc.Apply(ctx, VoteBroadcast{Handle: "gf-0-void", Yes: 10, No: 5})
	assert.NoError(t, err)
	assert.Nil(t, prop)
}

func TestReconcileService_Apply_AlreadyResolved(t *testing.T) {
	store := new(mockReconcileStore)
	ballots := new(mockBallotClient)
	svc := NewReconcileService(store, new(mockLedgerReader), ballots, new(mockNotifier))

	ctx := context.Background()
	resolved := &models.Proposal{ID: 8, Status: models.ProposalStatusInProgress}
	store.On("GetByBallotHandle", ctx, "gf-8-ghi").Return(resolved, nil)

	prop, err := svc.Apply(ctx, VoteBroadcast{Handle: "gf-8-ghi", Yes: 100, No: 1})
	assert.NoError(t, err)
	assert.Equal(t, resolved, prop)
	ballots.AssertNotCalled(t, "GetTreasury", mock.Anything)
}

func TestReconcileService_Apply_NegativeTally(t *testing.T) {
	svc := NewReconcileService(new(mockReconcileStore), new(mockLedgerReader), new(mockBallotClient), new(mockNotifier))

	_, err := svc.Apply(context.Background(), VoteBroadcast{Handle: "gf-1-x", Yes: -1, No: 0})
	assert.Error(t, err)
}

func TestReconcileService_Apply_PassedButInsolvent(t *testing.T) {
	store := new(mockReconcileStore)
	ledger := new(mockLedgerReader)
	ballots := new(mockBallotClient)
	notifier := new(mockNotifier)
	svc := NewReconcileService(store, ledger, ballots, notifier)

	ctx := context.Background()
	proposer := uuid.New()
	store.On("GetByBallotHandle", ctx, "gf-9-jkl").Return(&models.Proposal{
		ID:                  9,
		Proposer:            proposer,
		Status:              models.ProposalStatusVoting,
		TotalRequestedFunds: 2_000_000 * models.AssetPrecision,
	}, nil)
	ledger.On("Get", ctx).Return(testLedger(), nil)
	ballots.On("GetTreasury", ctx).Return(&ballot.Treasury{Symbol: "GOV", Supply: 50000}, nil)

	store.On("ApplyVotePass", ctx, int64(9), int64(6000), int64(1000)).Return(nil, repository.ErrTreasuryInsufficient)

	prop, err := svc.Apply(ctx, VoteBroadcast{Handle: "gf-9-jkl", Yes: 6000, No: 1000})
	assert.Error(t, err)
	assert.True(t, apperror.IsInsufficientFunds(err))
	assert.Nil(t, prop)
	// Предложение остаётся в voting: итог применят повторно после
	// пополнения казны.
	store.AssertNotCalled(t, "ApplyVoteFail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "NotifyAll", mock.Anything, mock.Anything)
}

func TestVotePassed(t *testing.T) {
	tests := []struct {
		name            string
		yes, no, supply int64
		quorum, approve float64
		want            bool
	}{
		{"кворум и порог достигнуты", 6000, 1000, 50000, 10, 50, true},
		{"явка ровно на кворуме", 2500, 2500, 50000, 10, 50, true},
		{"явка чуть ниже кворума", 2500, 2499, 50000, 10, 50, false},
		{"дробный кворум усекается", 2500, 2500, 50005, 10, 50, true},
		{"дробный порог одобрения усекается", 2, 1, 10, 10, 66.7, true},
		{"«за» ровно на пороге", 3500, 3500, 50000, 10, 50, true},
		{"«за» ниже порога", 3499, 3501, 50000, 10, 50, false},
		{"никто не голосовал", 0, 0, 50000, 10, 50, false},
		{"нулевая эмиссия", 1, 0, 0, 10, 50, true},
		{"высокий порог одобрения", 89, 11, 100, 10, 90, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VotePassed(tt.yes, tt.no, tt.supply, tt.quorum, tt.approve)
			assert.Equal(t, tt.want, got)
		})
	}
}
