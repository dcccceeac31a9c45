package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// CreateTestAccount creates an account holding the given stake
func CreateTestAccount(t *testing.T, id domain.AccountID, staked map[domain.TokenID]domain.Amount) *domain.Account {
	t.Helper()
	acc := domain.NewAccount(id)
	for token, amount := range staked {
		acc.StakedByToken[token] = amount
	}
	return acc
}

// CreateTestWithdrawal creates a pending withdrawal with default values
func CreateTestWithdrawal(t *testing.T, account domain.AccountID, token domain.TokenID) domain.PendingWithdrawal {
	t.Helper()
	return domain.PendingWithdrawal{
		ID:        uuid.New(),
		Account:   account,
		Token:     token,
		Amount:    1,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// AssertAccountsEqual compares two accounts ignoring monotonic clock readings
func AssertAccountsEqual(t *testing.T, expected, actual *domain.Account) {
	t.Helper()
	require.NotNil(t, actual)
	require.Equal(t, expected.ID, actual.ID)
	require.Equal(t, expected.StakedByToken, actual.StakedByToken)
	require.Equal(t, expected.Delegated, actual.Delegated)
	require.True(t, expected.NextActionEligibleAt.Equal(actual.NextActionEligibleAt),
		"eligible at %s, got %s", expected.NextActionEligibleAt, actual.NextActionEligibleAt)
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition not met within timeout of %v", timeout)
}

// TestContext creates a test context with timeout
func TestContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// MemoryRepository keeps state in memory and applies changesets the way the
// postgres repository does
type MemoryRepository struct {
	mu      sync.Mutex
	snap    *domain.Snapshot
	applied int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{snap: emptySnapshot()}
}

func emptySnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Weights:            make(map[domain.TokenID]domain.Amount),
		Totals:             make(map[domain.TokenID]domain.Amount),
		Accounts:           make(map[domain.AccountID]*domain.Account),
		PendingWithdrawals: make(map[uuid.UUID]domain.PendingWithdrawal),
	}
}

func (r *MemoryRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := emptySnapshot()
	out.Initialized = r.snap.Initialized
	out.Owner = r.snap.Owner
	out.Self = r.snap.Self
	out.Cooldown = r.snap.Cooldown
	for k, v := range r.snap.Weights {
		out.Weights[k] = v
	}
	for k, v := range r.snap.Totals {
		out.Totals[k] = v
	}
	for k, v := range r.snap.Accounts {
		out.Accounts[k] = v.Clone()
	}
	for k, v := range r.snap.PendingWithdrawals {
		out.PendingWithdrawals[k] = v
	}
	return out, nil
}

func (r *MemoryRepository) Apply(ctx context.Context, changes domain.Changeset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if changes.Config != nil {
		r.snap.Initialized = true
		r.snap.Owner = changes.Config.Owner
		r.snap.Self = changes.Config.Self
		r.snap.Cooldown = changes.Config.Cooldown
	}
	for k, v := range changes.Weights {
		r.snap.Weights[k] = v
	}
	for k, v := range changes.Totals {
		if v == 0 {
			delete(r.snap.Totals, k)
			continue
		}
		r.snap.Totals[k] = v
	}
	for _, acc := range changes.Accounts {
		r.snap.Accounts[acc.ID] = acc.Clone()
	}
	for _, p := range changes.PendingUpserts {
		r.snap.PendingWithdrawals[p.ID] = p
	}
	for _, id := range changes.PendingRemovals {
		delete(r.snap.PendingWithdrawals, id)
	}
	r.applied++
	return nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Applied reports how many changesets were written
func (r *MemoryRepository) Applied() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

// MockStateRepository is a mock implementation of StateRepository
type MockStateRepository struct {
	mock.Mock
}

func (m *MockStateRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Snapshot), args.Error(1)
}

func (m *MockStateRepository) Apply(ctx context.Context, changes domain.Changeset) error {
	args := m.Called(ctx, changes)
	return args.Error(0)
}

func (m *MockStateRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCustodyService is a mock implementation of CustodyService
type MockCustodyService struct {
	mock.Mock
}

func (m *MockCustodyService) Transfer(ctx context.Context, req domain.TransferRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockCustodyService) TransferAndNotify(ctx context.Context, req domain.TransferRequest, payload string) (bool, error) {
	args := m.Called(ctx, req, payload)
	return args.Bool(0), args.Error(1)
}

// MockGovernanceService is a mock implementation of GovernanceService
type MockGovernanceService struct {
	mock.Mock
}

func (m *MockGovernanceService) RegisterDelegation(ctx context.Context, account domain.AccountID) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockGovernanceService) Delegate(ctx context.Context, account domain.AccountID, amount domain.Amount) error {
	args := m.Called(ctx, account, amount)
	return args.Error(0)
}

func (m *MockGovernanceService) Undelegate(ctx context.Context, account domain.AccountID, amount domain.Amount) error {
	args := m.Called(ctx, account, amount)
	return args.Error(0)
}

// MockStakingService is a mock implementation of StakingService
type MockStakingService struct {
	mock.Mock
}

func (m *MockStakingService) OnTransfer(ctx context.Context, n domain.IncomingTransfer) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockStakingService) Register(ctx context.Context, caller domain.AccountID, token domain.TokenID, weight domain.Amount) error {
	args := m.Called(ctx, caller, token, weight)
	return args.Error(0)
}

func (m *MockStakingService) Delegate(ctx context.Context, sender, target domain.AccountID, token domain.TokenID, amount domain.Amount) error {
	args := m.Called(ctx, sender, target, token, amount)
	return args.Error(0)
}

func (m *MockStakingService) Undelegate(ctx context.Context, sender, target domain.AccountID, token domain.TokenID, amount domain.Amount) error {
	args := m.Called(ctx, sender, target, token, amount)
	return args.Error(0)
}

func (m *MockStakingService) Withdraw(ctx context.Context, sender domain.AccountID, token domain.TokenID, amount domain.Amount, memo, payload string) (domain.PendingWithdrawal, error) {
	args := m.Called(ctx, sender, token, amount, memo, payload)
	return args.Get(0).(domain.PendingWithdrawal), args.Error(1)
}

func (m *MockStakingService) TotalSupply() domain.Amount {
	args := m.Called()
	return args.Get(0).(domain.Amount)
}

func (m *MockStakingService) TotalVotingPower() domain.Amount {
	args := m.Called()
	return args.Get(0).(domain.Amount)
}

func (m *MockStakingService) BalanceOf(account domain.AccountID) domain.Amount {
	args := m.Called(account)
	return args.Get(0).(domain.Amount)
}

func (m *MockStakingService) GetAccount(account domain.AccountID) *domain.Account {
	args := m.Called(account)
	return args.Get(0).(*domain.Account)
}

func (m *MockStakingService) WeightOf(token domain.TokenID) (domain.Amount, bool) {
	args := m.Called(token)
	return args.Get(0).(domain.Amount), args.Bool(1)
}

func (m *MockStakingService) Weights() map[domain.TokenID]domain.Amount {
	args := m.Called()
	return args.Get(0).(map[domain.TokenID]domain.Amount)
}

func (m *MockStakingService) GetWithdrawal(id uuid.UUID) (domain.PendingWithdrawal, bool) {
	args := m.Called(id)
	return args.Get(0).(domain.PendingWithdrawal), args.Bool(1)
}

func (m *MockStakingService) Ready(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
