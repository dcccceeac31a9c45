package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the full persisted staking state.
type Snapshot struct {
	Initialized        bool
	Owner              AccountID
	Self               AccountID
	Cooldown           time.Duration
	Weights            map[TokenID]Amount
	Totals             map[TokenID]Amount
	Accounts           map[AccountID]*Account
	PendingWithdrawals map[uuid.UUID]PendingWithdrawal
}

// Changeset is everything one invocation touched. It is applied atomically.
type Changeset struct {
	Config          *Snapshot
	Weights         map[TokenID]Amount
	Totals          map[TokenID]Amount
	Accounts        []*Account
	PendingUpserts  []PendingWithdrawal
	PendingRemovals []uuid.UUID
}

func (c Changeset) Empty() bool {
	return c.Config == nil &&
		len(c.Weights) == 0 &&
		len(c.Totals) == 0 &&
		len(c.Accounts) == 0 &&
		len(c.PendingUpserts) == 0 &&
		len(c.PendingRemovals) == 0
}

type StateRepository interface {
	Load(ctx context.Context) (*Snapshot, error)
	Apply(ctx context.Context, changes Changeset) error
	Ping(ctx context.Context) error
}

type TransferRequest struct {
	Receiver   AccountID
	Token      TokenID
	ApprovalID *uint64
	Memo       string
}

type CustodyService interface {
	Transfer(ctx context.Context, req TransferRequest) error
	TransferAndNotify(ctx context.Context, req TransferRequest, payload string) (bool, error)
}

type GovernanceService interface {
	RegisterDelegation(ctx context.Context, account AccountID) error
	Delegate(ctx context.Context, account AccountID, amount Amount) error
	Undelegate(ctx context.Context, account AccountID, amount Amount) error
}

// IncomingTransfer is the custody service's notification that a token was
// transferred to the staking service.
type IncomingTransfer struct {
	Sender        AccountID
	PreviousOwner AccountID
	Token         TokenID
	Message       string
}

type StakingService interface {
	OnTransfer(ctx context.Context, n IncomingTransfer) error
	Register(ctx context.Context, caller AccountID, token TokenID, weight Amount) error
	Delegate(ctx context.Context, sender, target AccountID, token TokenID, amount Amount) error
	Undelegate(ctx context.Context, sender, target AccountID, token TokenID, amount Amount) error
	Withdraw(ctx context.Context, sender AccountID, token TokenID, amount Amount, memo, payload string) (PendingWithdrawal, error)

	TotalSupply() Amount
	TotalVotingPower() Amount
	BalanceOf(account AccountID) Amount
	GetAccount(account AccountID) *Account
	WeightOf(token TokenID) (Amount, bool)
	Weights() map[TokenID]Amount
	GetWithdrawal(id uuid.UUID) (PendingWithdrawal, bool)

	Ready(ctx context.Context) error
}
