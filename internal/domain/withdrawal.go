package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferOutcome is the single result the custody service delivers for a transfer.
type TransferOutcome string

const (
	TransferSuccessful TransferOutcome = "successful"
	TransferFailed     TransferOutcome = "failed"
)

func (o TransferOutcome) Valid() bool {
	return o == TransferSuccessful || o == TransferFailed
}

// PendingWithdrawal is a withdrawal whose ledger debit is applied but whose
// custody transfer has not reported back yet.
type PendingWithdrawal struct {
	ID        uuid.UUID `json:"withdrawal_id"`
	Account   AccountID `json:"account_id"`
	Token     TokenID   `json:"token_id"`
	Amount    Amount    `json:"amount,string"`
	Memo      string    `json:"memo,omitempty"`
	Payload   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// WithdrawalResolution reports how a completed withdrawal was settled.
type WithdrawalResolution struct {
	Withdrawal  PendingWithdrawal
	Outcome     TransferOutcome
	Compensated bool
}
