package staking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roshkins/sputnik-dao-contract/internal/domain"
)

// BeginWithdrawal is the first phase of a withdrawal. The stake is debited
// immediately and a pending record is kept until CompleteWithdrawal resolves
// the outbound transfer. The cooldown is checked but not re-armed.
func (c *Contract) BeginWithdrawal(sender domain.AccountID, token domain.TokenID, amount domain.Amount, memo, payload string) (domain.PendingWithdrawal, error) {
	if amount == 0 {
		return domain.PendingWithdrawal{}, domain.ErrInvalidAmount
	}

	acc, ok := c.ledger.Account(sender)
	if !ok {
		return domain.PendingWithdrawal{}, fmt.Errorf("%w: %s has no stake", domain.ErrInsufficientBalance, sender)
	}
	if now := c.clock.Now(); !acc.IsIdle(now) {
		return domain.PendingWithdrawal{}, fmt.Errorf("%w: %s may act again at %s", domain.ErrCooldownActive,
			sender, acc.NextActionEligibleAt.UTC().Format(time.RFC3339))
	}
	if available := acc.Available(token); available < amount {
		return domain.PendingWithdrawal{}, fmt.Errorf("%w: %d of %s withdrawable, requested %d",
			domain.ErrInsufficientBalance, available, token, amount)
	}

	if err := c.ledger.Debit(sender, token, amount); err != nil {
		return domain.PendingWithdrawal{}, err
	}
	c.changes.ledgerEntry(sender, token)

	p := domain.PendingWithdrawal{
		ID:        c.newID(),
		Account:   sender,
		Token:     token,
		Amount:    amount,
		Memo:      memo,
		Payload:   payload,
		CreatedAt: c.clock.Now(),
	}
	c.pending[p.ID] = p
	c.changes.pending[p.ID] = struct{}{}

	return p, nil
}

// CompleteWithdrawal is the resume hook of a withdrawal. Only the staking
// account itself may call it and results must hold exactly one outcome.
// A failed transfer credits the debited amount back.
//
// Errors from the arity and outcome checks leave all state untouched,
// including the pending record.
func (c *Contract) CompleteWithdrawal(caller domain.AccountID, id uuid.UUID, results []domain.TransferOutcome) (domain.WithdrawalResolution, error) {
	if caller != c.self {
		return domain.WithdrawalResolution{}, domain.ErrUnauthorizedCallback
	}
	p, ok := c.pending[id]
	if !ok {
		return domain.WithdrawalResolution{}, fmt.Errorf("%w: %s", domain.ErrWithdrawalNotFound, id)
	}
	if len(results) != 1 {
		return domain.WithdrawalResolution{}, fmt.Errorf("%w: got %d", domain.ErrCallbackArityViolation, len(results))
	}
	outcome := results[0]
	if !outcome.Valid() {
		return domain.WithdrawalResolution{}, fmt.Errorf("%w: %q", domain.ErrInvalidOutcome, outcome)
	}

	res := domain.WithdrawalResolution{Withdrawal: p, Outcome: outcome}
	if outcome == domain.TransferFailed {
		if err := c.ledger.CreditRollback(p.Account, p.Token, p.Amount); err != nil {
			return domain.WithdrawalResolution{}, fmt.Errorf("failed to restore withdrawal %s: %w", id, err)
		}
		c.changes.ledgerEntry(p.Account, p.Token)
		res.Compensated = true
	}

	delete(c.pending, id)
	c.changes.pending[id] = struct{}{}

	return res, nil
}
