package staking

import (
	"errors"
	"fmt"

	"github.com/roshkins/sputnik-dao-contract/internal/domain"
)

// Ledger holds per-account staked balances and the per-token totals. Every
// mutation moves an account balance and the token total together.
type Ledger struct {
	accounts map[domain.AccountID]*domain.Account
	totals   map[domain.TokenID]domain.Amount
}

func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[domain.AccountID]*domain.Account),
		totals:   make(map[domain.TokenID]domain.Amount),
	}
}

func (l *Ledger) Account(id domain.AccountID) (*domain.Account, bool) {
	acc, ok := l.accounts[id]
	return acc, ok
}

func (l *Ledger) Total(token domain.TokenID) domain.Amount {
	return l.totals[token]
}

func (l *Ledger) Totals() map[domain.TokenID]domain.Amount {
	out := make(map[domain.TokenID]domain.Amount, len(l.totals))
	for token, total := range l.totals {
		out[token] = total
	}
	return out
}

func (l *Ledger) AccountCount() int {
	return len(l.accounts)
}

// Deposit credits amount of token to account, creating the account if needed.
// It reports whether the account was created.
func (l *Ledger) Deposit(account domain.AccountID, token domain.TokenID, amount domain.Amount) (bool, error) {
	if account == "" {
		return false, domain.ErrInvalidAccount
	}
	if amount == 0 {
		return false, domain.ErrInvalidAmount
	}

	acc, exists := l.accounts[account]
	staked := domain.Amount(0)
	if exists {
		staked = acc.Staked(token)
	}

	newStaked, err := domain.CheckedAdd(staked, amount)
	if err != nil {
		return false, fmt.Errorf("account %s balance of %s: %w", account, token, err)
	}
	newTotal, err := domain.CheckedAdd(l.totals[token], amount)
	if err != nil {
		return false, fmt.Errorf("total of %s: %w", token, err)
	}

	if !exists {
		acc = domain.NewAccount(account)
		l.accounts[account] = acc
	}
	acc.StakedByToken[token] = newStaked
	l.totals[token] = newTotal

	return !exists, nil
}

// Debit removes amount of token from account. It fails without mutating
// anything when the staked balance is short.
func (l *Ledger) Debit(account domain.AccountID, token domain.TokenID, amount domain.Amount) error {
	if amount == 0 {
		return domain.ErrInvalidAmount
	}

	acc, ok := l.accounts[account]
	if !ok || acc.Staked(token) < amount {
		return fmt.Errorf("%w: account %s has %d of %s, requested %d",
			domain.ErrInsufficientBalance, account, l.stakedOf(account, token), token, amount)
	}
	if l.totals[token] < amount {
		return fmt.Errorf("total of %s is below an account balance: %w", token, errConservation)
	}

	if remaining := acc.Staked(token) - amount; remaining > 0 {
		acc.StakedByToken[token] = remaining
	} else {
		delete(acc.StakedByToken, token)
	}

	if remaining := l.totals[token] - amount; remaining > 0 {
		l.totals[token] = remaining
	} else {
		delete(l.totals, token)
	}

	return nil
}

// CreditRollback restores a previously debited amount. It only increments.
func (l *Ledger) CreditRollback(account domain.AccountID, token domain.TokenID, amount domain.Amount) error {
	_, err := l.Deposit(account, token, amount)
	return err
}

func (l *Ledger) stakedOf(account domain.AccountID, token domain.TokenID) domain.Amount {
	if acc, ok := l.accounts[account]; ok {
		return acc.Staked(token)
	}
	return 0
}

var errConservation = errors.New("ledger conservation violated")

// CheckConservation verifies that each token total equals the sum of account
// balances of that token.
func (l *Ledger) CheckConservation() error {
	sums := make(map[domain.TokenID]domain.Amount, len(l.totals))
	for _, acc := range l.accounts {
		for token, amount := range acc.StakedByToken {
			sum, err := domain.CheckedAdd(sums[token], amount)
			if err != nil {
				return fmt.Errorf("sum of %s: %w", token, err)
			}
			sums[token] = sum
		}
	}

	for token, sum := range sums {
		if l.totals[token] != sum {
			return fmt.Errorf("%w: total of %s is %d, accounts hold %d", errConservation, token, l.totals[token], sum)
		}
	}
	for token, total := range l.totals {
		if _, ok := sums[token]; !ok && total != 0 {
			return fmt.Errorf("%w: total of %s is %d, accounts hold 0", errConservation, token, total)
		}
	}
	return nil
}
