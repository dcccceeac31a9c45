package staking

import (
	"fmt"
	"time"

	"github.com/roshkins/sputnik-dao-contract/internal/domain"
)

// Delegate moves amount of the sender's available stake of token to target
// and re-arms the sender's cooldown. The returned call forwards
// amount * weight(token) to governance.
func (c *Contract) Delegate(sender, target domain.AccountID, token domain.TokenID, amount domain.Amount) (domain.GovernanceCall, error) {
	acc, err := c.idleAccount(sender, target, amount)
	if err != nil {
		return domain.GovernanceCall{}, err
	}

	if available := acc.Available(token); available < amount {
		return domain.GovernanceCall{}, fmt.Errorf("%w: %d of %s available to delegate, requested %d",
			domain.ErrInsufficientBalance, available, token, amount)
	}

	weighted, err := domain.CheckedMul(amount, c.registry.WeightOf(token))
	if err != nil {
		return domain.GovernanceCall{}, fmt.Errorf("weighted delegation of %s: %w", token, err)
	}
	key := domain.DelegationKey{Token: token, Target: target}
	next, err := domain.CheckedAdd(acc.Delegated[key], amount)
	if err != nil {
		return domain.GovernanceCall{}, err
	}

	acc.Delegated[key] = next
	c.rearm(acc)

	return domain.GovernanceCall{Kind: domain.GovernanceDelegate, Account: target, Amount: weighted}, nil
}

// Undelegate reduces the sender's delegation of token to target and re-arms
// the cooldown. Under UndelegateFloor an oversized amount clears the entry,
// under UndelegateStrict it is rejected. The returned call forwards the
// amount actually removed, so it carries zero when nothing was delegated.
func (c *Contract) Undelegate(sender, target domain.AccountID, token domain.TokenID, amount domain.Amount) (domain.GovernanceCall, error) {
	acc, err := c.idleAccount(sender, target, amount)
	if err != nil {
		return domain.GovernanceCall{}, err
	}

	key := domain.DelegationKey{Token: token, Target: target}
	current := acc.Delegated[key]
	if amount > current && c.policy == UndelegateStrict {
		return domain.GovernanceCall{}, fmt.Errorf("%w: %d of %s delegated to %s, requested %d",
			domain.ErrInsufficientDelegation, current, token, target, amount)
	}

	removed := amount
	if removed > current {
		removed = current
	}
	weighted, err := domain.CheckedMul(removed, c.registry.WeightOf(token))
	if err != nil {
		return domain.GovernanceCall{}, fmt.Errorf("weighted undelegation of %s: %w", token, err)
	}

	if rest := current - removed; rest > 0 {
		acc.Delegated[key] = rest
	} else {
		delete(acc.Delegated, key)
	}
	c.rearm(acc)

	return domain.GovernanceCall{Kind: domain.GovernanceUndelegate, Account: target, Amount: weighted}, nil
}

// idleAccount validates the common delegate and undelegate arguments and
// returns the sender's account if it is out of cooldown.
func (c *Contract) idleAccount(sender, target domain.AccountID, amount domain.Amount) (*domain.Account, error) {
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	if target == "" {
		return nil, fmt.Errorf("%w: target must not be empty", domain.ErrInvalidAccount)
	}

	acc, ok := c.ledger.Account(sender)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, sender)
	}
	if now := c.clock.Now(); !acc.IsIdle(now) {
		return nil, fmt.Errorf("%w: %s may act again at %s", domain.ErrCooldownActive,
			sender, acc.NextActionEligibleAt.UTC().Format(time.RFC3339))
	}
	return acc, nil
}

func (c *Contract) rearm(acc *domain.Account) {
	acc.NextActionEligibleAt = c.clock.Now().Add(c.cooldown)
	c.changes.accounts[acc.ID] = struct{}{}
}
