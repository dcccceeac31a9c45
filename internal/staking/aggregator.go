package staking

import (
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
)

// TotalSupply is the sum of all per-token totals, saturating at MaxAmount.
func (c *Contract) TotalSupply() domain.Amount {
	var sum domain.Amount
	for _, total := range c.ledger.totals {
		sum = domain.SaturatingAdd(sum, total)
	}
	return sum
}

// TotalVotingPower is the sum over tokens of total * weight, saturating at
// MaxAmount.
func (c *Contract) TotalVotingPower() domain.Amount {
	var sum domain.Amount
	for token, total := range c.ledger.totals {
		sum = domain.SaturatingAdd(sum, domain.SaturatingMul(total, c.registry.WeightOf(token)))
	}
	return sum
}

// BalanceOf is the account's staked amount summed over all tokens. Unknown
// accounts have a zero balance.
func (c *Contract) BalanceOf(id domain.AccountID) domain.Amount {
	acc, ok := c.ledger.Account(id)
	if !ok {
		return 0
	}
	return acc.TotalStaked()
}

// GetAccount returns a copy of the account record.
func (c *Contract) GetAccount(id domain.AccountID) (*domain.Account, bool) {
	acc, ok := c.ledger.Account(id)
	if !ok {
		return nil, false
	}
	return acc.Clone(), true
}

func (c *Contract) AccountCount() int {
	return c.ledger.AccountCount()
}
