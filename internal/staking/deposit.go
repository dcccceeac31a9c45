package staking

import (
	"fmt"

	"github.com/roshkins/sputnik-dao-contract/internal/domain"
)

// OnTransfer handles a custody notification that a token was sent to the
// staking account. One unit of the token is credited to the sender.
//
// When the sender has no account yet, the returned slice carries a
// register_delegation call for the governance component.
func (c *Contract) OnTransfer(in domain.IncomingTransfer) ([]domain.GovernanceCall, error) {
	if !c.registry.IsRegistered(in.Token) {
		return nil, fmt.Errorf("%w: %q is not registered", domain.ErrInvalidToken, in.Token)
	}
	if in.Message != "" {
		return nil, domain.ErrInvalidMessage
	}
	if in.Sender == "" {
		return nil, fmt.Errorf("%w: sender must not be empty", domain.ErrInvalidAccount)
	}

	created, err := c.ledger.Deposit(in.Sender, in.Token, 1)
	if err != nil {
		return nil, err
	}
	c.changes.ledgerEntry(in.Sender, in.Token)

	if !created {
		return nil, nil
	}
	return []domain.GovernanceCall{{Kind: domain.GovernanceRegister, Account: in.Sender}}, nil
}

// Register sets the vote weight of a token. Owner only.
func (c *Contract) Register(caller domain.AccountID, token domain.TokenID, weight domain.Amount) error {
	if err := c.registry.Register(caller, token, weight); err != nil {
		return err
	}
	c.changes.weights[token] = struct{}{}
	return nil
}

func (c *Contract) WeightOf(token domain.TokenID) domain.Amount {
	return c.registry.WeightOf(token)
}

func (c *Contract) IsRegistered(token domain.TokenID) bool {
	return c.registry.IsRegistered(token)
}

func (c *Contract) Weights() map[domain.TokenID]domain.Amount {
	return c.registry.All()
}
