package staking

import (
	"fmt"
	"sort"

	"github.com/roshkins/sputnik-dao-contract/internal/domain"
)

// Registry maps token identifiers to their vote weight. A token is
// registered once it has an entry, even with weight zero.
type Registry struct {
	owner   domain.AccountID
	weights map[domain.TokenID]domain.Amount
}

func NewRegistry(owner domain.AccountID) *Registry {
	return &Registry{
		owner:   owner,
		weights: make(map[domain.TokenID]domain.Amount),
	}
}

// WeightOf returns the token's weight, or zero for an unregistered token.
func (r *Registry) WeightOf(token domain.TokenID) domain.Amount {
	return r.weights[token]
}

func (r *Registry) IsRegistered(token domain.TokenID) bool {
	_, ok := r.weights[token]
	return ok
}

// Register inserts or overwrites a weight. Only the owner may call it.
// Already-staked tokens do not have their delegated governance weight
// recomputed.
func (r *Registry) Register(caller domain.AccountID, token domain.TokenID, weight domain.Amount) error {
	if caller != r.owner {
		return domain.ErrNotOwner
	}
	if token == "" {
		return fmt.Errorf("%w: token id must not be empty", domain.ErrInvalidToken)
	}
	r.weights[token] = weight
	return nil
}

// Tokens returns registered tokens in lexical order.
func (r *Registry) Tokens() []domain.TokenID {
	out := make([]domain.TokenID, 0, len(r.weights))
	for token := range r.weights {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns a copy of the weight table.
func (r *Registry) All() map[domain.TokenID]domain.Amount {
	out := make(map[domain.TokenID]domain.Amount, len(r.weights))
	for token, w := range r.weights {
		out[token] = w
	}
	return out
}
