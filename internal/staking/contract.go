// Package staking implements the staking ledger, the vote-weight registry, the
// delegation cooldown state machine and the two-phase withdrawal.
//
// A Contract is not safe for concurrent use. Callers serialize every entry
// point, which is what application.Service does with a single mutex.
package staking

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/roshkins/sputnik-dao-contract/pkg/clock"
)

// UndelegatePolicy decides what happens when more is undelegated than is delegated.
type UndelegatePolicy int

const (
	// UndelegateFloor reduces the delegation to zero.
	UndelegateFloor UndelegatePolicy = iota
	// UndelegateStrict rejects the call with ErrInsufficientDelegation.
	UndelegateStrict
)

type Config struct {
	Owner        domain.AccountID
	Self         domain.AccountID
	TokenWeights map[domain.TokenID]domain.Amount
	Cooldown     time.Duration
}

type Option func(*Contract)

func WithClock(c clock.Clock) Option {
	return func(ct *Contract) { ct.clock = c }
}

func WithUndelegatePolicy(p UndelegatePolicy) Option {
	return func(ct *Contract) { ct.policy = p }
}

func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(ct *Contract) { ct.newID = fn }
}

type Contract struct {
	owner    domain.AccountID
	self     domain.AccountID
	cooldown time.Duration
	policy   UndelegatePolicy
	clock    clock.Clock
	newID    func() uuid.UUID

	registry *Registry
	ledger   *Ledger
	pending  map[uuid.UUID]domain.PendingWithdrawal

	changes changeTracker
}

func newContract(owner, self domain.AccountID, cooldown time.Duration, opts []Option) *Contract {
	c := &Contract{
		owner:    owner,
		self:     self,
		cooldown: cooldown,
		clock:    clock.SystemClock{},
		newID:    uuid.New,
		pending:  make(map[uuid.UUID]domain.PendingWithdrawal),
		changes:  newChangeTracker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize creates fresh staking state. The cooldown is fixed from here on.
func Initialize(cfg Config, opts ...Option) (*Contract, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("%w: owner must not be empty", domain.ErrInvalidAccount)
	}
	if cfg.Self == "" {
		return nil, fmt.Errorf("%w: self must not be empty", domain.ErrInvalidAccount)
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown must not be negative, got %s", cfg.Cooldown)
	}

	c := newContract(cfg.Owner, cfg.Self, cfg.Cooldown, opts)
	c.registry = NewRegistry(cfg.Owner)
	c.ledger = NewLedger()

	for token, weight := range cfg.TokenWeights {
		if err := c.registry.Register(cfg.Owner, token, weight); err != nil {
			return nil, fmt.Errorf("failed to register initial token %q: %w", token, err)
		}
		c.changes.weights[token] = struct{}{}
	}
	c.changes.config = true

	return c, nil
}

// Restore rebuilds a Contract from persisted state.
func Restore(snap *domain.Snapshot, opts ...Option) (*Contract, error) {
	if snap == nil || !snap.Initialized {
		return nil, domain.ErrNotInitialized
	}

	c := newContract(snap.Owner, snap.Self, snap.Cooldown, opts)
	c.registry = NewRegistry(snap.Owner)
	for token, weight := range snap.Weights {
		c.registry.weights[token] = weight
	}

	c.ledger = NewLedger()
	for id, acc := range snap.Accounts {
		c.ledger.accounts[id] = acc.Clone()
	}
	for token, total := range snap.Totals {
		if total > 0 {
			c.ledger.totals[token] = total
		}
	}
	for id, p := range snap.PendingWithdrawals {
		c.pending[id] = p
	}

	if err := c.ledger.CheckConservation(); err != nil {
		return nil, fmt.Errorf("persisted state is inconsistent: %w", err)
	}

	return c, nil
}

func (c *Contract) Owner() domain.AccountID { return c.owner }

func (c *Contract) Self() domain.AccountID { return c.self }

func (c *Contract) Cooldown() time.Duration { return c.cooldown }

// Snapshot returns a deep copy of the whole state.
func (c *Contract) Snapshot() *domain.Snapshot {
	snap := &domain.Snapshot{
		Initialized:        true,
		Owner:              c.owner,
		Self:               c.self,
		Cooldown:           c.cooldown,
		Weights:            c.registry.All(),
		Totals:             c.ledger.Totals(),
		Accounts:           make(map[domain.AccountID]*domain.Account, len(c.ledger.accounts)),
		PendingWithdrawals: make(map[uuid.UUID]domain.PendingWithdrawal, len(c.pending)),
	}
	for id, acc := range c.ledger.accounts {
		snap.Accounts[id] = acc.Clone()
	}
	for id, p := range c.pending {
		snap.PendingWithdrawals[id] = p
	}
	return snap
}

// Withdrawal returns a pending withdrawal by id.
func (c *Contract) Withdrawal(id uuid.UUID) (domain.PendingWithdrawal, bool) {
	p, ok := c.pending[id]
	return p, ok
}

// PendingWithdrawals lists unresolved withdrawals, oldest first.
func (c *Contract) PendingWithdrawals() []domain.PendingWithdrawal {
	out := make([]domain.PendingWithdrawal, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// DrainChanges returns everything mutated since the last drain and resets tracking.
func (c *Contract) DrainChanges() domain.Changeset {
	cs := c.Changes()
	c.ResetChanges()
	return cs
}

// ResetChanges forgets tracked mutations. Call it once they are persisted.
func (c *Contract) ResetChanges() {
	c.changes = newChangeTracker()
}

// Changes returns everything mutated since the last reset. Records are
// copied in their current state, so a changeset that failed to persist can
// simply be rebuilt later.
func (c *Contract) Changes() domain.Changeset {
	var cs domain.Changeset

	if c.changes.config {
		cs.Config = &domain.Snapshot{
			Initialized: true,
			Owner:       c.owner,
			Self:        c.self,
			Cooldown:    c.cooldown,
		}
	}
	if len(c.changes.weights) > 0 {
		cs.Weights = make(map[domain.TokenID]domain.Amount, len(c.changes.weights))
		for token := range c.changes.weights {
			cs.Weights[token] = c.registry.WeightOf(token)
		}
	}
	if len(c.changes.totals) > 0 {
		cs.Totals = make(map[domain.TokenID]domain.Amount, len(c.changes.totals))
		for token := range c.changes.totals {
			cs.Totals[token] = c.ledger.Total(token)
		}
	}
	for id := range c.changes.accounts {
		if acc, ok := c.ledger.Account(id); ok {
			cs.Accounts = append(cs.Accounts, acc.Clone())
		}
	}
	sort.Slice(cs.Accounts, func(i, j int) bool { return cs.Accounts[i].ID < cs.Accounts[j].ID })

	for id := range c.changes.pending {
		if p, ok := c.pending[id]; ok {
			cs.PendingUpserts = append(cs.PendingUpserts, p)
		} else {
			cs.PendingRemovals = append(cs.PendingRemovals, id)
		}
	}

	return cs
}

type changeTracker struct {
	config   bool
	weights  map[domain.TokenID]struct{}
	totals   map[domain.TokenID]struct{}
	accounts map[domain.AccountID]struct{}
	pending  map[uuid.UUID]struct{}
}

func newChangeTracker() changeTracker {
	return changeTracker{
		weights:  make(map[domain.TokenID]struct{}),
		totals:   make(map[domain.TokenID]struct{}),
		accounts: make(map[domain.AccountID]struct{}),
		pending:  make(map[uuid.UUID]struct{}),
	}
}

func (t *changeTracker) ledgerEntry(account domain.AccountID, token domain.TokenID) {
	t.accounts[account] = struct{}{}
	t.totals[token] = struct{}{}
}
