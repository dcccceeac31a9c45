package staking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/roshkins/sputnik-dao-contract/pkg/clock"
)

const (
	owner    = domain.AccountID("dao.owner")
	self     = domain.AccountID("staking.service")
	alice    = domain.AccountID("alice.near")
	bob      = domain.AccountID("bob.near")
	carol    = domain.AccountID("carol.near")
	nft1     = domain.TokenID("NFT1")
	nft2     = domain.TokenID("NFT2")
	cooldown = 24 * time.Hour
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func setupContract(t *testing.T, opts ...Option) (*Contract, *clock.Manual) {
	t.Helper()

	clk := clock.NewManual(epoch)
	c, err := Initialize(Config{
		Owner:        owner,
		Self:         self,
		TokenWeights: map[domain.TokenID]domain.Amount{nft1: 2, nft2: 5},
		Cooldown:     cooldown,
	}, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	c.DrainChanges()

	return c, clk
}

func deposit(t *testing.T, c *Contract, account domain.AccountID, token domain.TokenID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := c.OnTransfer(domain.IncomingTransfer{Sender: account, PreviousOwner: account, Token: token})
		require.NoError(t, err)
	}
}

func assertConserved(t *testing.T, c *Contract) {
	t.Helper()
	require.NoError(t, c.ledger.CheckConservation())
}

func TestInitialize_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"empty owner", Config{Self: self}, domain.ErrInvalidAccount},
		{"empty self", Config{Owner: owner}, domain.ErrInvalidAccount},
		{"empty token id", Config{Owner: owner, Self: self, TokenWeights: map[domain.TokenID]domain.Amount{"": 1}}, domain.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Initialize(tt.cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := Initialize(Config{Owner: owner, Self: self, Cooldown: -time.Second})
	assert.Error(t, err)
}

func TestInitialize_FirstDrainCarriesConfig(t *testing.T) {
	c, err := Initialize(Config{
		Owner:        owner,
		Self:         self,
		TokenWeights: map[domain.TokenID]domain.Amount{nft1: 2},
		Cooldown:     cooldown,
	})
	require.NoError(t, err)

	cs := c.DrainChanges()
	require.NotNil(t, cs.Config)
	assert.Equal(t, owner, cs.Config.Owner)
	assert.Equal(t, self, cs.Config.Self)
	assert.Equal(t, cooldown, cs.Config.Cooldown)
	assert.Equal(t, map[domain.TokenID]domain.Amount{nft1: 2}, cs.Weights)

	assert.True(t, c.DrainChanges().Empty())
}

func TestRegister(t *testing.T) {
	c, _ := setupContract(t)

	t.Run("non owner is rejected", func(t *testing.T) {
		err := c.Register(alice, "NFT3", 1)
		assert.ErrorIs(t, err, domain.ErrNotOwner)
		assert.Equal(t, domain.Amount(0), c.WeightOf("NFT3"))
	})

	t.Run("owner registers and overwrites", func(t *testing.T) {
		require.NoError(t, c.Register(owner, "NFT3", 1))
		require.NoError(t, c.Register(owner, "NFT3", 7))
		assert.Equal(t, domain.Amount(7), c.WeightOf("NFT3"))

		cs := c.DrainChanges()
		assert.Equal(t, map[domain.TokenID]domain.Amount{"NFT3": 7}, cs.Weights)
	})

	t.Run("unregistered token weighs zero", func(t *testing.T) {
		assert.Equal(t, domain.Amount(0), c.WeightOf("missing"))
	})

	t.Run("zero weight registers the token", func(t *testing.T) {
		require.NoError(t, c.Register(owner, "NFT0", 0))
		assert.True(t, c.IsRegistered("NFT0"))
		assert.Equal(t, domain.Amount(0), c.WeightOf("NFT0"))
		assert.False(t, c.IsRegistered("missing"))

		cs := c.DrainChanges()
		assert.Equal(t, map[domain.TokenID]domain.Amount{"NFT0": 0}, cs.Weights)
	})

	t.Run("registry lists tokens in order", func(t *testing.T) {
		assert.Equal(t, []domain.TokenID{"NFT0", nft1, nft2, "NFT3"}, c.registry.Tokens())
	})
}

func TestZeroWeightToken(t *testing.T) {
	c, clk := setupContract(t)
	require.NoError(t, c.Register(owner, "NFT0", 0))
	deposit(t, c, alice, nft1, 1)

	_, err := c.OnTransfer(domain.IncomingTransfer{Sender: alice, PreviousOwner: alice, Token: "NFT0"})
	require.NoError(t, err)

	assert.Equal(t, domain.Amount(2), c.TotalSupply())
	assert.Equal(t, domain.Amount(2), c.TotalVotingPower())

	call, err := c.Delegate(alice, bob, "NFT0", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.GovernanceCall{Kind: domain.GovernanceDelegate, Account: bob, Amount: 0}, call)

	clk.Advance(cooldown)
	_, err = c.BeginWithdrawal(alice, "NFT0", 1, "", "")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance, "delegated stake stays locked")
	assertConserved(t, c)
}

func TestOnTransfer(t *testing.T) {
	t.Run("first deposit creates the account and registers it with governance", func(t *testing.T) {
		c, _ := setupContract(t)

		calls, err := c.OnTransfer(domain.IncomingTransfer{Sender: alice, PreviousOwner: alice, Token: nft1})
		require.NoError(t, err)
		assert.Equal(t, []domain.GovernanceCall{{Kind: domain.GovernanceRegister, Account: alice}}, calls)

		calls, err = c.OnTransfer(domain.IncomingTransfer{Sender: alice, PreviousOwner: alice, Token: nft1})
		require.NoError(t, err)
		assert.Empty(t, calls)

		assert.Equal(t, domain.Amount(2), c.BalanceOf(alice))
		assertConserved(t, c)

		cs := c.DrainChanges()
		require.Len(t, cs.Accounts, 1)
		assert.Equal(t, alice, cs.Accounts[0].ID)
		assert.Equal(t, map[domain.TokenID]domain.Amount{nft1: 2}, cs.Totals)
	})

	tests := []struct {
		name    string
		in      domain.IncomingTransfer
		wantErr error
	}{
		{"non-empty message", domain.IncomingTransfer{Sender: alice, Token: nft1, Message: "stake"}, domain.ErrInvalidMessage},
		{"unregistered token", domain.IncomingTransfer{Sender: alice, Token: "other"}, domain.ErrInvalidToken},
		{"empty sender", domain.IncomingTransfer{Token: nft1}, domain.ErrInvalidAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setupContract(t)

			_, err := c.OnTransfer(tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, domain.Amount(0), c.TotalSupply())
			assert.True(t, c.DrainChanges().Empty())
		})
	}
}

func TestDelegate(t *testing.T) {
	t.Run("forwards the weighted amount and re-arms the cooldown", func(t *testing.T) {
		c, _ := setupContract(t)
		deposit(t, c, alice, nft1, 2)

		call, err := c.Delegate(alice, bob, nft1, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.GovernanceCall{Kind: domain.GovernanceDelegate, Account: bob, Amount: 2}, call)

		acc, ok := c.GetAccount(alice)
		require.True(t, ok)
		assert.Equal(t, domain.Amount(1), acc.DelegatedTo(nft1, bob))
		assert.Equal(t, epoch.Add(cooldown), acc.NextActionEligibleAt)
		assert.Equal(t, domain.Amount(2), c.BalanceOf(alice), "delegating does not move stake")
	})

	tests := []struct {
		name    string
		sender  domain.AccountID
		target  domain.AccountID
		token   domain.TokenID
		amount  domain.Amount
		wantErr error
	}{
		{"zero amount", alice, bob, nft1, 0, domain.ErrInvalidAmount},
		{"empty target", alice, "", nft1, 1, domain.ErrInvalidAccount},
		{"unknown sender", carol, bob, nft1, 1, domain.ErrAccountNotFound},
		{"more than staked", alice, bob, nft1, 3, domain.ErrInsufficientBalance},
		{"token not staked", alice, bob, nft2, 1, domain.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setupContract(t)
			deposit(t, c, alice, nft1, 2)
			c.DrainChanges()

			_, err := c.Delegate(tt.sender, tt.target, tt.token, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, c.DrainChanges().Empty())
		})
	}

	t.Run("delegations are bounded by available stake across targets", func(t *testing.T) {
		c, clk := setupContract(t)
		deposit(t, c, alice, nft1, 2)

		_, err := c.Delegate(alice, bob, nft1, 2)
		require.NoError(t, err)
		clk.Advance(cooldown)

		_, err = c.Delegate(alice, carol, nft1, 1)
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	})

	t.Run("overflowing weighted amount is rejected", func(t *testing.T) {
		c, _ := setupContract(t)
		require.NoError(t, c.Register(owner, "heavy", domain.MaxAmount))
		deposit(t, c, alice, "heavy", 2)

		_, err := c.Delegate(alice, bob, "heavy", 2)
		assert.ErrorIs(t, err, domain.ErrAmountOverflow)

		acc, _ := c.GetAccount(alice)
		assert.Empty(t, acc.Delegated)
		assert.True(t, acc.NextActionEligibleAt.IsZero())
	})
}

func TestCooldown(t *testing.T) {
	c, clk := setupContract(t)
	deposit(t, c, alice, nft1, 3)

	_, err := c.Delegate(alice, bob, nft1, 1)
	require.NoError(t, err)

	clk.Advance(cooldown - time.Nanosecond)
	_, err = c.Delegate(alice, bob, nft1, 1)
	assert.ErrorIs(t, err, domain.ErrCooldownActive)
	_, err = c.Undelegate(alice, bob, nft1, 1)
	assert.ErrorIs(t, err, domain.ErrCooldownActive)
	_, err = c.BeginWithdrawal(alice, nft1, 1, "", "")
	assert.ErrorIs(t, err, domain.ErrCooldownActive)

	clk.Advance(time.Nanosecond)
	_, err = c.Delegate(alice, bob, nft1, 1)
	assert.NoError(t, err, "eligible exactly when the cooldown expires")
}

func TestUndelegate(t *testing.T) {
	t.Run("floors at zero and forwards what was removed", func(t *testing.T) {
		c, clk := setupContract(t)
		deposit(t, c, alice, nft2, 3)
		_, err := c.Delegate(alice, bob, nft2, 2)
		require.NoError(t, err)
		clk.Advance(cooldown)

		call, err := c.Undelegate(alice, bob, nft2, 5)
		require.NoError(t, err)
		assert.Equal(t, domain.GovernanceCall{Kind: domain.GovernanceUndelegate, Account: bob, Amount: 10}, call)

		acc, _ := c.GetAccount(alice)
		assert.Empty(t, acc.Delegated)
		assert.Equal(t, clk.Now().Add(cooldown), acc.NextActionEligibleAt)
	})

	t.Run("nothing delegated still re-arms with a zero forward", func(t *testing.T) {
		c, clk := setupContract(t)
		deposit(t, c, alice, nft1, 1)

		call, err := c.Undelegate(alice, bob, nft1, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(0), call.Amount)

		acc, _ := c.GetAccount(alice)
		assert.Equal(t, clk.Now().Add(cooldown), acc.NextActionEligibleAt)
	})

	t.Run("strict policy rejects oversized amounts", func(t *testing.T) {
		c, clk := setupContract(t, WithUndelegatePolicy(UndelegateStrict))
		deposit(t, c, alice, nft1, 2)
		_, err := c.Delegate(alice, bob, nft1, 1)
		require.NoError(t, err)
		clk.Advance(cooldown)
		c.DrainChanges()

		_, err = c.Undelegate(alice, bob, nft1, 2)
		assert.ErrorIs(t, err, domain.ErrInsufficientDelegation)
		assert.True(t, c.DrainChanges().Empty())

		call, err := c.Undelegate(alice, bob, nft1, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(2), call.Amount)
	})

	t.Run("unknown sender", func(t *testing.T) {
		c, _ := setupContract(t)
		_, err := c.Undelegate(alice, bob, nft1, 1)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}

func TestWithdrawal_Success(t *testing.T) {
	id := uuid.MustParse("0b4c3f4e-8c5e-4b8e-9f43-8f3b1c2d4e5f")
	c, _ := setupContract(t, WithIDGenerator(func() uuid.UUID { return id }))
	deposit(t, c, alice, nft1, 2)
	c.DrainChanges()

	p, err := c.BeginWithdrawal(alice, nft1, 1, "gm", "")
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, epoch, p.CreatedAt)
	assert.Equal(t, domain.Amount(1), c.BalanceOf(alice))
	assertConserved(t, c)

	acc, _ := c.GetAccount(alice)
	assert.True(t, acc.NextActionEligibleAt.IsZero(), "withdraw does not re-arm the cooldown")

	cs := c.DrainChanges()
	require.Len(t, cs.PendingUpserts, 1)
	assert.Equal(t, p, cs.PendingUpserts[0])

	res, err := c.CompleteWithdrawal(self, id, []domain.TransferOutcome{domain.TransferSuccessful})
	require.NoError(t, err)
	assert.False(t, res.Compensated)
	assert.Equal(t, domain.Amount(1), c.BalanceOf(alice))

	_, ok := c.Withdrawal(id)
	assert.False(t, ok)
	cs = c.DrainChanges()
	assert.Equal(t, []uuid.UUID{id}, cs.PendingRemovals)
	assert.Empty(t, cs.Accounts)
}

func TestWithdrawal_BeginValidation(t *testing.T) {
	tests := []struct {
		name    string
		sender  domain.AccountID
		amount  domain.Amount
		wantErr error
	}{
		{"zero amount", alice, 0, domain.ErrInvalidAmount},
		{"unknown account", carol, 1, domain.ErrInsufficientBalance},
		{"more than staked", alice, 3, domain.ErrInsufficientBalance},
		{"delegated stake is locked", alice, 2, domain.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clk := setupContract(t)
			deposit(t, c, alice, nft1, 2)
			_, err := c.Delegate(alice, bob, nft1, 1)
			require.NoError(t, err)
			clk.Advance(cooldown)
			c.DrainChanges()

			_, err = c.BeginWithdrawal(tt.sender, nft1, tt.amount, "", "")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, c.DrainChanges().Empty())
			assert.Equal(t, domain.Amount(2), c.BalanceOf(alice))
		})
	}
}

func TestWithdrawal_Complete(t *testing.T) {
	setup := func(t *testing.T) (*Contract, domain.PendingWithdrawal) {
		c, _ := setupContract(t)
		deposit(t, c, alice, nft1, 1)
		p, err := c.BeginWithdrawal(alice, nft1, 1, "", "")
		require.NoError(t, err)
		c.DrainChanges()
		return c, p
	}

	t.Run("failed transfer is compensated", func(t *testing.T) {
		c, p := setup(t)

		res, err := c.CompleteWithdrawal(self, p.ID, []domain.TransferOutcome{domain.TransferFailed})
		require.NoError(t, err)
		assert.True(t, res.Compensated)
		assert.Equal(t, domain.TransferFailed, res.Outcome)
		assert.Equal(t, domain.Amount(1), c.BalanceOf(alice))
		assertConserved(t, c)

		cs := c.DrainChanges()
		assert.Len(t, cs.Accounts, 1)
		assert.Equal(t, map[domain.TokenID]domain.Amount{nft1: 1}, cs.Totals)
	})

	t.Run("only the staking account may resume", func(t *testing.T) {
		c, p := setup(t)

		_, err := c.CompleteWithdrawal(alice, p.ID, []domain.TransferOutcome{domain.TransferFailed})
		assert.ErrorIs(t, err, domain.ErrUnauthorizedCallback)
		assert.Equal(t, domain.Amount(0), c.BalanceOf(alice))
	})

	arity := []struct {
		name    string
		results []domain.TransferOutcome
		wantErr error
	}{
		{"no results", nil, domain.ErrCallbackArityViolation},
		{"two results", []domain.TransferOutcome{domain.TransferFailed, domain.TransferFailed}, domain.ErrCallbackArityViolation},
		{"unknown outcome", []domain.TransferOutcome{"maybe"}, domain.ErrInvalidOutcome},
	}

	for _, tt := range arity {
		t.Run(tt.name, func(t *testing.T) {
			c, p := setup(t)

			_, err := c.CompleteWithdrawal(self, p.ID, tt.results)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsContractViolation(err))

			_, ok := c.Withdrawal(p.ID)
			assert.True(t, ok, "pending record survives a contract violation")
			assert.Equal(t, domain.Amount(0), c.BalanceOf(alice))
			assert.True(t, c.DrainChanges().Empty())
		})
	}

	t.Run("unknown withdrawal", func(t *testing.T) {
		c, _ := setup(t)

		_, err := c.CompleteWithdrawal(self, uuid.New(), []domain.TransferOutcome{domain.TransferSuccessful})
		assert.ErrorIs(t, err, domain.ErrWithdrawalNotFound)
	})

	t.Run("resolving twice fails", func(t *testing.T) {
		c, p := setup(t)

		_, err := c.CompleteWithdrawal(self, p.ID, []domain.TransferOutcome{domain.TransferFailed})
		require.NoError(t, err)
		_, err = c.CompleteWithdrawal(self, p.ID, []domain.TransferOutcome{domain.TransferFailed})
		assert.ErrorIs(t, err, domain.ErrWithdrawalNotFound)
		assert.Equal(t, domain.Amount(1), c.BalanceOf(alice), "compensation is applied once")
	})
}

func TestAggregates(t *testing.T) {
	c, _ := setupContract(t)
	deposit(t, c, alice, nft1, 3)
	deposit(t, c, alice, nft2, 1)
	deposit(t, c, bob, nft2, 2)

	assert.Equal(t, domain.Amount(6), c.TotalSupply())
	assert.Equal(t, domain.Amount(3*2+3*5), c.TotalVotingPower())
	assert.Equal(t, domain.Amount(4), c.BalanceOf(alice))
	assert.Equal(t, domain.Amount(0), c.BalanceOf(carol))
	assert.Equal(t, 2, c.AccountCount())

	_, ok := c.GetAccount(carol)
	assert.False(t, ok)

	t.Run("voting power saturates", func(t *testing.T) {
		require.NoError(t, c.Register(owner, "heavy", domain.MaxAmount))
		deposit(t, c, carol, "heavy", 2)
		assert.Equal(t, domain.MaxAmount, c.TotalVotingPower())
	})

	t.Run("account copies are detached", func(t *testing.T) {
		acc, _ := c.GetAccount(alice)
		acc.StakedByToken[nft1] = 100
		assert.Equal(t, domain.Amount(4), c.BalanceOf(alice))
	})
}

func TestScenario_WithdrawThenCompensate(t *testing.T) {
	c, err := Initialize(Config{
		Owner:        owner,
		Self:         self,
		TokenWeights: map[domain.TokenID]domain.Amount{nft1: 2},
		Cooldown:     cooldown,
	}, WithClock(clock.NewManual(epoch)))
	require.NoError(t, err)

	deposit(t, c, alice, nft1, 1)
	assert.Equal(t, domain.Amount(1), c.TotalSupply())
	assert.Equal(t, domain.Amount(2), c.TotalVotingPower())
	assert.Equal(t, domain.Amount(1), c.BalanceOf(alice))

	p, err := c.BeginWithdrawal(alice, nft1, 1, "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(0), c.BalanceOf(alice))
	assert.Equal(t, domain.Amount(0), c.TotalVotingPower())

	_, err = c.CompleteWithdrawal(self, p.ID, []domain.TransferOutcome{domain.TransferFailed})
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(1), c.BalanceOf(alice))
	assert.Equal(t, domain.Amount(2), c.TotalVotingPower())
}

func TestScenario_DelegateUndelegate(t *testing.T) {
	c, clk := setupContract(t)
	deposit(t, c, alice, nft1, 1)

	call, err := c.Delegate(alice, bob, nft1, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.GovernanceCall{Kind: domain.GovernanceDelegate, Account: bob, Amount: 2}, call)

	clk.Advance(cooldown)
	call, err = c.Undelegate(alice, bob, nft1, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.GovernanceCall{Kind: domain.GovernanceUndelegate, Account: bob, Amount: 2}, call)

	_, err = c.Delegate(alice, bob, nft1, 1)
	assert.ErrorIs(t, err, domain.ErrCooldownActive)
}

func TestRestore(t *testing.T) {
	c, clk := setupContract(t)
	deposit(t, c, alice, nft1, 2)
	_, err := c.Delegate(alice, bob, nft1, 1)
	require.NoError(t, err)
	p, err := c.BeginWithdrawal(bob, nft1, 1, "", "")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	clk.Advance(cooldown)
	p, err = c.BeginWithdrawal(alice, nft1, 1, "", "")
	require.NoError(t, err)

	restored, err := Restore(c.Snapshot(), WithClock(clk))
	require.NoError(t, err)

	assert.Equal(t, c.TotalSupply(), restored.TotalSupply())
	assert.Equal(t, c.TotalVotingPower(), restored.TotalVotingPower())
	assert.Equal(t, owner, restored.Owner())
	assert.Equal(t, self, restored.Self())
	assert.Equal(t, cooldown, restored.Cooldown())
	assert.True(t, restored.DrainChanges().Empty())

	got, ok := restored.Withdrawal(p.ID)
	require.True(t, ok)
	assert.Equal(t, p, got)
	assert.Equal(t, []domain.PendingWithdrawal{p}, restored.PendingWithdrawals())

	_, err = restored.CompleteWithdrawal(self, p.ID, []domain.TransferOutcome{domain.TransferFailed})
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(2), restored.BalanceOf(alice))

	t.Run("uninitialized snapshot", func(t *testing.T) {
		_, err := Restore(&domain.Snapshot{})
		assert.ErrorIs(t, err, domain.ErrNotInitialized)
		_, err = Restore(nil)
		assert.ErrorIs(t, err, domain.ErrNotInitialized)
	})

	t.Run("inconsistent totals", func(t *testing.T) {
		snap := c.Snapshot()
		snap.Totals[nft1] = 99
		_, err := Restore(snap)
		assert.ErrorIs(t, err, errConservation)
	})
}

func TestChanges_KeptUntilReset(t *testing.T) {
	c, _ := setupContract(t)
	deposit(t, c, alice, nft1, 1)

	first := c.Changes()
	require.Len(t, first.Accounts, 1)

	// a failed persist leaves tracking in place; later mutations accumulate
	deposit(t, c, bob, nft1, 1)
	second := c.Changes()
	require.Len(t, second.Accounts, 2)
	assert.Equal(t, domain.Amount(2), second.Totals[nft1])

	c.ResetChanges()
	assert.True(t, c.Changes().Empty())
}
