package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/roshkins/sputnik-dao-contract/internal/staking"
	"github.com/roshkins/sputnik-dao-contract/pkg/logger"
	"github.com/roshkins/sputnik-dao-contract/pkg/metrics"
)

const defaultCallTimeout = 30 * time.Second

// Service serializes every staking entry point behind one mutex, persists
// each invocation's changes and runs the custody and governance calls in
// the background.
type Service struct {
	repo       domain.StateRepository
	custody    domain.CustodyService
	governance domain.GovernanceService
	logger     *logger.Logger
	metrics    *metrics.Collector

	stakingCfg  staking.Config
	stakingOpts []staking.Option
	callTimeout time.Duration

	mu       sync.Mutex
	contract *staking.Contract

	// Side effects of changes not yet persisted. They leave the process
	// only after the commit that makes their state durable.
	queuedCalls     []domain.GovernanceCall
	queuedTransfers []domain.PendingWithdrawal

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewService(
	repo domain.StateRepository,
	custody domain.CustodyService,
	governance domain.GovernanceService,
	logger *logger.Logger,
	collector *metrics.Collector,
	stakingCfg staking.Config,
	callTimeout time.Duration,
	opts ...staking.Option,
) *Service {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		repo:        repo,
		custody:     custody,
		governance:  governance,
		logger:      logger,
		metrics:     collector,
		stakingCfg:  stakingCfg,
		stakingOpts: opts,
		callTimeout: callTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Bootstrap restores persisted state, or initializes and persists fresh
// state from the configuration when nothing is stored yet.
func (s *Service) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load staking state: %w", err)
	}

	if snap != nil && snap.Initialized {
		contract, err := staking.Restore(snap, s.stakingOpts...)
		if err != nil {
			return fmt.Errorf("failed to restore staking state: %w", err)
		}
		s.contract = contract

		if s.stakingCfg.Cooldown != contract.Cooldown() {
			s.logger.Warnw("Configured cooldown ignored, persisted cooldown is immutable",
				"configured", s.stakingCfg.Cooldown,
				"persisted", contract.Cooldown(),
			)
		}
		if pending := contract.PendingWithdrawals(); len(pending) > 0 {
			s.logger.Warnw("Withdrawals still await a custody result",
				"count", len(pending),
				"oldest", pending[0].ID,
				"oldestCreatedAt", pending[0].CreatedAt,
			)
		}
		s.logger.Infow("Staking state restored",
			"accounts", contract.AccountCount(),
			"tokens", len(contract.Weights()),
			"totalSupply", contract.TotalSupply(),
		)
	} else {
		contract, err := staking.Initialize(s.stakingCfg, s.stakingOpts...)
		if err != nil {
			return fmt.Errorf("failed to initialize staking state: %w", err)
		}
		s.contract = contract

		if err := s.commit(ctx); err != nil {
			return err
		}
		s.logger.Infow("Staking state initialized",
			"owner", contract.Owner(),
			"self", contract.Self(),
			"cooldown", contract.Cooldown(),
			"tokens", len(contract.Weights()),
		)
	}

	s.updateGauges()
	return nil
}

func (s *Service) OnTransfer(ctx context.Context, n domain.IncomingTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return domain.ErrNotInitialized
	}

	calls, err := s.contract.OnTransfer(n)
	s.metrics.RecordOperation("deposit", err)
	if err != nil {
		s.logger.Warnw("Deposit rejected", "sender", n.Sender, "token", n.Token, "error", err)
		return err
	}

	s.logger.Infow("Deposit applied",
		"sender", n.Sender,
		"previousOwner", n.PreviousOwner,
		"token", n.Token,
		"balance", s.contract.BalanceOf(n.Sender),
	)
	s.queueCalls(calls...)

	return s.commit(ctx)
}

func (s *Service) Register(ctx context.Context, caller domain.AccountID, token domain.TokenID, weight domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return domain.ErrNotInitialized
	}

	err := s.contract.Register(caller, token, weight)
	s.metrics.RecordOperation("register", err)
	if err != nil {
		s.logger.Warnw("Token registration rejected", "caller", caller, "token", token, "error", err)
		return err
	}

	s.logger.Infow("Token registered", "token", token, "weight", weight)
	return s.commit(ctx)
}

func (s *Service) Delegate(ctx context.Context, sender, target domain.AccountID, token domain.TokenID, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return domain.ErrNotInitialized
	}

	call, err := s.contract.Delegate(sender, target, token, amount)
	s.metrics.RecordOperation("delegate", err)
	if err != nil {
		s.logger.Warnw("Delegation rejected", "sender", sender, "target", target, "token", token, "amount", amount, "error", err)
		return err
	}

	s.logger.Infow("Delegation applied", "sender", sender, "target", target, "token", token, "amount", amount, "weighted", call.Amount)
	s.queueCalls(call)

	return s.commit(ctx)
}

func (s *Service) Undelegate(ctx context.Context, sender, target domain.AccountID, token domain.TokenID, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return domain.ErrNotInitialized
	}

	call, err := s.contract.Undelegate(sender, target, token, amount)
	s.metrics.RecordOperation("undelegate", err)
	if err != nil {
		s.logger.Warnw("Undelegation rejected", "sender", sender, "target", target, "token", token, "amount", amount, "error", err)
		return err
	}

	s.logger.Infow("Undelegation applied", "sender", sender, "target", target, "token", token, "requested", amount, "weighted", call.Amount)
	s.queueCalls(call)

	return s.commit(ctx)
}

// Withdraw runs the first phase of a withdrawal. Once the debit is persisted
// the transfer runs in a background goroutine, which resumes the withdrawal
// through CompleteWithdrawal when custody reports back. When persisting
// fails the transfer waits for the next successful commit.
func (s *Service) Withdraw(ctx context.Context, sender domain.AccountID, token domain.TokenID, amount domain.Amount, memo, payload string) (domain.PendingWithdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return domain.PendingWithdrawal{}, domain.ErrNotInitialized
	}

	p, err := s.contract.BeginWithdrawal(sender, token, amount, memo, payload)
	s.metrics.RecordOperation("withdraw", err)
	if err != nil {
		s.logger.Warnw("Withdrawal rejected", "sender", sender, "token", token, "amount", amount, "error", err)
		return domain.PendingWithdrawal{}, err
	}

	s.logger.Infow("Withdrawal started",
		"withdrawalId", p.ID,
		"account", sender,
		"token", token,
		"amount", amount,
		"notify", payload != "",
	)
	s.queuedTransfers = append(s.queuedTransfers, p)

	return p, s.commit(ctx)
}

// CompleteWithdrawal resolves a pending withdrawal with the custody results.
// Only the service's own identity is accepted as caller.
func (s *Service) CompleteWithdrawal(ctx context.Context, caller domain.AccountID, id uuid.UUID, results []domain.TransferOutcome) (domain.WithdrawalResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return domain.WithdrawalResolution{}, domain.ErrNotInitialized
	}

	res, err := s.contract.CompleteWithdrawal(caller, id, results)
	s.metrics.RecordOperation("complete_withdrawal", err)
	if err != nil {
		if domain.IsContractViolation(err) {
			s.metrics.ContractViolations.Inc()
			s.logger.DPanicw("Withdrawal callback contract violated",
				"withdrawalId", id,
				"results", len(results),
				"error", err,
			)
			return domain.WithdrawalResolution{}, err
		}
		s.logger.Errorw("Failed to complete withdrawal", "withdrawalId", id, "caller", caller, "error", err)
		return domain.WithdrawalResolution{}, err
	}

	s.metrics.RecordWithdrawalOutcome(string(res.Outcome))
	if res.Compensated {
		s.metrics.Compensations.Inc()
		s.logger.Warnw("Withdrawal transfer failed, stake restored",
			"withdrawalId", id,
			"account", res.Withdrawal.Account,
			"token", res.Withdrawal.Token,
			"amount", res.Withdrawal.Amount,
		)
	} else {
		s.logger.Infow("Withdrawal completed",
			"withdrawalId", id,
			"account", res.Withdrawal.Account,
			"token", res.Withdrawal.Token,
			"amount", res.Withdrawal.Amount,
		)
	}

	return res, s.commit(ctx)
}

func (s *Service) TotalSupply() domain.Amount {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return 0
	}
	return s.contract.TotalSupply()
}

func (s *Service) TotalVotingPower() domain.Amount {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return 0
	}
	return s.contract.TotalVotingPower()
}

func (s *Service) BalanceOf(account domain.AccountID) domain.Amount {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return 0
	}
	return s.contract.BalanceOf(account)
}

// GetAccount returns a copy of the account, or an empty record carrying the
// id when the account does not exist.
func (s *Service) GetAccount(account domain.AccountID) *domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract != nil {
		if acc, ok := s.contract.GetAccount(account); ok {
			return acc
		}
	}
	return domain.NewAccount(account)
}

func (s *Service) WeightOf(token domain.TokenID) (domain.Amount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return 0, false
	}
	return s.contract.WeightOf(token), s.contract.IsRegistered(token)
}

func (s *Service) Weights() map[domain.TokenID]domain.Amount {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return map[domain.TokenID]domain.Amount{}
	}
	return s.contract.Weights()
}

func (s *Service) GetWithdrawal(id uuid.UUID) (domain.PendingWithdrawal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contract == nil {
		return domain.PendingWithdrawal{}, false
	}
	return s.contract.Withdrawal(id)
}

func (s *Service) Ready(ctx context.Context) error {
	s.mu.Lock()
	initialized := s.contract != nil
	s.mu.Unlock()

	if !initialized {
		return domain.ErrNotInitialized
	}
	return s.repo.Ping(ctx)
}

// Wait blocks until every background custody and governance call finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown waits for background calls until ctx expires, then cancels the
// ones still running. A cancelled transfer leaves its withdrawal pending.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// commit persists the invocation's changes and then releases the queued
// side effects. On failure the changes and side effects stay queued for the
// next successful commit.
func (s *Service) commit(ctx context.Context) error {
	s.updateGauges()

	changes := s.contract.Changes()
	if changes.Empty() {
		s.dispatchQueued()
		return nil
	}

	if err := s.repo.Apply(ctx, changes); err != nil {
		s.metrics.PersistenceErrors.Inc()
		s.logger.Errorw("Failed to persist state",
			"error", err,
			"accounts", len(changes.Accounts),
			"pendingUpserts", len(changes.PendingUpserts),
			"pendingRemovals", len(changes.PendingRemovals),
		)
		if n := len(s.queuedCalls) + len(s.queuedTransfers); n > 0 {
			s.logger.Warnw("Holding side effects until state is persisted", "held", n)
		}
		return fmt.Errorf("failed to persist state: %w", err)
	}

	s.contract.ResetChanges()
	s.dispatchQueued()
	return nil
}

func (s *Service) queueCalls(calls ...domain.GovernanceCall) {
	s.queuedCalls = append(s.queuedCalls, calls...)
}

func (s *Service) dispatchQueued() {
	calls, transfers := s.queuedCalls, s.queuedTransfers
	s.queuedCalls, s.queuedTransfers = nil, nil

	s.forward(calls...)
	for _, p := range transfers {
		s.dispatchTransfer(p)
	}
}

func (s *Service) updateGauges() {
	s.metrics.UpdateTotals(uint64(s.contract.TotalSupply()), uint64(s.contract.TotalVotingPower()))
	s.metrics.SetPendingWithdrawals(len(s.contract.PendingWithdrawals()))
}

func (s *Service) forward(calls ...domain.GovernanceCall) {
	for _, call := range calls {
		if call.Kind != domain.GovernanceRegister && call.Amount == 0 {
			s.logger.Debugw("Skipping empty governance forward", "kind", call.Kind, "account", call.Account)
			continue
		}

		s.wg.Add(1)
		go func(call domain.GovernanceCall) {
			defer s.wg.Done()

			ctx, cancel := context.WithTimeout(s.ctx, s.callTimeout)
			defer cancel()

			var err error
			switch call.Kind {
			case domain.GovernanceRegister:
				err = s.governance.RegisterDelegation(ctx, call.Account)
			case domain.GovernanceDelegate:
				err = s.governance.Delegate(ctx, call.Account, call.Amount)
			case domain.GovernanceUndelegate:
				err = s.governance.Undelegate(ctx, call.Account, call.Amount)
			default:
				err = fmt.Errorf("unknown governance call %q", call.Kind)
			}

			s.metrics.RecordGovernanceForward(string(call.Kind), err == nil)
			if err != nil {
				s.logger.Errorw("Governance forward failed",
					"kind", call.Kind,
					"account", call.Account,
					"amount", call.Amount,
					"error", err,
				)
				return
			}
			s.logger.Debugw("Governance forward delivered", "kind", call.Kind, "account", call.Account, "amount", call.Amount)
		}(call)
	}
}

func (s *Service) dispatchTransfer(p domain.PendingWithdrawal) {
	self := s.contract.Self()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		outcome, ok := s.transfer(p)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
		defer cancel()

		// Errors are already logged and counted by CompleteWithdrawal.
		_, _ = s.CompleteWithdrawal(ctx, self, p.ID, []domain.TransferOutcome{outcome})
	}()
}

// transfer sends the withdrawn token back to its owner. It reports false
// when the custody call never produced a result, in which case the
// withdrawal stays pending.
func (s *Service) transfer(p domain.PendingWithdrawal) (domain.TransferOutcome, bool) {
	ctx, cancel := context.WithTimeout(s.ctx, s.callTimeout)
	defer cancel()

	req := domain.TransferRequest{Receiver: p.Account, Token: p.Token, Memo: p.Memo}

	var err error
	transferred := true
	if p.Payload != "" {
		transferred, err = s.custody.TransferAndNotify(ctx, req, p.Payload)
	} else {
		err = s.custody.Transfer(ctx, req)
	}

	switch {
	case errors.Is(err, domain.ErrTransferOutcomeUnknown),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		s.logger.Errorw("Withdrawal transfer produced no result, stake stays debited",
			"withdrawalId", p.ID,
			"account", p.Account,
			"token", p.Token,
			"error", err,
		)
		return "", false
	case err != nil:
		s.logger.Warnw("Withdrawal transfer failed", "withdrawalId", p.ID, "token", p.Token, "error", err)
		return domain.TransferFailed, true
	case !transferred:
		s.logger.Warnw("Withdrawal transfer returned by receiver", "withdrawalId", p.ID, "token", p.Token)
		return domain.TransferFailed, true
	default:
		return domain.TransferSuccessful, true
	}
}
