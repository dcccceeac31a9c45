package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/roshkins/sputnik-dao-contract/pkg/logger"
)

const (
	loadTimeout  = 30 * time.Second
	applyTimeout = 10 * time.Second
)

const (
	insertConfigQuery = `
		INSERT INTO staking_config (id, owner_id, self_id, cooldown_ns)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	upsertWeightQuery = `
		INSERT INTO registry (token_id, weight, updated_at)
		VALUES ($1, $2::numeric, NOW())
		ON CONFLICT (token_id) DO UPDATE SET
			weight = EXCLUDED.weight,
			updated_at = EXCLUDED.updated_at
	`
	upsertTotalQuery = `
		INSERT INTO totals (token_id, total, updated_at)
		VALUES ($1, $2::numeric, NOW())
		ON CONFLICT (token_id) DO UPDATE SET
			total = EXCLUDED.total,
			updated_at = EXCLUDED.updated_at
	`
	upsertAccountQuery = `
		INSERT INTO accounts (account_id, schema_version, record, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at
	`
	upsertPendingQuery = `
		INSERT INTO pending_withdrawals (id, account_id, token_id, amount, memo, payload, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	deletePendingQuery = `DELETE FROM pending_withdrawals WHERE id = $1`
)

// Repository stores the staking state in PostgreSQL. Amounts are kept in
// NUMERIC(20,0) columns and travel as decimal text to preserve the full
// uint64 range.
type Repository struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

func NewRepository(db *pgxpool.Pool, logger *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Load(ctx context.Context) (*domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(context.Background())

	snap := &domain.Snapshot{
		Weights:            make(map[domain.TokenID]domain.Amount),
		Totals:             make(map[domain.TokenID]domain.Amount),
		Accounts:           make(map[domain.AccountID]*domain.Account),
		PendingWithdrawals: make(map[uuid.UUID]domain.PendingWithdrawal),
	}

	var cooldownNs int64
	err = tx.QueryRow(ctx, `SELECT owner_id, self_id, cooldown_ns FROM staking_config WHERE id = 1`).
		Scan(&snap.Owner, &snap.Self, &cooldownNs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return snap, nil
		}
		return nil, fmt.Errorf("failed to load staking config: %w", err)
	}
	snap.Initialized = true
	snap.Cooldown = time.Duration(cooldownNs)

	if err := loadAmounts(ctx, tx, `SELECT token_id, weight::text FROM registry`, snap.Weights); err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	if err := loadAmounts(ctx, tx, `SELECT token_id, total::text FROM totals WHERE total > 0`, snap.Totals); err != nil {
		return nil, fmt.Errorf("failed to load totals: %w", err)
	}
	if err := r.loadAccounts(ctx, tx, snap.Accounts); err != nil {
		return nil, err
	}
	if err := loadPending(ctx, tx, snap.PendingWithdrawals); err != nil {
		return nil, err
	}

	r.logger.Infow("Loaded staking state",
		"tokens", len(snap.Weights),
		"accounts", len(snap.Accounts),
		"pendingWithdrawals", len(snap.PendingWithdrawals),
	)

	return snap, nil
}

func loadAmounts(ctx context.Context, tx pgx.Tx, query string, into map[domain.TokenID]domain.Amount) error {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var token, value string
		if err := rows.Scan(&token, &value); err != nil {
			return err
		}
		amount, err := domain.ParseAmount(value)
		if err != nil {
			return fmt.Errorf("token %s: %w", token, err)
		}
		into[domain.TokenID(token)] = amount
	}

	return rows.Err()
}

func (r *Repository) loadAccounts(ctx context.Context, tx pgx.Tx, into map[domain.AccountID]*domain.Account) error {
	rows, err := tx.Query(ctx, `SELECT account_id, record FROM accounts`)
	if err != nil {
		return fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	legacy := 0
	for rows.Next() {
		var id string
		var record []byte
		if err := rows.Scan(&id, &record); err != nil {
			return fmt.Errorf("failed to scan account: %w", err)
		}

		acc, version, err := decodeAccountRow(id, record)
		if err != nil {
			return err
		}
		if version != domain.CurrentAccountVersion {
			legacy++
		}
		into[acc.ID] = acc
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating accounts: %w", err)
	}

	if legacy > 0 {
		r.logger.Infow("Normalized legacy account records", "count", legacy)
	}
	return nil
}

func loadPending(ctx context.Context, tx pgx.Tx, into map[uuid.UUID]domain.PendingWithdrawal) error {
	rows, err := tx.Query(ctx, `
		SELECT id, account_id, token_id, amount::text, memo, payload, created_at
		FROM pending_withdrawals
		ORDER BY created_at ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to query pending withdrawals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.PendingWithdrawal
		var amount string
		if err := rows.Scan(&p.ID, &p.Account, &p.Token, &amount, &p.Memo, &p.Payload, &p.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan pending withdrawal: %w", err)
		}
		if p.Amount, err = domain.ParseAmount(amount); err != nil {
			return fmt.Errorf("pending withdrawal %s: %w", p.ID, err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		into[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating pending withdrawals: %w", err)
	}
	return nil
}

// Apply writes one changeset in a single transaction.
func (r *Repository) Apply(ctx context.Context, changes domain.Changeset) error {
	if changes.Empty() {
		return nil
	}

	batch, err := buildBatch(changes)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, applyTimeout)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Use a fresh context for rollback to ensure it always works
		tx.Rollback(context.Background())
	}()

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				r.logger.Errorw("Changeset statement rejected", "index", i, "code", pgErr.Code, "message", pgErr.Message)
			}
			br.Close()
			return fmt.Errorf("failed to execute batch item %d: %w", i, err)
		}
	}

	// Close the batch result before committing the transaction
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debugw("Applied changeset",
		"statements", batch.Len(),
		"accounts", len(changes.Accounts),
		"pendingUpserts", len(changes.PendingUpserts),
		"pendingRemovals", len(changes.PendingRemovals),
	)
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.db.Ping(ctx)
}

// buildBatch turns a changeset into the statements Apply sends. Map-backed
// sections are emitted in token order so concurrent writers lock rows in the
// same sequence.
func buildBatch(changes domain.Changeset) (*pgx.Batch, error) {
	batch := &pgx.Batch{}

	if cfg := changes.Config; cfg != nil {
		batch.Queue(insertConfigQuery, string(cfg.Owner), string(cfg.Self), int64(cfg.Cooldown))
	}
	for _, token := range sortedTokens(changes.Weights) {
		batch.Queue(upsertWeightQuery, string(token), changes.Weights[token].String())
	}
	for _, token := range sortedTokens(changes.Totals) {
		batch.Queue(upsertTotalQuery, string(token), changes.Totals[token].String())
	}
	for _, acc := range changes.Accounts {
		record, err := domain.EncodeAccount(acc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode account %s: %w", acc.ID, err)
		}
		batch.Queue(upsertAccountQuery, string(acc.ID), domain.CurrentAccountVersion, string(record))
	}
	for _, p := range changes.PendingUpserts {
		batch.Queue(upsertPendingQuery, p.ID, string(p.Account), string(p.Token), p.Amount.String(), p.Memo, p.Payload, p.CreatedAt)
	}
	for _, id := range changes.PendingRemovals {
		batch.Queue(deletePendingQuery, id)
	}

	return batch, nil
}

func sortedTokens(m map[domain.TokenID]domain.Amount) []domain.TokenID {
	tokens := make([]domain.TokenID, 0, len(m))
	for token := range m {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return tokens
}

func decodeAccountRow(id string, record []byte) (*domain.Account, int, error) {
	v, err := domain.DecodeVersioned(record)
	if err != nil {
		return nil, 0, fmt.Errorf("account %s: %w", id, err)
	}
	acc, err := v.Normalize()
	if err != nil {
		return nil, 0, fmt.Errorf("account %s: %w", id, err)
	}
	if acc.ID == "" {
		acc.ID = domain.AccountID(id)
	}
	if string(acc.ID) != id {
		return nil, 0, fmt.Errorf("account row %s holds record for %s", id, acc.ID)
	}
	return acc, v.Version(), nil
}
