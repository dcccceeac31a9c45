package postgres

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Load and Apply against a live database are covered in internal/integration_test.go.

func TestBuildBatch_Order(t *testing.T) {
	acc := domain.NewAccount("alice.near")
	acc.StakedByToken["nft-1"] = 2
	id := uuid.New()

	changes := domain.Changeset{
		Config: &domain.Snapshot{Owner: "owner.near", Self: "staking.near", Cooldown: time.Hour},
		Weights: map[domain.TokenID]domain.Amount{
			"nft-2": 5,
			"nft-1": 2,
		},
		Totals:   map[domain.TokenID]domain.Amount{"nft-1": domain.MaxAmount},
		Accounts: []*domain.Account{acc},
		PendingUpserts: []domain.PendingWithdrawal{{
			ID:        id,
			Account:   "alice.near",
			Token:     "nft-1",
			Amount:    1,
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}},
		PendingRemovals: []uuid.UUID{id},
	}

	batch, err := buildBatch(changes)
	require.NoError(t, err)
	require.Equal(t, 7, batch.Len())

	queries := batch.QueuedQueries
	assert.Equal(t, insertConfigQuery, queries[0].SQL)
	assert.Equal(t, []any{"owner.near", "staking.near", int64(time.Hour)}, queries[0].Arguments)

	assert.Equal(t, upsertWeightQuery, queries[1].SQL)
	assert.Equal(t, []any{"nft-1", "2"}, queries[1].Arguments)
	assert.Equal(t, []any{"nft-2", "5"}, queries[2].Arguments)

	assert.Equal(t, upsertTotalQuery, queries[3].SQL)
	assert.Equal(t, []any{"nft-1", "18446744073709551615"}, queries[3].Arguments)

	assert.Equal(t, upsertAccountQuery, queries[4].SQL)
	assert.Equal(t, "alice.near", queries[4].Arguments[0])
	assert.Equal(t, domain.CurrentAccountVersion, queries[4].Arguments[1])
	assert.JSONEq(t, `{
		"version": 2,
		"account_id": "alice.near",
		"staked_by_token": {"nft-1": 2},
		"delegations": [],
		"next_action_eligible_at": "0001-01-01T00:00:00Z"
	}`, queries[4].Arguments[2].(string))

	assert.Equal(t, upsertPendingQuery, queries[5].SQL)
	assert.Equal(t, id, queries[5].Arguments[0])
	assert.Equal(t, "1", queries[5].Arguments[3])

	assert.Equal(t, deletePendingQuery, queries[6].SQL)
	assert.Equal(t, []any{id}, queries[6].Arguments)
}

func TestBuildBatch_Empty(t *testing.T) {
	batch, err := buildBatch(domain.Changeset{})
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Len())
}

func TestDecodeAccountRow(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		record      string
		wantVersion int
		wantStaked  domain.Amount
		wantErr     string
	}{
		{
			name:        "current layout",
			id:          "alice.near",
			record:      `{"version":2,"account_id":"alice.near","staked_by_token":{"nft-1":3},"delegations":[{"token_id":"nft-1","target_id":"bob.near","amount":1}],"next_action_eligible_at":"2024-01-02T00:00:00Z"}`,
			wantVersion: 2,
			wantStaked:  3,
		},
		{
			name:        "legacy layout",
			id:          "alice.near",
			record:      `{"account_id":"alice.near","vote_amounts":{"nft-1":4},"delegated_amounts":{"nft-1:bob.near":2},"next_action_timestamp":0}`,
			wantVersion: 1,
			wantStaked:  4,
		},
		{
			name:        "missing id takes row key",
			id:          "alice.near",
			record:      `{"version":2,"staked_by_token":{"nft-1":1},"delegations":[]}`,
			wantVersion: 2,
			wantStaked:  1,
		},
		{
			name:    "mismatched id",
			id:      "alice.near",
			record:  `{"version":2,"account_id":"bob.near","staked_by_token":{},"delegations":[]}`,
			wantErr: "holds record for bob.near",
		},
		{
			name:    "unknown version",
			id:      "alice.near",
			record:  `{"version":9}`,
			wantErr: "unsupported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, version, err := decodeAccountRow(tt.id, []byte(tt.record))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, strings.ToLower(err.Error()), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
			assert.Equal(t, domain.AccountID(tt.id), acc.ID)
			assert.Equal(t, tt.wantStaked, acc.Staked("nft-1"))
		})
	}
}

func TestSortedTokens(t *testing.T) {
	got := sortedTokens(map[domain.TokenID]domain.Amount{"c": 1, "a": 2, "b": 3})
	assert.Equal(t, []domain.TokenID{"a", "b", "c"}, got)
	assert.Empty(t, sortedTokens(nil))
}

func TestEmbeddedMigrations(t *testing.T) {
	source, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer source.Close()

	version, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	up, _, err := source.ReadUp(version)
	require.NoError(t, err)
	defer up.Close()

	body, err := io.ReadAll(up)
	require.NoError(t, err)
	for _, table := range []string{"staking_config", "registry", "totals", "accounts", "pending_withdrawals"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table)
	}

	down, _, err := source.ReadDown(version)
	require.NoError(t, err)
	defer down.Close()

	body, err = io.ReadAll(down)
	require.NoError(t, err)
	assert.Contains(t, string(body), "DROP TABLE IF EXISTS pending_withdrawals")
}
