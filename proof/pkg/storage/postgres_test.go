package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/txproof/proof/pkg/conv"
)

type testConfig struct {
	Database struct {
		DSN string
	}
}

func newTestStore(t *testing.T) *PostgresProofStore {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test")
	}

	var cfg testConfig
	require.NoError(t, envconfig.Process("", &cfg))

	ctx := context.Background()
	pool, err := NewPool(ctx, cfg.Database.DSN)
	require.NoError(t, err)

	store, err := WithMigrations(logrus.New(), pool)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestPostgresProofStore_lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tradeID := uuid.NewString()

	created, err := store.CreateVerification(ctx, CreateVerificationDto{
		TradeID:          tradeID,
		ServiceAddress:   "127.0.0.1:8081",
		TxHash:           "5e665addf6d7c6300670e8a89564ed12b5c1a21c336408e2835668f9a6a0d802",
		RecipientAddress: "4AdkPJoxn7JCvAby9szgnt93MSEwdnxdhaASxbTBm6x5dCwmsDep2UYN4FhStDn5i11nsJbpU7oj59ahg8gXb1Mg3viqCuk",
		Amount:           100000000000,
		FirstRequestAt:   time.Now().UTC().Truncate(time.Millisecond),
	})
	require.NoError(t, err)

	err = store.SetOutcome(ctx, created.ID, OutcomeDto{
		Status:           "PENDING",
		Detail:           conv.Ptr("PENDING_CONFIRMATIONS"),
		NumConfirmations: 3,
	})
	require.NoError(t, err)
	err = store.SetOutcome(ctx, created.ID, OutcomeDto{Status: "SUCCESS"})
	require.NoError(t, err)

	got, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(100000000000), got.Amount)
	require.Equal(t, "SUCCESS", conv.FromPtr(got.Status))
	require.Nil(t, got.Detail)
	require.Equal(t, 2, got.PollCount)
	require.NotNil(t, got.LastOutcomeAt)
	require.False(t, got.Terminated)

	active, err := AllFromRowsStream(store.GetActive(ctx))
	require.NoError(t, err)
	require.Contains(t, ids(active), created.ID)

	require.NoError(t, store.SetTerminated(ctx, created.ID))

	active, err = AllFromRowsStream(store.GetActive(ctx))
	require.NoError(t, err)
	require.NotContains(t, ids(active), created.ID)

	byTrade, err := AllFromRowsStream(store.GetByTradeID(ctx, tradeID))
	require.NoError(t, err)
	require.Len(t, byTrade, 1)
	require.True(t, byTrade[0].Terminated)
}

func TestPostgresProofStore_notFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNoVerification)

	err = store.SetOutcome(ctx, uuid.New(), OutcomeDto{Status: "SUCCESS"})
	require.ErrorIs(t, err, ErrNoVerification)
}

func ids(vs []Verification) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}
