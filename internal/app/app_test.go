package app

import (
	"context"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solana-holder-ledger/internal/config"
	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/ingestion"
)

func address(b byte) string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	return base58.Encode(raw)
}

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("USE_MEMORY", "true")
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	return cfg
}

func TestOpenStores_Memory(t *testing.T) {
	cfg := memoryConfig(t)

	stores, err := OpenStores(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer stores.Close()

	assert.NotNil(t, stores.Ledger)
	assert.NotNil(t, stores.Snapshots)
	assert.NotNil(t, stores.Cache)
}

func TestNewLedger_RequiresValidAddresses(t *testing.T) {
	cfg := memoryConfig(t)
	stores, err := OpenStores(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	l := NewLedger(stores, cfg, zap.NewNop())
	ctx := context.Background()

	ev := domain.TradeEvent{
		Signature:     "sig1",
		TokenAddress:  address(1),
		WalletAddress: address(2),
		Type:          domain.TransactionTypeBuy,
		Amount:        decimal.NewFromInt(10),
		PricePerToken: 0.5,
		BlockTime:     1000,
	}
	_, err = l.Processor.Process(ctx, ev)
	require.NoError(t, err)

	seen, err := stores.Cache.Seen(ctx, "sig1")
	require.NoError(t, err)
	assert.True(t, seen, "committed signature is cached")

	ev.Signature = "sig2"
	ev.WalletAddress = "not-an-address"
	_, err = l.Processor.Process(ctx, ev)
	assert.ErrorIs(t, err, ingestion.ErrValidation)

	z, err := l.Aggregator.ProfitLossZones(ctx, address(1), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, cfg.Analytics.ZoneTolerance, z.Tolerance)
	assert.Equal(t, 1, z.BreakEven.HolderCount)
}
