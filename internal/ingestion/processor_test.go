package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage/memory"
)

func TestProcessor_BuyThenSell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.processor.Process(ctx, trade("buy1", domain.TransactionTypeBuy, "100", 1, 1000))
	require.NoError(t, err)
	_, err = h.processor.Process(ctx, trade("buy2", domain.TransactionTypeBuy, "100", 2, 2000))
	require.NoError(t, err)
	out, err := h.processor.Process(ctx, trade("sell1", domain.TransactionTypeSell, "150", 3, 3000))
	require.NoError(t, err)

	require.NotNil(t, out.Sale)
	assert.InDelta(t, 250.0, out.Sale.RealizedPnL, 1e-9)

	holder := h.holder(t, testMint, testWallet)
	assert.True(t, holder.Balance.Equal(decimal.NewFromInt(50)))
	assert.True(t, holder.TotalBought.Equal(decimal.NewFromInt(200)))
	assert.True(t, holder.TotalSold.Equal(decimal.NewFromInt(150)))
	assert.InDelta(t, 250.0, holder.RealizedPnL, 1e-9)
	assert.InDelta(t, 2.0, holder.AvgBuyPrice, 1e-9)
	assert.Equal(t, int64(3), holder.TransactionCount)
	assert.Equal(t, int64(3000), holder.LastActivity)
	require.NotNil(t, holder.FirstBuyTimestamp)
	assert.Equal(t, int64(1000), *holder.FirstBuyTimestamp)
	assert.True(t, holder.IsActive)

	lots, err := h.store.Lots().ListOpen(ctx, holder.ID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.True(t, lots[0].RemainingAmount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 2.0, lots[0].PricePerToken)
}

func TestProcessor_DuplicateSignatureIsNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := trade("dup", domain.TransactionTypeBuy, "10", 1, 1000)
	_, err := h.processor.Process(ctx, ev)
	require.NoError(t, err)

	before := h.holder(t, testMint, testWallet)

	_, err = h.processor.Process(ctx, ev)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)

	after := h.holder(t, testMint, testWallet)
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Equal(t, before.TransactionCount, after.TransactionCount)

	lots, err := h.store.Lots().ListOpen(ctx, after.ID)
	require.NoError(t, err)
	assert.Len(t, lots, 1)
}

func TestProcessor_DuplicateDetectedWithoutCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := trade("dup", domain.TransactionTypeBuy, "10", 1, 1000)
	_, err := h.processor.Process(ctx, ev)
	require.NoError(t, err)

	// A fresh processor over the same store has an empty cache.
	other := newHarnessWithStore(t, h.store, nil)
	_, err = other.processor.Process(ctx, ev)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestProcessor_MarksCacheAfterCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.processor.Process(ctx, trade("cached", domain.TransactionTypeBuy, "1", 1, 1000))
	require.NoError(t, err)

	seen, err := h.cache.Seen(ctx, "cached")
	require.NoError(t, err)
	assert.True(t, seen)

	committed, err := h.processor.Committed(ctx, "cached")
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestProcessor_ValidationError(t *testing.T) {
	h := newHarness(t)
	ev := trade("", domain.TransactionTypeBuy, "1", 1, 1000)

	_, err := h.processor.Process(context.Background(), ev)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.store.Tokens().GetByAddress(context.Background(), testMint)
	assert.Error(t, err, "nothing should be registered for an invalid event")
}

func TestProcessor_FailureRollsBackWholeUnit(t *testing.T) {
	base := memory.NewStore()
	boom := errors.New("lot insert failed")
	h := newHarnessWithStore(t, base, &failingLotsStore{Store: base, err: boom})
	ctx := context.Background()

	_, err := h.processor.Process(ctx, trade("buy1", domain.TransactionTypeBuy, "10", 1, 1000))
	require.ErrorIs(t, err, boom)

	exists, err := base.Transactions().Exists(ctx, "buy1")
	require.NoError(t, err)
	assert.False(t, exists, "signature must not be committed")

	_, err = base.Tokens().GetByAddress(ctx, testMint)
	assert.Error(t, err, "token row must be rolled back")

	seen, err := h.cache.Seen(ctx, "buy1")
	require.NoError(t, err)
	assert.False(t, seen)

	// Redelivery against a healthy store applies it.
	healthy := newHarnessWithStore(t, base, nil)
	_, err = healthy.processor.Process(ctx, trade("buy1", domain.TransactionTypeBuy, "10", 1, 1000))
	require.NoError(t, err)
	assert.True(t, healthy.holder(t, testMint, testWallet).Balance.Equal(decimal.NewFromInt(10)))
}

func TestProcessor_TransferDoesNotTouchLots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.processor.Process(ctx, trade("buy1", domain.TransactionTypeBuy, "10", 2, 1000))
	require.NoError(t, err)
	_, err = h.processor.Process(ctx, trade("out1", domain.TransactionTypeTransfer, "-4", 0, 1100))
	require.NoError(t, err)

	holder := h.holder(t, testMint, testWallet)
	assert.True(t, holder.Balance.Equal(decimal.NewFromInt(6)))
	assert.InDelta(t, 2.0, holder.AvgBuyPrice, 1e-9)

	lots, err := h.store.Lots().ListOpen(ctx, holder.ID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.True(t, lots[0].RemainingAmount.Equal(decimal.NewFromInt(10)))
}

func TestProcessor_OversellStillRecorded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.processor.Process(ctx, trade("sell1", domain.TransactionTypeSell, "10", 5, 1000))
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Sale.RealizedPnL)
	assert.True(t, out.Sale.Oversold())

	holder := h.holder(t, testMint, testWallet)
	assert.True(t, holder.Balance.Equal(decimal.NewFromInt(-10)))
	assert.False(t, holder.IsActive)

	exists, err := h.store.Transactions().Exists(ctx, "sell1")
	require.NoError(t, err)
	assert.True(t, exists)
}
