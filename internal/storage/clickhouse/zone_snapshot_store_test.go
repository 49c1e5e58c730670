package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

func TestZoneSnapshotStore_InsertBulkAndGetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewZoneSnapshotStore(conn)
	ctx := context.Background()

	snaps := []*domain.ZoneSnapshot{
		{TokenAddress: "Mint111", TimestampMs: 1000, Zone: domain.ZoneProfit, HolderCount: 3, Balance: 30, ValueUSD: 60, Price: 2},
		{TokenAddress: "Mint111", TimestampMs: 1000, Zone: domain.ZoneLoss, HolderCount: 1, Balance: 5, ValueUSD: 10, Price: 2},
		{TokenAddress: "Mint111", TimestampMs: 2000, Zone: domain.ZoneBreakEven, HolderCount: 2, Balance: 7, ValueUSD: 14, Price: 2},
		{TokenAddress: "Mint222", TimestampMs: 1000, Zone: domain.ZoneProfit, HolderCount: 9},
	}
	require.NoError(t, store.InsertBulk(ctx, snaps))

	got, err := store.GetByTimeRange(ctx, "Mint111", 0, 1500)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ZoneLoss, got[0].Zone)
	assert.Equal(t, domain.ZoneProfit, got[1].Zone)
	assert.Equal(t, 3, got[1].HolderCount)
	assert.Equal(t, 60.0, got[1].ValueUSD)

	all, err := store.GetByTimeRange(ctx, "Mint111", 0, 5000)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestZoneSnapshotStore_Duplicates(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewZoneSnapshotStore(conn)
	ctx := context.Background()

	snap := &domain.ZoneSnapshot{TokenAddress: "Mint111", TimestampMs: 1000, Zone: domain.ZoneProfit, HolderCount: 1}
	require.NoError(t, store.InsertBulk(ctx, []*domain.ZoneSnapshot{snap}))

	err := store.InsertBulk(ctx, []*domain.ZoneSnapshot{snap})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	dupBatch := []*domain.ZoneSnapshot{
		{TokenAddress: "Mint111", TimestampMs: 3000, Zone: domain.ZoneLoss},
		{TokenAddress: "Mint111", TimestampMs: 3000, Zone: domain.ZoneLoss},
	}
	assert.ErrorIs(t, store.InsertBulk(ctx, dupBatch), storage.ErrDuplicateKey)

	got, err := store.GetByTimeRange(ctx, "Mint111", 3000, 3000)
	require.NoError(t, err)
	assert.Empty(t, got)
}
