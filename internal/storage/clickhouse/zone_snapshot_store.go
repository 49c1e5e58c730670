package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/observability"
	"solana-holder-ledger/internal/storage"
)

// ZoneSnapshotStore implements storage.ZoneSnapshotStore using ClickHouse.
type ZoneSnapshotStore struct {
	conn *Conn
}

// NewZoneSnapshotStore creates a new ZoneSnapshotStore.
func NewZoneSnapshotStore(conn *Conn) *ZoneSnapshotStore {
	return &ZoneSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ZoneSnapshotStore = (*ZoneSnapshotStore)(nil)

type snapshotKey struct {
	tokenAddress string
	timestampMs  int64
	zone         domain.Zone
}

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate (token_address, timestamp_ms, zone).
func (s *ZoneSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.ZoneSnapshot) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_zone_snapshots", time.Since(start).Seconds(), err)
	}()

	if len(snapshots) == 0 {
		return nil
	}

	// MergeTree does not enforce keys, so duplicates are checked up front.
	seen := make(map[snapshotKey]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.TokenAddress == "" || snap.Zone == "" {
			return storage.ErrInvalidInput
		}
		k := snapshotKey{snap.TokenAddress, snap.TimestampMs, snap.Zone}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for k := range seen {
		exists, err := s.exists(ctx, k)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO zone_snapshots (
			token_address, timestamp_ms, zone, holder_count, balance, value_usd, price
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		err = batch.Append(
			snap.TokenAddress, snap.TimestampMs, string(snap.Zone),
			uint32(snap.HolderCount), snap.Balance, snap.ValueUSD, snap.Price,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves snapshots for a token within [start, end] (inclusive).
func (s *ZoneSnapshotStore) GetByTimeRange(ctx context.Context, tokenAddress string, start, end int64) ([]*domain.ZoneSnapshot, error) {
	query := `
		SELECT token_address, timestamp_ms, zone, holder_count, balance, value_usd, price
		FROM zone_snapshots FINAL
		WHERE token_address = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, zone ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenAddress, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanZoneSnapshots(rows)
}

func (s *ZoneSnapshotStore) exists(ctx context.Context, k snapshotKey) (bool, error) {
	query := `
		SELECT count(*) FROM zone_snapshots
		WHERE token_address = ? AND timestamp_ms = ? AND zone = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, k.tokenAddress, k.timestampMs, string(k.zone)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanZoneSnapshots(rows chRows) ([]*domain.ZoneSnapshot, error) {
	var result []*domain.ZoneSnapshot

	for rows.Next() {
		var snap domain.ZoneSnapshot
		var zone string
		var holderCount uint32

		err := rows.Scan(
			&snap.TokenAddress, &snap.TimestampMs, &zone,
			&holderCount, &snap.Balance, &snap.ValueUSD, &snap.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("scan zone snapshot row: %w", err)
		}

		snap.Zone = domain.Zone(zone)
		snap.HolderCount = int(holderCount)
		result = append(result, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zone snapshot rows: %w", err)
	}
	return result, nil
}
