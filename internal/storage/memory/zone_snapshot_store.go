package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// ZoneSnapshotStore is an in-memory implementation of storage.ZoneSnapshotStore.
type ZoneSnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ZoneSnapshot // keyed by (token_address, timestamp_ms, zone)
}

// NewZoneSnapshotStore creates a new in-memory zone snapshot store.
func NewZoneSnapshotStore() *ZoneSnapshotStore {
	return &ZoneSnapshotStore{
		data: make(map[string]*domain.ZoneSnapshot),
	}
}

func snapshotKey(s *domain.ZoneSnapshot) string {
	return fmt.Sprintf("%s|%d|%s", s.TokenAddress, s.TimestampMs, s.Zone)
}

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate.
func (s *ZoneSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.ZoneSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.TokenAddress == "" || snap.Zone == "" {
			return storage.ErrInvalidInput
		}
		key := snapshotKey(snap)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, snap := range snapshots {
		cp := *snap
		s.data[snapshotKey(snap)] = &cp
	}
	return nil
}

// GetByTimeRange retrieves snapshots for a token within [start, end] (inclusive).
func (s *ZoneSnapshotStore) GetByTimeRange(_ context.Context, tokenAddress string, start, end int64) ([]*domain.ZoneSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ZoneSnapshot
	for _, snap := range s.data {
		if snap.TokenAddress == tokenAddress && snap.TimestampMs >= start && snap.TimestampMs <= end {
			cp := *snap
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TimestampMs != result[j].TimestampMs {
			return result[i].TimestampMs < result[j].TimestampMs
		}
		return result[i].Zone < result[j].Zone
	})
	return result, nil
}

var _ storage.ZoneSnapshotStore = (*ZoneSnapshotStore)(nil)
