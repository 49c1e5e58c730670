package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/observability"
	"solana-holder-ledger/internal/storage"
)

// SnapshotterOptions configures a Snapshotter.
type SnapshotterOptions struct {
	Aggregator *Aggregator
	Store      storage.ZoneSnapshotStore
	Interval   time.Duration // Default: 5m
	Logger     *zap.Logger
}

// Snapshotter periodically persists zone counts for every token.
type Snapshotter struct {
	aggregator *Aggregator
	store      storage.ZoneSnapshotStore
	interval   time.Duration
	logger     *zap.Logger
}

// NewSnapshotter creates a new Snapshotter.
func NewSnapshotter(opts SnapshotterOptions) *Snapshotter {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{
		aggregator: opts.Aggregator,
		store:      opts.Store,
		interval:   interval,
		logger:     logger.Named("snapshotter"),
	}
}

// Capture computes the token's zones at its last trade price and stores one
// snapshot per zone.
func (s *Snapshotter) Capture(ctx context.Context, token *domain.Token) ([]*domain.ZoneSnapshot, error) {
	zones, err := s.aggregator.zones(ctx, token, 0, 0)
	if err != nil {
		return nil, err
	}
	ts := s.aggregator.now().UnixMilli()

	snaps := make([]*domain.ZoneSnapshot, 0, 3)
	for _, zone := range []domain.Zone{domain.ZoneProfit, domain.ZoneLoss, domain.ZoneBreakEven} {
		b := zones.Bucket(zone)
		snaps = append(snaps, &domain.ZoneSnapshot{
			TokenAddress: token.Address,
			TimestampMs:  ts,
			Zone:         zone,
			HolderCount:  b.HolderCount,
			Balance:      b.Balance.InexactFloat64(),
			ValueUSD:     b.ValueUSD,
			Price:        zones.CurrentPrice,
		})
	}
	if err := s.store.InsertBulk(ctx, snaps); err != nil {
		return nil, fmt.Errorf("insert zone snapshots: %w", err)
	}
	observability.RecordSnapshotsCaptured(len(snaps))
	return snaps, nil
}

// CaptureAll snapshots every known token. A failing token is logged and skipped.
func (s *Snapshotter) CaptureAll(ctx context.Context) (int, error) {
	tokens, err := s.aggregator.repos.Tokens().List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tokens: %w", err)
	}
	captured := 0
	for _, t := range tokens {
		if _, err := s.Capture(ctx, t); err != nil {
			s.logger.Error("zone snapshot failed", zap.String("token", t.Address), zap.Error(err))
			continue
		}
		captured++
	}
	return captured, nil
}

// Run captures snapshots on every interval until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("snapshotter started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.CaptureAll(ctx)
			if err != nil {
				s.logger.Error("snapshot pass failed", zap.Error(err))
				continue
			}
			s.logger.Debug("snapshot pass complete", zap.Int("tokens", n))
		}
	}
}
