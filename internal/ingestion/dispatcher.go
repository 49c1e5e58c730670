package ingestion

import (
	"context"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/observability"
	"solana-holder-ledger/internal/registry"
)

var connectionStates = []string{
	string(domain.ConnectionConnecting),
	string(domain.ConnectionConnected),
	string(domain.ConnectionDisconnected),
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Queue    *Queue
	Registry *registry.Registry
	Logger   *zap.Logger
}

// Dispatcher routes feed events to the queue or the registry.
type Dispatcher struct {
	queue    *Queue
	registry *registry.Registry
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:    opts.Queue,
		registry: opts.Registry,
		logger:   logger.Named("dispatcher"),
	}
}

// Run consumes events until ctx is done or the channel is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.FeedEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Handle(ctx, ev)
		}
	}
}

// Handle routes one event.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.FeedEvent) {
	observability.RecordFeedEvent(string(ev.Kind()))

	switch e := ev.(type) {
	case domain.TradeEvent:
		d.queue.Enqueue(ctx, e)

	case domain.LaunchEvent:
		if e.TokenAddress == "" {
			d.logger.Warn("launch event without token address")
			return
		}
		if _, err := d.registry.ApplyLaunch(ctx, e); err != nil {
			d.logger.Error("failed to register launched token",
				zap.String("token", e.TokenAddress),
				zap.Error(err),
			)
		}

	case domain.GraduationEvent:
		if e.TokenAddress == "" {
			d.logger.Warn("graduation event without token address")
			return
		}
		if _, err := d.registry.MarkGraduated(ctx, e.TokenAddress, e.BlockTime); err != nil {
			d.logger.Error("failed to mark token graduated",
				zap.String("token", e.TokenAddress),
				zap.Error(err),
			)
		}

	case domain.ConnectionStateEvent:
		observability.SetFeedConnectionState(string(e.State), connectionStates)
		if e.Err != nil {
			d.logger.Warn("feed connection state changed", zap.String("state", string(e.State)), zap.Error(e.Err))
			return
		}
		d.logger.Info("feed connection state changed", zap.String("state", string(e.State)))

	default:
		d.logger.Warn("unknown feed event", zap.String("kind", string(ev.Kind())))
	}
}
