package ingestion

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
)

// EventSource delivers feed events until ctx is done.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan domain.FeedEvent, error)
}

// LotCleaner removes exhausted lots across all holders.
type LotCleaner interface {
	Cleanup(ctx context.Context, holderID *int64) (int64, error)
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source     EventSource
	Dispatcher *Dispatcher
	Queue      *Queue
	Cleaner    LotCleaner
	// CleanupInterval defaults to 10m.
	CleanupInterval time.Duration
	// DrainTimeout bounds the queue flush on shutdown. Defaults to 30s.
	DrainTimeout time.Duration
	Logger       *zap.Logger
}

// Runner drives live ingestion: it routes feed events through the dispatcher,
// sweeps exhausted lots on an interval and drains the queue on shutdown.
type Runner struct {
	source          EventSource
	dispatcher      *Dispatcher
	queue           *Queue
	cleaner         LotCleaner
	cleanupInterval time.Duration
	drainTimeout    time.Duration
	logger          *zap.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	cleanupInterval := opts.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 10 * time.Minute
	}

	drainTimeout := opts.DrainTimeout
	if drainTimeout == 0 {
		drainTimeout = 30 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		source:          opts.Source,
		dispatcher:      opts.Dispatcher,
		queue:           opts.Queue,
		cleaner:         opts.Cleaner,
		cleanupInterval: cleanupInterval,
		drainTimeout:    drainTimeout,
		logger:          logger.Named("runner"),
	}
}

// Run subscribes to the source and blocks until ctx is cancelled or the
// event channel closes.
func (r *Runner) Run(ctx context.Context) error {
	events, err := r.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	r.logger.Info("runner started", zap.Duration("cleanup_interval", r.cleanupInterval))

	for {
		select {
		case <-ctx.Done():
			r.drain()
			r.logger.Info("runner stopping")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				r.drain()
				return errors.New("feed events channel closed")
			}
			r.dispatcher.Handle(ctx, ev)

		case <-ticker.C:
			r.cleanup(ctx)
		}
	}
}

func (r *Runner) cleanup(ctx context.Context) {
	if r.cleaner == nil {
		return
	}
	n, err := r.cleaner.Cleanup(ctx, nil)
	if err != nil {
		r.logger.Error("lot cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("exhausted lots removed", zap.Int64("count", n))
	}
}

// drain waits for queued events to finish applying.
func (r *Runner) drain() {
	if r.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.drainTimeout)
	defer cancel()
	if err := r.queue.Flush(ctx); err != nil {
		r.logger.Warn("queue not drained before shutdown", zap.Int("remaining", r.queue.Len()), zap.Error(err))
	}
}
