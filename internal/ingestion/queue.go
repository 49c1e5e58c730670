package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/observability"
)

// Applier applies one trade event. *Processor implements it.
type Applier interface {
	Process(ctx context.Context, ev domain.TradeEvent) (*Applied, error)
	Committed(ctx context.Context, signature string) (bool, error)
}

// QueueState is the drain state of a Queue.
type QueueState int

// Queue states.
const (
	QueueIdle QueueState = iota
	QueueDraining
)

func (s QueueState) String() string {
	if s == QueueDraining {
		return "draining"
	}
	return "idle"
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Applier Applier
	Logger  *zap.Logger
}

// Queue applies trade events strictly one at a time in arrival order.
//
// Enqueue never blocks on processing. At most one drain goroutine runs; it
// starts on the first event enqueued while idle and returns to idle once the
// buffer is empty. A failing event is logged and skipped.
type Queue struct {
	applier Applier
	logger  *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	state   QueueState
	buf     []domain.TradeEvent
	pending map[string]struct{}
	held    map[string][]domain.TradeEvent // paused tokens
	active  string                         // token of the event being applied
	done    chan struct{}                  // closed when the current drain ends
}

// NewQueue creates an idle Queue.
func NewQueue(opts QueueOptions) *Queue {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		applier: opts.Applier,
		logger:  logger.Named("queue"),
		pending: make(map[string]struct{}),
		held:    make(map[string][]domain.TradeEvent),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends ev unless its signature is already pending or committed.
// It reports whether ev was accepted.
func (q *Queue) Enqueue(ctx context.Context, ev domain.TradeEvent) bool {
	if q.isPending(ev.Signature) {
		observability.RecordDuplicate("pending")
		return false
	}

	committed, err := q.applier.Committed(ctx, ev.Signature)
	if err != nil {
		// The processor re-checks inside the unit of work.
		q.logger.Warn("dedupe check failed", zap.String("signature", ev.Signature), zap.Error(err))
	}
	if committed {
		observability.RecordDuplicate("enqueue")
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[ev.Signature]; ok {
		observability.RecordDuplicate("pending")
		return false
	}
	q.pending[ev.Signature] = struct{}{}

	if held, paused := q.held[ev.TokenAddress]; paused {
		q.held[ev.TokenAddress] = append(held, ev)
		return true
	}

	q.buf = append(q.buf, ev)
	q.startLocked(ctx)
	observability.UpdateQueueDepth(len(q.buf))
	return true
}

// Flush blocks until the queue is idle or ctx is done.
func (q *Queue) Flush(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.state == QueueIdle {
			q.mu.Unlock()
			return nil
		}
		done := q.done
		q.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Len returns the number of buffered events, excluding those held for paused tokens.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// State returns the current drain state.
func (q *Queue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// PauseToken holds back live events for token until ResumeToken. It returns
// once no event of token is being applied, so the caller has exclusive use
// of that token's history. Buffered events of token move to the held list in
// arrival order.
func (q *Queue) PauseToken(token string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.held[token]; !ok {
		q.held[token] = nil
	}
	kept := q.buf[:0]
	for _, ev := range q.buf {
		if ev.TokenAddress == token {
			q.held[token] = append(q.held[token], ev)
			continue
		}
		kept = append(kept, ev)
	}
	q.buf = kept
	observability.UpdateQueueDepth(len(q.buf))

	for q.active == token {
		q.cond.Wait()
	}
}

// ResumeToken releases events held for token to the back of the queue.
func (q *Queue) ResumeToken(ctx context.Context, token string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	held, ok := q.held[token]
	if !ok {
		return
	}
	delete(q.held, token)
	q.buf = append(q.buf, held...)
	if len(q.buf) > 0 {
		q.startLocked(ctx)
	}
	observability.UpdateQueueDepth(len(q.buf))
}

func (q *Queue) isPending(signature string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[signature]
	return ok
}

// startLocked starts the drain goroutine if the queue is idle. q.mu must be held.
func (q *Queue) startLocked(ctx context.Context) {
	if q.state == QueueDraining {
		return
	}
	q.state = QueueDraining
	q.done = make(chan struct{})
	go q.drain(context.WithoutCancel(ctx), q.done)
}

func (q *Queue) drain(ctx context.Context, done chan struct{}) {
	for {
		q.mu.Lock()
		if len(q.buf) == 0 {
			q.state = QueueIdle
			q.done = nil
			close(done)
			q.mu.Unlock()
			return
		}
		ev := q.buf[0]
		q.buf[0] = domain.TradeEvent{}
		q.buf = q.buf[1:]
		q.active = ev.TokenAddress
		observability.UpdateQueueDepth(len(q.buf))
		q.mu.Unlock()

		q.apply(ctx, ev)

		q.mu.Lock()
		q.active = ""
		delete(q.pending, ev.Signature)
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// apply runs one event and contains its failure.
func (q *Queue) apply(ctx context.Context, ev domain.TradeEvent) {
	fields := []zap.Field{
		zap.String("signature", ev.Signature),
		zap.String("token", ev.TokenAddress),
		zap.String("wallet", ev.WalletAddress),
		zap.String("type", string(ev.Type)),
	}

	defer func() {
		if r := recover(); r != nil {
			observability.RecordApplyFailure()
			q.logger.Error("panic applying transaction", append(fields, zap.Any("panic", r))...)
		}
	}()

	_, err := q.applier.Process(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicateTransaction):
		q.logger.Debug("duplicate transaction skipped", fields...)
	case errors.Is(err, ErrValidation):
		q.logger.Warn("invalid transaction dropped", append(fields, zap.Error(err))...)
	default:
		q.logger.Error("failed to apply transaction", append(fields, zap.Error(fmt.Errorf("apply: %w", err)))...)
	}
}
