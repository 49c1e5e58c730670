package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"solana-holder-ledger/internal/domain"
)

func flush(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Flush(ctx))
}

func tokenTrade(sig, token string) domain.TradeEvent {
	ev := trade(sig, domain.TransactionTypeBuy, "1", 1, 1000)
	ev.TokenAddress = token
	return ev
}

func TestQueue_AppliesInArrivalOrder(t *testing.T) {
	applier := newRecordingApplier()
	q := NewQueue(QueueOptions{Applier: applier})
	ctx := context.Background()

	var want []string
	for i := 0; i < 50; i++ {
		sig := fmt.Sprintf("sig%02d", i)
		want = append(want, sig)
		assert.True(t, q.Enqueue(ctx, tokenTrade(sig, testMint)))
	}
	flush(t, q)

	assert.Equal(t, want, applier.applied())
	assert.Equal(t, 1, applier.maxInFlight, "at most one event may be applied at a time")
	assert.Equal(t, QueueIdle, q.State())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ArrivalsDuringDrainAreProcessed(t *testing.T) {
	applier := newRecordingApplier()
	gate := make(chan struct{})
	applier.gate["first"] = gate
	q := NewQueue(QueueOptions{Applier: applier})
	ctx := context.Background()

	q.Enqueue(ctx, tokenTrade("first", testMint))
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, QueueDraining, q.State())

	q.Enqueue(ctx, tokenTrade("second", testMint))
	q.Enqueue(ctx, tokenTrade("third", testMint))
	assert.Equal(t, 2, q.Len())

	close(gate)
	flush(t, q)
	assert.Equal(t, []string{"first", "second", "third"}, applier.applied())
}

func TestQueue_FailureDoesNotHaltDrain(t *testing.T) {
	applier := newRecordingApplier()
	applier.fail["bad"] = errors.New("store unavailable")
	core, logs := observer.New(zap.ErrorLevel)
	q := NewQueue(QueueOptions{Applier: applier, Logger: zap.New(core)})
	ctx := context.Background()

	q.Enqueue(ctx, tokenTrade("ok1", testMint))
	q.Enqueue(ctx, tokenTrade("bad", testMint))
	q.Enqueue(ctx, tokenTrade("ok2", testMint))
	flush(t, q)

	assert.Equal(t, []string{"ok1", "bad", "ok2"}, applier.applied())

	entries := logs.FilterMessage("failed to apply transaction").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "bad", fields["signature"])
	assert.Equal(t, testMint, fields["token"])
	assert.Equal(t, testWallet, fields["wallet"])
	assert.Equal(t, "buy", fields["type"])
}

func TestQueue_FailedEventCanBeRedelivered(t *testing.T) {
	applier := newRecordingApplier()
	applier.fail["retry"] = errors.New("transient")
	q := NewQueue(QueueOptions{Applier: applier})
	ctx := context.Background()

	q.Enqueue(ctx, tokenTrade("retry", testMint))
	flush(t, q)

	applier.mu.Lock()
	delete(applier.fail, "retry")
	applier.mu.Unlock()

	assert.True(t, q.Enqueue(ctx, tokenTrade("retry", testMint)))
	flush(t, q)

	committed, _ := applier.Committed(ctx, "retry")
	assert.True(t, committed)
}

func TestQueue_DropsCommittedAndPendingSignatures(t *testing.T) {
	applier := newRecordingApplier()
	applier.committed["done"] = true
	gate := make(chan struct{})
	applier.gate["blocker"] = gate
	q := NewQueue(QueueOptions{Applier: applier})
	ctx := context.Background()

	assert.False(t, q.Enqueue(ctx, tokenTrade("done", testMint)), "committed signature must be dropped")

	assert.True(t, q.Enqueue(ctx, tokenTrade("blocker", testMint)))
	assert.True(t, q.Enqueue(ctx, tokenTrade("waiting", testMint)))
	assert.False(t, q.Enqueue(ctx, tokenTrade("waiting", testMint)), "pending signature must be dropped")
	assert.False(t, q.Enqueue(ctx, tokenTrade("blocker", testMint)), "in-flight signature must be dropped")

	close(gate)
	flush(t, q)
	assert.Equal(t, []string{"blocker", "waiting"}, applier.applied())
}

func TestQueue_PanicIsContained(t *testing.T) {
	q := NewQueue(QueueOptions{Applier: panickyApplier{}})
	ctx := context.Background()

	q.Enqueue(ctx, tokenTrade("boom", testMint))
	q.Enqueue(ctx, tokenTrade("boom2", testMint))
	flush(t, q)
	assert.Equal(t, QueueIdle, q.State())
}

type panickyApplier struct{}

func (panickyApplier) Process(context.Context, domain.TradeEvent) (*Applied, error) {
	panic("unexpected")
}

func (panickyApplier) Committed(context.Context, string) (bool, error) { return false, nil }

func TestQueue_PauseHoldsTokenEvents(t *testing.T) {
	applier := newRecordingApplier()
	q := NewQueue(QueueOptions{Applier: applier})
	ctx := context.Background()

	q.PauseToken("TokenA")

	q.Enqueue(ctx, tokenTrade("a1", "TokenA"))
	q.Enqueue(ctx, tokenTrade("b1", "TokenB"))
	q.Enqueue(ctx, tokenTrade("a2", "TokenA"))
	flush(t, q)

	assert.Equal(t, []string{"b1"}, applier.applied(), "other tokens keep flowing")

	q.ResumeToken(ctx, "TokenA")
	flush(t, q)
	assert.Equal(t, []string{"b1", "a1", "a2"}, applier.applied())
}

func TestQueue_PauseWaitsForInFlightEvent(t *testing.T) {
	applier := newRecordingApplier()
	gate := make(chan struct{})
	applier.gate["a1"] = gate
	q := NewQueue(QueueOptions{Applier: applier})
	ctx := context.Background()

	q.Enqueue(ctx, tokenTrade("a1", "TokenA"))
	q.Enqueue(ctx, tokenTrade("a2", "TokenA"))
	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)

	paused := make(chan struct{})
	go func() {
		q.PauseToken("TokenA")
		close(paused)
	}()

	select {
	case <-paused:
		t.Fatal("PauseToken returned while an event of the token was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-paused:
	case <-time.After(time.Second):
		t.Fatal("PauseToken did not return after the in-flight event finished")
	}

	flush(t, q)
	assert.Equal(t, []string{"a1"}, applier.applied(), "buffered event must be held")

	q.ResumeToken(ctx, "TokenA")
	flush(t, q)
	assert.Equal(t, []string{"a1", "a2"}, applier.applied())
}

func TestQueue_WithProcessor(t *testing.T) {
	h := newHarness(t)
	q := NewQueue(QueueOptions{Applier: h.processor})
	ctx := context.Background()

	q.Enqueue(ctx, trade("buy1", domain.TransactionTypeBuy, "100", 1, 1000))
	q.Enqueue(ctx, trade("buy2", domain.TransactionTypeBuy, "100", 2, 2000))
	q.Enqueue(ctx, trade("sell1", domain.TransactionTypeSell, "150", 3, 3000))
	// At-least-once redelivery.
	q.Enqueue(ctx, trade("buy1", domain.TransactionTypeBuy, "100", 1, 1000))
	flush(t, q)

	assert.False(t, q.Enqueue(ctx, trade("buy2", domain.TransactionTypeBuy, "100", 2, 2000)))

	holder := h.holder(t, testMint, testWallet)
	assert.True(t, holder.Balance.Equal(decimal.NewFromInt(50)))
	assert.InDelta(t, 250.0, holder.RealizedPnL, 1e-9)
	assert.Equal(t, int64(3), holder.TransactionCount)
}

func TestQueueState_String(t *testing.T) {
	assert.Equal(t, "idle", QueueIdle.String())
	assert.Equal(t, "draining", QueueDraining.String())
}
