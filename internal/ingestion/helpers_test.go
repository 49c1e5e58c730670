package ingestion

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/ledger"
	"solana-holder-ledger/internal/position"
	"solana-holder-ledger/internal/registry"
	"solana-holder-ledger/internal/storage"
	"solana-holder-ledger/internal/storage/memory"
)

const (
	testMint   = "MintAAA"
	testWallet = "WalletAAA"
)

type harness struct {
	store     *memory.Store
	registry  *registry.Registry
	engine    *ledger.Engine
	processor *Processor
	cache     *memory.SignatureCache
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, memory.NewStore(), nil)
}

func newHarnessWithStore(t *testing.T, base *memory.Store, store storage.Store) *harness {
	t.Helper()
	if store == nil {
		store = base
	}
	reg := registry.New(store, registry.Options{})
	engine := ledger.NewEngine(store, ledger.Options{})
	cache := memory.NewSignatureCache(0)
	proc := NewProcessor(ProcessorOptions{
		Store:    store,
		Registry: reg,
		Updater:  position.NewUpdater(engine, position.Options{}),
		Cache:    cache,
	})
	return &harness{store: base, registry: reg, engine: engine, processor: proc, cache: cache}
}

func (h *harness) holder(t *testing.T, mint, wallet string) *domain.Holder {
	t.Helper()
	ctx := context.Background()
	tok, err := h.store.Tokens().GetByAddress(ctx, mint)
	if err != nil {
		t.Fatalf("get token %s: %v", mint, err)
	}
	hd, err := h.store.Holders().GetByWallet(ctx, tok.ID, wallet)
	if err != nil {
		t.Fatalf("get holder %s: %v", wallet, err)
	}
	return hd
}

func trade(sig string, typ domain.TransactionType, amount string, price float64, blockTime int64) domain.TradeEvent {
	return domain.TradeEvent{
		Signature:     sig,
		TokenAddress:  testMint,
		WalletAddress: testWallet,
		Type:          typ,
		Amount:        decimal.RequireFromString(amount),
		PricePerToken: price,
		TotalValue:    price * decimal.RequireFromString(amount).InexactFloat64(),
		BlockTime:     blockTime,
		Slot:          blockTime * 10,
	}
}

// recordingApplier is an Applier that records call order.
type recordingApplier struct {
	mu          sync.Mutex
	order       []string
	committed   map[string]bool
	fail        map[string]error
	gate        map[string]chan struct{}
	inFlight    int
	maxInFlight int
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{
		committed: make(map[string]bool),
		fail:      make(map[string]error),
		gate:      make(map[string]chan struct{}),
	}
}

func (a *recordingApplier) Process(_ context.Context, ev domain.TradeEvent) (*Applied, error) {
	a.mu.Lock()
	a.inFlight++
	if a.inFlight > a.maxInFlight {
		a.maxInFlight = a.inFlight
	}
	gate := a.gate[ev.Signature]
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight--
	a.order = append(a.order, ev.Signature)
	if err := a.fail[ev.Signature]; err != nil {
		return nil, err
	}
	if a.committed[ev.Signature] {
		return nil, fmt.Errorf("%s: %w", ev.Signature, ErrDuplicateTransaction)
	}
	a.committed[ev.Signature] = true
	return &Applied{}, nil
}

func (a *recordingApplier) Committed(_ context.Context, signature string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed[signature], nil
}

func (a *recordingApplier) applied() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order...)
}

// failingLotsStore makes lot inserts fail inside units of work.
type failingLotsStore struct {
	*memory.Store
	err error
}

func (s *failingLotsStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Repositories) error) error {
	return s.Store.WithTx(ctx, func(ctx context.Context, tx storage.Repositories) error {
		return fn(ctx, failingLotsRepos{Repositories: tx, err: s.err})
	})
}

type failingLotsRepos struct {
	storage.Repositories
	err error
}

func (r failingLotsRepos) Lots() storage.LotStore {
	return failingLots{LotStore: r.Repositories.Lots(), err: r.err}
}

type failingLots struct {
	storage.LotStore
	err error
}

func (l failingLots) Insert(context.Context, *domain.CostBasisLot) error {
	return l.err
}
