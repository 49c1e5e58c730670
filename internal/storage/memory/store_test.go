package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

func seedHolder(t *testing.T, s *Store) (*domain.Token, *domain.Holder) {
	t.Helper()
	ctx := context.Background()

	tok := &domain.Token{Address: "Mint111", Decimals: 6}
	if err := s.Tokens().Insert(ctx, tok); err != nil {
		t.Fatalf("Insert token failed: %v", err)
	}
	h := domain.NewHolder(tok.ID, "Wallet111")
	if err := s.Holders().Insert(ctx, h); err != nil {
		t.Fatalf("Insert holder failed: %v", err)
	}
	return tok, h
}

func TestTokenStore_InsertAndGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tok := &domain.Token{Address: "Mint111", Decimals: 9}
	if err := s.Tokens().Insert(ctx, tok); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if tok.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}
	if tok.Status != domain.TokenStatusTracking {
		t.Errorf("expected default status tracking, got %s", tok.Status)
	}

	got, err := s.Tokens().GetByAddress(ctx, "Mint111")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if got.ID != tok.ID || got.Decimals != 9 {
		t.Errorf("unexpected token: %+v", got)
	}

	if err := s.Tokens().Insert(ctx, &domain.Token{Address: "Mint111"}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := s.Tokens().GetByAddress(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTokenStore_UpdateStatusAndMetadata(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tok, _ := seedHolder(t, s)

	sym := "ABC"
	if err := s.Tokens().UpdateMetadata(ctx, tok.ID, &sym, nil, 6); err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}
	ts := int64(1700000000)
	if err := s.Tokens().UpdateStatus(ctx, tok.ID, domain.TokenStatusGraduated, &ts); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, _ := s.Tokens().GetByID(ctx, tok.ID)
	if got.Symbol == nil || *got.Symbol != "ABC" {
		t.Errorf("expected symbol ABC, got %v", got.Symbol)
	}
	if got.Status != domain.TokenStatusGraduated || got.GraduatedAt == nil || *got.GraduatedAt != ts {
		t.Errorf("unexpected status: %+v", got)
	}

	sym = "XYZ"
	again, _ := s.Tokens().GetByID(ctx, tok.ID)
	if *again.Symbol != "ABC" {
		t.Error("stored token must not alias caller memory")
	}
}

func TestHolderStore_UniquePair(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tok, h := seedHolder(t, s)

	err := s.Holders().Insert(ctx, domain.NewHolder(tok.ID, "Wallet111"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := s.Holders().GetByWallet(ctx, tok.ID, "Wallet111")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if got.ID != h.ID {
		t.Errorf("expected holder %d, got %d", h.ID, got.ID)
	}
}

func TestHolderStore_ListActive(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tok, h := seedHolder(t, s)

	other := domain.NewHolder(tok.ID, "Wallet222")
	if err := s.Holders().Insert(ctx, other); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	h.Balance = decimal.NewFromInt(5)
	h.RefreshActive()
	if err := s.Holders().Update(ctx, h); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	all, _ := s.Holders().ListByToken(ctx, tok.ID)
	if len(all) != 2 {
		t.Errorf("expected 2 holders, got %d", len(all))
	}
	active, _ := s.Holders().ListActiveByToken(ctx, tok.ID)
	if len(active) != 1 || active[0].ID != h.ID {
		t.Errorf("expected only holder %d active, got %+v", h.ID, active)
	}
}

func TestTransactionStore_ExistsAndLastPrice(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tok, h := seedHolder(t, s)

	txs := []*domain.TransactionEvent{
		{Signature: "sig1", TokenID: tok.ID, HolderID: h.ID, Type: domain.TransactionTypeBuy, Amount: decimal.NewFromInt(1), PricePerToken: 1.5, BlockTime: 100},
		{Signature: "sig2", TokenID: tok.ID, HolderID: h.ID, Type: domain.TransactionTypeSell, Amount: decimal.NewFromInt(1), PricePerToken: 2.5, BlockTime: 200},
		{Signature: "sig3", TokenID: tok.ID, HolderID: h.ID, Type: domain.TransactionTypeTransfer, Amount: decimal.NewFromInt(-1), BlockTime: 300},
	}
	for _, tx := range txs {
		if err := s.Transactions().Insert(ctx, tx); err != nil {
			t.Fatalf("Insert %s failed: %v", tx.Signature, err)
		}
	}

	ok, _ := s.Transactions().Exists(ctx, "sig2")
	if !ok {
		t.Error("expected sig2 to exist")
	}
	ok, _ = s.Transactions().Exists(ctx, "sig9")
	if ok {
		t.Error("expected sig9 to be absent")
	}

	price, err := s.Transactions().LastPrice(ctx, tok.ID)
	if err != nil {
		t.Fatalf("LastPrice failed: %v", err)
	}
	if price != 2.5 {
		t.Errorf("expected last price 2.5, got %v", price)
	}

	if err := s.Transactions().Insert(ctx, txs[0]); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	list, _ := s.Transactions().ListByHolder(ctx, h.ID)
	if len(list) != 3 || list[0].Signature != "sig1" || list[2].Signature != "sig3" {
		t.Errorf("unexpected order: %+v", list)
	}
}

func TestLotStore_FIFOOrderAndBounds(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, h := seedHolder(t, s)

	mk := func(ts int64, amt int64) *domain.CostBasisLot {
		return &domain.CostBasisLot{
			HolderID:          h.ID,
			OriginalAmount:    decimal.NewFromInt(amt),
			RemainingAmount:   decimal.NewFromInt(amt),
			PricePerToken:     1,
			PurchaseTimestamp: ts,
		}
	}
	late := mk(200, 1)
	early := mk(100, 2)
	tie := mk(100, 3)
	for _, l := range []*domain.CostBasisLot{late, early, tie} {
		if err := s.Lots().Insert(ctx, l); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	open, _ := s.Lots().ListOpen(ctx, h.ID)
	if len(open) != 3 {
		t.Fatalf("expected 3 open lots, got %d", len(open))
	}
	if open[0].ID != early.ID || open[1].ID != tie.ID || open[2].ID != late.ID {
		t.Errorf("unexpected FIFO order: %d %d %d", open[0].ID, open[1].ID, open[2].ID)
	}

	if err := s.Lots().UpdateRemaining(ctx, early.ID, decimal.NewFromInt(3)); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput above original, got %v", err)
	}
	if err := s.Lots().UpdateRemaining(ctx, early.ID, decimal.NewFromInt(-1)); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput below zero, got %v", err)
	}
	if err := s.Lots().UpdateRemaining(ctx, early.ID, decimal.Zero); err != nil {
		t.Fatalf("UpdateRemaining failed: %v", err)
	}

	open, _ = s.Lots().ListOpen(ctx, h.ID)
	if len(open) != 2 {
		t.Errorf("expected 2 open lots, got %d", len(open))
	}

	n, err := s.Lots().DeleteExhausted(ctx, &h.ID)
	if err != nil {
		t.Fatalf("DeleteExhausted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted lot, got %d", n)
	}
}

func TestStore_WithTxRollback(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tok, h := seedHolder(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Repositories) error {
		if err := tx.Transactions().Insert(ctx, &domain.TransactionEvent{
			Signature: "sig1", TokenID: tok.ID, HolderID: h.ID,
			Type: domain.TransactionTypeBuy, Amount: decimal.NewFromInt(1),
		}); err != nil {
			return err
		}
		h.Balance = decimal.NewFromInt(1)
		if err := tx.Holders().Update(ctx, h); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if ok, _ := s.Transactions().Exists(ctx, "sig1"); ok {
		t.Error("rolled back signature must not be visible")
	}
	got, _ := s.Holders().GetByID(ctx, h.ID)
	if !got.Balance.IsZero() {
		t.Errorf("expected balance 0 after rollback, got %s", got.Balance)
	}
}

func TestStore_WithTxCommit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tok, h := seedHolder(t, s)

	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Repositories) error {
		return tx.Transactions().Insert(ctx, &domain.TransactionEvent{
			Signature: "sig1", TokenID: tok.ID, HolderID: h.ID,
			Type: domain.TransactionTypeBuy, Amount: decimal.NewFromInt(1),
		})
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
	if ok, _ := s.Transactions().Exists(ctx, "sig1"); !ok {
		t.Error("committed signature must be visible")
	}
}

func TestZoneSnapshotStore_RangeAndDuplicates(t *testing.T) {
	store := NewZoneSnapshotStore()
	ctx := context.Background()

	snaps := []*domain.ZoneSnapshot{
		{TokenAddress: "Mint111", TimestampMs: 1000, Zone: domain.ZoneProfit, HolderCount: 2},
		{TokenAddress: "Mint111", TimestampMs: 1000, Zone: domain.ZoneLoss, HolderCount: 1},
		{TokenAddress: "Mint111", TimestampMs: 2000, Zone: domain.ZoneProfit, HolderCount: 3},
	}
	if err := store.InsertBulk(ctx, snaps); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, snaps[:1]); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByTimeRange(ctx, "Mint111", 0, 1500)
	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(got))
	}
	if got[0].Zone != domain.ZoneLoss || got[1].Zone != domain.ZoneProfit {
		t.Errorf("expected zone order loss, profit; got %s, %s", got[0].Zone, got[1].Zone)
	}
}

func TestSignatureCache_Expiry(t *testing.T) {
	c := NewSignatureCache(time.Minute)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	if err := c.Mark(ctx, "sig1"); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	if ok, _ := c.Seen(ctx, "sig1"); !ok {
		t.Error("expected sig1 to be seen")
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := c.Seen(ctx, "sig1"); ok {
		t.Error("expected sig1 to expire")
	}
}
