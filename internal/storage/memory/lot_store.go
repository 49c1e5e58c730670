package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// LotStore is an in-memory implementation of storage.LotStore.
type LotStore struct {
	a access
}

// Insert adds a new lot.
func (s *LotStore) Insert(_ context.Context, lot *domain.CostBasisLot) error {
	if lot == nil || !lot.OriginalAmount.IsPositive() ||
		lot.RemainingAmount.IsNegative() || lot.RemainingAmount.GreaterThan(lot.OriginalAmount) {
		return storage.ErrInvalidInput
	}
	return s.a.write(func(st *state) error {
		if _, ok := st.holders[lot.HolderID]; !ok {
			return storage.ErrInvalidInput
		}
		st.nextLotID++
		lot.ID = st.nextLotID
		if lot.CreatedAt == 0 {
			lot.CreatedAt = time.Now().UnixMilli()
		}
		cp := *lot
		st.lots[lot.ID] = &cp
		return nil
	})
}

// ListOpen retrieves open lots for a holder in FIFO order.
func (s *LotStore) ListOpen(_ context.Context, holderID int64) ([]*domain.CostBasisLot, error) {
	var result []*domain.CostBasisLot
	err := s.a.read(func(st *state) error {
		for _, l := range st.lots {
			if l.HolderID == holderID && l.Open() {
				cp := *l
				result = append(result, &cp)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return domain.LotBefore(result[i], result[j]) })
	return result, err
}

// ListOpenByToken retrieves open lots of every holder of a token.
func (s *LotStore) ListOpenByToken(_ context.Context, tokenID int64) ([]*domain.CostBasisLot, error) {
	var result []*domain.CostBasisLot
	err := s.a.read(func(st *state) error {
		for _, l := range st.lots {
			h, ok := st.holders[l.HolderID]
			if !ok || h.TokenID != tokenID || !l.Open() {
				continue
			}
			cp := *l
			result = append(result, &cp)
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].HolderID != result[j].HolderID {
			return result[i].HolderID < result[j].HolderID
		}
		return domain.LotBefore(result[i], result[j])
	})
	return result, err
}

// UpdateRemaining sets remaining_amount.
func (s *LotStore) UpdateRemaining(_ context.Context, lotID int64, remaining decimal.Decimal) error {
	return s.a.write(func(st *state) error {
		l, ok := st.lots[lotID]
		if !ok {
			return storage.ErrNotFound
		}
		if remaining.IsNegative() || remaining.GreaterThan(l.OriginalAmount) {
			return storage.ErrInvalidInput
		}
		l.RemainingAmount = remaining
		return nil
	})
}

// DeleteExhausted removes lots with remaining_amount = 0.
func (s *LotStore) DeleteExhausted(_ context.Context, holderID *int64) (int64, error) {
	var deleted int64
	err := s.a.write(func(st *state) error {
		for id, l := range st.lots {
			if holderID != nil && l.HolderID != *holderID {
				continue
			}
			if l.RemainingAmount.IsZero() {
				delete(st.lots, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

var _ storage.LotStore = (*LotStore)(nil)
