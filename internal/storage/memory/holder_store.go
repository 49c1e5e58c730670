package memory

import (
	"context"
	"sort"
	"time"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// HolderStore is an in-memory implementation of storage.HolderStore.
type HolderStore struct {
	a access
}

func copyHolder(h *domain.Holder) *domain.Holder {
	cp := *h
	if h.FirstBuyTimestamp != nil {
		ts := *h.FirstBuyTimestamp
		cp.FirstBuyTimestamp = &ts
	}
	return &cp
}

// Insert adds a new holder. Returns ErrDuplicateKey if (token_id, wallet_address) exists.
func (s *HolderStore) Insert(_ context.Context, h *domain.Holder) error {
	if h == nil || h.TokenID == 0 || h.WalletAddress == "" {
		return storage.ErrInvalidInput
	}
	return s.a.write(func(st *state) error {
		if _, ok := st.tokens[h.TokenID]; !ok {
			return storage.ErrInvalidInput
		}
		key := holderKey{h.TokenID, h.WalletAddress}
		if _, exists := st.holderByKey[key]; exists {
			return storage.ErrDuplicateKey
		}
		st.nextHolderID++
		h.ID = st.nextHolderID
		now := time.Now().UnixMilli()
		if h.CreatedAt == 0 {
			h.CreatedAt = now
		}
		h.UpdatedAt = now
		st.holders[h.ID] = copyHolder(h)
		st.holderByKey[key] = h.ID
		return nil
	})
}

// GetByID retrieves a holder by ID. Returns ErrNotFound if not exists.
func (s *HolderStore) GetByID(_ context.Context, id int64) (*domain.Holder, error) {
	var out *domain.Holder
	err := s.a.read(func(st *state) error {
		h, ok := st.holders[id]
		if !ok {
			return storage.ErrNotFound
		}
		out = copyHolder(h)
		return nil
	})
	return out, err
}

// GetByWallet retrieves a holder by (token_id, wallet_address). Returns ErrNotFound if not exists.
func (s *HolderStore) GetByWallet(_ context.Context, tokenID int64, wallet string) (*domain.Holder, error) {
	var out *domain.Holder
	err := s.a.read(func(st *state) error {
		id, ok := st.holderByKey[holderKey{tokenID, wallet}]
		if !ok {
			return storage.ErrNotFound
		}
		out = copyHolder(st.holders[id])
		return nil
	})
	return out, err
}

// Lock is a no-op: units of work are already serialized.
func (s *HolderStore) Lock(_ context.Context, id int64) error {
	return s.a.read(func(st *state) error {
		if _, ok := st.holders[id]; !ok {
			return storage.ErrNotFound
		}
		return nil
	})
}

// Update persists every mutable holder field.
func (s *HolderStore) Update(_ context.Context, h *domain.Holder) error {
	if h == nil {
		return storage.ErrInvalidInput
	}
	return s.a.write(func(st *state) error {
		existing, ok := st.holders[h.ID]
		if !ok {
			return storage.ErrNotFound
		}
		h.TokenID = existing.TokenID
		h.WalletAddress = existing.WalletAddress
		h.CreatedAt = existing.CreatedAt
		h.UpdatedAt = time.Now().UnixMilli()
		st.holders[h.ID] = copyHolder(h)
		return nil
	})
}

// ListByToken retrieves all holders of a token ordered by ID ASC.
func (s *HolderStore) ListByToken(_ context.Context, tokenID int64) ([]*domain.Holder, error) {
	return s.list(tokenID, false)
}

// ListActiveByToken retrieves holders with balance > 0 ordered by ID ASC.
func (s *HolderStore) ListActiveByToken(_ context.Context, tokenID int64) ([]*domain.Holder, error) {
	return s.list(tokenID, true)
}

func (s *HolderStore) list(tokenID int64, activeOnly bool) ([]*domain.Holder, error) {
	var result []*domain.Holder
	err := s.a.read(func(st *state) error {
		for _, h := range st.holders {
			if h.TokenID != tokenID {
				continue
			}
			if activeOnly && !h.Balance.IsPositive() {
				continue
			}
			result = append(result, copyHolder(h))
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

var _ storage.HolderStore = (*HolderStore)(nil)
