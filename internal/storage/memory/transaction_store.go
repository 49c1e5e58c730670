package memory

import (
	"context"
	"sort"
	"time"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	a access
}

// Insert adds a new transaction. Returns ErrDuplicateKey if signature exists.
func (s *TransactionStore) Insert(_ context.Context, tx *domain.TransactionEvent) error {
	if tx == nil || tx.Signature == "" || !tx.Type.Valid() {
		return storage.ErrInvalidInput
	}
	return s.a.write(func(st *state) error {
		if _, exists := st.txBySig[tx.Signature]; exists {
			return storage.ErrDuplicateKey
		}
		if _, ok := st.holders[tx.HolderID]; !ok {
			return storage.ErrInvalidInput
		}
		st.nextTxID++
		tx.ID = st.nextTxID
		if tx.CreatedAt == 0 {
			tx.CreatedAt = time.Now().UnixMilli()
		}
		cp := *tx
		st.txs[tx.ID] = &cp
		st.txBySig[tx.Signature] = tx.ID
		return nil
	})
}

// Exists reports whether a transaction with the signature is committed.
func (s *TransactionStore) Exists(_ context.Context, signature string) (bool, error) {
	var found bool
	err := s.a.read(func(st *state) error {
		_, found = st.txBySig[signature]
		return nil
	})
	return found, err
}

// GetBySignature retrieves a transaction. Returns ErrNotFound if not exists.
func (s *TransactionStore) GetBySignature(_ context.Context, signature string) (*domain.TransactionEvent, error) {
	var out *domain.TransactionEvent
	err := s.a.read(func(st *state) error {
		id, ok := st.txBySig[signature]
		if !ok {
			return storage.ErrNotFound
		}
		cp := *st.txs[id]
		out = &cp
		return nil
	})
	return out, err
}

// ListByHolder retrieves a holder's transactions ordered by (block_time, id) ASC.
func (s *TransactionStore) ListByHolder(_ context.Context, holderID int64) ([]*domain.TransactionEvent, error) {
	var result []*domain.TransactionEvent
	err := s.a.read(func(st *state) error {
		for _, tx := range st.txs {
			if tx.HolderID == holderID {
				cp := *tx
				result = append(result, &cp)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockTime != result[j].BlockTime {
			return result[i].BlockTime < result[j].BlockTime
		}
		return result[i].ID < result[j].ID
	})
	return result, err
}

// LastPrice returns the price of the most recent buy or sell of a token.
func (s *TransactionStore) LastPrice(_ context.Context, tokenID int64) (float64, error) {
	var latest *domain.TransactionEvent
	err := s.a.read(func(st *state) error {
		for _, tx := range st.txs {
			if tx.TokenID != tokenID || tx.Type == domain.TransactionTypeTransfer || tx.PricePerToken <= 0 {
				continue
			}
			if latest == nil || tx.BlockTime > latest.BlockTime ||
				(tx.BlockTime == latest.BlockTime && tx.ID > latest.ID) {
				latest = tx
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, storage.ErrNotFound
	}
	return latest.PricePerToken, nil
}

var _ storage.TransactionStore = (*TransactionStore)(nil)
