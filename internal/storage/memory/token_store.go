package memory

import (
	"context"
	"sort"
	"time"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	a access
}

func copyToken(t *domain.Token) *domain.Token {
	cp := *t
	if t.Symbol != nil {
		s := *t.Symbol
		cp.Symbol = &s
	}
	if t.Name != nil {
		n := *t.Name
		cp.Name = &n
	}
	if t.GraduatedAt != nil {
		g := *t.GraduatedAt
		cp.GraduatedAt = &g
	}
	return &cp
}

// Insert adds a new token. Returns ErrDuplicateKey if address exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.Token) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}
	return s.a.write(func(st *state) error {
		if _, exists := st.tokenByAddr[t.Address]; exists {
			return storage.ErrDuplicateKey
		}
		st.nextTokenID++
		t.ID = st.nextTokenID
		if t.Status == "" {
			t.Status = domain.TokenStatusTracking
		}
		if t.CreatedAt == 0 {
			t.CreatedAt = time.Now().UnixMilli()
		}
		st.tokens[t.ID] = copyToken(t)
		st.tokenByAddr[t.Address] = t.ID
		return nil
	})
}

// GetByID retrieves a token by its ID. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByID(_ context.Context, id int64) (*domain.Token, error) {
	var out *domain.Token
	err := s.a.read(func(st *state) error {
		t, ok := st.tokens[id]
		if !ok {
			return storage.ErrNotFound
		}
		out = copyToken(t)
		return nil
	})
	return out, err
}

// GetByAddress retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(_ context.Context, address string) (*domain.Token, error) {
	var out *domain.Token
	err := s.a.read(func(st *state) error {
		id, ok := st.tokenByAddr[address]
		if !ok {
			return storage.ErrNotFound
		}
		out = copyToken(st.tokens[id])
		return nil
	})
	return out, err
}

// UpdateMetadata sets symbol, name and decimals.
func (s *TokenStore) UpdateMetadata(_ context.Context, id int64, symbol, name *string, decimals int) error {
	return s.a.write(func(st *state) error {
		t, ok := st.tokens[id]
		if !ok {
			return storage.ErrNotFound
		}
		upd := copyToken(&domain.Token{Symbol: symbol, Name: name})
		t.Symbol = upd.Symbol
		t.Name = upd.Name
		t.Decimals = decimals
		return nil
	})
}

// UpdateStatus sets status and graduation time.
func (s *TokenStore) UpdateStatus(_ context.Context, id int64, status domain.TokenStatus, graduatedAt *int64) error {
	if !status.Valid() {
		return storage.ErrInvalidInput
	}
	return s.a.write(func(st *state) error {
		t, ok := st.tokens[id]
		if !ok {
			return storage.ErrNotFound
		}
		t.Status = status
		t.GraduatedAt = nil
		if graduatedAt != nil {
			g := *graduatedAt
			t.GraduatedAt = &g
		}
		return nil
	})
}

// List retrieves all tokens ordered by ID ASC.
func (s *TokenStore) List(_ context.Context) ([]*domain.Token, error) {
	var result []*domain.Token
	err := s.a.read(func(st *state) error {
		for _, t := range st.tokens {
			result = append(result, copyToken(t))
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

var _ storage.TokenStore = (*TokenStore)(nil)
