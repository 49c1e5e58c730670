package memory

import (
	"context"
	"sync"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

type holderKey struct {
	tokenID int64
	wallet  string
}

// state is one consistent version of every table.
type state struct {
	nextTokenID  int64
	nextHolderID int64
	nextTxID     int64
	nextLotID    int64

	tokens      map[int64]*domain.Token
	tokenByAddr map[string]int64

	holders     map[int64]*domain.Holder
	holderByKey map[holderKey]int64

	txs     map[int64]*domain.TransactionEvent
	txBySig map[string]int64

	lots map[int64]*domain.CostBasisLot
}

func newState() *state {
	return &state{
		tokens:      make(map[int64]*domain.Token),
		tokenByAddr: make(map[string]int64),
		holders:     make(map[int64]*domain.Holder),
		holderByKey: make(map[holderKey]int64),
		txs:         make(map[int64]*domain.TransactionEvent),
		txBySig:     make(map[string]int64),
		lots:        make(map[int64]*domain.CostBasisLot),
	}
}

// clone deep-copies the state so a unit of work can be discarded on failure.
func (s *state) clone() *state {
	c := &state{
		nextTokenID:  s.nextTokenID,
		nextHolderID: s.nextHolderID,
		nextTxID:     s.nextTxID,
		nextLotID:    s.nextLotID,
		tokens:       make(map[int64]*domain.Token, len(s.tokens)),
		tokenByAddr:  make(map[string]int64, len(s.tokenByAddr)),
		holders:      make(map[int64]*domain.Holder, len(s.holders)),
		holderByKey:  make(map[holderKey]int64, len(s.holderByKey)),
		txs:          make(map[int64]*domain.TransactionEvent, len(s.txs)),
		txBySig:      make(map[string]int64, len(s.txBySig)),
		lots:         make(map[int64]*domain.CostBasisLot, len(s.lots)),
	}
	for id, t := range s.tokens {
		c.tokens[id] = copyToken(t)
	}
	for k, v := range s.tokenByAddr {
		c.tokenByAddr[k] = v
	}
	for id, h := range s.holders {
		c.holders[id] = copyHolder(h)
	}
	for k, v := range s.holderByKey {
		c.holderByKey[k] = v
	}
	for id, tx := range s.txs {
		cp := *tx
		c.txs[id] = &cp
	}
	for k, v := range s.txBySig {
		c.txBySig[k] = v
	}
	for id, l := range s.lots {
		cp := *l
		c.lots[id] = &cp
	}
	return c
}

// access runs table operations against some version of the state.
type access interface {
	read(fn func(*state) error) error
	write(fn func(*state) error) error
}

// Store is an in-memory implementation of storage.Store.
// Units of work run on a private copy that replaces the live state on success.
// Writes are serialized; reads never block on a running unit of work.
type Store struct {
	writeMu sync.Mutex   // serializes units of work and standalone writes
	mu      sync.RWMutex // guards cur
	cur     *state
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{cur: newState()}
}

func (s *Store) read(fn func(*state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.cur)
}

func (s *Store) write(fn func(*state) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.cur)
}

// Tokens implements storage.Repositories.
func (s *Store) Tokens() storage.TokenStore { return &TokenStore{a: s} }

// Holders implements storage.Repositories.
func (s *Store) Holders() storage.HolderStore { return &HolderStore{a: s} }

// Transactions implements storage.Repositories.
func (s *Store) Transactions() storage.TransactionStore { return &TransactionStore{a: s} }

// Lots implements storage.Repositories.
func (s *Store) Lots() storage.LotStore { return &LotStore{a: s} }

// WithTx runs fn on a copy of the state and publishes the copy only if fn succeeds.
// fn must use the Repositories it is given; calling write methods on s from
// inside fn deadlocks.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Repositories) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	work := s.cur.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &txRepos{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cur = work
	s.mu.Unlock()
	return nil
}

// txRepos exposes a private state copy to a unit of work.
type txRepos struct {
	st *state
}

func (t *txRepos) read(fn func(*state) error) error  { return fn(t.st) }
func (t *txRepos) write(fn func(*state) error) error { return fn(t.st) }

func (t *txRepos) Tokens() storage.TokenStore             { return &TokenStore{a: t} }
func (t *txRepos) Holders() storage.HolderStore           { return &HolderStore{a: t} }
func (t *txRepos) Transactions() storage.TransactionStore { return &TransactionStore{a: t} }
func (t *txRepos) Lots() storage.LotStore                 { return &LotStore{a: t} }

var _ storage.Store = (*Store)(nil)
