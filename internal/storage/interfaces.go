package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
)

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Insert adds a new token and sets its ID. Returns ErrDuplicateKey if address exists.
	Insert(ctx context.Context, t *domain.Token) error

	// GetByID retrieves a token by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Token, error)

	// GetByAddress retrieves a token by mint address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Token, error)

	// UpdateMetadata sets symbol, name and decimals. Returns ErrNotFound if not exists.
	UpdateMetadata(ctx context.Context, id int64, symbol, name *string, decimals int) error

	// UpdateStatus sets status and graduation time. Returns ErrNotFound if not exists.
	UpdateStatus(ctx context.Context, id int64, status domain.TokenStatus, graduatedAt *int64) error

	// List retrieves all tokens ordered by ID ASC.
	List(ctx context.Context) ([]*domain.Token, error)
}

// HolderStore provides access to holders storage.
type HolderStore interface {
	// Insert adds a new holder and sets its ID. Returns ErrDuplicateKey if (token_id, wallet_address) exists.
	Insert(ctx context.Context, h *domain.Holder) error

	// GetByID retrieves a holder by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Holder, error)

	// GetByWallet retrieves a holder by (token_id, wallet_address). Returns ErrNotFound if not exists.
	GetByWallet(ctx context.Context, tokenID int64, wallet string) (*domain.Holder, error)

	// Lock takes an exclusive lock on the holder row until the enclosing unit commits.
	// Outside a unit of work it is a no-op.
	Lock(ctx context.Context, id int64) error

	// Update persists every mutable holder field. Returns ErrNotFound if not exists.
	Update(ctx context.Context, h *domain.Holder) error

	// ListByToken retrieves all holders of a token ordered by ID ASC.
	ListByToken(ctx context.Context, tokenID int64) ([]*domain.Holder, error)

	// ListActiveByToken retrieves holders with balance > 0 ordered by ID ASC.
	ListActiveByToken(ctx context.Context, tokenID int64) ([]*domain.Holder, error)
}

// TransactionStore provides access to transactions storage.
type TransactionStore interface {
	// Insert adds a new transaction and sets its ID. Returns ErrDuplicateKey if signature exists.
	Insert(ctx context.Context, tx *domain.TransactionEvent) error

	// Exists reports whether a transaction with the signature is committed.
	Exists(ctx context.Context, signature string) (bool, error)

	// GetBySignature retrieves a transaction. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.TransactionEvent, error)

	// ListByHolder retrieves a holder's transactions ordered by (block_time, id) ASC.
	ListByHolder(ctx context.Context, holderID int64) ([]*domain.TransactionEvent, error)

	// LastPrice returns the price of the most recent buy or sell of a token.
	// Returns ErrNotFound if the token has no priced trade.
	LastPrice(ctx context.Context, tokenID int64) (float64, error)
}

// LotStore provides access to cost_basis_lots storage.
type LotStore interface {
	// Insert adds a new lot and sets its ID.
	Insert(ctx context.Context, lot *domain.CostBasisLot) error

	// ListOpen retrieves lots with remaining_amount > 0 for a holder,
	// ordered by (purchase_timestamp ASC, id ASC).
	ListOpen(ctx context.Context, holderID int64) ([]*domain.CostBasisLot, error)

	// ListOpenByToken retrieves open lots of every holder of a token,
	// ordered by (holder_id ASC, purchase_timestamp ASC, id ASC).
	ListOpenByToken(ctx context.Context, tokenID int64) ([]*domain.CostBasisLot, error)

	// UpdateRemaining sets remaining_amount. Returns ErrInvalidInput if out of [0, original].
	UpdateRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error

	// DeleteExhausted removes lots with remaining_amount = 0, for one holder or all when holderID is nil.
	// Returns the number of deleted lots.
	DeleteExhausted(ctx context.Context, holderID *int64) (int64, error)
}

// Repositories is the set of stores visible inside or outside a unit of work.
type Repositories interface {
	Tokens() TokenStore
	Holders() HolderStore
	Transactions() TransactionStore
	Lots() LotStore
}

// Store is the persistence collaborator of the ledger.
type Store interface {
	Repositories

	// WithTx runs fn as one atomic unit. If fn returns an error, or the commit
	// fails, nothing fn wrote is visible afterwards.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}

// SignatureCache remembers committed signatures for fast-path dedupe.
// It is advisory: a miss never implies the signature is uncommitted.
type SignatureCache interface {
	// Seen reports whether the signature was marked.
	Seen(ctx context.Context, signature string) (bool, error)

	// Mark records a committed signature.
	Mark(ctx context.Context, signature string) error
}

// ZoneSnapshotStore provides access to zone_snapshots storage.
type ZoneSnapshotStore interface {
	// InsertBulk adds multiple snapshots. Fails entire batch on duplicate (token_address, timestamp_ms, zone).
	InsertBulk(ctx context.Context, snapshots []*domain.ZoneSnapshot) error

	// GetByTimeRange retrieves snapshots for a token within [start, end] (inclusive), ordered by (timestamp_ms, zone) ASC.
	GetByTimeRange(ctx context.Context, tokenAddress string, start, end int64) ([]*domain.ZoneSnapshot, error)
}

// DefaultSignatureTTL is how long caches keep committed signatures.
const DefaultSignatureTTL = 24 * time.Hour
