package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// HolderStore implements storage.HolderStore using PostgreSQL.
type HolderStore struct {
	db querier
}

// NewHolderStore creates a new HolderStore.
func NewHolderStore(pool *Pool) *HolderStore {
	return &HolderStore{db: pool}
}

// Compile-time interface check.
var _ storage.HolderStore = (*HolderStore)(nil)

const holderColumns = `
	id, token_id, wallet_address, balance::text, total_bought::text, total_sold::text,
	avg_buy_price, realized_pnl, first_buy_timestamp, last_activity, transaction_count,
	is_active, program_owned, created_at, updated_at`

// Insert adds a new holder. Returns ErrDuplicateKey if (token_id, wallet_address) exists.
func (s *HolderStore) Insert(ctx context.Context, h *domain.Holder) error {
	query := `
		INSERT INTO holders (
			token_id, wallet_address, balance, total_bought, total_sold,
			avg_buy_price, realized_pnl, first_buy_timestamp, last_activity,
			transaction_count, is_active, program_owned
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (token_id, wallet_address) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		h.TokenID,
		h.WalletAddress,
		h.Balance.String(),
		h.TotalBought.String(),
		h.TotalSold.String(),
		h.AvgBuyPrice,
		h.RealizedPnL,
		h.FirstBuyTimestamp,
		h.LastActivity,
		h.TransactionCount,
		h.IsActive,
		h.ProgramOwned,
	).Scan(&h.ID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) || isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert holder: %w", err)
	}
	return nil
}

// GetByID retrieves a holder by ID. Returns ErrNotFound if not exists.
func (s *HolderStore) GetByID(ctx context.Context, id int64) (*domain.Holder, error) {
	query := `SELECT ` + holderColumns + ` FROM holders WHERE id = $1`

	h, err := scanHolder(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get holder by id: %w", err)
	}
	return h, nil
}

// GetByWallet retrieves a holder by (token_id, wallet_address). Returns ErrNotFound if not exists.
func (s *HolderStore) GetByWallet(ctx context.Context, tokenID int64, wallet string) (*domain.Holder, error) {
	query := `SELECT ` + holderColumns + ` FROM holders WHERE token_id = $1 AND wallet_address = $2`

	h, err := scanHolder(s.db.QueryRow(ctx, query, tokenID, wallet))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get holder by wallet: %w", err)
	}
	return h, nil
}

// Lock takes a row lock held until the enclosing transaction ends.
func (s *HolderStore) Lock(ctx context.Context, id int64) error {
	var locked int64
	err := s.db.QueryRow(ctx, `SELECT id FROM holders WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("lock holder: %w", err)
	}
	return nil
}

// Update persists every mutable holder field.
func (s *HolderStore) Update(ctx context.Context, h *domain.Holder) error {
	query := `
		UPDATE holders SET
			balance = $2::numeric,
			total_bought = $3::numeric,
			total_sold = $4::numeric,
			avg_buy_price = $5,
			realized_pnl = $6,
			first_buy_timestamp = $7,
			last_activity = $8,
			transaction_count = $9,
			is_active = $10,
			program_owned = $11,
			updated_at = (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT
		WHERE id = $1
		RETURNING updated_at
	`

	err := s.db.QueryRow(ctx, query,
		h.ID,
		h.Balance.String(),
		h.TotalBought.String(),
		h.TotalSold.String(),
		h.AvgBuyPrice,
		h.RealizedPnL,
		h.FirstBuyTimestamp,
		h.LastActivity,
		h.TransactionCount,
		h.IsActive,
		h.ProgramOwned,
	).Scan(&h.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("update holder: %w", err)
	}
	return nil
}

// ListByToken retrieves all holders of a token ordered by ID ASC.
func (s *HolderStore) ListByToken(ctx context.Context, tokenID int64) ([]*domain.Holder, error) {
	query := `SELECT ` + holderColumns + ` FROM holders WHERE token_id = $1 ORDER BY id ASC`
	return s.query(ctx, query, tokenID)
}

// ListActiveByToken retrieves holders with balance > 0 ordered by ID ASC.
func (s *HolderStore) ListActiveByToken(ctx context.Context, tokenID int64) ([]*domain.Holder, error) {
	query := `SELECT ` + holderColumns + ` FROM holders WHERE token_id = $1 AND is_active ORDER BY id ASC`
	return s.query(ctx, query, tokenID)
}

func (s *HolderStore) query(ctx context.Context, query string, args ...any) ([]*domain.Holder, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()

	var result []*domain.Holder
	for rows.Next() {
		h, err := scanHolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holder: %w", err)
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holders: %w", err)
	}
	return result, nil
}

func scanHolder(row pgx.Row) (*domain.Holder, error) {
	var h domain.Holder
	var balance, bought, sold string
	err := row.Scan(
		&h.ID,
		&h.TokenID,
		&h.WalletAddress,
		&balance,
		&bought,
		&sold,
		&h.AvgBuyPrice,
		&h.RealizedPnL,
		&h.FirstBuyTimestamp,
		&h.LastActivity,
		&h.TransactionCount,
		&h.IsActive,
		&h.ProgramOwned,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if h.Balance, err = parseNumeric("balance", balance); err != nil {
		return nil, err
	}
	if h.TotalBought, err = parseNumeric("total_bought", bought); err != nil {
		return nil, err
	}
	if h.TotalSold, err = parseNumeric("total_sold", sold); err != nil {
		return nil, err
	}
	return &h, nil
}
