package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// LotStore implements storage.LotStore using PostgreSQL.
type LotStore struct {
	db querier
}

// NewLotStore creates a new LotStore.
func NewLotStore(pool *Pool) *LotStore {
	return &LotStore{db: pool}
}

// Compile-time interface check.
var _ storage.LotStore = (*LotStore)(nil)

const lotColumns = `
	l.id, l.holder_id, l.source_transaction_id, l.original_amount::text, l.remaining_amount::text,
	l.price_per_token, l.purchase_timestamp, l.created_at`

// Insert adds a new lot.
func (s *LotStore) Insert(ctx context.Context, lot *domain.CostBasisLot) error {
	if !lot.OriginalAmount.IsPositive() || lot.RemainingAmount.IsNegative() ||
		lot.RemainingAmount.GreaterThan(lot.OriginalAmount) {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO cost_basis_lots (
			holder_id, source_transaction_id, original_amount, remaining_amount,
			price_per_token, purchase_timestamp
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		lot.HolderID,
		lot.SourceTransactionID,
		lot.OriginalAmount.String(),
		lot.RemainingAmount.String(),
		lot.PricePerToken,
		lot.PurchaseTimestamp,
	).Scan(&lot.ID, &lot.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

// ListOpen retrieves open lots for a holder in FIFO order.
func (s *LotStore) ListOpen(ctx context.Context, holderID int64) ([]*domain.CostBasisLot, error) {
	query := `SELECT ` + lotColumns + `
		FROM cost_basis_lots l
		WHERE l.holder_id = $1 AND l.remaining_amount > 0
		ORDER BY l.purchase_timestamp ASC, l.id ASC`

	return s.query(ctx, query, holderID)
}

// ListOpenByToken retrieves open lots of every holder of a token.
func (s *LotStore) ListOpenByToken(ctx context.Context, tokenID int64) ([]*domain.CostBasisLot, error) {
	query := `SELECT ` + lotColumns + `
		FROM cost_basis_lots l
		JOIN holders h ON h.id = l.holder_id
		WHERE h.token_id = $1 AND l.remaining_amount > 0
		ORDER BY l.holder_id ASC, l.purchase_timestamp ASC, l.id ASC`

	return s.query(ctx, query, tokenID)
}

// UpdateRemaining sets remaining_amount.
func (s *LotStore) UpdateRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error {
	if remaining.IsNegative() {
		return storage.ErrInvalidInput
	}
	query := `
		UPDATE cost_basis_lots
		SET remaining_amount = $2::numeric
		WHERE id = $1 AND $2::numeric <= original_amount
	`

	tag, err := s.db.Exec(ctx, query, lotID, remaining.String())
	if err != nil {
		return fmt.Errorf("update lot remaining: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM cost_basis_lots WHERE id = $1)`, lotID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check lot exists: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrInvalidInput
	}
	return nil
}

// DeleteExhausted removes lots with remaining_amount = 0.
func (s *LotStore) DeleteExhausted(ctx context.Context, holderID *int64) (int64, error) {
	query := `
		DELETE FROM cost_basis_lots
		WHERE remaining_amount = 0 AND ($1::bigint IS NULL OR holder_id = $1)
	`

	tag, err := s.db.Exec(ctx, query, holderID)
	if err != nil {
		return 0, fmt.Errorf("delete exhausted lots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *LotStore) query(ctx context.Context, query string, args ...any) ([]*domain.CostBasisLot, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	var result []*domain.CostBasisLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		result = append(result, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lots: %w", err)
	}
	return result, nil
}

func scanLot(row pgx.Row) (*domain.CostBasisLot, error) {
	var l domain.CostBasisLot
	var original, remaining string
	err := row.Scan(
		&l.ID,
		&l.HolderID,
		&l.SourceTransactionID,
		&original,
		&remaining,
		&l.PricePerToken,
		&l.PurchaseTimestamp,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if l.OriginalAmount, err = parseNumeric("original_amount", original); err != nil {
		return nil, err
	}
	if l.RemainingAmount, err = parseNumeric("remaining_amount", remaining); err != nil {
		return nil, err
	}
	return &l, nil
}
