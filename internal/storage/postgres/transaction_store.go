package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	db querier
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{db: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	id, signature, token_id, holder_id, type, amount::text, price_per_token, total_value,
	block_time, slot, block_hash, instruction_index, inner_instruction_index, created_at`

// Insert adds a new transaction. Returns ErrDuplicateKey if signature exists.
func (s *TransactionStore) Insert(ctx context.Context, tx *domain.TransactionEvent) error {
	query := `
		INSERT INTO transactions (
			signature, token_id, holder_id, type, amount, price_per_token, total_value,
			block_time, slot, block_hash, instruction_index, inner_instruction_index
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (signature) DO NOTHING
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		tx.Signature,
		tx.TokenID,
		tx.HolderID,
		string(tx.Type),
		tx.Amount.String(),
		tx.PricePerToken,
		tx.TotalValue,
		tx.BlockTime,
		tx.Slot,
		tx.BlockHash,
		tx.InstructionIndex,
		tx.InnerInstructionIndex,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		if isNotFoundError(err) || isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// Exists reports whether a transaction with the signature is committed.
func (s *TransactionStore) Exists(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE signature = $1)`, signature,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check transaction exists: %w", err)
	}
	return exists, nil
}

// GetBySignature retrieves a transaction. Returns ErrNotFound if not exists.
func (s *TransactionStore) GetBySignature(ctx context.Context, signature string) (*domain.TransactionEvent, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE signature = $1`

	tx, err := scanTransaction(s.db.QueryRow(ctx, query, signature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction by signature: %w", err)
	}
	return tx, nil
}

// ListByHolder retrieves a holder's transactions ordered by (block_time, id) ASC.
func (s *TransactionStore) ListByHolder(ctx context.Context, holderID int64) ([]*domain.TransactionEvent, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE holder_id = $1
		ORDER BY block_time ASC, id ASC`

	rows, err := s.db.Query(ctx, query, holderID)
	if err != nil {
		return nil, fmt.Errorf("list transactions by holder: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransactionEvent
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}

// LastPrice returns the price of the most recent buy or sell of a token.
func (s *TransactionStore) LastPrice(ctx context.Context, tokenID int64) (float64, error) {
	query := `
		SELECT price_per_token
		FROM transactions
		WHERE token_id = $1 AND type IN ('buy', 'sell') AND price_per_token > 0
		ORDER BY block_time DESC, id DESC
		LIMIT 1
	`

	var price float64
	if err := s.db.QueryRow(ctx, query, tokenID).Scan(&price); err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get last price: %w", err)
	}
	return price, nil
}

func scanTransaction(row pgx.Row) (*domain.TransactionEvent, error) {
	var tx domain.TransactionEvent
	var txType, amount string
	err := row.Scan(
		&tx.ID,
		&tx.Signature,
		&tx.TokenID,
		&tx.HolderID,
		&txType,
		&amount,
		&tx.PricePerToken,
		&tx.TotalValue,
		&tx.BlockTime,
		&tx.Slot,
		&tx.BlockHash,
		&tx.InstructionIndex,
		&tx.InnerInstructionIndex,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.Type = domain.TransactionType(txType)
	if tx.Amount, err = parseNumeric("amount", amount); err != nil {
		return nil, err
	}
	return &tx, nil
}
