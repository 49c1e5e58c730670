package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	db querier
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{db: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `id, address, symbol, name, decimals, status, graduated_at, created_at`

// Insert adds a new token. Returns ErrDuplicateKey if address exists.
// A conflicting insert leaves an enclosing transaction usable.
func (s *TokenStore) Insert(ctx context.Context, t *domain.Token) error {
	if t.Status == "" {
		t.Status = domain.TokenStatusTracking
	}
	query := `
		INSERT INTO tokens (address, symbol, name, decimals, status, graduated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO NOTHING
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		t.Address,
		t.Symbol,
		t.Name,
		t.Decimals,
		string(t.Status),
		t.GraduatedAt,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if isNotFoundError(err) || isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByID retrieves a token by its ID. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByID(ctx context.Context, id int64) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1`

	t, err := scanToken(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by id: %w", err)
	}
	return t, nil
}

// GetByAddress retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(ctx context.Context, address string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE address = $1`

	t, err := scanToken(s.db.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return t, nil
}

// UpdateMetadata sets symbol, name and decimals.
func (s *TokenStore) UpdateMetadata(ctx context.Context, id int64, symbol, name *string, decimals int) error {
	query := `UPDATE tokens SET symbol = $2, name = $3, decimals = $4 WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, symbol, name, decimals)
	if err != nil {
		return fmt.Errorf("update token metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateStatus sets status and graduation time.
func (s *TokenStore) UpdateStatus(ctx context.Context, id int64, status domain.TokenStatus, graduatedAt *int64) error {
	if !status.Valid() {
		return storage.ErrInvalidInput
	}
	query := `UPDATE tokens SET status = $2, graduated_at = $3 WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, string(status), graduatedAt)
	if err != nil {
		return fmt.Errorf("update token status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves all tokens ordered by ID ASC.
func (s *TokenStore) List(ctx context.Context) ([]*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens ORDER BY id ASC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var result []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return result, nil
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var status string
	err := row.Scan(
		&t.ID,
		&t.Address,
		&t.Symbol,
		&t.Name,
		&t.Decimals,
		&status,
		&t.GraduatedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TokenStatus(status)
	return &t, nil
}
