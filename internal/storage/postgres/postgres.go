package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/observability"
	"solana-holder-ledger/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// querier is satisfied by both the pool and an open pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements storage.Store on top of a pool.
type Store struct {
	pool *Pool
}

// NewStore creates a Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Tokens implements storage.Repositories.
func (s *Store) Tokens() storage.TokenStore { return &TokenStore{db: s.pool} }

// Holders implements storage.Repositories.
func (s *Store) Holders() storage.HolderStore { return &HolderStore{db: s.pool} }

// Transactions implements storage.Repositories.
func (s *Store) Transactions() storage.TransactionStore { return &TransactionStore{db: s.pool} }

// Lots implements storage.Repositories.
func (s *Store) Lots() storage.LotStore { return &LotStore{db: s.pool} }

// WithTx runs fn inside a READ COMMITTED transaction.
// The transaction is rolled back if fn or the commit fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Repositories) error) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "unit_of_work", time.Since(start).Seconds(), err)
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, txRepos{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txRepos binds every store to one open transaction.
type txRepos struct {
	tx pgx.Tx
}

func (r txRepos) Tokens() storage.TokenStore             { return &TokenStore{db: r.tx} }
func (r txRepos) Holders() storage.HolderStore           { return &HolderStore{db: r.tx} }
func (r txRepos) Transactions() storage.TransactionStore { return &TransactionStore{db: r.tx} }
func (r txRepos) Lots() storage.LotStore                 { return &LotStore{db: r.tx} }

var _ storage.Store = (*Store)(nil)

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// parseNumeric converts a NUMERIC column selected as ::text.
func parseNumeric(column, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", column, raw, err)
	}
	return d, nil
}
