// Package registry creates Token and Holder records on first reference.
package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/solana"
	"solana-holder-ledger/internal/storage"
)

// Options configures a Registry.
type Options struct {
	Logger *zap.Logger
}

// Registry performs get-or-create on tokens and holders.
// Concurrent calls for the same key converge on one row through the store's
// uniqueness constraints.
type Registry struct {
	repos  storage.Repositories
	logger *zap.Logger
}

// New creates a Registry over repos.
func New(repos storage.Repositories, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{repos: repos, logger: logger.Named("registry")}
}

// With returns a Registry that uses repos, typically a unit of work.
func (r *Registry) With(repos storage.Repositories) *Registry {
	return &Registry{repos: repos, logger: r.logger}
}

// EnsureToken returns the token for address, creating it in tracking status.
func (r *Registry) EnsureToken(ctx context.Context, address string) (*domain.Token, error) {
	return r.ensureToken(ctx, &domain.Token{Address: address, Status: domain.TokenStatusTracking})
}

func (r *Registry) ensureToken(ctx context.Context, candidate *domain.Token) (*domain.Token, error) {
	if candidate.Address == "" {
		return nil, fmt.Errorf("ensure token: %w", storage.ErrInvalidInput)
	}
	tokens := r.repos.Tokens()

	t, err := tokens.GetByAddress(ctx, candidate.Address)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get token: %w", err)
	}

	err = tokens.Insert(ctx, candidate)
	switch {
	case err == nil:
		r.logger.Info("token registered",
			zap.String("token", candidate.Address),
			zap.String("status", string(candidate.Status)),
		)
		return candidate, nil
	case errors.Is(err, storage.ErrDuplicateKey):
		t, err = tokens.GetByAddress(ctx, candidate.Address)
		if err != nil {
			return nil, fmt.Errorf("get token after conflict: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("insert token: %w", err)
	}
}

// EnsureHolder returns the holder for (tokenID, wallet), creating a zero position.
func (r *Registry) EnsureHolder(ctx context.Context, tokenID int64, wallet string) (*domain.Holder, error) {
	if wallet == "" {
		return nil, fmt.Errorf("ensure holder: %w", storage.ErrInvalidInput)
	}
	holders := r.repos.Holders()

	h, err := holders.GetByWallet(ctx, tokenID, wallet)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get holder: %w", err)
	}

	h = domain.NewHolder(tokenID, wallet)
	h.ProgramOwned = solana.IsProgramOwned(wallet)

	err = holders.Insert(ctx, h)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, storage.ErrDuplicateKey):
		h, err = holders.GetByWallet(ctx, tokenID, wallet)
		if err != nil {
			return nil, fmt.Errorf("get holder after conflict: %w", err)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("insert holder: %w", err)
	}
}

// ApplyLaunch ensures the launched token exists and records its metadata.
func (r *Registry) ApplyLaunch(ctx context.Context, ev domain.LaunchEvent) (*domain.Token, error) {
	t, err := r.EnsureToken(ctx, ev.TokenAddress)
	if err != nil {
		return nil, err
	}

	symbol, name := optional(ev.Symbol), optional(ev.Name)
	if equalPtr(t.Symbol, symbol) && equalPtr(t.Name, name) && t.Decimals == ev.Decimals {
		return t, nil
	}
	if err := r.repos.Tokens().UpdateMetadata(ctx, t.ID, symbol, name, ev.Decimals); err != nil {
		return nil, fmt.Errorf("update token metadata: %w", err)
	}
	t.Symbol, t.Name, t.Decimals = symbol, name, ev.Decimals
	return t, nil
}

// MarkGraduated moves the token forward to graduated. Repeated graduation is a
// no-op; an unknown token is created already graduated.
func (r *Registry) MarkGraduated(ctx context.Context, address string, at int64) (*domain.Token, error) {
	t, err := r.ensureToken(ctx, &domain.Token{
		Address:     address,
		Status:      domain.TokenStatusGraduated,
		GraduatedAt: &at,
	})
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransitionTo(domain.TokenStatusGraduated) {
		return t, nil
	}

	if err := r.repos.Tokens().UpdateStatus(ctx, t.ID, domain.TokenStatusGraduated, &at); err != nil {
		return nil, fmt.Errorf("update token status: %w", err)
	}
	t.Status = domain.TokenStatusGraduated
	t.GraduatedAt = &at
	r.logger.Info("token graduated", zap.String("token", address), zap.Int64("at", at))
	return t, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
