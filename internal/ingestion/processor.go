package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/ledger"
	"solana-holder-ledger/internal/observability"
	"solana-holder-ledger/internal/position"
	"solana-holder-ledger/internal/registry"
	"solana-holder-ledger/internal/storage"
)

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Store    storage.Store
	Registry *registry.Registry
	Updater  *position.Updater
	// Cache is an optional fast-path dedupe in front of the store.
	Cache storage.SignatureCache
	// StrictAddresses requires base58 32-byte token and wallet addresses.
	StrictAddresses bool
	Logger          *zap.Logger
}

// Applied is the outcome of one committed transaction.
type Applied struct {
	Token       *domain.Token
	Holder      *domain.Holder
	Transaction *domain.TransactionEvent
	Lot         *domain.CostBasisLot
	Sale        *ledger.SaleResult
}

// Processor applies trade events to the ledger, one at a time.
//
// Each event commits as a single unit: the transaction record, the registry
// rows, the lot changes and the holder update become visible together or not
// at all. Calls are serialized, so live ingestion and backfill never apply
// concurrently.
type Processor struct {
	mu       sync.Mutex
	store    storage.Store
	registry *registry.Registry
	updater  *position.Updater
	cache    storage.SignatureCache
	strict   bool
	logger   *zap.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:    opts.Store,
		registry: opts.Registry,
		updater:  opts.Updater,
		cache:    opts.Cache,
		strict:   opts.StrictAddresses,
		logger:   logger.Named("processor"),
	}
}

// Committed reports whether a transaction with signature is already applied.
func (p *Processor) Committed(ctx context.Context, signature string) (bool, error) {
	if p.cache != nil {
		seen, err := p.cache.Seen(ctx, signature)
		if err != nil {
			p.logger.Warn("signature cache lookup failed", zap.String("signature", signature), zap.Error(err))
		} else if seen {
			return true, nil
		}
	}
	ok, err := p.store.Transactions().Exists(ctx, signature)
	if err != nil {
		return false, fmt.Errorf("check signature: %w", err)
	}
	return ok, nil
}

// Process validates ev and applies it. It returns an error wrapping
// ErrValidation for malformed events and ErrDuplicateTransaction for events
// already committed. Any other error means nothing was written.
func (p *Processor) Process(ctx context.Context, ev domain.TradeEvent) (*Applied, error) {
	if err := Validate(&ev, p.strict); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			observability.RecordValidationFailure(verr.Field)
		}
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	committed, err := p.Committed(ctx, ev.Signature)
	if err != nil {
		observability.RecordApplyFailure()
		return nil, err
	}
	if committed {
		observability.RecordDuplicate("store")
		return nil, fmt.Errorf("%s: %w", ev.Signature, ErrDuplicateTransaction)
	}

	start := time.Now()
	var out *Applied
	err = p.store.WithTx(ctx, func(ctx context.Context, tx storage.Repositories) error {
		var err error
		out, err = p.apply(ctx, tx, &ev)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			observability.RecordDuplicate("commit")
			return nil, err
		}
		observability.RecordApplyFailure()
		return nil, err
	}
	elapsed := time.Since(start)

	if p.cache != nil {
		if err := p.cache.Mark(ctx, ev.Signature); err != nil {
			p.logger.Warn("signature cache mark failed", zap.String("signature", ev.Signature), zap.Error(err))
		}
	}
	observability.RecordTransactionApplied(string(ev.Type), elapsed.Seconds(), time.Now().Unix())

	p.logger.Debug("transaction applied",
		zap.String("signature", ev.Signature),
		zap.String("token", ev.TokenAddress),
		zap.String("wallet", ev.WalletAddress),
		zap.String("type", string(ev.Type)),
		zap.String("amount", ev.Amount.String()),
		zap.String("balance", out.Holder.Balance.String()),
		zap.Duration("elapsed", elapsed),
	)
	return out, nil
}

func (p *Processor) apply(ctx context.Context, tx storage.Repositories, ev *domain.TradeEvent) (*Applied, error) {
	reg := p.registry.With(tx)

	token, err := reg.EnsureToken(ctx, ev.TokenAddress)
	if err != nil {
		return nil, err
	}
	holder, err := reg.EnsureHolder(ctx, token.ID, ev.WalletAddress)
	if err != nil {
		return nil, err
	}
	if err := tx.Holders().Lock(ctx, holder.ID); err != nil {
		return nil, fmt.Errorf("lock holder: %w", err)
	}
	// Re-read under the lock so the aggregates are current.
	holder, err = tx.Holders().GetByID(ctx, holder.ID)
	if err != nil {
		return nil, fmt.Errorf("reload holder: %w", err)
	}

	rec := &domain.TransactionEvent{
		Signature:             ev.Signature,
		TokenID:               token.ID,
		HolderID:              holder.ID,
		Type:                  ev.Type,
		Amount:                ev.Amount,
		PricePerToken:         ev.PricePerToken,
		TotalValue:            ev.TotalValue,
		BlockTime:             ev.BlockTime,
		Slot:                  ev.Slot,
		BlockHash:             ev.BlockHash,
		InstructionIndex:      ev.InstructionIndex,
		InnerInstructionIndex: ev.InnerInstructionIndex,
	}
	if err := tx.Transactions().Insert(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%s: %w", ev.Signature, ErrDuplicateTransaction)
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	res, err := p.updater.Apply(ctx, tx, holder, rec)
	if err != nil {
		return nil, err
	}
	return &Applied{
		Token:       token,
		Holder:      res.Holder,
		Transaction: rec,
		Lot:         res.Lot,
		Sale:        res.Sale,
	}, nil
}
