package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/ingestion"
	"solana-holder-ledger/internal/ledger"
	"solana-holder-ledger/internal/position"
	"solana-holder-ledger/internal/registry"
	"solana-holder-ledger/internal/storage"
	"solana-holder-ledger/internal/storage/memory"
)

// ReplayVerifier implements Verifier by re-applying each holder's committed
// transactions to a scratch in-memory ledger.
type ReplayVerifier struct {
	repos  storage.Repositories
	logger *zap.Logger
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	Repos  storage.Repositories
	Logger *zap.Logger
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayVerifier{
		repos:  opts.Repos,
		logger: logger.Named("verifier"),
	}
}

// VerifyHolder verifies a single holder by replaying its transactions.
func (v *ReplayVerifier) VerifyHolder(ctx context.Context, tokenAddress, wallet string) (*VerificationResult, error) {
	token, err := v.repos.Tokens().GetByAddress(ctx, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", tokenAddress, err)
	}
	holder, err := v.repos.Holders().GetByWallet(ctx, token.ID, wallet)
	if err != nil {
		return nil, fmt.Errorf("get holder %s: %w", wallet, err)
	}
	return v.verify(ctx, token, holder)
}

// VerifyToken verifies every holder of a token. A holder whose replay fails
// is recorded as divergent with an Error field.
func (v *ReplayVerifier) VerifyToken(ctx context.Context, tokenAddress string) (*VerificationReport, error) {
	token, err := v.repos.Tokens().GetByAddress(ctx, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", tokenAddress, err)
	}
	holders, err := v.repos.Holders().ListByToken(ctx, token.ID)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}

	report := &VerificationReport{
		TokenAddress: token.Address,
		TotalHolders: len(holders),
		Results:      make([]VerificationResult, 0, len(holders)),
	}

	for _, h := range holders {
		result, err := v.verify(ctx, token, h)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			result = &VerificationResult{
				WalletAddress: h.WalletAddress,
				HolderID:      h.ID,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			}
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedHolders++
		} else {
			report.DivergentHolders++
			v.logger.Warn("holder diverges from replay",
				zap.String("token", token.Address),
				zap.String("wallet", h.WalletAddress),
				zap.Int("divergences", len(result.Divergences)),
			)
		}
	}

	return report, nil
}

func (v *ReplayVerifier) verify(ctx context.Context, token *domain.Token, holder *domain.Holder) (*VerificationResult, error) {
	storedLots, err := v.repos.Lots().ListOpen(ctx, holder.ID)
	if err != nil {
		return nil, fmt.Errorf("list open lots: %w", err)
	}
	stored := Position{Holder: holder, Lots: ledger.Summarize(storedLots)}

	replayed, n, err := v.replay(ctx, token, holder)
	if err != nil {
		return nil, err
	}

	divergences := ComparePositions(stored, replayed)
	return &VerificationResult{
		WalletAddress: holder.WalletAddress,
		HolderID:      holder.ID,
		Transactions:  n,
		Match:         len(divergences) == 0,
		Divergences:   divergences,
	}, nil
}

// replay applies the holder's transactions in commit (ID) order, which is
// the order the live ledger applied them.
func (v *ReplayVerifier) replay(ctx context.Context, token *domain.Token, holder *domain.Holder) (Position, int, error) {
	txs, err := v.repos.Transactions().ListByHolder(ctx, holder.ID)
	if err != nil {
		return Position{}, 0, fmt.Errorf("list transactions: %w", err)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })

	scratch := memory.NewStore()
	engine := ledger.NewEngine(scratch, ledger.Options{})
	proc := ingestion.NewProcessor(ingestion.ProcessorOptions{
		Store:    scratch,
		Registry: registry.New(scratch, registry.Options{}),
		Updater:  position.NewUpdater(engine, position.Options{}),
	})

	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return Position{}, 0, err
		}
		_, err := proc.Process(ctx, domain.TradeEvent{
			Signature:             tx.Signature,
			TokenAddress:          token.Address,
			WalletAddress:         holder.WalletAddress,
			Type:                  tx.Type,
			Amount:                tx.Amount,
			PricePerToken:         tx.PricePerToken,
			TotalValue:            tx.TotalValue,
			BlockTime:             tx.BlockTime,
			Slot:                  tx.Slot,
			BlockHash:             tx.BlockHash,
			InstructionIndex:      tx.InstructionIndex,
			InnerInstructionIndex: tx.InnerInstructionIndex,
		})
		if err != nil {
			return Position{}, 0, fmt.Errorf("replay %s: %w", tx.Signature, err)
		}
	}

	if len(txs) == 0 {
		return Position{Holder: domain.NewHolder(holder.TokenID, holder.WalletAddress)}, 0, nil
	}

	t, err := scratch.Tokens().GetByAddress(ctx, token.Address)
	if err != nil {
		return Position{}, 0, fmt.Errorf("replayed token: %w", err)
	}
	h, err := scratch.Holders().GetByWallet(ctx, t.ID, holder.WalletAddress)
	if err != nil {
		return Position{}, 0, fmt.Errorf("replayed holder: %w", err)
	}
	lots, err := scratch.Lots().ListOpen(ctx, h.ID)
	if err != nil {
		return Position{}, 0, fmt.Errorf("replayed lots: %w", err)
	}
	return Position{Holder: h, Lots: ledger.Summarize(lots)}, len(txs), nil
}
