package ingestion

import (
	"math"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/solana"
)

// Validate checks an inbound trade event. With strictAddresses the token and
// wallet must also decode as 32-byte base58 keys.
func Validate(ev *domain.TradeEvent, strictAddresses bool) error {
	if ev.Signature == "" {
		return invalid("signature", "is empty")
	}
	if ev.TokenAddress == "" {
		return invalid("token_address", "is empty")
	}
	if ev.WalletAddress == "" {
		return invalid("wallet_address", "is empty")
	}
	if strictAddresses {
		if err := solana.ValidateAddress(ev.TokenAddress); err != nil {
			return invalid("token_address", err.Error())
		}
		if err := solana.ValidateAddress(ev.WalletAddress); err != nil {
			return invalid("wallet_address", err.Error())
		}
	}
	if !ev.Type.Valid() {
		return invalid("type", "must be buy, sell or transfer")
	}

	switch ev.Type {
	case domain.TransactionTypeBuy, domain.TransactionTypeSell:
		if !ev.Amount.IsPositive() {
			return invalid("amount", "must be positive")
		}
		if math.IsNaN(ev.PricePerToken) || math.IsInf(ev.PricePerToken, 0) || ev.PricePerToken < 0 {
			return invalid("price_per_token", "must be a non-negative number")
		}
	case domain.TransactionTypeTransfer:
		if ev.Amount.IsZero() {
			return invalid("amount", "must be non-zero")
		}
	}

	if math.IsNaN(ev.TotalValue) || math.IsInf(ev.TotalValue, 0) {
		return invalid("total_value", "must be a finite number")
	}
	if ev.BlockTime <= 0 {
		return invalid("block_time", "must be positive")
	}
	if ev.Slot < 0 {
		return invalid("slot", "must not be negative")
	}
	return nil
}
