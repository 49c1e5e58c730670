// Package feed connects the ledger to its upstream event sources: a
// websocket stream for live events and a REST endpoint for token history.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
)

// ErrUnknownMessage is returned for messages whose type is not understood.
var ErrUnknownMessage = errors.New("unknown message type")

// Wire message types.
const (
	messageTransaction = "transaction"
	messageLaunch      = "launch"
	messageGraduation  = "graduation"
)

// Subscription methods.
const (
	methodSubscribeTokenTrade = "subscribeTokenTrade"
	methodSubscribeNewToken   = "subscribeNewToken"
	methodSubscribeMigration  = "subscribeMigration"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// wireTrade is the inbound transaction contract. Amount accepts a decimal
// string or a JSON number.
type wireTrade struct {
	Signature             string          `json:"signature"`
	TokenAddress          string          `json:"tokenAddress"`
	WalletAddress         string          `json:"walletAddress"`
	Type                  string          `json:"type"`
	Amount                decimal.Decimal `json:"amount"`
	PricePerToken         float64         `json:"pricePerToken"`
	TotalValue            float64         `json:"totalValue"`
	BlockTime             int64           `json:"blockTime"`
	Slot                  int64           `json:"slot"`
	BlockHash             *string         `json:"blockHash,omitempty"`
	InstructionIndex      *int            `json:"instructionIndex,omitempty"`
	InnerInstructionIndex *int            `json:"innerInstructionIndex,omitempty"`
}

func (w *wireTrade) event() domain.TradeEvent {
	return domain.TradeEvent{
		Signature:             w.Signature,
		TokenAddress:          w.TokenAddress,
		WalletAddress:         w.WalletAddress,
		Type:                  domain.TransactionType(w.Type),
		Amount:                w.Amount,
		PricePerToken:         w.PricePerToken,
		TotalValue:            w.TotalValue,
		BlockTime:             w.BlockTime,
		Slot:                  w.Slot,
		BlockHash:             w.BlockHash,
		InstructionIndex:      w.InstructionIndex,
		InnerInstructionIndex: w.InnerInstructionIndex,
	}
}

type wireLaunch struct {
	TokenAddress string `json:"tokenAddress"`
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Decimals     int    `json:"decimals"`
	Creator      string `json:"creator"`
	BlockTime    int64  `json:"blockTime"`
}

type wireGraduation struct {
	TokenAddress string `json:"tokenAddress"`
	BlockTime    int64  `json:"blockTime"`
}

// DecodeMessage parses one stream message into a typed feed event.
// Field-level validation is left to the ingestion side.
func DecodeMessage(raw []byte) (domain.FeedEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case messageTransaction:
		var w wireTrade
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("unmarshal transaction: %w", err)
		}
		return w.event(), nil

	case messageLaunch:
		var w wireLaunch
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("unmarshal launch: %w", err)
		}
		return domain.LaunchEvent{
			TokenAddress: w.TokenAddress,
			Symbol:       w.Symbol,
			Name:         w.Name,
			Decimals:     w.Decimals,
			Creator:      w.Creator,
			BlockTime:    w.BlockTime,
		}, nil

	case messageGraduation:
		var w wireGraduation
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("unmarshal graduation: %w", err)
		}
		return domain.GraduationEvent{TokenAddress: w.TokenAddress, BlockTime: w.BlockTime}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
}
