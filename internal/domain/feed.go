package domain

import "github.com/shopspring/decimal"

// FeedEventKind tags a FeedEvent variant.
type FeedEventKind string

// Feed event kinds.
const (
	FeedEventTransaction     FeedEventKind = "transaction"
	FeedEventLaunch          FeedEventKind = "launch"
	FeedEventGraduation      FeedEventKind = "graduation"
	FeedEventConnectionState FeedEventKind = "connection_state"
)

// FeedEvent is one message delivered by the feed collaborator.
// Consumers switch on the concrete type.
type FeedEvent interface {
	Kind() FeedEventKind
}

// TradeEvent is the inbound transaction contract.
// Delivery is at-least-once; Signature is the idempotency key.
type TradeEvent struct {
	Signature             string
	TokenAddress          string
	WalletAddress         string
	Type                  TransactionType
	Amount                decimal.Decimal
	PricePerToken         float64
	TotalValue            float64
	BlockTime             int64 // unix seconds
	Slot                  int64
	BlockHash             *string
	InstructionIndex      *int
	InnerInstructionIndex *int
}

// Kind implements FeedEvent.
func (TradeEvent) Kind() FeedEventKind { return FeedEventTransaction }

// LaunchEvent announces a newly created token.
type LaunchEvent struct {
	TokenAddress string
	Symbol       string
	Name         string
	Decimals     int
	Creator      string
	BlockTime    int64
}

// Kind implements FeedEvent.
func (LaunchEvent) Kind() FeedEventKind { return FeedEventLaunch }

// GraduationEvent announces that a token left its bonding curve.
type GraduationEvent struct {
	TokenAddress string
	BlockTime    int64
}

// Kind implements FeedEvent.
func (GraduationEvent) Kind() FeedEventKind { return FeedEventGraduation }

// ConnectionState is the state of the feed transport.
type ConnectionState string

// Connection states.
const (
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// ConnectionStateEvent reports a transport state change.
type ConnectionStateEvent struct {
	State ConnectionState
	Err   error
}

// Kind implements FeedEvent.
func (ConnectionStateEvent) Kind() FeedEventKind { return FeedEventConnectionState }
