package ingestion

import (
	"errors"
	"sort"

	"solana-holder-ledger/internal/domain"
)

// ErrInvalidOrdering is returned when events are not in application order.
var ErrInvalidOrdering = errors.New("events are not in block time order")

// SortByBlockTime orders events by (block_time ASC, slot ASC, instruction_index ASC).
// The sort is stable, so events the source returned oldest-first keep their
// relative order when those keys tie.
func SortByBlockTime(events []domain.TradeEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareTrades(&events[i], &events[j]) < 0
	})
}

// ValidateOrdering checks that events are in non-decreasing application order.
func ValidateOrdering(events []domain.TradeEvent) error {
	for i := 1; i < len(events); i++ {
		if compareTrades(&events[i-1], &events[i]) > 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareTrades returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (block_time ASC, slot ASC, instruction_index ASC, inner_instruction_index ASC).
// Missing indexes compare equal.
func compareTrades(a, b *domain.TradeEvent) int {
	if c := cmpInt64(a.BlockTime, b.BlockTime); c != 0 {
		return c
	}
	if c := cmpInt64(a.Slot, b.Slot); c != 0 {
		return c
	}
	if a.InstructionIndex != nil && b.InstructionIndex != nil {
		if c := cmpInt64(int64(*a.InstructionIndex), int64(*b.InstructionIndex)); c != 0 {
			return c
		}
		if a.InnerInstructionIndex != nil && b.InnerInstructionIndex != nil {
			return cmpInt64(int64(*a.InnerInstructionIndex), int64(*b.InnerInstructionIndex))
		}
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
