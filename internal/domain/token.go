package domain

// TokenStatus is the lifecycle state of a tracked token.
type TokenStatus string

// Token status constants. Transitions are forward-only: tracking → graduated.
const (
	TokenStatusTracking  TokenStatus = "tracking"
	TokenStatusGraduated TokenStatus = "graduated"
)

// rank orders statuses for forward-only transition checks.
func (s TokenStatus) rank() int {
	switch s {
	case TokenStatusTracking:
		return 0
	case TokenStatusGraduated:
		return 1
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s TokenStatus) Valid() bool {
	return s.rank() >= 0
}

// CanTransitionTo reports whether moving from s to next is a forward transition.
// Staying in the same status is not a transition.
func (s TokenStatus) CanTransitionTo(next TokenStatus) bool {
	return next.Valid() && next.rank() > s.rank()
}

// Token represents a tracked fungible asset.
// Corresponds to tokens table in PostgreSQL.
type Token struct {
	ID          int64       // BIGSERIAL primary key
	Address     string      // mint address, unique and immutable
	Symbol      *string     // token symbol (nullable until launch metadata arrives)
	Name        *string     // token name (nullable)
	Decimals    int         // token decimals
	Status      TokenStatus // tracking | graduated
	GraduatedAt *int64      // unix seconds of graduation (nullable)
	CreatedAt   int64       // record creation timestamp (ms)
}
