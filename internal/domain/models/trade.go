package models

// Side is the taker direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a single executed trade as reported by a venue.
// Immutable once constructed from wire data.
type Trade struct {
	Symbol    Symbol
	Timestamp int64 // epoch seconds
	Price     float64
	Amount    float64
	Side      Side
}
