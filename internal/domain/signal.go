package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a signal or order as seen by the venue.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionFlat Direction = "FLAT"
)

// Tradeable reports whether the direction maps to an actual venue side.
// FLAT and anything unknown are not tradeable.
func (d Direction) Tradeable() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Signal is the immutable output of an upstream feature/model pipeline.
// The gateway consumes it exactly once; it is never mutated or retried.
type Signal struct {
	Symbol         string          `json:"symbol"`
	Direction      Direction       `json:"direction"`
	Confidence     decimal.Decimal `json:"confidence"` // [0, 1]
	ReferencePrice decimal.Decimal `json:"reference_price"`
	Timestamp      time.Time       `json:"timestamp"`
}
