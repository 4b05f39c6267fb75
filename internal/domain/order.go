package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is an in-flight, risk-checked order. It exists only until the
// gateway accepts or rejects it; confirmed exposure lives in OpenExposure.
// All monetary values are strictly decimal, never binary floats.
type Order struct {
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	Volume     decimal.Decimal `json:"volume"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	MagicTag   int64           `json:"magic_tag"`
	Comment    string          `json:"comment"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OpenExposure is a confirmed open position as the risk layer believes it
// exists, keyed by (symbol, direction). At most one exposure may exist per
// key; that is the duplicate-prevention invariant.
type OpenExposure struct {
	Volume       decimal.Decimal `json:"volume"`
	Price        decimal.Decimal `json:"price"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// ExposureKey builds the canonical map key for a (symbol, direction) pair.
func ExposureKey(symbol string, direction Direction) string {
	return symbol + ":" + string(direction)
}
