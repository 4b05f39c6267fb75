package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderResult is the venue's confirmation of a placed order.
type OrderResult struct {
	Ticket     int64           `json:"ticket"`
	FillPrice  decimal.Decimal `json:"price"`
	FillVolume decimal.Decimal `json:"volume"`
}

// CloseResult is the venue's confirmation of a closed position.
type CloseResult struct {
	CloseTicket int64           `json:"close_ticket"`
	ClosePrice  decimal.Decimal `json:"close_price"`
}

// AccountSnapshot mirrors the venue's account state at query time.
type AccountSnapshot struct {
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	Margin      decimal.Decimal `json:"margin"`
	FreeMargin  decimal.Decimal `json:"free_margin"`
	MarginLevel decimal.Decimal `json:"margin_level"`
}

// Position is an open position as reported by the venue.
type Position struct {
	Ticket    int64           `json:"ticket"`
	Symbol    string          `json:"symbol"`
	Direction Direction       `json:"type"`
	Volume    decimal.Decimal `json:"volume"`
	OpenPrice decimal.Decimal `json:"open_price"`
	Profit    decimal.Decimal `json:"profit"`
	OpenedAt  time.Time       `json:"opened_at"`
}
