package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// VenueConnector defines the interface for the trading-terminal API the
// gateway drives. Implementations are synchronous within a request; every
// call honors the context deadline.
type VenueConnector interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool

	PlaceOrder(ctx context.Context, order Order) (*OrderResult, error)
	ClosePosition(ctx context.Context, ticket int64, volume decimal.Decimal) (*CloseResult, error)
	Account(ctx context.Context) (*AccountSnapshot, error)
	Positions(ctx context.Context, symbol string) ([]Position, error)
}

// ExposureRegistry defines how callers register and release open exposures.
// CheckAndRegister is a single critical-section operation: the duplicate
// check and the insert must not be separable.
type ExposureRegistry interface {
	CheckAndRegister(symbol string, direction Direction, volume, price decimal.Decimal) error
	Unregister(symbol string, direction Direction) error
	Snapshot() map[string]OpenExposure
}
