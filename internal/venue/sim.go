// Package venue provides implementations of domain.VenueConnector.
//
// Sim is a paper-trading venue used by the gateway's sim mode and by every
// test: it fills market orders at the last known reference price, keeps a
// position ledger and a simple margin model, and can be forced to drop its
// connection or fail the next call.
package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"riskgate/internal/domain"

	"github.com/shopspring/decimal"
)

// simLeverage mirrors a typical retail terminal default (1:100).
var simLeverage = decimal.NewFromInt(100)

var hundred = decimal.NewFromInt(100)

// Sim is an in-memory venue. Safe for concurrent use.
type Sim struct {
	mu         sync.Mutex
	connected  bool
	balance    decimal.Decimal
	slippage   decimal.Decimal // fractional, applied against the taker
	prices     map[string]decimal.Decimal
	positions  map[int64]domain.Position
	nextTicket int64

	failNext error // injected fault for the next venue call
}

// NewSim creates a simulated venue with the given starting balance.
func NewSim(balance decimal.Decimal) *Sim {
	return &Sim{
		balance:    balance,
		slippage:   decimal.Zero,
		prices:     make(map[string]decimal.Decimal),
		positions:  make(map[int64]domain.Position),
		nextTicket: 1000,
	}
}

// SetSlippage sets the fractional slippage applied to market fills.
func (s *Sim) SetSlippage(frac decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slippage = frac
}

// UpdatePrice sets the reference price used to fill orders on symbol.
func (s *Sim) UpdatePrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// FailNextWith makes the next venue call return err. Test hook.
func (s *Sim) FailNextWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Drop severs the connection as if the terminal went away.
func (s *Sim) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

// Connect implements domain.VenueConnector.
func (s *Sim) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewVenueError("connect", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return domain.NewVenueError("connect", err)
	}
	s.connected = true
	return nil
}

// Close implements domain.VenueConnector.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// IsConnected implements domain.VenueConnector.
func (s *Sim) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// PlaceOrder fills a market order at the reference price plus slippage.
func (s *Sim) PlaceOrder(ctx context.Context, order domain.Order) (*domain.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewVenueError("order_send", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, domain.NewVenueError("order_send", errors.New("not connected"))
	}
	if err := s.takeFault(); err != nil {
		return nil, domain.NewVenueError("order_send", err)
	}
	if !order.Direction.Tradeable() {
		return nil, domain.NewVenueRejection("order_send", fmt.Errorf("unsupported direction %q", order.Direction))
	}

	price, ok := s.prices[order.Symbol]
	if !ok {
		// No quote yet; fill at the requested entry.
		price = order.EntryPrice
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, domain.NewVenueRejection("order_send", fmt.Errorf("no price for %s", order.Symbol))
	}

	fill := price
	if s.slippage.GreaterThan(decimal.Zero) {
		adj := price.Mul(s.slippage)
		if order.Direction == domain.DirectionBuy {
			fill = price.Add(adj)
		} else {
			fill = price.Sub(adj)
		}
	}

	ticket := s.nextTicket
	s.nextTicket++
	s.positions[ticket] = domain.Position{
		Ticket:    ticket,
		Symbol:    order.Symbol,
		Direction: order.Direction,
		Volume:    order.Volume,
		OpenPrice: fill,
		Profit:    decimal.Zero,
		OpenedAt:  time.Now().UTC(),
	}

	return &domain.OrderResult{
		Ticket:     ticket,
		FillPrice:  fill,
		FillVolume: order.Volume,
	}, nil
}

// ClosePosition closes a ticket at the current reference price and
// realizes the P/L into the balance.
func (s *Sim) ClosePosition(ctx context.Context, ticket int64, volume decimal.Decimal) (*domain.CloseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewVenueError("close", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, domain.NewVenueError("close", errors.New("not connected"))
	}
	if err := s.takeFault(); err != nil {
		return nil, domain.NewVenueError("close", err)
	}

	pos, ok := s.positions[ticket]
	if !ok {
		return nil, domain.NewVenueRejection("close", domain.ErrTicketNotFound)
	}

	price, ok := s.prices[pos.Symbol]
	if !ok {
		price = pos.OpenPrice
	}

	// Full close regardless of requested volume; partial closes are not
	// modeled here.
	pnl := price.Sub(pos.OpenPrice).Mul(pos.Volume)
	if pos.Direction == domain.DirectionSell {
		pnl = pnl.Neg()
	}
	s.balance = s.balance.Add(pnl)
	delete(s.positions, ticket)

	closeTicket := s.nextTicket
	s.nextTicket++
	return &domain.CloseResult{
		CloseTicket: closeTicket,
		ClosePrice:  price,
	}, nil
}

// Account reports balance, equity and a simple 1:100 margin model.
func (s *Sim) Account(ctx context.Context) (*domain.AccountSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewVenueError("account", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, domain.NewVenueError("account", errors.New("not connected"))
	}
	if err := s.takeFault(); err != nil {
		return nil, domain.NewVenueError("account", err)
	}

	equity := s.balance
	margin := decimal.Zero
	for _, pos := range s.positions {
		notional := pos.OpenPrice.Mul(pos.Volume)
		margin = margin.Add(notional.Div(simLeverage))

		price, ok := s.prices[pos.Symbol]
		if !ok {
			continue
		}
		floating := price.Sub(pos.OpenPrice).Mul(pos.Volume)
		if pos.Direction == domain.DirectionSell {
			floating = floating.Neg()
		}
		equity = equity.Add(floating)
	}

	snap := &domain.AccountSnapshot{
		Balance:    s.balance,
		Equity:     equity,
		Margin:     margin,
		FreeMargin: equity.Sub(margin),
	}
	if margin.GreaterThan(decimal.Zero) {
		snap.MarginLevel = equity.Div(margin).Mul(hundred)
	}
	return snap, nil
}

// Positions lists open positions, optionally filtered by symbol.
// An empty book yields an empty slice, never an error.
func (s *Sim) Positions(ctx context.Context, symbol string) ([]domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewVenueError("positions", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, domain.NewVenueError("positions", errors.New("not connected"))
	}
	if err := s.takeFault(); err != nil {
		return nil, domain.NewVenueError("positions", err)
	}

	out := make([]domain.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		if symbol != "" && pos.Symbol != symbol {
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}

// takeFault consumes the injected fault, if any. Callers hold s.mu.
func (s *Sim) takeFault() error {
	if s.failNext == nil {
		return nil
	}
	err := s.failNext
	s.failNext = nil
	return err
}
