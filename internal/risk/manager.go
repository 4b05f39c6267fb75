package risk

import (
	"log/slog"

	"riskgate/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	one         = decimal.NewFromInt(1)
	minFraction = decimal.RequireFromString("0.001") // 0.1%
	maxFraction = decimal.RequireFromString("0.10")  // 10%
)

// Params are the immutable risk limits for one process. Loaded from config
// at startup; the Manager never mutates them.
type Params struct {
	AccountBalance          decimal.Decimal
	RiskFraction            decimal.Decimal // per trade, 0.001..0.10
	MinLot                  decimal.Decimal
	MaxLot                  decimal.Decimal
	LotStep                 decimal.Decimal
	PipValue                decimal.Decimal
	MaxSpread               decimal.Decimal
	MaxStopDistanceFraction decimal.Decimal
}

// Manager owns the persisted order store and performs all money math.
// Everything runs on decimals; binary floating point never touches a price.
type Manager struct {
	params Params
	store  *Store
}

// NewManager creates a risk manager over an explicitly owned store.
func NewManager(params Params, store *Store) *Manager {
	return &Manager{params: params, store: store}
}

// Store exposes the underlying exposure store (for reconciliation and stats).
func (m *Manager) Store() *Store {
	return m.store
}

// ComputeLotSize sizes a position so that hitting the stop loses exactly
// the configured fraction of the balance:
//
//	volume = (balance * risk_fraction) / (|entry - stop| * pip_value)
//
// floored to the lot step and clamped to [min_lot, max_lot]. Any invalid
// input degrades to the minimum lot with a warning; sizing must never
// reject a signal outright at this layer.
func (m *Manager) ComputeLotSize(entry, stop decimal.Decimal) decimal.Decimal {
	p := m.params

	if entry.LessThanOrEqual(decimal.Zero) || stop.LessThanOrEqual(decimal.Zero) {
		slog.Warn("Lot sizing rejected: non-positive price",
			slog.String("entry", entry.String()), slog.String("stop", stop.String()))
		return p.MinLot
	}
	if entry.Equal(stop) {
		slog.Warn("Lot sizing rejected: entry equals stop", slog.String("entry", entry.String()))
		return p.MinLot
	}
	if p.AccountBalance.LessThanOrEqual(decimal.Zero) {
		slog.Warn("Lot sizing rejected: non-positive balance")
		return p.MinLot
	}
	if p.RiskFraction.LessThan(minFraction) || p.RiskFraction.GreaterThan(maxFraction) {
		slog.Warn("Lot sizing rejected: risk fraction out of bounds",
			slog.String("fraction", p.RiskFraction.String()))
		return p.MinLot
	}

	priceRisk := entry.Sub(stop).Abs()
	if priceRisk.Div(entry).GreaterThan(p.MaxStopDistanceFraction) {
		slog.Warn("Lot sizing rejected: stop distance exceeds maximum",
			slog.String("entry", entry.String()),
			slog.String("stop", stop.String()),
			slog.String("max_fraction", p.MaxStopDistanceFraction.String()))
		return p.MinLot
	}

	riskAmount := p.AccountBalance.Mul(p.RiskFraction)
	volume := riskAmount.Div(priceRisk.Mul(p.PipValue))

	// Floor to the lot step before clamping.
	if p.LotStep.GreaterThan(decimal.Zero) {
		volume = volume.Div(p.LotStep).Floor().Mul(p.LotStep)
	}

	if volume.LessThan(p.MinLot) {
		return p.MinLot
	}
	if volume.GreaterThan(p.MaxLot) {
		return p.MaxLot
	}
	return volume
}

// ComputeTPSL derives take-profit and stop-loss levels from the entry
// price. Pure function, no side effects.
//
//	Buy:  tp = entry*(1+tpPct), sl = entry*(1-slPct)
//	Sell: tp = entry*(1-tpPct), sl = entry*(1+slPct)
func ComputeTPSL(entry decimal.Decimal, direction domain.Direction, tpPct, slPct decimal.Decimal) (tp, sl decimal.Decimal) {
	if direction == domain.DirectionSell {
		tp = entry.Mul(one.Sub(tpPct))
		sl = entry.Mul(one.Add(slPct))
		return tp, sl
	}
	tp = entry.Mul(one.Add(tpPct))
	sl = entry.Mul(one.Sub(slPct))
	return tp, sl
}

// ValidateOrder checks field presence, volume bounds, positive prices and
// direction-consistent TP/SL ordering. currentPrice, when positive, also
// bounds the entry-vs-market spread. The order is never coerced: any
// failure drops it.
func (m *Manager) ValidateOrder(order *domain.Order, currentPrice decimal.Decimal) error {
	if order == nil {
		return &domain.ValidationError{Field: "order", Reason: "missing"}
	}
	if order.Symbol == "" {
		return &domain.ValidationError{Field: "symbol", Reason: "empty"}
	}
	if !order.Direction.Tradeable() {
		return &domain.ValidationError{Field: "direction", Reason: "must be BUY or SELL"}
	}
	if order.Volume.LessThanOrEqual(decimal.Zero) {
		return &domain.ValidationError{Field: "volume", Reason: "must be positive"}
	}
	if order.Volume.LessThan(m.params.MinLot) || order.Volume.GreaterThan(m.params.MaxLot) {
		return &domain.ValidationError{Field: "volume", Reason: "outside lot bounds"}
	}
	if order.EntryPrice.LessThanOrEqual(decimal.Zero) ||
		order.StopLoss.LessThanOrEqual(decimal.Zero) ||
		order.TakeProfit.LessThanOrEqual(decimal.Zero) {
		return &domain.ValidationError{Field: "price", Reason: "prices must be positive"}
	}

	switch order.Direction {
	case domain.DirectionBuy:
		// Buy: sl < entry < tp
		if !order.StopLoss.LessThan(order.EntryPrice) || !order.EntryPrice.LessThan(order.TakeProfit) {
			return &domain.ValidationError{Field: "tp_sl", Reason: "buy requires sl < entry < tp"}
		}
	case domain.DirectionSell:
		// Sell: tp < entry < sl
		if !order.TakeProfit.LessThan(order.EntryPrice) || !order.EntryPrice.LessThan(order.StopLoss) {
			return &domain.ValidationError{Field: "tp_sl", Reason: "sell requires tp < entry < sl"}
		}
	}

	if currentPrice.GreaterThan(decimal.Zero) && m.params.MaxSpread.GreaterThan(decimal.Zero) {
		spread := order.EntryPrice.Sub(currentPrice).Abs()
		if spread.GreaterThan(m.params.MaxSpread) {
			return &domain.ValidationError{Field: "entry_price", Reason: "spread vs current price exceeds maximum"}
		}
	}

	return nil
}

// CheckAndRegister registers an exposure atomically; see Store.
func (m *Manager) CheckAndRegister(symbol string, direction domain.Direction, volume, price decimal.Decimal) error {
	return m.store.CheckAndRegister(symbol, direction, volume, price)
}

// Unregister removes an exposure; see Store.
func (m *Manager) Unregister(symbol string, direction domain.Direction) error {
	return m.store.Unregister(symbol, direction)
}
