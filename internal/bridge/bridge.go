// Package bridge converts upstream signals into risk-checked, venue-ready
// orders. It is stateless orchestration: all shared state lives in the
// risk manager's store.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"riskgate/internal/auth"
	"riskgate/internal/domain"
	"riskgate/internal/risk"

	"github.com/shopspring/decimal"
)

// ErrSkipped marks a signal that produced no order without being an error:
// a flat direction, a duplicate exposure, or an invalid field.
var ErrSkipped = errors.New("signal skipped")

// Sink receives accepted orders in Execute. The audit sink renders them to
// the log; the gateway sink submits them over the wire.
type Sink interface {
	Submit(ctx context.Context, order domain.Order, riskAuthorization string) error
}

// Config carries the bridge-level tunables.
type Config struct {
	TakeProfitPct decimal.Decimal
	StopLossPct   decimal.Decimal
	MagicTag      int64
	Comment       string
}

// Bridge assembles orders from signals.
type Bridge struct {
	cfg  Config
	risk *risk.Manager
	auth *auth.Authorizer
}

// New creates a bridge over the given risk manager and authorizer.
func New(cfg Config, manager *risk.Manager, authorizer *auth.Authorizer) *Bridge {
	if cfg.Comment == "" {
		cfg.Comment = "riskgate"
	}
	return &Bridge{cfg: cfg, risk: manager, auth: authorizer}
}

// SignalToOrder converts one signal into an order, or returns an error
// wrapping ErrSkipped when the signal produces none. A skipped signal is
// terminal: it is never retried.
func (b *Bridge) SignalToOrder(sig domain.Signal) (*domain.Order, error) {
	if !sig.Direction.Tradeable() {
		return nil, errSkip("direction", string(sig.Direction))
	}
	if sig.ReferencePrice.LessThanOrEqual(decimal.Zero) {
		return nil, errSkip("reference_price", sig.ReferencePrice.String())
	}
	if sig.Confidence.LessThan(decimal.Zero) || sig.Confidence.GreaterThan(decimal.NewFromInt(1)) {
		return nil, errSkip("confidence", sig.Confidence.String())
	}

	tp, sl := risk.ComputeTPSL(sig.ReferencePrice, sig.Direction, b.cfg.TakeProfitPct, b.cfg.StopLossPct)
	volume := b.risk.ComputeLotSize(sig.ReferencePrice, sl)

	order := &domain.Order{
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		Volume:     volume,
		EntryPrice: sig.ReferencePrice,
		StopLoss:   sl,
		TakeProfit: tp,
		MagicTag:   b.cfg.MagicTag,
		Comment:    b.cfg.Comment,
		CreatedAt:  time.Now().UTC(),
	}

	// Validate before registering so a dropped order never leaves a
	// phantom exposure behind.
	if err := b.risk.ValidateOrder(order, sig.ReferencePrice); err != nil {
		slog.Warn("Order dropped by validation",
			slog.String("symbol", sig.Symbol),
			slog.String("direction", string(sig.Direction)),
			slog.Any("error", err))
		return nil, errors.Join(ErrSkipped, err)
	}

	if err := b.risk.CheckAndRegister(sig.Symbol, sig.Direction, volume, sig.ReferencePrice); err != nil {
		var dup *domain.DuplicateExposureError
		if errors.As(err, &dup) {
			slog.Info("Signal suppressed: exposure already open",
				slog.String("symbol", sig.Symbol),
				slog.String("direction", string(sig.Direction)))
			return nil, errors.Join(ErrSkipped, err)
		}
		return nil, err
	}

	return order, nil
}

// ConvertBatch applies SignalToOrder to each signal in arrival order,
// stopping once limit accepted orders exist (limit <= 0 means unbounded).
// Input order is preserved; rejected signals are never retried.
func (b *Bridge) ConvertBatch(signals []domain.Signal, limit int) []domain.Order {
	orders := make([]domain.Order, 0, len(signals))
	for _, sig := range signals {
		if limit > 0 && len(orders) >= limit {
			break
		}
		order, err := b.SignalToOrder(sig)
		if err != nil {
			if !errors.Is(err, ErrSkipped) {
				slog.Error("Signal conversion failed",
					slog.String("symbol", sig.Symbol), slog.Any("error", err))
			}
			continue
		}
		orders = append(orders, *order)
	}
	return orders
}

// Execute feeds accepted orders to the sink, minting a fresh
// risk-authorization token per order. In dry-run mode the sink is the
// audit log and nothing leaves the process.
func (b *Bridge) Execute(ctx context.Context, orders []domain.Order, sink Sink) error {
	for i := range orders {
		token := b.auth.Mint(&orders[i])
		if err := sink.Submit(ctx, orders[i], token); err != nil {
			return err
		}
	}
	return nil
}

// AuditSink renders orders in full detail to the structured log.
// No side effects, no state mutation: the dry-run execution mode.
type AuditSink struct{}

// Submit implements Sink.
func (AuditSink) Submit(_ context.Context, order domain.Order, riskAuthorization string) error {
	slog.Info("DRY RUN order",
		slog.String("symbol", order.Symbol),
		slog.String("direction", string(order.Direction)),
		slog.String("volume", order.Volume.String()),
		slog.String("entry", order.EntryPrice.String()),
		slog.String("sl", order.StopLoss.String()),
		slog.String("tp", order.TakeProfit.String()),
		slog.Int64("magic", order.MagicTag),
		slog.String("comment", order.Comment),
		slog.String("risk_authorization", riskAuthorization))
	return nil
}

func errSkip(field, value string) error {
	return errors.Join(ErrSkipped, &domain.ValidationError{Field: field, Reason: "unusable value " + value})
}
