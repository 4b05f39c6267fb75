package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"riskgate/internal/domain"
	"riskgate/internal/gateway"
)

// GatewaySink submits orders to a live gateway over its wire client.
// A REJECTED response is terminal for that order, never retried.
type GatewaySink struct {
	client *gateway.Client
}

// NewGatewaySink wraps an established gateway client.
func NewGatewaySink(client *gateway.Client) *GatewaySink {
	return &GatewaySink{client: client}
}

// Submit implements Sink.
func (s *GatewaySink) Submit(_ context.Context, order domain.Order, riskAuthorization string) error {
	resp, err := s.client.Open(order, riskAuthorization)
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}

	if resp.Status != gateway.StatusFilled {
		slog.Warn("Order rejected by gateway",
			slog.String("symbol", order.Symbol),
			slog.String("code", resp.ErrorCode),
			slog.String("reason", resp.ErrorMsg))
		return nil
	}

	slog.Info("Order filled",
		slog.String("symbol", order.Symbol),
		slog.Int64("ticket", resp.Ticket),
		slog.String("price", resp.FillPrice.String()))
	return nil
}
