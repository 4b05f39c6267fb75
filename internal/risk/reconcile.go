package risk

import (
	"context"
	"fmt"
	"log/slog"

	"riskgate/internal/domain"
)

// Reconcile aligns the persisted exposure map with the venue's position
// list. Positions the venue holds but the store forgot are registered;
// store entries with no backing position are removed. Every correction is
// logged; the store is never adjusted silently.
func (m *Manager) Reconcile(ctx context.Context, venue domain.VenueConnector) error {
	positions, err := venue.Positions(ctx, "")
	if err != nil {
		return fmt.Errorf("reconcile: query venue positions: %w", err)
	}

	live := make(map[string]domain.Position, len(positions))
	for _, pos := range positions {
		live[domain.ExposureKey(pos.Symbol, pos.Direction)] = pos
	}

	registered := 0
	for key, pos := range live {
		if m.store.Has(pos.Symbol, pos.Direction) {
			continue
		}
		if err := m.store.CheckAndRegister(pos.Symbol, pos.Direction, pos.Volume, pos.OpenPrice); err != nil {
			slog.Warn("Reconcile: failed to register venue position",
				slog.String("key", key), slog.Any("error", err))
			continue
		}
		slog.Info("Reconcile: registered venue position missing from store",
			slog.String("symbol", pos.Symbol), slog.String("direction", string(pos.Direction)))
		registered++
	}

	removed := 0
	for key := range m.store.Snapshot() {
		if _, ok := live[key]; ok {
			continue
		}
		symbol, direction := splitExposureKey(key)
		if err := m.store.Unregister(symbol, direction); err != nil {
			slog.Warn("Reconcile: failed to remove stale exposure",
				slog.String("key", key), slog.Any("error", err))
			continue
		}
		slog.Warn("Reconcile: removed exposure with no backing venue position",
			slog.String("key", key))
		removed++
	}

	slog.Info("Reconcile complete",
		slog.Int("venue_positions", len(positions)),
		slog.Int("registered", registered),
		slog.Int("removed", removed))
	return nil
}

func splitExposureKey(key string) (string, domain.Direction) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return key[:i], domain.Direction(key[i+1:])
		}
	}
	return key, ""
}
