package risk

import (
	"context"
	"testing"

	"riskgate/internal/domain"
	"riskgate/internal/venue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_AlignsStoreWithVenue(t *testing.T) {
	m := newTestManager(t, testParams())
	ctx := context.Background()

	sim := venue.NewSim(dec("10000"))
	require.NoError(t, sim.Connect(ctx))
	sim.UpdatePrice("EURUSD", dec("1.1"))

	// Venue holds one EURUSD BUY position the store knows nothing about.
	_, err := sim.PlaceOrder(ctx, domain.Order{
		Symbol:     "EURUSD",
		Direction:  domain.DirectionBuy,
		Volume:     dec("0.5"),
		EntryPrice: dec("1.1"),
	})
	require.NoError(t, err)

	// The store holds a stale GBPUSD exposure with no backing position.
	require.NoError(t, m.CheckAndRegister("GBPUSD", domain.DirectionSell, dec("1"), dec("1.25")))

	require.NoError(t, m.Reconcile(ctx, sim))

	assert.True(t, m.Store().Has("EURUSD", domain.DirectionBuy), "venue position should be registered")
	assert.False(t, m.Store().Has("GBPUSD", domain.DirectionSell), "stale exposure should be removed")
	assert.Equal(t, 1, m.Store().Len())
}

func TestReconcile_VenueFaultSurfaces(t *testing.T) {
	m := newTestManager(t, testParams())
	ctx := context.Background()

	sim := venue.NewSim(dec("10000"))
	require.NoError(t, sim.Connect(ctx))
	sim.FailNextWith(assert.AnError)

	assert.Error(t, m.Reconcile(ctx, sim))
}
