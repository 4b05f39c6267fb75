package risk

import (
	"testing"

	"riskgate/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testParams() Params {
	return Params{
		AccountBalance:          dec("10000"),
		RiskFraction:            dec("0.01"),
		MinLot:                  dec("0.01"),
		MaxLot:                  dec("100"),
		LotStep:                 dec("0.01"),
		PipValue:                dec("1"),
		MaxSpread:               dec("0.5"),
		MaxStopDistanceFraction: dec("0.5"),
	}
}

func newTestManager(t *testing.T, params Params) *Manager {
	t.Helper()
	store, err := NewStore(StoreConfig{BaseDir: t.TempDir(), Secret: testSecret})
	require.NoError(t, err)
	return NewManager(params, store)
}

func TestComputeLotSize_ConcreteScenario(t *testing.T) {
	m := newTestManager(t, testParams())

	// balance=10000, risk=1%, entry=150.0, stop=148.5, pip_value=1:
	// 100 / 1.5 = 66.66..., floored to the 0.01 lot step.
	volume := m.ComputeLotSize(dec("150.0"), dec("148.5"))
	assert.True(t, volume.Equal(dec("66.66")), "got %s", volume)
}

func TestComputeLotSize_Bounds(t *testing.T) {
	params := testParams()
	m := newTestManager(t, params)

	cases := []struct {
		name  string
		entry string
		stop  string
	}{
		{"tight stop clamps to max", "100", "99.999"},
		{"wide stop", "100", "50"},
		{"ordinary stop", "150", "148.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := m.ComputeLotSize(dec(tc.entry), dec(tc.stop))
			assert.True(t, v.GreaterThanOrEqual(params.MinLot), "volume %s below min", v)
			assert.True(t, v.LessThanOrEqual(params.MaxLot), "volume %s above max", v)
		})
	}
}

func TestComputeLotSize_Monotonicity(t *testing.T) {
	m := newTestManager(t, testParams())

	// Widening the stop distance never increases the lot size.
	entry := dec("100")
	prev := m.ComputeLotSize(entry, dec("99.9"))
	for _, stop := range []string{"99.5", "99", "98", "95", "90", "80"} {
		v := m.ComputeLotSize(entry, dec(stop))
		assert.True(t, v.LessThanOrEqual(prev),
			"volume grew from %s to %s when stop widened to %s", prev, v, stop)
		prev = v
	}
}

func TestComputeLotSize_InvalidInputsDegradeToMinLot(t *testing.T) {
	params := testParams()

	cases := []struct {
		name   string
		params Params
		entry  string
		stop   string
	}{
		{"zero entry", params, "0", "99"},
		{"negative stop", params, "100", "-1"},
		{"entry equals stop", params, "100", "100"},
		{"stop distance beyond half entry", params, "100", "49"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(t, tc.params)
			v := m.ComputeLotSize(dec(tc.entry), dec(tc.stop))
			assert.True(t, v.Equal(params.MinLot), "expected min lot, got %s", v)
		})
	}

	t.Run("risk fraction out of bounds", func(t *testing.T) {
		p := testParams()
		p.RiskFraction = dec("0.5")
		m := newTestManager(t, p)
		v := m.ComputeLotSize(dec("100"), dec("99"))
		assert.True(t, v.Equal(p.MinLot))
	})

	t.Run("non-positive balance", func(t *testing.T) {
		p := testParams()
		p.AccountBalance = dec("0")
		m := newTestManager(t, p)
		v := m.ComputeLotSize(dec("100"), dec("99"))
		assert.True(t, v.Equal(p.MinLot))
	})
}

func TestComputeTPSL_ConcreteScenario(t *testing.T) {
	// entry=100.0, Buy, tp_pct=2%, sl_pct=1% => tp=102.0, sl=99.0
	tp, sl := ComputeTPSL(dec("100.0"), domain.DirectionBuy, dec("0.02"), dec("0.01"))
	assert.True(t, tp.Equal(dec("102")), "tp=%s", tp)
	assert.True(t, sl.Equal(dec("99")), "sl=%s", sl)

	// Sell inverts the signs.
	tp, sl = ComputeTPSL(dec("100.0"), domain.DirectionSell, dec("0.02"), dec("0.01"))
	assert.True(t, tp.Equal(dec("98")), "tp=%s", tp)
	assert.True(t, sl.Equal(dec("101")), "sl=%s", sl)
}

func TestValidateOrder_DirectionConsistentLevels(t *testing.T) {
	m := newTestManager(t, testParams())

	buy := &domain.Order{
		Symbol:     "EURUSD",
		Direction:  domain.DirectionBuy,
		Volume:     dec("1"),
		EntryPrice: dec("100"),
		StopLoss:   dec("99"),
		TakeProfit: dec("102"),
	}
	require.NoError(t, m.ValidateOrder(buy, decimal.Zero))

	// Buy with inverted levels: sl < entry < tp violated.
	bad := *buy
	bad.StopLoss = dec("101")
	err := m.ValidateOrder(&bad, decimal.Zero)
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)

	sell := &domain.Order{
		Symbol:     "EURUSD",
		Direction:  domain.DirectionSell,
		Volume:     dec("1"),
		EntryPrice: dec("100"),
		StopLoss:   dec("101"),
		TakeProfit: dec("98"),
	}
	require.NoError(t, m.ValidateOrder(sell, decimal.Zero))

	badSell := *sell
	badSell.TakeProfit = dec("103")
	require.Error(t, m.ValidateOrder(&badSell, decimal.Zero))
}

func TestValidateOrder_FieldChecks(t *testing.T) {
	m := newTestManager(t, testParams())

	base := domain.Order{
		Symbol:     "EURUSD",
		Direction:  domain.DirectionBuy,
		Volume:     dec("1"),
		EntryPrice: dec("100"),
		StopLoss:   dec("99"),
		TakeProfit: dec("102"),
	}

	mutate := func(fn func(*domain.Order)) *domain.Order {
		o := base
		fn(&o)
		return &o
	}

	cases := []struct {
		name  string
		order *domain.Order
	}{
		{"missing symbol", mutate(func(o *domain.Order) { o.Symbol = "" })},
		{"flat direction", mutate(func(o *domain.Order) { o.Direction = domain.DirectionFlat })},
		{"zero volume", mutate(func(o *domain.Order) { o.Volume = decimal.Zero })},
		{"volume above max lot", mutate(func(o *domain.Order) { o.Volume = dec("1000") })},
		{"negative stop", mutate(func(o *domain.Order) { o.StopLoss = dec("-1") })},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, m.ValidateOrder(tc.order, decimal.Zero))
		})
	}

	t.Run("nil order", func(t *testing.T) {
		assert.Error(t, m.ValidateOrder(nil, decimal.Zero))
	})
}

func TestValidateOrder_SpreadBound(t *testing.T) {
	m := newTestManager(t, testParams()) // max_spread = 0.5

	order := &domain.Order{
		Symbol:     "EURUSD",
		Direction:  domain.DirectionBuy,
		Volume:     dec("1"),
		EntryPrice: dec("100"),
		StopLoss:   dec("99"),
		TakeProfit: dec("102"),
	}

	// Entry within the spread bound of the current price.
	require.NoError(t, m.ValidateOrder(order, dec("100.3")))

	// Entry too far from the current price.
	require.Error(t, m.ValidateOrder(order, dec("101")))

	// Zero current price disables the check.
	require.NoError(t, m.ValidateOrder(order, decimal.Zero))
}

func TestManager_DuplicateSuppression(t *testing.T) {
	m := newTestManager(t, testParams())

	require.NoError(t, m.CheckAndRegister("EURUSD", domain.DirectionBuy, dec("1"), dec("100")))

	err := m.CheckAndRegister("EURUSD", domain.DirectionBuy, dec("1"), dec("100"))
	var dup *domain.DuplicateExposureError
	require.ErrorAs(t, err, &dup)

	require.NoError(t, m.Unregister("EURUSD", domain.DirectionBuy))
	require.NoError(t, m.CheckAndRegister("EURUSD", domain.DirectionBuy, dec("1"), dec("100")))
}
