package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestNewMarketForcesIOC(t *testing.T) {
	o, err := NewMarket("LAND-A", "alice", Buy, d("5"))
	require.NoError(t, err)
	assert.Equal(t, IOC, o.TIF)
	assert.Equal(t, Pending, o.Status)
	assert.True(t, o.Remaining.Equal(d("5")))
}

func TestNewLimitRejectsBadInput(t *testing.T) {
	_, err := NewLimit("", "alice", Buy, d("1"), d("10"), GTC)
	assert.True(t, IsValidation(err))

	_, err = NewLimit("LAND-A", "alice", Buy, d("0"), d("10"), GTC)
	assert.True(t, IsValidation(err))

	_, err = NewLimit("LAND-A", "alice", Buy, d("1"), d("-1"), GTC)
	assert.True(t, IsValidation(err))
}

func TestNewIcebergConstraints(t *testing.T) {
	_, err := NewIceberg("LAND-A", "alice", Sell, d("10"), d("5"), d("0"), GTC)
	assert.True(t, IsValidation(err), "zero visible slice")

	_, err = NewIceberg("LAND-A", "alice", Sell, d("10"), d("5"), d("20"), GTC)
	assert.True(t, IsValidation(err), "visible larger than total")

	_, err = NewIceberg("LAND-A", "alice", Sell, d("10"), d("5"), d("3"), IOC)
	assert.True(t, IsValidation(err), "iceberg must be GTC")

	o, err := NewIceberg("LAND-A", "alice", Sell, d("10"), d("5"), d("3"), GTC)
	require.NoError(t, err)
	assert.True(t, o.VisibleQty.Equal(d("3")))
}

func TestNewTrailingStopOffsets(t *testing.T) {
	_, err := NewTrailingStop("LAND-A", "bob", Sell, d("1"), d("0"), false, decimal.Zero)
	assert.True(t, IsValidation(err), "offset must be positive")

	o, err := NewTrailingStop("LAND-A", "bob", Sell, d("1"), d("2.5"), true, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, o.TrailPct)
	assert.True(t, o.StopPrice.IsZero(), "unseeded until first print")
}

func TestOptions(t *testing.T) {
	o, err := NewLimit("LAND-A", "alice", Buy, d("1"), d("10"), GTC,
		WithOCOGroup("g1"), WithMargin(d("3")), WithShortSell())
	require.NoError(t, err)
	assert.Equal(t, "g1", o.OCOGroup)
	assert.True(t, o.Margin)
	assert.True(t, o.Leverage.Equal(d("3")))
	assert.True(t, o.Short)
}

func TestLifecycleTransitions(t *testing.T) {
	assert.True(t, CanTransition(Pending, Resting))
	assert.True(t, CanTransition(Resting, Filled))
	assert.True(t, CanTransition(PartiallyFilled, PartiallyFilled))
	assert.False(t, CanTransition(Filled, Cancelled))
	assert.False(t, CanTransition(Cancelled, Resting))
	assert.False(t, CanTransition(Rejected, Pending))
}

func TestTransitionToRejectsIllegalEdge(t *testing.T) {
	o, err := NewLimit("LAND-A", "alice", Buy, d("1"), d("10"), GTC)
	require.NoError(t, err)

	_, err = o.TransitionTo(Filled)
	require.NoError(t, err)
	assert.True(t, o.Terminal())

	_, err = o.TransitionTo(Cancelled)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestOpenIncludesHiddenReserve(t *testing.T) {
	o, err := NewIceberg("LAND-A", "alice", Sell, d("10"), d("5"), d("3"), GTC)
	require.NoError(t, err)
	o.Remaining = d("3")
	o.Hidden = d("7")
	assert.True(t, o.Open().Equal(d("10")))
	assert.True(t, o.Executed().IsZero())
}
