package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func limit(side order.Side, price, qty string) *order.Order {
	o, err := order.NewLimit("LAND-A", "t", side, d(qty), d(price), order.GTC)
	if err != nil {
		panic(err)
	}
	return o
}

func TestInsertAndBest(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Insert(limit(order.Buy, "99", "1")))
	require.NoError(t, b.Insert(limit(order.Buy, "101", "2")))
	require.NoError(t, b.Insert(limit(order.Sell, "105", "3")))
	require.NoError(t, b.Insert(limit(order.Sell, "103", "4")))

	assert.True(t, b.BestBid().Price.Equal(d("101")))
	assert.True(t, b.BestAsk().Price.Equal(d("103")))
	assert.False(t, b.Crossed())
	assert.Equal(t, 4, b.Size())
}

func TestDuplicateInsertFails(t *testing.T) {
	b := NewBook()
	o := limit(order.Buy, "100", "1")
	require.NoError(t, b.Insert(o))
	assert.ErrorIs(t, b.Insert(o), order.ErrInternal)
}

func TestFIFOWithinLevel(t *testing.T) {
	b := NewBook()
	first := limit(order.Sell, "100", "1")
	second := limit(order.Sell, "100", "1")
	third := limit(order.Sell, "100", "1")
	for _, o := range []*order.Order{first, second, third} {
		require.NoError(t, b.Insert(o))
	}

	queue := b.PeekQueue(order.Sell, d("100"))
	require.Len(t, queue, 3)
	assert.Equal(t, first.ID, queue[0].ID)
	assert.Equal(t, second.ID, queue[1].ID)
	assert.Equal(t, third.ID, queue[2].ID)

	// Removing the middle order keeps the rest in arrival order.
	assert.NotNil(t, b.Remove(second.ID))
	queue = b.PeekQueue(order.Sell, d("100"))
	require.Len(t, queue, 2)
	assert.Equal(t, first.ID, queue[0].ID)
	assert.Equal(t, third.ID, queue[1].ID)
}

func TestFillDecrementsAndDropsEmptyLevel(t *testing.T) {
	b := NewBook()
	o := limit(order.Sell, "100", "5")
	require.NoError(t, b.Insert(o))

	removed, err := b.Fill(o.ID, d("2"))
	require.NoError(t, err)
	assert.False(t, removed)
	assert.True(t, o.Remaining.Equal(d("3")))
	assert.True(t, b.BestAsk().TotalQty.Equal(d("3")))

	removed, err = b.Fill(o.ID, d("3"))
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Nil(t, b.BestAsk())
	assert.False(t, b.Contains(o.ID))
}

func TestOverfillIsInternalError(t *testing.T) {
	b := NewBook()
	o := limit(order.Sell, "100", "1")
	require.NoError(t, b.Insert(o))
	_, err := b.Fill(o.ID, d("2"))
	assert.ErrorIs(t, err, order.ErrInternal)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	b := NewBook()
	assert.Nil(t, b.Remove(limit(order.Buy, "1", "1").ID))
}

func TestDepthAggregatesLevels(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Insert(limit(order.Buy, "100", "1")))
	require.NoError(t, b.Insert(limit(order.Buy, "100", "2")))
	require.NoError(t, b.Insert(limit(order.Buy, "99", "4")))
	require.NoError(t, b.Insert(limit(order.Buy, "98", "8")))

	depth := b.Depth(order.Buy, 2)
	require.Len(t, depth, 2)
	assert.True(t, depth[0].Price.Equal(d("100")))
	assert.True(t, depth[0].Qty.Equal(d("3")))
	assert.Equal(t, 2, depth[0].Orders)
	assert.True(t, depth[1].Price.Equal(d("99")))
}

func TestTreeSurvivesManyLevels(t *testing.T) {
	b := NewBook()
	for i := 1; i <= 200; i++ {
		require.NoError(t, b.Insert(limit(order.Sell, decimal.NewFromInt(int64(i)).String(), "1")))
	}
	assert.True(t, b.BestAsk().Price.Equal(d("1")))

	var prev decimal.Decimal
	n := 0
	b.WalkLevels(order.Sell, func(lvl *PriceLevel) bool {
		if n > 0 {
			assert.True(t, lvl.Price.GreaterThan(prev), "asks must walk ascending")
		}
		prev = lvl.Price
		n++
		return true
	})
	assert.Equal(t, 200, n)
}

func TestStopBookTriggering(t *testing.T) {
	sb := NewStopBook()

	buyStop := func(stop, qty string) *order.Order {
		o, err := order.NewStop("LAND-A", "t", order.Buy, d(qty), d(stop))
		require.NoError(t, err)
		return o
	}
	sellStop := func(stop, qty string) *order.Order {
		o, err := order.NewStop("LAND-A", "t", order.Sell, d(qty), d(stop))
		require.NoError(t, err)
		return o
	}

	b1 := buyStop("105", "1") // triggers when last >= 105
	b2 := buyStop("110", "1")
	s1 := sellStop("95", "1") // triggers when last <= 95
	s2 := sellStop("90", "1")
	for _, o := range []*order.Order{b1, b2, s1, s2} {
		require.NoError(t, sb.Park(o))
	}

	assert.Empty(t, sb.Triggered(d("100")), "no trigger inside the band")

	got := sb.Triggered(d("106"))
	require.Len(t, got, 1)
	assert.Equal(t, b1.ID, got[0].ID)
	assert.Equal(t, 3, sb.Size(), "triggered orders leave the pool")

	got = sb.Triggered(d("90"))
	require.Len(t, got, 2)
	assert.Equal(t, s1.ID, got[0].ID, "closest trigger pops first")
	assert.Equal(t, s2.ID, got[1].ID)
}

func TestStopBookReprice(t *testing.T) {
	sb := NewStopBook()
	o, err := order.NewStop("LAND-A", "t", order.Sell, d("1"), d("95"))
	require.NoError(t, err)
	require.NoError(t, sb.Park(o))

	require.NoError(t, sb.Reprice(o.ID, d("97")))
	assert.Empty(t, sb.Triggered(d("97.5")), "print above the raised stop must not trigger")
	got := sb.Triggered(d("97"))
	require.Len(t, got, 1)
	assert.True(t, got[0].StopPrice.Equal(d("97")))
}
