package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tovfikur/virtual-world-sub003/domain/instrument"
	"github.com/tovfikur/virtual-world-sub003/domain/market"
	"github.com/tovfikur/virtual-world-sub003/domain/order"
	"github.com/tovfikur/virtual-world-sub003/infra/journal"
	"github.com/tovfikur/virtual-world-sub003/infra/logging"
	"github.com/tovfikur/virtual-world-sub003/infra/metrics"
	"github.com/tovfikur/virtual-world-sub003/infra/outbox"
	"github.com/tovfikur/virtual-world-sub003/infra/store"
)

func d(v string) decimal.Decimal {
	x, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return x
}

func landA() instrument.Instrument {
	return instrument.Instrument{
		Symbol:   "LAND-A",
		Class:    instrument.AssetLand,
		TickSize: d("0.01"),
		LotSize:  d("1"),
		Status:   instrument.Active,
	}
}

// newTestExchange wires an in-memory exchange: no journal, no store,
// no outbox.
func newTestExchange(t *testing.T) *Exchange {
	t.Helper()
	x := NewExchange(Deps{Log: logging.Nop(), Metrics: metrics.New()})
	require.NoError(t, x.UpsertInstrument(context.Background(), landA()))
	return x
}

func limitReq(side order.Side, price, qty string, tif order.TimeInForce) SubmitRequest {
	return SubmitRequest{
		Symbol: "LAND-A",
		Owner:  "alice",
		Side:   side,
		Type:   order.Limit,
		TIF:    tif,
		Qty:    d(qty),
		Price:  d(price),
	}
}

func TestSubmitMatchAndResult(t *testing.T) {
	x := newTestExchange(t)
	ctx := context.Background()

	rest, err := x.SubmitOrder(ctx, limitReq(order.Sell, "100.00", "5", order.GTC))
	require.NoError(t, err)
	assert.Equal(t, order.Resting, rest.Status)

	res, err := x.SubmitOrder(ctx, limitReq(order.Buy, "100.00", "5", order.GTC))
	require.NoError(t, err)
	assert.Equal(t, order.Filled, res.Status)
	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].Price.Equal(d("100.00")))

	last, ok := x.LastPrice("LAND-A")
	require.True(t, ok)
	assert.True(t, last.Equal(d("100.00")))
}

func TestAdmissionRejectsUnknownInstrument(t *testing.T) {
	x := newTestExchange(t)
	req := limitReq(order.Buy, "100.00", "1", order.GTC)
	req.Symbol = "NOPE"
	_, err := x.SubmitOrder(context.Background(), req)
	assert.True(t, order.IsValidation(err))
}

func TestAdmissionRejectsTickAndLotViolations(t *testing.T) {
	x := newTestExchange(t)
	ctx := context.Background()

	_, err := x.SubmitOrder(ctx, limitReq(order.Buy, "100.005", "1", order.GTC))
	assert.True(t, order.IsValidation(err), "price off tick")

	_, err = x.SubmitOrder(ctx, limitReq(order.Buy, "100.00", "1.5", order.GTC))
	assert.True(t, order.IsValidation(err), "quantity off lot")
}

func TestAdmissionRejectsMarginWhenNotPermitted(t *testing.T) {
	x := newTestExchange(t)
	req := limitReq(order.Buy, "100.00", "1", order.GTC)
	req.Margin = true
	req.Leverage = d("2")
	_, err := x.SubmitOrder(context.Background(), req)
	assert.True(t, order.IsValidation(err))
}

func TestHaltBlocksAdmissionButKeepsBook(t *testing.T) {
	x := newTestExchange(t)
	ctx := context.Background()

	_, err := x.SubmitOrder(ctx, limitReq(order.Sell, "100.00", "5", order.GTC))
	require.NoError(t, err)

	require.NoError(t, x.SetMarketState(ctx, "LAND-A", market.Halted, "circuit breaker"))

	_, err = x.SubmitOrder(ctx, limitReq(order.Buy, "100.00", "1", order.GTC))
	assert.ErrorIs(t, err, order.ErrMarketHalted)

	depth := x.Depth("LAND-A", order.Sell, 5)
	require.Len(t, depth, 1)
	assert.True(t, depth[0].Qty.Equal(d("5")), "resting orders freeze, not cancel")

	// Reopen and trade normally.
	require.NoError(t, x.SetMarketState(ctx, "LAND-A", market.Open, ""))
	res, err := x.SubmitOrder(ctx, limitReq(order.Buy, "100.00", "5", order.GTC))
	require.NoError(t, err)
	assert.Equal(t, order.Filled, res.Status)
}

func TestGlobalHaltCoversAllInstruments(t *testing.T) {
	x := newTestExchange(t)
	ctx := context.Background()

	require.NoError(t, x.SetMarketState(ctx, market.GlobalScope, market.Closed, "end of day"))
	_, err := x.SubmitOrder(ctx, limitReq(order.Buy, "100.00", "1", order.GTC))
	assert.ErrorIs(t, err, order.ErrMarketClosed)
}

func TestSetMarketStateUnknownScope(t *testing.T) {
	x := newTestExchange(t)
	err := x.SetMarketState(context.Background(), "NOPE", market.Halted, "")
	assert.True(t, order.IsValidation(err))
}

func TestCancelRoutesAndIsIdempotent(t *testing.T) {
	x := newTestExchange(t)
	ctx := context.Background()

	res, err := x.SubmitOrder(ctx, limitReq(order.Buy, "99.00", "2", order.GTC))
	require.NoError(t, err)

	c, err := x.CancelOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.False(t, c.AlreadyTerminal)

	c, err = x.CancelOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.True(t, c.AlreadyTerminal)

	c, err = x.CancelOrder(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, c.AlreadyTerminal, "unknown order cancels as a no-op")
}

func TestInstrumentIsolation(t *testing.T) {
	x := newTestExchange(t)
	ctx := context.Background()

	landB := landA()
	landB.Symbol = "LAND-B"
	require.NoError(t, x.UpsertInstrument(ctx, landB))

	_, err := x.SubmitOrder(ctx, limitReq(order.Sell, "100.00", "5", order.GTC))
	require.NoError(t, err)

	reqB := limitReq(order.Buy, "100.00", "5", order.GTC)
	reqB.Symbol = "LAND-B"
	res, err := x.SubmitOrder(ctx, reqB)
	require.NoError(t, err)
	assert.Equal(t, order.Resting, res.Status, "books do not cross instruments")
}

func TestRecoveryRoundTrip(t *testing.T) {
	jrnDir := t.TempDir()
	dbDir := t.TempDir()
	outDir := t.TempDir()
	ctx := context.Background()

	openAll := func() (*Exchange, func()) {
		jrn, err := journal.Open(journal.Config{Dir: jrnDir, SegmentSize: 1 << 20, SegmentDuration: time.Hour})
		require.NoError(t, err)
		db, err := store.Open(dbDir)
		require.NoError(t, err)
		out, err := outbox.Open(outDir)
		require.NoError(t, err)
		x := NewExchange(Deps{
			Log: logging.Nop(), Journal: jrn, Store: db, Outbox: out, Metrics: metrics.New(),
		})
		closeAll := func() {
			_ = jrn.Close()
			_ = db.Close()
			_ = out.Close()
		}
		return x, closeAll
	}

	// First life: reference data, a resting order, a halt.
	x1, close1 := openAll()
	require.NoError(t, x1.Recover(jrnDir))
	require.NoError(t, x1.UpsertInstrument(ctx, landA()))
	res, err := x1.SubmitOrder(ctx, limitReq(order.Sell, "105.00", "3", order.GTC))
	require.NoError(t, err)
	require.NoError(t, x1.SetMarketState(ctx, "LAND-A", market.Halted, "incident"))
	close1()

	// Second life: everything comes back from journal and store.
	x2, close2 := openAll()
	defer close2()
	require.NoError(t, x2.Recover(jrnDir))

	assert.Len(t, x2.Instruments(), 1)
	assert.Equal(t, market.Halted, x2.MarketStatus("LAND-A").State)

	depth := x2.Depth("LAND-A", order.Sell, 5)
	require.Len(t, depth, 1)
	assert.True(t, depth[0].Price.Equal(d("105.00")))
	assert.True(t, depth[0].Qty.Equal(d("3")))

	// The recovered order is still cancellable under its old ID.
	c, err := x2.CancelOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.False(t, c.AlreadyTerminal)
}

func TestRecoveryPreservesTimePriority(t *testing.T) {
	jrnDir := t.TempDir()
	dbDir := t.TempDir()
	ctx := context.Background()

	openAll := func() (*Exchange, func()) {
		jrn, err := journal.Open(journal.Config{Dir: jrnDir, SegmentSize: 1 << 20, SegmentDuration: time.Hour})
		require.NoError(t, err)
		db, err := store.Open(dbDir)
		require.NoError(t, err)
		x := NewExchange(Deps{Log: logging.Nop(), Journal: jrn, Store: db, Metrics: metrics.New()})
		return x, func() {
			_ = jrn.Close()
			_ = db.Close()
		}
	}

	owners := []string{"o1", "o2", "o3", "o4", "o5", "o6", "o7", "o8"}

	x1, close1 := openAll()
	require.NoError(t, x1.Recover(jrnDir))
	require.NoError(t, x1.UpsertInstrument(ctx, landA()))
	for _, owner := range owners {
		req := limitReq(order.Sell, "100.00", "1", order.GTC)
		req.Owner = owner
		_, err := x1.SubmitOrder(ctx, req)
		require.NoError(t, err)
	}
	// Restore must come from the snapshot, not the journal.
	x1.snapshotOnce()
	close1()

	x2, close2 := openAll()
	defer close2()
	require.NoError(t, x2.Recover(jrnDir))

	// Lift the level one unit at a time: fills must come back in
	// admission order.
	for _, want := range owners {
		res, err := x2.SubmitOrder(ctx, limitReq(order.Buy, "100.00", "1", order.IOC))
		require.NoError(t, err)
		require.Len(t, res.Trades, 1)
		assert.Equal(t, want, res.Trades[0].SellOwner)
	}
}

func TestSnapshotCoversJournal(t *testing.T) {
	jrnDir := t.TempDir()
	dbDir := t.TempDir()
	ctx := context.Background()

	jrn, err := journal.Open(journal.Config{Dir: jrnDir, SegmentSize: 1 << 20, SegmentDuration: time.Hour})
	require.NoError(t, err)
	db, err := store.Open(dbDir)
	require.NoError(t, err)
	defer db.Close()

	x := NewExchange(Deps{Log: logging.Nop(), Journal: jrn, Store: db, Metrics: metrics.New()})
	require.NoError(t, x.Recover(jrnDir))
	require.NoError(t, x.UpsertInstrument(ctx, landA()))
	_, err = x.SubmitOrder(ctx, limitReq(order.Buy, "98.00", "2", order.GTC))
	require.NoError(t, err)

	x.snapshotOnce()
	require.NoError(t, jrn.Close())

	wm, err := db.Watermarks()
	require.NoError(t, err)
	assert.NotZero(t, wm["LAND-A"])

	count := 0
	require.NoError(t, db.Orders(func(o *order.Order) error {
		count++
		assert.Equal(t, "LAND-A", o.Symbol)
		return nil
	}))
	assert.Equal(t, 1, count)
}

func TestSnapshotConcurrentWithMatching(t *testing.T) {
	dbDir := t.TempDir()
	ctx := context.Background()

	db, err := store.Open(dbDir)
	require.NoError(t, err)
	defer db.Close()

	x := NewExchange(Deps{Log: logging.Nop(), Store: db, Metrics: metrics.New()})
	require.NoError(t, x.UpsertInstrument(ctx, landA()))

	// Matching keeps mutating order state while snapshots run; the
	// snapshot must only ever see copies taken under the session lock.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_, _ = x.SubmitOrder(ctx, limitReq(order.Sell, "100.00", "1", order.GTC))
			if i%2 == 0 {
				_, _ = x.SubmitOrder(ctx, limitReq(order.Buy, "100.00", "1", order.IOC))
			}
		}
	}()
	for i := 0; i < 50; i++ {
		x.snapshotOnce()
	}
	<-done

	// Quiesced: the final snapshot must match the live book exactly.
	x.snapshotOnce()
	var stored int
	require.NoError(t, db.Orders(func(o *order.Order) error {
		stored++
		return nil
	}))
	depth := x.Depth("LAND-A", order.Sell, 1)
	require.Len(t, depth, 1)
	assert.Equal(t, stored, depth[0].Orders)
}

func TestOutboxReceivesTradeEvents(t *testing.T) {
	outDir := t.TempDir()
	ctx := context.Background()

	out, err := outbox.Open(outDir)
	require.NoError(t, err)
	defer out.Close()

	x := NewExchange(Deps{Log: logging.Nop(), Outbox: out, Metrics: metrics.New()})
	require.NoError(t, x.UpsertInstrument(ctx, landA()))

	_, err = x.SubmitOrder(ctx, limitReq(order.Sell, "100.00", "1", order.GTC))
	require.NoError(t, err)
	_, err = x.SubmitOrder(ctx, limitReq(order.Buy, "100.00", "1", order.GTC))
	require.NoError(t, err)

	kinds := map[outbox.Kind]int{}
	require.NoError(t, out.ScanPending(func(rec outbox.Record) error {
		kinds[rec.Kind]++
		return nil
	}))
	assert.Equal(t, 1, kinds[outbox.KindTrade])
	assert.GreaterOrEqual(t, kinds[outbox.KindOrderState], 3, "resting, then two fills")
}
