// Package engine implements the per-instrument matching engine:
// price-time priority matching, time-in-force resolution, the
// conditional (stop family) monitor, OCO coordination and iceberg
// slicing. One Engine instance exists per instrument and is
// single-writer: the service serializes every Submit/Cancel.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tovfikur/virtual-world-sub003/domain/market"
	"github.com/tovfikur/virtual-world-sub003/domain/order"
	"github.com/tovfikur/virtual-world-sub003/domain/orderbook"
)

const (
	reasonUser     = "user"
	reasonOCO      = "oco"
	reasonIOC      = "ioc_remainder"
	reasonMarket   = "market_remainder"
	reasonFOK      = "fok_unfilled"
	reasonNoLiquid = "no_liquidity"
)

// Engine owns one instrument's book, conditional pool and live-order
// index. It is not safe for concurrent use; callers hold the
// instrument's session lock.
type Engine struct {
	symbol string

	book  *orderbook.Book
	stops *orderbook.StopBook

	// live indexes every non-terminal order known to this engine,
	// whether resting in the book or parked conditionally.
	live map[uuid.UUID]*order.Order

	// ocoGroups maps a group ID to its live members.
	ocoGroups map[string]map[uuid.UUID]*order.Order

	// trailing holds the subset of parked orders whose stop price
	// ratchets with the market.
	trailing map[uuid.UUID]*order.Order

	// unseeded trailing stops wait here for a first trade print.
	unseeded []*order.Order

	lastPrice decimal.Decimal
	hasLast   bool

	nextSeq func() uint64
	sink    EventSink

	pending []stagedEvent

	// cyclePrices are the trade prints staged this cycle, in order;
	// triggerCursor tracks how far the trigger scan has consumed them.
	cyclePrices   []decimal.Decimal
	triggerCursor int

	// failure is set on the first invariant violation; the engine
	// refuses all further work for this instrument.
	failure error
}

func New(symbol string, nextSeq func() uint64, sink EventSink) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		symbol:    symbol,
		book:      orderbook.NewBook(),
		stops:     orderbook.NewStopBook(),
		live:      make(map[uuid.UUID]*order.Order),
		ocoGroups: make(map[string]map[uuid.UUID]*order.Order),
		trailing:  make(map[uuid.UUID]*order.Order),
		nextSeq:   nextSeq,
		sink:      sink,
	}
}

func (e *Engine) Symbol() string       { return e.symbol }
func (e *Engine) Book() *orderbook.Book { return e.book }

// Failed returns the invariant violation that froze this engine, if
// any. A failed engine rejects all traffic until investigated.
func (e *Engine) Failed() error { return e.failure }

// LastPrice returns the most recent execution price.
func (e *Engine) LastPrice() (decimal.Decimal, bool) {
	return e.lastPrice, e.hasLast
}

// RestingCount returns resting book orders plus parked conditionals.
// OpenOrders returns every non-terminal order the engine tracks,
// resting and parked alike. The snapshot job persists this set.
func (e *Engine) OpenOrders() []*order.Order {
	out := make([]*order.Order, 0, len(e.live))
	for _, o := range e.live {
		out = append(out, o)
	}
	return out
}

func (e *Engine) RestingCount() (book, conditional int) {
	return e.book.Size(), e.stops.Size() + len(e.unseeded)
}

// Submit runs one admitted order through the engine under the given
// market status and returns the trades the order itself produced.
// Cascade trades from triggered conditionals reach the sink but are
// not attributed to the submitter.
func (e *Engine) Submit(o *order.Order, st market.Status) ([]Trade, error) {
	if e.failure != nil {
		return nil, e.failure
	}
	e.beginCycle()

	o.SeqID = e.nextSeq()
	e.registerOCO(o)

	var trades []Trade
	var err error
	if o.Type.Conditional() {
		err = e.park(o)
	} else {
		trades, err = e.match(o)
	}
	if err != nil {
		return nil, e.fail(err)
	}

	if err := e.runTriggers(st); err != nil {
		return nil, e.fail(err)
	}
	if e.book.Crossed() {
		return nil, e.fail(fmt.Errorf("%w: crossed book on %s after submit %s",
			order.ErrInternal, e.symbol, o.ID))
	}

	e.flush()
	return trades, nil
}

// Cancel removes a live order. An unknown order (already filled,
// already cancelled, or never admitted) cancels as a no-op with
// alreadyTerminal true: if a fill consumed the order first, the
// fill stands.
func (e *Engine) Cancel(id uuid.UUID) (alreadyTerminal bool, err error) {
	if e.failure != nil {
		return false, e.failure
	}
	o, ok := e.live[id]
	if !ok {
		return true, nil
	}
	e.beginCycle()
	if err := e.cancelLive(o, reasonUser); err != nil {
		return false, e.fail(err)
	}
	e.flush()
	return false, nil
}

// Restore re-seats a persisted open order without matching or
// events. Used when loading a snapshot at boot.
func (e *Engine) Restore(o *order.Order) error {
	if o.SeqID == 0 {
		o.SeqID = e.nextSeq()
	}
	e.registerOCO(o)
	e.live[o.ID] = o
	if o.Type.Conditional() {
		if o.Type == order.TrailingStop {
			e.trailing[o.ID] = o
			if o.StopPrice.IsZero() {
				e.unseeded = append(e.unseeded, o)
				return nil
			}
		}
		return e.stops.Park(o)
	}
	return e.book.Insert(o)
}

// ---- lifecycle plumbing ----

func (e *Engine) beginCycle() {
	e.pending = e.pending[:0]
	e.cyclePrices = e.cyclePrices[:0]
	e.triggerCursor = 0
}

// flush delivers staged events in occurrence order, after all book
// mutation for the cycle is done.
func (e *Engine) flush() {
	for i := range e.pending {
		ev := &e.pending[i]
		if ev.kind == evTrade {
			e.sink.TradeExecuted(ev.trade)
		} else {
			e.sink.OrderStateChanged(ev.state)
		}
	}
	e.pending = e.pending[:0]
}

func (e *Engine) fail(err error) error {
	e.failure = err
	// Deliver what already happened: fills that executed before the
	// violation are real and must reach settlement.
	e.flush()
	return err
}

func (e *Engine) setStatus(o *order.Order, to order.Status, reason string) error {
	from, err := o.TransitionTo(to)
	if err != nil {
		return err
	}
	if from == to {
		return nil // repeated partial fill, no edge to report
	}
	e.pending = append(e.pending, stagedEvent{kind: evState, state: StateChange{
		OrderID: o.ID,
		Symbol:  o.Symbol,
		Owner:   o.Owner,
		From:    from,
		To:      to,
		Reason:  reason,
		Open:    o.Open(),
		At:      time.Now(),
	}})
	if o.Terminal() {
		return e.onTerminal(o)
	}
	return nil
}

// onTerminal drops the order from all indexes and fires the OCO
// hook: a fully filled or cancelled member cancels every sibling
// before the next order for this instrument is processed.
func (e *Engine) onTerminal(o *order.Order) error {
	delete(e.live, o.ID)
	delete(e.trailing, o.ID)
	e.dropUnseeded(o.ID)

	if o.OCOGroup == "" {
		return nil
	}
	group := e.ocoGroups[o.OCOGroup]
	// Detach the group before cascading so sibling terminations do
	// not re-enter it.
	delete(e.ocoGroups, o.OCOGroup)
	delete(group, o.ID)
	for _, sib := range group {
		if sib.Terminal() {
			continue
		}
		if err := e.cancelLive(sib, reasonOCO); err != nil {
			return err
		}
	}
	return nil
}

// cancelLive removes a live order from wherever it rests and marks
// it cancelled.
func (e *Engine) cancelLive(o *order.Order, reason string) error {
	e.book.Remove(o.ID)
	e.stops.Unpark(o.ID)
	return e.setStatus(o, order.Cancelled, reason)
}

func (e *Engine) registerOCO(o *order.Order) {
	if o.OCOGroup == "" {
		return
	}
	group, ok := e.ocoGroups[o.OCOGroup]
	if !ok {
		group = make(map[uuid.UUID]*order.Order)
		e.ocoGroups[o.OCOGroup] = group
	}
	group[o.ID] = o
}

func (e *Engine) dropUnseeded(id uuid.UUID) {
	for i, u := range e.unseeded {
		if u.ID == id {
			e.unseeded = append(e.unseeded[:i], e.unseeded[i+1:]...)
			return
		}
	}
}
