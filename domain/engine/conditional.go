package engine

import (
	"github.com/shopspring/decimal"

	"github.com/tovfikur/virtual-world-sub003/domain/market"
	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

var hundred = decimal.NewFromInt(100)

// park seats a stop-family order in the conditional pool. It rests
// there, outside the book, until a trade print fires its trigger.
func (e *Engine) park(o *order.Order) error {
	if err := e.setStatus(o, order.Resting, ""); err != nil {
		return err
	}
	e.live[o.ID] = o

	if o.Type == order.TrailingStop {
		e.trailing[o.ID] = o
		if o.StopPrice.IsZero() {
			if !e.hasLast {
				// No market reference yet; the first print seeds it.
				e.unseeded = append(e.unseeded, o)
				return nil
			}
			o.StopPrice = e.trailStop(o, e.lastPrice)
		}
	}
	return e.stops.Park(o)
}

// trailStop computes the stop implied by the last price and the
// order's offset, before ratcheting.
func (e *Engine) trailStop(o *order.Order, last decimal.Decimal) decimal.Decimal {
	off := o.TrailOffset
	if o.TrailPct {
		off = last.Mul(o.TrailOffset).Div(hundred)
	}
	if o.Side == order.Sell {
		return last.Sub(off)
	}
	return last.Add(off)
}

// updateTrailing ratchets every trailing stop against a new trade
// print. A sell trailing stop only ever moves up, a buy trailing
// stop only ever moves down; the ratchet is monotonic.
func (e *Engine) updateTrailing(last decimal.Decimal) error {
	for id, o := range e.trailing {
		cand := e.trailStop(o, last)

		if !e.stops.Contains(id) {
			// Unseeded until now.
			o.StopPrice = cand
			e.dropUnseeded(id)
			if err := e.stops.Park(o); err != nil {
				return err
			}
			continue
		}

		moved := false
		if o.Side == order.Sell {
			moved = cand.GreaterThan(o.StopPrice)
		} else {
			moved = cand.LessThan(o.StopPrice)
		}
		if moved {
			if err := e.stops.Reprice(id, cand); err != nil {
				return err
			}
		}
	}
	return nil
}

// runTriggers drains this cycle's trade prints through the
// conditional pool. Promotions are fresh admissions handled
// synchronously, in the same serialized step as the trade that
// fired them; their own trades extend the scan.
func (e *Engine) runTriggers(st market.Status) error {
	if !st.TriggersAllowed() {
		e.triggerCursor = len(e.cyclePrices)
		return nil
	}
	for e.triggerCursor < len(e.cyclePrices) {
		price := e.cyclePrices[e.triggerCursor]
		e.triggerCursor++

		if err := e.updateTrailing(price); err != nil {
			return err
		}
		for _, o := range e.stops.Triggered(price) {
			if err := e.promote(o); err != nil {
				return err
			}
		}
	}
	return nil
}

// promote converts a triggered conditional into its executable form
// and hands it to the matcher: a stop becomes a market order, a
// stop-limit becomes a limit order at its stated limit price.
func (e *Engine) promote(o *order.Order) error {
	e.sink.StopTriggered(o.Symbol)
	delete(e.trailing, o.ID)
	delete(e.live, o.ID) // the matcher re-indexes it if it rests

	switch o.Type {
	case order.StopLimit:
		o.Type = order.Limit
	default: // Stop, TrailingStop
		o.Type = order.Market
		o.TIF = order.IOC
	}

	_, err := e.match(o)
	return err
}

// ---- iceberg slicing ----

// sliceIceberg splits a resting iceberg's open quantity into the
// visible slice and the hidden reserve.
func (e *Engine) sliceIceberg(o *order.Order) {
	slice := decimal.Min(o.VisibleQty, o.Remaining)
	o.Hidden = o.Remaining.Sub(slice)
	o.Remaining = slice
}

// refillIceberg re-arms an iceberg whose visible slice just filled:
// the next slice is drawn from the reserve and re-enters the book at
// the back of its price level's queue. Losing time priority on every
// refill is intentional.
func (e *Engine) refillIceberg(o *order.Order) error {
	slice := decimal.Min(o.VisibleQty, o.Hidden)
	o.Hidden = o.Hidden.Sub(slice)
	o.Remaining = slice

	if err := e.setStatus(o, order.PartiallyFilled, ""); err != nil {
		return err
	}
	return e.book.Insert(o)
}
