package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
	"github.com/tovfikur/virtual-world-sub003/domain/orderbook"
)

// match runs the continuous double auction for one incoming order:
// price-time priority, execution at the resting order's price. It
// returns the trades the taker participated in.
//
// Self-crossing is permitted: an owner's incoming order may fill
// against their own resting order.
func (e *Engine) match(taker *order.Order) ([]Trade, error) {
	if taker.TIF == order.FOK && !e.fillable(taker) {
		// All-or-nothing failed the dry run: a normal rejection
		// outcome with zero trades, not an error.
		return nil, e.setStatus(taker, order.Cancelled, reasonFOK)
	}

	var trades []Trade
	for taker.Remaining.IsPositive() {
		lvl := e.bestOpposing(taker.Side)
		if lvl == nil || !crosses(taker, lvl.Price) {
			break
		}

		maker := lvl.Head()
		exec := decimal.Min(taker.Remaining, maker.Remaining)
		price := lvl.Price // maker pricing: the earlier order keeps its terms

		removed, err := e.book.Fill(maker.ID, exec)
		if err != nil {
			return trades, err
		}
		taker.Remaining = taker.Remaining.Sub(exec)

		trades = append(trades, e.stageTrade(taker, maker, price, exec))

		if removed {
			if maker.Hidden.IsPositive() {
				if err := e.refillIceberg(maker); err != nil {
					return trades, err
				}
			} else if err := e.setStatus(maker, order.Filled, ""); err != nil {
				return trades, err
			}
		} else if err := e.setStatus(maker, order.PartiallyFilled, ""); err != nil {
			return trades, err
		}
	}

	return trades, e.resolveRemainder(taker, len(trades) > 0)
}

// resolveRemainder applies time-in-force semantics once the match
// loop stops.
func (e *Engine) resolveRemainder(taker *order.Order, traded bool) error {
	if taker.Remaining.IsZero() {
		return e.setStatus(taker, order.Filled, "")
	}

	if traded {
		if err := e.setStatus(taker, order.PartiallyFilled, ""); err != nil {
			return err
		}
	}

	switch {
	case taker.Type == order.Market:
		// Policy: a market order against thin liquidity fills what
		// it can; the remainder is cancelled, never rested.
		reason := reasonMarket
		if !traded {
			reason = reasonNoLiquid
		}
		return e.setStatus(taker, order.Cancelled, reason)
	case taker.TIF == order.IOC:
		return e.setStatus(taker, order.Cancelled, reasonIOC)
	}

	// GTC remainder rests at its limit price. A promoted stop-limit
	// arrives here already Resting; only a fresh submit transitions.
	if taker.Type == order.Iceberg {
		e.sliceIceberg(taker)
	}
	if !traded && taker.Status != order.Resting {
		if err := e.setStatus(taker, order.Resting, ""); err != nil {
			return err
		}
	}
	e.live[taker.ID] = taker
	return e.book.Insert(taker)
}

// fillable is the FOK dry run: it walks crossing levels without
// mutating the book and checks the visible liquidity covers the
// order. Hidden iceberg reserves do not count.
func (e *Engine) fillable(taker *order.Order) bool {
	needed := taker.Remaining
	e.book.WalkLevels(taker.Side.Opposite(), func(lvl *orderbook.PriceLevel) bool {
		if !crosses(taker, lvl.Price) {
			return false
		}
		needed = needed.Sub(lvl.TotalQty)
		return needed.IsPositive()
	})
	return !needed.IsPositive()
}

func (e *Engine) stageTrade(taker, maker *order.Order, price, qty decimal.Decimal) Trade {
	t := Trade{
		Seq:    e.nextSeq(),
		Symbol: e.symbol,
		Price:  price,
		Qty:    qty,
		Taker:  taker.Side,
		At:     time.Now(),
	}
	if taker.Side == order.Buy {
		t.BuyOrderID, t.BuyOwner = taker.ID, taker.Owner
		t.SellOrderID, t.SellOwner = maker.ID, maker.Owner
	} else {
		t.BuyOrderID, t.BuyOwner = maker.ID, maker.Owner
		t.SellOrderID, t.SellOwner = taker.ID, taker.Owner
	}
	e.pending = append(e.pending, stagedEvent{kind: evTrade, trade: t})
	e.cyclePrices = append(e.cyclePrices, price)
	e.lastPrice = price
	e.hasLast = true
	return t
}

func (e *Engine) bestOpposing(side order.Side) *orderbook.PriceLevel {
	if side == order.Buy {
		return e.book.BestAsk()
	}
	return e.book.BestBid()
}

// crosses reports whether the taker's limit allows executing at the
// given opposing price. Market orders cross any price.
func crosses(taker *order.Order, price decimal.Decimal) bool {
	if taker.Type == order.Market {
		return true
	}
	if taker.Side == order.Buy {
		return price.LessThanOrEqual(taker.Price)
	}
	return price.GreaterThanOrEqual(taker.Price)
}
