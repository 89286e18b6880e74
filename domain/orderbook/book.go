package orderbook

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

// Book is one instrument's resting order book: two RB-trees of FIFO
// price levels plus an ID index for O(1) cancellation. Only orders
// in a resting state occupy slots; conditional orders and hidden
// iceberg reserves live outside the book.
//
// Book is deliberately not synchronized. The engine serializes all
// access per instrument.
type Book struct {
	bids *RBTree
	asks *RBTree
	byID map[uuid.UUID]*queueNode
}

func NewBook() *Book {
	return &Book{
		bids: NewRBTree(),
		asks: NewRBTree(),
		byID: make(map[uuid.UUID]*queueNode, 1024),
	}
}

func (b *Book) side(s order.Side) *RBTree {
	if s == order.Buy {
		return b.bids
	}
	return b.asks
}

// Insert appends the order to the FIFO queue at its limit price.
// Same price, later insert: lower time priority.
func (b *Book) Insert(o *order.Order) error {
	if _, exists := b.byID[o.ID]; exists {
		return fmt.Errorf("%w: duplicate book insert %s", order.ErrInternal, o.ID)
	}
	n := &queueNode{order: o}
	b.side(o.Side).UpsertLevel(o.Price).enqueue(n)
	b.byID[o.ID] = n
	return nil
}

// Remove unlinks an order by ID. Returns nil if the order is not in
// the book (already consumed or never rested); callers treat that
// as a no-op, never an error.
func (b *Book) Remove(id uuid.UUID) *order.Order {
	n, ok := b.byID[id]
	if !ok {
		return nil
	}
	lvl := n.level
	lvl.remove(n)
	delete(b.byID, id)
	if lvl.Empty() {
		b.side(n.order.Side).DeleteLevel(lvl.Price)
	}
	return n.order
}

// Fill consumes qty from a resting order, maintaining level
// aggregates and dropping the order (and an emptied level) when it
// is fully consumed. Reports whether the order left the book.
func (b *Book) Fill(id uuid.UUID, qty decimal.Decimal) (removed bool, err error) {
	n, ok := b.byID[id]
	if !ok {
		return false, fmt.Errorf("%w: fill of unindexed order %s", order.ErrInternal, id)
	}
	if qty.GreaterThan(n.order.Remaining) {
		return false, fmt.Errorf("%w: fill %s exceeds remaining %s on %s",
			order.ErrInternal, qty, n.order.Remaining, id)
	}

	n.order.Remaining = n.order.Remaining.Sub(qty)
	n.level.reduce(qty)

	if n.order.Remaining.IsZero() {
		lvl := n.level
		lvl.remove(n)
		delete(b.byID, id)
		if lvl.Empty() {
			b.side(n.order.Side).DeleteLevel(lvl.Price)
		}
		return true, nil
	}
	return false, nil
}

// Contains reports whether the order currently occupies a book slot.
func (b *Book) Contains(id uuid.UUID) bool {
	_, ok := b.byID[id]
	return ok
}

func (b *Book) BestBid() *PriceLevel { return b.bids.MaxLevel() }
func (b *Book) BestAsk() *PriceLevel { return b.asks.MinLevel() }

// PeekQueue returns the resting orders at one price in time priority.
func (b *Book) PeekQueue(side order.Side, price decimal.Decimal) []*order.Order {
	lvl := b.side(side).FindLevel(price)
	if lvl == nil {
		return nil
	}
	return lvl.Orders()
}

// Crossed reports bestBid >= bestAsk. A crossed book after a submit
// returns is an invariant violation.
func (b *Book) Crossed() bool {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return false
	}
	return bid.Price.GreaterThanOrEqual(ask.Price)
}

// DepthEntry is one aggregated price level for market-data readers.
type DepthEntry struct {
	Price  decimal.Decimal
	Qty    decimal.Decimal
	Orders int
}

// Depth returns up to maxLevels aggregated levels, best price first.
func (b *Book) Depth(side order.Side, maxLevels int) []DepthEntry {
	out := make([]DepthEntry, 0, maxLevels)
	walk := b.bids.ForEachDescending
	if side == order.Sell {
		walk = b.asks.ForEachAscending
	}
	walk(func(lvl *PriceLevel) bool {
		out = append(out, DepthEntry{
			Price:  lvl.Price,
			Qty:    lvl.TotalQty,
			Orders: lvl.OrderCount,
		})
		return len(out) < maxLevels
	})
	return out
}

// WalkLevels visits one side's price levels best-first: bids
// descending, asks ascending.
func (b *Book) WalkLevels(side order.Side, fn func(*PriceLevel) bool) {
	if side == order.Buy {
		b.bids.ForEachDescending(fn)
		return
	}
	b.asks.ForEachAscending(fn)
}

// WalkOrders visits every resting order, bids then asks, best price
// first, FIFO within a level.
func (b *Book) WalkOrders(fn func(*order.Order) bool) {
	cont := true
	b.bids.ForEachDescending(func(lvl *PriceLevel) bool {
		for n := lvl.head; n != nil && cont; n = n.next {
			cont = fn(n.order)
		}
		return cont
	})
	if !cont {
		return
	}
	b.asks.ForEachAscending(func(lvl *PriceLevel) bool {
		for n := lvl.head; n != nil && cont; n = n.next {
			cont = fn(n.order)
		}
		return cont
	})
}

// Size returns the number of resting orders.
func (b *Book) Size() int {
	return len(b.byID)
}
