package orderbook

import (
	"github.com/shopspring/decimal"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

// queueNode links an order into its price level's FIFO queue. The
// book owns the nodes; domain orders stay free of book linkage.
type queueNode struct {
	order *order.Order
	level *PriceLevel
	prev  *queueNode
	next  *queueNode
}

// PriceLevel is a FIFO queue at a single price. Enqueue order is
// strict arrival order and externally observable via fill order, so
// it must be preserved exactly.
type PriceLevel struct {
	Price decimal.Decimal

	head *queueNode
	tail *queueNode

	TotalQty   decimal.Decimal
	OrderCount int
}

func (p *PriceLevel) enqueue(n *queueNode) {
	n.level = p
	if p.head == nil {
		p.head = n
		p.tail = n
	} else {
		p.tail.next = n
		n.prev = p.tail
		p.tail = n
	}
	p.TotalQty = p.TotalQty.Add(n.order.Remaining)
	p.OrderCount++
}

func (p *PriceLevel) remove(n *queueNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		p.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		p.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	n.level = nil

	p.TotalQty = p.TotalQty.Sub(n.order.Remaining)
	p.OrderCount--
}

// reduce adjusts the aggregate after a partial fill of one queued
// order; the order's own Remaining is decremented by the caller.
func (p *PriceLevel) reduce(qty decimal.Decimal) {
	p.TotalQty = p.TotalQty.Sub(qty)
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Head returns the oldest resting order at this price.
func (p *PriceLevel) Head() *order.Order {
	if p.head == nil {
		return nil
	}
	return p.head.order
}

// Orders returns the queued orders in time priority. Read-only view.
func (p *PriceLevel) Orders() []*order.Order {
	out := make([]*order.Order, 0, p.OrderCount)
	for n := p.head; n != nil; n = n.next {
		out = append(out, n.order)
	}
	return out
}
