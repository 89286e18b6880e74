package orderbook

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

// StopBook parks conditional orders keyed by trigger price, outside
// the matching book. Buy stops trigger when the last trade price
// reaches or exceeds the key; sell stops when it reaches or falls
// below the key.
type StopBook struct {
	buys  *RBTree
	sells *RBTree
	byID  map[uuid.UUID]*queueNode
}

func NewStopBook() *StopBook {
	return &StopBook{
		buys:  NewRBTree(),
		sells: NewRBTree(),
		byID:  make(map[uuid.UUID]*queueNode),
	}
}

func (s *StopBook) side(o *order.Order) *RBTree {
	if o.Side == order.Buy {
		return s.buys
	}
	return s.sells
}

// Park files the order under its current stop price. Orders whose
// stop is still unseeded (zero) are held aside by the caller.
func (s *StopBook) Park(o *order.Order) error {
	if _, exists := s.byID[o.ID]; exists {
		return fmt.Errorf("%w: duplicate stop park %s", order.ErrInternal, o.ID)
	}
	n := &queueNode{order: o}
	s.side(o).UpsertLevel(o.StopPrice).enqueue(n)
	s.byID[o.ID] = n
	return nil
}

// Unpark removes an order from the pool. Nil when absent.
func (s *StopBook) Unpark(id uuid.UUID) *order.Order {
	n, ok := s.byID[id]
	if !ok {
		return nil
	}
	lvl := n.level
	lvl.remove(n)
	delete(s.byID, id)
	if lvl.Empty() {
		s.side(n.order).DeleteLevel(lvl.Price)
	}
	return n.order
}

// Reprice moves an order to a new trigger price. Used by the
// trailing-stop ratchet; queue position at the new key is last,
// which is irrelevant since triggering drains whole levels.
func (s *StopBook) Reprice(id uuid.UUID, stop decimal.Decimal) error {
	o := s.Unpark(id)
	if o == nil {
		return fmt.Errorf("%w: reprice of unparked order %s", order.ErrInternal, id)
	}
	o.StopPrice = stop
	return s.Park(o)
}

func (s *StopBook) Contains(id uuid.UUID) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *StopBook) Size() int { return len(s.byID) }

// Triggered pops and returns every order whose trigger fires at the
// given last trade price: buy stops from the lowest key up, then
// sell stops from the highest key down, FIFO within a key.
func (s *StopBook) Triggered(last decimal.Decimal) []*order.Order {
	var out []*order.Order

	for {
		lvl := s.buys.MinLevel()
		if lvl == nil || lvl.Price.GreaterThan(last) {
			break
		}
		for !lvl.Empty() {
			out = append(out, s.Unpark(lvl.Head().ID))
		}
	}

	for {
		lvl := s.sells.MaxLevel()
		if lvl == nil || lvl.Price.LessThan(last) {
			break
		}
		for !lvl.Empty() {
			out = append(out, s.Unpark(lvl.Head().ID))
		}
	}

	return out
}

// Walk visits every parked order, buy side then sell side.
func (s *StopBook) Walk(fn func(*order.Order) bool) {
	cont := true
	visit := func(lvl *PriceLevel) bool {
		for n := lvl.head; n != nil && cont; n = n.next {
			cont = fn(n.order)
		}
		return cont
	}
	s.buys.ForEachAscending(visit)
	if cont {
		s.sells.ForEachDescending(visit)
	}
}
