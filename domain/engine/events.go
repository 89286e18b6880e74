package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

// Trade is the immutable record of one execution. Price is always
// the resting (maker) order's price.
type Trade struct {
	Seq         uint64          `json:"seq"`
	Symbol      string          `json:"symbol"`
	BuyOrderID  uuid.UUID       `json:"buy_order_id"`
	SellOrderID uuid.UUID       `json:"sell_order_id"`
	BuyOwner    string          `json:"buy_owner"`
	SellOwner   string          `json:"sell_owner"`
	Price       decimal.Decimal `json:"price"`
	Qty         decimal.Decimal `json:"qty"`
	Taker       order.Side      `json:"taker"`
	At          time.Time       `json:"at"`
}

// StateChange reports one lifecycle transition for the balance,
// holdings and audit collaborators.
type StateChange struct {
	OrderID uuid.UUID       `json:"order_id"`
	Symbol  string          `json:"symbol"`
	Owner   string          `json:"owner"`
	From    order.Status    `json:"from"`
	To      order.Status    `json:"to"`
	Reason  string          `json:"reason,omitempty"`
	Open    decimal.Decimal `json:"open"`
	At      time.Time       `json:"at"`
}

// EventSink receives engine events. Calls happen after a match cycle
// completes, in occurrence order, still inside the instrument's
// serialized step; implementations must not block on the network.
type EventSink interface {
	TradeExecuted(Trade)
	OrderStateChanged(StateChange)
	// StopTriggered fires synchronously when a trade print promotes a
	// parked conditional, before the promoted order matches.
	StopTriggered(symbol string)
}

// NopSink discards events. Used during WAL replay, where effects
// were already emitted in the original run.
type NopSink struct{}

func (NopSink) TradeExecuted(Trade)            {}
func (NopSink) OrderStateChanged(StateChange)  {}
func (NopSink) StopTriggered(string)           {}

type eventKind uint8

const (
	evTrade eventKind = iota
	evState
)

type stagedEvent struct {
	kind  eventKind
	trade Trade
	state StateChange
}
