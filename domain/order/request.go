package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Constructors reject structurally invalid combinations up front, so
// the engine only ever sees orders whose shape matches their type.
// Instrument-level checks (tick, lot, margin, leverage) happen later
// at the registry.

type Option func(*Order)

func WithOCOGroup(group string) Option {
	return func(o *Order) { o.OCOGroup = group }
}

func WithMargin(leverage decimal.Decimal) Option {
	return func(o *Order) {
		o.Margin = true
		o.Leverage = leverage
	}
}

func WithShortSell() Option {
	return func(o *Order) { o.Short = true }
}

func newOrder(symbol, owner string, side Side, typ Type, qty decimal.Decimal, tif TimeInForce) *Order {
	now := time.Now()
	return &Order{
		ID:        uuid.New(),
		Symbol:    symbol,
		Owner:     owner,
		Side:      side,
		Type:      typ,
		TIF:       tif,
		Qty:       qty,
		Remaining: qty,
		Status:    Pending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func checkBase(symbol, owner string, qty decimal.Decimal) error {
	if symbol == "" {
		return Invalidf("empty symbol")
	}
	if owner == "" {
		return Invalidf("empty owner")
	}
	if !qty.IsPositive() {
		return Invalidf("quantity must be positive, got %s", qty)
	}
	return nil
}

func checkPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return Invalidf("price must be positive, got %s", price)
	}
	return nil
}

// NewMarket builds a market order. Market orders never rest, so the
// time-in-force is fixed to IOC.
func NewMarket(symbol, owner string, side Side, qty decimal.Decimal, opts ...Option) (*Order, error) {
	if err := checkBase(symbol, owner, qty); err != nil {
		return nil, err
	}
	o := newOrder(symbol, owner, side, Market, qty, IOC)
	return apply(o, opts), nil
}

func NewLimit(symbol, owner string, side Side, qty, price decimal.Decimal, tif TimeInForce, opts ...Option) (*Order, error) {
	if err := checkBase(symbol, owner, qty); err != nil {
		return nil, err
	}
	if err := checkPrice(price); err != nil {
		return nil, err
	}
	o := newOrder(symbol, owner, side, Limit, qty, tif)
	o.Price = price
	return apply(o, opts), nil
}

// NewStop builds a stop order that promotes to a market order once
// the trigger fires.
func NewStop(symbol, owner string, side Side, qty, stopPrice decimal.Decimal, opts ...Option) (*Order, error) {
	if err := checkBase(symbol, owner, qty); err != nil {
		return nil, err
	}
	if !stopPrice.IsPositive() {
		return nil, Invalidf("stop price must be positive, got %s", stopPrice)
	}
	o := newOrder(symbol, owner, side, Stop, qty, IOC)
	o.StopPrice = stopPrice
	return apply(o, opts), nil
}

// NewStopLimit builds a stop order that promotes to a limit order at
// the given limit price once the trigger fires.
func NewStopLimit(symbol, owner string, side Side, qty, stopPrice, limitPrice decimal.Decimal, tif TimeInForce, opts ...Option) (*Order, error) {
	if err := checkBase(symbol, owner, qty); err != nil {
		return nil, err
	}
	if !stopPrice.IsPositive() {
		return nil, Invalidf("stop price must be positive, got %s", stopPrice)
	}
	if err := checkPrice(limitPrice); err != nil {
		return nil, err
	}
	o := newOrder(symbol, owner, side, StopLimit, qty, tif)
	o.StopPrice = stopPrice
	o.Price = limitPrice
	return apply(o, opts), nil
}

// NewTrailingStop builds a stop order whose trigger ratchets with the
// market. The offset is absolute, or a percentage of last price when
// pct is true. An explicit initial stop price is optional; when zero
// the first trade print seeds it.
func NewTrailingStop(symbol, owner string, side Side, qty, offset decimal.Decimal, pct bool, initialStop decimal.Decimal, opts ...Option) (*Order, error) {
	if err := checkBase(symbol, owner, qty); err != nil {
		return nil, err
	}
	if !offset.IsPositive() {
		return nil, Invalidf("trailing offset must be positive, got %s", offset)
	}
	if pct && offset.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return nil, Invalidf("trailing percentage must be below 100, got %s", offset)
	}
	if initialStop.IsNegative() {
		return nil, Invalidf("initial stop must not be negative, got %s", initialStop)
	}
	o := newOrder(symbol, owner, side, TrailingStop, qty, IOC)
	o.TrailOffset = offset
	o.TrailPct = pct
	o.StopPrice = initialStop
	return apply(o, opts), nil
}

// NewIceberg builds a limit order that exposes at most visible
// quantity to the book at a time.
func NewIceberg(symbol, owner string, side Side, qty, price, visible decimal.Decimal, tif TimeInForce, opts ...Option) (*Order, error) {
	if err := checkBase(symbol, owner, qty); err != nil {
		return nil, err
	}
	if err := checkPrice(price); err != nil {
		return nil, err
	}
	if !visible.IsPositive() {
		return nil, Invalidf("visible quantity must be positive, got %s", visible)
	}
	if visible.GreaterThan(qty) {
		return nil, Invalidf("visible quantity %s exceeds total %s", visible, qty)
	}
	if tif != GTC {
		return nil, Invalidf("iceberg orders must be GTC, got %s", tif)
	}
	o := newOrder(symbol, owner, side, Iceberg, qty, tif)
	o.Price = price
	o.VisibleQty = visible
	return apply(o, opts), nil
}

func apply(o *Order, opts []Option) *Order {
	for _, fn := range opts {
		fn(o)
	}
	return o
}
