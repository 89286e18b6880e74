package service

import (
	"github.com/shopspring/decimal"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

// SubmitRequest is the transport-neutral order form. The service
// turns it into a typed order through the domain constructors, so a
// malformed combination never reaches an engine.
type SubmitRequest struct {
	Symbol string          `json:"symbol"`
	Owner  string          `json:"owner"`
	Side   order.Side      `json:"side"`
	Type   order.Type      `json:"type"`
	TIF    order.TimeInForce `json:"tif"`
	Qty    decimal.Decimal `json:"qty"`

	Price      decimal.Decimal `json:"price,omitempty"`
	StopPrice  decimal.Decimal `json:"stop_price,omitempty"`
	TrailBy    decimal.Decimal `json:"trail_by,omitempty"`
	TrailPct   bool            `json:"trail_pct,omitempty"`
	VisibleQty decimal.Decimal `json:"visible_qty,omitempty"`

	OCOGroup string          `json:"oco_group,omitempty"`
	Margin   bool            `json:"margin,omitempty"`
	Leverage decimal.Decimal `json:"leverage,omitempty"`
	Short    bool            `json:"short,omitempty"`
}

func (r SubmitRequest) options() []order.Option {
	var opts []order.Option
	if r.OCOGroup != "" {
		opts = append(opts, order.WithOCOGroup(r.OCOGroup))
	}
	if r.Margin {
		opts = append(opts, order.WithMargin(r.Leverage))
	}
	if r.Short {
		opts = append(opts, order.WithShortSell())
	}
	return opts
}

// buildOrder constructs the order into a pooled struct; the builder
// result is discarded as soon as its fields are copied over.
func (x *Exchange) buildOrder(r SubmitRequest) (*order.Order, error) {
	var (
		built *order.Order
		err   error
	)
	switch r.Type {
	case order.Market:
		built, err = order.NewMarket(r.Symbol, r.Owner, r.Side, r.Qty, r.options()...)
	case order.Limit:
		built, err = order.NewLimit(r.Symbol, r.Owner, r.Side, r.Qty, r.Price, r.TIF, r.options()...)
	case order.Stop:
		built, err = order.NewStop(r.Symbol, r.Owner, r.Side, r.Qty, r.StopPrice, r.options()...)
	case order.StopLimit:
		built, err = order.NewStopLimit(r.Symbol, r.Owner, r.Side, r.Qty, r.StopPrice, r.Price, r.TIF, r.options()...)
	case order.TrailingStop:
		built, err = order.NewTrailingStop(r.Symbol, r.Owner, r.Side, r.Qty, r.TrailBy, r.TrailPct, r.StopPrice, r.options()...)
	case order.Iceberg:
		built, err = order.NewIceberg(r.Symbol, r.Owner, r.Side, r.Qty, r.Price, r.VisibleQty, r.TIF, r.options()...)
	default:
		return nil, order.Invalidf("unknown order type %d", r.Type)
	}
	if err != nil {
		return nil, err
	}

	o := x.pool.Get()
	*o = *built
	return o, nil
}
