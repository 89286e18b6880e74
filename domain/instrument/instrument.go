package instrument

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

type AssetClass string

const (
	AssetLand     AssetClass = "LAND"
	AssetEstate   AssetClass = "ESTATE"
	AssetResource AssetClass = "RESOURCE"
)

type TradingStatus uint8

const (
	Active TradingStatus = iota
	Suspended
	Delisted
)

func (s TradingStatus) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Suspended:
		return "SUSPENDED"
	case Delisted:
		return "DELISTED"
	default:
		return "UNKNOWN"
	}
}

// Instrument is static reference data for one tradable symbol.
// Values are copied into the registry; the engine only ever reads
// them between matching cycles.
type Instrument struct {
	Symbol      string
	Class       AssetClass
	TickSize    decimal.Decimal
	LotSize     decimal.Decimal
	LeverageCap decimal.Decimal
	Margin      bool // margin orders allowed
	Short       bool // short selling allowed
	Status      TradingStatus
}

// Registry holds the instrument universe and performs the pure
// admission checks. It has no side effects and never touches a book.
type Registry struct {
	mu       sync.RWMutex
	bySymbol map[string]Instrument
}

func NewRegistry() *Registry {
	return &Registry{bySymbol: make(map[string]Instrument)}
}

func (r *Registry) Upsert(ins Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySymbol[ins.Symbol] = ins
}

func (r *Registry) Get(symbol string) (Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ins, ok := r.bySymbol[symbol]
	return ins, ok
}

func (r *Registry) List() []Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Instrument, 0, len(r.bySymbol))
	for _, ins := range r.bySymbol {
		out = append(out, ins)
	}
	return out
}

// Validate checks an order against its instrument's reference data.
// Violations are rejected, never silently rounded.
func (r *Registry) Validate(o *order.Order) error {
	ins, ok := r.Get(o.Symbol)
	if !ok {
		return order.Invalidf("unknown instrument %q", o.Symbol)
	}
	if ins.Status == Delisted {
		return order.Invalidf("instrument %q is delisted", o.Symbol)
	}
	if ins.Status == Suspended {
		return order.Invalidf("instrument %q is suspended", o.Symbol)
	}

	if !o.Qty.Mod(ins.LotSize).IsZero() {
		return order.Invalidf("quantity %s is not a multiple of lot size %s", o.Qty, ins.LotSize)
	}
	for _, p := range []decimal.Decimal{o.Price, o.StopPrice} {
		if !p.IsZero() && !p.Mod(ins.TickSize).IsZero() {
			return order.Invalidf("price %s is not a multiple of tick size %s", p, ins.TickSize)
		}
	}

	if o.Margin && !ins.Margin {
		return order.Invalidf("margin trading not allowed on %q", o.Symbol)
	}
	if o.Short && !ins.Short {
		return order.Invalidf("short selling not allowed on %q", o.Symbol)
	}
	if o.Margin && o.Leverage.GreaterThan(ins.LeverageCap) {
		return order.Invalidf("leverage %s exceeds cap %s", o.Leverage, ins.LeverageCap)
	}
	return nil
}
