package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side uint8
type Type uint8
type TimeInForce uint8
type Status uint8

const (
	Buy Side = iota
	Sell
)

const (
	Market Type = iota
	Limit
	Stop
	StopLimit
	TrailingStop
	Iceberg
)

const (
	GTC TimeInForce = iota
	IOC
	FOK
)

const (
	Pending Status = iota
	Resting
	PartiallyFilled
	Filled
	Cancelled
	Rejected
	Expired
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (t Type) String() string {
	switch t {
	case Market:
		return "MARKET"
	case Limit:
		return "LIMIT"
	case Stop:
		return "STOP"
	case StopLimit:
		return "STOP_LIMIT"
	case TrailingStop:
		return "TRAILING_STOP"
	case Iceberg:
		return "ICEBERG"
	default:
		return "UNKNOWN"
	}
}

func (tif TimeInForce) String() string {
	switch tif {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Resting:
		return "RESTING"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Conditional reports whether the order parks in the stop pool
// instead of the book until its trigger fires.
func (t Type) Conditional() bool {
	return t == Stop || t == StopLimit || t == TrailingStop
}

// Order is a pure domain entity. It carries no book linkage;
// the book wraps orders in its own queue nodes.
type Order struct {
	ID     uuid.UUID
	Symbol string
	Owner  string

	Side Side
	Type Type
	TIF  TimeInForce

	// Qty is the requested total. Remaining is what is still open.
	// For icebergs, Remaining is the visible slice and Hidden the
	// reserve; Remaining+Hidden is the true open quantity.
	Qty       decimal.Decimal
	Remaining decimal.Decimal
	Hidden    decimal.Decimal

	Price       decimal.Decimal // limit price; zero for pure market/stop
	StopPrice   decimal.Decimal // trigger price for the stop family
	TrailOffset decimal.Decimal // trailing-stop distance
	TrailPct    bool            // TrailOffset is a percentage of last price
	VisibleQty  decimal.Decimal // iceberg display cap

	OCOGroup string

	Margin   bool
	Short    bool
	Leverage decimal.Decimal

	Status    Status
	SeqID     uint64 // admission sequence, assigned by the engine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open returns the total unexecuted quantity, including any
// hidden iceberg reserve.
func (o *Order) Open() decimal.Decimal {
	return o.Remaining.Add(o.Hidden)
}

// Executed returns the quantity filled so far.
func (o *Order) Executed() decimal.Decimal {
	return o.Qty.Sub(o.Open())
}

func (o *Order) Terminal() bool {
	return o.Status.Terminal()
}

// Terminal reports whether a status has no outgoing transitions.
func (s Status) Terminal() bool {
	switch s {
	case Filled, Cancelled, Rejected, Expired:
		return true
	}
	return false
}
