package market

import (
	"sync"
	"time"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

type State uint8

const (
	Open State = iota
	Halted
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Halted:
		return "HALTED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Status is an explicit, timestamped state value. Gate decisions are
// deterministic given a Status, so the engine takes one per cycle
// instead of consulting ambient mutable state.
type Status struct {
	State     State
	Reason    string
	ChangedAt time.Time
}

// CheckAdmission rejects new orders while the market is not open.
// Resting orders are untouched by a halt; they are only frozen.
func (st Status) CheckAdmission() error {
	switch st.State {
	case Halted:
		return order.ErrMarketHalted
	case Closed:
		return order.ErrMarketClosed
	}
	return nil
}

// TriggersAllowed reports whether conditional orders may fire.
// Triggering is suspended under both halt and close.
func (st Status) TriggersAllowed() bool {
	return st.State == Open
}

// GlobalScope addresses the whole market in Set.
const GlobalScope = ""

// Gate tracks global and per-instrument trading state. It holds no
// matching logic; transitions are observed by the audit collaborator
// through the listener.
type Gate struct {
	mu     sync.RWMutex
	global Status
	byIns  map[string]Status

	onChange func(scope string, st Status)
}

func NewGate(onChange func(scope string, st Status)) *Gate {
	return &Gate{
		global: Status{State: Open, ChangedAt: time.Now()},
		byIns:  make(map[string]Status),
		onChange: func(scope string, st Status) {
			if onChange != nil {
				onChange(scope, st)
			}
		},
	}
}

// Set changes the state for a scope (GlobalScope or one symbol).
// Takes effect for the next admission/trigger cycle.
func (g *Gate) Set(scope string, state State, reason string) {
	st := Status{State: state, Reason: reason, ChangedAt: time.Now()}

	g.mu.Lock()
	if scope == GlobalScope {
		g.global = st
	} else if state == Open {
		// Reopening an instrument removes its override; the
		// global state governs again.
		delete(g.byIns, scope)
	} else {
		g.byIns[scope] = st
	}
	g.mu.Unlock()

	g.onChange(scope, st)
}

// StatusFor returns the governing status for a symbol. An instrument
// override wins over the global state.
func (g *Gate) StatusFor(symbol string) Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if st, ok := g.byIns[symbol]; ok {
		return st
	}
	return g.global
}
