// Package service is the write entry point of the exchange. It owns
// admission (market gate, instrument rules), journaling, and the
// per-instrument serialization that the engines rely on.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tovfikur/virtual-world-sub003/domain/engine"
	"github.com/tovfikur/virtual-world-sub003/domain/instrument"
	"github.com/tovfikur/virtual-world-sub003/domain/market"
	"github.com/tovfikur/virtual-world-sub003/domain/order"
	"github.com/tovfikur/virtual-world-sub003/domain/orderbook"
	"github.com/tovfikur/virtual-world-sub003/infra/journal"
	"github.com/tovfikur/virtual-world-sub003/infra/memory"
	"github.com/tovfikur/virtual-world-sub003/infra/metrics"
	"github.com/tovfikur/virtual-world-sub003/infra/outbox"
	"github.com/tovfikur/virtual-world-sub003/infra/sequence"
	"github.com/tovfikur/virtual-world-sub003/infra/store"
)

// Exchange coordinates domain and infra. All writes for one
// instrument pass through that instrument's session lock, so the
// engine itself never needs internal synchronization.
type Exchange struct {
	log     *zap.Logger
	gate    *market.Gate
	reg     *instrument.Registry
	seq     *sequence.Sequencer
	jrn     *journal.Journal
	db      *store.Store
	out     *outbox.Outbox
	met     *metrics.Metrics
	pool    *memory.Pool[order.Order]
	sink    *persistSink
	ordered bool // journal every accepted command before applying it

	mu       sync.RWMutex
	sessions map[string]*session
	symbols  map[uuid.UUID]string // order -> instrument, for cancel routing
}

type session struct {
	mu      sync.Mutex
	eng     *engine.Engine
	lastSeq uint64 // journal seq of the last applied command
}

type Deps struct {
	Log     *zap.Logger
	Journal *journal.Journal
	Store   *store.Store
	Outbox  *outbox.Outbox
	Metrics *metrics.Metrics
}

func NewExchange(d Deps) *Exchange {
	x := &Exchange{
		log:      d.Log,
		reg:      instrument.NewRegistry(),
		seq:      sequence.New(0),
		jrn:      d.Journal,
		db:       d.Store,
		out:      d.Outbox,
		met:      d.Metrics,
		pool:     memory.NewPool(func() *order.Order { return &order.Order{} }),
		ordered:  d.Journal != nil,
		sessions: make(map[string]*session),
		symbols:  make(map[uuid.UUID]string),
	}
	x.sink = newPersistSink(x)
	x.gate = market.NewGate(x.onMarketChange)
	return x
}

// OrderResult is what the submitter learns synchronously: the final
// status of this cycle and the trades the order itself took part in.
type OrderResult struct {
	OrderID uuid.UUID       `json:"order_id"`
	Symbol  string          `json:"symbol"`
	Status  order.Status    `json:"status"`
	Open    decimal.Decimal `json:"open"`
	Trades  []engine.Trade  `json:"trades,omitempty"`
}

// SubmitOrder runs the full admission pipeline: market gate, then
// instrument rules, then journal, then the serialized engine step.
func (x *Exchange) SubmitOrder(ctx context.Context, req SubmitRequest) (OrderResult, error) {
	o, err := x.buildOrder(req)
	if err != nil {
		x.met.OrdersRejected.WithLabelValues(req.Symbol, "validation").Inc()
		return OrderResult{}, err
	}

	if err := x.admit(o); err != nil {
		x.reject(o, err)
		return OrderResult{}, err
	}

	// Journaling happens under the session lock so the journal's
	// per-instrument record order always equals apply order.
	s := x.session(o.Symbol)
	s.mu.Lock()
	start := time.Now()
	if x.ordered {
		seq, err := x.journalSubmit(o)
		if err != nil {
			s.mu.Unlock()
			x.met.OrdersRejected.WithLabelValues(o.Symbol, "journal").Inc()
			return OrderResult{}, err
		}
		s.lastSeq = seq
	}
	x.indexOrder(o)
	trades, err := s.eng.Submit(o, x.gate.StatusFor(o.Symbol))
	s.mu.Unlock()

	x.met.SubmitLatency.WithLabelValues(o.Symbol).Observe(time.Since(start).Seconds())
	if err != nil {
		x.met.EngineFailures.Inc()
		x.log.Error("engine failure",
			zap.String("symbol", o.Symbol),
			zap.Stringer("order", o.ID),
			zap.Error(err))
		return OrderResult{}, err
	}

	x.met.OrdersSubmitted.WithLabelValues(o.Symbol, o.Type.String()).Inc()
	res := OrderResult{
		OrderID: o.ID,
		Symbol:  o.Symbol,
		Status:  o.Status,
		Open:    o.Open(),
		Trades:  trades,
	}
	x.recycle(o)
	return res, nil
}

// CancelResult distinguishes a cancel that removed a live order from
// one that raced a terminal state and was a no-op.
type CancelResult struct {
	OrderID         uuid.UUID `json:"order_id"`
	AlreadyTerminal bool      `json:"already_terminal"`
}

// CancelOrder is idempotent: cancelling an unknown or already
// terminal order succeeds without effect.
func (x *Exchange) CancelOrder(ctx context.Context, id uuid.UUID) (CancelResult, error) {
	x.mu.RLock()
	symbol, ok := x.symbols[id]
	x.mu.RUnlock()
	if !ok {
		return CancelResult{OrderID: id, AlreadyTerminal: true}, nil
	}

	s := x.session(symbol)
	s.mu.Lock()
	if x.ordered {
		seq, err := x.journalCancel(id, symbol)
		if err != nil {
			s.mu.Unlock()
			return CancelResult{}, err
		}
		s.lastSeq = seq
	}
	already, err := s.eng.Cancel(id)
	s.mu.Unlock()
	if err != nil {
		x.met.EngineFailures.Inc()
		return CancelResult{}, err
	}
	return CancelResult{OrderID: id, AlreadyTerminal: already}, nil
}

// SetMarketState moves the global or per-instrument gate. Scope "" is
// the whole market.
func (x *Exchange) SetMarketState(ctx context.Context, scope string, state market.State, reason string) error {
	if scope != market.GlobalScope {
		if _, ok := x.reg.Get(scope); !ok {
			return order.Invalidf("unknown instrument %q", scope)
		}
	}
	if x.ordered {
		if _, err := x.journalMarketState(scope, state, reason); err != nil {
			return err
		}
	}
	x.gate.Set(scope, state, reason)
	if x.db != nil {
		return x.db.PutMarketState(store.MarketState{Scope: scope, State: state, Reason: reason})
	}
	return nil
}

// UpsertInstrument registers or updates reference data. Existing
// resting orders are untouched; the new rules apply at the next
// admission.
func (x *Exchange) UpsertInstrument(ctx context.Context, ins instrument.Instrument) error {
	if ins.Symbol == "" {
		return order.Invalidf("instrument needs a symbol")
	}
	if x.ordered {
		if _, err := x.journalInstrument(ins); err != nil {
			return err
		}
	}
	x.reg.Upsert(ins)
	if x.db != nil {
		if err := x.db.PutInstrument(ins); err != nil {
			return err
		}
	}
	return nil
}

// ---- queries ----

func (x *Exchange) Instruments() []instrument.Instrument {
	return x.reg.List()
}

func (x *Exchange) MarketStatus(symbol string) market.Status {
	return x.gate.StatusFor(symbol)
}

// Depth returns aggregate size per price level, best first.
func (x *Exchange) Depth(symbol string, side order.Side, levels int) []orderbook.DepthEntry {
	s, ok := x.peekSession(symbol)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Book().Depth(side, levels)
}

// LastPrice reports the most recent trade print for an instrument.
func (x *Exchange) LastPrice(symbol string) (decimal.Decimal, bool) {
	s, ok := x.peekSession(symbol)
	if !ok {
		return decimal.Decimal{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.LastPrice()
}

// ---- internals ----

func (x *Exchange) admit(o *order.Order) error {
	if err := x.gate.StatusFor(o.Symbol).CheckAdmission(); err != nil {
		return err
	}
	return x.reg.Validate(o)
}

// reject reports an admission failure as a lifecycle event so the
// audit stream sees every order, accepted or not.
func (x *Exchange) reject(o *order.Order, cause error) {
	o.Status = order.Rejected
	reason := "validation"
	switch {
	case errors.Is(cause, order.ErrMarketHalted):
		reason = "market_halted"
	case errors.Is(cause, order.ErrMarketClosed):
		reason = "market_closed"
	}
	x.met.OrdersRejected.WithLabelValues(o.Symbol, reason).Inc()
	x.sink.OrderStateChanged(engine.StateChange{
		OrderID: o.ID,
		Symbol:  o.Symbol,
		Owner:   o.Owner,
		From:    order.Pending,
		To:      order.Rejected,
		Reason:  cause.Error(),
		Open:    decimal.Zero,
		At:      time.Now(),
	})
	x.recycle(o)
}

func (x *Exchange) session(symbol string) *session {
	x.mu.RLock()
	s, ok := x.sessions[symbol]
	x.mu.RUnlock()
	if ok {
		return s
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if s, ok = x.sessions[symbol]; ok {
		return s
	}
	s = &session{eng: engine.New(symbol, x.seq.Next, x.sink)}
	x.sessions[symbol] = s
	return s
}

func (x *Exchange) peekSession(symbol string) (*session, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	s, ok := x.sessions[symbol]
	return s, ok
}

func (x *Exchange) indexOrder(o *order.Order) {
	x.mu.Lock()
	x.symbols[o.ID] = o.Symbol
	x.mu.Unlock()
}

func (x *Exchange) unindexOrder(id uuid.UUID) {
	x.mu.Lock()
	delete(x.symbols, id)
	x.mu.Unlock()
}

// recycle returns a terminal order struct to the pool. Callers only
// ever see value copies, so the struct is free once the engine has
// dropped it.
func (x *Exchange) recycle(o *order.Order) {
	if o == nil || !o.Terminal() {
		return
	}
	*o = order.Order{}
	x.pool.Put(o)
}

func (x *Exchange) onMarketChange(scope string, st market.Status) {
	x.log.Info("market state changed",
		zap.String("scope", scope),
		zap.Stringer("state", st.State),
		zap.String("reason", st.Reason))
	x.sink.marketChanged(scope, st)
}
