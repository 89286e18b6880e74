package service

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tovfikur/virtual-world-sub003/domain/engine"
	"github.com/tovfikur/virtual-world-sub003/domain/market"
	"github.com/tovfikur/virtual-world-sub003/domain/order"
	"github.com/tovfikur/virtual-world-sub003/infra/outbox"
)

// persistSink receives engine events inside the serialized step and
// fans them out: trade tape and open orders to the store, publishable
// payloads to the outbox, counters to Prometheus. During journal
// replay it is muted: state is rebuilt, not re-announced.
type persistSink struct {
	x     *Exchange
	muted atomic.Bool
}

func newPersistSink(x *Exchange) *persistSink {
	return &persistSink{x: x}
}

func (s *persistSink) TradeExecuted(t engine.Trade) {
	if s.muted.Load() {
		return
	}
	x := s.x

	x.met.Trades.WithLabelValues(t.Symbol).Inc()
	vol, _ := t.Qty.Float64()
	x.met.TradeVolume.WithLabelValues(t.Symbol).Add(vol)

	if x.db != nil {
		if err := x.db.PutTrade(t); err != nil {
			x.log.Error("trade persist failed", zap.Uint64("seq", t.Seq), zap.Error(err))
		}
	}
	s.stage(t.Seq, outbox.KindTrade, t)

	x.log.Debug("trade",
		zap.Uint64("seq", t.Seq),
		zap.String("symbol", t.Symbol),
		zap.String("price", t.Price.String()),
		zap.String("qty", t.Qty.String()))
}

func (s *persistSink) StopTriggered(symbol string) {
	if s.muted.Load() {
		return
	}
	s.x.met.StopTriggers.WithLabelValues(symbol).Inc()
}

func (s *persistSink) OrderStateChanged(ev engine.StateChange) {
	if ev.To.Terminal() {
		s.x.unindexOrder(ev.OrderID)
	}
	if s.muted.Load() {
		return
	}
	x := s.x

	if ev.To == order.Cancelled {
		x.met.Cancellations.WithLabelValues(ev.Symbol, ev.Reason).Inc()
	}
	s.stage(x.seq.Next(), outbox.KindOrderState, ev)

	x.log.Debug("order state",
		zap.Stringer("order", ev.OrderID),
		zap.String("symbol", ev.Symbol),
		zap.Stringer("from", ev.From),
		zap.Stringer("to", ev.To),
		zap.String("reason", ev.Reason))
}

type marketEvent struct {
	Scope  string    `json:"scope"`
	State  string    `json:"state"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func (s *persistSink) marketChanged(scope string, st market.Status) {
	if s.muted.Load() {
		return
	}
	s.stage(s.x.seq.Next(), outbox.KindMarketState, marketEvent{
		Scope:  scope,
		State:  st.State.String(),
		Reason: st.Reason,
		At:     st.ChangedAt,
	})
}

func (s *persistSink) stage(seq uint64, kind outbox.Kind, v any) {
	x := s.x
	if x.out == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		x.log.Error("event marshal failed", zap.Uint64("seq", seq), zap.Error(err))
		return
	}
	if err := x.out.PutNew(seq, kind, payload); err != nil {
		x.log.Error("outbox stage failed", zap.Uint64("seq", seq), zap.Error(err))
	}
}
