package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

// RunSnapshotJob periodically persists every engine's open-order set
// and advances the snapshot watermark, which lets the journal shed
// fully covered segments and the outbox drop acked events. Blocks
// until ctx is done.
func (x *Exchange) RunSnapshotJob(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			x.snapshotOnce()
		}
	}
}

func (x *Exchange) snapshotOnce() {
	if x.db == nil {
		return
	}

	x.mu.RLock()
	symbols := make([]string, 0, len(x.sessions))
	for sym := range x.sessions {
		symbols = append(symbols, sym)
	}
	x.mu.RUnlock()

	// Each instrument's order set is captured with the journal seq
	// of its last applied command, so replay knows exactly which
	// records the snapshot already reflects. minSeq bounds what the
	// journal may shed: older segments are covered for everyone.
	var minSeq uint64
	for i, sym := range symbols {
		s, ok := x.peekSession(sym)
		if !ok {
			continue
		}
		// Copy the orders while still holding the session lock: the
		// engine mutates them in place, and the store marshals after
		// the lock is released. Live pointers here would tear the
		// snapshot past its recorded watermark.
		s.mu.Lock()
		live := s.eng.OpenOrders()
		open := make([]*order.Order, len(live))
		for j, o := range live {
			cp := *o
			open[j] = &cp
		}
		seq := s.lastSeq
		book, cond := s.eng.RestingCount()
		s.mu.Unlock()

		x.met.BookDepth.WithLabelValues(sym).Set(float64(book))
		x.met.ConditionalPool.WithLabelValues(sym).Set(float64(cond))

		if err := x.db.ReplaceOrders(sym, seq, open); err != nil {
			x.log.Error("snapshot write failed", zap.String("symbol", sym), zap.Error(err))
			return
		}
		if i == 0 || seq < minSeq {
			minSeq = seq
		}
	}

	if len(symbols) == 0 || minSeq == 0 {
		return
	}
	if x.jrn != nil {
		if err := x.jrn.TruncateBefore(minSeq); err != nil {
			x.log.Error("journal truncate failed", zap.Error(err))
		}
	}
	if x.out != nil {
		if err := x.out.TruncateAckedUpTo(minSeq); err != nil {
			x.log.Error("outbox truncate failed", zap.Error(err))
		}
	}

	x.log.Debug("snapshot complete", zap.Uint64("covered_seq", minSeq))
}
