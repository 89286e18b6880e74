package service

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/tovfikur/virtual-world-sub003/domain/instrument"
	"github.com/tovfikur/virtual-world-sub003/domain/market"
	"github.com/tovfikur/virtual-world-sub003/domain/order"
	"github.com/tovfikur/virtual-world-sub003/infra/journal"
)

// Journal payloads are JSON snapshots of the accepted command, taken
// before the engine runs. Replay re-applies them in sequence order.

type cancelRecord struct {
	OrderID uuid.UUID `json:"order_id"`
	Symbol  string    `json:"symbol"`
}

type marketRecord struct {
	Scope  string       `json:"scope"`
	State  market.State `json:"state"`
	Reason string       `json:"reason,omitempty"`
}

func (x *Exchange) journalSubmit(o *order.Order) (uint64, error) {
	return x.appendRecord(journal.RecordSubmit, o)
}

func (x *Exchange) journalCancel(id uuid.UUID, symbol string) (uint64, error) {
	return x.appendRecord(journal.RecordCancel, cancelRecord{OrderID: id, Symbol: symbol})
}

func (x *Exchange) journalMarketState(scope string, state market.State, reason string) (uint64, error) {
	return x.appendRecord(journal.RecordMarketState, marketRecord{
		Scope: scope, State: state, Reason: reason,
	})
}

func (x *Exchange) journalInstrument(ins instrument.Instrument) (uint64, error) {
	return x.appendRecord(journal.RecordInstrument, ins)
}

func (x *Exchange) appendRecord(t journal.RecordType, v any) (uint64, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	rec := journal.NewRecord(t, x.seq.Next(), payload)
	if err := x.jrn.Append(rec); err != nil {
		return 0, err
	}
	return rec.Seq, x.jrn.Sync()
}
