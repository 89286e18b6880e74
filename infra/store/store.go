// Package store persists reference data, open orders, and the trade
// tape in pebble. Values are JSON; keys are prefix-bucketed so each
// record family scans with a bounded iterator.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/tovfikur/virtual-world-sub003/domain/engine"
	"github.com/tovfikur/virtual-world-sub003/domain/instrument"
	"github.com/tovfikur/virtual-world-sub003/domain/market"
	"github.com/tovfikur/virtual-world-sub003/domain/order"
)

const (
	prefixInstrument = "ins/"
	prefixOrder      = "ord/"
	prefixTrade      = "trd/"
	prefixWatermark  = "osq/"
	prefixMarket     = "mkt/"
)

type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // durability over write latency
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---- instruments ----

func instrumentKey(symbol string) []byte {
	return []byte(prefixInstrument + symbol)
}

func (s *Store) PutInstrument(ins instrument.Instrument) error {
	val, err := json.Marshal(ins)
	if err != nil {
		return err
	}
	return s.db.Set(instrumentKey(ins.Symbol), val, pebble.Sync)
}

func (s *Store) Instruments() ([]instrument.Instrument, error) {
	var out []instrument.Instrument
	err := s.scan(prefixInstrument, func(_, val []byte) error {
		var ins instrument.Instrument
		if err := json.Unmarshal(val, &ins); err != nil {
			return err
		}
		out = append(out, ins)
		return nil
	})
	return out, err
}

// ---- market state ----

// MarketState is the persisted form of one gate scope.
type MarketState struct {
	Scope  string       `json:"scope"`
	State  market.State `json:"state"`
	Reason string       `json:"reason,omitempty"`
}

func marketKey(scope string) []byte {
	return []byte(prefixMarket + scope)
}

func (s *Store) PutMarketState(ms MarketState) error {
	val, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	return s.db.Set(marketKey(ms.Scope), val, pebble.Sync)
}

func (s *Store) MarketStates() ([]MarketState, error) {
	var out []MarketState
	err := s.scan(prefixMarket, func(_, val []byte) error {
		var ms MarketState
		if err := json.Unmarshal(val, &ms); err != nil {
			return err
		}
		out = append(out, ms)
		return nil
	})
	return out, err
}

// ---- open orders ----

func orderKey(symbol string, id uuid.UUID) []byte {
	return []byte(prefixOrder + symbol + "/" + id.String())
}

func (s *Store) PutOrder(o *order.Order) error {
	val, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.db.Set(orderKey(o.Symbol, o.ID), val, pebble.NoSync)
}

func (s *Store) DeleteOrder(symbol string, id uuid.UUID) error {
	return s.db.Delete(orderKey(symbol, id), pebble.NoSync)
}

// ReplaceOrders atomically swaps the persisted open-order set for one
// instrument and records the command sequence the set reflects. The
// snapshot job calls this with the engine's live set; replay skips
// journal records at or below the stored watermark.
func (s *Store) ReplaceOrders(symbol string, seq uint64, orders []*order.Order) error {
	b := s.db.NewBatch()
	defer b.Close()

	lo := []byte(prefixOrder + symbol + "/")
	hi := []byte(prefixOrder + symbol + "0") // '0' sorts just after '/'
	if err := b.DeleteRange(lo, hi, nil); err != nil {
		return err
	}
	for _, o := range orders {
		val, err := json.Marshal(o)
		if err != nil {
			return err
		}
		if err := b.Set(orderKey(symbol, o.ID), val, nil); err != nil {
			return err
		}
	}

	var wm [8]byte
	binary.BigEndian.PutUint64(wm[:], seq)
	if err := b.Set([]byte(prefixWatermark+symbol), wm[:], nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// Watermarks returns the per-instrument snapshot sequence map.
func (s *Store) Watermarks() (map[string]uint64, error) {
	out := make(map[string]uint64)
	err := s.scan(prefixWatermark, func(key, val []byte) error {
		if len(val) != 8 {
			return errors.New("store: bad snapshot watermark")
		}
		symbol := string(key[len(prefixWatermark):])
		out[symbol] = binary.BigEndian.Uint64(val)
		return nil
	})
	return out, err
}

// Orders walks every persisted open order, all instruments.
func (s *Store) Orders(fn func(*order.Order) error) error {
	return s.scan(prefixOrder, func(_, val []byte) error {
		var o order.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return err
		}
		return fn(&o)
	})
}

// ---- trade tape ----

func tradeKey(seq uint64) []byte {
	// Fixed-width decimal keeps pebble's byte order equal to seq order.
	return []byte(fmt.Sprintf("%s%020d", prefixTrade, seq))
}

func (s *Store) PutTrade(t engine.Trade) error {
	val, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.db.Set(tradeKey(t.Seq), val, pebble.NoSync)
}

// TradesSince returns up to limit trades with Seq > after, oldest
// first. limit <= 0 means no cap.
func (s *Store) TradesSince(after uint64, limit int) ([]engine.Trade, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: tradeKey(after + 1),
		UpperBound: []byte(prefixTrade + "~"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []engine.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		var t engine.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, err
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

func (s *Store) scan(prefix string, fn func(key, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
