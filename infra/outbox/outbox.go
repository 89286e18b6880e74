// Package outbox is the transactional publish queue. Events are
// staged here in the same breath as state persistence; a broadcaster
// drains pending entries to the broker and acknowledges them, so a
// crash between execution and publish loses nothing.
package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

type Kind uint8

const (
	KindTrade Kind = iota
	KindOrderState
	KindMarketState
)

type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Kind        Kind
	Payload     []byte
}

// value encoding: [state:1][retries:4][lastAttempt:8][kind:1][len:4][payload]
const recHeaderSize = 1 + 4 + 8 + 1 + 4

func encodeRecord(r Record) []byte {
	buf := make([]byte, recHeaderSize+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	buf[13] = byte(r.Kind)
	binary.BigEndian.PutUint32(buf[14:18], uint32(len(r.Payload)))
	copy(buf[recHeaderSize:], r.Payload)
	return buf
}

func decodeRecord(seq uint64, b []byte) (Record, error) {
	if len(b) < recHeaderSize {
		return Record{}, errors.New("outbox: short record")
	}
	n := binary.BigEndian.Uint32(b[14:18])
	if len(b) != recHeaderSize+int(n) {
		return Record{}, errors.New("outbox: record length mismatch")
	}
	return Record{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Kind:        Kind(b[13]),
		Payload:     append([]byte(nil), b[recHeaderSize:]...),
	}, nil
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false,
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("evt/%020d", seq))
}

func seqFromKey(key []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(key), "evt/%d", &seq)
	return seq, err
}

// PutNew stages an event for publication.
func (o *Outbox) PutNew(seq uint64, kind Kind, payload []byte) error {
	rec := Record{Seq: seq, State: StateNew, Kind: kind, Payload: payload}
	return o.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

func (o *Outbox) setState(seq uint64, state State) error {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return err
	}
	rec, err := decodeRecord(seq, val)
	closer.Close()
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries++
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// MarkSent records a publish attempt. Idempotent on retry.
func (o *Outbox) MarkSent(seq uint64) error { return o.setState(seq, StateSent) }

// MarkAcked records broker confirmation.
func (o *Outbox) MarkAcked(seq uint64) error { return o.setState(seq, StateAcked) }

// ScanPending walks NEW and SENT records in sequence order. SENT
// records are included: a crash after send but before ack requires
// re-publish, and consumers dedupe on seq.
func (o *Outbox) ScanPending(fn func(Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("evt/"),
		UpperBound: []byte("evt/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := seqFromKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			return err
		}
		if rec.State == StateAcked {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// TruncateAckedUpTo deletes ACKED records with Seq <= seq.
func (o *Outbox) TruncateAckedUpTo(seq uint64) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("evt/"),
		UpperBound: append(keyFor(seq), 0xff),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	b := o.db.NewBatch()
	defer b.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		s, err := seqFromKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(s, iter.Value())
		if err != nil {
			return err
		}
		if rec.State == StateAcked {
			if err := b.Delete(iter.Key(), nil); err != nil {
				return err
			}
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}
