// Package journal is the write-ahead intent log. Every accepted
// command is framed, checksummed, and appended to a segment file
// before the engine mutates state, so a crash replays to the exact
// pre-crash state.
package journal

import "time"

type RecordType uint8

const (
	RecordSubmit RecordType = iota
	RecordCancel
	RecordMarketState
	RecordInstrument
)

func (t RecordType) String() string {
	switch t {
	case RecordSubmit:
		return "submit"
	case RecordCancel:
		return "cancel"
	case RecordMarketState:
		return "market_state"
	case RecordInstrument:
		return "instrument"
	default:
		return "unknown"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
