// Package sequence issues the global trade and event sequence.
package sequence

import "sync/atomic"

// Sequencer hands out strictly monotonic IDs. IDs are never reused,
// so state rebuilt from the journal resumes exactly where it left off.
type Sequencer struct {
	last atomic.Uint64
}

// New starts the sequence after v. Fresh boot passes 0.
func New(v uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(v)
	return s
}

// Next returns the next ID.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued ID.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Bump raises the sequence to at least v. Replay calls this per
// record so a later reader can never be handed a stale ID.
func (s *Sequencer) Bump(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
