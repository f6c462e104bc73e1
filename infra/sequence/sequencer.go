package sequence

import "sync/atomic"

// Sequencer hands out collection cycle numbers. Cycle numbers are strictly
// monotonic for the life of the process and survive restarts through the
// cycle journal.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer whose next cycle is start+1.
// On fresh start → start = 0
// On replay → start = last journalled cycle
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next cycle number.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued cycle number.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset moves the sequencer to v. Only journal replay calls it, and never
// backwards.
func (s *Sequencer) Reset(v uint64) {
	for {
		cur := s.next.Load()
		if v <= cur || s.next.CompareAndSwap(cur, v) {
			return
		}
	}
}
