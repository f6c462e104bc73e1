package memory

import "sync/atomic"

// GlobalEpoch monotonically increases.
var GlobalEpoch atomic.Uint64

const inactive = ^uint64(0)

// ReaderEpoch marks when a reader entered a read section.
type ReaderEpoch struct {
	epoch atomic.Uint64
}

func NewReaderEpoch() *ReaderEpoch {
	r := &ReaderEpoch{}
	r.epoch.Store(inactive)
	return r
}

func (r *ReaderEpoch) Enter() {
	r.epoch.Store(GlobalEpoch.Load())
}

func (r *ReaderEpoch) Exit() {
	r.epoch.Store(inactive)
}

func (r *ReaderEpoch) Active() bool {
	return r.epoch.Load() != inactive
}

func (r *ReaderEpoch) Value() uint64 {
	return r.epoch.Load()
}

// Reclaimer takes back retired items once no reader can observe them.
type Reclaimer[T any] interface {
	Reclaim(T)
}

// AdvanceEpochAndReclaim advances the epoch and hands retired items back
// to pool while no reader is inside a read section. It returns how many
// items were reclaimed; the rest stay queued for the next advance.
func AdvanceEpochAndReclaim[T any](
	ring *RetireRing[T],
	pool Reclaimer[T],
	readers ...*ReaderEpoch,
) int {
	GlobalEpoch.Add(1)
	if minReaderEpoch(readers...) != inactive {
		return 0
	}

	n := 0
	for {
		v, ok := ring.Dequeue()
		if !ok {
			return n
		}
		pool.Reclaim(v)
		n++
	}
}

func minReaderEpoch(rs ...*ReaderEpoch) uint64 {
	min := inactive
	for _, r := range rs {
		if r == nil {
			continue
		}
		v := r.Value()
		if v < min {
			min = v
		}
	}
	return min
}
