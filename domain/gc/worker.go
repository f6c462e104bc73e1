package gc

import "regionvac/domain/heap"

// worker is the per-goroutine state of one collection phase. Counters are
// plain fields: only the owning goroutine writes them and the collector
// reads them after the phase barrier.
type worker struct {
	id  int
	c   *Collector
	buf *heap.AllocBuffer

	promotedBytes     uint64
	promotedObjects   uint64
	youngMovedBytes   uint64
	youngMovedObjects uint64
	tenuredMoved      uint64
	tenuredObjects    uint64
	lostRaces         uint64

	slotsUpdated uint64
}

func (w *worker) reset() {
	*w = worker{}
}

func (w *worker) merge(r *CycleReport) {
	r.PromotedBytes += w.promotedBytes
	r.PromotedObjects += w.promotedObjects
	r.YoungMovedBytes += w.youngMovedBytes
	r.YoungMovedObjects += w.youngMovedObjects
	r.TenuredMovedBytes += w.tenuredMoved
	r.TenuredMovedObjects += w.tenuredObjects
	r.LostRaces += w.lostRaces
	r.SlotsUpdated += w.slotsUpdated
}
