package heap

import (
	"sync"
	"sync/atomic"
)

// YoungSpace holds the eden regions the mutator allocates into and the
// survivor regions left by the previous collection. Flip hands all of them
// to a collection as from-space and opens a fresh to-space.
type YoungSpace struct {
	heap *Heap

	mu        sync.Mutex
	eden      []*Region
	survivors []*Region
	current   *Region
	toSpace   *Space

	allocated     atomic.Uint64
	overcommitted atomic.Bool
}

func newYoungSpace(h *Heap) *YoungSpace {
	y := &YoungSpace{heap: h}
	y.toSpace = newSpace(h, GenSurvivor, h.cfg.SurvivorBudget)
	return y
}

// AllocatedBytes is the mutator allocation watermark since the last flip.
func (y *YoungSpace) AllocatedBytes() uint64 { return y.allocated.Load() }

// Overcommitted reports whether the survivor semispace is already over
// its commit limit. CompleteCycle sets it when the last to-space refused a
// reservation; the strategy selector reads it.
func (y *YoungSpace) Overcommitted() bool { return y.overcommitted.Load() }

// SetOvercommitted overrides the flag until the next CompleteCycle.
func (y *YoungSpace) SetOvercommitted(v bool) { y.overcommitted.Store(v) }

// Regions returns the current eden and survivor regions.
func (y *YoungSpace) Regions() []*Region {
	y.mu.Lock()
	defer y.mu.Unlock()
	out := make([]*Region, 0, len(y.eden)+len(y.survivors))
	out = append(out, y.survivors...)
	return append(out, y.eden...)
}

// ToSpace is the survivor destination for the running collection.
func (y *YoungSpace) ToSpace() *Space { return y.toSpace }

// Flip returns every young region as the from-space of a new collection,
// resets the allocation watermark and opens an empty to-space.
func (y *YoungSpace) Flip() (from []*Region, watermark uint64) {
	y.mu.Lock()
	defer y.mu.Unlock()

	from = make([]*Region, 0, len(y.eden)+len(y.survivors))
	from = append(from, y.survivors...)
	from = append(from, y.eden...)
	y.eden, y.survivors, y.current = nil, nil, nil
	y.toSpace = newSpace(y.heap, GenSurvivor, y.heap.cfg.SurvivorBudget)
	return from, y.allocated.Swap(0)
}

// CompleteCycle installs the regions that now hold young survivors. Every
// object in them has survived once, so they are flagged as aged.
//
// With SurvivorTailAllocation the emptiest survivor region keeps taking
// mutator allocations: its current top becomes the age mark, and only the
// objects below it count as aged.
func (y *YoungSpace) CompleteCycle(survivors []*Region) {
	var tail *Region
	for _, r := range survivors {
		r.Relabel(GenSurvivor)
		r.SetFlag(FlagBelowAgeMark)
		r.ClearFlag(FlagToSpace | FlagHasAgeMark)
		if y.heap.cfg.SurvivorTailAllocation && r.FreeBytes()*4 >= y.heap.RegionSize() &&
			(tail == nil || r.FreeBytes() > tail.FreeBytes()) {
			tail = r
		}
	}
	if tail != nil {
		tail.ClearFlag(FlagBelowAgeMark)
		tail.SetAgeMark(tail.Top())
	}
	y.overcommitted.Store(y.toSpace.Refused())

	y.mu.Lock()
	y.survivors = append(y.survivors[:0], survivors...)
	if tail != nil {
		y.current = tail
	}
	y.mu.Unlock()
}

func (y *YoungSpace) allocate(bytes int) Address {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.current != nil {
		if a := y.current.bump(bytes); a != Nil {
			y.allocated.Add(uint64(bytes))
			return a
		}
	}
	r := y.heap.acquireRegion(GenEden)
	if r == nil {
		return Nil
	}
	y.eden = append(y.eden, r)
	y.current = r
	a := r.bump(bytes)
	if a != Nil {
		y.allocated.Add(uint64(bytes))
	}
	return a
}
