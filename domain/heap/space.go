package heap

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Space is a byte-budgeted destination space for one generation. Reserve
// never blocks: it fails once the budget is spent.
type Space struct {
	heap   *Heap
	gen    Generation
	budget uint64
	used   atomic.Uint64
	// refused is set by the first Reserve that does not fit.
	refused atomic.Bool

	mu      sync.Mutex
	regions []*Region
	mutator *Region
}

func newSpace(h *Heap, gen Generation, budget uint64) *Space {
	return &Space{heap: h, gen: gen, budget: budget}
}

func (s *Space) Generation() Generation { return s.gen }

func (s *Space) Budget() uint64 { return s.budget }

func (s *Space) Used() uint64 { return s.used.Load() }

// Reserve charges n bytes against the budget.
func (s *Space) Reserve(n uint64) bool {
	for {
		cur := s.used.Load()
		if cur+n > s.budget {
			s.refused.Store(true)
			return false
		}
		if s.used.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}

// Refused reports whether the space has turned down a reservation.
func (s *Space) Refused() bool { return s.refused.Load() }

func (s *Space) Release(n uint64) {
	for {
		cur := s.used.Load()
		next := uint64(0)
		if cur > n {
			next = cur - n
		}
		if s.used.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Regions returns a copy of the regions owned by the space.
func (s *Space) Regions() []*Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.regions)
}

func (s *Space) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regions)
}

// takeRegion acquires a free region from the heap and labels it with the
// space's generation. It returns nil when the heap has no free region.
func (s *Space) takeRegion() *Region {
	r := s.heap.acquireRegion(s.gen)
	if r == nil {
		return nil
	}
	s.attach(r)
	return r
}

func (s *Space) attach(r *Region) {
	s.mu.Lock()
	r.owner = s
	s.regions = append(s.regions, r)
	s.mu.Unlock()
}

// Adopt takes ownership of an existing region without copying, charging
// its allocated bytes against the budget. It fails when the budget cannot
// hold the region.
func (s *Space) Adopt(r *Region) bool {
	if !s.Reserve(uint64(r.AllocatedBytes())) {
		return false
	}
	s.attach(r)
	return true
}

// ForceAdopt takes ownership regardless of the budget. Whole-region
// promotion uses it: the bytes are already committed.
func (s *Space) ForceAdopt(r *Region) {
	s.used.Add(uint64(r.AllocatedBytes()))
	s.attach(r)
}

func (s *Space) detach(r *Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.regions, r); i >= 0 {
		s.regions = slices.Delete(s.regions, i, i+1)
	}
	if s.mutator == r {
		s.mutator = nil
	}
	s.Release(uint64(r.AllocatedBytes()))
}

// allocateMutator serves mutator allocation directly into the space.
func (s *Space) allocateMutator(bytes int) Address {
	if !s.Reserve(uint64(bytes)) {
		return Nil
	}
	s.mu.Lock()
	r := s.mutator
	s.mu.Unlock()
	if r != nil {
		if a := r.bump(bytes); a != Nil {
			return a
		}
	}
	r = s.takeRegion()
	if r == nil {
		s.Release(uint64(bytes))
		return Nil
	}
	s.mu.Lock()
	s.mutator = r
	s.mu.Unlock()
	return r.bump(bytes)
}
