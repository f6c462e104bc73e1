// Package workload distributes region-scoped units of work across a
// fixed set of workers without a central dispatcher.
//
// A Set owns an ordered list of workloads, each guarded by a one-shot
// claim flag, plus a list of start indices produced by recursively
// bisecting [0, N). A worker takes the next unclaimed start index and
// walks forward, claiming workloads until it reaches one somebody else
// already claimed. Contention costs at most one failed compare-and-swap
// per contested workload.
package workload

import "sync/atomic"

// Workload is one unit of work for a collection phase. Each variant
// carries its own Process so new phases never touch the drain loop.
type Workload[W any] interface {
	Process(worker W) error
}

type entry[W any] struct {
	work    Workload[W]
	claimed atomic.Bool
}

// Set is a balanced multi-consumer collection of workloads. Add and
// Prepare must complete before any Drain; Drain may run on many
// goroutines at once.
type Set[W any] struct {
	items     []*entry[W]
	starts    []int
	next      atomic.Int64
	remaining atomic.Int64
}

func (s *Set[W]) Add(w Workload[W]) {
	s.items = append(s.items, &entry[W]{work: w})
}

// Prepare computes the start indices and arms the set for draining.
func (s *Set[W]) Prepare() {
	s.starts = bisect(len(s.items), s.starts[:0])
	s.next.Store(0)
	s.remaining.Store(int64(len(s.items)))
	for _, e := range s.items {
		e.claimed.Store(false)
	}
}

// bisect lists 0 followed by the midpoints of nested halves of [0, n),
// breadth first. Every index in [0, n) appears exactly once.
func bisect(n int, out []int) []int {
	if n == 0 {
		return out
	}
	out = append(out, 0)
	type span struct{ lo, hi int }
	queue := []span{{0, n}}
	for len(queue) > 0 {
		sp := queue[0]
		queue = queue[1:]
		if sp.hi-sp.lo < 2 {
			continue
		}
		mid := sp.lo + (sp.hi-sp.lo)/2
		out = append(out, mid)
		queue = append(queue, span{sp.lo, mid}, span{mid, sp.hi})
	}
	return out
}

// Drain processes workloads on behalf of worker until no start index is
// left. It returns how many workloads this call processed and the first
// error a workload reported; a failing worker stops draining.
func (s *Set[W]) Drain(worker W) (int, error) {
	processed := 0
	for {
		i := int(s.next.Add(1) - 1)
		if i >= len(s.starts) {
			return processed, nil
		}
		for j := s.starts[i]; j < len(s.items); j++ {
			e := s.items[j]
			if !e.claimed.CompareAndSwap(false, true) {
				break
			}
			err := e.work.Process(worker)
			s.remaining.Add(-1)
			processed++
			if err != nil {
				return processed, err
			}
		}
	}
}

func (s *Set[W]) Len() int { return len(s.items) }

// Remaining is the number of workloads not yet processed.
func (s *Set[W]) Remaining() int { return int(s.remaining.Load()) }

// Starts exposes the bisection order.
func (s *Set[W]) Starts() []int { return s.starts }

// Reset replaces the contents of the set with items and prepares it.
func (s *Set[W]) Reset(items ...Workload[W]) {
	s.Clear()
	for _, w := range items {
		s.Add(w)
	}
	s.Prepare()
}

// Clear drops every workload.
func (s *Set[W]) Clear() {
	clear(s.items)
	s.items = s.items[:0]
	s.starts = s.starts[:0]
	s.next.Store(0)
	s.remaining.Store(0)
}
