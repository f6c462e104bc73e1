// Package marker is the reference mark phase that runs before an
// evacuation. It fills the mark bitmap and alive byte count of every
// condemned region; everything outside the collection set is treated as
// live and used as a source of roots.
package marker

import (
	"regionvac/domain/heap"
)

// Stats summarises one mark.
type Stats struct {
	Condemned     int
	Mixed         bool
	MarkedObjects int
	MarkedBytes   uint64
	CrossRegion   int
}

// Mark traces the object graph restricted to h.CollectionSet(). Roots are
// the root set, the remembered old-to-young slots of tenured regions and,
// for a mixed collection, every reference held by a tenured region outside
// the collection set. In a mixed collection those references into
// condemned old regions are also recorded in the source region's
// cross-region set. Weak handles are not traced.
func Mark(h *heap.Heap) Stats {
	cset := h.CollectionSet()
	condemned := make(map[*heap.Region]bool, len(cset))
	var st Stats
	for _, r := range cset {
		r.ClearMarks()
		condemned[r] = true
		if r.Generation().IsOld() {
			st.Mixed = true
		}
	}
	st.Condemned = len(cset)
	if len(cset) == 0 {
		return st
	}

	m := &tracer{h: h, condemned: condemned, st: &st}

	h.Roots().Visit(func(_ heap.RootKind, a heap.Address) heap.Address {
		m.grey(a)
		return a
	})

	h.Regions(func(r *heap.Region) {
		if condemned[r] || !heap.IsTenured(r.Generation()) {
			return
		}
		if !st.Mixed {
			r.OldToYoung().Iterate(func(slot heap.Address) bool {
				m.grey(h.LoadRef(slot))
				return true
			})
			return
		}
		h.WalkRegion(r, func(obj heap.Address, _ heap.Header) bool {
			h.Layout().VisitRefs(h, obj, func(slot heap.Address) {
				v := h.LoadRef(slot)
				if to := h.RegionOf(v); to != nil && condemned[to] && to.Generation().IsOld() {
					r.CrossRegion().Insert(slot)
					st.CrossRegion++
				}
				m.grey(v)
			})
			return true
		})
	})

	m.drain()
	return st
}

type tracer struct {
	h         *heap.Heap
	condemned map[*heap.Region]bool
	stack     []heap.Address
	st        *Stats
}

func (m *tracer) grey(a heap.Address) {
	if a == heap.Nil {
		return
	}
	r := m.h.RegionOf(a)
	if r == nil || !m.condemned[r] || !r.Mark(a) {
		return
	}
	size := uint64(m.h.ObjectSize(a))
	r.AddAliveBytes(size)
	m.st.MarkedObjects++
	m.st.MarkedBytes += size
	m.stack = append(m.stack, a)
}

func (m *tracer) drain() {
	for len(m.stack) > 0 {
		obj := m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
		m.h.Layout().VisitRefs(m.h, obj, func(slot heap.Address) {
			m.grey(m.h.LoadRef(slot))
		})
	}
}
