package gc

import (
	"github.com/cockroachdb/errors"

	"regionvac/domain/heap"
)

// resolve maps a reference taken before evacuation to its current
// location. alive is false for referents that died in a condemned region.
func (c *Collector) resolve(v heap.Address) (to heap.Address, alive bool, err error) {
	r := c.heap.RegionOf(v)
	if r == nil || !r.HasFlag(heap.FlagInCollectionSet) {
		return v, true, nil
	}
	if r.HasFlag(heap.FlagWholeMoved) {
		return v, r.IsMarked(v), nil
	}
	hdr := c.heap.LoadHeader(v)
	if hdr.IsForwarded() {
		return hdr.ForwardingAddress(), true, nil
	}
	if r.IsMarked(v) {
		return v, false, errors.Wrapf(ErrForwardingMismatch, "%s in region %d", v, r.Index())
	}
	return v, false, nil
}

// updateSlot rewrites slot if its referent moved. Dead referents are left
// alone. Rewriting an already rewritten slot is a no-op.
func (w *worker) updateSlot(slot heap.Address) (heap.Address, bool, error) {
	h := w.c.heap
	v := h.LoadRef(slot)
	if v == heap.Nil {
		return v, false, nil
	}
	to, alive, err := w.c.resolve(v)
	if err != nil || !alive {
		return v, false, err
	}
	if to != v {
		h.Store(slot, uint64(to))
		w.slotsUpdated++
	}
	return to, true, nil
}

// rsetWork replays the remembered sets of a tenured region that was not
// condemned.
type rsetWork struct {
	region *heap.Region
}

func (u *rsetWork) Process(w *worker) error {
	h := w.c.heap
	r := u.region
	pending := r.SwapOldToYoung()
	fresh := r.OldToYoung()

	var err error
	replay := func(slot heap.Address) bool {
		to, alive, e := w.updateSlot(slot)
		if e != nil {
			err = e
			return false
		}
		if alive {
			if tr := h.RegionOf(to); tr != nil && tr.Generation().IsYoung() {
				fresh.Insert(slot)
			}
		}
		return true
	}

	pending.Iterate(replay)
	if err != nil {
		return err
	}
	r.TakeCrossRegion().Iterate(replay)
	return err
}

// newRegionWork rewrites every object copied into a survivor to-space
// region.
type newRegionWork struct {
	region *heap.Region
}

func (u *newRegionWork) Process(w *worker) error {
	h := w.c.heap
	r := u.region
	var err error
	h.WalkRegion(r, func(obj heap.Address, _ heap.Header) bool {
		err = w.updateObject(r, obj, false)
		return err == nil
	})
	return err
}

// wholeRegionWork rewrites the live objects of a region that was moved
// whole and turns the dead space between them into fillers.
type wholeRegionWork struct {
	region *heap.Region
}

func (u *wholeRegionWork) Process(w *worker) error {
	h := w.c.heap
	r := u.region
	tenured := r.Generation().IsOld()

	live := r.IterateMarked
	if tenured {
		live = func(fn func(obj heap.Address) bool) {
			r.Promoted().Iterate(fn)
		}
	}

	var (
		err    error
		spans  []heap.Span
		cursor = r.Base()
	)
	fill := func(from, to heap.Address) {
		if to <= from {
			return
		}
		h.WriteFiller(from, int(to-from))
		spans = append(spans, heap.Span{Start: from, Size: int(to - from)})
	}
	live(func(obj heap.Address) bool {
		fill(cursor, obj)
		if err = w.updateObject(r, obj, tenured); err != nil {
			return false
		}
		cursor = obj + heap.Address(h.ObjectSize(obj))
		return true
	})
	if err != nil {
		return err
	}
	fill(cursor, r.Top())
	r.SetFreeSpans(spans)
	return nil
}

// updateObject rewrites the reference fields of obj, which lives in r,
// and records the slots r must remember from now on.
func (w *worker) updateObject(r *heap.Region, obj heap.Address, tenured bool) error {
	h := w.c.heap
	var err error
	h.Layout().VisitRefs(h, obj, func(slot heap.Address) {
		if err != nil {
			return
		}
		to, alive, e := w.updateSlot(slot)
		if e != nil {
			err = e
			return
		}
		if !alive {
			return
		}
		tr := h.RegionOf(to)
		if tr == nil {
			return
		}
		switch g := tr.Generation(); {
		case g == heap.GenShared && r.Generation() != heap.GenShared:
			r.LocalToShared().Insert(slot)
		case tenured && g.IsYoung():
			r.OldToYoung().Insert(slot)
		}
	})
	return err
}
