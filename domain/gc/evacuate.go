package gc

import (
	"time"

	"github.com/cockroachdb/errors"

	"regionvac/domain/heap"
)

// evacuateWork evacuates one condemned region. Fields after strategy are
// written only by the worker that claimed it.
type evacuateWork struct {
	region   *heap.Region
	gen      heap.Generation // generation before the cycle
	strategy Strategy

	allocated int
	live      uint64
	remset    int
	moved     uint64
	promoted  uint64
	objects   int
	elapsed   time.Duration
}

func (e *evacuateWork) Process(w *worker) error {
	return w.evacuateRegion(e)
}

func (w *worker) evacuateRegion(e *evacuateWork) error {
	start := time.Now()
	defer func() { e.elapsed = time.Since(start) }()

	r := e.region
	switch e.strategy {
	case WholeRegionToOld:
		r.SnapshotMarks()
		r.Relabel(heap.GenOld)
		r.SetFlag(heap.FlagWholeMoved)
		e.promoted = r.AliveBytes()
		w.promotedBytes += e.promoted
		w.promotedObjects += uint64(r.MarkBitmap().Count())
		return nil
	case WholeRegionToSurvivor:
		r.Relabel(heap.GenSurvivor)
		r.SetFlag(heap.FlagWholeMoved | heap.FlagBelowAgeMark)
		return nil
	}

	var err error
	r.IterateMarked(func(obj heap.Address) bool {
		err = w.copyObject(e, obj)
		return err == nil
	})
	r.SetFlag(heap.FlagEvacuated)
	return err
}

// copyObject moves one live object out of e's region.
func (w *worker) copyObject(e *evacuateWork, obj heap.Address) error {
	h := w.c.heap
	r := e.region

	hdr := h.LoadHeader(obj)
	if hdr.IsForwarded() {
		return nil
	}
	size := h.Layout().SizeOf(h, obj, hdr)

	dst := heap.Nil
	dstGen := heap.GenOld
	if !e.gen.IsOld() && !r.IsAged(obj) {
		if dst = w.buf.Allocate(heap.GenSurvivor, size); dst != heap.Nil {
			dstGen = heap.GenSurvivor
		}
	}
	if dst == heap.Nil {
		dst = w.buf.Allocate(heap.GenOld, size)
	}
	if dst == heap.Nil {
		return errors.Wrapf(ErrOldSpaceExhausted,
			"%d bytes for %s in region %d", size, obj, r.Index())
	}

	if err := h.CopyObject(dst, obj, hdr, size); err != nil {
		return errors.Mark(errors.Wrapf(err, "evacuating %s", obj), ErrCopyFailed)
	}
	to, won := h.TryForward(obj, hdr, dst)
	if !won {
		h.WriteFiller(dst, size)
		w.lostRaces++
		if to == heap.Nil {
			return errors.AssertionFailedf("gc: header of %s changed without forwarding", obj)
		}
		return nil
	}

	e.moved += uint64(size)
	e.objects++
	switch {
	case e.gen.IsOld():
		w.tenuredMoved += uint64(size)
		w.tenuredObjects++
		w.recordPromotedRefs(dst)
	case dstGen.IsOld():
		e.promoted += uint64(size)
		w.promotedBytes += uint64(size)
		w.promotedObjects++
		w.recordPromotedRefs(dst)
	default:
		w.youngMovedBytes += uint64(size)
		w.youngMovedObjects++
	}
	return nil
}

// recordPromotedRefs fills the remembered sets of the region holding a
// copy that landed in old space.
func (w *worker) recordPromotedRefs(obj heap.Address) {
	h := w.c.heap
	dr := h.RegionOf(obj)
	h.Layout().VisitRefs(h, obj, func(slot heap.Address) {
		tr := h.RegionOf(h.LoadRef(slot))
		if tr == nil {
			return
		}
		switch g := tr.Generation(); {
		case g.IsYoung():
			dr.OldToYoung().Insert(slot)
		case tr.HasFlag(heap.FlagInCollectionSet):
			dr.CrossRegion().Insert(slot)
		case g == heap.GenShared:
			dr.LocalToShared().Insert(slot)
		}
	})
}
