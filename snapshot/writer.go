package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"regionvac/domain/heap"
)

const fileName = "snapshot.bin"

type Writer struct {
	Dir    string
	Reader *Reader // optional
}

// Capture builds the region table of h. Free regions are skipped.
func (w *Writer) Capture(cycle uint64, h *heap.Heap) *Snapshot {
	if w.Reader != nil {
		w.Reader.Begin()
		defer w.Reader.End()
	}

	s := &Snapshot{
		Cycle:       cycle,
		Created:     time.Now(),
		RegionShift: h.Config().RegionShift,
		Roots:       h.Roots().Len(),
		WeakHandles: h.Weak().Len(),
	}
	h.Regions(func(r *heap.Region) {
		if r.Generation() == heap.GenFree {
			return
		}
		e := RegionEntry{
			Index:      r.Index(),
			Generation: r.Generation().String(),
			Flags:      r.Flags().String(),
			Allocated:  r.AllocatedBytes(),
			Alive:      r.AliveBytes(),
			RemSet:     r.RemSetSize(),
			FreeSpans:  len(r.FreeSpans()),
			Retired:    r.HasFlag(heap.FlagEvacuated),
		}
		h.WalkRegion(r, func(heap.Address, heap.Header) bool {
			e.Objects++
			return true
		})
		s.Regions = append(s.Regions, e)
	})
	return s
}

// Write dumps the region table of h into Dir. The file is replaced
// atomically.
func (w *Writer) Write(cycle uint64, h *heap.Heap) error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return err
	}
	s := w.Capture(cycle, h)

	tmp, err := os.CreateTemp(w.Dir, fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(s); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(w.Dir, fileName))
}

// Path is where Write puts the snapshot.
func (w *Writer) Path() string {
	return filepath.Join(w.Dir, fileName)
}
