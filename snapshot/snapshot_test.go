package snapshot

import (
	"path/filepath"
	"testing"

	"regionvac/domain/heap"
)

func newHeap(t *testing.T) (*heap.Heap, heap.ClassID) {
	t.Helper()
	classes := heap.NewClassTable()
	node := classes.Register("node", 4, 1, 2)
	h := heap.New(heap.Config{
		RegionShift:    10,
		Regions:        16,
		SurvivorBudget: 4 << 10,
		OldBudget:      4 << 10,
		SharedBudget:   1 << 10,
	}, classes)
	return h, node
}

func TestWriteAndLoad(t *testing.T) {
	h, node := newHeap(t)
	for i := 0; i < 40; i++ { // 40 * 32 bytes spans two eden regions
		if _, err := h.Allocate(node, 0); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := h.AllocateIn(heap.GenOld, node, 0); err != nil {
		t.Fatal(err)
	}
	h.Roots().Add(heap.RootGlobal, "g", heap.Nil)

	w := &Writer{Dir: t.TempDir(), Reader: NewReader()}
	if err := w.Write(7, h); err != nil {
		t.Fatalf("Write: %v", err)
	}

	s, err := Load(w.Path())
	if err != nil || s == nil {
		t.Fatalf("Load = %v, %v", s, err)
	}
	if s.Cycle != 7 || s.RegionShift != 10 || s.Roots != 1 {
		t.Fatalf("header = %+v", s)
	}
	gens := s.ByGeneration()
	if gens[heap.GenEden.String()] != 2 || gens[heap.GenOld.String()] != 1 {
		t.Fatalf("generations = %v", gens)
	}
	objects := 0
	for _, e := range s.Regions {
		objects += e.Objects
	}
	if objects != 41 {
		t.Fatalf("objects = %d, want 41", objects)
	}
	if w.Reader.Epoch().Active() {
		t.Fatal("reader left active after Write")
	}
}

func TestLoadMissingIsOptional(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "none.bin"))
	if s != nil || err != nil {
		t.Fatalf("Load = %v, %v", s, err)
	}
}

func TestReaderSection(t *testing.T) {
	r := NewReader()
	if r.Epoch().Active() {
		t.Fatal("new reader is active")
	}
	r.Begin()
	if !r.Epoch().Active() {
		t.Fatal("reader not active inside Begin/End")
	}
	r.End()
	if r.Epoch().Active() {
		t.Fatal("reader active after End")
	}
}
