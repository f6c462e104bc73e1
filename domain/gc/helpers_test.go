package gc

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"regionvac/domain/heap"
	"regionvac/domain/marker"
	"regionvac/infra/taskpool"
)

const nodeSize = 32 // header, two refs, payload

type fixture struct {
	t    *testing.T
	h    *heap.Heap
	node heap.ClassID
	pool *taskpool.Pool
	c    *Collector

	mu    sync.Mutex
	fatal []error
}

func newFixture(t *testing.T, tune func(*heap.Config, *Config)) *fixture {
	t.Helper()
	hc := heap.Config{
		RegionShift:    10,
		Regions:        128,
		SurvivorBudget: 64 << 10,
		OldBudget:      64 << 10,
		SharedBudget:   4 << 10,
	}
	cfg := DefaultConfig()
	cfg.MaxWorkers = 4
	cfg.RegionsPerThread = 1
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if tune != nil {
		tune(&hc, &cfg)
	}

	classes := heap.NewClassTable()
	f := &fixture{t: t, node: classes.Register("node", 4, 1, 2)}
	f.h = heap.New(hc, classes)
	f.pool = taskpool.New(4, 64)
	t.Cleanup(f.pool.Close)

	cfg.OnFatal = func(err error) {
		f.mu.Lock()
		f.fatal = append(f.fatal, err)
		f.mu.Unlock()
	}
	f.c = New(f.h, f.pool, nil, cfg)
	return f
}

// alloc places a node whose payload word holds id.
func (f *fixture) alloc(gen heap.Generation, id uint64) heap.Address {
	f.t.Helper()
	a, err := f.h.AllocateIn(gen, f.node, 0)
	if err != nil {
		f.t.Fatalf("AllocateIn(%s): %v", gen, err)
	}
	f.h.Store(heap.FieldAddress(a, 3), id)
	return a
}

func (f *fixture) link(obj heap.Address, field int, to heap.Address) {
	f.h.StoreRef(heap.FieldAddress(obj, field), to)
}

func (f *fixture) ref(obj heap.Address, field int) heap.Address {
	return f.h.LoadRef(heap.FieldAddress(obj, field))
}

func (f *fixture) id(obj heap.Address) uint64 {
	return f.h.Load(heap.FieldAddress(obj, 3))
}

func (f *fixture) root(a heap.Address) int {
	return f.h.Roots().Add(heap.RootGlobal, "", a)
}

func (f *fixture) collect() CycleReport {
	f.t.Helper()
	marker.Mark(f.h)
	rep, err := f.c.Collect()
	if err != nil {
		f.t.Fatalf("Collect: %v", err)
	}
	if len(f.fatal) > 0 {
		f.t.Fatalf("fatal errors: %v", f.fatal)
	}
	return rep
}

// fillRegion allocates nodes until the current eden region is full and
// returns them in address order.
func (f *fixture) fillRegion(firstID uint64) []heap.Address {
	f.t.Helper()
	n := f.h.RegionSize() / nodeSize
	out := make([]heap.Address, n)
	for i := range out {
		out[i] = f.alloc(heap.GenEden, firstID+uint64(i))
	}
	r := f.h.RegionOf(out[0])
	if f.h.RegionOf(out[n-1]) != r {
		f.t.Fatal("nodes spilled into a second region")
	}
	return out
}
