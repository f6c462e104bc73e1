package heap

import (
	"errors"
	"sync"
	"testing"
)

func testHeap(t *testing.T) (*Heap, ClassID, ClassID) {
	t.Helper()
	classes := NewClassTable()
	node := classes.Register("node", 3, 1, 2)
	arr := classes.RegisterArray("refs")
	h := New(Config{
		RegionShift:    10,
		Regions:        16,
		SurvivorBudget: 2 << 10,
		OldBudget:      4 << 10,
		SharedBudget:   1 << 10,
	}, classes)
	return h, node, arr
}

func TestBitmap(t *testing.T) {
	b := NewBitmap(130)
	if !b.Set(0) || !b.Set(64) || !b.Set(129) {
		t.Fatal("Set on a clear bit reported false")
	}
	if b.Set(64) {
		t.Fatal("Set on a set bit reported true")
	}
	if b.Count() != 3 {
		t.Fatalf("Count = %d, want 3", b.Count())
	}
	var got []int
	b.Iterate(func(i int) bool { got = append(got, i); return true })
	if len(got) != 3 || got[0] != 0 || got[1] != 64 || got[2] != 129 {
		t.Fatalf("Iterate = %v", got)
	}
	b.Clear(64)
	if b.Test(64) || !b.Test(129) {
		t.Fatal("Clear touched the wrong bit")
	}

	c := NewBitmap(130)
	c.CopyFrom(b)
	if c.Count() != 2 || !c.Test(0) {
		t.Fatal("CopyFrom lost bits")
	}
	b.Reset()
	if b.Count() != 0 {
		t.Fatal("Reset left bits set")
	}
}

func TestRemSetIgnoresForeignSlots(t *testing.T) {
	s := newRemSet(0x1000, 16)
	s.Insert(0x1008)
	s.Insert(0x0ff8)
	s.Insert(0x1000 + 16*WordSize)
	if s.Len() != 1 || !s.Contains(0x1008) {
		t.Fatalf("Len = %d", s.Len())
	}
	s.Remove(0x1008)
	if s.Len() != 0 {
		t.Fatal("Remove kept the slot")
	}
}

func TestClassSizes(t *testing.T) {
	h, node, arr := testHeap(t)
	n, err := h.Allocate(node, 0)
	if err != nil {
		t.Fatal(err)
	}
	a, err := h.Allocate(arr, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got := h.ObjectSize(n); got != 3*WordSize {
		t.Errorf("node size = %d", got)
	}
	if got := h.ObjectSize(a); got != 7*WordSize {
		t.Errorf("array size = %d", got)
	}
	var slots []Address
	h.Layout().VisitRefs(h, a, func(slot Address) { slots = append(slots, slot) })
	if len(slots) != 5 || slots[0] != ElementAddress(a, 0) {
		t.Errorf("array slots = %v", slots)
	}
	if _, err := h.Allocate(ClassFiller, 0); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("allocating a filler = %v", err)
	}
}

func TestWalkRegionSkipsFillers(t *testing.T) {
	h, node, _ := testHeap(t)
	var objs []Address
	for i := 0; i < 4; i++ {
		a, _ := h.Allocate(node, 0)
		objs = append(objs, a)
	}
	h.WriteFiller(objs[1], 3*WordSize)
	h.WriteFiller(objs[2], WordSize)
	h.WriteFiller(objs[2]+WordSize, 2*WordSize)

	var seen []Address
	h.WalkRegion(h.RegionOf(objs[0]), func(obj Address, _ Header) bool {
		seen = append(seen, obj)
		return true
	})
	if len(seen) != 2 || seen[0] != objs[0] || seen[1] != objs[3] {
		t.Fatalf("walk = %v", seen)
	}
}

func TestTryForwardFirstWins(t *testing.T) {
	h, node, _ := testHeap(t)
	obj, _ := h.Allocate(node, 0)
	hdr := h.LoadHeader(obj)

	const racers = 16
	results := make([]Address, racers)
	wins := make([]bool, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], wins[i] = h.TryForward(obj, hdr, Address(0x100000+i*64))
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range results {
		if wins[i] {
			winners++
		}
		if results[i] != results[0] {
			t.Fatalf("racers disagree: %s vs %s", results[i], results[0])
		}
	}
	if winners != 1 {
		t.Fatalf("%d winners, want 1", winners)
	}
	if got := h.LoadHeader(obj); !got.IsForwarded() || got.ForwardingAddress() != results[0] {
		t.Fatalf("header = %#x", uint64(got))
	}
}

func TestCopyObject(t *testing.T) {
	h, node, _ := testHeap(t)
	src, _ := h.Allocate(node, 0)
	h.Store(FieldAddress(src, 1), 0xdead0)
	dst, err := h.AllocateIn(GenOld, node, 0)
	if err != nil {
		t.Fatal(err)
	}
	hdr := h.LoadHeader(src)
	if err := h.CopyObject(dst, src, hdr, 3*WordSize); err != nil {
		t.Fatal(err)
	}
	if h.LoadHeader(dst) != hdr || h.Load(FieldAddress(dst, 1)) != 0xdead0 {
		t.Fatal("copy differs from source")
	}
	end := h.RegionOf(dst).End() - WordSize
	if err := h.CopyObject(end, src, hdr, 3*WordSize); !errors.Is(err, ErrCopyOutOfRange) {
		t.Fatalf("copy across the region end = %v", err)
	}
}

func TestAllocBufferFallsBackWhenBudgetSpent(t *testing.T) {
	h, _, _ := testHeap(t)
	buf := NewAllocBuffer(h.Young().ToSpace(), h.Old())

	budget := int(h.Config().SurvivorBudget)
	for n := 0; n < budget; n += h.RegionSize() {
		if a := buf.Allocate(GenSurvivor, h.RegionSize()); a == Nil {
			t.Fatal("allocation within budget failed")
		}
	}
	if h.Young().ToSpace().Refused() {
		t.Fatal("to-space refused within budget")
	}
	if a := buf.Allocate(GenSurvivor, WordSize); a != Nil {
		t.Fatal("allocation past the survivor budget succeeded")
	}
	if !h.Young().ToSpace().Refused() {
		t.Fatal("refused reservation not recorded")
	}
	a := buf.Allocate(GenOld, 4*WordSize)
	if a == Nil || h.RegionOf(a).Generation() != GenOld {
		t.Fatal("old allocation failed")
	}
	if buf.AllocatedBytes(GenSurvivor) != uint64(budget) || buf.AllocatedBytes(GenOld) != 32 {
		t.Fatal("allocated byte counters wrong")
	}
	regions := buf.Close()
	if len(regions) != 3 {
		t.Fatalf("buffer filled %d regions, want 3", len(regions))
	}
	if !regions[0].HasFlag(FlagToSpace) {
		t.Fatal("survivor region not flagged as to-space")
	}
}

func TestWriteBarrier(t *testing.T) {
	h, node, _ := testHeap(t)
	young, _ := h.Allocate(node, 0)
	old, _ := h.AllocateIn(GenOld, node, 0)
	shared, _ := h.AllocateIn(GenShared, node, 0)

	h.StoreRef(FieldAddress(old, 1), young)
	h.StoreRef(FieldAddress(old, 2), shared)
	h.StoreRef(FieldAddress(young, 1), old)
	h.StoreRef(FieldAddress(shared, 1), young)

	or := h.RegionOf(old)
	if !or.OldToYoung().Contains(FieldAddress(old, 1)) {
		t.Error("old-to-young slot not recorded")
	}
	if !or.LocalToShared().Contains(FieldAddress(old, 2)) {
		t.Error("local-to-shared slot not recorded")
	}
	if h.RegionOf(young).RemSetSize() != 0 {
		t.Error("young-to-old store was recorded")
	}
	if !h.RegionOf(shared).OldToYoung().Contains(FieldAddress(shared, 1)) {
		t.Error("shared-to-young slot not recorded")
	}
}

func TestCollectionSetAndReclaim(t *testing.T) {
	h, node, _ := testHeap(t)
	y, _ := h.Allocate(node, 0)
	o, _ := h.AllocateIn(GenOld, node, 0)
	large, _ := h.AllocateIn(GenLarge, node, 0)

	if err := h.AddToCollectionSet(h.RegionOf(large)); !errors.Is(err, ErrNotCollectable) {
		t.Fatalf("condemning a large region = %v", err)
	}
	or := h.RegionOf(o)
	if err := h.AddToCollectionSet(or); err != nil {
		t.Fatal(err)
	}
	cset := h.CollectionSet()
	if len(cset) != 2 || cset[0] != h.RegionOf(y) || cset[1] != or {
		t.Fatalf("collection set = %v", cset)
	}

	used := h.Old().Used()
	free := h.FreeRegions()
	h.Reclaim(or)
	if h.FreeRegions() != free+1 || or.Generation() != GenFree || or.Flags() != 0 {
		t.Fatal("reclaimed region not reset")
	}
	if h.Old().Used() != used-uint64(3*WordSize) {
		t.Fatalf("old space used = %d", h.Old().Used())
	}
}

func TestWeakRegistry(t *testing.T) {
	var r WeakRegistry
	calls := 0
	a := r.Register(0x4000, func() { calls++ })
	b := r.Register(0x5000, nil)
	b.Clear()

	visited := 0
	r.Iterate(func(h *WeakHandle) { visited++ })
	if visited != 1 {
		t.Fatalf("visited %d live handles, want 1", visited)
	}
	if fn := a.TakeFinalizer(); fn == nil {
		t.Fatal("finalizer missing")
	} else {
		fn()
	}
	if a.TakeFinalizer() != nil || calls != 1 {
		t.Fatal("finalizer handed out twice")
	}
	if r.Prune() != 1 || r.Len() != 1 {
		t.Fatal("Prune kept the cleared handle")
	}
}

func TestYoungFlip(t *testing.T) {
	h, node, _ := testHeap(t)
	h.Allocate(node, 0)
	h.Allocate(node, 0)
	if h.Young().AllocatedBytes() != 48 {
		t.Fatalf("watermark = %d", h.Young().AllocatedBytes())
	}
	before := h.Young().ToSpace()
	from, watermark := h.Young().Flip()
	if len(from) != 1 || watermark != 48 || h.Young().AllocatedBytes() != 0 {
		t.Fatalf("flip = %d regions, watermark %d", len(from), watermark)
	}
	if h.Young().ToSpace() == before || len(h.Young().Regions()) != 0 {
		t.Fatal("flip kept the old spaces")
	}
}

func TestEdenReserve(t *testing.T) {
	classes := NewClassTable()
	node := classes.Register("node", 4)
	h := New(Config{
		RegionShift:    10,
		Regions:        8,
		SurvivorBudget: 2 << 10,
		OldBudget:      2 << 10,
		EdenReserve:    3,
	}, classes)

	n := 0
	for {
		if _, err := h.Allocate(node, 0); err != nil {
			if !errors.Is(err, ErrSpaceExhausted) {
				t.Fatalf("Allocate: %v", err)
			}
			break
		}
		n++
	}
	if len(h.Young().Regions()) != 5 || h.FreeRegions() != 3 {
		t.Fatalf("eden took %d regions, %d left free", len(h.Young().Regions()), h.FreeRegions())
	}
	if n != 5*h.RegionSize()/32 {
		t.Fatalf("allocated %d objects", n)
	}
	if _, err := h.AllocateIn(GenOld, node, 0); err != nil {
		t.Fatalf("old allocation blocked by the eden reserve: %v", err)
	}
}

func TestCompleteCycleOvercommit(t *testing.T) {
	h, _, _ := testHeap(t)
	y := h.Young()

	y.Flip()
	buf := NewAllocBuffer(y.ToSpace(), h.Old())
	for n := 0; n < int(h.Config().SurvivorBudget); n += h.RegionSize() {
		buf.Allocate(GenSurvivor, h.RegionSize())
	}
	if buf.Allocate(GenSurvivor, WordSize) != Nil {
		t.Fatal("survivor budget not enforced")
	}
	y.CompleteCycle(buf.Close())
	if !y.Overcommitted() {
		t.Fatal("overflowing to-space did not mark the young space overcommitted")
	}

	y.Flip()
	if !y.Overcommitted() {
		t.Fatal("flip cleared the overcommit flag")
	}
	buf.Reset(y.ToSpace(), h.Old())
	buf.Allocate(GenSurvivor, 4*WordSize)
	y.CompleteCycle(buf.Close())
	if y.Overcommitted() {
		t.Fatal("overcommit flag survived a cycle that fit the budget")
	}
}

func TestSurvivorTailAllocation(t *testing.T) {
	classes := NewClassTable()
	node := classes.Register("node", 3, 1, 2)
	h := New(Config{
		RegionShift:            10,
		Regions:                16,
		SurvivorBudget:         2 << 10,
		OldBudget:              4 << 10,
		SurvivorTailAllocation: true,
	}, classes)
	y := h.Young()

	y.Flip()
	buf := NewAllocBuffer(y.ToSpace(), h.Old())
	full := buf.Allocate(GenSurvivor, h.RegionSize())
	aged := buf.Allocate(GenSurvivor, 3*WordSize)
	regions := buf.Close()
	if len(regions) != 2 {
		t.Fatalf("buffer filled %d regions, want 2", len(regions))
	}
	y.CompleteCycle(regions)

	tail := h.RegionOf(aged)
	if !h.RegionOf(full).HasFlag(FlagBelowAgeMark) {
		t.Fatal("full survivor region not aged")
	}
	if tail.HasFlag(FlagBelowAgeMark) || !tail.HasFlag(FlagHasAgeMark) {
		t.Fatalf("tail region flags = %b", tail.Flags())
	}
	if tail.AgeMark() != aged+3*WordSize {
		t.Fatalf("age mark = %#x, want %#x", tail.AgeMark(), aged+3*WordSize)
	}

	fresh, err := h.Allocate(node, 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.RegionOf(fresh) != tail {
		t.Fatal("mutator did not allocate into the survivor tail")
	}
	if !tail.IsAged(aged) || tail.IsAged(fresh) {
		t.Fatal("age mark does not split the region")
	}

	from, _ := y.Flip()
	if len(from) != 2 {
		t.Fatalf("flip returned %d regions, want 2", len(from))
	}
}
