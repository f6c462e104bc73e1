package heap

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	ErrSpaceExhausted = errors.New("heap: space budget exhausted")
	ErrUnknownClass   = errors.New("heap: unknown class")
	ErrNotCollectable = errors.New("heap: region cannot join the collection set")
	ErrCopyOutOfRange = errors.New("heap: copy crosses a region boundary")
)

// Config sizes the simulated address space.
type Config struct {
	RegionShift    uint   // log2 of the region size in bytes
	Regions        int    // number of usable regions
	SurvivorBudget uint64 // bytes the survivor to-space may hold per cycle
	OldBudget      uint64 // bytes the old space may hold
	SharedBudget   uint64
	// EdenReserve is the number of free regions eden never takes, so a
	// collection always finds regions for survivor copies and promotions.
	EdenReserve int
	// SurvivorTailAllocation lets the mutator allocate into the free tail
	// of a survivor region left by the last collection.
	SurvivorTailAllocation bool
}

func DefaultConfig() Config {
	return Config{
		RegionShift:    16,
		Regions:        512,
		SurvivorBudget: 4 << 20,
		OldBudget:      24 << 20,
		SharedBudget:   2 << 20,
		EdenReserve:    96,

		SurvivorTailAllocation: true,
	}
}

// Heap is the region table plus the spaces, roots and weak handles that
// live on it.
type Heap struct {
	cfg     Config
	regions []*Region // index 0 is reserved so no object lives at address 0
	classes *ClassTable
	layout  Layout

	mu   sync.Mutex
	free []*Region

	young  *YoungSpace
	old    *Space
	shared *Space

	roots *RootSet
	weak  *WeakRegistry
}

func New(cfg Config, classes *ClassTable) *Heap {
	if cfg.RegionShift < 6 {
		panic("heap: region shift too small")
	}
	words := (1 << cfg.RegionShift) / WordSize
	h := &Heap{
		cfg:     cfg,
		regions: make([]*Region, cfg.Regions+1),
		classes: classes,
		layout:  classes,
		roots:   &RootSet{},
		weak:    &WeakRegistry{},
	}
	for i := cfg.Regions; i >= 1; i-- {
		r := newRegion(i, Address(uint64(i)<<cfg.RegionShift), words)
		h.regions[i] = r
		h.free = append(h.free, r)
	}
	h.young = newYoungSpace(h)
	h.old = newSpace(h, GenOld, cfg.OldBudget)
	h.shared = newSpace(h, GenShared, cfg.SharedBudget)
	return h
}

func (h *Heap) Config() Config { return h.cfg }

func (h *Heap) Classes() *ClassTable { return h.classes }

func (h *Heap) Layout() Layout { return h.layout }

func (h *Heap) Young() *YoungSpace { return h.young }

func (h *Heap) Old() *Space { return h.old }

func (h *Heap) Shared() *Space { return h.shared }

func (h *Heap) Roots() *RootSet { return h.roots }

func (h *Heap) Weak() *WeakRegistry { return h.weak }

func (h *Heap) RegionSize() int { return 1 << h.cfg.RegionShift }

// RegionOf returns the region containing a, or nil for nil and
// out-of-heap addresses.
func (h *Heap) RegionOf(a Address) *Region {
	i := int(uint64(a) >> h.cfg.RegionShift)
	if i <= 0 || i >= len(h.regions) {
		return nil
	}
	return h.regions[i]
}

// Regions calls fn for every region in the table, free ones included.
func (h *Heap) Regions(fn func(r *Region)) {
	for _, r := range h.regions[1:] {
		fn(r)
	}
}

func (h *Heap) FreeRegions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.free)
}

func (h *Heap) acquireRegion(gen Generation) *Region {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.free)
	if n == 0 || gen == GenEden && n <= h.cfg.EdenReserve {
		return nil
	}
	r := h.free[n-1]
	h.free = h.free[:n-1]
	r.Relabel(gen)
	return r
}

// Retire detaches an evacuated region from its space so nothing allocates
// into it again. Its contents stay readable until Reclaim.
func (h *Heap) Retire(r *Region) {
	if s := r.owner; s != nil {
		s.detach(r)
		r.owner = nil
	}
}

// Reclaim returns a region to the free list. The collector calls it once
// no heap reader can still observe the region's old contents.
func (h *Heap) Reclaim(r *Region) {
	h.Retire(r)
	r.reset()
	h.mu.Lock()
	h.free = append(h.free, r)
	h.mu.Unlock()
}

// CollectionSet lists the regions the next collection condemns: every
// young region plus the old regions flagged for a mixed collection.
func (h *Heap) CollectionSet() []*Region {
	out := h.young.Regions()
	for _, r := range h.old.Regions() {
		if r.HasFlag(FlagInCollectionSet) && !r.HasFlag(FlagEvacuated) {
			out = append(out, r)
		}
	}
	return out
}

// AddToCollectionSet condemns an old region for the next mixed collection.
func (h *Heap) AddToCollectionSet(r *Region) error {
	if r.Generation() != GenOld || r.HasFlag(FlagPinned) {
		return errors.Wrapf(ErrNotCollectable, "region %d is %s", r.Index(), r.Generation())
	}
	r.SetFlag(FlagInCollectionSet)
	return nil
}

// ---- word access ----

func (h *Heap) Load(a Address) uint64 {
	return h.mustRegion(a).load(a)
}

func (h *Heap) Store(a Address, v uint64) {
	h.mustRegion(a).store(a, v)
}

func (h *Heap) LoadHeader(obj Address) Header { return Header(h.Load(obj)) }

func (h *Heap) mustRegion(a Address) *Region {
	r := h.RegionOf(a)
	if r == nil {
		panic(fmt.Sprintf("heap: address %s outside the heap", a))
	}
	return r
}

// ObjectSize returns the size of the object at obj, following its
// forwarding word if it was already copied.
func (h *Heap) ObjectSize(obj Address) int {
	hdr := h.LoadHeader(obj)
	if hdr.IsForwarded() {
		to := hdr.ForwardingAddress()
		return h.layout.SizeOf(h, to, h.LoadHeader(to))
	}
	return h.layout.SizeOf(h, obj, hdr)
}

// CopyObject copies the body of src to dst and then writes hdr as the
// copy's header, so a copy is never observable without its class word.
func (h *Heap) CopyObject(dst, src Address, hdr Header, size int) error {
	sr, dr := h.RegionOf(src), h.RegionOf(dst)
	if sr == nil || dr == nil {
		return errors.Wrapf(ErrCopyOutOfRange, "%s -> %s", src, dst)
	}
	n := size / WordSize
	si, di := sr.wordIndex(src), dr.wordIndex(dst)
	if si+n > len(sr.words) || di+n > len(dr.words) || n < 1 {
		return errors.Wrapf(ErrCopyOutOfRange, "%s -> %s (%d bytes)", src, dst, size)
	}
	copy(dr.words[di+1:di+n], sr.words[si+1:si+n])
	dr.store(dst, uint64(hdr))
	return nil
}

// TryForward installs a forwarding word on obj if its header still equals
// expect. The first forwarder wins; every caller gets the winner's address
// and whether it was the winner.
func (h *Heap) TryForward(obj Address, expect Header, to Address) (Address, bool) {
	r := h.mustRegion(obj)
	if r.cas(obj, uint64(expect), uint64(ForwardingHeader(to))) {
		return to, true
	}
	cur := Header(r.load(obj))
	if cur.IsForwarded() {
		return cur.ForwardingAddress(), false
	}
	return Nil, false
}

// WriteFiller turns [a, a+bytes) into an inert object so region walks skip it.
func (h *Heap) WriteFiller(a Address, bytes int) {
	if bytes <= 0 {
		return
	}
	if bytes == WordSize {
		h.Store(a, uint64(ClassHeader(ClassFillerWord)))
		return
	}
	h.Store(a+WordSize, uint64(bytes/WordSize))
	h.Store(a, uint64(ClassHeader(ClassFiller)))
}

// WalkRegion visits every non-filler object between the region base and
// its allocation cursor in address order until fn returns false.
func (h *Heap) WalkRegion(r *Region, fn func(obj Address, hdr Header) bool) {
	for a := r.Base(); a < r.Top(); {
		hdr := h.LoadHeader(a)
		if hdr == 0 {
			return
		}
		size := h.ObjectSize(a)
		if size <= 0 {
			return
		}
		if !IsFiller(hdr) && !fn(a, hdr) {
			return
		}
		a += Address(size)
	}
}

// ---- mutator API ----

// Allocate places a new object of class in eden. arrayLen is ignored for
// fixed-size classes.
func (h *Heap) Allocate(class ClassID, arrayLen int) (Address, error) {
	return h.AllocateIn(GenEden, class, arrayLen)
}

// AllocateIn places a new object in the given generation.
func (h *Heap) AllocateIn(gen Generation, class ClassID, arrayLen int) (Address, error) {
	c := h.classes.Lookup(class)
	if c == nil || class < firstUserClass {
		return Nil, errors.Wrapf(ErrUnknownClass, "class %d", class)
	}
	size := c.Words * WordSize
	if c.Array {
		size = (2 + arrayLen) * WordSize
	}

	var a Address
	switch gen {
	case GenEden:
		a = h.young.allocate(size)
	case GenOld:
		a = h.old.allocateMutator(size)
	case GenShared:
		a = h.shared.allocateMutator(size)
	case GenLarge:
		a = h.allocateLarge(size)
	default:
		return Nil, errors.Newf("heap: cannot allocate in %s", gen)
	}
	if a == Nil {
		return Nil, errors.Wrapf(ErrSpaceExhausted, "%d bytes in %s", size, gen)
	}
	if c.Array {
		h.Store(a+WordSize, uint64(arrayLen))
	}
	h.Store(a, uint64(ClassHeader(class)))
	return a, nil
}

func (h *Heap) allocateLarge(size int) Address {
	if size > h.RegionSize() || !h.old.Reserve(uint64(size)) {
		return Nil
	}
	r := h.acquireRegion(GenLarge)
	if r == nil {
		h.old.Release(uint64(size))
		return Nil
	}
	h.old.attach(r)
	return r.bump(size)
}

// IsTenured reports whether regions of g are never condemned by a young
// collection and so need their young-bound slots remembered.
func IsTenured(g Generation) bool { return g.IsOld() || g == GenShared }

// FieldAddress is the address of the word at offset field inside obj.
func FieldAddress(obj Address, field int) Address {
	return obj + Address(field*WordSize)
}

// ElementAddress is the address of element i of a reference array.
func ElementAddress(arr Address, i int) Address {
	return arr + Address((2+i)*WordSize)
}

func (h *Heap) LoadRef(slot Address) Address { return Address(h.Load(slot)) }

// StoreRef writes value into slot and applies the generational barrier:
// tenured-to-young and local-to-shared slots are recorded in the slot's
// region.
func (h *Heap) StoreRef(slot, value Address) {
	h.Store(slot, uint64(value))
	if value == Nil {
		return
	}
	src, dst := h.RegionOf(slot), h.RegionOf(value)
	if src == nil || dst == nil {
		return
	}
	switch {
	case IsTenured(src.Generation()) && dst.Generation().IsYoung():
		src.OldToYoung().Insert(slot)
	case dst.Generation() == GenShared && src.Generation() != GenShared:
		src.LocalToShared().Insert(slot)
	}
}
