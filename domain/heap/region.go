package heap

import (
	"strings"
	"sync/atomic"
)

// Generation classifies a region.
type Generation uint32

const (
	GenFree Generation = iota
	GenEden
	GenSurvivor
	GenOld
	GenLarge
	GenShared
)

func (g Generation) String() string {
	switch g {
	case GenFree:
		return "FREE"
	case GenEden:
		return "EDEN"
	case GenSurvivor:
		return "SURVIVOR"
	case GenOld:
		return "OLD"
	case GenLarge:
		return "LARGE"
	case GenShared:
		return "SHARED"
	default:
		return "UNKNOWN"
	}
}

func (g Generation) IsYoung() bool { return g == GenEden || g == GenSurvivor }

func (g Generation) IsOld() bool { return g == GenOld || g == GenLarge }

// Flag is a region state bit.
type Flag uint32

const (
	FlagInCollectionSet Flag = 1 << iota
	// FlagBelowAgeMark: every object in the region survived a collection.
	FlagBelowAgeMark
	// FlagHasAgeMark: objects below AgeMark survived a collection, the rest did not.
	FlagHasAgeMark
	FlagPinned
	// FlagWholeMoved: the region was relabelled instead of copied this cycle.
	FlagWholeMoved
	// FlagEvacuated: the region's live objects were copied out one by one.
	FlagEvacuated
	// FlagToSpace: the region received survivor copies this cycle.
	FlagToSpace
)

var flagNames = []string{"CSET", "AGED", "AGE_MARK", "PINNED", "WHOLE", "EVACUATED", "TO_SPACE"}

func (f Flag) String() string {
	var parts []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Span is a free range inside a region, reclaimed by the survivor sweep.
type Span struct {
	Start Address
	Size  int
}

// Region is a fixed-size, contiguous span of heap words plus its metadata.
type Region struct {
	index int
	base  Address
	words []uint64

	gen   atomic.Uint32
	flags atomic.Uint32

	// top is the allocation cursor in words. It is owned by whoever
	// allocates into the region: the mutator or one allocation buffer.
	top     int
	ageMark Address

	aliveBytes atomic.Uint64
	mark       *Bitmap

	oldToYoung    *RemSet
	promoted      *RemSet
	localToShared *RemSet
	crossRegion   *RemSet

	free  []Span
	owner *Space
}

func newRegion(index int, base Address, words int) *Region {
	r := &Region{
		index: index,
		base:  base,
		words: make([]uint64, words),
		mark:  NewBitmap(words),
	}
	r.resetRemSets()
	return r
}

func (r *Region) resetRemSets() {
	n := len(r.words)
	r.oldToYoung = newRemSet(r.base, n)
	r.promoted = newRemSet(r.base, n)
	r.localToShared = newRemSet(r.base, n)
	r.crossRegion = newRemSet(r.base, n)
}

func (r *Region) Index() int { return r.index }

func (r *Region) Base() Address { return r.base }

func (r *Region) End() Address { return r.base + Address(len(r.words)*WordSize) }

func (r *Region) Size() int { return len(r.words) * WordSize }

func (r *Region) Contains(a Address) bool { return a >= r.base && a < r.End() }

func (r *Region) Generation() Generation { return Generation(r.gen.Load()) }

// Relabel changes the generation tag in O(1).
func (r *Region) Relabel(g Generation) { r.gen.Store(uint32(g)) }

func (r *Region) Flags() Flag { return Flag(r.flags.Load()) }

func (r *Region) HasFlag(f Flag) bool { return Flag(r.flags.Load())&f != 0 }

func (r *Region) SetFlag(f Flag) {
	for {
		old := r.flags.Load()
		if r.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

func (r *Region) ClearFlag(f Flag) {
	for {
		old := r.flags.Load()
		if r.flags.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

// Top is the first unallocated address.
func (r *Region) Top() Address { return r.base + Address(r.top*WordSize) }

func (r *Region) AllocatedBytes() int { return r.top * WordSize }

func (r *Region) FreeBytes() int { return (len(r.words) - r.top) * WordSize }

// bump allocates bytes at the cursor or returns Nil when the region is full.
func (r *Region) bump(bytes int) Address {
	words := bytes / WordSize
	if r.top+words > len(r.words) {
		return Nil
	}
	a := r.Top()
	r.top += words
	return a
}

func (r *Region) AgeMark() Address { return r.ageMark }

// SetAgeMark records that objects below a survived a collection.
func (r *Region) SetAgeMark(a Address) {
	r.ageMark = a
	r.SetFlag(FlagHasAgeMark)
}

// IsAged reports whether the object at a has survived a previous collection.
func (r *Region) IsAged(a Address) bool {
	if r.HasFlag(FlagBelowAgeMark) {
		return true
	}
	return r.HasFlag(FlagHasAgeMark) && a < r.ageMark
}

func (r *Region) AliveBytes() uint64 { return r.aliveBytes.Load() }

func (r *Region) SetAliveBytes(n uint64) { r.aliveBytes.Store(n) }

func (r *Region) AddAliveBytes(n uint64) { r.aliveBytes.Add(n) }

// AliveRate is the fraction of the region occupied by marked objects.
func (r *Region) AliveRate() float64 {
	return float64(r.aliveBytes.Load()) / float64(r.Size())
}

// Mark sets the mark bit of the object starting at a and reports whether
// it was newly marked.
func (r *Region) Mark(a Address) bool { return r.mark.Set(r.wordIndex(a)) }

func (r *Region) IsMarked(a Address) bool { return r.mark.Test(r.wordIndex(a)) }

func (r *Region) MarkBitmap() *Bitmap { return r.mark }

// ClearMarks resets the mark bitmap and alive byte count.
func (r *Region) ClearMarks() {
	r.mark.Reset()
	r.aliveBytes.Store(0)
}

// IterateMarked visits marked objects in address order until fn returns false.
func (r *Region) IterateMarked(fn func(obj Address) bool) {
	r.mark.Iterate(func(i int) bool {
		return fn(r.base + Address(i*WordSize))
	})
}

func (r *Region) OldToYoung() *RemSet { return r.oldToYoung }

// SwapOldToYoung installs an empty old-to-young set and returns the
// previous one for replay.
func (r *Region) SwapOldToYoung() *RemSet {
	old := r.oldToYoung
	r.oldToYoung = newRemSet(r.base, len(r.words))
	return old
}

func (r *Region) Promoted() *RemSet { return r.promoted }

// SnapshotMarks copies the mark bitmap into the promoted set. A region
// promoted whole keeps its list of live objects there.
func (r *Region) SnapshotMarks() { r.promoted.bits.CopyFrom(r.mark) }

func (r *Region) LocalToShared() *RemSet { return r.localToShared }

func (r *Region) CrossRegion() *RemSet { return r.crossRegion }

// TakeCrossRegion hands the cross-region set to the caller and leaves an
// empty one behind. The set is rebuilt every collection it takes part in.
func (r *Region) TakeCrossRegion() *RemSet {
	old := r.crossRegion
	r.crossRegion = newRemSet(r.base, len(r.words))
	return old
}

// RemSetSize is the total number of remembered slots across all sets.
func (r *Region) RemSetSize() int {
	return r.oldToYoung.Len() + r.localToShared.Len() + r.crossRegion.Len()
}

func (r *Region) FreeSpans() []Span { return r.free }

func (r *Region) SetFreeSpans(spans []Span) { r.free = spans }

func (r *Region) wordIndex(a Address) int { return int((a - r.base) / WordSize) }

func (r *Region) load(a Address) uint64 {
	return atomic.LoadUint64(&r.words[r.wordIndex(a)])
}

func (r *Region) store(a Address, v uint64) {
	atomic.StoreUint64(&r.words[r.wordIndex(a)], v)
}

func (r *Region) cas(a Address, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(&r.words[r.wordIndex(a)], old, new)
}

// reset returns the region to the free state.
func (r *Region) reset() {
	clear(r.words)
	r.gen.Store(uint32(GenFree))
	r.flags.Store(0)
	r.top = 0
	r.ageMark = Nil
	r.ClearMarks()
	r.resetRemSets()
	r.free = nil
	r.owner = nil
}
