package heap

const (
	slotSurvivor = iota
	slotOld
)

// AllocBuffer is a per-worker bump allocator over regions taken from the
// survivor to-space and the old space. It is owned by exactly one worker
// for the duration of a phase; abandoned copies inside it are never freed
// individually, the regions are handed back whole on Close.
type AllocBuffer struct {
	spaces [2]*Space
	cur    [2]*Region
	filled []*Region
	bytes  [2]uint64
}

func NewAllocBuffer(survivor, old *Space) *AllocBuffer {
	b := &AllocBuffer{}
	b.Reset(survivor, old)
	return b
}

// Reset prepares a recycled buffer for a new phase.
func (b *AllocBuffer) Reset(survivor, old *Space) {
	b.spaces = [2]*Space{survivor, old}
	b.cur = [2]*Region{}
	b.filled = b.filled[:0]
	b.bytes = [2]uint64{}
}

// Allocate returns bytes of memory in the destination space for gen
// (GenSurvivor or GenOld), or Nil when that space is exhausted.
func (b *AllocBuffer) Allocate(gen Generation, bytes int) Address {
	slot := slotSurvivor
	if gen.IsOld() {
		slot = slotOld
	}
	space := b.spaces[slot]
	if space == nil || !space.Reserve(uint64(bytes)) {
		return Nil
	}
	if r := b.cur[slot]; r != nil {
		if a := r.bump(bytes); a != Nil {
			b.bytes[slot] += uint64(bytes)
			return a
		}
	}
	r := space.takeRegion()
	if r == nil {
		space.Release(uint64(bytes))
		return Nil
	}
	if slot == slotSurvivor {
		r.SetFlag(FlagToSpace)
	}
	b.cur[slot] = r
	b.filled = append(b.filled, r)

	a := r.bump(bytes)
	if a == Nil {
		// object larger than a region
		space.Release(uint64(bytes))
		return Nil
	}
	b.bytes[slot] += uint64(bytes)
	return a
}

// AllocatedBytes reports the bytes handed out for gen since Reset.
func (b *AllocBuffer) AllocatedBytes(gen Generation) uint64 {
	if gen.IsOld() {
		return b.bytes[slotOld]
	}
	return b.bytes[slotSurvivor]
}

// Close seals the buffer and returns every region it allocated into.
func (b *AllocBuffer) Close() []*Region {
	out := append([]*Region(nil), b.filled...)
	b.cur = [2]*Region{}
	b.filled = b.filled[:0]
	return out
}
