package heap

import (
	"math/bits"
	"sync/atomic"
)

// Bitmap is a fixed-size bit set safe for concurrent Set/Test.
type Bitmap struct {
	words []uint64
	n     int
}

func NewBitmap(n int) *Bitmap {
	return &Bitmap{words: make([]uint64, (n+63)/64), n: n}
}

// Len returns the number of addressable bits.
func (b *Bitmap) Len() int { return b.n }

// Set marks bit i and reports whether it was previously clear.
func (b *Bitmap) Set(i int) bool {
	mask := uint64(1) << (uint(i) & 63)
	old := atomic.OrUint64(&b.words[i>>6], mask)
	return old&mask == 0
}

func (b *Bitmap) Clear(i int) {
	atomic.AndUint64(&b.words[i>>6], ^(uint64(1) << (uint(i) & 63)))
}

func (b *Bitmap) Test(i int) bool {
	return atomic.LoadUint64(&b.words[i>>6])&(uint64(1)<<(uint(i)&63)) != 0
}

// Reset clears every bit. Not safe against concurrent Set.
func (b *Bitmap) Reset() {
	clear(b.words)
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	n := 0
	for i := range b.words {
		n += bits.OnesCount64(atomic.LoadUint64(&b.words[i]))
	}
	return n
}

// CopyFrom overwrites b with the contents of o. Both must have the same length.
func (b *Bitmap) CopyFrom(o *Bitmap) {
	for i := range b.words {
		b.words[i] = atomic.LoadUint64(&o.words[i])
	}
}

// Iterate calls fn for every set bit in ascending order until fn returns false.
func (b *Bitmap) Iterate(fn func(i int) bool) {
	for w := range b.words {
		word := atomic.LoadUint64(&b.words[w])
		for word != 0 {
			tz := bits.TrailingZeros64(word)
			if !fn(w<<6 + tz) {
				return
			}
			word &= word - 1
		}
	}
}

// RemSet is a remembered set over the slots of one region: one bit per
// heap word, set when the slot at that word holds a reference crossing the
// boundary the set tracks.
type RemSet struct {
	base Address
	bits *Bitmap
}

func newRemSet(base Address, words int) *RemSet {
	return &RemSet{base: base, bits: NewBitmap(words)}
}

// Insert records slot. Slots outside the owning region are ignored.
func (s *RemSet) Insert(slot Address) {
	i, ok := s.index(slot)
	if !ok {
		return
	}
	s.bits.Set(i)
}

func (s *RemSet) Contains(slot Address) bool {
	i, ok := s.index(slot)
	return ok && s.bits.Test(i)
}

func (s *RemSet) Remove(slot Address) {
	if i, ok := s.index(slot); ok {
		s.bits.Clear(i)
	}
}

// Iterate visits recorded slots in address order until fn returns false.
func (s *RemSet) Iterate(fn func(slot Address) bool) {
	s.bits.Iterate(func(i int) bool {
		return fn(s.base + Address(i*WordSize))
	})
}

func (s *RemSet) Len() int { return s.bits.Count() }

func (s *RemSet) Clear() { s.bits.Reset() }

func (s *RemSet) index(slot Address) (int, bool) {
	if slot < s.base {
		return 0, false
	}
	i := int((slot - s.base) / WordSize)
	if i >= s.bits.Len() {
		return 0, false
	}
	return i, true
}
