package memory

import (
	"fmt"
	"sync/atomic"
)

// RetireRing is a lock-free SPSC ring buffer. The collector's finalizing
// goroutine is the only producer and the reclaimer the only consumer.
type RetireRing[T any] struct {
	head  uint64
	_pad1 [56]byte
	tail  uint64
	_pad2 [56]byte
	buf   []T
	mask  uint64
}

// NewRetireRing allocates a ring holding at least size items, rounded up
// to a power of two.
func NewRetireRing[T any](size uint64) *RetireRing[T] {
	n := uint64(1)
	for n < size {
		n <<= 1
	}
	return &RetireRing[T]{
		buf:  make([]T, n),
		mask: n - 1,
	}
}

// Enqueue adds v; it returns false if the ring is full.
func (r *RetireRing[T]) Enqueue(v T) bool {
	h := r.head
	t := atomic.LoadUint64(&r.tail)
	if h-t == uint64(len(r.buf)) {
		return false
	}
	r.buf[h&r.mask] = v
	atomic.StoreUint64(&r.head, h+1)
	return true
}

// Dequeue removes the oldest item; ok is false when the ring is empty.
func (r *RetireRing[T]) Dequeue() (v T, ok bool) {
	t := r.tail
	h := atomic.LoadUint64(&r.head)
	if t == h {
		return v, false
	}
	v = r.buf[t&r.mask]
	var zero T
	r.buf[t&r.mask] = zero
	atomic.StoreUint64(&r.tail, t+1)
	return v, true
}

func (r *RetireRing[T]) Len() int {
	return int(atomic.LoadUint64(&r.head) - atomic.LoadUint64(&r.tail))
}

func (r *RetireRing[T]) Cap() int { return len(r.buf) }

func (r *RetireRing[T]) IsEmpty() bool {
	return atomic.LoadUint64(&r.head) == atomic.LoadUint64(&r.tail)
}

func (r *RetireRing[T]) String() string {
	return fmt.Sprintf("RetireRing{len=%d, cap=%d, head=%d, tail=%d}",
		r.Len(), r.Cap(), atomic.LoadUint64(&r.head), atomic.LoadUint64(&r.tail))
}
