package memory

import (
	"sync"
	"testing"
)

type sink struct {
	mu  sync.Mutex
	got []int
}

func (s *sink) Reclaim(v int) {
	s.mu.Lock()
	s.got = append(s.got, v)
	s.mu.Unlock()
}

func TestRetireRingFIFO(t *testing.T) {
	r := NewRetireRing[int](3)
	if r.Cap() != 4 {
		t.Fatalf("Cap = %d, want 4", r.Cap())
	}
	for i := 0; i < 4; i++ {
		if !r.Enqueue(i) {
			t.Fatalf("Enqueue(%d) failed", i)
		}
	}
	if r.Enqueue(99) {
		t.Fatal("Enqueue succeeded on a full ring")
	}
	for i := 0; i < 4; i++ {
		v, ok := r.Dequeue()
		if !ok || v != i {
			t.Fatalf("Dequeue = %d,%v want %d", v, ok, i)
		}
	}
	if !r.IsEmpty() {
		t.Fatal("ring not empty")
	}
}

func TestRetireRingSPSC(t *testing.T) {
	r := NewRetireRing[int](64)
	const n = 10000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; {
			if r.Enqueue(i) {
				i++
			}
		}
	}()
	for want := 0; want < n; {
		if v, ok := r.Dequeue(); ok {
			if v != want {
				t.Fatalf("got %d, want %d", v, want)
			}
			want++
		}
	}
	<-done
}

func TestReclaimWaitsForReaders(t *testing.T) {
	ring := NewRetireRing[int](8)
	ring.Enqueue(1)
	ring.Enqueue(2)
	s := &sink{}

	reader := NewReaderEpoch()
	reader.Enter()
	if n := AdvanceEpochAndReclaim[int](ring, s, reader); n != 0 {
		t.Fatalf("reclaimed %d items under an active reader", n)
	}

	reader.Exit()
	if n := AdvanceEpochAndReclaim[int](ring, s, reader, nil); n != 2 {
		t.Fatalf("reclaimed %d items, want 2", n)
	}
	if len(s.got) != 2 || s.got[0] != 1 || s.got[1] != 2 {
		t.Fatalf("reclaim order %v", s.got)
	}
}

func TestPoolResetsOnPut(t *testing.T) {
	type buf struct{ n int }
	p := NewPool(func() *buf { return &buf{} }, func(b *buf) { b.n = 0 })

	b := p.Get()
	b.n = 7
	p.Put(b)
	p.Put(nil)

	if got := p.Get(); got.n != 0 {
		t.Fatalf("pooled object kept state n=%d", got.n)
	}
}
