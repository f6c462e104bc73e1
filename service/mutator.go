package service

import (
	"math/rand/v2"
	"sync/atomic"

	"regionvac/domain/heap"
)

// Mutator is a synthetic program that allocates a random object graph.
// Roots behave like a stack: the mutator pushes new objects and now and
// then pops a random number of frames, which turns whatever only those
// frames reached into garbage.
type Mutator struct {
	h       *heap.Heap
	classes Classes
	cfg     MutatorConfig
	rng     *rand.Rand

	allocated atomic.Uint64
	finalized atomic.Uint64
	n         uint64
}

func NewMutator(h *heap.Heap, classes Classes, cfg MutatorConfig) *Mutator {
	if cfg.MaxRoots <= 0 {
		cfg.MaxRoots = DefaultMutatorConfig().MaxRoots
	}
	return &Mutator{
		h:       h,
		classes: classes,
		cfg:     cfg,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Step performs n allocations. It stops at the first allocation failure,
// which wraps heap.ErrSpaceExhausted when the heap needs a collection.
func (m *Mutator) Step(n int) (int, error) {
	for i := 0; i < n; i++ {
		if err := m.allocateOne(); err != nil {
			return i, err
		}
	}
	return n, nil
}

func (m *Mutator) allocateOne() error {
	m.n++
	roots := m.h.Roots()

	gen := heap.GenEden
	if every(m.cfg.OldEvery, m.n) {
		gen = heap.GenOld
	}
	obj, err := m.h.AllocateIn(gen, m.classes.Node, 0)
	if err != nil {
		return err
	}
	m.allocated.Add(1)
	m.h.Store(heap.FieldAddress(obj, nodePayload), m.n)

	if every(m.cfg.ArrayEvery, m.n) {
		if err := m.attachArray(obj); err != nil {
			return err
		}
	}
	if every(m.cfg.WeakEvery, m.n) {
		m.h.Weak().Register(obj, func() { m.finalized.Add(1) })
	}

	if k := roots.Len(); k > 0 && m.rng.Float64() < m.cfg.LinkRate {
		parent := roots.Get(m.rng.IntN(k))
		if parent != heap.Nil {
			field := nodeLeft + m.rng.IntN(2)
			m.h.StoreRef(heap.FieldAddress(parent, field), obj)
		}
	}

	if roots.Len() >= m.cfg.MaxRoots {
		roots.Truncate(m.rng.IntN(m.cfg.MaxRoots))
	}
	roots.Add(heap.RootStack, "", obj)
	return nil
}

// attachArray hangs a small array of existing roots off obj.
func (m *Mutator) attachArray(obj heap.Address) error {
	roots := m.h.Roots()
	size := 1 + m.rng.IntN(6)
	arr, err := m.h.Allocate(m.classes.Array, size)
	if err != nil {
		return err
	}
	m.allocated.Add(1)
	for i := 0; i < size; i++ {
		k := roots.Len()
		if k == 0 {
			break
		}
		m.h.StoreRef(heap.ElementAddress(arr, i), roots.Get(m.rng.IntN(k)))
	}
	m.h.StoreRef(heap.FieldAddress(obj, nodeRight), arr)
	return nil
}

func (m *Mutator) Allocated() uint64 { return m.allocated.Load() }

// Finalized counts weak handles whose referent died.
func (m *Mutator) Finalized() uint64 { return m.finalized.Load() }

func every(k int, n uint64) bool {
	return k > 0 && n%uint64(k) == 0
}
