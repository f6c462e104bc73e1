package heap

import (
	"sync"
	"sync/atomic"
)

// WeakHandle is a reference that does not keep its referent alive.
type WeakHandle struct {
	id       uint64
	referent atomic.Uint64
	finalize atomic.Pointer[func()]
}

func (w *WeakHandle) ID() uint64 { return w.id }

func (w *WeakHandle) Get() Address { return Address(w.referent.Load()) }

func (w *WeakHandle) Set(a Address) { w.referent.Store(uint64(a)) }

func (w *WeakHandle) Clear() { w.referent.Store(0) }

// TakeFinalizer returns the registered callback at most once.
func (w *WeakHandle) TakeFinalizer() func() {
	p := w.finalize.Swap(nil)
	if p == nil {
		return nil
	}
	return *p
}

// WeakRegistry is the global table of weak handles.
type WeakRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	handles []*WeakHandle
}

// Register creates a weak handle to a. finalize may be nil.
func (r *WeakRegistry) Register(a Address, finalize func()) *WeakHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	h := &WeakHandle{id: r.nextID}
	h.Set(a)
	if finalize != nil {
		h.finalize.Store(&finalize)
	}
	r.handles = append(r.handles, h)
	return h
}

// Iterate visits every handle that still holds a referent. The walk works
// on a snapshot, so fn may register new handles.
func (r *WeakRegistry) Iterate(fn func(h *WeakHandle)) {
	r.mu.Lock()
	live := make([]*WeakHandle, 0, len(r.handles))
	for _, h := range r.handles {
		if h.Get() != Nil {
			live = append(live, h)
		}
	}
	r.mu.Unlock()

	for _, h := range live {
		fn(h)
	}
}

// Prune drops handles that were cleared.
func (r *WeakRegistry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.handles[:0]
	for _, h := range r.handles {
		if h.Get() != Nil {
			kept = append(kept, h)
		}
	}
	dropped := len(r.handles) - len(kept)
	clear(r.handles[len(kept):])
	r.handles = kept
	return dropped
}

func (r *WeakRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
