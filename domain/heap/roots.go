package heap

import "sync"

// RootKind tells where a root slot lives.
type RootKind uint8

const (
	RootGlobal RootKind = iota
	RootStack
	RootHandle
)

func (k RootKind) String() string {
	switch k {
	case RootGlobal:
		return "global"
	case RootStack:
		return "stack"
	case RootHandle:
		return "handle"
	default:
		return "unknown"
	}
}

type rootSlot struct {
	kind  RootKind
	name  string
	value Address
}

// RootSet holds slots outside the heap: globals, stack slots of suspended
// mutators and handle-scope entries.
type RootSet struct {
	mu    sync.Mutex
	slots []rootSlot
}

// Add registers a root and returns its index.
func (s *RootSet) Add(kind RootKind, name string, a Address) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append(s.slots, rootSlot{kind: kind, name: name, value: a})
	return len(s.slots) - 1
}

func (s *RootSet) Get(i int) Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[i].value
}

func (s *RootSet) Set(i int, a Address) {
	s.mu.Lock()
	s.slots[i].value = a
	s.mu.Unlock()
}

func (s *RootSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Visit calls fn for every non-nil root; the address fn returns replaces
// the slot's value.
func (s *RootSet) Visit(fn func(kind RootKind, a Address) Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if s.slots[i].value == Nil {
			continue
		}
		s.slots[i].value = fn(s.slots[i].kind, s.slots[i].value)
	}
}

// Truncate drops every root from index n on, like popping stack frames.
func (s *RootSet) Truncate(n int) {
	s.mu.Lock()
	if n < len(s.slots) {
		s.slots = s.slots[:n]
	}
	s.mu.Unlock()
}
