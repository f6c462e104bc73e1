package heap

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Address is a byte address in the simulated heap. Zero is nil.
type Address uint64

const (
	WordSize = 8
	Nil      = Address(0)
)

func (a Address) IsNil() bool { return a == Nil }

func (a Address) String() string { return fmt.Sprintf("%#x", uint64(a)) }

// ClassID identifies an object class in the ClassTable.
type ClassID uint32

const (
	ClassInvalid ClassID = iota
	// ClassFillerWord is a one-word filler with no length field.
	ClassFillerWord
	// ClassFiller spans the number of words stored in its second word.
	ClassFiller

	firstUserClass ClassID = 16
)

// Header is the first word of every object. A class word has bit 0 clear;
// a forwarding word carries the new address with bit 0 set. Once an object
// is forwarded its header never reverts within a collection.
type Header uint64

const (
	forwardedBit = 1
	classShift   = 3
)

func ClassHeader(id ClassID) Header { return Header(uint64(id) << classShift) }

func ForwardingHeader(to Address) Header { return Header(uint64(to) | forwardedBit) }

func (h Header) IsForwarded() bool { return h&forwardedBit != 0 }

func (h Header) ForwardingAddress() Address { return Address(h &^ forwardedBit) }

func (h Header) Class() ClassID { return ClassID(uint64(h) >> classShift) }

// Class describes an object layout. Fixed objects have Words words with
// reference slots at word offsets Refs. Arrays keep their length in word 1
// and every element slot holds a reference.
type Class struct {
	ID    ClassID
	Name  string
	Words int
	Refs  []int
	Array bool
}

// Layout is the object-layout introspection the collector consumes: the
// size of an object and the addresses of its reference-bearing slots.
type Layout interface {
	SizeOf(h *Heap, obj Address, hdr Header) int
	VisitRefs(h *Heap, obj Address, fn func(slot Address))
}

// ClassTable is the default Layout. Registration is copy-on-write so
// lookups on the collector hot path take no lock.
type ClassTable struct {
	mu      sync.Mutex
	classes atomic.Pointer[[]*Class]
}

func NewClassTable() *ClassTable {
	t := &ClassTable{}
	base := make([]*Class, firstUserClass)
	base[ClassFillerWord] = &Class{ID: ClassFillerWord, Name: "filler-word", Words: 1}
	base[ClassFiller] = &Class{ID: ClassFiller, Name: "filler", Words: 2}
	t.classes.Store(&base)
	return t
}

// Register adds a fixed-size class of words words (header included) whose
// reference slots sit at the given word offsets.
func (t *ClassTable) Register(name string, words int, refs ...int) ClassID {
	if words < 1 {
		panic("heap: class must have at least a header word")
	}
	for _, off := range refs {
		if off < 1 || off >= words {
			panic(fmt.Sprintf("heap: ref offset %d outside class %q", off, name))
		}
	}
	return t.add(&Class{Name: name, Words: words, Refs: append([]int(nil), refs...)})
}

// RegisterArray adds a reference-array class.
func (t *ClassTable) RegisterArray(name string) ClassID {
	return t.add(&Class{Name: name, Words: 2, Array: true})
}

func (t *ClassTable) add(c *Class) ClassID {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := *t.classes.Load()
	next := make([]*Class, len(cur), len(cur)+1)
	copy(next, cur)
	c.ID = ClassID(len(next))
	next = append(next, c)
	t.classes.Store(&next)
	return c.ID
}

func (t *ClassTable) Lookup(id ClassID) *Class {
	cs := *t.classes.Load()
	if int(id) >= len(cs) {
		return nil
	}
	return cs[id]
}

func (t *ClassTable) SizeOf(h *Heap, obj Address, hdr Header) int {
	switch id := hdr.Class(); id {
	case ClassFillerWord:
		return WordSize
	case ClassFiller:
		return int(h.Load(obj+WordSize)) * WordSize
	default:
		c := t.Lookup(id)
		if c == nil {
			panic(fmt.Sprintf("heap: unknown class %d at %s", id, obj))
		}
		if c.Array {
			return (2 + int(h.Load(obj+WordSize))) * WordSize
		}
		return c.Words * WordSize
	}
}

func (t *ClassTable) VisitRefs(h *Heap, obj Address, fn func(slot Address)) {
	hdr := h.LoadHeader(obj)
	if hdr.IsForwarded() {
		return
	}
	c := t.Lookup(hdr.Class())
	if c == nil {
		return
	}
	if c.Array {
		n := int(h.Load(obj + WordSize))
		for i := 0; i < n; i++ {
			fn(obj + Address((2+i)*WordSize))
		}
		return
	}
	for _, off := range c.Refs {
		fn(obj + Address(off*WordSize))
	}
}

// IsFiller reports whether hdr belongs to one of the filler classes.
func IsFiller(hdr Header) bool {
	id := hdr.Class()
	return !hdr.IsForwarded() && (id == ClassFillerWord || id == ClassFiller)
}
