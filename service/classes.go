package service

import "regionvac/domain/heap"

// Classes are the object shapes the mutator allocates.
type Classes struct {
	Node  heap.ClassID // header, left, right, payload
	Array heap.ClassID // reference array
}

const (
	nodeLeft    = 1
	nodeRight   = 2
	nodePayload = 3
)

func RegisterClasses(t *heap.ClassTable) Classes {
	return Classes{
		Node:  t.Register("node", 4, nodeLeft, nodeRight),
		Array: t.RegisterArray("array"),
	}
}
