// Package heap models the region-partitioned managed heap the collector
// operates on: fixed-size regions with generation tags, mark bitmaps and
// remembered sets, object headers that double as forwarding words, the
// destination spaces a collection copies into and the per-worker
// allocation buffers carved out of them.
//
// Memory is word addressed. Every region keeps its contents in a []uint64
// so header words can be read and compare-and-swapped atomically while
// several collector workers race on the same object.
//
// The package is dependency-free. It is the domain layer the gc package
// mutates and the marker populates.
package heap
