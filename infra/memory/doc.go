// Package memory provides the low-level reuse and reclamation primitives
// the collector builds on: a typed object pool for per-worker state, a
// lock-free SPSC retire ring, and global epoch tracking that decides when
// retired heap regions can be handed back to the allocator.
//
// A region freed by a collection may still be walked by a heap snapshot
// reader that entered its read section before the collection finished.
// Regions are therefore retired first and reclaimed only once every
// registered reader has left.
package memory
