// Package service orchestrates the collector and the components around
// it: heap, mark phase, cycle journal, report outbox and snapshots.
//
// It is the only place that mutates the heap or runs a collection, and it
// serialises the two. Transports such as gRPC sit on top of it.
package service
