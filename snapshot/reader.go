package snapshot

import "regionvac/infra/memory"

/*
Snapshot Reader

A thin adapter over memory.ReaderEpoch. It marks when a heap read
begins and when it ends; reclamation itself happens in the collector.
*/

type Reader struct {
	epoch *memory.ReaderEpoch
}

func NewReader() *Reader {
	return &Reader{
		epoch: memory.NewReaderEpoch(),
	}
}

// Begin marks the start of a consistent read.
func (r *Reader) Begin() {
	r.epoch.Enter()
}

// End marks the end of a read.
func (r *Reader) End() {
	r.epoch.Exit()
}

// Epoch exposes the underlying epoch for reclaimers.
func (r *Reader) Epoch() *memory.ReaderEpoch {
	return r.epoch
}
