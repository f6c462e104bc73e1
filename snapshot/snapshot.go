package snapshot

import "time"

type Snapshot struct {
	Cycle       uint64
	Created     time.Time
	RegionShift uint
	Roots       int
	WeakHandles int
	Regions     []RegionEntry
}

type RegionEntry struct {
	Index      int
	Generation string
	Flags      string
	Allocated  int
	Alive      uint64
	Objects    int
	RemSet     int
	FreeSpans  int
	Retired    bool
}

// ByGeneration counts regions per generation label.
func (s *Snapshot) ByGeneration() map[string]int {
	out := make(map[string]int)
	for _, e := range s.Regions {
		out[e.Generation]++
	}
	return out
}
