package service

import (
	"context"
	"log"
	"sync"

	"regionvac/domain/gc"
	"regionvac/domain/heap"
	"regionvac/domain/marker"
	"regionvac/infra/journal"
	"regionvac/infra/outbox"
	"regionvac/infra/sequence"
	"regionvac/snapshot"
)

// CollectorService owns the heap for the process. The mutator, the
// collector and snapshot captures all go through it, and it takes the
// write lock for anything that moves objects. Finished cycles are written
// to the journal and the outbox from here.

type CollectorService struct {
	mu sync.RWMutex

	heap      *heap.Heap
	collector *gc.Collector
	mutator   *Mutator
	cycles    *sequence.Sequencer
	reader    *snapshot.Reader
	journal   *journal.Journal // optional
	outbox    *outbox.Outbox   // optional
	policy    Policy

	last gc.CycleReport
}

// NewCollectorService registers the snapshot reader with the collector so
// reclamation waits for captures. j and ob may be nil.
func NewCollectorService(
	h *heap.Heap,
	collector *gc.Collector,
	mutator *Mutator,
	cycles *sequence.Sequencer,
	reader *snapshot.Reader,
	j *journal.Journal,
	ob *outbox.Outbox,
	policy Policy,
) *CollectorService {
	collector.RegisterReader(reader.Epoch())
	return &CollectorService{
		heap:      h,
		collector: collector,
		mutator:   mutator,
		cycles:    cycles,
		reader:    reader,
		journal:   j,
		outbox:    ob,
		policy:    policy,
	}
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// Mutate runs n synthetic allocations. It returns how many succeeded; the
// error wraps heap.ErrSpaceExhausted when eden ran out of regions.
func (s *CollectorService) Mutate(n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutator.Step(n)
}

// Collect runs one full collection: mark, evacuate, journal, outbox.
func (s *CollectorService) Collect(ctx context.Context) (gc.CycleReport, error) {
	if err := ctx.Err(); err != nil {
		return gc.CycleReport{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Condemn old regions if old space is filling up
	s.selectMixed()

	// 2. Mark
	marker.Mark(s.heap)

	// 3. Evacuate
	// fatal errors were already journalled by the OnFatal hook
	rep, err := s.collector.Collect()
	if err != nil {
		return rep, err
	}

	// 4. Journal + outbox
	if err := s.record(&rep); err != nil {
		log.Printf("[service] cycle %d not recorded: %v", rep.Cycle, err)
	}
	s.last = rep
	return rep, nil
}

// Reclaim recycles evacuated regions no reader can still see.
func (s *CollectorService) Reclaim() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collector.Reclaim()
}

// selectMixed flags old regions for the next collection once old space
// occupancy crosses the policy trigger.
func (s *CollectorService) selectMixed() {
	old := s.heap.Old()
	if s.policy.MixedRegions <= 0 || old.Budget() == 0 {
		return
	}
	if float64(old.Used()) < s.policy.MixedTrigger*float64(old.Budget()) {
		return
	}
	n := 0
	for _, r := range old.Regions() {
		if n == s.policy.MixedRegions {
			break
		}
		if r.HasFlag(heap.FlagInCollectionSet) {
			n++
			continue
		}
		if s.heap.AddToCollectionSet(r) == nil {
			n++
		}
	}
}

func (s *CollectorService) record(rep *gc.CycleReport) error {
	payload, err := journal.EncodeFields(rep.Fields())
	if err != nil {
		return err
	}
	if s.journal != nil {
		if err := s.journal.Append(journal.NewRecord(journal.RecordCycle, rep.Cycle, payload)); err != nil {
			return err
		}
	}
	if s.outbox != nil {
		if err := s.outbox.PutNew(rep.Cycle, payload); err != nil {
			return err
		}
	}
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// Stats is a point-in-time summary of the heap and the last cycle.
type Stats struct {
	Cycle          uint64
	Phase          string
	FreeRegions    int
	YoungRegions   int
	OldRegions     int
	SharedRegions  int
	OldUsed        uint64
	OldBudget      uint64
	PromotedBytes  uint64
	PendingRegions int
	Roots          int
	WeakHandles    int
	Allocated      uint64
	Finalized      uint64
	Last           gc.CycleReport
}

func (s *CollectorService) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.heap
	st := Stats{
		Cycle:          s.cycles.Current(),
		Phase:          s.collector.Phase().String(),
		FreeRegions:    h.FreeRegions(),
		YoungRegions:   len(h.Young().Regions()),
		OldRegions:     h.Old().Len(),
		SharedRegions:  h.Shared().Len(),
		OldUsed:        h.Old().Used(),
		OldBudget:      h.Old().Budget(),
		PromotedBytes:  s.collector.GetPromotedSize(),
		PendingRegions: s.collector.PendingRegions(),
		Roots:          h.Roots().Len(),
		WeakHandles:    h.Weak().Len(),
		Last:           s.last,
	}
	if s.mutator != nil {
		st.Allocated = s.mutator.Allocated()
		st.Finalized = s.mutator.Finalized()
	}
	return st
}

// Fields flattens the stats for structpb.
func (st Stats) Fields() map[string]any {
	return map[string]any{
		"cycle":           st.Cycle,
		"phase":           st.Phase,
		"free_regions":    st.FreeRegions,
		"young_regions":   st.YoungRegions,
		"old_regions":     st.OldRegions,
		"shared_regions":  st.SharedRegions,
		"old_used":        st.OldUsed,
		"old_budget":      st.OldBudget,
		"promoted_bytes":  st.PromotedBytes,
		"pending_regions": st.PendingRegions,
		"roots":           st.Roots,
		"weak_handles":    st.WeakHandles,
		"allocated":       st.Allocated,
		"finalized":       st.Finalized,
		"last":            st.Last.Fields(),
	}
}

// Snapshot captures the region table. Regions evacuated meanwhile stay
// unreclaimed until the capture ends.
func (s *CollectorService) Snapshot() *snapshot.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := &snapshot.Writer{Reader: s.reader}
	return w.Capture(s.cycles.Current(), s.heap)
}
