package gc

import "time"

// RegionReport describes what happened to one condemned region.
type RegionReport struct {
	Index      int
	Generation string
	Strategy   Strategy
	Allocated  int
	Live       uint64
	RemSet     int
	Moved      uint64
	Promoted   uint64
	Objects    int
	Duration   time.Duration
}

// CycleReport is the outcome of one collection.
type CycleReport struct {
	Cycle         uint64
	Mixed         bool
	Watermark     uint64
	CollectionSet int
	Workers       int

	WholeToOld      int
	WholeToSurvivor int
	ObjectByObject  int

	PromotedBytes       uint64
	PromotedObjects     uint64
	YoungMovedBytes     uint64
	YoungMovedObjects   uint64
	TenuredMovedBytes   uint64
	TenuredMovedObjects uint64
	FreedRegions        int
	FreedBytes          uint64
	LostRaces           uint64

	SlotsUpdated uint64
	RootsUpdated int
	WeakUpdated  int
	WeakCleared  int

	EvacuationStart time.Time
	EvacuationEnd   time.Time
	UpdateStart     time.Time
	UpdateEnd       time.Time

	Regions []RegionReport
}

func (r *CycleReport) EvacuationTime() time.Duration {
	return r.EvacuationEnd.Sub(r.EvacuationStart)
}

func (r *CycleReport) UpdateTime() time.Duration {
	return r.UpdateEnd.Sub(r.UpdateStart)
}

// Fields flattens the report into values a structpb.Struct accepts.
// Per-region detail is left out.
func (r *CycleReport) Fields() map[string]any {
	return map[string]any{
		"cycle":                 r.Cycle,
		"mixed":                 r.Mixed,
		"watermark":             r.Watermark,
		"collection_set":        r.CollectionSet,
		"workers":               r.Workers,
		"whole_to_old":          r.WholeToOld,
		"whole_to_survivor":     r.WholeToSurvivor,
		"object_by_object":      r.ObjectByObject,
		"promoted_bytes":        r.PromotedBytes,
		"promoted_objects":      r.PromotedObjects,
		"young_moved_bytes":     r.YoungMovedBytes,
		"young_moved_objects":   r.YoungMovedObjects,
		"tenured_moved_bytes":   r.TenuredMovedBytes,
		"tenured_moved_objects": r.TenuredMovedObjects,
		"freed_regions":         r.FreedRegions,
		"freed_bytes":           r.FreedBytes,
		"lost_races":            r.LostRaces,
		"slots_updated":         r.SlotsUpdated,
		"roots_updated":         r.RootsUpdated,
		"weak_updated":          r.WeakUpdated,
		"weak_cleared":          r.WeakCleared,
		"evacuation_ns":         r.EvacuationTime().Nanoseconds(),
		"update_ns":             r.UpdateTime().Nanoseconds(),
		"evacuation_start":      r.EvacuationStart.Format(time.RFC3339Nano),
		"update_end":            r.UpdateEnd.Format(time.RFC3339Nano),
	}
}
