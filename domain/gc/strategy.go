package gc

import "regionvac/domain/heap"

// Strategy is how a condemned region is evacuated.
type Strategy uint8

const (
	ObjectByObject Strategy = iota
	WholeRegionToSurvivor
	WholeRegionToOld
)

func (s Strategy) String() string {
	switch s {
	case ObjectByObject:
		return "OBJECT_BY_OBJECT"
	case WholeRegionToSurvivor:
		return "WHOLE_REGION_TO_SURVIVOR"
	case WholeRegionToOld:
		return "WHOLE_REGION_TO_OLD"
	default:
		return "UNKNOWN"
	}
}

// IsWhole reports whether the region is relabelled rather than copied.
func (s Strategy) IsWhole() bool { return s != ObjectByObject }

// StrategyInput is what the selector looks at for one region.
type StrategyInput struct {
	Generation    heap.Generation
	AliveRate     float64
	BelowAgeMark  bool
	HasAgeMark    bool
	Pinned        bool
	Overcommitted bool // survivor to-space is already over its commit limit
}

func InputOf(r *heap.Region, overcommitted bool) StrategyInput {
	return StrategyInput{
		Generation:    r.Generation(),
		AliveRate:     r.AliveRate(),
		BelowAgeMark:  r.HasFlag(heap.FlagBelowAgeMark),
		HasAgeMark:    r.HasFlag(heap.FlagHasAgeMark),
		Pinned:        r.HasFlag(heap.FlagPinned),
		Overcommitted: overcommitted,
	}
}

// SelectStrategy picks the evacuation strategy of one region.
func SelectStrategy(in StrategyInput, t Thresholds) Strategy {
	switch {
	case in.Pinned && !in.Generation.IsOld():
		return WholeRegionToOld
	case in.HasAgeMark || in.Generation.IsOld():
		// objects on both sides of the age mark need different destinations
		return ObjectByObject
	case in.AliveRate >= t.WholeRegionAliveRate && in.BelowAgeMark:
		return WholeRegionToOld
	case in.AliveRate >= t.WholeRegionAliveRate:
		return WholeRegionToSurvivor
	case in.Overcommitted && !in.BelowAgeMark:
		return WholeRegionToSurvivor
	default:
		return ObjectByObject
	}
}
