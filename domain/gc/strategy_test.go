package gc

import (
	"testing"

	"regionvac/domain/heap"
)

func TestSelectStrategy(t *testing.T) {
	th := Thresholds{WholeRegionAliveRate: 0.75}
	tests := []struct {
		name string
		in   StrategyInput
		want Strategy
	}{
		{"sparse eden", StrategyInput{Generation: heap.GenEden, AliveRate: 0.2}, ObjectByObject},
		{"dense eden", StrategyInput{Generation: heap.GenEden, AliveRate: 0.9}, WholeRegionToSurvivor},
		{"dense aged", StrategyInput{Generation: heap.GenSurvivor, AliveRate: 0.9, BelowAgeMark: true}, WholeRegionToOld},
		{"at threshold", StrategyInput{Generation: heap.GenEden, AliveRate: 0.75}, WholeRegionToSurvivor},
		{"age mark boundary", StrategyInput{Generation: heap.GenEden, AliveRate: 0.95, HasAgeMark: true}, ObjectByObject},
		{"old region", StrategyInput{Generation: heap.GenOld, AliveRate: 0.99}, ObjectByObject},
		{"overcommitted", StrategyInput{Generation: heap.GenEden, AliveRate: 0.1, Overcommitted: true}, WholeRegionToSurvivor},
		{"overcommitted aged", StrategyInput{Generation: heap.GenSurvivor, AliveRate: 0.1, BelowAgeMark: true, Overcommitted: true}, ObjectByObject},
		{"pinned", StrategyInput{Generation: heap.GenEden, AliveRate: 0.01, Pinned: true}, WholeRegionToOld},
		{"pinned with age mark", StrategyInput{Generation: heap.GenEden, HasAgeMark: true, Pinned: true}, WholeRegionToOld},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectStrategy(tt.in, th); got != tt.want {
				t.Fatalf("SelectStrategy = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestThresholdIsTunable(t *testing.T) {
	in := StrategyInput{Generation: heap.GenEden, AliveRate: 0.5}
	if got := SelectStrategy(in, Thresholds{WholeRegionAliveRate: 0.4}); got != WholeRegionToSurvivor {
		t.Fatalf("got %s with a lowered threshold", got)
	}
}

func TestParallelism(t *testing.T) {
	f := newFixture(t, func(_ *heap.Config, c *Config) {
		c.MaxWorkers = 3
		c.RegionsPerThread = 2
	})
	tests := []struct{ n, want int }{
		{0, 0},
		{1, 1},
		{4, 2},
		{5, 3},
		{100, 3},
	}
	for _, tt := range tests {
		if got := f.c.parallelism(tt.n); got != tt.want {
			t.Errorf("parallelism(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
