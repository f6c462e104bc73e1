package service

import (
	"context"
	"errors"
	"log"
	"time"

	"regionvac/domain/heap"
)

// StartMutatorJob drives the synthetic mutator: every tick it allocates
// batch objects and collects whenever eden runs out of regions.
func (s *CollectorService) StartMutatorJob(ctx context.Context, batch int, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			if _, err := s.Mutate(batch); err != nil {
				if !errors.Is(err, heap.ErrSpaceExhausted) {
					log.Printf("[mutator] %v", err)
					continue
				}
				if _, err := s.Collect(ctx); err != nil {
					log.Printf("[collector] %v", err)
				}
				continue
			}
			s.Reclaim()
		}
	}()
}
