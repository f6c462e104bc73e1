package service

import (
	"context"
	"log"
	"time"

	"regionvac/snapshot"
)

// StartSnapshotJob writes a heap snapshot every interval and then drops
// journal segments and outbox records the snapshot covers.
func (s *CollectorService) StartSnapshotJob(
	ctx context.Context,
	dir string,
	interval time.Duration,
) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			if _, err := s.WriteSnapshot(dir); err != nil {
				log.Printf("[snapshot] %v", err)
			}
		}
	}()
}

// WriteSnapshot writes the region table to dir and returns the cycle it
// covers.
func (s *CollectorService) WriteSnapshot(dir string) (uint64, error) {
	s.mu.RLock()
	seq := s.cycles.Current()
	w := &snapshot.Writer{Dir: dir, Reader: s.reader}
	err := w.Write(seq, s.heap)
	s.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	// Truncate journal after snapshot
	if s.journal != nil {
		_ = s.journal.TruncateBefore(seq)
	}

	// GC outbox (acked only)
	if s.outbox != nil {
		_, _ = s.outbox.TruncateAckedUpTo(seq)
	}
	return seq, nil
}
