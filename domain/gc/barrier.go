package gc

import "sync"

// barrier counts running worker tasks. wait returns once the last one
// called done.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	running int
}

func newBarrier() *barrier {
	b := &barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) add() {
	b.mu.Lock()
	b.running++
	b.mu.Unlock()
}

func (b *barrier) done() {
	b.mu.Lock()
	b.running--
	if b.running == 0 {
		b.cond.Broadcast()
	}
	b.mu.Unlock()
}

func (b *barrier) wait() {
	b.mu.Lock()
	for b.running > 0 {
		b.cond.Wait()
	}
	b.mu.Unlock()
}
