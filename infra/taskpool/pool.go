// Package taskpool runs submitted tasks on a fixed set of goroutines.
package taskpool

import (
	"sync"
	"sync/atomic"
)

// Pool is a fixed-size worker pool. PostTask never blocks: when the queue
// is full or the pool is closed it reports false and the caller runs the
// work itself.
type Pool struct {
	mu     sync.RWMutex
	tasks  chan func()
	closed bool

	threads int
	wg      sync.WaitGroup
	ran     atomic.Uint64
}

func New(threads, queue int) *Pool {
	if threads < 1 {
		threads = 1
	}
	if queue < threads {
		queue = threads
	}
	p := &Pool{
		tasks:   make(chan func(), queue),
		threads: threads,
	}
	for i := 0; i < threads; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
		p.ran.Add(1)
	}
}

func (p *Pool) PostTask(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

func (p *Pool) TotalThreadNum() int { return p.threads }

// Completed is the number of tasks that finished.
func (p *Pool) Completed() uint64 { return p.ran.Load() }

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
