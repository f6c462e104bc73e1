package taskpool

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolRunsPostedTasks(t *testing.T) {
	p := New(4, 64)
	defer p.Close()

	if p.TotalThreadNum() != 4 {
		t.Fatalf("TotalThreadNum = %d, want 4", p.TotalThreadNum())
	}

	var wg sync.WaitGroup
	var n atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		if !p.PostTask(func() { defer wg.Done(); n.Add(1) }) {
			wg.Done()
			n.Add(1) // run inline like a collector would
		}
	}
	wg.Wait()
	if n.Load() != 32 {
		t.Fatalf("ran %d tasks, want 32", n.Load())
	}
}

func TestPostAfterCloseFails(t *testing.T) {
	p := New(1, 1)
	p.Close()
	if p.PostTask(func() {}) {
		t.Fatal("PostTask succeeded on a closed pool")
	}
	p.Close() // idempotent
}
