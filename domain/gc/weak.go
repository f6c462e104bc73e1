package gc

import (
	"regionvac/domain/heap"
	"regionvac/infra/memory"
)

type weakStats struct {
	updated int
	cleared int
}

// resolveWeak rewrites weak handles to moved referents and clears those
// whose referent died. Finalizers run after the walk, each at most once.
func (c *Collector) resolveWeak() (weakStats, error) {
	var (
		st       weakStats
		firstErr error
		ring     = memory.NewRetireRing[func()](c.cfg.RetireCapacity)
		spill    []func()
	)
	c.heap.Weak().Iterate(func(wh *heap.WeakHandle) {
		v := wh.Get()
		to, alive, err := c.resolve(v)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		if alive {
			if to != v {
				wh.Set(to)
				st.updated++
			}
			return
		}
		wh.Clear()
		st.cleared++
		if fn := wh.TakeFinalizer(); fn != nil && !ring.Enqueue(fn) {
			spill = append(spill, fn)
		}
	})

	for {
		fn, ok := ring.Dequeue()
		if !ok {
			break
		}
		fn()
	}
	for _, fn := range spill {
		fn()
	}
	c.heap.Weak().Prune()
	return st, firstErr
}
