// Package gc is the evacuation core of a region-based generational
// collector. Given a marked heap it copies or promotes the live objects of
// every condemned region, installs forwarding headers, and rewrites every
// reference that pointed at a moved object.
//
// A cycle runs Initialize, EvacuateSpace, UpdateReference and Finalize in
// that order. Each distributed phase drains a workload.Set on the task
// pool plus the calling goroutine and ends on a completion barrier.
package gc

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"regionvac/domain/heap"
	"regionvac/domain/workload"
	"regionvac/infra/memory"
	"regionvac/infra/sequence"
)

// Phase is the orchestrator state.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseInitialized
	PhaseEvacuating
	PhaseBarrier1
	PhaseUpdating
	PhaseBarrier2
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseInitialized:
		return "INITIALIZED"
	case PhaseEvacuating:
		return "EVACUATING"
	case PhaseBarrier1:
		return "BARRIER1"
	case PhaseUpdating:
		return "UPDATING"
	case PhaseBarrier2:
		return "BARRIER2"
	case PhaseFinalized:
		return "FINALIZED"
	default:
		return "UNKNOWN"
	}
}

// Collector orchestrates evacuation cycles over one heap. Phase methods
// must be called from a single goroutine.
type Collector struct {
	heap    *heap.Heap
	pool    TaskPool
	cfg     Config
	log     *slog.Logger
	metrics *Metrics
	cycles  *sequence.Sequencer

	mu    sync.Mutex
	phase Phase

	cset       []*evacuateWork
	evacuation workload.Set[*worker]
	update     workload.Set[*worker]
	barrier    *barrier

	workers    []*worker
	workerPool *memory.Pool[worker]
	bufPool    *memory.Pool[heap.AllocBuffer]

	retired *memory.RetireRing[*heap.Region]
	spilled []*heap.Region

	readersMu sync.Mutex
	readers   []*memory.ReaderEpoch

	promoted atomic.Uint64
	report   CycleReport
	fatal    error
}

// New creates a collector over h. cycles may be nil; the collector then
// numbers cycles from 1.
func New(h *heap.Heap, pool TaskPool, cycles *sequence.Sequencer, cfg Config) *Collector {
	cfg.normalize()
	if cycles == nil {
		cycles = sequence.New(0)
	}
	return &Collector{
		heap:    h,
		pool:    pool,
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		cycles:  cycles,
		barrier: newBarrier(),
		workerPool: memory.NewPool(
			func() *worker { return &worker{} },
			(*worker).reset,
		),
		bufPool: memory.NewPool(
			func() *heap.AllocBuffer { return &heap.AllocBuffer{} },
			nil,
		),
		retired: memory.NewRetireRing[*heap.Region](cfg.RetireCapacity),
	}
}

func (c *Collector) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Collector) advance(from, to Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != from {
		return errors.Wrapf(ErrBadPhase, "%s -> %s while %s", from, to, c.phase)
	}
	c.phase = to
	return nil
}

// GetPromotedSize is the number of bytes promoted into old space by the
// last finished cycle.
func (c *Collector) GetPromotedSize() uint64 { return c.promoted.Load() }

// RegisterReader adds a heap reader whose read sections hold back the
// reclamation of evacuated regions.
func (c *Collector) RegisterReader(r *memory.ReaderEpoch) {
	c.readersMu.Lock()
	c.readers = append(c.readers, r)
	c.readersMu.Unlock()
}

// PendingRegions is the number of evacuated regions not yet reclaimed.
func (c *Collector) PendingRegions() int {
	return c.retired.Len() + len(c.spilled)
}

// Reclaim hands evacuated regions back to the heap if no registered
// reader is inside a read section. It is called at the start of every
// cycle and may be called between cycles.
func (c *Collector) Reclaim() int {
	c.readersMu.Lock()
	readers := append([]*memory.ReaderEpoch(nil), c.readers...)
	c.readersMu.Unlock()

	n := memory.AdvanceEpochAndReclaim[*heap.Region](c.retired, c.heap, readers...)
	for _, r := range readers {
		if r.Active() {
			return n
		}
	}
	for _, r := range c.spilled {
		c.heap.Reclaim(r)
		n++
	}
	c.spilled = c.spilled[:0]
	return n
}

// Initialize starts a cycle: it flips the young space, condemns the young
// from-space plus the old regions flagged for a mixed collection and
// zeroes the cycle counters.
func (c *Collector) Initialize() error {
	if err := c.advance(PhaseIdle, PhaseInitialized); err != nil {
		return err
	}
	if n := c.Reclaim(); n > 0 {
		c.log.Debug("regions reclaimed", slog.Int("count", n))
	}

	c.promoted.Store(0)
	c.fatal = nil
	c.report = CycleReport{Cycle: c.cycles.Next()}

	young := c.heap.Young()
	from, watermark := young.Flip()
	c.report.Watermark = watermark
	for _, r := range c.heap.Old().Regions() {
		if r.HasFlag(heap.FlagInCollectionSet) && !r.HasFlag(heap.FlagEvacuated) {
			from = append(from, r)
			c.report.Mixed = true
		}
	}

	c.cset = c.cset[:0]
	c.evacuation.Clear()
	overcommitted := young.Overcommitted()
	for _, r := range from {
		r.SetFlag(heap.FlagInCollectionSet)
		e := &evacuateWork{
			region:    r,
			gen:       r.Generation(),
			strategy:  SelectStrategy(InputOf(r, overcommitted), c.cfg.Thresholds),
			allocated: r.AllocatedBytes(),
			live:      r.AliveBytes(),
			remset:    r.RemSetSize(),
		}
		if e.strategy == WholeRegionToSurvivor && !young.ToSpace().Adopt(r) {
			e.strategy = ObjectByObject
		}
		c.cset = append(c.cset, e)
		c.evacuation.Add(e)
	}
	c.report.CollectionSet = len(c.cset)
	return nil
}

// parallelism is the number of worker tasks posted for n workloads. The
// calling goroutine always works as well.
func (c *Collector) parallelism(n int) int {
	tasks := (n + c.cfg.RegionsPerThread - 1) / c.cfg.RegionsPerThread
	return min(c.cfg.MaxWorkers, c.pool.TotalThreadNum(), tasks)
}

func (c *Collector) ensureWorkers(n int, buffers bool) {
	for len(c.workers) < n {
		w := c.workerPool.Get()
		w.id = len(c.workers)
		w.c = c
		c.workers = append(c.workers, w)
	}
	if !buffers {
		return
	}
	for _, w := range c.workers[:n] {
		if w.buf == nil {
			w.buf = c.bufPool.Get()
			w.buf.Reset(c.heap.Young().ToSpace(), c.heap.Old())
		}
	}
}

// run drains set with tasks posted to the pool plus the calling goroutine,
// which first runs lead, and waits on the barrier.
func (c *Collector) run(set *workload.Set[*worker], lead func(w *worker) error, buffers bool) error {
	set.Prepare()
	tasks := c.parallelism(set.Len())
	c.ensureWorkers(tasks+1, buffers)
	if tasks+1 > c.report.Workers {
		c.report.Workers = tasks + 1
	}

	errs := make([]error, tasks+1)
	for i := 1; i <= tasks; i++ {
		w := c.workers[i]
		c.barrier.add()
		posted := c.pool.PostTask(func() {
			defer c.barrier.done()
			_, errs[w.id] = set.Drain(w)
		})
		if !posted {
			c.barrier.done()
		}
	}

	main := c.workers[0]
	if lead != nil {
		errs[0] = lead(main)
	}
	if errs[0] == nil {
		_, errs[0] = set.Drain(main)
	}
	c.barrier.wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	if set.Remaining() != 0 {
		return errors.AssertionFailedf("gc: %d workloads left after the barrier", set.Remaining())
	}
	return nil
}

// fail reports the first fatal error of the cycle.
func (c *Collector) fail(err error) error {
	if c.fatal != nil {
		return c.fatal
	}
	c.fatal = err
	c.metrics.fatalError()
	c.cfg.OnFatal(err)
	return err
}

// EvacuateSpace copies or relabels every condemned region.
func (c *Collector) EvacuateSpace() error {
	if err := c.advance(PhaseInitialized, PhaseEvacuating); err != nil {
		return err
	}
	c.report.EvacuationStart = time.Now()
	defer func() { c.report.EvacuationEnd = time.Now() }()

	if c.evacuation.Len() > 0 {
		if err := c.run(&c.evacuation, nil, true); err != nil {
			return c.fail(err)
		}
		c.logRegions()
	}
	return c.advance(PhaseEvacuating, PhaseBarrier1)
}

// UpdateReference rewrites every reference to a moved object: roots and
// remembered sets, then weak handles, then the survivor regions.
func (c *Collector) UpdateReference() error {
	if err := c.advance(PhaseBarrier1, PhaseUpdating); err != nil {
		return err
	}
	c.report.UpdateStart = time.Now()
	defer func() { c.report.UpdateEnd = time.Now() }()

	if len(c.cset) > 0 {
		if err := c.updateReference(); err != nil {
			return c.fail(err)
		}
	}
	return c.advance(PhaseUpdating, PhaseBarrier2)
}

func (c *Collector) updateReference() error {
	h := c.heap

	c.update.Clear()
	for _, space := range []*heap.Space{h.Old(), h.Shared()} {
		for _, r := range space.Regions() {
			if !r.HasFlag(heap.FlagInCollectionSet) {
				c.update.Add(&rsetWork{region: r})
			}
		}
	}
	if err := c.run(&c.update, c.updateRoots, false); err != nil {
		return err
	}

	st, err := c.resolveWeak()
	if err != nil {
		return err
	}
	c.report.WeakUpdated, c.report.WeakCleared = st.updated, st.cleared

	c.update.Clear()
	for _, r := range h.Young().ToSpace().Regions() {
		if r.HasFlag(heap.FlagToSpace) && !r.HasFlag(heap.FlagWholeMoved) {
			c.update.Add(&newRegionWork{region: r})
		}
	}
	for _, e := range c.cset {
		if e.strategy.IsWhole() {
			c.update.Add(&wholeRegionWork{region: e.region})
		}
	}
	return c.run(&c.update, nil, false)
}

// updateRoots runs on the calling goroutine while the workers replay
// remembered sets.
func (c *Collector) updateRoots(_ *worker) error {
	var err error
	n := 0
	c.heap.Roots().Visit(func(_ heap.RootKind, a heap.Address) heap.Address {
		if err != nil {
			return a
		}
		to, alive, e := c.resolve(a)
		if e != nil {
			err = e
			return a
		}
		if alive && to != a {
			n++
			return to
		}
		return a
	})
	c.report.RootsUpdated = n
	return err
}

// Evacuate runs EvacuateSpace and UpdateReference.
func (c *Collector) Evacuate() error {
	if err := c.EvacuateSpace(); err != nil {
		return err
	}
	return c.UpdateReference()
}

// Finalize seals the cycle: it returns the allocation buffers, labels the
// survivors, retires the evacuated regions and publishes the counters.
func (c *Collector) Finalize() (CycleReport, error) {
	if err := c.advance(PhaseBarrier2, PhaseFinalized); err != nil {
		return CycleReport{}, err
	}
	start := time.Now()
	h := c.heap
	rep := &c.report

	for _, w := range c.workers {
		w.merge(rep)
		if w.buf != nil {
			w.buf.Close()
			c.bufPool.Put(w.buf)
		}
		c.workerPool.Put(w)
	}
	clear(c.workers)
	c.workers = c.workers[:0]

	for _, e := range c.cset {
		r := e.region
		rep.Regions = append(rep.Regions, RegionReport{
			Index:      r.Index(),
			Generation: e.gen.String(),
			Strategy:   e.strategy,
			Allocated:  e.allocated,
			Live:       e.live,
			RemSet:     e.remset,
			Moved:      e.moved,
			Promoted:   e.promoted,
			Objects:    e.objects,
			Duration:   e.elapsed,
		})
		switch e.strategy {
		case WholeRegionToOld:
			rep.WholeToOld++
			r.ClearFlag(heap.FlagInCollectionSet | heap.FlagWholeMoved | heap.FlagHasAgeMark | heap.FlagBelowAgeMark)
			r.ClearMarks()
			r.Promoted().Clear()
			h.Old().ForceAdopt(r)
		case WholeRegionToSurvivor:
			rep.WholeToSurvivor++
			r.ClearFlag(heap.FlagInCollectionSet | heap.FlagWholeMoved)
			r.ClearMarks()
		default:
			rep.ObjectByObject++
			rep.FreedRegions++
			rep.FreedBytes += uint64(e.allocated)
			h.Retire(r)
			if !c.retired.Enqueue(r) {
				c.spilled = append(c.spilled, r)
			}
		}
	}
	h.Young().CompleteCycle(h.Young().ToSpace().Regions())

	c.cset = c.cset[:0]
	c.evacuation.Clear()
	c.update.Clear()

	c.promoted.Store(rep.PromotedBytes)
	c.metrics.observeCycle(rep)
	c.metrics.observeFinalize(time.Since(start))

	if rep.CollectionSet > 0 {
		c.log.Info("collection finished",
			slog.Uint64("cycle", rep.Cycle),
			slog.Bool("mixed", rep.Mixed),
			slog.Int("regions", rep.CollectionSet),
			slog.Uint64("promoted_bytes", rep.PromotedBytes),
			slog.Uint64("young_moved_bytes", rep.YoungMovedBytes),
			slog.Int("freed_regions", rep.FreedRegions),
			slog.Duration("evacuation", rep.EvacuationTime()),
			slog.Duration("update", rep.UpdateTime()),
			slog.String("component", "gc"))
	}

	out := *rep
	c.report = CycleReport{}
	if err := c.advance(PhaseFinalized, PhaseIdle); err != nil {
		return out, err
	}
	return out, nil
}

// Collect runs a whole cycle.
func (c *Collector) Collect() (CycleReport, error) {
	if err := c.Initialize(); err != nil {
		return CycleReport{}, err
	}
	if err := c.Evacuate(); err != nil {
		return CycleReport{}, err
	}
	return c.Finalize()
}

func (c *Collector) logRegions() {
	if !c.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, e := range c.cset {
		msg := "Region compacted"
		if e.strategy == WholeRegionToOld || e.promoted > 0 && e.moved == e.promoted {
			msg = "Region promoted"
		}
		tag := "young"
		if e.gen.IsOld() {
			tag = "tenured"
		}
		c.log.Debug(msg,
			slog.Int("region", e.region.Index()),
			slog.String("gen", tag),
			slog.String("strategy", e.strategy.String()),
			slog.Int("allocated", e.allocated),
			slog.Uint64("live", e.live),
			slog.Int("remset", e.remset),
			slog.Uint64("moved", e.moved),
			slog.Duration("duration", e.elapsed))
	}
}
