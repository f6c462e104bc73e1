package gc

import (
	"log/slog"
	"os"
)

// TaskPool runs worker tasks. PostTask must not block; it reports false
// when the task was not accepted.
type TaskPool interface {
	PostTask(task func()) bool
	TotalThreadNum() int
}

// Thresholds tune the region strategy selector.
type Thresholds struct {
	// WholeRegionAliveRate is the alive fraction at or above which a
	// young region is moved whole instead of copied.
	WholeRegionAliveRate float64
}

type Config struct {
	MaxWorkers       int // worker tasks per phase, the calling goroutine excluded
	RegionsPerThread int
	Thresholds       Thresholds

	// RetireCapacity bounds the ring of regions waiting for reclamation
	// and of deferred weak finalizers.
	RetireCapacity uint64

	Logger *slog.Logger
	// OnFatal receives the first fatal error of a cycle. The default logs
	// it and exits the process.
	OnFatal func(error)
	Metrics *Metrics
}

func DefaultConfig() Config {
	return Config{
		MaxWorkers:       8,
		RegionsPerThread: 4,
		Thresholds:       Thresholds{WholeRegionAliveRate: 0.75},
		RetireCapacity:   1024,
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.MaxWorkers < 0 {
		c.MaxWorkers = 0
	}
	if c.RegionsPerThread <= 0 {
		c.RegionsPerThread = def.RegionsPerThread
	}
	if c.Thresholds.WholeRegionAliveRate <= 0 {
		c.Thresholds.WholeRegionAliveRate = def.Thresholds.WholeRegionAliveRate
	}
	if c.RetireCapacity == 0 {
		c.RetireCapacity = def.RetireCapacity
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.OnFatal == nil {
		c.OnFatal = ExitOnFatal(c.Logger)
	}
}

// ExitOnFatal logs the error and terminates the process. It is the
// OnFatal default.
func ExitOnFatal(logger *slog.Logger) func(error) {
	return func(err error) {
		logger.Error("collection aborted",
			slog.String("error", err.Error()),
			slog.String("component", "gc"))
		os.Exit(2)
	}
}
