package gc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the collector's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	cycles          prometheus.Counter
	promotedBytes   prometheus.Counter
	youngMovedBytes prometheus.Counter
	freedRegions    prometheus.Counter
	regions         *prometheus.CounterVec
	fatal           prometheus.Counter
	phase           *prometheus.HistogramVec
}

// NewMetrics creates the instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regionvac",
			Name:      "cycles_total",
			Help:      "Completed collection cycles.",
		}),
		promotedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regionvac",
			Name:      "promoted_bytes_total",
			Help:      "Bytes promoted into old space.",
		}),
		youngMovedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regionvac",
			Name:      "young_moved_bytes_total",
			Help:      "Bytes copied within the young generation.",
		}),
		freedRegions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regionvac",
			Name:      "freed_regions_total",
			Help:      "Evacuated regions retired for reuse.",
		}),
		regions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regionvac",
			Name:      "regions_total",
			Help:      "Condemned regions by evacuation strategy.",
		}, []string{"strategy"}),
		fatal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regionvac",
			Name:      "fatal_errors_total",
			Help:      "Collections aborted by a fatal error.",
		}),
		phase: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "regionvac",
			Name:      "phase_duration_seconds",
			Help:      "Duration of collection phases.",
			Buckets:   prometheus.ExponentialBuckets(50e-6, 4, 10),
		}, []string{"phase"}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.promotedBytes, m.youngMovedBytes,
			m.freedRegions, m.regions, m.fatal, m.phase)
	}
	return m
}

func (m *Metrics) observeCycle(r *CycleReport) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.promotedBytes.Add(float64(r.PromotedBytes))
	m.youngMovedBytes.Add(float64(r.YoungMovedBytes))
	m.freedRegions.Add(float64(r.FreedRegions))
	m.regions.WithLabelValues(WholeRegionToOld.String()).Add(float64(r.WholeToOld))
	m.regions.WithLabelValues(WholeRegionToSurvivor.String()).Add(float64(r.WholeToSurvivor))
	m.regions.WithLabelValues(ObjectByObject.String()).Add(float64(r.ObjectByObject))
	m.phase.WithLabelValues("evacuate").Observe(r.EvacuationTime().Seconds())
	m.phase.WithLabelValues("update").Observe(r.UpdateTime().Seconds())
}

func (m *Metrics) observeFinalize(d time.Duration) {
	if m == nil {
		return
	}
	m.phase.WithLabelValues("finalize").Observe(d.Seconds())
}

func (m *Metrics) fatalError() {
	if m == nil {
		return
	}
	m.fatal.Inc()
}
