package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// monitoring engine.
type Metrics struct {
	EngineRunning prometheus.Gauge
	CycleDuration prometheus.Histogram
	CycleErrors   prometheus.Counter

	// Partition metrics.
	PartitionRebuilds prometheus.Counter
	SectorCount       prometheus.Gauge

	// Fusion and detection metrics.
	SectorsFused        prometheus.Counter
	CloudburstsDetected prometheus.Counter

	// Propagation metrics.
	EventsScheduled prometheus.Counter
	EventsApplied   prometheus.Counter
	PendingEvents   prometheus.Gauge

	// Deployment and alert metrics.
	Deployments   *prometheus.CounterVec // labels: outcome={launched,rejected,recalled}
	AlertsCreated *prometheus.CounterVec // labels: type
	AlertsAcked   prometheus.Counter
	AirborneUnits prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.EngineRunning,
		m.CycleDuration,
		m.CycleErrors,
		m.PartitionRebuilds,
		m.SectorCount,
		m.SectorsFused,
		m.CloudburstsDetected,
		m.EventsScheduled,
		m.EventsApplied,
		m.PendingEvents,
		m.Deployments,
		m.AlertsCreated,
		m.AlertsAcked,
		m.AirborneUnits,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudburst",
			Name:      "engine_running",
			Help:      "1 when the engine cycle loop is active, 0 when shut down.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cloudburst",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete read-fuse-propagate-publish cycle.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudburst",
			Name:      "cycle_errors_total",
			Help:      "Total engine cycles that failed on a store read or write.",
		}),
		PartitionRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudburst",
			Name:      "partition_rebuilds_total",
			Help:      "Total full Voronoi partition regenerations.",
		}),
		SectorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudburst",
			Name:      "sector_count",
			Help:      "Sectors in the current partition.",
		}),
		SectorsFused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudburst",
			Name:      "sectors_fused_total",
			Help:      "Total per-sector probability fusion computations.",
		}),
		CloudburstsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudburst",
			Name:      "cloudbursts_detected_total",
			Help:      "Total positive cloudburst detections.",
		}),
		EventsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudburst",
			Name:      "propagation_events_scheduled_total",
			Help:      "Total propagation events stored by cascade scheduling.",
		}),
		EventsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudburst",
			Name:      "propagation_events_applied_total",
			Help:      "Total due propagation events applied to sectors.",
		}),
		PendingEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudburst",
			Name:      "propagation_events_pending",
			Help:      "Propagation events currently awaiting their scheduled time.",
		}),
		Deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudburst",
			Name:      "deployments_total",
			Help:      "Aerial deployment decisions by outcome.",
		}, []string{"outcome"}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudburst",
			Name:      "alerts_created_total",
			Help:      "Alerts created by type.",
		}, []string{"type"}),
		AlertsAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudburst",
			Name:      "alerts_acknowledged_total",
			Help:      "Total alert acknowledgements.",
		}),
		AirborneUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudburst",
			Name:      "airborne_units",
			Help:      "Aerial units currently deploying, active, or descending.",
		}),
	}
}
