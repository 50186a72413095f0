package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Cycle outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Recovery tier label values.
const (
	TierInner = "inner"
	TierOuter = "outer"
)

// NodeMetrics contains Prometheus metrics for the sensor node runtime.
type NodeMetrics struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	SensorReadFailures prometheus.Counter
	FieldsPublished    *prometheus.CounterVec
	PublishFailures    *prometheus.CounterVec
	ReleaseFailures    prometheus.Counter
	PersistFailures    prometheus.Counter
	Faults             *prometheus.CounterVec
	Restarts           prometheus.Counter
	AssociationPolls   prometheus.Counter
	ConnectionState    prometheus.Gauge
	OccupancyChanges   prometheus.Counter
	PowerCycles        prometheus.Counter
}

// NewNodeMetrics creates node metrics and registers them with the global registry.
func NewNodeMetrics(namespace string) *NodeMetrics {
	return NewNodeMetricsFor(Registry, namespace)
}

// NewNodeMetricsFor creates node metrics and registers them with reg.
func NewNodeMetricsFor(reg prometheus.Registerer, namespace string) *NodeMetrics {
	m := &NodeMetrics{
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "cycles_total",
				Help:      "Total number of sensing cycles by outcome",
			},
			[]string{"outcome"}, // outcome: ok, degraded, failed
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of a sensing cycle from session open to release",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SensorReadFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "sensor_read_failures_total",
				Help:      "Total number of failed sensor reads",
			},
		),
		FieldsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "fields_published_total",
				Help:      "Total number of field values published",
			},
			[]string{"field"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "publish_failures_total",
				Help:      "Total number of field publishes that failed",
			},
			[]string{"field"},
		),
		ReleaseFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "release_failures_total",
				Help:      "Total number of broker session releases that failed",
			},
		),
		PersistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "persist_failures_total",
				Help:      "Total number of failed local persistence writes",
			},
		),
		Faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recovery",
				Name:      "faults_total",
				Help:      "Total number of faults caught per recovery tier",
			},
			[]string{"tier"},
		),
		Restarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recovery",
				Name:      "restarts_total",
				Help:      "Total number of whole-runtime restarts",
			},
		),
		AssociationPolls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "network",
				Name:      "association_polls_total",
				Help:      "Total number of association status polls",
			},
		),
		ConnectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "network",
				Name:      "connection_state",
				Help:      "Current connection state (0=disconnected, 1=connecting, 2=connected, 3=failed)",
			},
		),
		OccupancyChanges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "occupancy_changes_total",
				Help:      "Total number of debounced occupancy changes",
			},
		),
		PowerCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recovery",
				Name:      "power_cycles_total",
				Help:      "Total number of power-cycle signals asserted",
			},
		),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.SensorReadFailures,
		m.FieldsPublished,
		m.PublishFailures,
		m.ReleaseFailures,
		m.PersistFailures,
		m.Faults,
		m.Restarts,
		m.AssociationPolls,
		m.ConnectionState,
		m.OccupancyChanges,
		m.PowerCycles,
	)

	return m
}
