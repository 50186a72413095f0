package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TransportMetrics contains Prometheus metrics for broker sessions.
type TransportMetrics struct {
	MessagesPublished *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
	PublishDuration   *prometheus.HistogramVec
	ConnectAttempts   *prometheus.CounterVec
	ConnectFailures   *prometheus.CounterVec
	SessionOpen       *prometheus.GaugeVec
}

// NewTransportMetrics creates transport metrics and registers them with the global registry.
func NewTransportMetrics(namespace string) *TransportMetrics {
	return NewTransportMetricsFor(Registry, namespace)
}

// NewTransportMetricsFor creates transport metrics and registers them with reg.
func NewTransportMetricsFor(reg prometheus.Registerer, namespace string) *TransportMetrics {
	m := &TransportMetrics{
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "messages_published_total",
				Help:      "Total number of messages published to the broker",
			},
			[]string{"transport"}, // transport: mqtt, amqp
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "publish_failures_total",
				Help:      "Total number of failed publishes",
			},
			[]string{"transport", "reason"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "publish_duration_seconds",
				Help:      "Duration of publish operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"transport"},
		),
		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "connect_attempts_total",
				Help:      "Total number of broker session open attempts",
			},
			[]string{"transport"},
		),
		ConnectFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "connect_failures_total",
				Help:      "Total number of failed broker session opens",
			},
			[]string{"transport"},
		),
		SessionOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "session_open",
				Help:      "Broker session status (1=open, 0=closed)",
			},
			[]string{"transport"},
		),
	}

	reg.MustRegister(
		m.MessagesPublished,
		m.PublishFailures,
		m.PublishDuration,
		m.ConnectAttempts,
		m.ConnectFailures,
		m.SessionOpen,
	)

	return m
}
