package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream outcomes recorded by the proxy.
const (
	OutcomeCompleted    = "completed"
	OutcomeClientClosed = "client_closed"
	OutcomeBackendError = "backend_error"
	OutcomeRejected     = "rejected"
	OutcomeUnreachable  = "unreachable"
)

// Metrics holds all application metrics
type Metrics struct {
	// Stream proxy metrics
	StreamsActive       prometheus.Gauge
	StreamsTotal        *prometheus.CounterVec
	StreamBytesRelayed  prometheus.Counter
	BackendConnectDelay prometheus.Histogram

	// Notification client metrics
	ClientReconnects   prometheus.Counter
	ClientEvents       *prometheus.CounterVec
	ClientDecodeErrors prometheus.Counter
	ClientMutations    *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg. A nil reg
// registers on the default registry.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		StreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "streams_active",
			Help:      "Current number of relayed notification streams",
		}),
		StreamsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "streams_total",
			Help:      "Total number of stream proxy requests by outcome",
		}, []string{"outcome"}),
		StreamBytesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stream_bytes_relayed_total",
			Help:      "Total number of bytes relayed from the backend stream",
		}),
		BackendConnectDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backend_connect_duration_seconds",
			Help:      "Time until the backend stream returned response headers",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),

		ClientReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "client_reconnect_attempts_total",
			Help:      "Total number of automatic reconnect attempts",
		}),
		ClientEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "client_events_total",
			Help:      "Total number of stream events applied by the client",
		}, []string{"event"}),
		ClientDecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "client_decode_errors_total",
			Help:      "Total number of stream events that failed to decode",
		}),
		ClientMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "client_mutations_total",
			Help:      "Total number of mark-read mutations by action and status",
		}, []string{"action", "status"}),
	}
}

// NewNop returns metrics registered on a throwaway registry, for tests and
// components that run without an exporter.
func NewNop() *Metrics {
	return NewMetrics("", "", prometheus.NewRegistry())
}
