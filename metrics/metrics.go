// Package metrics holds the Prometheus collectors of the load-balanced transport.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lbrpc"

// Rebuild reasons.
const (
	ReasonHealthCheck = "health_check"
	ReasonFailover    = "failover"
)

// Request outcomes.
const (
	OutcomeOK              = "ok"
	OutcomeConnection      = "connection"
	OutcomeInvalidResponse = "invalid_response"
	OutcomeTimeout         = "timeout"
)

type Metrics struct {
	// Health monitor
	ValidEndpoints prometheus.Gauge
	EndpointHeight *prometheus.GaugeVec
	HealthChecks   prometheus.Counter
	EngineRebuilds *prometheus.CounterVec

	// Transport
	Failovers *prometheus.CounterVec
	Requests  *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg falls back to the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ValidEndpoints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "valid_endpoints",
			Help:      "Number of endpoints in the valid set",
		}),
		EndpointHeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_block_height",
			Help:      "Last block height reported by an endpoint",
		}, []string{"endpoint"}),
		HealthChecks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Total number of health check cycles",
		}),
		EngineRebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_rebuilds_total",
			Help:      "Selection engine rebuilds by reason",
		}, []string{"reason"}),
		Failovers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failovers_total",
			Help:      "Endpoints removed from the valid set after a failed call",
		}, []string{"endpoint"}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Call attempts by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Call attempt latency by endpoint",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) SetValidEndpoints(n int) {
	if m == nil {
		return
	}
	m.ValidEndpoints.Set(float64(n))
}

func (m *Metrics) SetHeight(endpoint string, height uint64) {
	if m == nil {
		return
	}
	m.EndpointHeight.WithLabelValues(Label(endpoint)).Set(float64(height))
}

func (m *Metrics) IncHealthChecks() {
	if m == nil {
		return
	}
	m.HealthChecks.Inc()
}

func (m *Metrics) IncRebuild(reason string) {
	if m == nil {
		return
	}
	m.EngineRebuilds.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncFailover(endpoint string) {
	if m == nil {
		return
	}
	m.Failovers.WithLabelValues(Label(endpoint)).Inc()
}

// ObserveRequest records one call attempt.
func (m *Metrics) ObserveRequest(endpoint, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	label := Label(endpoint)
	m.Requests.WithLabelValues(label, outcome).Inc()
	m.Latency.WithLabelValues(label).Observe(took.Seconds())
}

// Label strips path, query and credentials from an endpoint URL. Hosted node
// URLs often carry an API key in the path.
func Label(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Scheme + "://" + u.Host
}
