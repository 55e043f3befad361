// Package metrics provides Prometheus metrics for the server and proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	RequestsInFlight    prometheus.Gauge
	ConnectionsRejected *prometheus.CounterVec

	UpstreamDuration *prometheus.HistogramVec
	UpstreamReplies  *prometheus.CounterVec
	ProxyRetries     *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_lite_requests_total",
			Help: "Total handled requests by reply status group.",
		}, []string{"status_group"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gemini_lite_request_duration_seconds",
			Help:    "Request handling latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"status_group"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemini_lite_requests_in_flight",
			Help: "Number of requests currently being handled.",
		}),

		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_lite_connections_rejected_total",
			Help: "Connections answered without reaching a handler.",
		}, []string{"reason"}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gemini_lite_upstream_request_duration_seconds",
			Help:    "Outbound round trip latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"outcome"}),

		UpstreamReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_lite_upstream_replies_total",
			Help: "Outbound replies by status group.",
		}, []string{"status_group"}),

		ProxyRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_lite_proxy_retries_total",
			Help: "Proxy loop iterations caused by redirects and slow-downs.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.ConnectionsRejected,
		m.UpstreamDuration,
		m.UpstreamReplies,
		m.ProxyRetries,
	)

	return m
}

var statusGroups = [...]string{"", "1x", "2x", "3x", "4x", "5x"}

// NormalizeStatus returns a bounded status label: "1x" through "5x", or
// "other" for anything outside the defined groups.
func NormalizeStatus(status int) string {
	if status < 10 || status > 59 {
		return "other"
	}
	return statusGroups[status/10]
}
