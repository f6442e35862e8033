// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Configure pass outcomes.
const (
	OutcomeConfigured = "configured"
	OutcomeIncomplete = "incomplete"
	OutcomeFailed     = "failed"
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	ForwardedRequests *prometheus.CounterVec
	EngineRoutes      *prometheus.GaugeVec

	RouteConfigures        *prometheus.CounterVec
	RouteOperationFailures *prometheus.CounterVec
	OwnedRoutes            *prometheus.GaugeVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_http_admin_requests_total",
			Help: "Total admin API requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proxy_http_admin_request_duration_seconds",
			Help:    "Admin API request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_http_admin_requests_in_flight",
			Help: "Number of admin API requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proxy_http_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds by target host.",
			Buckets: defaultBuckets,
		}, []string{"host"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_http_upstream_responses_total",
			Help: "Upstream calls by target host, method and status code; failed calls count as status \"error\".",
		}, []string{"host", "method", "status_code"}),

		ForwardedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_http_forwarded_requests_total",
			Help: "Requests received on route listeners by listener address and returned status code.",
		}, []string{"listener", "status_code"}),

		EngineRoutes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_http_engine_routes",
			Help: "Routes registered in the routing engine by status.",
		}, []string{"status"}),

		RouteConfigures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_http_route_configure_total",
			Help: "Route configure passes by proxy and outcome.",
		}, []string{"proxy", "outcome"}),

		RouteOperationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_http_route_operation_failures_total",
			Help: "Failed engine operations during route sweeps.",
		}, []string{"op"}),

		OwnedRoutes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_http_owned_routes",
			Help: "Routes currently owned by each proxy instance.",
		}, []string{"proxy"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.ForwardedRequests,
		m.EngineRoutes,
		m.RouteConfigures,
		m.RouteOperationFailures,
		m.OwnedRoutes,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{"/healthz", "/proxy/status", "/proxies", "/routes", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
