// Package metrics exposes Prometheus collectors for the identification proxy.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector served on /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		IdentifyTotal, IdentifyDuration, UpstreamDuration, RateLimitedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Identification outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeEmpty       = "empty"
	OutcomeInvalid     = "invalid_input"
	OutcomeConfigError = "config_error"
	OutcomeFailed      = "upstream_error"
)

var IdentifyTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plantid_identify_requests_total",
		Help: "Identification requests by outcome.",
	},
	[]string{"outcome"},
)

var IdentifyDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "plantid_identify_duration_seconds",
		Help:    "End to end identification latency.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	},
)

// UpstreamDuration is labelled by service (upload, search) and status (ok, error).
var UpstreamDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "plantid_upstream_duration_seconds",
		Help:    "Latency of calls to the upload host and the search provider.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	},
	[]string{"service", "status"},
)

var RateLimitedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "plantid_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	},
)

// ObserveIdentify records one finished identification.
func ObserveIdentify(outcome string, started time.Time) {
	IdentifyTotal.WithLabelValues(outcome).Inc()
	IdentifyDuration.Observe(time.Since(started).Seconds())
}

// ObserveUpstream records one upstream call.
func ObserveUpstream(service string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	UpstreamDuration.WithLabelValues(service, status).Observe(time.Since(started).Seconds())
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
