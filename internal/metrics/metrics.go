// Package metrics provides the Prometheus registry and HTTP
// instrumentation middleware shared by the federated search server.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "argus"

// Registry wraps a prometheus.Registry with the counters this server
// populates: inbound HTTP request latency/status, and per-system search
// outcomes recorded by the coordinator.
type Registry struct {
	reg *prometheus.Registry

	httpRequests *prometheus.HistogramVec
	httpInflight prometheus.Gauge
	searchTotals *prometheus.CounterVec
}

// New creates a Registry with the default Go/process collectors and
// this server's own metric families already registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		collectors.NewBuildInfoCollector(),
	)

	httpRequests := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests",
			Help:      "HTTP request latencies by method, path, and status.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)
	httpInflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight",
		Help:      "Current number of in-flight inbound HTTP requests.",
	})
	searchTotals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "system_results_total",
			Help:      "Counts of per-system search outcomes by result.",
		},
		[]string{"system", "result"},
	)
	reg.MustRegister(httpRequests, httpInflight, searchTotals)

	return &Registry{reg: reg, httpRequests: httpRequests, httpInflight: httpInflight, searchTotals: searchTotals}
}

// RecordSystemResult increments the counter for one system's search
// outcome: "success", "failed", or "timeout".
func (r *Registry) RecordSystemResult(systemID, result string) {
	r.searchTotals.WithLabelValues(systemID, result).Inc()
}

// Handler returns the /metrics scrape endpoint for this registry.
func (r *Registry) Handler() http.Handler {
	return promHandler(r.reg)
}

// Instrument wraps next with request latency, status, and in-flight
// gauge instrumentation, keyed by the chi route pattern rather than the
// raw path so templated routes (e.g. /search/{searchId}) don't create
// unbounded label cardinality.
func (r *Registry) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		r.httpInflight.Inc()
		defer r.httpInflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		pattern := chiRoutePattern(req)
		r.httpRequests.WithLabelValues(req.Method, pattern, fmt.Sprint(ww.Status())).Observe(time.Since(start).Seconds())
	})
}

// chiRoutePattern returns the matched chi route pattern (e.g.
// "/search/{searchId}"), falling back to the raw path when chi hasn't
// populated a route context (e.g. for a 404 on an unmatched path).
func chiRoutePattern(req *http.Request) string {
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return req.URL.Path
}

func promHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
