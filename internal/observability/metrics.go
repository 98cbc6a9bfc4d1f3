// Package observability exposes the Prometheus registry, the HTTP metrics
// middleware and the domain counters the lifecycle modules bump.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	awardsTotal          prometheus.Counter
	contractsSignedTotal prometheus.Counter
	lowRatingAlertsTotal prometheus.Counter
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vantage_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	awards := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vantage_rfq_awards_total",
		Help: "RFQ awards recorded.",
	})
	signed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vantage_contracts_signed_total",
		Help: "Contracts marked as signed.",
	})
	alerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vantage_low_rating_alerts_total",
		Help: "Low-rating supplier alerts raised.",
	})
	registry.MustRegister(requests, duration, awards, signed, alerts)
	return &Metrics{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:        requests,
		requestDuration:      duration,
		awardsTotal:          awards,
		contractsSignedTotal: signed,
		lowRatingAlertsTotal: alerts,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// CountAward bumps the RFQ award counter.
func (m *Metrics) CountAward() {
	if m != nil {
		m.awardsTotal.Inc()
	}
}

// CountContractSigned bumps the signed-contract counter.
func (m *Metrics) CountContractSigned() {
	if m != nil {
		m.contractsSignedTotal.Inc()
	}
}

// CountLowRatingAlert bumps the low-rating alert counter.
func (m *Metrics) CountLowRatingAlert() {
	if m != nil {
		m.lowRatingAlertsTotal.Inc()
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
