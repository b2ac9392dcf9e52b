package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP and ledger collectors on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	earned    *prometheus.CounterVec
	spends    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "points",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests segmented by route, method and status code.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "points",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		earned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "points",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Recorded transactions segmented by sign (earn or adjust).",
		}, []string{"kind"}),
		spends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "points",
			Subsystem: "ledger",
			Name:      "spends_total",
			Help:      "Spend requests segmented by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.requests, m.durations, m.earned, m.spends)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by chi route pattern, so
// /points/user/1 and /points/user/2 share a series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := routePattern(r)
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observeTransaction(points int64) {
	if m == nil {
		return
	}
	kind := "earn"
	if points < 0 {
		kind = "adjust"
	}
	m.earned.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeSpend(status int) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case status == http.StatusTeapot:
		outcome = "insufficient"
	case status >= 500:
		outcome = "error"
	case status >= 400:
		outcome = "rejected"
	}
	m.spends.WithLabelValues(outcome).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
