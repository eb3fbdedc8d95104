// Package metrics exposes Prometheus collectors for the stock service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/stock-ledger/pkg/httputil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medflow_stock"

// Operation results used as label values
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the service collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal *prometheus.CounterVec
	unitsTotal      *prometheus.CounterVec
	lockWaitSeconds prometheus.Histogram
	expiringLots    *prometheus.GaugeVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Ledger operations by kind and result.",
			},
			[]string{"operation", "result", "code"},
		),
		unitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_total",
				Help:      "Units moved through the ledger by direction.",
			},
			[]string{"type"},
		),
		lockWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for a per-barcode writer lock.",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		expiringLots: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "expiring_lots",
				Help:      "Lots with stock found by the last expiry scan.",
			},
			[]string{"state"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route and status.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		m.operationsTotal,
		m.unitsTotal,
		m.lockWaitSeconds,
		m.expiringLots,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation counts one ledger operation. code is empty on success.
func (m *Metrics) ObserveOperation(operation, code string) {
	if m == nil {
		return
	}
	result := ResultOK
	if code != "" {
		result = ResultError
	}
	m.operationsTotal.WithLabelValues(operation, result, code).Inc()
}

// AddUnits counts units received ("IN") or dispensed ("OUT")
func (m *Metrics) AddUnits(movementType string, qty int) {
	if m == nil || qty <= 0 {
		return
	}
	m.unitsTotal.WithLabelValues(movementType).Add(float64(qty))
}

// ObserveLockWait records how long a writer waited for its lock
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitSeconds.Observe(d.Seconds())
}

// SetExpiringLots records the outcome of an expiry scan
func (m *Metrics) SetExpiringLots(nearExpiry, expired int) {
	if m == nil {
		return
	}
	m.expiringLots.WithLabelValues("near_expiry").Set(float64(nearExpiry))
	m.expiringLots.WithLabelValues("expired").Set(float64(expired))
}

// Middleware records request latency labelled by the matched chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := httputil.WrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.requestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(wrapped.Status())).
			Observe(time.Since(start).Seconds())
	})
}
