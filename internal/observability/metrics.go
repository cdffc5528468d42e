package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the engine.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	ledgerEntries     *prometheus.CounterVec
	sequenceConflicts prometheus.Counter
	reservationsSwept prometheus.Counter
	stockRejections   prometheus.Counter
}

// NewMetrics initialises the registry and core metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockyard_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockyard_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	ledgerEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockyard_ledger_entries_total",
		Help: "Ledger entries appended, by movement kind.",
	}, []string{"kind"})
	sequenceConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockyard_ledger_sequence_conflicts_total",
		Help: "Sequence collisions retried during ledger append.",
	})
	reservationsSwept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockyard_reservations_expired_total",
		Help: "Reservations expired by the TTL sweep.",
	})
	stockRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockyard_stock_rejections_total",
		Help: "Movements rejected by stock validation.",
	})
	registry.MustRegister(requests, duration, ledgerEntries, sequenceConflicts, reservationsSwept, stockRejections)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		ledgerEntries:     ledgerEntries,
		sequenceConflicts: sequenceConflicts,
		reservationsSwept: reservationsSwept,
		stockRejections:   stockRejections,
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

// Middleware records metrics for every HTTP request.
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

// ObserveLedgerEntry counts one appended entry for the given kind.
func (m *Metrics) ObserveLedgerEntry(kind string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(kind).Inc()
}

// ObserveSequenceConflict counts one retried sequence collision.
func (m *Metrics) ObserveSequenceConflict() {
	if m == nil {
		return
	}
	m.sequenceConflicts.Inc()
}

// ObserveExpiredReservations counts reservations expired by a sweep pass.
func (m *Metrics) ObserveExpiredReservations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reservationsSwept.Add(float64(n))
}

// ObserveStockRejection counts one rejected movement.
func (m *Metrics) ObserveStockRejection() {
	if m == nil {
		return
	}
	m.stockRejections.Inc()
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
