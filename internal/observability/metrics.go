package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application: the HTTP surface
// plus the workflow/notification/realtime engine counters.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	transitionsTotal   *prometheus.CounterVec
	notificationsTotal prometheus.Counter
	liveSessions       prometheus.Gauge
	droppedEvents      prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atelier_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_transitions_total",
		Help: "Work item transition attempts by kind and result.",
	}, []string{"kind", "result"})
	notifications := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atelier_notifications_total",
		Help: "Notifications persisted by the fan-out engine.",
	})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atelier_realtime_sessions",
		Help: "Currently connected realtime sessions.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atelier_realtime_dropped_events_total",
		Help: "Events dropped from full per-session outbound queues.",
	})
	registry.MustRegister(requests, duration, transitions, notifications, sessions, dropped)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		transitionsTotal:   transitions,
		notificationsTotal: notifications,
		liveSessions:       sessions,
		droppedEvents:      dropped,
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

// ObserveTransition counts one transition attempt.
func (m *Metrics) ObserveTransition(kind, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(kind, result).Inc()
}

// NotificationCreated counts one persisted notification.
func (m *Metrics) NotificationCreated() {
	if m == nil {
		return
	}
	m.notificationsTotal.Inc()
}

// SessionOpened tracks a new realtime session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.liveSessions.Inc()
}

// SessionClosed tracks a torn-down realtime session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.liveSessions.Dec()
}

// EventDropped counts one event dropped from a full session queue.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
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
