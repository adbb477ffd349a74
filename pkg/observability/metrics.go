package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
//
// The Record*/Observe* helpers are safe to call on a nil *Metrics so that
// components can be built without a registry in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Gate metrics
	GateDecisionsTotal *prometheus.CounterVec

	// Role resolution metrics
	RoleFetchTotal      *prometheus.CounterVec
	RoleFetchDuration   prometheus.Histogram
	RoleCacheEvents     *prometheus.CounterVec
	RoleMutationsTotal  *prometheus.CounterVec

	// Session metrics
	AuthEventsTotal *prometheus.CounterVec

	// Draft bet metrics
	DraftOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerline_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wagerline_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerline_gate_decisions_total",
				Help: "Access decisions taken by the session/role gate",
			},
			[]string{"state", "action"},
		),

		RoleFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerline_role_fetch_total",
				Help: "Role lookups against the data store",
			},
			[]string{"outcome"},
		),
		RoleFetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wagerline_role_fetch_duration_seconds",
				Help:    "Role lookup duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		RoleCacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerline_role_cache_events_total",
				Help: "Role memo and cache hits, misses and invalidations",
			},
			[]string{"layer", "event"},
		),
		RoleMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerline_role_mutations_total",
				Help: "Administrative role mutations",
			},
			[]string{"operation", "status"},
		),

		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerline_auth_events_total",
				Help: "Sign-in, sign-out and refresh events",
			},
			[]string{"event", "status"},
		),

		DraftOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerline_draft_operations_total",
				Help: "Draft bet store operations",
			},
			[]string{"operation", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GateDecisionsTotal,
		m.RoleFetchTotal,
		m.RoleFetchDuration,
		m.RoleCacheEvents,
		m.RoleMutationsTotal,
		m.AuthEventsTotal,
		m.DraftOperationsTotal,
	)

	return m
}

// RecordGateDecision counts one gate decision
func (m *Metrics) RecordGateDecision(state, action string) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(state, action).Inc()
}

// ObserveRoleFetch records the outcome and latency of one store lookup
func (m *Metrics) ObserveRoleFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RoleFetchTotal.WithLabelValues(outcome).Inc()
	m.RoleFetchDuration.Observe(d.Seconds())
}

// RecordRoleCache counts a memo or cache event (hit, miss, invalidate)
func (m *Metrics) RecordRoleCache(layer, event string) {
	if m == nil {
		return
	}
	m.RoleCacheEvents.WithLabelValues(layer, event).Inc()
}

// RecordRoleMutation counts an administrative role mutation
func (m *Metrics) RecordRoleMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.RoleMutationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
}

// RecordAuthEvent counts a session event
func (m *Metrics) RecordAuthEvent(event string, err error) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(event, statusLabel(err)).Inc()
}

// RecordDraftOperation counts a draft bet store operation
func (m *Metrics) RecordDraftOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.DraftOperationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := RouteLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RouteLabel returns a bounded-cardinality label for a request: the mux
// path template when one matched, otherwise the first path segment.
func RouteLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return "/" + path
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
