// Package metrics provides Prometheus instrumentation for the signal monitor.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts monitor ticks by outcome.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalmon_ticks_total",
		Help: "Monitor ticks by result (ok, overlap, price_error, store_error)",
	}, []string{"result"})

	// TickDuration tracks how long a full tick takes.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalmon_tick_duration_seconds",
		Help:    "Monitor tick duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
	})

	// Candidates is the number of PENDING/OPEN signals seen by the last tick.
	Candidates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalmon_candidates",
		Help: "PENDING or OPEN signals evaluated in the last tick",
	})

	// LifecycleEvents counts emitted lifecycle events by kind.
	LifecycleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalmon_lifecycle_events_total",
		Help: "Lifecycle events emitted by the engine",
	}, []string{"kind"})

	// UpdateFailures counts per-signal persistence failures by reason.
	UpdateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalmon_update_failures_total",
		Help: "Signal updates aborted for the current tick",
	}, []string{"reason"})

	// PriceRequests counts provider requests by result.
	PriceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalmon_price_requests_total",
		Help: "Price provider requests by result",
	}, []string{"result"})

	// PriceCache counts cache lookups by result (hit, miss).
	PriceCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalmon_price_cache_total",
		Help: "Price cache lookups",
	}, []string{"result"})

	// APIKeysAvailable tracks the size of the provider key pool.
	APIKeysAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalmon_api_keys_available",
		Help: "Provider API keys still in rotation",
	})

	// APIKeysExcluded counts keys removed after 403/429 responses.
	APIKeysExcluded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalmon_api_keys_excluded_total",
		Help: "Provider API keys permanently removed from rotation",
	})

	// Notifications counts channel sends by channel type and result.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalmon_notifications_total",
		Help: "Notification sends by channel type and result",
	}, []string{"channel", "result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalmon_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalmon_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalmon_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
