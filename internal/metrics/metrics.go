// Package metrics provides Prometheus instrumentation for the market.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts marketplace operations by kind and outcome.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gts_operations_total",
		Help: "Marketplace operations by kind and outcome",
	}, []string{"op", "outcome"})

	// StorageLatency tracks durable write/read latency per operation.
	StorageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gts_storage_latency_seconds",
		Help:    "Storage operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "op", "result"})

	// StorageQueueDepth is the number of storage jobs waiting for a worker.
	StorageQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gts_storage_queue_depth",
		Help: "Storage jobs waiting for a worker",
	})

	// ActiveListings tracks the number of listings held in memory.
	ActiveListings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gts_active_listings",
		Help: "Number of listings currently on the market",
	})

	// HeldDeliveries counts deliveries that fell back to the held queue.
	HeldDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gts_held_deliveries_total",
		Help: "Entries or payments queued for later delivery",
	}, []string{"kind"})

	// Rollbacks counts in-memory writes undone after a durable failure.
	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gts_cache_rollbacks_total",
		Help: "In-memory writes rolled back after durable failure",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gts_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gts_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gts_http_request_duration_seconds",
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

		// Route pattern keeps the label set bounded.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
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
