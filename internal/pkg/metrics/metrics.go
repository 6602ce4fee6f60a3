/*
Package metrics exposes the Prometheus collectors of the service and an HTTP
middleware that records request rate, errors and latency per chi route pattern.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cycleconnect"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_request_errors_total", Help: "Total HTTP requests answered with 4xx or 5xx"},
		[]string{"method", "path", "status", "error_type"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HubConnections = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "hub_connections", Help: "Open realtime connections"})
	HubRooms       = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "hub_rooms", Help: "Active ride rooms"})
	HubEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "hub_events_total", Help: "Inbound realtime events by name"},
		[]string{"event"},
	)
	HubDroppedFrames  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "hub_dropped_frames_total", Help: "Frames dropped for slow consumers"})
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_persisted_total", Help: "Chat messages stored"})

	RideJoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_joins_total", Help: "Ride join attempts by outcome"},
		[]string{"outcome"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled with the matched route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		statusStr := strconv.Itoa(status)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusStr).Inc()
		switch {
		case status >= 500:
			HTTPRequestErrorsTotal.WithLabelValues(r.Method, path, statusStr, "server").Inc()
		case status >= 400:
			HTTPRequestErrorsTotal.WithLabelValues(r.Method, path, statusStr, "client").Inc()
		}
		HTTPRequestDuration.WithLabelValues(r.Method, path, statusStr).Observe(time.Since(start).Seconds())
	})
}
