// Package metrics exposes Prometheus collectors for the storefront client and dev backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder groups the collectors. A nil *Recorder records nothing.
type Recorder struct {
	apiRequests  *prometheus.CounterVec
	apiDuration  *prometheus.HistogramVec
	operations   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		apiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_api_requests_total",
				Help: "Total number of backend API calls made by the client",
			},
			[]string{"operation", "outcome"},
		),
		apiDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_api_request_duration_seconds",
				Help:    "Duration of backend API calls made by the client",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_operations_total",
				Help: "Total number of cart and order operations",
			},
			[]string{"operation", "status"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_backend_http_requests_total",
				Help: "Total number of HTTP requests served by the dev backend",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_backend_http_request_duration_seconds",
				Help:    "Duration of HTTP requests served by the dev backend",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path", "status"},
		),
	}
}

// ObserveAPICall records one client call to the backend
func (r *Recorder) ObserveAPICall(operation, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.apiRequests.WithLabelValues(operation, outcome).Inc()
	r.apiDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordOperation records the result of a cart or order operation
func (r *Recorder) RecordOperation(operation string, success bool) {
	if r == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	r.operations.WithLabelValues(operation, status).Inc()
}

// Middleware collects request metrics keyed by the chi route pattern
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		path := req.URL.Path
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{req.Method, path, strconv.Itoa(status)}

		r.httpRequests.WithLabelValues(labels...).Inc()
		r.httpDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}
