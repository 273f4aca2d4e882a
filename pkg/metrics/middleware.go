package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	RequestsCollectorName = "statspub_http_requests_total"
	LatencyCollectorName  = "statspub_http_request_duration_seconds"
	InFlightCollectorName = "statspub_http_requests_in_flight"

	unmatchedRoute = "unmatched"
)

// DefaultLatencyBuckets suit the api: most calls are a single row lookup,
// data set queries against parquet take up to a few seconds.
var DefaultLatencyBuckets = []float64{0.01, 0.05, 0.1, 0.3, 1, 3, 10, 30}

// Middleware counts requests and records their latency by route pattern,
// method and status.
type Middleware struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func NewMiddleware(service string, buckets ...float64) *Middleware {
	if len(buckets) == 0 {
		buckets = DefaultLatencyBuckets
	}
	labels := prometheus.Labels{"service": service}

	return &Middleware{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        RequestsCollectorName,
			Help:        "Number of HTTP requests by route, method and status.",
			ConstLabels: labels,
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        LatencyCollectorName,
			Help:        "Time spent serving HTTP requests by route, method and status.",
			ConstLabels: labels,
			Buckets:     buckets,
		}, []string{"route", "method", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        InFlightCollectorName,
			Help:        "Number of HTTP requests being served.",
			ConstLabels: labels,
		}),
	}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// the pattern, not the path, keeps release ids out of the labels
		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(ww.Status())
		m.requests.WithLabelValues(route, r.Method, status).Inc()
		m.latency.WithLabelValues(route, r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// Register adds the collectors to reg. Collectors that are already
// registered are reused, so a second server in the process does not fail.
func (m *Middleware) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requests, m.latency, m.inFlight} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
