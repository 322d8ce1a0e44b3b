package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type requestIDKey struct{}

// WithRequestID stamps every inbound request with a fresh UUID, echoed
// back as X-Request-Id and threaded through the handler's context so
// downstream log lines can be correlated to one HTTP call, the same
// correlation id role uuid.UUID plays for a batch moving through the
// teacher's anchoring pipeline.
func WithRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next(w, r.WithContext(ctx))
	}
}

// RequestID returns the id WithRequestID stamped on ctx, or "" if none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Metrics holds the Prometheus collectors the HTTP surface reports,
// one counter/histogram pair per route rather than per concrete
// handler func, so /v1/proof_chain/* and the source-network variant
// both land in the same series family.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	registry *prometheus.Registry
}

// NewMetrics builds a private registry rather than registering against
// prometheus.DefaultRegisterer, so a second Store or server in the same
// process (tests, multi-pair uploaders) never collides on collector
// names.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tonproof",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of HTTP requests served, by route and status code.",
		}, []string{"route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tonproof",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		registry: reg,
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// Handler exposes the registry at the conventional /metrics path.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Instrument wraps next, recording its outcome under route — the
// pattern string the caller registered it with, not the raw request
// path, so per-account proof-chain requests aggregate into one series.
func (m *Metrics) Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
