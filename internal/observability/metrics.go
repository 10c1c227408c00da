package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/odyssey-erp/odyssey-admin/internal/jobs"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	denials         *prometheus.CounterVec
	throttles       *prometheus.CounterVec
	rotations       *prometheus.CounterVec
	policies        prometheus.Gauge
	jobs            *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry, metrik HTTP, metrik otorisasi dan metrik job.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_authz_denials_total",
		Help: "Jumlah penolakan otorisasi per kode permission.",
	}, []string{"code"})
	throttles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ratelimit_throttled_total",
		Help: "Jumlah permintaan yang dibatasi per route.",
	}, []string{"route"})
	rotations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_token_rotations_total",
		Help: "Hasil rotasi refresh token.",
	}, []string{"result"})
	policies := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_authz_policies",
		Help: "Jumlah policy otorisasi yang sudah dibuat.",
	})
	registry.MustRegister(requests, duration, denials, throttles, rotations, policies)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		denials:         denials,
		throttles:       throttles,
		rotations:       rotations,
		policies:        policies,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
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

// RecordDenial menghitung penolakan otorisasi.
func (m *Metrics) RecordDenial(code string) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(code).Inc()
}

// RecordThrottle menghitung permintaan yang terkena rate limit.
func (m *Metrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(route).Inc()
}

// RecordRotation menghitung hasil rotasi refresh token.
func (m *Metrics) RecordRotation(result string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(result).Inc()
}

// SetPolicies memperbarui gauge jumlah policy.
func (m *Metrics) SetPolicies(n int) {
	if m == nil {
		return
	}
	m.policies.Set(float64(n))
}

// Jobs mengekspos metrik job latar belakang.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
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
