package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors of the scraper.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PagesFetched        *prometheus.CounterVec
	FetchErrors         *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec
	UpsertOutcomes      *prometheus.CounterVec
	RateLimitDenials    *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	ActiveWorkers       prometheus.Gauge
}

// New registers the collectors on reg (use prometheus.DefaultRegisterer in main).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served by the ops endpoint.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests served by the ops endpoint.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		PagesFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_fetched_total",
				Help: "Pages fetched per source and render mode.",
			},
			[]string{"source", "mode"},
		),
		FetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_fetch_errors_total",
				Help: "Fetch failures per source and error code.",
			},
			[]string{"source", "code"}, // fetch_timeout, fetch_blocked, fetch_http_404, ...
		),
		FetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_fetch_duration_seconds",
				Help:    "Latency of successful fetches.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"source", "mode"},
		),
		UpsertOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_upserts_total",
				Help: "Upsert outcomes per source.",
			},
			[]string{"source", "outcome"},
		),
		RateLimitDenials: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_rate_limit_denials_total",
				Help: "Acquire calls that could not be granted before their deadline.",
			},
			[]string{"source"},
		),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_run_duration_seconds",
				Help:    "Duration of scraper runs.",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"source", "status"},
		),
		ActiveWorkers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of per-source workers currently running.",
			},
		),
	}
}

func (m *Metrics) PageFetched(source, mode string, seconds float64) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(source, mode).Inc()
	m.FetchDuration.WithLabelValues(source, mode).Observe(seconds)
}

func (m *Metrics) FetchError(source, code string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(source, code).Inc()
}

func (m *Metrics) Upsert(source, outcome string) {
	if m == nil {
		return
	}
	m.UpsertOutcomes.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RateDenied(source string) {
	if m == nil {
		return
	}
	m.RateLimitDenials.WithLabelValues(source).Inc()
}

func (m *Metrics) RunFinished(source, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(source, status).Observe(seconds)
}

func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Inc()
}

func (m *Metrics) WorkerStopped() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Dec()
}

func (m *Metrics) ObserveHTTP(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}
