// Package metrics exposes Prometheus instrumentation for the privacy engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raaihank/prompt-shield/internal/privacy"
)

const namespace = "prompt_shield"

// Metrics holds the collectors of one registry. Only categories and
// counts are recorded, never text.
type Metrics struct {
	registry *prometheus.Registry

	// DetectTotal counts Detect calls. Labels: result (detected, clean)
	DetectTotal *prometheus.CounterVec

	// RedactionsTotal counts replaced values. Labels: category
	RedactionsTotal *prometheus.CounterVec

	// MaskDuration tracks how long masking a request body takes
	MaskDuration prometheus.Histogram

	// EntityRecognizerAvailable is 1 when a model-backed recogniser is loaded
	EntityRecognizerAvailable prometheus.Gauge

	// CacheLookups counts verdict cache lookups. Labels: result (hit, miss)
	CacheLookups *prometheus.CounterVec

	// RateLimited counts requests rejected by the rate limiter
	RateLimited prometheus.Counter

	// HTTPRequests counts API requests. Labels: route, status
	HTTPRequests *prometheus.CounterVec
}

// New creates a Metrics instance on its own registry, including the Go
// runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DetectTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detect_total",
				Help:      "Total number of detect calls by result",
			},
			[]string{"result"},
		),
		RedactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redactions_total",
				Help:      "Total number of masked values by category",
			},
			[]string{"category"},
		),
		MaskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mask_duration_seconds",
				Help:      "Duration of mask operations in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		EntityRecognizerAvailable: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "entity_recognizer_available",
				Help:      "Whether a model-backed entity recognizer is loaded (1) or not (0)",
			},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Total number of verdict cache lookups by result",
			},
			[]string{"result"},
		),
		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDetect records a Detect verdict
func (m *Metrics) ObserveDetect(detected bool) {
	result := "clean"
	if detected {
		result = "detected"
	}
	m.DetectTotal.WithLabelValues(result).Inc()
}

// ObserveRedaction records a Redact result and how long it took
func (m *Metrics) ObserveRedaction(res privacy.Result, took time.Duration) {
	m.ObserveDetect(res.Detected)
	m.MaskDuration.Observe(took.Seconds())
	for _, f := range res.Findings {
		m.RedactionsTotal.WithLabelValues(string(f.Category)).Add(float64(f.Count))
	}
}

// ObserveCacheLookup records a verdict cache hit or miss
func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// SetEntityRecognizer records whether a real recogniser is active
func (m *Metrics) SetEntityRecognizer(name string) {
	if name == (privacy.NoopRecognizer{}).Name() {
		m.EntityRecognizerAvailable.Set(0)
		return
	}
	m.EntityRecognizerAvailable.Set(1)
}
