// Package metrics provides Prometheus metrics for the activity assistant.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter collects counters for the retrieval and refinement pipeline.
type Exporter struct {
	registry *prometheus.Registry

	// Embedding cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Provider metrics
	providerCalls    *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec

	// Session metrics
	refinementRounds     prometheus.Counter
	validatorCorrections prometheus.Counter
	validatorRejections  prometheus.Counter
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates a new metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ia4edu",
		Subsystem: "embedding_cache",
		Name:      "hits_total",
		Help:      "Embedding cache hits by model.",
	}, []string{"model"})

	e.cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ia4edu",
		Subsystem: "embedding_cache",
		Name:      "misses_total",
		Help:      "Embedding cache misses by model.",
	}, []string{"model"})

	e.providerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ia4edu",
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "External provider calls by kind (embedding, generation).",
	}, []string{"kind"})

	e.providerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ia4edu",
		Subsystem: "provider",
		Name:      "failures_total",
		Help:      "External provider failures by kind.",
	}, []string{"kind"})

	e.providerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ia4edu",
		Subsystem: "provider",
		Name:      "latency_seconds",
		Help:      "External provider call latency by kind.",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"kind"})

	e.refinementRounds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ia4edu",
		Subsystem: "session",
		Name:      "refinement_rounds_total",
		Help:      "Refinement rounds across all sessions.",
	})

	e.validatorCorrections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ia4edu",
		Subsystem: "session",
		Name:      "validator_corrections_total",
		Help:      "Draft violations mechanically corrected by the validator.",
	})

	e.validatorRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ia4edu",
		Subsystem: "session",
		Name:      "validator_rejections_total",
		Help:      "Candidate drafts rejected in favor of the previous valid draft.",
	})

	registry.MustRegister(
		e.cacheHits,
		e.cacheMisses,
		e.providerCalls,
		e.providerFailures,
		e.providerLatency,
		e.refinementRounds,
		e.validatorCorrections,
		e.validatorRejections,
	)

	return e
}

// Registry returns the underlying registry for test scraping or an exporter
// endpoint.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) RecordCacheHit(model string)  { e.cacheHits.WithLabelValues(model).Inc() }
func (e *Exporter) RecordCacheMiss(model string) { e.cacheMisses.WithLabelValues(model).Inc() }

func (e *Exporter) RecordProviderCall(kind string, seconds float64) {
	e.providerCalls.WithLabelValues(kind).Inc()
	e.providerLatency.WithLabelValues(kind).Observe(seconds)
}

func (e *Exporter) RecordProviderFailure(kind string) {
	e.providerFailures.WithLabelValues(kind).Inc()
}

func (e *Exporter) RecordRefinementRound()     { e.refinementRounds.Inc() }
func (e *Exporter) RecordValidatorCorrection() { e.validatorCorrections.Inc() }
func (e *Exporter) RecordValidatorRejection()  { e.validatorRejections.Inc() }
