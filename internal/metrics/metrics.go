// Package metrics exposes Prometheus collectors for the synthesis pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voxcache"

// Sources of a served request.
const (
	SourceCache    = "cache"
	SourceCloud    = "cloud"
	SourceFallback = "fallback"
	SourceError    = "error"
)

// Metrics holds the pipeline collectors on a dedicated registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	persistFailures prometheus.Counter
	stageDuration   *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of resolved requests by source",
			},
			[]string{"source"}, // cache, cloud, fallback, error
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of cache lookups by result",
			},
			[]string{"result"}, // hit, miss, stale
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Total number of offline fallbacks by reason",
			},
			[]string{"reason"},
		),
		persistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persist_failures_total",
				Help:      "Total number of failed cache snapshot writes",
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synthesis_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"}, // cloud, convert, offline, total
		),
	}

	m.registry.MustRegister(
		m.requests,
		m.cacheLookups,
		m.fallbacks,
		m.persistFailures,
		m.stageDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Request counts a resolved request.
func (m *Metrics) Request(source string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(source).Inc()
}

// CacheLookup counts a lookup result: hit, miss or stale.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Fallback counts a switch to offline synthesis.
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// PersistFailure counts a failed snapshot write. Its signature matches
// cache.WithPersistErrorHook.
func (m *Metrics) PersistFailure(error) {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
