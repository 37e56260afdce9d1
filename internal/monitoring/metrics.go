// Package monitoring exposes Prometheus metrics for the routing gateway.
//
// Metrics:
//   - greenroute_requests_total: HTTP requests by route and status class
//   - greenroute_cache_hits_total / greenroute_cache_misses_total
//   - greenroute_suggestions_total: switch suggestions by direction
//   - greenroute_complexity_score: distribution of scored complexity levels
//   - greenroute_scoring_defaults_total: scorer fail-open fallbacks
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "greenroute"

// Metrics holds all gateway metrics and their registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	suggestionsTotal *prometheus.CounterVec
	complexityScore  prometheus.Histogram
	scoringDefaults  prometheus.Counter
}

// New creates and registers all gateway metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status class",
		}, []string{"route", "status"}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total semantic cache hits",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total semantic cache misses",
		}),
		suggestionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_total",
			Help:      "Total switch suggestions by direction",
		}, []string{"direction"}),
		complexityScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "complexity_score",
			Help:      "Distribution of scored complexity levels",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		scoringDefaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_defaults_total",
			Help:      "Times the scorer fell back to the neutral default",
		}),
	}

	registry.MustRegister(m.requestsTotal, m.cacheHitsTotal, m.cacheMissesTotal,
		m.suggestionsTotal, m.complexityScore, m.scoringDefaults)
	return m
}

// ObserveRequest counts one handled HTTP request.
func (m *Metrics) ObserveRequest(route, statusClass string) {
	m.requestsTotal.WithLabelValues(route, statusClass).Inc()
}

// ObserveCache counts one cache lookup outcome.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.cacheHitsTotal.Inc()
	} else {
		m.cacheMissesTotal.Inc()
	}
}

// ObserveSuggestion counts one switch suggestion.
func (m *Metrics) ObserveSuggestion(direction string) {
	m.suggestionsTotal.WithLabelValues(direction).Inc()
}

// ObserveScore records one scored complexity level.
func (m *Metrics) ObserveScore(level int, defaulted bool) {
	m.complexityScore.Observe(float64(level))
	if defaulted {
		m.scoringDefaults.Inc()
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
