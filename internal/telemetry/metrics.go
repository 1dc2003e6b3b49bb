// Package telemetry exposes the gateway's Prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scoregate"

// Metrics holds every collector the gateway reports. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	items         *prometheus.CounterVec
	itemDuration  *prometheus.HistogramVec
	cacheRequests *prometheus.CounterVec
	verdicts      *prometheus.CounterVec
	clusterBuilds prometheus.Counter
	clusterTime   prometheus.Histogram
}

// New registers the gateway collectors plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Queue items processed, by queue and outcome.",
		}, []string{"queue", "outcome"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_duration_seconds",
			Help:      "Wall time spent on one queue item.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"queue"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups, by cache and result.",
		}, []string{"cache", "result"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Verdicts written, by check and result.",
		}, []string{"check", "result"}),
		clusterBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_builds_total",
			Help:      "Clustering fits completed.",
		}),
		clusterTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cluster_build_seconds",
			Help:      "Wall time of one clustering fit.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 3, 10),
		}),
	}
	m.registry.MustRegister(
		m.items, m.itemDuration, m.cacheRequests, m.verdicts, m.clusterBuilds, m.clusterTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CacheRequest implements cache.Recorder.
func (m *Metrics) CacheRequest(cache, result string) {
	m.cacheRequests.WithLabelValues(cache, result).Inc()
}

// ItemProcessed records one queue item.
func (m *Metrics) ItemProcessed(queue, outcome string, elapsed time.Duration) {
	m.items.WithLabelValues(queue, outcome).Inc()
	m.itemDuration.WithLabelValues(queue).Observe(elapsed.Seconds())
}

// Verdict records one written verdict.
func (m *Metrics) Verdict(check string, passed bool) {
	result := "fail"
	if passed {
		result = "pass"
	}
	m.verdicts.WithLabelValues(check, result).Inc()
}

// ClusterBuilt records one clustering fit.
func (m *Metrics) ClusterBuilt(elapsed time.Duration) {
	m.clusterBuilds.Inc()
	m.clusterTime.Observe(elapsed.Seconds())
}
