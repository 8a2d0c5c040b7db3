// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "revelation"

// Metrics groups the service collectors around one registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	rankDuration  *prometheus.HistogramVec
	embedDuration prometheus.Histogram
	requests      *prometheus.CounterVec
	gallerySize   prometheus.Gauge
	galleryLabels prometheus.Gauge
}

// New creates a registry with process and Go runtime collectors plus the
// service collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		Registry: reg,
		rankDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "rank_duration_seconds",
			Help:      "Time spent ranking a query against the gallery",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"mode"}),
		embedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "embed_duration_seconds",
			Help:      "Time spent embedding a query image",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Ranking requests by operation and outcome",
		}, []string{"op", "outcome"}),
		gallerySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "gallery_entries",
			Help:      "Number of entries in the loaded gallery",
		}),
		galleryLabels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "gallery_labels",
			Help:      "Number of distinct labels in the loaded gallery",
		}),
	}
	reg.MustRegister(m.rankDuration, m.embedDuration, m.requests, m.gallerySize, m.galleryLabels)
	return m
}

// Registerer returns the registry for components that add their own collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return nil
	}
	return m.Registry
}

// ObserveRank records one ranking pass.
func (m *Metrics) ObserveRank(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.rankDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveEmbed records one query embedding.
func (m *Metrics) ObserveEmbed(d time.Duration) {
	if m == nil {
		return
	}
	m.embedDuration.Observe(d.Seconds())
}

// CountRequest increments the request counter for op and outcome.
func (m *Metrics) CountRequest(op, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
}

// SetGallery publishes gallery dimensions.
func (m *Metrics) SetGallery(entries, labels int) {
	if m == nil {
		return
	}
	m.gallerySize.Set(float64(entries))
	m.galleryLabels.Set(float64(labels))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
