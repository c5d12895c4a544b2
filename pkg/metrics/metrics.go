// Package metrics defines the Prometheus collectors for the ingest engine
// and the delete runner, on a private registry exposed via /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the binaries register.
type Metrics struct {
	reg *prometheus.Registry

	// Decisions counts pipeline decisions by outcome.
	Decisions *prometheus.CounterVec
	// GeocodeLookups counts geocoder queries by result (hit, miss, resolved, failed).
	GeocodeLookups *prometheus.CounterVec
	// Snaps counts normalized locations by snap source.
	Snaps *prometheus.CounterVec
	// RunnerActions counts delete-runner actions by result.
	RunnerActions *prometheus.CounterVec
	// BatchDuration observes full pipeline passes in seconds.
	BatchDuration prometheus.Histogram
	// SpotsTracked is the current dataset size.
	SpotsTracked prometheus.Gauge
}

// New builds the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "propwatch_decisions_total",
			Help: "Pipeline decisions by outcome.",
		}, []string{"outcome"}),
		GeocodeLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "propwatch_geocode_lookups_total",
			Help: "Geocoder lookups by result.",
		}, []string{"result"}),
		Snaps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "propwatch_snaps_total",
			Help: "Normalized locations by snap source.",
		}, []string{"source"}),
		RunnerActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "propwatch_runner_actions_total",
			Help: "Delete-runner actions by result.",
		}, []string{"result"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "propwatch_batch_duration_seconds",
			Help:    "Duration of one full pipeline pass.",
			Buckets: prometheus.DefBuckets,
		}),
		SpotsTracked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "propwatch_spots_tracked",
			Help: "Spots currently in the dataset.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
