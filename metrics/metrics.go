// Package metrics holds the Prometheus collectors shared by the calculator,
// the progress trackers and the HTTP layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	registry *prometheus.Registry

	Calculations   *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	ProgressEvents *prometheus.CounterVec
	PollRequests   *prometheus.CounterVec
	ActiveTrackers prometheus.Gauge
	RequestLatency *prometheus.HistogramVec
}

// NewRegistry builds a registry with every collector registered. Each call
// returns an independent registry, so tests never collide.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Calculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_calculations_total",
				Help: "Return calculations served, by outcome",
			},
			[]string{"result"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_calculation_cache_lookups_total",
				Help: "Calculation memo lookups by result (hit|miss)",
			},
			[]string{"result"},
		),
		ProgressEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_progress_events_total",
				Help: "Progress events received, by type and disposition",
			},
			[]string{"type", "disposition"},
		),
		PollRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_status_polls_total",
				Help: "Status endpoint polls by result",
			},
			[]string{"result"},
		),
		ActiveTrackers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "auction_active_trackers",
				Help: "Progress trackers currently bound to an analysis",
			},
		),
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auction_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"route", "code"},
		),
	}

	r.registry.MustRegister(
		r.Calculations,
		r.CacheLookups,
		r.ProgressEvents,
		r.PollRequests,
		r.ActiveTrackers,
		r.RequestLatency,
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
