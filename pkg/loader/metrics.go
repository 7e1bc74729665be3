package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	fetches  *prometheus.CounterVec
	hits     *prometheus.CounterVec
	releases *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newMetrics creates the loader collectors. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assetload",
				Subsystem: "loader",
				Name:      "fetches_total",
				Help:      "Total number of resource loads, by kind and result.",
			},
			[]string{"kind", "result"},
		),
		hits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assetload",
				Subsystem: "loader",
				Name:      "cache_hits_total",
				Help:      "Total number of requests served from the cache.",
			},
			[]string{"kind"},
		),
		releases: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assetload",
				Subsystem: "loader",
				Name:      "releases_total",
				Help:      "Total number of loaded resources released.",
			},
			[]string{"kind"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "assetload",
				Subsystem: "loader",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of fetch and decode for each load.",
			},
			[]string{"kind"},
		),
	}
}
