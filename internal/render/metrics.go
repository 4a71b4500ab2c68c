package render

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	renders  *prometheus.CounterVec
	blocks   *prometheus.CounterVec
	skipped  prometheus.Counter
	duration prometheus.Histogram
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_total",
				Help: "Network renders by result.",
			},
			[]string{"result"},
		),
		blocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_blocks_total",
				Help: "Committed blocks by role.",
			},
			[]string{"role"},
		),
		skipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "render_skipped_segments_total",
				Help: "Segments skipped because no template exists for them.",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "render_seconds",
				Help:    "Time spent rendering and committing one network.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
		),
	}
	if r != nil {
		r.MustRegister(m.renders, m.blocks, m.skipped, m.duration)
	}
	return m
}
