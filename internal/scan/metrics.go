package scan

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	files    *prometheus.CounterVec
	entities *prometheus.CounterVec
	cache    *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_files_total",
				Help: "Scanned drawing files by result.",
			},
			[]string{"result"},
		),
		entities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_entities_total",
				Help: "Entity records extracted by kind.",
			},
			[]string{"kind"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_cache_total",
				Help: "Result cache lookups by outcome.",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scan_file_seconds",
				Help:    "Time spent scanning one drawing file.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
		),
	}
	if r != nil {
		r.MustRegister(m.files, m.entities, m.cache, m.duration)
	}
	return m
}
