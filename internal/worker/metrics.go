package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	jobs     *prometheus.CounterVec
	proc     prometheus.Histogram
	lagGauge prometheus.Gauge
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_jobs_total",
				Help: "Scan jobs consumed by result.",
			},
			[]string{"result"},
		),
		proc: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "worker_job_seconds",
				Help:    "End-to-end processing time for one scan job.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
			},
		),
		lagGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "worker_lag_seconds",
				Help: "Approximate lag: now - message.timestamp.",
			},
		),
	}
	if r != nil {
		r.MustRegister(m.jobs, m.proc, m.lagGauge)
	}
	return m
}
