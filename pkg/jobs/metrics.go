package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the job queue counters
type Metrics struct {
	enqueued *prometheus.CounterVec
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the job counters with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trainer",
			Subsystem: "jobs",
			Name:      "enqueued_total",
			Help:      "Background tasks enqueued.",
		}, []string{"queue", "name"}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trainer",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Background tasks run, by outcome.",
		}, []string{"queue", "name", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trainer",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Time spent running background tasks.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"queue", "name"}),
	}
}
