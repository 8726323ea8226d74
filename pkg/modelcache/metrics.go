package modelcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindCAT   = "cat"
	kindCDB   = "cdb"
	kindVocab = "vocab"
)

// Metrics are the cache counters, labelled by model kind
type Metrics struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	loads      *prometheus.CounterVec
	loadErrors *prometheus.CounterVec
	evictions  *prometheus.CounterVec
	removals   *prometheus.CounterVec
}

// NewMetrics registers the cache counters with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	counter := func(name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trainer",
			Subsystem: "model_cache",
			Name:      name,
			Help:      help,
		}, []string{"kind"})
	}
	return &Metrics{
		hits:       counter("hits_total", "Model cache lookups served from memory."),
		misses:     counter("misses_total", "Model cache lookups that required a load."),
		loads:      counter("loads_total", "Model loads started."),
		loadErrors: counter("load_errors_total", "Model loads that failed."),
		evictions:  counter("evictions_total", "Models evicted to stay within capacity."),
		removals:   counter("removals_total", "Models cleared or purged on request."),
	}
}
