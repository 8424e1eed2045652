package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tailored-agentic-units/datashelf/observability"
)

type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	evictions *prometheus.CounterVec
	loads     *prometheus.CounterVec
	duration  prometheus.Histogram
	size      prometheus.Gauge
}

func newCacheMetrics(registry *observability.MetricsRegistry, component string) (*cacheMetrics, error) {
	labels := prometheus.Labels{"component": component}

	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   observability.Namespace,
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Total number of cache hits",
			ConstLabels: labels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   observability.Namespace,
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Total number of cache misses, including expired entries",
			ConstLabels: labels,
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   observability.Namespace,
			Subsystem:   "cache",
			Name:        "sets_total",
			Help:        "Total number of entries stored",
			ConstLabels: labels,
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   observability.Namespace,
			Subsystem:   "cache",
			Name:        "evictions_total",
			Help:        "Total number of entries removed, by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   observability.Namespace,
			Subsystem:   "cache",
			Name:        "loads_total",
			Help:        "Total number of loads run on a miss, by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   observability.Namespace,
			Subsystem:   "cache",
			Name:        "load_duration_seconds",
			Help:        "Duration of loads run on a miss",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   observability.Namespace,
			Subsystem:   "cache",
			Name:        "size",
			Help:        "Current number of entries",
			ConstLabels: labels,
		}),
	}

	if err := registry.RegisterCounter(component, "cache_hits", m.hits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "cache_misses", m.misses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "cache_sets", m.sets); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "cache_evictions", m.evictions); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "cache_loads", m.loads); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(component, "cache_load_duration", m.duration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "cache_size", m.size); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *cacheMetrics) observeLoad(d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.loads.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}
