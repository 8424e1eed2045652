package cache

import (
	"time"

	"github.com/tailored-agentic-units/datashelf/observability"
)

// Option configures a cache at construction.
type Option[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	metricsReg    *observability.MetricsRegistry
	component     string
	evictCallback EvictCallback[V]
	now           func() time.Time
}

// WithMetrics exports the cache statistics as Prometheus metrics labelled
// with component. A nil registry or empty component disables export.
func WithMetrics[V any](registry *observability.MetricsRegistry, component string) Option[V] {
	return func(o *cacheOptions[V]) {
		if registry != nil && component != "" {
			o.metricsReg = registry
			o.component = component
		}
	}
}

// WithEvictionCallback registers fn to run after each removal.
func WithEvictionCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(o *cacheOptions[V]) {
		o.evictCallback = fn
	}
}

// WithClock replaces time.Now as the source of entry timestamps.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(o *cacheOptions[V]) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions[V any](opts ...Option[V]) *cacheOptions[V] {
	o := &cacheOptions[V]{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
