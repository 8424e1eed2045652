package observability

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "datashelf"

// ErrDuplicateMetric is returned when a metric name is registered twice for
// the same component.
var ErrDuplicateMetric = errors.New("metric already registered")

// MetricsRegistry owns a Prometheus registry and tracks which component
// registered which metric, so components sharing a process cannot collide.
type MetricsRegistry struct {
	registry   *prometheus.Registry
	registered map[string]prometheus.Collector
	mu         sync.Mutex
}

// NewMetricsRegistry creates a registry preloaded with the Go runtime and
// process collectors.
func NewMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &MetricsRegistry{
		registry:   reg,
		registered: make(map[string]prometheus.Collector),
	}
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RegisterCounter registers a counter owned by component.
func (r *MetricsRegistry) RegisterCounter(component, name string, c prometheus.Counter) error {
	return r.register(component, name, c)
}

// RegisterGauge registers a gauge owned by component.
func (r *MetricsRegistry) RegisterGauge(component, name string, g prometheus.Gauge) error {
	return r.register(component, name, g)
}

// RegisterHistogram registers a histogram owned by component.
func (r *MetricsRegistry) RegisterHistogram(component, name string, h prometheus.Histogram) error {
	return r.register(component, name, h)
}

// RegisterCounterVec registers a labelled counter owned by component.
func (r *MetricsRegistry) RegisterCounterVec(component, name string, c *prometheus.CounterVec) error {
	return r.register(component, name, c)
}

// Unregister removes a metric previously registered by component. It reports
// whether the metric was present.
func (r *MetricsRegistry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := component + "." + name
	c, ok := r.registered[key]
	if !ok {
		return false
	}
	delete(r.registered, key)
	return r.registry.Unregister(c)
}

func (r *MetricsRegistry) register(component, name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := component + "." + name
	if _, exists := r.registered[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMetric, key)
	}

	if err := r.registry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return fmt.Errorf("%w: %s: %v", ErrDuplicateMetric, key, err)
		}
		return fmt.Errorf("register %s: %w", key, err)
	}

	r.registered[key] = c
	return nil
}
