package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the prometheus registry with the domain collectors.
type Registry struct {
	reg    *prometheus.Registry
	Orders *OrderMetrics
	Events *EventMetrics
}

// NewRegistry builds a registry with process/go collectors plus domain metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Registry{
		reg:    reg,
		Orders: NewOrderMetrics(reg),
		Events: NewEventMetrics(reg),
	}
}

// Handler returns the scrape endpoint handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Registerer exposes the underlying registerer for extra collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}
