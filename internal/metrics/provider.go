// Package metrics instruments the orchestrator's cache, RPC, and
// crypto-outcome counters directly with github.com/prometheus/client_golang,
// exposed through a custom registry rather than the default global one so a
// host embedding this library can run its own collectors alongside it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider owns the Prometheus registry metrics are registered against and
// the HTTP handler that exposes them.
type Provider struct {
	registry *prometheus.Registry
}

// NewProvider creates a Provider backed by a fresh registry, registering the
// standard process/Go collectors under namespace.
func NewProvider(namespace string) (*Provider, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: namespace}),
		prometheus.NewGoCollector(),
	)
	return &Provider{registry: registry}, nil
}

// Registry returns the underlying registry so component-specific metrics
// (DPAPIMetrics) can register themselves against it.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler serving metrics in Prometheus exposition
// format, suitable for mounting at /metrics.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
