package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DPAPIMetrics records the orchestrator-facing counters described in the
// observability section: cache hit/miss per ratchet level, RPC dispatch
// counts and latency, and crypto outcome counters.
type DPAPIMetrics interface {
	// RecordCacheLookup records a cache probe outcome ("hit" or "miss") for
	// the given ratchet level ("l0", "l1", "l2").
	RecordCacheLookup(level, outcome string)

	// RecordRPC records a GetKey RPC dispatch with its outcome ("success",
	// "error") and latency.
	RecordRPC(outcome string, duration time.Duration)

	// RecordCryptoOutcome records a Protect/Unprotect terminal outcome.
	// Operation is "protect" or "unprotect"; status is "success" or "error".
	RecordCryptoOutcome(operation, status string)
}

// dpapiMetrics implements DPAPIMetrics with Prometheus counters/histograms
// registered against a caller-supplied registry.
type dpapiMetrics struct {
	cacheLookups  *prometheus.CounterVec
	rpcCalls      *prometheus.CounterVec
	rpcDuration   prometheus.Histogram
	cryptoOutcome *prometheus.CounterVec
}

// NewDPAPIMetrics creates a DPAPIMetrics implementation, registering its
// collectors against registry under namespace.
func NewDPAPIMetrics(registry *prometheus.Registry, namespace string) (DPAPIMetrics, error) {
	m := &dpapiMetrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Key cache probes by ratchet level and outcome.",
		}, []string{"level", "outcome"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "getkey_rpc_total",
			Help:      "GetKey RPC dispatches by outcome.",
		}, []string{"outcome"}),
		rpcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "getkey_rpc_duration_seconds",
			Help:      "GetKey RPC latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		cryptoOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crypto_operations_total",
			Help:      "Protect/Unprotect terminal outcomes.",
		}, []string{"operation", "status"}),
	}

	if err := registry.Register(m.cacheLookups); err != nil {
		return nil, err
	}
	if err := registry.Register(m.rpcCalls); err != nil {
		return nil, err
	}
	if err := registry.Register(m.rpcDuration); err != nil {
		return nil, err
	}
	if err := registry.Register(m.cryptoOutcome); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *dpapiMetrics) RecordCacheLookup(level, outcome string) {
	m.cacheLookups.WithLabelValues(level, outcome).Inc()
}

func (m *dpapiMetrics) RecordRPC(outcome string, duration time.Duration) {
	m.rpcCalls.WithLabelValues(outcome).Inc()
	m.rpcDuration.Observe(duration.Seconds())
}

func (m *dpapiMetrics) RecordCryptoOutcome(operation, status string) {
	m.cryptoOutcome.WithLabelValues(operation, status).Inc()
}

// NoOpDPAPIMetrics is a no-op DPAPIMetrics for callers that don't configure a
// Provider.
type NoOpDPAPIMetrics struct{}

// NewNoOpDPAPIMetrics creates a no-op DPAPIMetrics implementation.
func NewNoOpDPAPIMetrics() DPAPIMetrics { return &NoOpDPAPIMetrics{} }

func (NoOpDPAPIMetrics) RecordCacheLookup(level, outcome string)         {}
func (NoOpDPAPIMetrics) RecordRPC(outcome string, duration time.Duration) {}
func (NoOpDPAPIMetrics) RecordCryptoOutcome(operation, status string)    {}
