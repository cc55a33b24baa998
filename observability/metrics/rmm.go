// Package metrics exposes the dispatcher's prometheus instrumentation: a
// lazily-registered singleton registry following the same sync.Once shape
// used throughout the ambient network/p2p metrics of this core's ancestry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every counter/gauge the dispatcher updates.
type Registry struct {
	SwapsTotal          *prometheus.CounterVec
	FeeGrowthTotal      *prometheus.CounterVec
	ReentrancyRejected  prometheus.Counter
	InvariantViolations prometheus.Counter
	PoolLiquidity       *prometheus.GaugeVec
}

var (
	once     sync.Once
	registry *Registry
)

// Default returns the process-wide metrics registry, registering its
// collectors with the default prometheus registerer on first use.
func Default() *Registry {
	once.Do(func() {
		registry = &Registry{
			SwapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rmm",
				Subsystem: "swap",
				Name:      "total",
				Help:      "Total swaps executed, labelled by direction.",
			}, []string{"direction"}),
			FeeGrowthTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rmm",
				Subsystem: "pool",
				Name:      "fee_growth_total",
				Help:      "Cumulative WAD fee growth credited per pool and token leg.",
			}, []string{"pool_id", "token"}),
			ReentrancyRejected: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rmm",
				Subsystem: "dispatcher",
				Name:      "reentrancy_rejected_total",
				Help:      "Total calls rejected because the dispatcher was already busy.",
			}),
			InvariantViolations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rmm",
				Subsystem: "swap",
				Name:      "invariant_violations_total",
				Help:      "Total swaps rejected because the post-trade invariant would have decreased.",
			}),
			PoolLiquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "rmm",
				Subsystem: "pool",
				Name:      "liquidity",
				Help:      "Current WAD liquidity allocated to a pool.",
			}, []string{"pool_id"}),
		}
		prometheus.MustRegister(
			registry.SwapsTotal,
			registry.FeeGrowthTotal,
			registry.ReentrancyRejected,
			registry.InvariantViolations,
			registry.PoolLiquidity,
		)
	})
	return registry
}
