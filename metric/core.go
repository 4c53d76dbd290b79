package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core platform metrics for the diagram editor service
type Metrics struct {
	// Graph store metrics
	MutationsTotal    *prometheus.CounterVec // by entity and operation
	TransactionsTotal *prometheus.CounterVec // by status (committed, rolled_back)
	StoreVersion      prometheus.Gauge
	HistoryDepth      prometheus.Gauge

	// Validation and serialization metrics
	ConnectionRejects *prometheus.CounterVec // by reason
	SerializerDrops   *prometheus.CounterVec // by reason

	// Gateway metrics
	GatewaySessions prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dipeo",
				Subsystem: "graphstore",
				Name:      "mutations_total",
				Help:      "Total number of committed graph store mutations",
			},
			[]string{"entity", "op"},
		),

		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dipeo",
				Subsystem: "graphstore",
				Name:      "transactions_total",
				Help:      "Total number of graph store transactions",
			},
			[]string{"status"},
		),

		StoreVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dipeo",
				Subsystem: "graphstore",
				Name:      "version",
				Help:      "Current monotonic version of the graph store",
			},
		),

		HistoryDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dipeo",
				Subsystem: "graphstore",
				Name:      "history_depth",
				Help:      "Number of snapshots currently held for undo",
			},
		),

		ConnectionRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dipeo",
				Subsystem: "validation",
				Name:      "connection_rejects_total",
				Help:      "Total number of rejected connection attempts",
			},
			[]string{"reason"},
		),

		SerializerDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dipeo",
				Subsystem: "serializer",
				Name:      "drops_total",
				Help:      "Total number of orphaned or duplicate entities dropped during export",
			},
			[]string{"reason"},
		),

		GatewaySessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dipeo",
				Subsystem: "gateway",
				Name:      "sessions",
				Help:      "Number of active canvas websocket sessions",
			},
		),
	}
}
