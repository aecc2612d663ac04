package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SnapshotsIngested counts telemetry snapshots accepted per transport and channel
	SnapshotsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mids",
			Name:      "snapshots_ingested_total",
			Help:      "Total number of channel snapshots accepted",
		},
		[]string{"transport", "channel"},
	)

	// SnapshotsRejected counts snapshots dropped before reaching the engine
	SnapshotsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mids",
			Name:      "snapshots_rejected_total",
			Help:      "Total number of channel snapshots rejected",
		},
		[]string{"transport", "reason"},
	)

	// TicksTotal counts device evaluations
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mids",
			Name:      "ticks_total",
			Help:      "Total number of device evaluation ticks",
		},
		[]string{"outcome"},
	)

	// ScorerTimeouts counts scorers that missed the tick deadline
	ScorerTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mids",
			Name:      "scorer_timeouts_total",
			Help:      "Total number of scorer evaluations that timed out",
		},
		[]string{"channel"},
	)

	// StateTransitions counts policy state changes
	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mids",
			Name:      "state_transitions_total",
			Help:      "Total number of policy state transitions",
		},
		[]string{"from", "to", "rule"},
	)

	// EventsRaised counts threat events created
	EventsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mids",
			Name:      "events_raised_total",
			Help:      "Total number of threat events raised",
		},
		[]string{"channel", "severity"},
	)

	// DispatchOutcomes counts protective action results
	DispatchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mids",
			Name:      "dispatch_outcomes_total",
			Help:      "Total number of dispatched actions by outcome",
		},
		[]string{"action", "status"},
	)

	// StoreWriteFailures counts failed persistence attempts
	StoreWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mids",
			Name:      "store_write_failures_total",
			Help:      "Total number of failed store writes, retried with backoff",
		},
		[]string{"kind"},
	)

	// GlobalRisk exposes the smoothed risk of each device
	GlobalRisk = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mids",
			Name:      "global_risk",
			Help:      "Smoothed global risk score per device",
		},
		[]string{"device"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// It is idempotent.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(SnapshotsIngested)
		prometheus.DefaultRegisterer.Register(SnapshotsRejected)
		prometheus.DefaultRegisterer.Register(TicksTotal)
		prometheus.DefaultRegisterer.Register(ScorerTimeouts)
		prometheus.DefaultRegisterer.Register(StateTransitions)
		prometheus.DefaultRegisterer.Register(EventsRaised)
		prometheus.DefaultRegisterer.Register(DispatchOutcomes)
		prometheus.DefaultRegisterer.Register(StoreWriteFailures)
		prometheus.DefaultRegisterer.Register(GlobalRisk)
	})
}
