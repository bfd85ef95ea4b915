// Package metrics exposes Prometheus instrumentation for connection
// counts, event fan-out, action dispatch outcomes, and check_component
// latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UIConnectionsActive is the current number of connected UI clients.
	UIConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hyperion_ui_connections_active",
		Help: "Number of currently connected UI clients.",
	})

	// SlaveConnectionsActive is the current number of open connections
	// on the slave server, counted from accept whether or not the peer
	// has authenticated yet.
	SlaveConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hyperion_slave_connections_active",
		Help: "Number of currently open slave-server connections, authenticated or not.",
	})

	// EventsFannedOutTotal counts events broadcast to UI connections,
	// labeled by event kind.
	EventsFannedOutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperion_events_fanned_out_total",
		Help: "Total events broadcast to UI clients, by event kind.",
	}, []string{"kind"})

	// ActionsDispatchedTotal counts dispatched actions, labeled by
	// action name and outcome (ok, unknown_action, signature_mismatch,
	// handler_error).
	ActionsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperion_actions_dispatched_total",
		Help: "Total actions dispatched, by action name and outcome.",
	}, []string{"action", "outcome"})

	// CheckComponentDuration measures check_component's bounded wait,
	// labeled by outcome (answered, timed_out).
	CheckComponentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hyperion_check_component_duration_seconds",
		Help:    "Duration of check_component's bounded wait for a slave's reply.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// SlaveBootstrapDuration measures start_slave end to end, labeled
	// by outcome (reconnect, started, timed_out, launch_failed).
	SlaveBootstrapDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hyperion_slave_bootstrap_duration_seconds",
		Help:    "Duration of start_slave, by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)
