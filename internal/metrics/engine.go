// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jamd_commands_total",
		Help: "Total number of processed session commands by operation and result",
	}, []string{"op", "result"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jamd_sessions_active",
		Help: "Number of currently active sessions",
	})

	DequeuesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jamd_queue_dequeues_total",
		Help: "Total number of queue entries consumed for playback",
	})

	CatalogLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jamd_catalog_lookups_total",
		Help: "Catalog track resolutions by result (hit, miss, error)",
	}, []string{"result"})
)

// IncCommand records one processed command outcome.
func IncCommand(op, result string) {
	if op == "" {
		op = "unknown"
	}
	CommandsTotal.WithLabelValues(op, result).Inc()
}
