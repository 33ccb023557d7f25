// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jamd_subscribers_active",
		Help: "Number of live session event subscribers",
	})

	DispatchDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jamd_dispatch_dropped_total",
		Help: "Session events dropped per subscriber by reason",
	}, []string{"reason"})

	DispatchDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jamd_dispatch_delivered_total",
		Help: "Session events delivered to subscriber queues",
	})
)

// IncDispatchDrop records a dropped subscriber delivery with a concrete reason.
func IncDispatchDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	DispatchDroppedTotal.WithLabelValues(reason).Inc()
}
