// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomcast_connections_active",
		Help: "Live signaling connections.",
	})

	JoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomcast_joins_total",
		Help: "Completed room joins.",
	})

	LeavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomcast_leaves_total",
		Help: "Memberships ended by leave or disconnect.",
	})

	DisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomcast_disconnects_total",
		Help: "Transport-level connection terminations.",
	})

	InvalidJoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomcast_invalid_joins_total",
		Help: "Join requests rejected for a missing roomId or user.",
	})

	RelayForwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomcast_relay_forwarded_total",
		Help: "Signaling messages delivered to their target.",
	}, []string{"kind"})

	RelayDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomcast_relay_dropped_total",
		Help: "Signaling messages dropped because the target was gone or slow.",
	}, []string{"kind"})

	BroadcastDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomcast_broadcast_dropped_total",
		Help: "Membership notifications dropped on backpressure.",
	})
)
