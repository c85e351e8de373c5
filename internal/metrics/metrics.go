// Package metrics exposes the relay's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived counts webhook deliveries by (resource, event).
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcastbot_events_received_total",
		Help: "Webhook events received, by resource and event.",
	}, []string{"resource", "event"})

	// SendsOK / SendsFailed count per-destination delivery outcomes.
	SendsOK = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcastbot_sends_ok_total",
		Help: "Messages delivered to destination rooms.",
	})
	SendsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcastbot_sends_failed_total",
		Help: "Message deliveries that failed.",
	})

	// Reconciles counts webhook-subscription reconciliation runs by outcome.
	Reconciles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcastbot_webhook_reconciles_total",
		Help: "Webhook subscription reconciliations, by outcome.",
	}, []string{"outcome"})
)
