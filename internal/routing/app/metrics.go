package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waroute_webhooks_received_total",
		Help: "Webhook deliveries received, by provider.",
	}, []string{"provider"})

	webhooksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waroute_webhooks_processed_total",
		Help: "Webhook deliveries by event kind and outcome.",
	}, []string{"event_kind", "outcome"})

	webhookDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "waroute_webhook_processing_seconds",
		Help:    "Time spent processing one webhook delivery.",
		Buckets: prometheus.DefBuckets,
	})

	messagesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waroute_messages_recorded_total",
		Help: "Messages written to the ledger, by direction.",
	}, []string{"direction"})

	assignmentsMade = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waroute_assignments_total",
		Help: "Conversations assigned to an agent, auto and manual.",
	})

	providerInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waroute_provider_invocations_total",
		Help: "Provider API calls, by operation and outcome.",
	}, []string{"operation", "outcome"})
)

func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
