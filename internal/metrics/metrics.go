package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procrastihator_packets_received_total",
		Help: "Total number of packets accepted onto the dispatch queue, labelled by event.",
	}, []string{"event"})

	PacketsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procrastihator_packets_invalid_total",
		Help: "Total number of payloads dropped because they failed to decode.",
	})

	PacketsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procrastihator_packets_dropped_total",
		Help: "Total number of inbound items rejected due to a full queue.",
	})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procrastihator_decisions_total",
		Help: "Total number of dispatch decisions, labelled by decision.",
	}, []string{"decision"})

	Responses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procrastihator_responses_total",
		Help: "Total number of finished response tasks, labelled by kind and status.",
	}, []string{"kind", "status"})

	ResponsesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "procrastihator_responses_in_flight",
		Help: "Response tasks currently running.",
	})

	ResponseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "procrastihator_response_duration_seconds",
		Help:    "Response task latency from dispatch to last audio frame.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
	}, []string{"kind"})

	CollaboratorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procrastihator_collaborator_errors_total",
		Help: "Total number of failed collaborator calls, labelled by collaborator.",
	}, []string{"collaborator"})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "procrastihator_queue_utilization_ratio",
		Help: "Current dispatch queue utilization (0–1).",
	})
)
