// Package metrics registers the gateway's Prometheus collectors. All
// collectors are process-wide and registered once via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AppUpdates counts registry rebuilds.
	AppUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_application_updates",
		Help: "Total number of application registry updates",
	})

	// Events counts accepted SDK events.
	Events = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_total",
		Help: "Total number of SDK events sent",
	})

	// Requests counts HTTP requests by status and endpoint.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests made.",
	}, []string{"status", "endpoint"})

	// ResponseTimes observes full request latency.
	ResponseTimes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "http_request_latency_seconds",
		Help: "The HTTP request latencies in seconds",
	})

	// KafkaLatency observes log-bus publish latency.
	KafkaLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "kafka_latency_seconds",
		Help: "The Kafka publish latencies in seconds",
	})

	// RabbitMQLatency observes AMQP-bus publish latency.
	RabbitMQLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "rabbitmq_latency_seconds",
		Help: "The RabbitMQ publish latencies in seconds",
	})

	// IdentityLatency observes identity-store call latency.
	IdentityLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "identity_latency_seconds",
		Help: "The identity store call latencies in seconds",
	})

	// IdentityRequests counts identity-store calls by operation and outcome.
	IdentityRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_requests_total",
		Help: "Total number of identity store requests",
	}, []string{"operation", "status"})
)
