package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgraph_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// StoreOperationLatency records store latency by store and operation.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatgraph_store_operation_latency_seconds",
		Help:    "Store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"store", "operation"})

	// WebSocketConnectionsTotal is the gauge of active websocket sessions.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatgraph_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts frames dropped because a client could not keep up.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgraph_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"gateway", "reason"})

	// EventsPublished counts broker publishes by event name and outcome.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgraph_events_published_total",
		Help: "Total domain events published to the broker",
	}, []string{"event", "outcome"})

	// EventsDelivered counts events handed to subscribers after filtering.
	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgraph_events_delivered_total",
		Help: "Total domain events delivered to subscribers",
	}, []string{"event"})

	// EventsFiltered counts events a broadcast-mode subscriber discarded by correlation key.
	EventsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgraph_events_filtered_total",
		Help: "Total domain events discarded by subscriber-side filtering",
	}, []string{"event"})

	// MessageStatusTransitions counts applied message status changes.
	MessageStatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgraph_message_status_transitions_total",
		Help: "Total message status transitions applied",
	}, []string{"to"})

	// SagaCompensations counts compensations run by compound cross-store operations.
	SagaCompensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgraph_saga_compensations_total",
		Help: "Total saga compensations by operation and outcome",
	}, []string{"operation", "outcome"})
)

// TrackStore returns a function that records the latency of a store call when
// invoked, typically with defer.
func TrackStore(store, operation string) func() {
	start := time.Now()
	return func() {
		StoreOperationLatency.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
	}
}
