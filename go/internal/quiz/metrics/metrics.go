package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broadcast hub metrics
var (
	// HubEventsPublished counts events accepted by a hub, by hub name
	HubEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_hub_events_published_total",
			Help: "Events published to a broadcast hub",
		},
		[]string{"hub"},
	)

	// HubEventsDropped counts queued events overwritten because a subscriber fell behind
	HubEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_hub_events_dropped_total",
			Help: "Events dropped from slow subscriber queues",
		},
		[]string{"hub"},
	)

	// HubSubscribers tracks current subscriptions per hub
	HubSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quiz_hub_subscribers",
			Help: "Current number of hub subscriptions",
		},
		[]string{"hub"},
	)
)

// WebSocket metrics
var (
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiz_websocket_connections_current",
			Help: "Currently open websocket connections",
		},
	)

	WebSocketConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_websocket_connections_total",
			Help: "Websocket connections accepted since start",
		},
	)

	// InboundMessages counts inbound frames by message type and outcome (applied, dropped)
	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_inbound_messages_total",
			Help: "Inbound client frames by message type and result",
		},
		[]string{"type", "result"},
	)
)

// Processor metrics
var (
	// EventsPublished counts server events published by the processor, by event type
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_events_published_total",
			Help: "Server events published by the message processor",
		},
		[]string{"event_type"},
	)
)

// Relay and journal metrics
var (
	RelayPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_relay_publishes_total",
			Help: "Events mirrored to NATS by status",
		},
		[]string{"status"},
	)

	JournalRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_journal_records_total",
			Help: "Answer journal records by status (queued, dropped, written, failed)",
		},
		[]string{"status"},
	)
)

// Result labels shared by several collectors
const (
	ResultApplied = "applied"
	ResultDropped = "dropped"

	StatusSuccess = "success"
	StatusFailure = "failure"

	StatusQueued  = "queued"
	StatusWritten = "written"
	StatusFailed  = "failed"
)
