package xeda

import (
	"time"
)

// BusEventType enumerates internal lifecycle events for Observer pattern.
type BusEventType string

const (
	EventPublishStart BusEventType = "publish_start"
	EventPublishDone  BusEventType = "publish_done"
	EventConsumeStart BusEventType = "consume_start"
	EventConsumeDone  BusEventType = "consume_done"
	EventAck          BusEventType = "ack"
	EventNack         BusEventType = "nack"
	EventError        BusEventType = "error"
)

// BusEvent carries telemetry for observers.
type BusEvent struct {
	Type      BusEventType
	Topic     string
	Group     string
	MessageID string
	EventName string
	Duration  time.Duration
	Err       error

	// Internal: attached for async dispatch
	observers []Observer
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to full buffer
	Processed    uint64 // Events successfully processed
	Panics       uint64 // Observer panics recovered by the pool
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Published           uint64
	Consumed            uint64
	Acked               uint64
	Nacked              uint64
	Errors              uint64
	EventsDropped       uint64
	AvgProcessingTimeMs float64
}

// HealthStatus indicates bus health for Kubernetes probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
