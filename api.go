package xeda

import (
	"context"
)

// Handler processes a single message. Return error to trigger Nack/Retry.
type Handler func(ctx context.Context, msg *Message) error

// Middleware composes processing concerns around a Handler.
type Middleware func(next Handler) Handler

// Subscription represents an active subscription that can be closed.
type Subscription interface {
	Close() error
}

// Delivery encapsulates a received message with Ack/Nack semantics.
type Delivery interface {
	Message() *Message
	Ack(ctx context.Context) error
	Nack(ctx context.Context, reason error) error
}

// Transport is the Strategy interface for message brokers/backends.
type Transport interface {
	// Publish sends messages to a topic/stream.
	Publish(ctx context.Context, topic string, msgs ...*Message) error
	// Subscribe binds a handler to a topic/stream within a consumer group.
	// The transport should drive delivery in background and honor ctx.
	Subscribe(ctx context.Context, topic, group string, handler func(Delivery)) (Subscription, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// Codec is the Strategy for encoding/decoding payloads on the wire.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Observer receives bus lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnBusEvent(e BusEvent)
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// Dispatcher hands an envelope to a message broker under a topic name.
// Delivery guarantees belong to the implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic string, env Envelope) error
}

// DispatcherFunc adapts a plain function to Dispatcher.
type DispatcherFunc func(ctx context.Context, topic string, env Envelope) error

func (f DispatcherFunc) Dispatch(ctx context.Context, topic string, env Envelope) error {
	return f(ctx, topic, env)
}

// LifecycleHandler is invoked by the content subsystem on every lifecycle
// transition of an event node.
type LifecycleHandler interface {
	EventCreate(ctx context.Context, node *Node) error
	EventUpdate(ctx context.Context, node *Node) error
	EventPublish(ctx context.Context, node *Node) error
	EventUnpublish(ctx context.Context, node *Node) error
	EventDelete(ctx context.Context, node *Node) error
}

// API represents the complete bus surface for extensibility.
type API interface {
	Dispatcher
	Subscribe(ctx context.Context, topic, group string, handler Handler) (Subscription, error)
	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

var (
	_ API              = (*Bus)(nil)
	_ HealthChecker    = (*Bus)(nil)
	_ LifecycleHandler = (*EventHandler)(nil)
)
