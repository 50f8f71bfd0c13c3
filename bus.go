package xeda

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Bus is the broker client: it encodes envelopes and hands them to a
// Transport, and drives consumers on the other side.
type Bus struct {
	transport     Transport
	codec         Codec
	clock         xclock.Clock
	logger        *xlog.Logger
	middlewares   []Middleware
	publishChain  []Middleware
	ackTimeout    time.Duration
	observerPool  *ObserverPool
	observersMu   sync.RWMutex
	observers     []Observer
	metrics       *busMetrics
	closed        atomic.Bool
	closeOnce     sync.Once
	poolCloseWait time.Duration
}

// busMetrics uses lock-free atomics for production-grade telemetry.
type busMetrics struct {
	publishCount atomic.Uint64
	consumeCount atomic.Uint64
	ackCount     atomic.Uint64
	nackCount    atomic.Uint64
	errorCount   atomic.Uint64
	processingNs atomic.Int64
}

// Codec returns the configured codec (Strategy).
func (b *Bus) Codec() Codec { return b.codec }

// Transport returns the underlying transport.
func (b *Bus) Transport() Transport { return b.transport }

// Dispatch encodes env and publishes it to topic. The message id is the
// envelope id and the envelope attributes travel as metadata.
func (b *Bus) Dispatch(ctx context.Context, topic string, env Envelope) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if topic == "" {
		return ErrInvalidTopic
	}
	if env.ID == "" || env.Type == "" {
		return ErrInvalidEnvelope
	}

	b.metrics.publishCount.Add(1)

	data, err := b.codec.Marshal(env)
	if err != nil {
		b.metrics.errorCount.Add(1)
		return err
	}

	msg := &Message{
		ID:         env.ID,
		Name:       env.Type,
		Payload:    data,
		Metadata:   envelopeMetadata(env),
		ProducedAt: b.clock.Now(),
	}

	start := b.clock.Now()
	b.notify(BusEvent{Type: EventPublishStart, Topic: topic, MessageID: msg.ID, EventName: msg.Name})

	publish := Chain(func(ctx context.Context, m *Message) error {
		return b.transport.Publish(ctx, topic, m)
	}, b.publishChain...)
	err = publish(WithTopic(injectLogger(ctx, b.logger), topic), msg)

	duration := b.clock.Since(start)
	b.recordProcessingTime(duration.Nanoseconds())

	b.notify(BusEvent{
		Type:      EventPublishDone,
		Topic:     topic,
		MessageID: msg.ID,
		EventName: msg.Name,
		Duration:  duration,
		Err:       err,
	})

	if err != nil {
		b.metrics.errorCount.Add(1)
	}
	return err
}

func envelopeMetadata(env Envelope) map[string]string {
	meta := map[string]string{
		MetaSpecVersion: env.SpecVersion,
		MetaID:          env.ID,
		MetaType:        env.Type,
		MetaSource:      env.Source,
		MetaTime:        env.Time.Format(time.RFC3339),
	}
	if env.DataContentType != "" {
		meta[MetaContentType] = env.DataContentType
	}
	return meta
}

// Subscribe registers a handler under a consumer group for a topic.
// Handlers run behind panic recovery and the configured consume middlewares.
func (b *Bus) Subscribe(ctx context.Context, topic, group string, handler Handler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if topic == "" || group == "" || handler == nil {
		return nil, ErrInvalidSubscription
	}

	base := RecoveryMiddleware()(handler)
	wh := Chain(base, b.middlewares...)

	hctx := WithTopic(InjectAll(ctx, b.codec, b.logger, b.clock), topic)

	return b.transport.Subscribe(ctx, topic, group, func(d Delivery) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Warn().Str("topic", topic).Msg("xeda: delivery panic (recovered)")
				b.metrics.errorCount.Add(1)
				_ = d.Nack(context.Background(), ErrHandlerPanic)
			}
		}()

		b.metrics.consumeCount.Add(1)
		msg := d.Message()

		b.notify(BusEvent{Type: EventConsumeStart, Topic: topic, Group: group, MessageID: msg.ID, EventName: msg.Name})

		start := b.clock.Now()
		err := wh(hctx, msg)
		duration := b.clock.Since(start)
		b.recordProcessingTime(duration.Nanoseconds())

		done := BusEvent{
			Type:      EventConsumeDone,
			Topic:     topic,
			Group:     group,
			MessageID: msg.ID,
			EventName: msg.Name,
			Duration:  duration,
			Err:       err,
		}

		if err == nil {
			b.metrics.ackCount.Add(1)
			b.ackWithTimeout(hctx, d, true, nil)
			b.notify(done)
			b.notify(BusEvent{Type: EventAck, Topic: topic, Group: group, MessageID: msg.ID, EventName: msg.Name})
			return
		}

		b.metrics.nackCount.Add(1)
		b.ackWithTimeout(hctx, d, false, err)
		b.notify(done)
		b.notify(BusEvent{Type: EventNack, Topic: topic, Group: group, MessageID: msg.ID, EventName: msg.Name, Err: err})
	})
}

// ackWithTimeout handles ack/nack with configurable timeout.
func (b *Bus) ackWithTimeout(ctx context.Context, d Delivery, ack bool, reason error) {
	actx := ctx
	cancel := func() {}
	if b.ackTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, b.ackTimeout)
	}
	defer cancel()

	var err error
	if ack {
		err = d.Ack(actx)
	} else {
		err = d.Nack(actx, reason)
	}
	if err != nil {
		b.metrics.errorCount.Add(1)
		b.notify(BusEvent{Type: EventError, Err: err})
		if ack {
			b.logger.Warn().Err(err).Msg("xeda: ack failed")
		} else {
			b.logger.Warn().Err(err).Msg("xeda: nack failed")
		}
	}
}

// GetMetrics returns current bus metrics.
func (b *Bus) GetMetrics() Metrics {
	m := Metrics{
		Published:           b.metrics.publishCount.Load(),
		Consumed:            b.metrics.consumeCount.Load(),
		Acked:               b.metrics.ackCount.Load(),
		Nacked:              b.metrics.nackCount.Load(),
		Errors:              b.metrics.errorCount.Load(),
		AvgProcessingTimeMs: float64(b.metrics.processingNs.Load()) / 1e6,
	}
	if b.observerPool != nil {
		m.EventsDropped = b.observerPool.Stats().Dropped
	}
	return m
}

// Health reports "degraded" once more than 5% of dispatches failed.
func (b *Bus) Health(ctx context.Context) HealthStatus {
	now := b.clock.Now()
	if b.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: now,
			Message:   "bus is closed",
		}
	}

	metrics := b.GetMetrics()
	status := "healthy"
	if metrics.Errors > 0 && metrics.Published > 0 {
		if float64(metrics.Errors)/float64(metrics.Published) > 0.05 {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: now,
	}
}

// Close gracefully shuts down the bus. It is idempotent.
func (b *Bus) Close(ctx context.Context) error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.closed.Store(true)

		if b.observerPool != nil {
			if err := b.observerPool.Close(b.poolCloseWait); err != nil {
				b.logger.Warn().Err(err).Msg("xeda: observer pool shutdown timeout")
				closeErr = err
			}
		}

		if err := b.transport.Close(ctx); err != nil {
			b.logger.Error().Err(err).Msg("xeda: transport close failed")
			closeErr = err
		}
	})

	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes the first registered observer equal to obs.
// Observers of uncomparable types, ObserverFunc among them, are never
// matched; register a pointer to remove it later.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil || !reflect.TypeOf(obs).Comparable() {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()

	for i, o := range b.observers {
		if reflect.TypeOf(o) == reflect.TypeOf(obs) && o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			break
		}
	}
}

// notify hands e to the observer pool, or calls observers inline when the
// bus was built without one.
func (b *Bus) notify(e BusEvent) {
	if b.closed.Load() {
		return
	}

	b.observersMu.RLock()
	if len(b.observers) == 0 {
		b.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.observersMu.RUnlock()

	if b.observerPool != nil {
		b.observerPool.Notify(e, observers)
		return
	}
	for _, o := range observers {
		o.OnBusEvent(e)
	}
}

// recordProcessingTime keeps an exponential moving average (alpha 0.2).
func (b *Bus) recordProcessingTime(ns int64) {
	const alpha = 0.2
	current := b.metrics.processingNs.Load()
	if current == 0 {
		b.metrics.processingNs.Store(ns)
		return
	}
	b.metrics.processingNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}
