// Package otelobs exports bus telemetry through OpenTelemetry: an Observer
// that feeds counters and a duration histogram, and middlewares that trace
// publishes and consumes.
package otelobs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trickstertwo/xeda"
)

const instrumentationName = "github.com/trickstertwo/xeda/otelobs"

// Observer records bus events as metrics. It is safe for concurrent use and
// can be registered with BusBuilder.WithObserver.
type Observer struct {
	published metric.Int64Counter
	consumed  metric.Int64Counter
	acked     metric.Int64Counter
	nacked    metric.Int64Counter
	errors    metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewObserver creates the instruments on mp, or on the global provider when
// mp is nil.
func NewObserver(mp metric.MeterProvider) (*Observer, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	var (
		o   Observer
		err error
	)
	if o.published, err = meter.Int64Counter("xeda.messages.published",
		metric.WithDescription("Messages handed to the transport"),
		metric.WithUnit("{message}")); err != nil {
		return nil, err
	}
	if o.consumed, err = meter.Int64Counter("xeda.messages.consumed",
		metric.WithDescription("Messages delivered to handlers"),
		metric.WithUnit("{message}")); err != nil {
		return nil, err
	}
	if o.acked, err = meter.Int64Counter("xeda.messages.acked",
		metric.WithUnit("{message}")); err != nil {
		return nil, err
	}
	if o.nacked, err = meter.Int64Counter("xeda.messages.nacked",
		metric.WithUnit("{message}")); err != nil {
		return nil, err
	}
	if o.errors, err = meter.Int64Counter("xeda.errors",
		metric.WithDescription("Failed publishes, handlers and acks"),
		metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	if o.duration, err = meter.Float64Histogram("xeda.duration",
		metric.WithDescription("Publish and handler duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5)); err != nil {
		return nil, err
	}
	return &o, nil
}

func (o *Observer) OnBusEvent(e xeda.BusEvent) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("topic", e.Topic))

	switch e.Type {
	case xeda.EventPublishDone:
		o.published.Add(ctx, 1, attrs)
		o.duration.Record(ctx, e.Duration.Seconds(), metric.WithAttributes(
			attribute.String("topic", e.Topic), attribute.String("op", "publish")))
		if e.Err != nil {
			o.errors.Add(ctx, 1, attrs)
		}
	case xeda.EventConsumeDone:
		o.consumed.Add(ctx, 1, attrs)
		o.duration.Record(ctx, e.Duration.Seconds(), metric.WithAttributes(
			attribute.String("topic", e.Topic), attribute.String("op", "consume")))
	case xeda.EventAck:
		o.acked.Add(ctx, 1, attrs)
	case xeda.EventNack:
		o.nacked.Add(ctx, 1, attrs)
	case xeda.EventError:
		o.errors.Add(ctx, 1, attrs)
	}
}

var _ xeda.Observer = (*Observer)(nil)
