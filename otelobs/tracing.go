package otelobs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/trickstertwo/xeda"
)

// Tracing builds publish and consume middlewares sharing one tracer and
// propagator. The publish side writes the trace context into message
// metadata and the consume side continues it.
type Tracing struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracing uses tp, or the global tracer provider when tp is nil.
func NewTracing(tp trace.TracerProvider) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracing{
		tracer:     tp.Tracer(instrumentationName),
		propagator: propagation.TraceContext{},
	}
}

// PublishMiddleware is meant for BusBuilder.WithPublishMiddleware.
func (t *Tracing) PublishMiddleware() xeda.Middleware {
	return func(next xeda.Handler) xeda.Handler {
		return func(ctx context.Context, msg *xeda.Message) error {
			topic, _ := xeda.TopicFromContext(ctx)
			ctx, span := t.tracer.Start(ctx, "publish "+topic,
				trace.WithSpanKind(trace.SpanKindProducer),
				trace.WithAttributes(messageAttrs(topic, msg)...))
			defer span.End()

			if msg.Metadata == nil {
				msg.Metadata = map[string]string{}
			}
			t.propagator.Inject(ctx, propagation.MapCarrier(msg.Metadata))
			return finish(span, next(ctx, msg))
		}
	}
}

// ConsumeMiddleware is meant for BusBuilder.WithMiddleware.
func (t *Tracing) ConsumeMiddleware() xeda.Middleware {
	return func(next xeda.Handler) xeda.Handler {
		return func(ctx context.Context, msg *xeda.Message) error {
			topic, _ := xeda.TopicFromContext(ctx)
			ctx = t.propagator.Extract(ctx, propagation.MapCarrier(msg.Metadata))
			ctx, span := t.tracer.Start(ctx, "consume "+topic,
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(messageAttrs(topic, msg)...))
			defer span.End()
			return finish(span, next(ctx, msg))
		}
	}
}

func messageAttrs(topic string, msg *xeda.Message) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.destination.name", topic),
		attribute.String("messaging.message.id", msg.ID),
		attribute.String("cloudevents.event_type", msg.Name),
	}
}

func finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
