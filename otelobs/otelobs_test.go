package otelobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/trickstertwo/xeda"
	"github.com/trickstertwo/xeda/adapter/memory"
)

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestObserver_RecordsBusEvents(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	obs, err := NewObserver(mp)
	require.NoError(t, err)

	obs.OnBusEvent(xeda.BusEvent{Type: xeda.EventPublishDone, Topic: xeda.TypeEventCreate, Duration: time.Millisecond})
	obs.OnBusEvent(xeda.BusEvent{Type: xeda.EventPublishDone, Topic: xeda.TypeEventCreate, Err: errors.New("x")})
	obs.OnBusEvent(xeda.BusEvent{Type: xeda.EventConsumeDone, Topic: xeda.TypeEventCreate})
	obs.OnBusEvent(xeda.BusEvent{Type: xeda.EventAck, Topic: xeda.TypeEventCreate})
	obs.OnBusEvent(xeda.BusEvent{Type: xeda.EventNack, Topic: xeda.TypeEventCreate})
	obs.OnBusEvent(xeda.BusEvent{Type: xeda.EventError})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.EqualValues(t, 2, sumOf(t, rm, "xeda.messages.published"))
	assert.EqualValues(t, 1, sumOf(t, rm, "xeda.messages.consumed"))
	assert.EqualValues(t, 1, sumOf(t, rm, "xeda.messages.acked"))
	assert.EqualValues(t, 1, sumOf(t, rm, "xeda.messages.nacked"))
	assert.EqualValues(t, 2, sumOf(t, rm, "xeda.errors"))
}

func TestTracing_PropagatesAcrossBus(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tr := NewTracing(tp)

	reader := sdkmetric.NewManualReader()
	obs, err := NewObserver(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	bus, err := xeda.NewBusBuilder().
		WithTransportInstance(memory.NewTransport(memory.Config{MaxDeliveries: 1})).
		WithPublishMiddleware(tr.PublishMiddleware()).
		WithMiddleware(tr.ConsumeMiddleware()).
		WithObserver(obs).
		Build()
	require.NoError(t, err)
	defer bus.Close(context.Background())

	got := make(chan *xeda.Message, 1)
	_, err = bus.Subscribe(context.Background(), xeda.TypeEventUpdate, "trace", func(_ context.Context, msg *xeda.Message) error {
		got <- msg
		return errors.New("reject")
	})
	require.NoError(t, err)

	env := xeda.Envelope{SpecVersion: xeda.SpecVersion, ID: "env-1", Type: xeda.TypeEventUpdate, Time: time.Now()}
	require.NoError(t, bus.Dispatch(context.Background(), env.Type, env))

	var msg *xeda.Message
	select {
	case msg = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
	assert.NotEmpty(t, msg.Metadata["traceparent"])

	require.Eventually(t, func() bool { return len(sr.Ended()) == 2 }, 2*time.Second, 5*time.Millisecond)
	spans := sr.Ended()
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}
	pub := byName["publish "+xeda.TypeEventUpdate]
	con := byName["consume "+xeda.TypeEventUpdate]
	require.NotNil(t, pub)
	require.NotNil(t, con)
	assert.Equal(t, pub.SpanContext().TraceID(), con.SpanContext().TraceID())
	assert.Equal(t, pub.SpanContext().SpanID(), con.Parent().SpanID())
	assert.Equal(t, codes.Error, con.Status().Code)
}
