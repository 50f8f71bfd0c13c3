package mqtt

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xeda"
	"github.com/trickstertwo/xlog"
)

// Use builds a Bus on MQTT and installs it as the default Bus.
func Use(cfg Config, opts ...Option) *xeda.Bus {
	bb := xeda.NewBusBuilder().WithTransport(TransportName, cfg.toMap())
	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	bus, err := bb.Build()
	if err != nil {
		panic(fmt.Errorf("mqtt.Use: %w", err))
	}
	xeda.SetDefault(bus)
	return bus
}

// Option configures the Bus built by Use.
type Option func(*xeda.BusBuilder)

func WithLogger(l *xlog.Logger) Option {
	return func(b *xeda.BusBuilder) { b.WithLogger(l) }
}

func WithClock(c xclock.Clock) Option {
	return func(b *xeda.BusBuilder) { b.WithClock(c) }
}

func WithPublishMiddleware(mw ...xeda.Middleware) Option {
	return func(b *xeda.BusBuilder) { b.WithPublishMiddleware(mw...) }
}

func WithMiddleware(mw ...xeda.Middleware) Option {
	return func(b *xeda.BusBuilder) { b.WithMiddleware(mw...) }
}

func WithAckTimeout(d time.Duration) Option {
	return func(b *xeda.BusBuilder) { b.WithAckTimeout(d) }
}

func WithObserver(obs ...xeda.Observer) Option {
	return func(b *xeda.BusBuilder) { b.WithObserver(obs...) }
}
