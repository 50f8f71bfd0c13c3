package redisstream

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xeda"
	"github.com/trickstertwo/xlog"
)

const TransportName = "redis-streams"

func init() {
	if err := xeda.RegisterTransport(TransportName, func(cfg map[string]any) (xeda.Transport, error) {
		return NewTransport(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xeda: failed to register transport %q: %w", TransportName, err))
	}
}

// Use builds a Bus on Redis Streams and installs it as the default Bus.
func Use(cfg Config, opts ...Option) *xeda.Bus {
	bb := xeda.NewBusBuilder().WithTransport(TransportName, cfg.toMap())
	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	bus, err := bb.Build()
	if err != nil {
		panic(fmt.Errorf("redisstream.Use: %w", err))
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

func WithMiddleware(mw ...xeda.Middleware) Option {
	return func(b *xeda.BusBuilder) { b.WithMiddleware(mw...) }
}

func WithPublishMiddleware(mw ...xeda.Middleware) Option {
	return func(b *xeda.BusBuilder) { b.WithPublishMiddleware(mw...) }
}

func WithAckTimeout(d time.Duration) Option {
	return func(b *xeda.BusBuilder) { b.WithAckTimeout(d) }
}

func WithObserver(obs ...xeda.Observer) Option {
	return func(b *xeda.BusBuilder) { b.WithObserver(obs...) }
}
