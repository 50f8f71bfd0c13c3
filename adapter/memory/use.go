package memory

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xeda"
	"github.com/trickstertwo/xlog"
)

// Use builds a Bus on the in-memory transport and installs it as the
// process-wide default.
//
//	bus := memory.Use(memory.Config{Concurrency: 4, Retain: true},
//	    memory.WithLogger(logger),
//	)
func Use(cfg Config, opts ...Option) *xeda.Bus {
	cfg = cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Errorf("memory.Use: %w", err))
	}
	bb := xeda.NewBusBuilder().WithTransport(TransportName, cfg.toMap())
	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	bus, err := bb.Build()
	if err != nil {
		panic(fmt.Errorf("memory.Use: %w", err))
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

// WithMiddleware adds consume-side middlewares.
func WithMiddleware(mw ...xeda.Middleware) Option {
	return func(b *xeda.BusBuilder) { b.WithMiddleware(mw...) }
}

// WithPublishMiddleware adds middlewares around Dispatch.
func WithPublishMiddleware(mw ...xeda.Middleware) Option {
	return func(b *xeda.BusBuilder) { b.WithPublishMiddleware(mw...) }
}

func WithAckTimeout(d time.Duration) Option {
	return func(b *xeda.BusBuilder) { b.WithAckTimeout(d) }
}

func WithObserver(obs ...xeda.Observer) Option {
	return func(b *xeda.BusBuilder) { b.WithObserver(obs...) }
}

func WithObserverPool(workers, bufferSize int) Option {
	return func(b *xeda.BusBuilder) { b.WithObserverPool(workers, bufferSize) }
}
