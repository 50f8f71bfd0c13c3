package xeda

import (
	"context"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// BusBuilder constructs Bus instances.
type BusBuilder struct {
	transportName string
	transportCfg  map[string]any
	transportInst Transport

	codecName string
	codecInst Codec

	middlewares        []Middleware
	publishMiddlewares []Middleware
	observers          []Observer
	logger             *xlog.Logger
	clock              xclock.Clock
	ackTimeout         time.Duration

	poolWorkers   int
	poolBuffer    int
	poolCloseWait time.Duration
}

// NewBusBuilder returns a builder with the json codec and a 5s ack timeout.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{
		codecName:     "json",
		ackTimeout:    5 * time.Second,
		poolCloseWait: 5 * time.Second,
	}
}

// WithTransport selects a registered transport by name.
func (bb *BusBuilder) WithTransport(name string, cfg map[string]any) *BusBuilder {
	bb.transportName = name
	bb.transportCfg = cfg
	return bb
}

// WithTransportInstance accepts a ready Transport (e.g. from an adapter's Use).
func (bb *BusBuilder) WithTransportInstance(t Transport) *BusBuilder {
	bb.transportInst = t
	return bb
}

func (bb *BusBuilder) WithCodec(name string) *BusBuilder {
	bb.codecName = name
	return bb
}

func (bb *BusBuilder) WithCodecInstance(c Codec) *BusBuilder {
	bb.codecInst = c
	return bb
}

// WithMiddleware appends consume-side middlewares, outermost first.
func (bb *BusBuilder) WithMiddleware(mw ...Middleware) *BusBuilder {
	bb.middlewares = appendNonNil(bb.middlewares, mw)
	return bb
}

// WithPublishMiddleware appends middlewares wrapped around transport
// publishes made by Dispatch.
func (bb *BusBuilder) WithPublishMiddleware(mw ...Middleware) *BusBuilder {
	bb.publishMiddlewares = appendNonNil(bb.publishMiddlewares, mw)
	return bb
}

func appendNonNil(dst, mws []Middleware) []Middleware {
	for _, m := range mws {
		if m != nil {
			dst = append(dst, m)
		}
	}
	return dst
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

// WithObserverPool delivers observer callbacks on workers goroutines instead
// of inline. Events beyond bufferSize are dropped and counted.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	bb.poolWorkers = workers
	bb.poolBuffer = bufferSize
	if bb.poolWorkers < 1 {
		bb.poolWorkers = 4
	}
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

func (bb *BusBuilder) WithAckTimeout(d time.Duration) *BusBuilder {
	if d > 0 {
		bb.ackTimeout = d
	}
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	var (
		tr  Transport
		err error
	)
	switch {
	case bb.transportInst != nil:
		tr = bb.transportInst
	case bb.transportName != "":
		tr, err = NewTransport(bb.transportName, bb.transportCfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoTransportConfigured
	}

	cd := bb.codecInst
	if cd == nil {
		cd, err = NewCodec(bb.codecName)
		if err != nil {
			return nil, err
		}
	}

	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	b := &Bus{
		transport:     tr,
		codec:         cd,
		clock:         clk,
		logger:        lg,
		middlewares:   bb.middlewares,
		publishChain:  bb.publishMiddlewares,
		ackTimeout:    bb.ackTimeout,
		metrics:       &busMetrics{},
		poolCloseWait: bb.poolCloseWait,
	}
	if bb.poolWorkers > 0 {
		b.observerPool = NewObserverPool(context.Background(), bb.poolWorkers, bb.poolBuffer)
	}

	hasLogging := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLogging = true
			break
		}
	}
	if !hasLogging {
		b.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	return b, nil
}

// New constructs a Bus via the builder and returns a close func for convenience.
func New(init func(b *BusBuilder)) (*Bus, func() error, error) {
	b := NewBusBuilder()
	if init != nil {
		init(b)
	}
	bus, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	return bus, func() error { return bus.Close(context.Background()) }, nil
}
