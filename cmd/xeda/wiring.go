package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/trickstertwo/xeda"
	"github.com/trickstertwo/xeda/otelobs"
	"github.com/trickstertwo/xeda/schema"
	"github.com/trickstertwo/xeda/store"
)

// openBus builds the bus described by the transport, limits and telemetry
// settings.
func (a *app) openBus() (*xeda.Bus, error) {
	obs, err := otelobs.NewObserver(nil)
	if err != nil {
		return nil, err
	}
	tracing := otelobs.NewTracing(nil)

	publish := []xeda.Middleware{tracing.PublishMiddleware()}
	if r := a.cfg.Limits.PublishRate; r > 0 {
		publish = append(publish, xeda.RateLimitMiddleware(rate.NewLimiter(rate.Limit(r), max(a.cfg.Limits.PublishBurst, 1))))
	}
	publish = append(publish, xeda.RetryMiddleware(xeda.RetryConfig{
		MaxAttempts: 3,
		Backoff:     xeda.ExponentialBackoff(100*time.Millisecond, 2*time.Second),
		Jitter:      50 * time.Millisecond,
	}))

	return xeda.NewBusBuilder().
		WithTransport(a.cfg.Transport.Kind, a.cfg.Transport.Settings).
		WithLogger(a.logger).
		WithPublishMiddleware(publish...).
		WithMiddleware(tracing.ConsumeMiddleware(), xeda.LoggingMiddleware()).
		WithObserver(obs).
		WithObserverPool(4, 1024).
		Build()
}

// dispatcher puts the schema guard in front of bus when validation is on.
func (a *app) dispatcher(bus *xeda.Bus) (xeda.Dispatcher, error) {
	if !a.cfg.Schema.Validate {
		return bus, nil
	}
	v, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}
	return schema.NewGuard(v, bus), nil
}

func (a *app) openStore(ctx context.Context) (*store.SQLStore, error) {
	st, err := store.Open(a.cfg.Scheduler.Driver, a.cfg.Scheduler.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func (a *app) handlerOptions() ([]xeda.HandlerOption, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	return []xeda.HandlerOption{
		xeda.WithMapperOptions(xeda.WithLocation(loc)),
		xeda.WithHandlerLogger(a.logger),
	}, nil
}

// reportingDispatcher writes "<topic> <id>" for every envelope next accepts.
type reportingDispatcher struct {
	next xeda.Dispatcher
	mu   sync.Mutex
	out  io.Writer
}

func (r *reportingDispatcher) Dispatch(ctx context.Context, topic string, env xeda.Envelope) error {
	if err := r.next.Dispatch(ctx, topic, env); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintf(r.out, "%s %s\n", topic, env.ID)
	return err
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (a *app) identity(path string) (*xeda.Account, error) {
	if path == "" {
		return nil, nil
	}
	var acc xeda.Account
	if err := readJSON(path, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}
