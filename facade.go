package xeda

import (
	"context"
	"sync"
)

var (
	defaultBus   *Bus
	defaultBusMu sync.RWMutex
)

// Default returns the process-wide Bus installed with SetDefault.
func Default() (*Bus, error) {
	defaultBusMu.RLock()
	defer defaultBusMu.RUnlock()
	if defaultBus == nil {
		return nil, ErrDefaultBusNotInitialized
	}
	return defaultBus, nil
}

// SetDefault replaces the process-wide default Bus. Passing nil clears it.
func SetDefault(b *Bus) {
	defaultBusMu.Lock()
	defaultBus = b
	defaultBusMu.Unlock()
}

// Dispatch publishes env through the default bus.
func Dispatch(ctx context.Context, topic string, env Envelope) error {
	b, err := Default()
	if err != nil {
		return err
	}
	return b.Dispatch(ctx, topic, env)
}

// Subscribe registers a handler on the default bus.
func Subscribe(ctx context.Context, topic, group string, handler Handler) (Subscription, error) {
	b, err := Default()
	if err != nil {
		return nil, err
	}
	return b.Subscribe(ctx, topic, group, handler)
}
