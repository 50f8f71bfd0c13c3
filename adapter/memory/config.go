package memory

import (
	"errors"
	"time"
)

// Config controls the in-process transport.
type Config struct {
	// BufferSize is the per-group queue capacity (default 1024).
	BufferSize int
	// Concurrency is the number of workers per subscription (default 1).
	Concurrency int
	// RedeliveryDelay postpones a nacked message before it is queued again.
	RedeliveryDelay time.Duration
	// MaxDeliveries caps attempts per message and group. Zero means unlimited.
	// Messages that exhaust it are moved to the dead letters.
	MaxDeliveries int
	// Retain keeps up to BufferSize messages for topics nobody subscribed to
	// yet and replays them to the first group that joins.
	Retain bool
}

// Defaults fills zero values.
func (c Config) Defaults() Config {
	if c.BufferSize < 1 {
		c.BufferSize = 1024
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	return c
}

// Validate rejects negative settings.
func (c Config) Validate() error {
	if c.RedeliveryDelay < 0 {
		return errors.New("memory: redelivery delay must not be negative")
	}
	if c.MaxDeliveries < 0 {
		return errors.New("memory: max deliveries must not be negative")
	}
	return nil
}

// ConfigFromMap reads the generic registry config.
func ConfigFromMap(cfg map[string]any) Config {
	return Config{
		BufferSize:      intFrom(cfg, "buffer_size", 1024),
		Concurrency:     intFrom(cfg, "concurrency", 1),
		RedeliveryDelay: durFrom(cfg, "redelivery_delay", 0),
		MaxDeliveries:   intFrom(cfg, "max_deliveries", 0),
		Retain:          boolFrom(cfg, "retain", false),
	}.Defaults()
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"buffer_size":      c.BufferSize,
		"concurrency":      c.Concurrency,
		"redelivery_delay": c.RedeliveryDelay,
		"max_deliveries":   c.MaxDeliveries,
		"retain":           c.Retain,
	}
}

func intFrom(cfg map[string]any, k string, d int) int {
	switch v := cfg[k].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return d
}

func boolFrom(cfg map[string]any, k string, d bool) bool {
	if v, ok := cfg[k].(bool); ok {
		return v
	}
	return d
}

func durFrom(cfg map[string]any, k string, d time.Duration) time.Duration {
	switch v := cfg[k].(type) {
	case time.Duration:
		return v
	case string:
		if p, err := time.ParseDuration(v); err == nil {
			return p
		}
	case int64:
		return time.Duration(v)
	case float64:
		return time.Duration(v)
	}
	return d
}
