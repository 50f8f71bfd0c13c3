package redisstream

import (
	"fmt"
	"os"
	"time"
)

// Config for the Redis Streams transport.
type Config struct {
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// StreamPrefix is prepended to every topic to form the stream key.
	StreamPrefix string

	Consumer    string
	Concurrency int
	BatchSize   int
	Block       time.Duration
	AutoCreate  bool

	AutoDeleteOnAck bool
	// DeadLetter names the stream nacked entries are copied to. When empty a
	// nacked entry stays pending and is reclaimed by the claim loop.
	DeadLetter   string
	MaxLenApprox int64

	ClaimMinIdle  time.Duration
	ClaimBatch    int
	ClaimInterval time.Duration
}

// Defaults returns a Config for a local Redis.
func Defaults() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "xeda"
	}
	return Config{
		Addr:          "127.0.0.1:6379",
		Consumer:      fmt.Sprintf("xeda-%s-%d", host, os.Getpid()),
		Concurrency:   4,
		BatchSize:     64,
		Block:         5 * time.Second,
		AutoCreate:    true,
		ClaimBatch:    64,
		ClaimInterval: 15 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("redisstream: addr required")
	case c.Consumer == "":
		return fmt.Errorf("redisstream: consumer required")
	case c.Concurrency < 1:
		return fmt.Errorf("redisstream: concurrency must be >= 1, got %d", c.Concurrency)
	case c.BatchSize < 1:
		return fmt.Errorf("redisstream: batch_size must be >= 1, got %d", c.BatchSize)
	case c.Block <= 0:
		return fmt.Errorf("redisstream: block must be > 0, got %v", c.Block)
	case c.ClaimMinIdle > 0 && c.ClaimInterval <= 0:
		return fmt.Errorf("redisstream: claim_interval must be > 0 when claim_min_idle is set")
	}
	return nil
}

// Stream returns the stream key for topic.
func (c Config) Stream(topic string) string { return c.StreamPrefix + topic }

func (c Config) toMap() map[string]any {
	return map[string]any{
		"addr":               c.Addr,
		"username":           c.Username,
		"password":           c.Password,
		"db":                 c.DB,
		"tls":                c.TLS,
		"tls_server_name":    c.TLSServerName,
		"stream_prefix":      c.StreamPrefix,
		"consumer":           c.Consumer,
		"concurrency":        c.Concurrency,
		"batch_size":         c.BatchSize,
		"block":              c.Block,
		"auto_create":        c.AutoCreate,
		"auto_delete_on_ack": c.AutoDeleteOnAck,
		"dead_letter":        c.DeadLetter,
		"max_len_approx":     c.MaxLenApprox,
		"claim_min_idle":     c.ClaimMinIdle,
		"claim_batch":        c.ClaimBatch,
		"claim_interval":     c.ClaimInterval,
	}
}

// ConfigFromMap overlays m on Defaults. Numbers may arrive as int, int64 or
// float64 and durations as time.Duration or strings, as YAML and JSON
// decoders produce them.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()
	str := func(k string, dst *string, allowEmpty bool) {
		if v, ok := m[k].(string); ok && (allowEmpty || v != "") {
			*dst = v
		}
	}
	boolean := func(k string, dst *bool) {
		if v, ok := m[k].(bool); ok {
			*dst = v
		}
	}
	positive := func(k string, dst *int) {
		if v, ok := toInt64(m[k]); ok && v > 0 {
			*dst = int(v)
		}
	}
	duration := func(k string, dst *time.Duration) {
		switch v := m[k].(type) {
		case time.Duration:
			*dst = v
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("addr", &c.Addr, false)
	str("username", &c.Username, true)
	str("password", &c.Password, true)
	if v, ok := toInt64(m["db"]); ok {
		c.DB = int(v)
	}
	boolean("tls", &c.TLS)
	str("tls_server_name", &c.TLSServerName, true)
	str("stream_prefix", &c.StreamPrefix, true)
	str("consumer", &c.Consumer, false)
	positive("concurrency", &c.Concurrency)
	positive("batch_size", &c.BatchSize)
	duration("block", &c.Block)
	boolean("auto_create", &c.AutoCreate)
	boolean("auto_delete_on_ack", &c.AutoDeleteOnAck)
	str("dead_letter", &c.DeadLetter, true)
	if v, ok := toInt64(m["max_len_approx"]); ok && v > 0 {
		c.MaxLenApprox = v
	}
	duration("claim_min_idle", &c.ClaimMinIdle)
	positive("claim_batch", &c.ClaimBatch)
	duration("claim_interval", &c.ClaimInterval)
	return c
}
