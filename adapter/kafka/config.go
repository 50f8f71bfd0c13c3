package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Config for the Kafka transport.
type Config struct {
	Brokers []string
	// TopicPrefix is prepended to every bus topic.
	TopicPrefix string

	// RequiredAcks is "all", "one" or "none".
	RequiredAcks string
	BatchTimeout time.Duration
	AutoCreate   bool

	// Readers is the number of group members started per subscription.
	Readers  int
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
	// StartOffset is "first" or "last" and only applies to new groups.
	StartOffset string

	// MaxAttempts bounds in-place redelivery of a nacked message.
	MaxAttempts  int
	RetryBackoff time.Duration
	// DeadLetterTopic receives messages that exhausted MaxAttempts. When
	// empty they are committed and dropped.
	DeadLetterTopic string
}

func Defaults() Config {
	return Config{
		Brokers:      []string{"127.0.0.1:9092"},
		RequiredAcks: "all",
		BatchTimeout: 10 * time.Millisecond,
		AutoCreate:   true,
		Readers:      1,
		MinBytes:     1,
		MaxBytes:     10_000_000,
		MaxWait:      500 * time.Millisecond,
		StartOffset:  "first",
		MaxAttempts:  3,
		RetryBackoff: 200 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker required")
	}
	if _, err := c.requiredAcks(); err != nil {
		return err
	}
	if _, err := c.startOffset(); err != nil {
		return err
	}
	if c.Readers < 1 {
		return fmt.Errorf("kafka: readers must be >= 1, got %d", c.Readers)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("kafka: max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.MinBytes > c.MaxBytes {
		return fmt.Errorf("kafka: min_bytes %d exceeds max_bytes %d", c.MinBytes, c.MaxBytes)
	}
	return nil
}

// Topic returns the Kafka topic for a bus topic.
func (c Config) Topic(topic string) string { return c.TopicPrefix + topic }

func (c Config) requiredAcks() (kafkago.RequiredAcks, error) {
	switch strings.ToLower(c.RequiredAcks) {
	case "", "all":
		return kafkago.RequireAll, nil
	case "one":
		return kafkago.RequireOne, nil
	case "none":
		return kafkago.RequireNone, nil
	}
	return 0, fmt.Errorf("kafka: unknown required_acks %q", c.RequiredAcks)
}

func (c Config) startOffset() (int64, error) {
	switch strings.ToLower(c.StartOffset) {
	case "", "first":
		return kafkago.FirstOffset, nil
	case "last":
		return kafkago.LastOffset, nil
	}
	return 0, fmt.Errorf("kafka: unknown start_offset %q", c.StartOffset)
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"brokers":           c.Brokers,
		"topic_prefix":      c.TopicPrefix,
		"required_acks":     c.RequiredAcks,
		"batch_timeout":     c.BatchTimeout,
		"auto_create":       c.AutoCreate,
		"readers":           c.Readers,
		"min_bytes":         c.MinBytes,
		"max_bytes":         c.MaxBytes,
		"max_wait":          c.MaxWait,
		"start_offset":      c.StartOffset,
		"max_attempts":      c.MaxAttempts,
		"retry_backoff":     c.RetryBackoff,
		"dead_letter_topic": c.DeadLetterTopic,
	}
}

// ConfigFromMap overlays m on Defaults. "brokers" may be a []string, an
// []any of strings, or a comma separated string.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()
	switch v := m["brokers"].(type) {
	case []string:
		if len(v) > 0 {
			c.Brokers = v
		}
	case []any:
		var bs []string
		for _, b := range v {
			if s, ok := b.(string); ok && s != "" {
				bs = append(bs, s)
			}
		}
		if len(bs) > 0 {
			c.Brokers = bs
		}
	case string:
		if v != "" {
			c.Brokers = strings.Split(v, ",")
		}
	}
	if v, ok := m["topic_prefix"].(string); ok {
		c.TopicPrefix = v
	}
	if v, ok := m["required_acks"].(string); ok && v != "" {
		c.RequiredAcks = v
	}
	if v, ok := m["start_offset"].(string); ok && v != "" {
		c.StartOffset = v
	}
	if v, ok := m["dead_letter_topic"].(string); ok {
		c.DeadLetterTopic = v
	}
	if v, ok := m["auto_create"].(bool); ok {
		c.AutoCreate = v
	}
	setInt(m, "readers", &c.Readers)
	setInt(m, "min_bytes", &c.MinBytes)
	setInt(m, "max_bytes", &c.MaxBytes)
	setInt(m, "max_attempts", &c.MaxAttempts)
	setDur(m, "batch_timeout", &c.BatchTimeout)
	setDur(m, "max_wait", &c.MaxWait)
	setDur(m, "retry_backoff", &c.RetryBackoff)
	return c
}

func setInt(m map[string]any, k string, dst *int) {
	switch v := m[k].(type) {
	case int:
		*dst = v
	case int64:
		*dst = int(v)
	case float64:
		*dst = int(v)
	}
}

func setDur(m map[string]any, k string, dst *time.Duration) {
	switch v := m[k].(type) {
	case time.Duration:
		*dst = v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
