package mqtt

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config for the MQTT transport.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// QoS is 0, 1 or 2. At-least-once delivery needs 1 or more.
	QoS byte
	// TopicPrefix is joined with "/" in front of every bus topic.
	TopicPrefix string
	// SharedSubscriptions maps consumer groups onto MQTT 5 / broker shared
	// subscriptions ($share/<group>/...). Without it every subscriber
	// receives every message.
	SharedSubscriptions bool
	ConnectTimeout      time.Duration
	KeepAlive           time.Duration
}

func Defaults() Config {
	host, _ := os.Hostname()
	return Config{
		BrokerURL:           "tcp://127.0.0.1:1883",
		ClientID:            fmt.Sprintf("xeda-%s-%d", host, os.Getpid()),
		QoS:                 1,
		TopicPrefix:         "xeda",
		SharedSubscriptions: true,
		ConnectTimeout:      10 * time.Second,
		KeepAlive:           30 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("mqtt: broker_url required")
	}
	if c.ClientID == "" {
		return errors.New("mqtt: client_id required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if strings.ContainsAny(c.TopicPrefix, "+#") {
		return fmt.Errorf("mqtt: topic_prefix %q must not contain wildcards", c.TopicPrefix)
	}
	return nil
}

// Topic returns the MQTT topic a bus topic is published to.
func (c Config) Topic(topic string) string {
	if c.TopicPrefix == "" {
		return topic
	}
	return c.TopicPrefix + "/" + topic
}

// Filter returns the subscription filter for topic consumed by group.
func (c Config) Filter(topic, group string) string {
	if c.SharedSubscriptions && group != "" {
		return "$share/" + group + "/" + c.Topic(topic)
	}
	return c.Topic(topic)
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"broker_url":           c.BrokerURL,
		"client_id":            c.ClientID,
		"username":             c.Username,
		"password":             c.Password,
		"qos":                  int(c.QoS),
		"topic_prefix":         c.TopicPrefix,
		"shared_subscriptions": c.SharedSubscriptions,
		"connect_timeout":      c.ConnectTimeout,
		"keep_alive":           c.KeepAlive,
	}
}

func ConfigFromMap(m map[string]any) Config {
	c := Defaults()
	for k, dst := range map[string]*string{
		"broker_url": &c.BrokerURL,
		"client_id":  &c.ClientID,
		"username":   &c.Username,
		"password":   &c.Password,
	} {
		if v, ok := m[k].(string); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := m["topic_prefix"].(string); ok {
		c.TopicPrefix = v
	}
	switch v := m["qos"].(type) {
	case int:
		c.QoS = byte(v)
	case int64:
		c.QoS = byte(v)
	case float64:
		c.QoS = byte(v)
	}
	if v, ok := m["shared_subscriptions"].(bool); ok {
		c.SharedSubscriptions = v
	}
	for k, dst := range map[string]*time.Duration{"connect_timeout": &c.ConnectTimeout, "keep_alive": &c.KeepAlive} {
		switch v := m[k].(type) {
		case time.Duration:
			*dst = v
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	return c
}
