package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/trickstertwo/xeda"
)

const TransportName = "mqtt"

func init() {
	if err := xeda.RegisterTransport(TransportName, func(cfg map[string]any) (xeda.Transport, error) {
		t, err := NewTransport(ConfigFromMap(cfg))
		if err != nil {
			return nil, err
		}
		return t, nil
	}); err != nil {
		panic(fmt.Errorf("xeda: failed to register transport %q: %w", TransportName, err))
	}
}

// frame wraps a message on the wire. MQTT 3.1.1 has no user properties, so
// the id, name and metadata travel next to the payload.
type frame struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	ProducedAt time.Time         `json:"produced_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Payload    json.RawMessage   `json:"payload"`
}

func encodeFrame(m *xeda.Message) ([]byte, error) {
	if !json.Valid(m.Payload) {
		return nil, fmt.Errorf("mqtt: payload of %s is not JSON", m.ID)
	}
	return json.Marshal(frame{
		ID:         m.ID,
		Name:       m.Name,
		ProducedAt: m.ProducedAt,
		Metadata:   m.Metadata,
		Payload:    m.Payload,
	})
}

func decodeFrame(b []byte) (*xeda.Message, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("mqtt: decode frame: %w", err)
	}
	return &xeda.Message{
		ID:         f.ID,
		Name:       f.Name,
		ProducedAt: f.ProducedAt,
		Metadata:   f.Metadata,
		Payload:    []byte(f.Payload),
	}, nil
}

// Transport publishes frames to Config.Topic(topic). Ack on a delivery
// sends the PUBACK; a nacked QoS 1 message is redelivered by the broker
// when the session resumes.
type Transport struct {
	cfg    Config
	client paho.Client
	closed atomic.Bool
	bad    atomic.Uint64
}

var _ xeda.Transport = (*Transport)(nil)

func NewTransport(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(false).
		SetOrderMatters(false).
		SetAutoAckDisabled(true).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	if err := wait(client.Connect(), cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.BrokerURL, err)
	}
	return &Transport{cfg: cfg, client: client}, nil
}

func wait(tok paho.Token, timeout time.Duration) error {
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %s", timeout)
	}
	return tok.Error()
}

func (t *Transport) Publish(ctx context.Context, topic string, msgs ...*xeda.Message) error {
	if t.closed.Load() {
		return errors.New("mqtt: transport closed")
	}
	target := t.cfg.Topic(topic)
	for _, m := range msgs {
		if m == nil {
			continue
		}
		b, err := encodeFrame(m)
		if err != nil {
			return err
		}
		tok := t.client.Publish(target, t.cfg.QoS, false, b)
		select {
		case <-tok.Done():
			if err := tok.Error(); err != nil {
				return fmt.Errorf("mqtt: publish %s: %w", target, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type subscription struct {
	t      *Transport
	filter string
	once   sync.Once
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		if s.t.closed.Load() {
			return
		}
		err = wait(s.t.client.Unsubscribe(s.filter), s.t.cfg.ConnectTimeout)
	})
	return err
}

// Subscribe subscribes to Config.Filter(topic, group). Frames that cannot
// be decoded are acknowledged and counted.
func (t *Transport) Subscribe(ctx context.Context, topic, group string, handler func(xeda.Delivery)) (xeda.Subscription, error) {
	if t.closed.Load() {
		return nil, errors.New("mqtt: transport closed")
	}
	filter := t.cfg.Filter(topic, group)
	cb := func(_ paho.Client, pm paho.Message) {
		if ctx.Err() != nil {
			return
		}
		msg, err := decodeFrame(pm.Payload())
		if err != nil {
			t.bad.Add(1)
			pm.Ack()
			return
		}
		handler(&delivery{pm: pm, msg: msg})
	}
	if err := wait(t.client.Subscribe(filter, t.cfg.QoS, cb), t.cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt: subscribe %s: %w", filter, err)
	}
	sub := &subscription{t: t, filter: filter}
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub, nil
}

// Malformed reports how many undecodable frames were dropped.
func (t *Transport) Malformed() uint64 { return t.bad.Load() }

func (t *Transport) Close(context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.Disconnect(250)
	return nil
}

type delivery struct {
	pm   paho.Message
	msg  *xeda.Message
	once sync.Once
}

func (d *delivery) Message() *xeda.Message { return d.msg }

func (d *delivery) Ack(context.Context) error {
	d.once.Do(d.pm.Ack)
	return nil
}

func (d *delivery) Nack(context.Context, error) error {
	d.once.Do(func() {})
	return nil
}
