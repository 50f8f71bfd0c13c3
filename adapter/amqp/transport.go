package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/trickstertwo/xeda"
)

const TransportName = "amqp"

// ErrNotConfirmed is returned when the broker nacks a publish.
var ErrNotConfirmed = errors.New("amqp: publish not confirmed by broker")

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

// Transport routes bus topics through one durable topic exchange. Publishes
// go through a single confirm-mode channel.
type Transport struct {
	cfg  Config
	conn *amqp.Connection

	pubMu    sync.Mutex
	pubCh    *amqp.Channel
	confirms chan amqp.Confirmation

	closed atomic.Bool
}

var _ xeda.Transport = (*Transport)(nil)

func NewTransport(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", cfg.Exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: confirm mode: %w", err)
	}
	return &Transport{
		cfg:      cfg,
		conn:     conn,
		pubCh:    ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// Publish sends each message persistently with routing key topic and waits
// for the broker confirmation.
func (t *Transport) Publish(ctx context.Context, topic string, msgs ...*xeda.Message) error {
	if t.closed.Load() {
		return errors.New("amqp: transport closed")
	}
	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	for _, m := range msgs {
		if m == nil {
			continue
		}
		if err := t.pubCh.PublishWithContext(ctx, t.cfg.Exchange, topic, false, false, toPublishing(m)); err != nil {
			return fmt.Errorf("amqp: publish %s: %w", topic, err)
		}
		if err := t.awaitConfirm(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) awaitConfirm(ctx context.Context) error {
	timer := time.NewTimer(t.cfg.ConfirmTimeout)
	defer timer.Stop()
	select {
	case c, ok := <-t.confirms:
		if !ok {
			return errors.New("amqp: publish channel closed")
		}
		if !c.Ack {
			return ErrNotConfirmed
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("amqp: confirm timeout after %s", t.cfg.ConfirmTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toPublishing(m *xeda.Message) amqp.Publishing {
	headers := make(amqp.Table, len(m.Metadata))
	for k, v := range m.Metadata {
		headers[k] = v
	}
	ct := m.Metadata[xeda.MetaContentType]
	if ct == "" {
		ct = xeda.ContentTypeJSON
	}
	return amqp.Publishing{
		Headers:      headers,
		ContentType:  ct,
		DeliveryMode: amqp.Persistent,
		MessageId:    m.ID,
		Type:         m.Name,
		Timestamp:    m.ProducedAt,
		Body:         m.Payload,
	}
}

func fromDelivery(d amqp.Delivery) *xeda.Message {
	msg := &xeda.Message{
		ID:         d.MessageId,
		Name:       d.Type,
		Payload:    d.Body,
		ProducedAt: d.Timestamp,
		Metadata:   make(map[string]string, len(d.Headers)),
	}
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			msg.Metadata[k] = s
		}
	}
	return msg
}

type subscription struct {
	ch     *amqp.Channel
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ch.Close()
		s.wg.Wait()
	})
	return err
}

// Subscribe declares the durable queue QueueName(group, topic), binds it to
// topic and consumes it with Concurrency workers.
func (t *Transport) Subscribe(ctx context.Context, topic, group string, handler func(xeda.Delivery)) (xeda.Subscription, error) {
	if t.closed.Load() {
		return nil, errors.New("amqp: transport closed")
	}
	ch, err := t.conn.Channel()
	if err != nil {
		return nil, err
	}
	queue := QueueName(group, topic)
	if err := t.declareQueue(ch, queue, topic); err != nil {
		_ = ch.Close()
		return nil, err
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp: consume %s: %w", queue, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{ch: ch, cancel: cancel}
	requeue := t.cfg.DeadLetterExchange == ""
	for i := 0; i < t.cfg.Concurrency; i++ {
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			for {
				select {
				case <-sctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					handler(&delivery{d: d, msg: fromDelivery(d), requeue: requeue})
				}
			}
		}()
	}
	return sub, nil
}

func (t *Transport) declareQueue(ch *amqp.Channel, queue, topic string) error {
	if err := ch.Qos(t.cfg.Prefetch, 0, false); err != nil {
		return err
	}
	var args amqp.Table
	if t.cfg.DeadLetterExchange != "" {
		args = amqp.Table{"x-dead-letter-exchange": t.cfg.DeadLetterExchange}
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("amqp: declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, topic, t.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("amqp: bind %s to %s: %w", queue, topic, err)
	}
	return nil
}

func (t *Transport) Close(context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

type delivery struct {
	d       amqp.Delivery
	msg     *xeda.Message
	requeue bool
	once    sync.Once
}

func (d *delivery) Message() *xeda.Message { return d.msg }

func (d *delivery) Ack(context.Context) error {
	var err error
	d.once.Do(func() { err = d.d.Ack(false) })
	return err
}

// Nack requeues the delivery, or dead-letters it when the queue has a
// dead letter exchange.
func (d *delivery) Nack(context.Context, error) error {
	var err error
	d.once.Do(func() { err = d.d.Nack(false, d.requeue) })
	return err
}
