package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/trickstertwo/xeda"
	"github.com/trickstertwo/xlog"
)

const TransportName = "kafka"

// HeaderProducedAt carries Message.ProducedAt as RFC 3339 with nanoseconds.
const HeaderProducedAt = "xeda_produced_at"

// headerName carries Message.Name.
const headerName = "xeda_name"

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

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Transport publishes with one shared kafka.Writer and consumes with a
// kafka.Reader per group member. Messages of one reader are handled in
// order; a nacked message is retried in place before the reader moves on.
type Transport struct {
	cfg       Config
	w         writer
	newReader func(topic, group string) reader
	logger    *xlog.Logger
	closed    atomic.Bool

	published  atomic.Uint64
	committed  atomic.Uint64
	retried    atomic.Uint64
	deadLetter atomic.Uint64
}

var _ xeda.Transport = (*Transport)(nil)

func NewTransport(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	acks, _ := cfg.requiredAcks()
	start, _ := cfg.startOffset()

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           acks,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: cfg.AutoCreate,
	}
	t := &Transport{cfg: cfg, w: w, logger: xlog.Default()}
	t.newReader = func(topic, group string) reader {
		return kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     group,
			Topic:       topic,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: start,
		})
	}
	return t, nil
}

// Publish writes msgs keyed by message id so redeliveries of one envelope
// land on the same partition.
func (t *Transport) Publish(ctx context.Context, topic string, msgs ...*xeda.Message) error {
	if t.closed.Load() {
		return errors.New("kafka: transport closed")
	}
	out := make([]kafkago.Message, 0, len(msgs))
	for _, m := range msgs {
		if m != nil {
			out = append(out, toKafka(t.cfg.Topic(topic), m))
		}
	}
	if len(out) == 0 {
		return nil
	}
	if err := t.w.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("kafka: write %s: %w", t.cfg.Topic(topic), err)
	}
	t.published.Add(uint64(len(out)))
	return nil
}

func toKafka(topic string, m *xeda.Message) kafkago.Message {
	headers := make([]kafkago.Header, 0, len(m.Metadata)+2)
	headers = append(headers, kafkago.Header{Key: headerName, Value: []byte(m.Name)})
	if !m.ProducedAt.IsZero() {
		headers = append(headers, kafkago.Header{Key: HeaderProducedAt, Value: []byte(m.ProducedAt.Format(time.RFC3339Nano))})
	}
	for k, v := range m.Metadata {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return kafkago.Message{
		Topic:   topic,
		Key:     []byte(m.ID),
		Value:   m.Payload,
		Headers: headers,
		Time:    m.ProducedAt,
	}
}

func fromKafka(km kafkago.Message) *xeda.Message {
	msg := &xeda.Message{
		ID:       string(km.Key),
		Payload:  km.Value,
		Metadata: make(map[string]string, len(km.Headers)),
	}
	for _, h := range km.Headers {
		switch h.Key {
		case headerName:
			msg.Name = string(h.Value)
		case HeaderProducedAt:
			if ts, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				msg.ProducedAt = ts
			}
		default:
			msg.Metadata[h.Key] = string(h.Value)
		}
	}
	if msg.ID == "" {
		msg.ID = msg.Metadata[xeda.MetaID]
	}
	return msg
}

type subscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// Subscribe starts Config.Readers members of group on topic.
func (t *Transport) Subscribe(ctx context.Context, topic, group string, handler func(xeda.Delivery)) (xeda.Subscription, error) {
	if t.closed.Load() {
		return nil, errors.New("kafka: transport closed")
	}
	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel}
	for i := 0; i < t.cfg.Readers; i++ {
		r := t.newReader(t.cfg.Topic(topic), group)
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			defer r.Close()
			t.consume(sctx, r, handler)
		}()
	}
	return sub, nil
}

func (t *Transport) consume(ctx context.Context, r reader, handler func(xeda.Delivery)) {
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn().Err(err).Msg("kafka: fetch failed")
			if !sleep(ctx, t.cfg.RetryBackoff) {
				return
			}
			continue
		}
		t.handle(ctx, r, km, handler)
	}
}

// handle runs handler until it acks or MaxAttempts is reached.
func (t *Transport) handle(ctx context.Context, r reader, km kafkago.Message, handler func(xeda.Delivery)) {
	var last error
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		d := &delivery{msg: fromKafka(km), km: km, r: r, t: t}
		handler(d)
		if d.acked || d.commitErr != nil {
			// a failed commit is redelivered by the group after rebalance
			return
		}
		last = d.reason
		if ctx.Err() != nil {
			return
		}
		if attempt < t.cfg.MaxAttempts {
			t.retried.Add(1)
			if !sleep(ctx, t.cfg.RetryBackoff) {
				return
			}
		}
	}

	if t.cfg.DeadLetterTopic != "" {
		dl := km
		dl.Topic = t.cfg.DeadLetterTopic
		dl.Partition = 0
		dl.Offset = 0
		dl.Headers = append(append([]kafkago.Header(nil), km.Headers...),
			kafkago.Header{Key: "xeda_error", Value: []byte(fmt.Sprint(last))},
			kafkago.Header{Key: "xeda_orig_topic", Value: []byte(km.Topic)},
		)
		if err := t.w.WriteMessages(ctx, dl); err != nil {
			t.logger.Error().Err(err).Str("topic", km.Topic).Msg("kafka: dead letter write failed")
			return
		}
		t.deadLetter.Add(1)
	}
	if err := r.CommitMessages(ctx, km); err != nil {
		t.logger.Warn().Err(err).Str("topic", km.Topic).Msg("kafka: commit failed")
		return
	}
	t.committed.Add(1)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stats is a snapshot of transport counters.
type Stats struct {
	Published   uint64
	Committed   uint64
	Retried     uint64
	DeadLetters uint64
}

func (t *Transport) Stats() Stats {
	return Stats{
		Published:   t.published.Load(),
		Committed:   t.committed.Load(),
		Retried:     t.retried.Load(),
		DeadLetters: t.deadLetter.Load(),
	}
}

func (t *Transport) Close(context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.w.Close()
}

type delivery struct {
	msg    *xeda.Message
	km     kafkago.Message
	r      reader
	t      *Transport
	acked     bool
	reason    error
	commitErr error
	done      bool
}

func (d *delivery) Message() *xeda.Message { return d.msg }

// Ack commits the message offset for the group.
func (d *delivery) Ack(ctx context.Context) error {
	if d.done {
		return nil
	}
	d.done = true
	if err := d.r.CommitMessages(ctx, d.km); err != nil {
		d.commitErr = err
		return err
	}
	d.acked = true
	d.t.committed.Add(1)
	return nil
}

// Nack leaves the offset uncommitted; the reader retries the message.
func (d *delivery) Nack(_ context.Context, reason error) error {
	if d.done {
		return nil
	}
	d.done = true
	d.reason = reason
	return nil
}
