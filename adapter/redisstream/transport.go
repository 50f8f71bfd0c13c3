package redisstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xeda"
)

type transport struct {
	cfg    Config
	client redis.UniversalClient
	closed atomic.Bool
	stats  counters
}

type counters struct {
	published     atomic.Uint64
	consumed      atomic.Uint64
	claimed       atomic.Uint64
	acked         atomic.Uint64
	nacked        atomic.Uint64
	publishErrors atomic.Uint64
	readErrors    atomic.Uint64
}

// Stats is a snapshot of transport counters.
type Stats struct {
	Published     uint64
	Consumed      uint64
	Claimed       uint64
	Acked         uint64
	Nacked        uint64
	PublishErrors uint64
	ReadErrors    uint64
}

// StatsProvider is implemented by the transport returned from NewTransport.
type StatsProvider interface {
	Stats() Stats
}

// NewTransport connects to Redis and verifies the connection with PING.
func NewTransport(cfg Config) (xeda.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     cfg.Concurrency + 2,
		MinIdleConns: 1,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.TLSServerName}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstream: ping %s: %w", cfg.Addr, err)
	}
	return newWithClient(cfg, client), nil
}

func newWithClient(cfg Config, client redis.UniversalClient) *transport {
	return &transport{cfg: cfg, client: client}
}

// Publish appends msgs to the topic stream in one pipeline.
func (t *transport) Publish(ctx context.Context, topic string, msgs ...*xeda.Message) error {
	if t.closed.Load() {
		return errors.New("redisstream: transport closed")
	}
	if len(msgs) == 0 {
		return nil
	}
	stream := t.cfg.Stream(topic)

	pipe := t.client.Pipeline()
	for _, m := range msgs {
		if m == nil {
			continue
		}
		args := &redis.XAddArgs{Stream: stream, ID: "*", Values: entryValues(m)}
		if t.cfg.MaxLenApprox > 0 {
			args.MaxLen = t.cfg.MaxLenApprox
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.stats.publishErrors.Add(uint64(len(msgs)))
		return fmt.Errorf("redisstream: xadd %s: %w", stream, err)
	}
	t.stats.published.Add(uint64(len(msgs)))
	return nil
}

type subscription struct {
	cancel context.CancelFunc
	wg     *sync.WaitGroup
	once   sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// Subscribe reads the topic stream as group, creating the group at the
// start of the stream when AutoCreate is set. A poller and, when
// ClaimMinIdle is set, a claim loop feed Concurrency workers.
func (t *transport) Subscribe(ctx context.Context, topic, group string, handler func(xeda.Delivery)) (xeda.Subscription, error) {
	if t.closed.Load() {
		return nil, errors.New("redisstream: transport closed")
	}
	stream := t.cfg.Stream(topic)
	if t.cfg.AutoCreate {
		err := t.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("redisstream: create group %s on %s: %w", group, stream, err)
		}
	}

	sctx, cancel := context.WithCancel(ctx)
	work := make(chan *delivery, t.cfg.Concurrency*2)

	var producers sync.WaitGroup
	producers.Add(1)
	go func() {
		defer producers.Done()
		t.poll(sctx, stream, group, work)
	}()
	if t.cfg.ClaimMinIdle > 0 {
		producers.Add(1)
		go func() {
			defer producers.Done()
			t.claim(sctx, stream, group, work)
		}()
	}

	var wg sync.WaitGroup
	wg.Add(t.cfg.Concurrency + 1)
	go func() {
		defer wg.Done()
		producers.Wait()
		close(work)
	}()
	for i := 0; i < t.cfg.Concurrency; i++ {
		go func() {
			defer wg.Done()
			for d := range work {
				handler(d)
			}
		}()
	}

	return &subscription{cancel: cancel, wg: &wg}, nil
}

func (t *transport) poll(ctx context.Context, stream, group string, work chan<- *delivery) {
	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: t.cfg.Consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(t.cfg.BatchSize),
		Block:    t.cfg.Block,
	}
	const maxBackoff = 5 * time.Second
	backoff := 100 * time.Millisecond

	for ctx.Err() == nil {
		res, err := t.client.XReadGroup(ctx, args).Result()
		switch {
		case err == nil:
			backoff = 100 * time.Millisecond
		case ctx.Err() != nil:
			return
		case errors.Is(err, redis.Nil):
			continue
		default:
			t.stats.readErrors.Add(1)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		for _, s := range res {
			for _, m := range s.Messages {
				t.stats.consumed.Add(1)
				if !t.hand(ctx, work, stream, group, m) {
					return
				}
			}
		}
	}
}

// claim takes over entries idle longer than ClaimMinIdle, including ones
// left pending by a Nack without dead letter stream, and redelivers them.
func (t *transport) claim(ctx context.Context, stream, group string, work chan<- *delivery) {
	interval := t.cfg.ClaimInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := t.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  group,
			Start:  "-",
			End:    "+",
			Count:  int64(t.cfg.ClaimBatch),
			Idle:   t.cfg.ClaimMinIdle,
		}).Result()
		if err != nil || len(pending) == 0 {
			continue
		}
		ids := make([]string, len(pending))
		for i, p := range pending {
			ids[i] = p.ID
		}

		msgs, err := t.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: t.cfg.Consumer,
			MinIdle:  t.cfg.ClaimMinIdle,
			Messages: ids,
		}).Result()
		if err != nil {
			continue
		}
		for _, m := range msgs {
			t.stats.claimed.Add(1)
			if !t.hand(ctx, work, stream, group, m) {
				return
			}
		}
	}
}

func (t *transport) hand(ctx context.Context, work chan<- *delivery, stream, group string, m redis.XMessage) bool {
	d := &delivery{t: t, stream: stream, group: group, id: m.ID, msg: decodeEntry(m.ID, m.Values)}
	select {
	case work <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *transport) Stats() Stats {
	return Stats{
		Published:     t.stats.published.Load(),
		Consumed:      t.stats.consumed.Load(),
		Claimed:       t.stats.claimed.Load(),
		Acked:         t.stats.acked.Load(),
		Nacked:        t.stats.nacked.Load(),
		PublishErrors: t.stats.publishErrors.Load(),
		ReadErrors:    t.stats.readErrors.Load(),
	}
}

func (t *transport) Close(context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.client.Close()
}
