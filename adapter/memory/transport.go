package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xeda"
)

const TransportName = "memory"

// ErrClosed is returned once the transport has been closed.
var ErrClosed = errors.New("memory: transport is closed")

func init() {
	if err := xeda.RegisterTransport(TransportName, func(cfg map[string]any) (xeda.Transport, error) {
		c := ConfigFromMap(cfg)
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return NewTransport(c), nil
	}); err != nil {
		panic(fmt.Errorf("xeda/memory: failed to register transport: %w", err))
	}
}

// Transport delivers messages between goroutines of one process. Every
// consumer group of a topic receives each message once; workers of a group
// compete for it.
type Transport struct {
	cfg Config

	mu     sync.RWMutex
	topics map[string]*topic

	deadMu sync.Mutex
	dead   []DeadLetter

	closed atomic.Bool
	stats  counters
}

var _ xeda.Transport = (*Transport)(nil)

// DeadLetter is a message that ran out of deliveries.
type DeadLetter struct {
	Topic    string
	Group    string
	Message  *xeda.Message
	Attempts int
	Reason   error
}

type counters struct {
	published   atomic.Uint64
	consumed    atomic.Uint64
	acked       atomic.Uint64
	nacked      atomic.Uint64
	redelivered atomic.Uint64
	dropped     atomic.Uint64
}

// Stats is a snapshot of transport counters.
type Stats struct {
	Published   uint64
	Consumed    uint64
	Acked       uint64
	Nacked      uint64
	Redelivered uint64
	Dropped     uint64
	DeadLetters int
}

type topic struct {
	mu       sync.Mutex
	groups   map[string]*group
	retained []*xeda.Message
}

type group struct {
	topic string
	name  string
	queue chan *task
	// subs counts live subscriptions; guarded by topic.mu. done closes when
	// the last one ends and the group leaves topic.groups.
	subs int
	done chan struct{}
}

type task struct {
	group    *group
	msg      *xeda.Message
	attempts int
}

func NewTransport(cfg Config) *Transport {
	return &Transport{
		cfg:    cfg.Defaults(),
		topics: make(map[string]*topic),
	}
}

// Publish enqueues msgs for every group subscribed to topicName. Without
// groups the messages are retained (Config.Retain) or dropped.
func (t *Transport) Publish(ctx context.Context, topicName string, msgs ...*xeda.Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	tp := t.topic(topicName)

	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.ID == "" {
			m.ID = nextID()
		}

		tp.mu.Lock()
		if len(tp.groups) == 0 {
			t.retain(tp, m)
			tp.mu.Unlock()
			t.stats.published.Add(1)
			continue
		}
		groups := make([]*group, 0, len(tp.groups))
		for _, g := range tp.groups {
			groups = append(groups, g)
		}
		tp.mu.Unlock()

		for _, g := range groups {
			select {
			case g.queue <- &task{group: g, msg: m}:
			case <-g.done:
				t.stats.dropped.Add(1)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		t.stats.published.Add(1)
	}
	return nil
}

// retain must be called with tp.mu held.
func (t *Transport) retain(tp *topic, m *xeda.Message) {
	if !t.cfg.Retain {
		t.stats.dropped.Add(1)
		return
	}
	if len(tp.retained) >= t.cfg.BufferSize {
		tp.retained = tp.retained[1:]
		t.stats.dropped.Add(1)
	}
	tp.retained = append(tp.retained, m)
}

// Subscribe starts Config.Concurrency workers for group on topicName.
func (t *Transport) Subscribe(ctx context.Context, topicName, groupName string, handler func(xeda.Delivery)) (xeda.Subscription, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	tp := t.topic(topicName)

	tp.mu.Lock()
	g, ok := tp.groups[groupName]
	if !ok {
		g = &group{
			topic: topicName,
			name:  groupName,
			queue: make(chan *task, t.cfg.BufferSize),
			done:  make(chan struct{}),
		}
		tp.groups[groupName] = g
		for _, m := range tp.retained {
			select {
			case g.queue <- &task{group: g, msg: m}:
			default:
				t.stats.dropped.Add(1)
			}
		}
		tp.retained = nil
	}
	g.subs++
	tp.mu.Unlock()

	release := sync.OnceFunc(func() {
		tp.mu.Lock()
		defer tp.mu.Unlock()
		if g.subs--; g.subs > 0 {
			return
		}
		if tp.groups[groupName] == g {
			delete(tp.groups, groupName)
		}
		close(g.done)
	})

	wctx, cancel := context.WithCancel(ctx)
	context.AfterFunc(wctx, release)
	var wg sync.WaitGroup
	for i := 0; i < t.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.work(wctx, g, handler)
		}()
	}

	var once sync.Once
	return subscriptionFunc(func() error {
		once.Do(func() {
			cancel()
			wg.Wait()
			release()
		})
		return nil
	}), nil
}

func (t *Transport) work(ctx context.Context, g *group, handler func(xeda.Delivery)) {
	for {
		select {
		case <-ctx.Done():
			return
		case tk := <-g.queue:
			tk.attempts++
			t.stats.consumed.Add(1)
			handler(&delivery{t: t, task: tk})
		}
	}
}

// Close stops accepting publishes and forgets all topics. Running
// subscriptions end when their context is cancelled or they are closed.
func (t *Transport) Close(context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	t.topics = make(map[string]*topic)
	t.mu.Unlock()
	return nil
}

// Stats returns current counters.
func (t *Transport) Stats() Stats {
	t.deadMu.Lock()
	dead := len(t.dead)
	t.deadMu.Unlock()
	return Stats{
		Published:   t.stats.published.Load(),
		Consumed:    t.stats.consumed.Load(),
		Acked:       t.stats.acked.Load(),
		Nacked:      t.stats.nacked.Load(),
		Redelivered: t.stats.redelivered.Load(),
		Dropped:     t.stats.dropped.Load(),
		DeadLetters: dead,
	}
}

// DeadLetters returns a copy of the messages that exhausted MaxDeliveries.
func (t *Transport) DeadLetters() []DeadLetter {
	t.deadMu.Lock()
	defer t.deadMu.Unlock()
	return append([]DeadLetter(nil), t.dead...)
}

func (t *Transport) topic(name string) *topic {
	t.mu.RLock()
	tp, ok := t.topics[name]
	t.mu.RUnlock()
	if ok {
		return tp
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if tp, ok = t.topics[name]; ok {
		return tp
	}
	tp = &topic{groups: make(map[string]*group)}
	t.topics[name] = tp
	return tp
}

type subscriptionFunc func() error

func (f subscriptionFunc) Close() error { return f() }

type delivery struct {
	t    *Transport
	task *task
	once sync.Once
}

func (d *delivery) Message() *xeda.Message { return d.task.msg }

func (d *delivery) Ack(context.Context) error {
	d.once.Do(func() { d.t.stats.acked.Add(1) })
	return nil
}

// Nack queues the message again, after RedeliveryDelay when set, or moves
// it to the dead letters once MaxDeliveries is reached.
func (d *delivery) Nack(_ context.Context, reason error) error {
	d.once.Do(func() {
		d.t.stats.nacked.Add(1)
		tk := d.task

		if limit := d.t.cfg.MaxDeliveries; limit > 0 && tk.attempts >= limit {
			d.t.deadMu.Lock()
			d.t.dead = append(d.t.dead, DeadLetter{
				Topic:    tk.group.topic,
				Group:    tk.group.name,
				Message:  tk.msg,
				Attempts: tk.attempts,
				Reason:   reason,
			})
			d.t.deadMu.Unlock()
			return
		}

		d.t.stats.redelivered.Add(1)
		if d.t.cfg.RedeliveryDelay <= 0 {
			d.requeue(tk)
			return
		}
		go func() {
			timer := time.NewTimer(d.t.cfg.RedeliveryDelay)
			defer timer.Stop()
			<-timer.C
			d.requeue(tk)
		}()
	})
	return nil
}

// requeue never blocks: the caller is usually a worker of the same group,
// so a full queue would wait on itself.
func (d *delivery) requeue(tk *task) {
	select {
	case tk.group.queue <- tk:
	default:
		d.t.stats.dropped.Add(1)
	}
}

var idSeq atomic.Uint64

func nextID() string {
	return fmt.Sprintf("mem-%d", idSeq.Add(1))
}
