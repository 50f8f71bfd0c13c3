package xeda

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ObserverPool fans bus events out to observers on background workers so a
// slow observer never holds up Dispatch. When the buffer is full the event is
// dropped and counted.
type ObserverPool struct {
	eventCh chan *BusEvent
	workers int
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool

	dropped   atomic.Uint64
	processed atomic.Uint64
	panics    atomic.Uint64
}

// NewObserverPool starts workers goroutines reading from a buffer of
// bufferSize events. Non-positive values fall back to 4 and 1000.
func NewObserverPool(ctx context.Context, workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1000
	}

	poolCtx, cancel := context.WithCancel(ctx)
	op := &ObserverPool{
		eventCh: make(chan *BusEvent, bufferSize),
		workers: workers,
		cancel:  cancel,
	}
	op.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go op.run(poolCtx)
	}
	return op
}

// Notify queues e for observers without blocking.
func (op *ObserverPool) Notify(e BusEvent, observers []Observer) {
	if len(observers) == 0 || op.closed.Load() {
		return
	}
	e.observers = append([]Observer(nil), observers...)

	select {
	case op.eventCh <- &e:
	default:
		op.dropped.Add(1)
	}
}

func (op *ObserverPool) run(ctx context.Context) {
	defer op.wg.Done()
	for {
		select {
		case e := <-op.eventCh:
			op.deliver(e)
		case <-ctx.Done():
			// drain what is already queued, then stop
			for {
				select {
				case e := <-op.eventCh:
					op.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (op *ObserverPool) deliver(e *BusEvent) {
	if e == nil {
		return
	}
	for _, obs := range e.observers {
		if obs == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					op.panics.Add(1)
				}
			}()
			obs.OnBusEvent(*e)
		}()
	}
	op.processed.Add(1)
}

// Close stops the workers after the queue is drained, waiting at most timeout.
func (op *ObserverPool) Close(timeout time.Duration) error {
	if op.closed.Swap(true) {
		return nil
	}
	op.cancel()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrObserverPoolShutdownTimeout
	}
}

// Stats returns current pool statistics.
func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		Panics:       op.panics.Load(),
		ActiveEvents: len(op.eventCh),
		Workers:      op.workers,
		BufferSize:   cap(op.eventCh),
	}
}
