package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize bounds the dispatcher queue when no size is configured.
const DefaultQueueSize = 16

type event func(Sink)

// Dispatcher decouples notification delivery from the caller. It implements
// Sink itself: calls enqueue without blocking and a single background
// goroutine delivers them to the wrapped sink. When the queue is full the
// notification is dropped and counted rather than stalling the correction
// pipeline.
//
// On context cancellation the queue is closed and drained before the
// delivery goroutine exits; Wait blocks until that drain completes.
type Dispatcher struct {
	sink  Sink
	queue chan event
	log   *slog.Logger

	started atomic.Bool
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewDispatcher wraps sink with a bounded asynchronous queue.
func NewDispatcher(sink Sink, queueSize int, log *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Dispatcher{
		sink:  sink,
		queue: make(chan event, queueSize),
		log:   log,
	}
}

// Run starts the delivery goroutine. Returns error if already started.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already started")
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range d.queue {
			d.deliver(ev)
		}
	}()

	// Shutdown handler: close the queue so the delivery goroutine drains
	// whatever is still pending and exits.
	go func() {
		<-ctx.Done()
		close(d.queue)
	}()

	return nil
}

// Wait blocks until all queued notifications have been delivered after the
// run context is cancelled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dropped reports how many notifications were discarded on a full or closed
// queue.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notification sink panicked", "panic", r)
		}
	}()

	ev(d.sink)
}

func (d *Dispatcher) enqueue(ev event) {
	defer func() {
		// Sending on the closed queue after shutdown counts as a drop.
		if r := recover(); r != nil {
			d.dropped.Add(1)
		}
	}()

	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		d.log.Warn("notification queue full, dropping message")
	}
}

func (d *Dispatcher) NotifyCircuitOpened(providerID string, failureCount int, lastError string) {
	d.enqueue(func(s Sink) { s.NotifyCircuitOpened(providerID, failureCount, lastError) })
}

func (d *Dispatcher) NotifyCircuitClosed(providerID string) {
	d.enqueue(func(s Sink) { s.NotifyCircuitClosed(providerID) })
}

func (d *Dispatcher) Notify(message string) {
	d.enqueue(func(s Sink) { s.Notify(message) })
}
