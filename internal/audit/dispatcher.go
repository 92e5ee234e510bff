package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Sink receives events from the dispatcher, one at a time.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// DefaultBuffer is the dispatcher's default channel capacity.
const DefaultBuffer = 256

// Per-sink delivery deadline; a stuck sink must not stall the queue forever.
const sinkTimeout = 5 * time.Second

// Dispatcher is a buffered asynchronous Recorder. Record enqueues and
// returns immediately; a single worker drains the queue into the sinks.
// When the buffer is full the event is dropped and counted — the audited
// operation is never the one that pays.
type Dispatcher struct {
	log   *zap.Logger
	sinks []Sink

	ch      chan Event
	quit    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	dropped atomic.Uint64

	closeOnce sync.Once
}

// NewDispatcher starts the worker. buffer <= 0 selects DefaultBuffer.
func NewDispatcher(log *zap.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	d := &Dispatcher{
		log:   log,
		sinks: sinks,
		ch:    make(chan Event, buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Record enqueues the event, stamping ID and time if unset. It never blocks:
// a full buffer or a closed dispatcher drops the event.
func (d *Dispatcher) Record(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if e.ID.IsNil() {
		if id, err := uuid.NewV4(); err == nil {
			e.ID = id
		}
	}
	if d.closed.Load() {
		d.dropped.Add(1)
		return
	}
	select {
	case d.ch <- e:
	default:
		d.dropped.Add(1)
		d.log.Warn("audit buffer full, event dropped",
			zap.String("action", string(e.Action)),
			zap.Uint64("dropped_total", d.dropped.Load()),
		)
	}
}

// Dropped returns how many events were dropped since construction.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Close stops accepting events, flushes the queue, and waits for the worker.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.quit)
	})
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case e := <-d.ch:
			d.deliver(e)
		case <-d.quit:
			for {
				select {
				case e := <-d.ch:
					d.deliver(e)
				default:
					return
				}
			}
		}
	}
}

// deliver writes to every sink; a sink failure is logged, never propagated.
func (d *Dispatcher) deliver(e Event) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.Write(ctx, e); err != nil {
			d.log.Error("audit sink write failed",
				zap.String("action", string(e.Action)),
				zap.String("event_id", e.ID.String()),
				zap.Error(err),
			)
		}
		cancel()
	}
}
