package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/mqttlog/internal/infrastructure/mqtt"
)

// Handler processes one message. An error is logged and counted; it never
// stops the loop.
type Handler func(ctx context.Context, msg mqtt.Message) error

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Handled   uint64 `json:"handled"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
	Running   bool   `json:"running"`
}

// Dispatcher serialises message handling onto one goroutine.
type Dispatcher struct {
	handler Handler
	logger  Logger

	queue chan mqtt.Message

	// gate lets Run close the queue to new messages once stop is seen:
	// Deliver holds it shared while sending, Run takes it exclusively.
	gate   sync.RWMutex
	closed bool

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool
	running  atomic.Bool

	delivered atomic.Uint64
	handled   atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a dispatcher with room for queueSize waiting messages.
// A queueSize of zero makes every Deliver wait for the loop to take the
// message.
func New(handler Handler, queueSize int) *Dispatcher {
	if queueSize < 0 {
		queueSize = 0
	}
	return &Dispatcher{
		handler: handler,
		logger:  noopLogger{},
		queue:   make(chan mqtt.Message, queueSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger for handler failures.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Deliver queues msg for the loop. It blocks while the queue is full and
// returns ErrStopped once Stop has been called.
func (d *Dispatcher) Deliver(msg mqtt.Message) error {
	d.gate.RLock()
	defer d.gate.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return ErrStopped
	}

	select {
	case <-d.stopCh:
		d.dropped.Add(1)
		return ErrStopped
	default:
	}

	select {
	case d.queue <- msg:
		d.delivered.Add(1)
		return nil
	case <-d.stopCh:
		d.dropped.Add(1)
		return ErrStopped
	}
}

// Receive adapts Deliver to the transport's message callback, logging
// messages that arrive after Stop.
func (d *Dispatcher) Receive(msg mqtt.Message) {
	if err := d.Deliver(msg); err != nil {
		d.logger.Warn("message dropped", "topic", msg.Topic, "error", err)
	}
}

// Run processes messages until Stop is called or ctx is cancelled, then
// handles everything already queued and returns. Handlers receive a
// context that is not cancelled with ctx, so drained messages are still
// persisted.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	d.running.Store(true)
	defer func() {
		d.running.Store(false)
		close(d.done)
	}()

	handlerCtx := context.WithoutCancel(ctx)

	for {
		select {
		case msg := <-d.queue:
			d.handle(handlerCtx, msg)
		case <-d.stopCh:
			d.drain(handlerCtx)
			return nil
		case <-ctx.Done():
			d.Stop()
			d.drain(handlerCtx)
			return nil
		}
	}
}

// drain closes the queue to new messages and handles what is left.
func (d *Dispatcher) drain(ctx context.Context) {
	d.gate.Lock()
	d.closed = true
	d.gate.Unlock()

	for {
		select {
		case msg := <-d.queue:
			d.handle(ctx, msg)
		default:
			return
		}
	}
}

// handle runs the handler for one message with panic recovery.
func (d *Dispatcher) handle(ctx context.Context, msg mqtt.Message) {
	err := d.invoke(ctx, msg)
	if err != nil {
		d.failed.Add(1)
		d.logger.Error("message handler failed",
			"topic", msg.Topic,
			"error", err,
		)
		return
	}
	d.handled.Add(1)
}

func (d *Dispatcher) invoke(ctx context.Context, msg mqtt.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return d.handler(ctx, msg)
}

// Stop asks the loop to finish. It is idempotent and safe to call from any
// goroutine, including a signal handler. It does not wait; use Done.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

// Done is closed when Run has returned. It never closes if Run was not
// started.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Handled:   d.handled.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Pending:   len(d.queue),
		Running:   d.running.Load(),
	}
}
