package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/phrazzld/taskquota/internal/platform/logger"
)

var (
	// ErrDispatcherFull is returned when the dispatch buffer has no room for an event.
	ErrDispatcherFull = errors.New("event dispatcher buffer is full")
	// ErrDispatcherStopped is returned when emitting after Stop.
	ErrDispatcherStopped = errors.New("event dispatcher is stopped")
)

type envelope struct {
	ctx   context.Context
	event *Event
}

// AsyncDispatcher is an EventEmitter that buffers events and delivers them to
// an inner emitter on a background goroutine.
type AsyncDispatcher struct {
	next    EventEmitter
	queue   chan envelope
	logger  *slog.Logger
	mu      sync.RWMutex
	started bool
	stopped bool
	done    chan struct{}
}

var _ EventEmitter = (*AsyncDispatcher)(nil)

// NewAsyncDispatcher creates a dispatcher that forwards to next.
func NewAsyncDispatcher(next EventEmitter, bufferSize int, log *slog.Logger) *AsyncDispatcher {
	if next == nil {
		panic("next emitter cannot be nil")
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &AsyncDispatcher{
		next:   next,
		queue:  make(chan envelope, bufferSize),
		logger: log.With(slog.String("component", "event_dispatcher")),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery goroutine. Calling Start twice is a no-op.
func (d *AsyncDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	go d.loop()
}

// EmitEvent enqueues the event without blocking.
// The request context's values (logger, trace id) are kept but its cancellation is not,
// so delivery can outlive the request that emitted the event.
func (d *AsyncDispatcher) EmitEvent(ctx context.Context, event *Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- envelope{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		logger.FromContextOrDefault(ctx, d.logger).Warn("dropping event, dispatch buffer full",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.Type))
		return ErrDispatcherFull
	}
}

// Stop stops accepting events and waits until buffered events are delivered
// or ctx is done.
func (d *AsyncDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *AsyncDispatcher) loop() {
	defer close(d.done)
	for env := range d.queue {
		d.deliver(env)
	}
}

func (d *AsyncDispatcher) deliver(env envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while delivering event",
				slog.Any("panic", r),
				slog.String("event_id", env.event.ID.String()))
		}
	}()
	if err := d.next.EmitEvent(env.ctx, env.event); err != nil {
		logger.FromContextOrDefault(env.ctx, d.logger).Warn("event delivery failed",
			slog.String("error", err.Error()),
			slog.String("event_id", env.event.ID.String()),
			slog.String("event_type", env.event.Type))
	}
}
