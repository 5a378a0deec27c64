package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/homecontrol-core/internal/metrics"
	"github.com/nerrad567/homecontrol-core/internal/scheduler"
)

// Logger is the logging interface used by the bus.
// Compatible with *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type registration struct {
	id      uint64
	handler Handler
}

// Bus delivers events to registered handlers.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - BroadcastThreaded is the only method intended for goroutines owned
//     by third-party libraries.
type Bus struct {
	loop *scheduler.Loop

	mu       sync.RWMutex
	handlers map[string][]registration
	nextID   atomic.Uint64

	logger  Logger
	metrics metrics.Recorder
}

// NewBus creates a bus whose handlers run on loop.
func NewBus(loop *scheduler.Loop) *Bus {
	return &Bus{
		loop:     loop,
		handlers: make(map[string][]registration),
		logger:   noopLogger{},
		metrics:  metrics.Noop{},
	}
}

// SetLogger sets the logger for handler failures.
func (b *Bus) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// SetMetrics sets the activity recorder.
func (b *Bus) SetMetrics(r metrics.Recorder) {
	if r != nil {
		b.metrics = r
	}
}

// Register adds handler for events named name. Use AllEvents to receive
// every event.
//
// Returns ErrInvalidHandler if handler is nil or name is empty.
func (b *Bus) Register(name string, handler Handler) (Token, error) {
	if name == "" || handler == nil {
		return Token{}, ErrInvalidHandler
	}

	tok := Token{name: name, id: b.nextID.Add(1)}

	b.mu.Lock()
	b.handlers[name] = append(b.handlers[name], registration{id: tok.id, handler: handler})
	b.mu.Unlock()

	return tok, nil
}

// RemoveHandler removes a registration. Removing an unknown or already
// removed token is a no-op.
func (b *Bus) RemoveHandler(tok Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[tok.name]
	for i, reg := range regs {
		if reg.id != tok.id {
			continue
		}
		// Copy so snapshots taken by in-flight broadcasts stay intact.
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, tok.name)
		} else {
			b.handlers[tok.name] = next
		}
		return
	}
}

// Handlers reports how many handlers would receive an event named name,
// wildcard registrations included.
func (b *Bus) Handlers(name string) int {
	return len(b.snapshot(name))
}

// snapshot returns the registrations for name plus wildcard ones.
func (b *Bus) snapshot(name string) []registration {
	b.mu.RLock()
	defer b.mu.RUnlock()

	named := b.handlers[name]
	var wildcard []registration
	if name != AllEvents {
		wildcard = b.handlers[AllEvents]
	}
	if len(named)+len(wildcard) == 0 {
		return nil
	}

	out := make([]registration, 0, len(named)+len(wildcard))
	out = append(out, named...)
	return append(out, wildcard...)
}

// Broadcast delivers an event to every handler registered for name at the
// time of the call and returns immediately. Each handler runs as its own
// scheduler task.
func (b *Bus) Broadcast(name string, data map[string]any) {
	regs := b.snapshot(name)
	if len(regs) == 0 {
		return
	}

	ev := New(name, data)
	b.metrics.EventPublished(name, len(regs))

	for _, reg := range regs {
		tok := Token{name: name, id: reg.id}
		h := reg.handler
		err := b.loop.Go("event:"+name, func(ctx context.Context) {
			if _, err := b.invoke(ctx, h, ev); err != nil {
				b.logger.Error("event handler failed",
					"event", name,
					"handler", tok.id,
					"error", err,
				)
			}
		})
		if err != nil {
			b.logger.Debug("broadcast dropped", "event", name, "error", err)
			return
		}
	}
}

// Gather delivers an event to every handler registered for name and waits
// for all of them. Results are in registration order, wildcard handlers
// last; a failing handler does not hide the others' results. Handlers run
// as scheduler tasks, so after shutdown every result carries
// scheduler.ErrStopped.
func (b *Bus) Gather(ctx context.Context, name string, data map[string]any) []Result {
	regs := b.snapshot(name)
	if len(regs) == 0 {
		return nil
	}

	ev := New(name, data)
	b.metrics.EventPublished(name, len(regs))

	results := make([]Result, len(regs))
	var wg sync.WaitGroup
	for i, reg := range regs {
		tok := Token{name: name, id: reg.id}
		wg.Add(1)
		err := b.loop.Go("gather:"+name, func(context.Context) {
			defer wg.Done()
			v, err := b.invoke(ctx, reg.handler, ev)
			results[i] = Result{Token: tok, Value: v, Err: err}
		})
		if err != nil {
			wg.Done()
			results[i] = Result{Token: tok, Err: err}
		}
	}
	wg.Wait()
	return results
}

// BroadcastThreaded hands a broadcast to the scheduler run-queue. It never
// blocks and is safe to call from any goroutine.
//
// Returns scheduler.ErrQueueFull or scheduler.ErrStopped when the
// broadcast could not be queued.
func (b *Bus) BroadcastThreaded(name string, data map[string]any) error {
	payload := copyData(data)
	err := b.loop.Submit(func() {
		b.Broadcast(name, payload)
	})
	if err != nil {
		b.logger.Warn("threaded broadcast not queued", "event", name, "error", err)
	}
	return err
}

// invoke runs one handler, turning a panic into ErrHandlerPanic.
func (b *Bus) invoke(ctx context.Context, h Handler, ev Event) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", ev.Name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		if err != nil {
			b.metrics.HandlerFailed(ev.Name)
		}
	}()
	return h(ctx, ev)
}
