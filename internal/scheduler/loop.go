package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Default sizing used when Options leaves a field at zero.
const (
	DefaultQueueSize     = 256
	DefaultWorkers       = 8
	DefaultShutdownGrace = time.Second
)

// Logger is the logging interface used by the scheduler.
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

// Options configures a Loop.
type Options struct {
	QueueSize int
	Workers   int
	Logger    Logger
}

// Loop is the hub scheduler. Create one with New.
type Loop struct {
	ctx    context.Context
	cancel context.CancelFunc

	queue chan func()
	pool  *semaphore.Weighted

	// mu orders stopping against tasks.Add so Wait never races a new task.
	mu       sync.RWMutex
	stopping bool
	tasks    sync.WaitGroup
	running  atomic.Int64

	dispatcherDone chan struct{}
	shutdownOnce   sync.Once
	shutdownErr    error

	logger Logger
}

// New creates a Loop and starts its dispatcher goroutine.
func New(opts Options) *Loop {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		ctx:            ctx,
		cancel:         cancel,
		queue:          make(chan func(), opts.QueueSize),
		pool:           semaphore.NewWeighted(int64(opts.Workers)),
		dispatcherDone: make(chan struct{}),
		logger:         opts.Logger,
	}
	go l.dispatch()
	return l
}

// Context returns the root context. It is cancelled when the shutdown
// grace period ends.
func (l *Loop) Context() context.Context {
	return l.ctx
}

// Running reports the number of tracked tasks currently executing.
func (l *Loop) Running() int64 {
	return l.running.Load()
}

// Pending reports the number of functions waiting in the run-queue.
func (l *Loop) Pending() int {
	return len(l.queue)
}

// Go starts fn as a tracked task. The task receives the root context and
// a panic inside it is recovered and logged.
//
// Returns ErrStopped once shutdown has started.
func (l *Loop) Go(name string, fn func(ctx context.Context)) error {
	l.mu.RLock()
	if l.stopping {
		l.mu.RUnlock()
		return ErrStopped
	}
	l.tasks.Add(1)
	l.mu.RUnlock()

	l.running.Add(1)
	go func() {
		defer l.tasks.Done()
		defer l.running.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("task panicked",
					"task", name,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn(l.ctx)
	}()
	return nil
}

// Submit enqueues fn for the dispatcher goroutine. It is safe to call from
// any goroutine, including ones owned by third-party libraries, and never
// blocks.
//
// fn runs on the dispatcher and should only start work (for example
// a broadcast), not perform it.
func (l *Loop) Submit(fn func()) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.stopping {
		return ErrStopped
	}

	select {
	case l.queue <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

func (l *Loop) dispatch() {
	defer close(l.dispatcherDone)
	for {
		select {
		case fn := <-l.queue:
			l.runQueued(fn)
		case <-l.ctx.Done():
			return
		}
	}
}

func (l *Loop) runQueued(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("queued function panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// RunBlocking runs a blocking call on the bounded worker pool and returns
// its result. The caller waits for a pool slot; ctx cancellation while
// waiting returns ctx.Err(). A panic inside fn is returned as ErrTaskPanic.
func RunBlocking[T any](ctx context.Context, l *Loop, fn func(ctx context.Context) (T, error)) (result T, err error) {
	if err := l.pool.Acquire(ctx, 1); err != nil {
		return result, err
	}
	defer l.pool.Release(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return fn(ctx)
}

// Shutdown stops accepting work, waits up to grace for tracked tasks to
// finish, then cancels the root context.
//
// It is idempotent: later calls return the first call's result.
//
// Returns ErrShutdownTimeout if tasks were still running when the grace
// period ended.
func (l *Loop) Shutdown(grace time.Duration) error {
	l.shutdownOnce.Do(func() {
		l.shutdownErr = l.shutdown(grace)
	})
	return l.shutdownErr
}

func (l *Loop) shutdown(grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	l.mu.Lock()
	l.stopping = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.tasks.Wait()
		close(done)
	}()

	var err error
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		err = ErrShutdownTimeout
		l.logger.Warn("cancelling pending tasks after grace period",
			"grace", grace,
			"running", l.running.Load(),
		)
	}

	l.cancel()
	<-l.dispatcherDone
	return err
}
