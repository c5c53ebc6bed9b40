package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrNotRunning is returned by Submit when no worker is draining the queue.
	ErrNotRunning = errors.New("loop not running")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("loop already running")
)

// Task is a unit of work executed on the loop goroutine. The context is the
// loop's own context, not the submitter's.
type Task func(ctx context.Context)

// queued is a task plus the hook told when the task will never run.
type queued struct {
	task    Task
	dropped func()
}

// Loop is a single worker draining a task queue. Every call into the network
// client goes through it, so tasks never run concurrently with each other.
type Loop struct {
	tasks  chan queued
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New creates a loop with a queue of buf pending tasks.
func New(buf int, logger *zap.Logger) *Loop {
	return &Loop{
		tasks:  make(chan queued, buf),
		logger: logger,
	}
}

// Run drains the queue until ctx is cancelled. Tasks still queued when Run
// returns never run; a pending Call gets ErrNotRunning.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	// Leftovers of a previous run were already reported as not running.
	l.drain()
	l.running = true
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		close(done)
		l.drain()
		l.mu.Unlock()
	}()

	l.logger.Debug("loop started")
	for {
		// Cancellation wins over queued work.
		if ctx.Err() != nil {
			l.logger.Debug("loop stopped")
			return ctx.Err()
		}
		select {
		case q := <-l.tasks:
			l.exec(ctx, q.task)
		case <-ctx.Done():
			l.logger.Debug("loop stopped")
			return ctx.Err()
		}
	}
}

// drain discards every queued task. Callers hold l.mu.
func (l *Loop) drain() {
	for {
		select {
		case q := <-l.tasks:
			if q.dropped != nil {
				q.dropped()
			}
		default:
			return
		}
	}
}

func (l *Loop) exec(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task(ctx)
}

// Running reports whether a worker is draining the queue.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Submit queues task without waiting for it to run. It blocks while the queue
// is full, until ctx is done or the loop stops.
func (l *Loop) Submit(ctx context.Context, task Task) error {
	return l.enqueue(ctx, queued{task: task})
}

func (l *Loop) enqueue(ctx context.Context, q queued) error {
	l.mu.Lock()
	running, done := l.running, l.done
	l.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	select {
	case <-done:
		return ErrNotRunning
	default:
	}

	select {
	case l.tasks <- q:
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	// Run may have stopped while the send was in flight. Its final drain or
	// the next Run's drain discards the task.
	l.mu.Lock()
	stopped := !l.running || l.done != done
	l.mu.Unlock()
	if stopped {
		return ErrNotRunning
	}
	return nil
}

// Call runs fn on the loop and waits for its result. If ctx ends first Call
// returns ctx.Err() and fn may still run later.
func (l *Loop) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)
	task := func(loopCtx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("task panicked: %v", r)
			}
		}()
		result <- fn(loopCtx)
	}
	dropped := func() {
		select {
		case result <- ErrNotRunning:
		default:
		}
	}
	err := l.enqueue(ctx, queued{task: task, dropped: dropped})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
