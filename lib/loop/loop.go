// Package loop provides the single logical thread that every hxclient
// component runs on.
//
// All queue, throttler and item state is confined to the loop: callers never
// mutate it directly, they Post a task. Timers created with AfterFunc deliver
// their function as a loop task as well, so a timer callback never races with
// other loop work.
package loop

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Loop schedules work onto a single logical thread.
type Loop interface {
	// Post runs fn on a later tick. It never runs fn synchronously.
	Post(fn func())
	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	// Now returns the loop's notion of the current time.
	Now() time.Time
}

// Timer is a cancellable timer created by Loop.AfterFunc.
type Timer interface {
	// Stop prevents the timer from running its function. It returns false if
	// the function already ran or the timer was already stopped.
	Stop() bool
}

// EventLoop is the production Loop. Run must be called for posted tasks to
// execute.
type EventLoop struct {
	clock clock.WithDelayedExecution
	log   logr.Logger

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
}

// Option configures an EventLoop.
type Option func(*EventLoop)

// WithClock overrides the clock used for timers (defaults to the real clock).
func WithClock(c clock.WithDelayedExecution) Option {
	return func(l *EventLoop) {
		l.clock = c
	}
}

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(log logr.Logger) Option {
	return func(l *EventLoop) {
		l.log = log
	}
}

// New creates an EventLoop.
func New(opts ...Option) *EventLoop {
	l := &EventLoop{
		clock: clock.RealClock{},
		log:   logr.Discard(),
		wake:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues fn for the next tick. Safe to call from any goroutine.
func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc arms a timer whose function runs as a loop task.
func (l *EventLoop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &timer{}
	t.inner = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.fire() {
				fn()
			}
		})
	})
	return t
}

// Now returns the clock's current time.
func (l *EventLoop) Now() time.Time {
	return l.clock.Now()
}

// Run executes tasks until ctx is done. Tasks posted while a batch runs are
// picked up by the next batch.
func (l *EventLoop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		for _, fn := range batch {
			run(l.log, fn)
		}
	}
}

// run executes one task. A panicking task must not take the loop down.
func run(log logr.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(nil, "Loop task panicked", "panic", r)
		}
	}()
	fn()
}

// timer tracks whether a loop timer was stopped between the clock firing and
// the posted task running.
type timer struct {
	mu      sync.Mutex
	inner   clock.Timer
	done    bool
	stopped bool
}

func (t *timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	if t.inner != nil {
		t.inner.Stop()
	}
	return true
}

// fire reports whether the timer's function should run.
func (t *timer) fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.done {
		return false
	}
	t.done = true
	return true
}
