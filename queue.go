package hxclient

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/pthm/hxclient/lib/loop"
)

// failsafeSlack is added to an item's timeouts to get its failsafe delay.
const failsafeSlack = time.Second

// Queue serializes items: at most one is in flight, and item N+1 is never
// dispatched before item N completes.
//
// An item completes when its success or error handlers have run, or when
// its failsafe fires after RequestTimeout + ProcessingTimeout + 1s. The
// failsafe only unblocks the queue: the transport call is not aborted and the
// item's error handlers do not run. Callers relying on error handlers for
// cleanup must also handle abandonment.
//
// All methods must be called on the loop.
type Queue struct {
	loop      loop.Loop
	throttler *Throttler
	log       logr.Logger
	metrics   *Metrics
	onIdle    []func()

	items     []*Item
	current   *Item
	failsafe  loop.Timer
	scheduled bool
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger.
func WithQueueLogger(log logr.Logger) QueueOption {
	return func(q *Queue) {
		q.log = log
	}
}

// WithMetrics records queue activity in m.
func WithMetrics(m *Metrics) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

// WithIdleHook registers fn to run whenever the queue runs out of work.
func WithIdleHook(fn func()) QueueOption {
	return func(q *Queue) {
		q.onIdle = append(q.onIdle, fn)
	}
}

// NewQueue creates a Queue on l.
func NewQueue(l loop.Loop, opts ...QueueOption) *Queue {
	q := &Queue{
		loop: l,
		log:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.log = q.log.WithName("RequestQueue")
	q.throttler = NewThrottler(l, q.log)
	return q
}

// Throttler returns the queue's throttler.
func (q *Queue) Throttler() *Throttler {
	return q.throttler
}

// Len returns the number of queued items, not counting the current one.
func (q *Queue) Len() int {
	return len(q.items)
}

// Current returns the item in flight, or nil.
func (q *Queue) Current() *Item {
	return q.current
}

// Idle reports whether nothing is queued, in flight, or waiting in the
// throttler.
func (q *Queue) Idle() bool {
	return q.current == nil && len(q.items) == 0 && q.throttler.Pending() == 0
}

// Submit adds it to the queue. Malformed items are logged and dropped.
// Throttled items go through the throttler, which enqueues them when the
// window allows.
func (q *Queue) Submit(it *Item) {
	if it == nil {
		q.log.Error(nil, "Argument 'item' must not be nil")
		return
	}
	q.metrics.record(eventSubmitted)

	if err := it.cfg.Validate(); err != nil {
		err = newError(KindConfiguration, "submit", it.id, err)
		it.err = err
		q.metrics.record(eventDropped)
		q.log.Error(err, "Dropping item", "item", it.id)
		return
	}

	if it.cfg.Throttle > 0 {
		q.metrics.record(eventThrottled)
		q.throttler.Throttle(it.cfg.Token, it.cfg.Throttle, func() { q.enqueue(it) }, it.cfg.ThrottlePostpone)
		return
	}
	q.enqueue(it)
}

func (q *Queue) enqueue(it *Item) {
	if it.cfg.RemovePrevious {
		if it.cfg.Token == "" {
			q.log.Info("Item has removePrevious set but no token specified, ignored", "item", it.id)
		} else {
			q.removeByToken(it.cfg.Token)
		}
	}
	it.state = StateQueued
	q.items = append(q.items, it)
	q.metrics.depth(len(q.items))
	q.log.V(2).Info("Enqueued item", "item", it.id, "depth", len(q.items))

	if q.current == nil {
		q.schedule()
	}
}

// removeByToken drops queued items sharing token. The slice is rebuilt, not
// edited in place.
func (q *Queue) removeByToken(token string) {
	kept := make([]*Item, 0, len(q.items))
	for _, it := range q.items {
		if it.cfg.Token == token {
			q.log.V(1).Info("Removed previous item", "item", it.id, "token", token)
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
}

// schedule posts one advance step, unless one is already pending.
func (q *Queue) schedule() {
	if q.scheduled {
		return
	}
	q.scheduled = true
	q.loop.Post(q.advance)
}

func (q *Queue) advance() {
	q.scheduled = false
	if q.current != nil {
		return
	}
	if len(q.items) == 0 {
		if q.Idle() {
			for _, fn := range q.onIdle {
				fn()
			}
		}
		return
	}

	it := q.items[0]
	q.items = q.items[1:]
	q.metrics.depth(len(q.items))

	if !it.checkPreconditions() {
		q.metrics.record(eventSkipped)
		q.log.V(1).Info("Skipping item", "item", it.id)
		q.schedule()
		return
	}

	q.current = it
	delay := it.cfg.RequestTimeout + it.cfg.ProcessingTimeout + failsafeSlack
	q.failsafe = q.loop.AfterFunc(delay, func() { q.expire(it) })
	q.metrics.record(eventDispatched)
	it.dispatch(func() { q.completeCurrent(it) })
}

// completeCurrent releases the queue for the next item. Only the current
// item can complete, and only once.
func (q *Queue) completeCurrent(it *Item) {
	if q.current != it {
		return
	}
	q.current = nil
	if q.failsafe != nil {
		q.failsafe.Stop()
		q.failsafe = nil
	}
	q.metrics.complete(it.state, q.loop.Now().Sub(it.dispatched))
	q.log.V(1).Info("Item completed", "item", it.id, "state", it.state.String())
	q.schedule()
}

func (q *Queue) expire(it *Item) {
	if q.current != it {
		return
	}
	it.abandon()
	q.log.Error(it.err, "Failsafe timeout, abandoning item", "item", it.id, "url", it.url)
	q.completeCurrent(it)
}
