package hxclient

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/pthm/hxclient/lib/loop"
)

// Throttler limits how often functions sharing a token run. There is at most
// one pending timer per token.
//
// All methods must be called on the loop.
type Throttler struct {
	loop    loop.Loop
	log     logr.Logger
	pending map[string]*throttleEntry
	last    map[string]time.Time
}

type throttleEntry struct {
	fn    func()
	timer loop.Timer
}

// NewThrottler creates a Throttler whose timers run on l.
func NewThrottler(l loop.Loop, log logr.Logger) *Throttler {
	return &Throttler{
		loop:    l,
		log:     log.WithName("Throttler"),
		pending: make(map[string]*throttleEntry),
		last:    make(map[string]time.Time),
	}
}

// Throttle runs fn subject to the throttle window of token.
//
// Without postpone, fn runs immediately when token never ran or last ran at
// least delay ago. Otherwise fn becomes the pending function of token; the
// first such call arms a timer delay from now, later calls in the window
// only replace the function.
//
// With postpone, every call restarts the timer, so fn runs delay after the
// last call of a burst.
func (t *Throttler) Throttle(token string, delay time.Duration, fn func(), postpone bool) {
	now := t.loop.Now()

	if !postpone {
		last, ran := t.last[token]
		if !ran || !now.Before(last.Add(delay)) {
			t.clear(token)
			t.last[token] = now
			t.log.V(2).Info("Executing immediately", "token", token)
			fn()
			return
		}
		if e, ok := t.pending[token]; ok {
			e.fn = fn
			t.log.V(2).Info("Replaced pending function", "token", token)
			return
		}
		t.arm(token, delay, fn)
		return
	}

	t.clear(token)
	t.arm(token, delay, fn)
}

// Pending returns how many tokens have a pending function.
func (t *Throttler) Pending() int {
	return len(t.pending)
}

func (t *Throttler) arm(token string, delay time.Duration, fn func()) {
	e := &throttleEntry{fn: fn}
	e.timer = t.loop.AfterFunc(delay, func() { t.fire(token, e) })
	t.pending[token] = e
	t.log.V(2).Info("Armed timer", "token", token, "delay", delay)
}

func (t *Throttler) fire(token string, e *throttleEntry) {
	if t.pending[token] != e {
		return
	}
	delete(t.pending, token)
	t.last[token] = t.loop.Now()
	e.fn()
}

func (t *Throttler) clear(token string) {
	if e, ok := t.pending[token]; ok {
		e.timer.Stop()
		delete(t.pending, token)
	}
}
