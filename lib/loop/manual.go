package loop

import (
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	testclock "k8s.io/utils/clock/testing"
)

// Manual is a deterministic Loop for tests. Nothing runs until the test
// calls RunUntilIdle or Advance, and time only moves when Advance is called.
//
//	l := loop.NewManual(time.Now())
//	l.Post(fn)
//	l.RunUntilIdle()      // fn has run
//	l.Advance(time.Second) // timers due within the next second have fired
type Manual struct {
	clock *testclock.FakeClock
	log   logr.Logger

	mu      sync.Mutex
	pending []func()
	timers  []*manualTimer
	seq     int
}

type manualTimer struct {
	owner   *Manual
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

// NewManual creates a Manual loop whose virtual time starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		clock: testclock.NewFakeClock(start),
		log:   logr.Discard(),
	}
}

// SetLogger sets the logger used to report panicking tasks.
func (m *Manual) SetLogger(log logr.Logger) {
	m.log = log
}

// Post queues fn. Safe to call from any goroutine.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, fn)
}

// AfterFunc arms a virtual timer.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{owner: m, at: m.clock.Now().Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	return m.clock.Now()
}

// Pending returns the number of queued tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Timers returns the number of armed timers.
func (m *Manual) Timers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// RunUntilIdle runs queued tasks, including tasks they post, until none are
// left. It returns how many tasks ran.
func (m *Manual) RunUntilIdle() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return n
		}
		fn := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		run(m.log, fn)
		n++
	}
}

// Advance moves virtual time forward by d, firing due timers in deadline
// order and draining the task queue after each one.
func (m *Manual) Advance(d time.Duration) {
	target := m.clock.Now().Add(d)
	m.RunUntilIdle()
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		m.clock.SetTime(t.at)
		run(m.log, t.fn)
		m.RunUntilIdle()
	}
	m.clock.SetTime(target)
	m.RunUntilIdle()
}

// nextDue removes and returns the earliest timer due at or before target.
func (m *Manual) nextDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	t := m.timers[0]
	if t.at.After(target) {
		return nil
	}
	m.timers = m.timers[1:]
	t.fired = true
	return t
}

func (t *manualTimer) Stop() bool {
	m := t.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			break
		}
	}
	return true
}
