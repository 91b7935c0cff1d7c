package events

import (
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/net/html"

	"github.com/pthm/hxclient/lib/loop"
)

// Reclaimer defaults.
const (
	DefaultInterval  = 5 * time.Second
	DefaultBatchSize = 50
	batchPause       = 50 * time.Millisecond
)

// Purger drops every binding on a node.
type Purger interface {
	Purge(n *html.Node)
}

// Reclaimer periodically frees bindings on nodes that are no longer in the
// document. A sweep takes over the tracked list in one swap and checks at
// most BatchSize nodes per tick; still-attached nodes go back on the list.
//
// All methods must be called on the loop.
type Reclaimer struct {
	loop     loop.Loop
	purger   Purger
	attached func(*html.Node) bool
	interval time.Duration
	batch    int
	log      logr.Logger

	tracked    []*html.Node
	beingSwept []*html.Node
	purged     int
	tick       loop.Timer
	stopped    bool
}

// ReclaimerOption configures a Reclaimer.
type ReclaimerOption func(*Reclaimer)

// WithInterval sets how often a sweep starts.
func WithInterval(d time.Duration) ReclaimerOption {
	return func(r *Reclaimer) {
		r.interval = d
	}
}

// WithBatchSize sets how many nodes are checked per tick.
func WithBatchSize(n int) ReclaimerOption {
	return func(r *Reclaimer) {
		r.batch = n
	}
}

// WithReclaimerLogger sets the logger.
func WithReclaimerLogger(log logr.Logger) ReclaimerOption {
	return func(r *Reclaimer) {
		r.log = log
	}
}

// NewReclaimer creates a Reclaimer. attached reports whether a node is still
// part of the document.
func NewReclaimer(l loop.Loop, p Purger, attached func(*html.Node) bool, opts ...ReclaimerOption) *Reclaimer {
	r := &Reclaimer{
		loop:     l,
		purger:   p,
		attached: attached,
		interval: DefaultInterval,
		batch:    DefaultBatchSize,
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithName("GarbageCollector")
	return r
}

// Track adds n to the nodes checked by future sweeps. Pass it to OnBind.
func (r *Reclaimer) Track(n *html.Node) {
	r.tracked = append(r.tracked, n)
}

// Tracked returns how many nodes are waiting for the next sweep.
func (r *Reclaimer) Tracked() int {
	return len(r.tracked) + len(r.beingSwept)
}

// Start arms the periodic sweep.
func (r *Reclaimer) Start() {
	r.stopped = false
	r.schedule()
}

// Stop cancels future sweeps.
func (r *Reclaimer) Stop() {
	r.stopped = true
	if r.tick != nil {
		r.tick.Stop()
		r.tick = nil
	}
}

func (r *Reclaimer) schedule() {
	if r.stopped {
		return
	}
	r.tick = r.loop.AfterFunc(r.interval, func() {
		r.Sweep()
		r.schedule()
	})
}

// Sweep starts a sweep unless one is in progress.
func (r *Reclaimer) Sweep() {
	if r.beingSwept != nil {
		return
	}
	r.beingSwept = r.tracked
	r.tracked = nil
	r.purged = 0
	r.log.V(2).Info("Purge begin", "total", len(r.beingSwept))
	r.purge()
}

func (r *Reclaimer) purge() {
	if r.beingSwept == nil {
		return
	}
	n := len(r.beingSwept)
	if n > r.batch {
		n = r.batch
	}
	for _, node := range r.beingSwept[:n] {
		if r.attached(node) {
			r.tracked = append(r.tracked, node)
			continue
		}
		r.purger.Purge(node)
		r.purged++
	}
	r.beingSwept = r.beingSwept[n:]

	if len(r.beingSwept) == 0 {
		r.beingSwept = nil
		r.log.V(2).Info("Purge end", "purged", r.purged, "total", len(r.tracked))
		return
	}
	r.loop.AfterFunc(batchPause, r.purge)
}
