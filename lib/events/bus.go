// Package events binds handlers to named events on DOM nodes and reclaims
// bindings whose nodes have left the document.
package events

import (
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/net/html"
)

// Event is one firing of a named event. A nil Target is the page itself.
type Event struct {
	Name   string
	Target *html.Node
	Detail map[string]any
}

// Handler reacts to an event.
type Handler func(Event)

// Binder subscribes handlers. A nil node binds at page level.
type Binder interface {
	Bind(n *html.Node, event string, h Handler) (unbind func())
}

type binding struct {
	event   string
	handler Handler
}

// Bus is an in-memory Binder. Handlers run synchronously in Fire, on the
// caller's goroutine.
type Bus struct {
	mu       sync.Mutex
	bindings map[*html.Node][]*binding
	onBind   func(*html.Node)
	log      logr.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) BusOption {
	return func(b *Bus) {
		b.log = log
	}
}

// OnBind registers a hook called with every node that gets a binding. The
// Reclaimer uses it to track nodes.
func OnBind(fn func(*html.Node)) BusOption {
	return func(b *Bus) {
		b.onBind = fn
	}
}

// NewBus creates a Bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		bindings: make(map[*html.Node][]*binding),
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.WithName("Events")
	return b
}

// Bind implements Binder.
func (b *Bus) Bind(n *html.Node, event string, h Handler) func() {
	bd := &binding{event: event, handler: h}

	b.mu.Lock()
	_, known := b.bindings[n]
	b.bindings[n] = append(b.bindings[n], bd)
	hook := b.onBind
	b.mu.Unlock()

	if !known && n != nil && hook != nil {
		hook(n)
	}
	b.log.V(2).Info("Bound handler", "event", event)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.bindings[n]
		for i, x := range list {
			if x == bd {
				b.bindings[n] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(b.bindings[n]) == 0 {
			delete(b.bindings, n)
		}
	}
}

// Fire runs every handler bound to event on n, in binding order, and
// returns how many ran.
func (b *Bus) Fire(n *html.Node, event string, detail map[string]any) int {
	b.mu.Lock()
	var handlers []Handler
	for _, bd := range b.bindings[n] {
		if bd.event == event {
			handlers = append(handlers, bd.handler)
		}
	}
	b.mu.Unlock()

	ev := Event{Name: event, Target: n, Detail: detail}
	for _, h := range handlers {
		b.call(h, ev)
	}
	return len(handlers)
}

func (b *Bus) call(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(nil, "Event handler panicked", "event", ev.Name, "panic", r)
		}
	}()
	h(ev)
}

// Purge removes every binding on n.
func (b *Bus) Purge(n *html.Node) {
	b.mu.Lock()
	delete(b.bindings, n)
	b.mu.Unlock()
}

// Bound reports how many handlers are bound on n.
func (b *Bus) Bound(n *html.Node) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bindings[n])
}

var _ Binder = (*Bus)(nil)
