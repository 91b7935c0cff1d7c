package hxclient

import (
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/net/html"

	"github.com/pthm/hxclient/lib/contrib"
	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/encoding"
	"github.com/pthm/hxclient/lib/events"
	"github.com/pthm/hxclient/lib/loop"
	"github.com/pthm/hxclient/lib/markup"
	"github.com/pthm/hxclient/lib/script"
	"github.com/pthm/hxclient/lib/transport"
)

// Client is one page's request pipeline: settings, queue, contribution
// registry, markup replacer and event binding, assembled once and passed
// around explicitly.
//
//	l := loop.New()
//	c := hxclient.New(l, doc, hxclient.WithTransport(transport.NewHTTP()))
//	c.Start()
//	go l.Run(ctx)
//	c.Submit(hxclient.Config{Component: dom.ID("row-1")}, events.Event{Name: "click"})
type Client struct {
	loop      loop.Loop
	doc       *dom.Document
	settings  *Settings
	transport transport.Transport
	evaluator script.Evaluator
	fetcher   contrib.Fetcher
	caps      *markup.Capabilities
	replacer  markup.Replacer
	registry  *contrib.Registry
	bus       *events.Bus
	reclaimer *events.Reclaimer
	codec     *encoding.Codec
	queue     *Queue
	metrics   *Metrics
	idle      []func()
	log       logr.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithSettings sets the client-wide settings.
func WithSettings(s *Settings) Option {
	return func(c *Client) {
		c.settings = s
	}
}

// WithTransport sets the transport. If it also implements contrib.Fetcher
// it fetches contributed resources too.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithEvaluator sets the script evaluator. Defaults to a script.VM.
func WithEvaluator(e script.Evaluator) Option {
	return func(c *Client) {
		c.evaluator = e
	}
}

// WithFetcher sets how contributed scripts and stylesheets are fetched.
func WithFetcher(f contrib.Fetcher) Option {
	return func(c *Client) {
		c.fetcher = f
	}
}

// WithCapabilities picks the markup replacement strategy. Defaults to a
// standards-compliant engine.
func WithCapabilities(caps markup.Capabilities) Option {
	return func(c *Client) {
		c.caps = &caps
	}
}

// WithCodec sets the codec used to open sealed bindings.
func WithCodec(codec *encoding.Codec) Option {
	return func(c *Client) {
		c.codec = codec
	}
}

// WithClientMetrics records queue activity.
func WithClientMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithIdle registers fn to run on the loop whenever the queue runs dry.
func WithIdle(fn func()) Option {
	return func(c *Client) {
		c.idle = append(c.idle, fn)
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New assembles a Client over doc. All pipeline work runs on l.
func New(l loop.Loop, doc *dom.Document, opts ...Option) *Client {
	c := &Client{
		loop: l,
		doc:  doc,
		log:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.settings == nil {
		c.settings = DefaultSettings()
	}
	if c.evaluator == nil {
		c.evaluator = script.NewVM()
	}
	if c.transport == nil {
		c.transport = transport.NewHTTP(transport.WithLogger(c.log))
	}
	if c.fetcher == nil {
		if f, ok := c.transport.(contrib.Fetcher); ok {
			c.fetcher = f
		}
	}

	regOpts := []contrib.Option{contrib.WithLogger(c.log), contrib.WithDocument(doc)}
	if c.fetcher != nil {
		regOpts = append(regOpts, contrib.WithFetcher(c.fetcher))
	}
	c.registry = contrib.New(l, c.evaluator, regOpts...)

	caps := markup.CapabilitiesFor("")
	if c.caps != nil {
		caps = *c.caps
	}
	c.replacer = markup.Probe(caps, c.registry, c.evaluator, markup.WithLogger(c.log))

	c.bus = events.NewBus(events.WithLogger(c.log), events.OnBind(func(n *html.Node) {
		c.reclaimer.Track(n)
	}))
	c.reclaimer = events.NewReclaimer(l, c.bus, doc.IsAttached, events.WithReclaimerLogger(c.log))

	qOpts := []QueueOption{WithQueueLogger(c.log), WithMetrics(c.metrics)}
	for _, fn := range c.idle {
		qOpts = append(qOpts, WithIdleHook(fn))
	}
	c.queue = NewQueue(l, qOpts...)
	return c
}

// Start begins listener reclamation.
func (c *Client) Start() {
	c.loop.Post(c.reclaimer.Start)
}

// Stop ends listener reclamation. Queued items are not affected.
func (c *Client) Stop() {
	c.loop.Post(c.reclaimer.Stop)
}

// Loop returns the loop the client runs on.
func (c *Client) Loop() loop.Loop { return c.loop }

// Document returns the page.
func (c *Client) Document() *dom.Document { return c.doc }

// Settings returns the client-wide settings.
func (c *Client) Settings() *Settings { return c.settings }

// Queue returns the request queue.
func (c *Client) Queue() *Queue { return c.queue }

// Registry returns the contribution registry.
func (c *Client) Registry() *contrib.Registry { return c.registry }

// Replacer returns the markup replacement strategy in use.
func (c *Client) Replacer() markup.Replacer { return c.replacer }

// Bus returns the event bus.
func (c *Client) Bus() *events.Bus { return c.bus }

// Env returns what items built by this client use.
func (c *Client) Env() Env {
	return Env{
		Loop:      c.loop,
		Settings:  c.settings,
		Resolver:  c.doc,
		Transport: c.transport,
		Log:       c.log.WithName("RequestQueue"),
	}
}

// NewItem builds an item against the client's settings.
func (c *Client) NewItem(cfg Config, ev events.Event) *Item {
	return NewItem(c.Env(), cfg, ev)
}

// Submit queues a request for cfg. It may be called from any goroutine and
// returns immediately.
func (c *Client) Submit(cfg Config, ev events.Event) {
	c.loop.Post(func() {
		c.queue.Submit(c.NewItem(cfg, ev))
	})
}

// SubmitAttributes is Submit for loose attributes. Malformed attributes are
// logged and dropped.
func (c *Client) SubmitAttributes(attrs Attributes, ev events.Event) {
	cfg, err := ParseAttributes(attrs)
	if err != nil {
		c.metrics.record(eventDropped)
		c.log.Error(err, "Dropping request")
		return
	}
	c.Submit(cfg, ev)
}

// Bind submits a new request for attrs every time event fires on the
// component named in attrs, or on the page when there is none. Must be
// called on the loop.
func (c *Client) Bind(event string, attrs Attributes) (func(), error) {
	cfg, err := ParseAttributes(attrs)
	if err != nil {
		return nil, err
	}
	return c.bindConfig(event, cfg)
}

func (c *Client) bindConfig(event string, cfg Config) (func(), error) {
	var target *html.Node
	if !cfg.Component.IsZero() {
		if target = c.doc.Resolve(cfg.Component); target == nil {
			return nil, newError(KindConfiguration, "bind", "", fmt.Errorf("component %s not found", cfg.Component))
		}
	}
	return c.bus.Bind(target, event, c.submitter(cfg)), nil
}

// Fire delivers event to the handlers bound on ref (the page when ref is
// zero). It may be called from any goroutine.
func (c *Client) Fire(ref dom.Ref, event string, detail map[string]any) {
	c.loop.Post(func() {
		var target *html.Node
		if !ref.IsZero() {
			if target = c.doc.Resolve(ref); target == nil {
				c.log.Info("Event target not found", "target", ref.String(), "event", event)
				return
			}
		}
		n := c.bus.Fire(target, event, detail)
		c.log.V(1).Info("Fired event", "target", ref.String(), "event", event, "handlers", n)
	})
}

// SwapHandler returns a success handler applying the response body to the
// item's component with mode.
func (c *Client) SwapHandler(mode SwapMode) SuccessHandler {
	return func(it *Item, resp *transport.Response) {
		target := it.Component()
		if target == nil {
			c.log.Info("No component to apply the response to", "item", it.ID())
			return
		}
		if err := c.Swap(target, resp.Text(), mode); err != nil {
			c.log.Error(err, "Applying response failed", "item", it.ID(), "mode", string(mode))
		}
	}
}

// ReplaceComponent returns a success handler replacing the item's component
// with the response body.
func (c *Client) ReplaceComponent() SuccessHandler {
	return c.SwapHandler(SwapOuter)
}
