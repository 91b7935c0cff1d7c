// Package hxclient is the client half of a server-rendered component
// system: it turns element events into serialized requests and applies the
// returned markup to the page.
//
// Everything runs on one logical thread, a loop.Loop. Event handlers,
// transport callbacks and timers are all posted to it, so the queue, the
// throttler and the document never need locks.
//
// # Core Concepts
//
// A request is described by a Config and becomes an Item when an event
// fires. Items go through a Queue that dispatches at most one at a time, in
// submission order:
//
//	l := loop.New()
//	c := hxclient.New(l, doc, hxclient.WithTransport(transport.NewHTTP()))
//	c.Submit(hxclient.Config{Component: dom.ID("row-1")}, events.Event{Name: "click"})
//
// Each item runs its preconditions, its before handlers, the network call,
// then its success or error handlers. Settings callbacks run before the
// item's own. A panicking callback is logged and the rest still run.
//
// # Ordering and Throttling
//
// Items carrying a token can replace queued items with the same token
// (RemovePrevious) or be throttled: within a throttle window only the latest
// submission is kept. With ThrottlePostpone the window restarts on every
// submission.
//
// An item that never completes is abandoned after RequestTimeout +
// ProcessingTimeout + 1s so the queue keeps moving. Its error handlers do
// not run.
//
// # Declarative Bindings
//
// Servers render bindings with BindAttrs, typically spread into a templ
// element. The request attributes are sealed with a Codec:
//   - Signed (default): visible but tamper-proof
//   - Encrypted: opaque to the page (Binding.Sensitive)
//
// On the client, BindDocument opens them and wires the events:
//
//	c := hxclient.New(l, doc, hxclient.WithCodec(codec))
//	n, err := c.BindDocument()
//
// # Applying Responses
//
// Response markup replaces the component through a markup.Replacer picked
// for the engine, or is inserted per SwapMode. Scripts in the markup run
// once, in document order. Referenced scripts and stylesheets are fetched
// once per page through the contrib registry.
//
// # Testing
//
// NewTestClient runs a client on a manual loop with a RecordingTransport, so
// tests decide when time passes and when responses arrive.
package hxclient
