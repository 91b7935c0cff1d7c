package hxclient

import (
	"github.com/pthm/hxclient/lib/contrib"
	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/events"
	"github.com/pthm/hxclient/lib/markup"
	"github.com/pthm/hxclient/lib/script"
	"github.com/pthm/hxclient/lib/transport"
)

// Collaborators a Client is assembled from. They live in lib/ so they can be
// used and tested on their own; the aliases let callers configure a Client
// without importing every package.
type (
	// Transport performs network calls. Callbacks may arrive on any
	// goroutine; the client posts them back to its loop.
	Transport = transport.Transport

	// Evaluator runs script source from responses.
	Evaluator = script.Evaluator

	// Fetcher retrieves contributed scripts and stylesheets.
	Fetcher = contrib.Fetcher

	// Replacer replaces a component with response markup.
	Replacer = markup.Replacer

	// Resolver finds elements by reference and reports attachment.
	Resolver = dom.Resolver

	// Binder attaches event handlers to elements.
	Binder = events.Binder
)

var (
	_ Transport = (*transport.HTTP)(nil)
	_ Transport = (*RecordingTransport)(nil)
	_ Fetcher   = (*transport.HTTP)(nil)
	_ Evaluator = (*script.VM)(nil)
	_ Resolver  = (*dom.Document)(nil)
	_ Binder    = (*events.Bus)(nil)
	_ Replacer  = (*markup.Contextual)(nil)
)
