// Package contrib tracks which scripts and stylesheets have been contributed
// to the page, so each one is loaded or evaluated at most once per page
// lifetime.
package contrib

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/loop"
	"github.com/pthm/hxclient/lib/script"
)

// ErrUnknownElement is reported for elements that are not script, link or
// style.
var ErrUnknownElement = errors.New("contrib: unknown element to contribute")

// Fetcher retrieves a remote resource. It is called off the loop.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// StyleSink receives stylesheet text to add to the page.
type StyleSink interface {
	AddStyle(css string) error
}

// Registry is the page-wide contribution record. The id and url sets only
// ever grow.
type Registry struct {
	loop      loop.Loop
	evaluator script.Evaluator
	fetcher   Fetcher
	styles    StyleSink
	doc       *dom.Document
	log       logr.Logger

	mu     sync.Mutex
	seeded bool
	ids    map[string]struct{}
	urls   map[string]struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithFetcher sets the fetcher for remote scripts and stylesheets.
func WithFetcher(f Fetcher) Option {
	return func(r *Registry) {
		r.fetcher = f
	}
}

// WithStyleSink sets where stylesheet text goes. Defaults to the head of the
// document given by WithDocument.
func WithStyleSink(s StyleSink) Option {
	return func(r *Registry) {
		r.styles = s
	}
}

// WithDocument seeds the registry lazily, on the first Seed or lookup, from
// the document's <script src> and <link href> elements, and makes it the
// default style sink.
func WithDocument(doc *dom.Document) Option {
	return func(r *Registry) {
		r.doc = doc
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// New creates a Registry. Completion callbacks are delivered on l.
func New(l loop.Loop, evaluator script.Evaluator, opts ...Option) *Registry {
	r := &Registry{
		loop:      l,
		evaluator: evaluator,
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.styles == nil && r.doc != nil {
		r.styles = &DocumentStyles{Doc: r.doc}
	}
	r.log = r.log.WithName("Contribution")
	return r
}

// Seed records the document's existing <script src> and <link href> URLs
// unless that already happened. Replacers call it before inserting markup,
// so elements they add are not taken for ones the page started with.
func (r *Registry) Seed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state()
}

// state initializes the sets on first use. Caller holds r.mu.
func (r *Registry) state() {
	if r.seeded {
		return
	}
	r.seeded = true
	r.ids = make(map[string]struct{})
	r.urls = make(map[string]struct{})
	if r.doc == nil {
		return
	}
	for _, n := range dom.ElementsByTag(r.doc.Root(), atom.Script) {
		if src, ok := dom.LookupAttr(n, "src"); ok {
			r.urls[src] = struct{}{}
		}
	}
	for _, n := range dom.ElementsByTag(r.doc.Root(), atom.Link) {
		if href, ok := dom.LookupAttr(n, "href"); ok {
			r.urls[href] = struct{}{}
		}
	}
}

// IsContributed reports whether a non-empty id or url was marked before.
func (r *Registry) IsContributed(id, url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state()
	if id != "" {
		if _, ok := r.ids[id]; ok {
			return true
		}
	}
	if url != "" {
		if _, ok := r.urls[url]; ok {
			return true
		}
	}
	return false
}

// MarkContributed records whichever of id and url is non-empty.
func (r *Registry) MarkContributed(id, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state()
	if id != "" {
		r.ids[id] = struct{}{}
	}
	if url != "" {
		r.urls[url] = struct{}{}
	}
}

// ContributeElement loads or evaluates a script, link or style element unless
// it was already contributed. done is called exactly once, on the loop, once
// the contribution finished, failed, or was skipped.
func (r *Registry) ContributeElement(el *html.Node, done func()) {
	done = once(done)
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error(nil, "Error contributing element", "element", dom.Render(el), "panic", rec)
			r.loop.Post(done)
		}
	}()

	var url string
	switch {
	case dom.IsElement(el, atom.Script):
		url = dom.Attr(el, "src")
	case dom.IsElement(el, atom.Link):
		url = dom.Attr(el, "href")
	case dom.IsElement(el, atom.Style):
	default:
		r.log.Error(ErrUnknownElement, "Unknown element to contribute", "element", dom.Render(el))
		r.loop.Post(done)
		return
	}
	id := dom.Attr(el, "id")

	r.log.V(2).Info("Begin element contribution", "tag", el.Data, "url", url, "id", id)

	if r.IsContributed(id, url) {
		r.log.V(2).Info("Skipped - element already contributed", "url", url, "id", id)
		r.loop.Post(done)
		return
	}
	r.MarkContributed(id, url)

	switch {
	case el.DataAtom == atom.Script && url != "":
		r.loadScript(url, done)
	case el.DataAtom == atom.Script:
		r.evaluate(dom.Text(el))
		r.loop.Post(done)
	case el.DataAtom == atom.Link:
		r.loadStylesheet(url, done)
	default:
		r.addStyle(dom.Text(el))
		r.loop.Post(done)
	}
}

// ContributeAll contributes elements one after another, each waiting for the
// previous one to finish, then calls done.
func (r *Registry) ContributeAll(elements []*html.Node, done func()) {
	var step func(i int)
	step = func(i int) {
		if i == len(elements) {
			if done != nil {
				done()
			}
			return
		}
		r.ContributeElement(elements[i], func() { step(i + 1) })
	}
	step(0)
}

// RunScripts executes every script element that is one of nodes or under
// one, in document order, then calls done (if not nil). A remote script is
// contributed through ContributeElement and the scripts after it wait for it
// to finish. Inline script content is passed through filter (if not nil),
// its id is marked, and it is evaluated.
func (r *Registry) RunScripts(nodes []*html.Node, filter func(string) string, done func()) {
	var scripts []*html.Node
	for _, n := range nodes {
		if n == nil || n.Type != html.ElementNode {
			continue
		}
		if n.DataAtom == atom.Script {
			scripts = append(scripts, n)
			continue
		}
		scripts = append(scripts, dom.ElementsByTag(n, atom.Script)...)
	}

	var step func(i int)
	step = func(i int) {
		for ; i < len(scripts); i++ {
			s := scripts[i]
			if _, ok := dom.LookupAttr(s, "src"); ok {
				next := i + 1
				r.ContributeElement(s, func() { step(next) })
				return
			}
			r.runInline(s, filter)
		}
		if done != nil {
			done()
		}
	}
	step(0)
}

func (r *Registry) runInline(s *html.Node, filter func(string) string) {
	content := dom.Text(s)
	if filter != nil {
		content = filter(content)
	}
	if id := dom.Attr(s, "id"); id != "" {
		r.MarkContributed(id, "")
	}
	r.evaluate(content)
}

func (r *Registry) evaluate(source string) {
	r.log.V(2).Info("Evaluating javascript", "source", abbreviate(source))
	if r.evaluator == nil {
		return
	}
	if err := r.evaluator.Evaluate(source); err != nil {
		r.log.Error(err, "Error evaluating javascript", "source", abbreviate(source))
	}
}

func (r *Registry) addStyle(css string) {
	r.log.V(2).Info("Adding stylesheet", "css", abbreviate(css))
	if r.styles == nil {
		return
	}
	if err := r.styles.AddStyle(css); err != nil {
		r.log.Error(err, "Error adding stylesheet definition")
	}
}

func (r *Registry) loadScript(url string, done func()) {
	r.log.V(1).Info("Loading javascript", "url", url)
	r.fetch(url, func(body []byte, err error) {
		if err != nil {
			r.log.Error(err, "Error loading javascript", "url", url)
		} else {
			r.evaluate(string(body))
		}
		done()
	})
}

func (r *Registry) loadStylesheet(url string, done func()) {
	r.log.V(1).Info("Loading stylesheet resource", "url", url)
	r.fetch(url, func(body []byte, err error) {
		if err != nil {
			r.log.Error(err, "Error loading stylesheet", "url", url)
		} else {
			r.addStyle(string(body))
		}
		done()
	})
}

// fetch runs the fetcher off the loop and delivers the result on it.
func (r *Registry) fetch(url string, cb func([]byte, error)) {
	if r.fetcher == nil {
		r.loop.Post(func() { cb(nil, errors.New("contrib: no fetcher configured")) })
		return
	}
	go func() {
		body, err := r.fetcher.Fetch(context.Background(), url)
		r.loop.Post(func() { cb(body, err) })
	}()
}

// DocumentStyles appends <style type="text/css"> elements to the document
// head.
type DocumentStyles struct {
	Doc *dom.Document
}

// AddStyle implements StyleSink.
func (s *DocumentStyles) AddStyle(css string) error {
	head := s.Doc.Head()
	if head == nil {
		return errors.New("contrib: document has no head")
	}
	style := dom.Element(atom.Style, html.Attribute{Key: "type", Val: "text/css"})
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	head.AppendChild(style)
	return nil
}

func once(fn func()) func() {
	var o sync.Once
	return func() {
		o.Do(func() {
			if fn != nil {
				fn()
			}
		})
	}
}

func abbreviate(s string) string {
	const max = 100
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:30]) + "..."
}
