// Package markup replaces elements with server-supplied markup and makes
// sure scripts in that markup run exactly once, in document order, after the
// new nodes are in place.
//
// DOM engines disagree on how outer content assignment treats scripts, table
// sections and iframes, so the work is expressed as one interface, Replacer,
// with three strategies. Probe picks one from a Capabilities value once at
// startup:
//
//	r := markup.Probe(markup.CapabilitiesFor(userAgent), registry, vm)
//	err := r.Replace(target, `<div id="x">new</div><script>init()</script>`)
package markup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-logr/logr"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/script"
)

// ErrDetached is returned when the target has no parent to insert into.
var ErrDetached = errors.New("markup: target element is not attached")

// Replacer replaces target with the nodes parsed from markup.
type Replacer interface {
	Replace(target *html.Node, markup string) error
}

// ScriptRunner executes script elements. contrib.Registry implements it.
type ScriptRunner interface {
	// Seed records the contributions the page already has. It is called
	// before any node is inserted.
	Seed()
	// RunScripts executes every script that is one of nodes or under one,
	// in document order, each starting after the previous one finished.
	RunScripts(nodes []*html.Node, filter func(string) string, done func())
}

// Option configures a strategy.
type Option func(*engine)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(e *engine) {
		e.log = log
	}
}

// engine holds what every strategy shares.
type engine struct {
	scripts ScriptRunner
	eval    script.Evaluator
	log     logr.Logger
}

func newEngine(scripts ScriptRunner, eval script.Evaluator, opts []Option) engine {
	e := engine{scripts: scripts, eval: eval, log: logr.Discard()}
	for _, opt := range opts {
		opt(&e)
	}
	e.log = e.log.WithName("ReplaceOuterHtml")
	return e
}

// replaceScript handles a <script> target: the new content is extracted,
// the element replaced, and the content evaluated directly.
func (e engine) replaceScript(target *html.Node, source string, nodes []*html.Node) {
	dom.InsertBefore(target, nodes)
	dom.Detach(target)
	if e.eval == nil {
		return
	}
	if err := e.eval.Evaluate(source); err != nil {
		e.log.Error(err, "Error evaluating javascript", "source", source)
	}
}

func (e engine) seed() {
	if e.scripts != nil {
		e.scripts.Seed()
	}
}

// scan runs scripts in the sibling range [from, until).
func (e engine) scan(from, until *html.Node) {
	var nodes []*html.Node
	for n := from; n != nil && n != until; n = n.NextSibling {
		nodes = append(nodes, n)
	}
	e.run(nodes, nil)
}

func (e engine) run(nodes []*html.Node, filter func(string) string) {
	if e.scripts == nil || len(nodes) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error(nil, "Error executing scripts", "panic", r)
		}
	}()
	e.scripts.RunScripts(nodes, filter, nil)
}

func checkTarget(target *html.Node) error {
	if target == nil || target.Parent == nil {
		return ErrDetached
	}
	return nil
}

// parse parses markup as a fragment in the given context element.
func parse(markup string, context *html.Node) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("markup: parse: %w", err)
	}
	return nodes, nil
}

// contextFor returns the element markup replacing target is parsed in.
func contextFor(target *html.Node) *html.Node {
	if p := target.Parent; p != nil && p.Type == html.ElementNode {
		return &html.Node{Type: html.ElementNode, DataAtom: p.DataAtom, Data: p.Data, Namespace: p.Namespace}
	}
	return dom.Element(atom.Body)
}

// scriptSource returns the text of the first script found in nodes.
func scriptSource(nodes []*html.Node) string {
	for _, n := range nodes {
		if s := dom.First(n, atom.Script); s != nil {
			return dom.Text(s)
		}
	}
	return ""
}

// isTableSection reports whether a is an element that cannot be re-parented
// freely by table-constrained engines.
func isTableSection(a atom.Atom) bool {
	switch a {
	case atom.Tbody, atom.Tr, atom.Td, atom.Thead, atom.Tfoot, atom.Th:
		return true
	}
	return false
}

const iframeMarker = "__HXCLIENT_JS_REMOVE_X9F4A__"

var iframeTag = regexp.MustCompile(`(?i)<\s*iframe`)

// markIframes neutralizes <iframe tags so an intermediate parse does not
// produce loadable iframes.
func markIframes(text string) string {
	return iframeTag.ReplaceAllStringFunc(text, func(m string) string {
		return "<" + iframeMarker + m[1:]
	})
}

// unmarkIframes reverses markIframes.
func unmarkIframes(text string) string {
	return strings.ReplaceAll(text, iframeMarker, "")
}

// ReplaceComponent renders c and replaces target with the result.
func ReplaceComponent(ctx context.Context, r Replacer, target *html.Node, c templ.Component) error {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return fmt.Errorf("markup: render: %w", err)
	}
	return r.Replace(target, buf.String())
}
