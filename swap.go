package hxclient

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/markup"
)

// SwapMode defines how response markup is applied to a target element.
//
// The values match the hx-swap attribute values servers already use.
type SwapMode string

const (
	// SwapOuter replaces the entire element including its tag (outerHTML).
	// It goes through the client's markup.Replacer. This is the default.
	SwapOuter SwapMode = "outerHTML"

	// SwapInner replaces only the element's contents (innerHTML).
	SwapInner SwapMode = "innerHTML"

	// SwapBeforeEnd appends the markup to the end of the target's contents.
	SwapBeforeEnd SwapMode = "beforeend"

	// SwapAfterEnd inserts the markup after the target element.
	SwapAfterEnd SwapMode = "afterend"

	// SwapBeforeBegin inserts the markup before the target element.
	SwapBeforeBegin SwapMode = "beforebegin"

	// SwapAfterBegin prepends the markup to the start of the target's contents.
	SwapAfterBegin SwapMode = "afterbegin"

	// SwapDelete removes the target element. The markup is ignored.
	SwapDelete SwapMode = "delete"

	// SwapNone discards the markup.
	SwapNone SwapMode = "none"
)

// Swap applies text to target according to mode. Scripts in text run once,
// in order, after the new nodes are in place. Must be called on the loop.
func (c *Client) Swap(target *html.Node, text string, mode SwapMode) error {
	if mode == "" {
		mode = SwapOuter
	}
	switch mode {
	case SwapNone:
		return nil
	case SwapOuter:
		return c.replacer.Replace(target, text)
	case SwapDelete:
		if target == nil || target.Parent == nil {
			return markup.ErrDetached
		}
		dom.Detach(target)
		return nil
	}

	if target == nil {
		return markup.ErrDetached
	}
	var nodes []*html.Node
	var err error
	switch mode {
	case SwapInner, SwapAfterBegin, SwapBeforeEnd:
		nodes, err = fragment(text, target)
	case SwapBeforeBegin, SwapAfterEnd:
		if target.Parent == nil {
			return markup.ErrDetached
		}
		nodes, err = fragment(text, target.Parent)
	default:
		return fmt.Errorf("hxclient: unknown swap mode %q", mode)
	}
	if err != nil {
		return err
	}

	c.registry.Seed()
	switch mode {
	case SwapInner:
		for _, child := range dom.Children(target) {
			target.RemoveChild(child)
		}
		appendAll(target, nodes)
	case SwapBeforeEnd:
		appendAll(target, nodes)
	case SwapAfterBegin:
		if target.FirstChild != nil {
			dom.InsertBefore(target.FirstChild, nodes)
		} else {
			appendAll(target, nodes)
		}
	case SwapBeforeBegin:
		dom.InsertBefore(target, nodes)
	case SwapAfterEnd:
		if target.NextSibling != nil {
			dom.InsertBefore(target.NextSibling, nodes)
		} else {
			appendAll(target.Parent, nodes)
		}
	}

	c.registry.RunScripts(nodes, nil, nil)
	return nil
}

// fragment parses text as the content of an element like context.
func fragment(text string, context *html.Node) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	if context.Type == html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, DataAtom: context.DataAtom, Data: context.Data, Namespace: context.Namespace}
	}
	nodes, err := html.ParseFragment(strings.NewReader(text), ctx)
	if err != nil {
		return nil, fmt.Errorf("hxclient: parse: %w", err)
	}
	return nodes, nil
}

func appendAll(parent *html.Node, nodes []*html.Node) {
	for _, n := range nodes {
		dom.Detach(n)
		parent.AppendChild(n)
	}
}
