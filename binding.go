package hxclient

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/net/html"

	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/encoding"
	"github.com/pthm/hxclient/lib/events"
)

// Markup attributes of a declarative binding.
const (
	// AttrOn lists the events, space separated, that trigger a request.
	AttrOn = "data-hx-on"
	// AttrAjax carries the sealed request attributes.
	AttrAjax = "data-hx-ajax"
	// AttrSwap is how the response is applied to the component. Defaults
	// to outerHTML.
	AttrSwap = "data-hx-swap"
)

// Binding describes a declarative binding rendered by the server.
type Binding struct {
	// Event is one or more event names, space separated.
	Event string
	// Attrs are the request attributes. Only data values can be sealed:
	// component must be an element id and callbacks are not allowed.
	Attrs Attributes
	// Swap is how the response is applied; empty means outerHTML.
	Swap SwapMode
	// Sensitive attributes are encrypted instead of signed.
	Sensitive bool
}

// BindAttrs renders b as element attributes for a templ template:
//
//	attrs, err := hxclient.BindAttrs(codec, hxclient.Binding{
//	    Event: "click",
//	    Attrs: hxclient.Attributes{"c": "row-1", "u": map[string]any{"action": "delete"}},
//	})
//	<button { attrs... }>Delete</button>
func BindAttrs(codec *encoding.Codec, b Binding) (templ.Attributes, error) {
	if strings.TrimSpace(b.Event) == "" {
		return nil, newError(KindConfiguration, "bind attrs", "", errors.New("no event"))
	}
	if _, err := ParseAttributes(b.Attrs); err != nil {
		return nil, err
	}
	for k, v := range b.Attrs {
		if err := sealable(v); err != nil {
			return nil, newError(KindConfiguration, "bind attrs", "", fmt.Errorf("%s: %w", k, err))
		}
	}

	attrs := templ.Attributes{AttrOn: b.Event}
	if len(b.Attrs) > 0 {
		sealed, err := codec.Seal(b.Attrs, b.Sensitive)
		if err != nil {
			return nil, err
		}
		attrs[AttrAjax] = sealed
	}
	if b.Swap != "" && b.Swap != SwapOuter {
		attrs[AttrSwap] = string(b.Swap)
	}
	return attrs, nil
}

// sealable rejects values that only make sense inside one process.
func sealable(v any) error {
	if v == nil {
		return nil
	}
	switch v.(type) {
	case dom.Ref, *html.Node:
		return errors.New("elements must be referenced by id")
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return fmt.Errorf("%T cannot be sealed", v)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := sealable(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if err := sealable(iter.Value().Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

// BindDocument binds every element of the document carrying AttrOn. The
// element itself is the component unless the sealed attributes name one,
// and the response is applied per AttrSwap. It returns how many bindings
// were made. Must be called on the loop.
func (c *Client) BindDocument() (int, error) {
	return c.BindTree(c.doc.Root())
}

// BindTree is BindDocument for the subtree under root.
func (c *Client) BindTree(root *html.Node) (int, error) {
	var annotated []*html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if _, ok := dom.LookupAttr(n, AttrOn); ok && n.Type == html.ElementNode {
			annotated = append(annotated, n)
		}
		return true
	})

	count := 0
	var errs []error
	for _, n := range annotated {
		cfg, err := c.bindingConfig(n)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dom.NodeRef(n), err))
			continue
		}
		for _, event := range strings.Fields(dom.Attr(n, AttrOn)) {
			c.bus.Bind(n, event, c.submitter(cfg))
			count++
		}
	}
	c.log.V(1).Info("Bound document", "elements", len(annotated), "bindings", count)
	return count, errors.Join(errs...)
}

func (c *Client) bindingConfig(n *html.Node) (Config, error) {
	attrs := Attributes{}
	if sealed := dom.Attr(n, AttrAjax); sealed != "" {
		if c.codec == nil {
			return Config{}, newError(KindConfiguration, "bind", "", errors.New("sealed attributes but no codec configured"))
		}
		opened, err := c.codec.Open(sealed)
		if err != nil {
			return Config{}, err
		}
		attrs = Attributes(opened)
	}

	cfg, err := ParseAttributes(attrs)
	if err != nil {
		return Config{}, err
	}
	if cfg.Component.IsZero() {
		if id := dom.Attr(n, "id"); id != "" {
			cfg.Component = dom.ID(id)
		} else {
			cfg.Component = dom.NodeRef(n)
		}
	}

	mode := SwapMode(dom.Attr(n, AttrSwap))
	if mode == "" {
		mode = SwapOuter
	}
	if mode != SwapNone {
		cfg.SuccessHandlers = append(cfg.SuccessHandlers, c.SwapHandler(mode))
	}
	return cfg, nil
}

func (c *Client) submitter(cfg Config) events.Handler {
	return func(ev events.Event) {
		c.queue.Submit(c.NewItem(cfg, ev))
	}
}
