package transport

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pthm/hxclient/lib/dom"
)

// SerializeForm collects the successful controls of a form element the way a
// browser would submit them. Disabled controls, unnamed controls, unchecked
// checkboxes and radios, and buttons are left out.
func SerializeForm(form *html.Node) url.Values {
	values := url.Values{}
	if form == nil {
		return values
	}
	for c := form.FirstChild; c != nil; c = c.NextSibling {
		collect(c, values)
	}
	return values
}

func collect(n *html.Node, values url.Values) {
	if n.Type == html.ElementNode && control(n, values) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, values)
	}
}

// control adds the value of n if it is a successful control. It reports
// whether n's subtree has been consumed.
func control(n *html.Node, values url.Values) bool {
	name := dom.Attr(n, "name")
	if name == "" {
		return false
	}
	if _, disabled := dom.LookupAttr(n, "disabled"); disabled {
		return true
	}

	switch n.DataAtom {
	case atom.Input:
		switch strings.ToLower(dom.Attr(n, "type")) {
		case "checkbox", "radio":
			if _, checked := dom.LookupAttr(n, "checked"); checked {
				v, ok := dom.LookupAttr(n, "value")
				if !ok {
					v = "on"
				}
				values.Add(name, v)
			}
		case "submit", "button", "reset", "image", "file":
		default:
			values.Add(name, dom.Attr(n, "value"))
		}
		return true
	case atom.Textarea:
		values.Add(name, dom.Text(n))
		return true
	case atom.Select:
		serializeSelect(n, name, values)
		return true
	}
	return false
}

func serializeSelect(sel *html.Node, name string, values url.Values) {
	_, multiple := dom.LookupAttr(sel, "multiple")
	options := dom.ElementsByTag(sel, atom.Option)
	var chosen []*html.Node
	for _, o := range options {
		if _, ok := dom.LookupAttr(o, "selected"); ok {
			chosen = append(chosen, o)
		}
	}
	if len(chosen) == 0 && !multiple && len(options) > 0 {
		chosen = options[:1]
	}
	if !multiple && len(chosen) > 1 {
		chosen = chosen[len(chosen)-1:]
	}
	for _, o := range chosen {
		v, ok := dom.LookupAttr(o, "value")
		if !ok {
			v = dom.Text(o)
		}
		values.Add(name, v)
	}
}
