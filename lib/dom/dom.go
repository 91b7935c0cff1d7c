// Package dom is the element resolution layer: a thin set of helpers over
// golang.org/x/net/html trees plus a Document that resolves references and
// reports attachment.
package dom

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Ref refers to an element either by id or by node. The zero Ref refers to
// nothing (the page itself).
type Ref struct {
	ID   string
	Node *html.Node
}

// ID returns a Ref resolved by element id.
func ID(id string) Ref {
	return Ref{ID: id}
}

// NodeRef returns a Ref to a node.
func NodeRef(n *html.Node) Ref {
	return Ref{Node: n}
}

// IsZero reports whether the Ref refers to nothing.
func (r Ref) IsZero() bool {
	return r.ID == "" && r.Node == nil
}

func (r Ref) String() string {
	switch {
	case r.Node != nil:
		if id := Attr(r.Node, "id"); id != "" {
			return "#" + id
		}
		return "<" + r.Node.Data + ">"
	case r.ID != "":
		return "#" + r.ID
	default:
		return "page"
	}
}

// Resolver resolves references against a live document.
type Resolver interface {
	// Resolve returns the live node for ref, or nil.
	Resolve(ref Ref) *html.Node
	// IsAttached reports whether n is currently part of the document.
	IsAttached(n *html.Node) bool
}

// Document is a Resolver over a parsed html tree.
type Document struct {
	root *html.Node
}

// NewDocument wraps a document node.
func NewDocument(root *html.Node) *Document {
	return &Document{root: root}
}

// Parse parses a full html document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return NewDocument(root), nil
}

// ParseString parses a full html document from a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Resolve implements Resolver. Node refs resolve to themselves whether or not
// they are attached; id refs only resolve to attached elements.
func (d *Document) Resolve(ref Ref) *html.Node {
	if ref.Node != nil {
		return ref.Node
	}
	if ref.ID == "" {
		return nil
	}
	return ByID(d.root, ref.ID)
}

// IsAttached implements Resolver.
func (d *Document) IsAttached(n *html.Node) bool {
	if n == nil {
		return false
	}
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Head returns the document's head element, or nil.
func (d *Document) Head() *html.Node {
	return First(d.root, atom.Head)
}

// Body returns the document's body element, or nil.
func (d *Document) Body() *html.Node {
	return First(d.root, atom.Body)
}

// String renders the whole document.
func (d *Document) String() string {
	var sb strings.Builder
	_ = html.Render(&sb, d.root)
	return sb.String()
}

// ByID finds the first element under root whose id attribute equals id.
func ByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// First returns the first element under root (root included) with tag a.
func First(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if IsElement(n, a) {
			found = n
			return false
		}
		return true
	})
	return found
}

// ElementsByTag returns every element under root (root excluded) with tag a,
// in document order.
func ElementsByTag(root *html.Node, a atom.Atom) []*html.Node {
	var res []*html.Node
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, func(n *html.Node) bool {
			if IsElement(n, a) {
				res = append(res, n)
			}
			return true
		})
	}
	return res
}

// Walk visits n and its descendants depth first, in document order, until
// visit returns false.
func Walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !Walk(c, visit) {
			return false
		}
	}
	return true
}

// IsElement reports whether n is an element with tag a.
func IsElement(n *html.Node, a atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == a
}

// Attr returns the value of attribute key, or "".
func Attr(n *html.Node, key string) string {
	v, _ := LookupAttr(n, key)
	return v
}

// LookupAttr returns the value of attribute key and whether it is present.
func LookupAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets attribute key to val, replacing any existing value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Text concatenates the text of n's descendant text nodes. For script and
// style elements this is their raw source.
func Text(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, func(d *html.Node) bool {
			if d.Type == html.TextNode {
				sb.WriteString(d.Data)
			}
			return true
		})
	}
	return sb.String()
}

// Render renders n to a string.
func Render(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

// RenderChildren renders n's children to a string.
func RenderChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}

// Element creates a detached element node.
func Element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// InsertBefore inserts nodes before ref, detaching each from any previous
// parent first.
func InsertBefore(ref *html.Node, nodes []*html.Node) {
	parent := ref.Parent
	for _, n := range nodes {
		Detach(n)
		parent.InsertBefore(n, ref)
	}
}

// Children returns n's children as a slice, so they can be moved while
// iterating.
func Children(n *html.Node) []*html.Node {
	var res []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		res = append(res, c)
	}
	return res
}
