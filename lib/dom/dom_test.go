package dom

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html/atom"
)

const page = `<!DOCTYPE html><html><head><script src="/a.js"></script></head>
<body><div id="outer"><span id="inner">hi</span><p>one</p><p>two</p></div></body></html>`

func TestDocument_Resolve(t *testing.T) {
	doc, err := ParseString(page)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	tests := []struct {
		name   string
		ref    Ref
		wantID string
		isNil  bool
	}{
		{"by id", ID("inner"), "inner", false},
		{"missing id", ID("nope"), "", true},
		{"zero ref", Ref{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := doc.Resolve(tt.ref)
			if tt.isNil {
				if n != nil {
					t.Errorf("Resolve(%v) = %v, want nil", tt.ref, n)
				}
				return
			}
			if got := Attr(n, "id"); got != tt.wantID {
				t.Errorf("Resolve(%v) id = %q, want %q", tt.ref, got, tt.wantID)
			}
		})
	}
}

func TestDocument_IsAttached(t *testing.T) {
	doc, _ := ParseString(page)
	inner := doc.Resolve(ID("inner"))
	if !doc.IsAttached(inner) {
		t.Fatal("IsAttached(inner) = false, want true")
	}

	Detach(doc.Resolve(ID("outer")))
	if doc.IsAttached(inner) {
		t.Error("IsAttached(inner) after detaching ancestor = true, want false")
	}
	if got := doc.Resolve(NodeRef(inner)); got != inner {
		t.Error("node ref did not resolve to itself")
	}
	if doc.Resolve(ID("inner")) != nil {
		t.Error("detached element still resolvable by id")
	}
	if doc.IsAttached(nil) {
		t.Error("IsAttached(nil) = true")
	}
}

func TestElementsByTagAndText(t *testing.T) {
	doc, _ := ParseString(page)
	outer := doc.Resolve(ID("outer"))

	var texts []string
	for _, p := range ElementsByTag(outer, atom.P) {
		texts = append(texts, Text(p))
	}
	if diff := cmp.Diff([]string{"one", "two"}, texts); diff != "" {
		t.Errorf("texts mismatch (-want +got):\n%s", diff)
	}

	if scripts := ElementsByTag(doc.Head(), atom.Script); len(scripts) != 1 || Attr(scripts[0], "src") != "/a.js" {
		t.Errorf("head scripts = %v", scripts)
	}
}

func TestSetAttr(t *testing.T) {
	n := Element(atom.Div)
	SetAttr(n, "id", "a")
	SetAttr(n, "id", "b")
	if len(n.Attr) != 1 || Attr(n, "id") != "b" {
		t.Errorf("Attr = %v, want single id=b", n.Attr)
	}
	if _, ok := LookupAttr(n, "class"); ok {
		t.Error("LookupAttr(class) found a missing attribute")
	}
}

func TestRefString(t *testing.T) {
	if got := (Ref{}).String(); got != "page" {
		t.Errorf("zero Ref String() = %q", got)
	}
	if got := ID("x").String(); got != "#x" {
		t.Errorf("ID Ref String() = %q", got)
	}
	if got := NodeRef(Element(atom.Span)).String(); got != "<span>" {
		t.Errorf("node Ref String() = %q", got)
	}
}
