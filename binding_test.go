package hxclient

import (
	"fmt"
	"html"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/events"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(testKey)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return codec
}

// renderButton renders a button the way a templ template spreading attrs
// would.
func renderButton(id, label string, attrs map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<button id="%s"`, id)
	for _, k := range []string{AttrOn, AttrAjax, AttrSwap} {
		if v, ok := attrs[k]; ok {
			fmt.Fprintf(&b, ` %s="%s"`, k, html.EscapeString(fmt.Sprint(v)))
		}
	}
	fmt.Fprintf(&b, `>%s</button>`, label)
	return b.String()
}

func TestBindAttrs(t *testing.T) {
	codec := newTestCodec(t)
	attrs, err := BindAttrs(codec, Binding{
		Event: "click",
		Attrs: Attributes{"c": "row", "u": map[string]any{"action": "delete"}},
	})
	if err != nil {
		t.Fatalf("BindAttrs() error = %v", err)
	}
	if attrs[AttrOn] != "click" {
		t.Errorf("%s = %v, want click", AttrOn, attrs[AttrOn])
	}
	sealed, _ := attrs[AttrAjax].(string)
	if !strings.HasPrefix(sealed, "s.") {
		t.Errorf("%s = %q, want a signed value", AttrAjax, sealed)
	}
	if _, ok := attrs[AttrSwap]; ok {
		t.Errorf("%s set for the default mode", AttrSwap)
	}

	opened, err := codec.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	want := map[string]any{"c": "row", "u": map[string]any{"action": "delete"}}
	if diff := cmp.Diff(want, opened); diff != "" {
		t.Errorf("opened (-want +got):\n%s", diff)
	}
}

func TestBindAttrs_SensitiveAndSwap(t *testing.T) {
	attrs, err := BindAttrs(newTestCodec(t), Binding{
		Event:     "change",
		Attrs:     Attributes{"tk": "secret"},
		Swap:      SwapInner,
		Sensitive: true,
	})
	if err != nil {
		t.Fatalf("BindAttrs() error = %v", err)
	}
	if sealed, _ := attrs[AttrAjax].(string); !strings.HasPrefix(sealed, "e.") || strings.Contains(sealed, "secret") {
		t.Errorf("%s = %q, want an encrypted value", AttrAjax, sealed)
	}
	if attrs[AttrSwap] != "innerHTML" {
		t.Errorf("%s = %v, want innerHTML", AttrSwap, attrs[AttrSwap])
	}
}

func TestBindAttrs_Errors(t *testing.T) {
	codec := newTestCodec(t)
	tests := []struct {
		name string
		b    Binding
	}{
		{name: "no event", b: Binding{Event: " "}},
		{name: "unknown attribute", b: Binding{Event: "click", Attrs: Attributes{"nope": 1}}},
		{name: "callback", b: Binding{Event: "click", Attrs: Attributes{"be": func(*Item) {}}}},
		{name: "node ref", b: Binding{Event: "click", Attrs: Attributes{"c": dom.ID("row")}}},
		{name: "pointer argument", b: Binding{Event: "click", Attrs: Attributes{"u": map[string]any{"p": new(int)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BindAttrs(codec, tt.b); !IsConfiguration(err) {
				t.Errorf("BindAttrs() error = %v, want a configuration error", err)
			}
		})
	}
}

func TestBindDocument(t *testing.T) {
	codec := newTestCodec(t)
	attrs, err := BindAttrs(codec, Binding{
		Event: "click",
		Attrs: Attributes{"u": map[string]any{"action": "delete"}},
	})
	if err != nil {
		t.Fatalf("BindAttrs() error = %v", err)
	}
	page := renderButton("row", "Delete", attrs)

	tc, err := NewTestClient(page, WithCodec(codec), WithSettings(plainSettings()))
	if err != nil {
		t.Fatalf("NewTestClient() error = %v", err)
	}
	n, err := tc.BindDocument()
	if err != nil {
		t.Fatalf("BindDocument() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("BindDocument() = %d, want 1", n)
	}

	tc.Fire(dom.ID("row"), "click", nil)
	tc.Run()
	want := []string{"/?action=delete&componentId=row&pageId=-1"}
	if diff := cmp.Diff(want, tc.Transport.URLs()); diff != "" {
		t.Fatalf("URLs (-want +got):\n%s", diff)
	}
	if got := tc.Transport.Last().Request.Header.Get("HX-Trigger"); got != "click" {
		t.Errorf("trigger header = %q, want click", got)
	}

	tc.Transport.Last().Succeed(`<button id="row">Deleted<script>var swapped = (typeof swapped === "undefined" ? 0 : swapped) + 1;</script></button>`)
	tc.Run()

	row := dom.ByID(tc.Document().Root(), "row")
	if row == nil || !strings.HasPrefix(dom.Text(row), "Deleted") {
		t.Errorf("body = %s, want the replaced row", tc.HTML())
	}
	if got := tc.VM.Get("swapped"); got != int64(1) {
		t.Errorf("swapped = %v, want 1", got)
	}
}

func TestBindDocument_MultipleEventsAndSwap(t *testing.T) {
	codec := newTestCodec(t)
	attrs, err := BindAttrs(codec, Binding{Event: "focus blur", Swap: SwapNone})
	if err != nil {
		t.Fatalf("BindAttrs() error = %v", err)
	}
	tc, err := NewTestClient(renderButton("b", "x", attrs), WithCodec(codec), WithSettings(plainSettings()))
	if err != nil {
		t.Fatalf("NewTestClient() error = %v", err)
	}
	n, err := tc.BindDocument()
	if err != nil || n != 2 {
		t.Fatalf("BindDocument() = %d, %v, want 2 bindings", n, err)
	}

	tc.Fire(dom.ID("b"), "blur", nil)
	tc.Run()
	tc.Transport.Last().Succeed(`<p>ignored</p>`)
	tc.Run()
	if dom.ByID(tc.Document().Root(), "b") == nil {
		t.Errorf("swap none replaced the element: %s", tc.HTML())
	}
}

func TestBindDocument_Errors(t *testing.T) {
	codec := newTestCodec(t)
	attrs, err := BindAttrs(codec, Binding{Event: "click", Attrs: Attributes{"tk": "x"}})
	if err != nil {
		t.Fatalf("BindAttrs() error = %v", err)
	}

	t.Run("no codec", func(t *testing.T) {
		tc, err := NewTestClient(renderButton("b", "x", attrs))
		if err != nil {
			t.Fatalf("NewTestClient() error = %v", err)
		}
		n, err := tc.BindDocument()
		if n != 0 || !IsConfiguration(err) {
			t.Errorf("BindDocument() = %d, %v, want 0 and a configuration error", n, err)
		}
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := map[string]any{AttrOn: "click", AttrAjax: attrs[AttrAjax].(string) + "x"}
		page := renderButton("b", "x", tampered) + renderButton("ok", "y", attrs)
		tc, err := NewTestClient(page, WithCodec(codec))
		if err != nil {
			t.Fatalf("NewTestClient() error = %v", err)
		}
		n, err := tc.BindDocument()
		if n != 1 {
			t.Errorf("BindDocument() = %d, want the untampered binding only", n)
		}
		if !IsSealError(err) {
			t.Errorf("BindDocument() error = %v, want a seal error", err)
		}
	})
}

func TestClient_Bind(t *testing.T) {
	tc := newQueueClient(t)
	unbind, err := tc.Bind("click", Attributes{"c": "a", "u": map[string]any{"n": 1}})
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	tc.Fire(dom.ID("a"), "click", map[string]any{"x": 1})
	tc.Fire(dom.ID("b"), "click", nil)
	tc.Run()
	if got := len(tc.Transport.Calls()); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	tc.Transport.Last().Succeed("")
	tc.Run()

	unbind()
	tc.Fire(dom.ID("a"), "click", nil)
	tc.Run()
	if got := len(tc.Transport.Calls()); got != 1 {
		t.Errorf("calls = %d after unbind, want 1", got)
	}

	if _, err := tc.Bind("click", Attributes{"c": "missing"}); !IsConfiguration(err) {
		t.Errorf("Bind() on a missing component error = %v, want a configuration error", err)
	}
	if _, err := tc.Bind("click", Attributes{"zzz": 1}); !IsConfiguration(err) {
		t.Errorf("Bind() with bad attributes error = %v, want a configuration error", err)
	}
}

func TestClient_BindPageLevel(t *testing.T) {
	tc := newQueueClient(t)
	var got events.Event
	if _, err := tc.Bind("load", Attributes{"be": func(it *Item) { got = it.Event() }}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	tc.Fire(dom.Ref{}, "load", map[string]any{"source": "test"})
	tc.Run()

	if got.Name != "load" || got.Detail["source"] != "test" {
		t.Errorf("event = %+v", got)
	}
	if url := tc.Transport.Last().Request.URL; url != "/?pageId=-1" {
		t.Errorf("URL = %q, want /?pageId=-1", url)
	}
}
