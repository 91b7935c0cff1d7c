package hxclient

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/events"
	"github.com/pthm/hxclient/lib/transport"
)

func TestNewTestClient(t *testing.T) {
	tc, err := NewTestClient(`<div id="x">old</div>`)
	if err != nil {
		t.Fatalf("NewTestClient() error = %v", err)
	}
	if !tc.Manual.Now().Equal(TestEpoch) {
		t.Errorf("Now() = %v, want %v", tc.Manual.Now(), TestEpoch)
	}
	if tc.Loop() != tc.Manual {
		t.Error("client does not run on the manual loop")
	}
	if got := dom.ByID(tc.Document().Root(), "x"); got == nil {
		t.Errorf("HTML() = %s, want the parsed page", tc.HTML())
	}
}

func TestRecordingTransport(t *testing.T) {
	tr := NewRecordingTransport()
	if tr.Last() != nil {
		t.Fatal("Last() != nil on a new transport")
	}

	var got []string
	tr.Do(transport.Request{URL: "/a"},
		func(r *transport.Response) { got = append(got, "ok "+r.Text()) },
		func(err error) { got = append(got, "fail "+err.Error()) },
	)
	tr.Do(transport.Request{URL: "/b"},
		func(r *transport.Response) { got = append(got, "ok "+r.Text()) },
		func(err error) { got = append(got, "fail "+err.Error()) },
	)

	calls := tr.Calls()
	calls[0].Succeed("one")
	calls[0].Fail(errors.New("ignored"))
	calls[1].Fail(errors.New("two"))

	if diff := cmp.Diff([]string{"ok one", "fail two"}, got); diff != "" {
		t.Errorf("callbacks (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/a", "/b"}, tr.URLs()); diff != "" {
		t.Errorf("URLs (-want +got):\n%s", diff)
	}
	if !calls[0].Completed() || !calls[1].Completed() {
		t.Error("calls not marked completed")
	}
}

func TestRecordingTransport_RespondWith(t *testing.T) {
	tc := newQueueClient(t)
	tc.Transport.RespondWith(func(req transport.Request) (*transport.Response, error) {
		if req.Header.Get(transport.HeaderTarget) == "b" {
			return nil, &transport.StatusError{StatusCode: http.StatusInternalServerError}
		}
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte("ok")}, nil
	})

	var outcomes []string
	for _, id := range []string{"a", "b", "c"} {
		tc.Submit(Config{
			Component:       dom.ID(id),
			SuccessHandlers: []SuccessHandler{func(it *Item, _ *transport.Response) { outcomes = append(outcomes, it.Config().Component.ID+" ok") }},
			ErrorHandlers:   []ErrorHandler{func(it *Item, _ error) { outcomes = append(outcomes, it.Config().Component.ID+" failed") }},
		}, click())
	}
	tc.Run()

	want := []string{"a ok", "b failed", "c ok"}
	if diff := cmp.Diff(want, outcomes); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
}

func TestClient_FireUnknownTarget(t *testing.T) {
	tc := newQueueClient(t)
	tc.Fire(dom.ID("nowhere"), "click", nil)
	tc.Run()
	if n := len(tc.Transport.Calls()); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

func TestClient_ReclaimsDetachedBindings(t *testing.T) {
	tc := newQueueClient(t)
	if _, err := tc.Bind("click", Attributes{"c": "a"}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	a := dom.ByID(tc.Document().Root(), "a")
	tc.Start()
	tc.Run()

	tc.Advance(events.DefaultInterval)
	if tc.Bus().Bound(a) != 1 {
		t.Fatal("attached element lost its bindings")
	}

	dom.Detach(a)
	tc.Advance(events.DefaultInterval)
	if got := tc.Bus().Bound(a); got != 0 {
		t.Errorf("Bound() = %d after detach, want 0", got)
	}

	tc.Stop()
	tc.Run()
	if got := tc.Manual.Timers(); got != 0 {
		t.Errorf("Timers() = %d after Stop, want 0", got)
	}
}

func TestClient_EnvAndAccessors(t *testing.T) {
	s := plainSettings()
	tc := newQueueClient(t, WithSettings(s))
	if tc.Settings() != s {
		t.Error("Settings() is not the configured settings")
	}
	env := tc.Env()
	if env.Settings != s || env.Transport != tc.Transport || env.Loop != tc.Manual {
		t.Errorf("Env() = %+v", env)
	}
	if tc.Registry() == nil || tc.Replacer() == nil || tc.Queue() == nil {
		t.Error("client parts not assembled")
	}
	it := tc.NewItem(Config{Component: dom.ID("a")}, click())
	if it.Component() != dom.ByID(tc.Document().Root(), "a") {
		t.Error("item does not resolve against the client's document")
	}
}
