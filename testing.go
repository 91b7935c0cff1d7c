package hxclient

import (
	"net/http"
	"sync"
	"time"

	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/loop"
	"github.com/pthm/hxclient/lib/script"
	"github.com/pthm/hxclient/lib/transport"
)

// Call is one request seen by a RecordingTransport. Tests complete it with
// Succeed, Respond or Fail; completing twice has no effect.
type Call struct {
	Request transport.Request

	mu        sync.Mutex
	onSuccess func(*transport.Response)
	onFailure func(error)
	completed bool
}

// Succeed completes the call with a 200 response carrying body.
func (c *Call) Succeed(body string) {
	c.Respond(&transport.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(body)})
}

// Respond completes the call successfully with resp.
func (c *Call) Respond(resp *transport.Response) {
	if c.take() {
		c.onSuccess(resp)
	}
}

// Fail completes the call with err.
func (c *Call) Fail(err error) {
	if c.take() {
		c.onFailure(err)
	}
}

// Completed reports whether the call has been completed.
func (c *Call) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

func (c *Call) take() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completed {
		return false
	}
	c.completed = true
	return true
}

// RecordingTransport is a transport for tests. It records every request and
// leaves completion to the test, unless a responder is set.
//
//	tr := hxclient.NewRecordingTransport()
//	... dispatch ...
//	tr.Last().Succeed(`<div id="x">new</div>`)
type RecordingTransport struct {
	mu        sync.Mutex
	calls     []*Call
	responder func(transport.Request) (*transport.Response, error)
}

// NewRecordingTransport creates a RecordingTransport.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{}
}

// RespondWith completes every future call immediately with fn's result.
func (t *RecordingTransport) RespondWith(fn func(transport.Request) (*transport.Response, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = fn
}

// Do implements transport.Transport.
func (t *RecordingTransport) Do(req transport.Request, onSuccess func(*transport.Response), onFailure func(error)) {
	call := &Call{Request: req, onSuccess: onSuccess, onFailure: onFailure}
	t.mu.Lock()
	t.calls = append(t.calls, call)
	responder := t.responder
	t.mu.Unlock()

	if responder != nil {
		resp, err := responder(req)
		if err != nil {
			call.Fail(err)
			return
		}
		call.Respond(resp)
	}
}

// Calls returns every recorded call in dispatch order.
func (t *RecordingTransport) Calls() []*Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Call(nil), t.calls...)
}

// Last returns the most recent call, or nil.
func (t *RecordingTransport) Last() *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.calls) == 0 {
		return nil
	}
	return t.calls[len(t.calls)-1]
}

// URLs returns the URL of every recorded call.
func (t *RecordingTransport) URLs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	urls := make([]string, len(t.calls))
	for i, c := range t.calls {
		urls[i] = c.Request.URL
	}
	return urls
}

// TestClient is a Client on a manual loop with a RecordingTransport and a
// real script VM, for deterministic tests.
type TestClient struct {
	*Client
	Manual    *loop.Manual
	Transport *RecordingTransport
	VM        *script.VM
}

// TestEpoch is the virtual time a TestClient starts at.
var TestEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewTestClient parses page and assembles a TestClient over it. opts are
// applied after the test defaults.
//
//	tc, err := hxclient.NewTestClient(`<div id="x">old</div>`)
//	tc.Submit(hxclient.Config{Component: dom.ID("x")}, events.Event{Name: "click"})
//	tc.Run()
//	tc.Transport.Last().Succeed(`<div id="x">new</div>`)
//	tc.Run()
func NewTestClient(page string, opts ...Option) (*TestClient, error) {
	doc, err := dom.ParseString(page)
	if err != nil {
		return nil, err
	}
	tc := &TestClient{
		Manual:    loop.NewManual(TestEpoch),
		Transport: NewRecordingTransport(),
		VM:        script.NewVM(),
	}
	all := append([]Option{
		WithTransport(tc.Transport),
		WithEvaluator(tc.VM),
	}, opts...)
	tc.Client = New(tc.Manual, doc, all...)
	return tc, nil
}

// Run runs queued loop tasks until none are left.
func (tc *TestClient) Run() {
	tc.Manual.RunUntilIdle()
}

// Advance moves virtual time forward, firing due timers.
func (tc *TestClient) Advance(d time.Duration) {
	tc.Manual.Advance(d)
}

// HTML renders the current document.
func (tc *TestClient) HTML() string {
	return tc.Document().String()
}
