package hxclient

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/events"
	"github.com/pthm/hxclient/lib/loop"
	"github.com/pthm/hxclient/lib/transport"
)

// URLArguments are opaque request parameters. Values are strings, numbers, or
// slices of those; anything else is ignored when the URL is built.
type URLArguments map[string]any

// Callbacks attached to an item. Settings callbacks of the same kind run
// first.
type (
	// Precondition vetoes dispatch by returning false.
	Precondition func(it *Item) bool
	// BeforeHandler runs right before dispatch.
	BeforeHandler func(it *Item)
	// SuccessHandler receives the response of a successful call.
	SuccessHandler func(it *Item, resp *transport.Response)
	// ErrorHandler receives the failure of a call.
	ErrorHandler func(it *Item, err error)
	// URLArgumentMethod contributes request parameters at dispatch time.
	URLArgumentMethod func(it *Item) URLArguments
)

// Config is the immutable description of one request. Zero timeouts, page id
// and token are filled from Settings when the item is built.
type Config struct {
	// Component is the element the request is about. Zero means page level.
	Component dom.Ref
	// FormID makes the request a form submission.
	FormID    string
	Multipart bool

	RequestTimeout    time.Duration
	ProcessingTimeout time.Duration

	PageID            string
	ListenerInterface string
	BehaviorIndex     *int

	// Token identifies related requests for throttling and removal.
	Token          string
	RemovePrevious bool
	// Throttle is the throttle window. Zero means no throttle: a 0ms window
	// would run every call at once anyway, so the item is queued directly
	// and ThrottlePostpone without a window is rejected.
	Throttle         time.Duration
	ThrottlePostpone bool

	Preconditions      []Precondition
	BeforeHandlers     []BeforeHandler
	SuccessHandlers    []SuccessHandler
	ErrorHandlers      []ErrorHandler
	URLArgumentMethods []URLArgumentMethod
	URLArguments       URLArguments
}

// Validate checks the throttle invariants and timeout ranges.
func (c Config) Validate() error {
	switch {
	case c.ThrottlePostpone && c.Throttle == 0:
		return errors.New("throttlePostpone set but no throttle specified")
	case c.Throttle < 0:
		return fmt.Errorf("negative throttle %s", c.Throttle)
	case c.Throttle > 0 && c.Token == "":
		return errors.New("throttle set but no token specified")
	case c.RequestTimeout < 0 || c.ProcessingTimeout < 0:
		return errors.New("negative timeout")
	}
	return nil
}

// State is a step of the item lifecycle.
type State int

const (
	StateCreated State = iota
	StateQueued
	StatePreconditionCheck
	StateSkipped
	StateDispatching
	StateInFlight
	StateSucceeded
	StateFailed
	StateTimedOut
)

var stateNames = [...]string{
	StateCreated:           "created",
	StateQueued:            "queued",
	StatePreconditionCheck: "precondition-check",
	StateSkipped:           "skipped",
	StateDispatching:       "dispatching",
	StateInFlight:          "in-flight",
	StateSucceeded:         "succeeded",
	StateFailed:            "failed",
	StateTimedOut:          "timed-out",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateSkipped, StateSucceeded, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// Env is what items need from their surroundings. Client builds it.
type Env struct {
	Loop      loop.Loop
	Settings  *Settings
	Resolver  dom.Resolver
	Transport transport.Transport
	Log       logr.Logger
}

// Item is one queued request and its lifecycle. Items are only touched on
// the loop.
type Item struct {
	id    string
	cfg   Config
	event events.Event
	env   Env
	log   logr.Logger

	state      State
	done       func()
	url        string
	response   *transport.Response
	err        error
	dispatched time.Time
}

// NewItem builds an item from cfg, resolving defaults against env.Settings.
func NewItem(env Env, cfg Config, ev events.Event) *Item {
	if env.Settings == nil {
		env.Settings = DefaultSettings()
	}
	id := uuid.NewString()
	return &Item{
		id:    id,
		cfg:   resolve(env.Settings, cfg),
		event: ev,
		env:   env,
		log:   env.Log.WithValues("item", id),
	}
}

func resolve(s *Settings, c Config) Config {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = s.RequestTimeout
	}
	if c.ProcessingTimeout == 0 {
		c.ProcessingTimeout = s.ProcessingTimeout
	}
	if c.PageID == "" {
		c.PageID = s.PageID
	}
	if c.Token == "" {
		c.Token = s.Token
	}
	c.RemovePrevious = c.RemovePrevious || s.RemovePrevious

	c.Preconditions = concat(s.Preconditions, c.Preconditions)
	c.BeforeHandlers = concat(s.BeforeHandlers, c.BeforeHandlers)
	c.SuccessHandlers = concat(s.SuccessHandlers, c.SuccessHandlers)
	c.ErrorHandlers = concat(s.ErrorHandlers, c.ErrorHandlers)
	c.URLArgumentMethods = concat(s.URLArgumentMethods, c.URLArgumentMethods)
	return c
}

func concat[T any](global, own []T) []T {
	res := make([]T, 0, len(global)+len(own))
	res = append(res, global...)
	return append(res, own...)
}

// ID returns the item's unique id.
func (it *Item) ID() string { return it.id }

// Config returns the resolved configuration.
func (it *Item) Config() Config { return it.cfg }

// Event returns the event that created the item.
func (it *Item) Event() events.Event { return it.event }

// State returns the current lifecycle state.
func (it *Item) State() State { return it.state }

// URL returns the request URL once the item has been dispatched.
func (it *Item) URL() string { return it.url }

// Response returns the response of a successful call.
func (it *Item) Response() *transport.Response { return it.response }

// Err returns the failure detail of a failed or timed out item.
func (it *Item) Err() error { return it.err }

// Component resolves the component element, or nil.
func (it *Item) Component() *html.Node {
	if it.cfg.Component.IsZero() || it.env.Resolver == nil {
		return nil
	}
	return it.env.Resolver.Resolve(it.cfg.Component)
}

// Form resolves the form element, or nil.
func (it *Item) Form() *html.Node {
	if it.cfg.FormID == "" || it.env.Resolver == nil {
		return nil
	}
	return it.env.Resolver.Resolve(dom.ID(it.cfg.FormID))
}

// String identifies the item in logs.
func (it *Item) String() string {
	return fmt.Sprintf("item %s (%s, %s)", it.id, it.cfg.Component, it.state)
}

// DefaultPrecondition rejects items whose component or form is no longer in
// the document.
func DefaultPrecondition(it *Item) bool {
	r := it.env.Resolver
	if r == nil {
		return true
	}
	if !it.cfg.Component.IsZero() {
		if n := r.Resolve(it.cfg.Component); n == nil || !r.IsAttached(n) {
			return false
		}
	}
	if it.cfg.FormID != "" {
		if n := r.Resolve(dom.ID(it.cfg.FormID)); n == nil || !r.IsAttached(n) {
			return false
		}
	}
	return true
}

// checkPreconditions runs the preconditions in order. The first rejection or
// panic skips the item.
func (it *Item) checkPreconditions() bool {
	it.state = StatePreconditionCheck
	for i, p := range it.cfg.Preconditions {
		ok := false
		if err := it.call("precondition", func() { ok = p(it) }); err != nil || !ok {
			it.state = StateSkipped
			it.err = newError(KindPrecondition, "precondition", it.id, err)
			it.log.V(1).Info("Precondition rejected the item", "index", i)
			return false
		}
	}
	return true
}

// dispatch runs the before handlers and hands the request to the transport.
// done is called once, on the loop, after the success or error handlers.
func (it *Item) dispatch(done func()) {
	it.state = StateDispatching
	it.done = done
	it.dispatched = it.env.Loop.Now()

	for _, h := range it.cfg.BeforeHandlers {
		_ = it.call("before handler", func() { h(it) })
	}

	it.url = it.buildURL()
	req := it.request()
	it.log.V(1).Info("Initiating request", "url", it.url, "method", req.Method)

	it.state = StateInFlight
	if it.env.Transport == nil {
		it.env.Loop.Post(func() { it.fail(errors.New("no transport configured")) })
		return
	}
	it.env.Transport.Do(req,
		func(resp *transport.Response) { it.env.Loop.Post(func() { it.succeed(resp) }) },
		func(err error) { it.env.Loop.Post(func() { it.fail(err) }) },
	)
}

func (it *Item) request() transport.Request {
	req := transport.Request{
		URL:     it.url,
		Method:  http.MethodGet,
		Timeout: it.cfg.RequestTimeout,
		Header:  transport.IdentityHeader(it.componentID(), it.event.Name, it.cfg.PageID),
	}
	if it.cfg.FormID != "" {
		req.Method = http.MethodPost
		req.Form = transport.SerializeForm(it.Form())
		req.Multipart = it.cfg.Multipart
	}
	return req
}

func (it *Item) succeed(resp *transport.Response) {
	if it.state != StateInFlight {
		it.log.V(1).Info("Ignoring late response", "state", it.state)
		return
	}
	it.state = StateSucceeded
	it.response = resp
	it.log.V(1).Info("Request successful")
	for _, h := range it.cfg.SuccessHandlers {
		_ = it.call("success handler", func() { h(it, resp) })
	}
	it.complete()
}

func (it *Item) fail(cause error) {
	if it.state != StateInFlight {
		it.log.V(1).Info("Ignoring late failure", "state", it.state)
		return
	}
	it.state = StateFailed
	it.err = newError(KindTransport, "dispatch", it.id, cause)
	it.log.V(1).Info("Request failed", "error", cause.Error())
	for _, h := range it.cfg.ErrorHandlers {
		_ = it.call("error handler", func() { h(it, it.err) })
	}
	it.complete()
}

// abandon is the failsafe path: no handlers run and late callbacks become
// no-ops.
func (it *Item) abandon() {
	if it.state != StateInFlight && it.state != StateDispatching {
		return
	}
	it.state = StateTimedOut
	it.err = newError(KindTimeout, "failsafe", it.id, nil)
	it.done = nil
}

func (it *Item) complete() {
	done := it.done
	it.done = nil
	if done != nil {
		done()
	}
}

// call runs fn, turning a panic into a logged handler error.
func (it *Item) call(what string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindHandler, what, it.id, fmt.Errorf("%v", r))
			it.log.Error(err, "Error in "+what)
		}
	}()
	fn()
	return nil
}

// buildURL merges, with increasing precedence, the static arguments, each
// argument method's result and the identity parameters. A later key
// replaces an earlier one.
func (it *Item) buildURL() string {
	params := url.Values{}
	merge(params, it.cfg.URLArguments)
	for _, m := range it.cfg.URLArgumentMethods {
		var args URLArguments
		_ = it.call("url argument method", func() { args = m(it) })
		merge(params, args)
	}
	merge(params, it.identityArguments())

	u := it.env.Settings.URLPrefix
	if len(params) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + params.Encode()
}

func (it *Item) identityArguments() URLArguments {
	p := it.env.Settings.Params
	args := URLArguments{}
	for k, v := range map[string]string{
		p.Component:         it.componentID(),
		p.Page:              it.cfg.PageID,
		p.Form:              it.cfg.FormID,
		p.ListenerInterface: it.cfg.ListenerInterface,
	} {
		if v != "" {
			args[k] = v
		}
	}
	if it.cfg.BehaviorIndex != nil {
		args[p.BehaviorIndex] = *it.cfg.BehaviorIndex
	}
	return args
}

func (it *Item) componentID() string {
	if id := it.cfg.Component.ID; id != "" {
		return id
	}
	if n := it.Component(); n != nil {
		return dom.Attr(n, "id")
	}
	return ""
}

func merge(dst url.Values, args URLArguments) {
	for k, v := range args {
		if k == "" {
			continue
		}
		if vals := paramValues(v); len(vals) > 0 {
			dst[k] = vals
		}
	}
}

// paramValues flattens a string, number or slice of those. Unsupported
// values yield nothing.
func paramValues(v any) []string {
	switch x := v.(type) {
	case []string:
		var res []string
		for _, s := range x {
			res = append(res, paramValues(s)...)
		}
		return res
	case []int:
		var res []string
		for _, n := range x {
			res = append(res, strconv.Itoa(n))
		}
		return res
	case []any:
		var res []string
		for _, e := range x {
			if _, nested := e.([]any); nested {
				continue
			}
			res = append(res, paramValues(e)...)
		}
		return res
	}
	if s, ok := scalar(v); ok {
		return []string{s}
	}
	return nil
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int8:
		return strconv.FormatInt(int64(x), 10), true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint8:
		return strconv.FormatUint(uint64(x), 10), true
	case uint16:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}
	return "", false
}
