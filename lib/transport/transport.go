// Package transport performs the network calls behind queued requests.
//
// The contract is callback based: Do invokes exactly one of onSuccess or
// onFailure, possibly from another goroutine. Callers that keep state on a
// loop must post the callback back onto it.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Request describes one call.
type Request struct {
	URL       string
	Method    string
	Form      url.Values
	Multipart bool
	Timeout   time.Duration
	Header    http.Header
}

// Response is the raw result of a successful call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// StatusError reports a response whose status code is not a success.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ErrAborted is reported when the request context is cancelled.
var ErrAborted = errors.New("transport: request aborted")

// Transport performs requests.
type Transport interface {
	// Do starts req and calls exactly one of onSuccess or onFailure.
	Do(req Request, onSuccess func(*Response), onFailure func(error))
}

// Func adapts a function to Transport.
type Func func(req Request, onSuccess func(*Response), onFailure func(error))

// Do implements Transport.
func (f Func) Do(req Request, onSuccess func(*Response), onFailure func(error)) {
	f(req, onSuccess, onFailure)
}

// HTTP is a Transport backed by net/http. Relative URLs are resolved against
// Base. It also fetches contributed scripts and stylesheets.
type HTTP struct {
	client *http.Client
	base   *url.URL
	ctx    context.Context
	log    logr.Logger
}

// Option configures HTTP.
type Option func(*HTTP)

// WithClient sets the underlying http.Client.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) {
		h.client = c
	}
}

// WithBaseURL sets the URL relative request URLs resolve against.
func WithBaseURL(u *url.URL) Option {
	return func(h *HTTP) {
		h.base = u
	}
}

// WithContext sets the parent context of every request.
func WithContext(ctx context.Context) Option {
	return func(h *HTTP) {
		h.ctx = ctx
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(h *HTTP) {
		h.log = log
	}
}

// NewHTTP creates an HTTP transport.
func NewHTTP(opts ...Option) *HTTP {
	h := &HTTP{
		client: http.DefaultClient,
		ctx:    context.Background(),
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithName("Transport")
	return h
}

// Do implements Transport. The call runs on its own goroutine.
func (h *HTTP) Do(req Request, onSuccess func(*Response), onFailure func(error)) {
	go func() {
		resp, err := h.RoundTrip(req)
		if err != nil {
			onFailure(err)
			return
		}
		onSuccess(resp)
	}()
}

// RoundTrip performs req synchronously.
func (h *HTTP) RoundTrip(req Request) (*Response, error) {
	ctx := h.ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := h.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	h.log.V(1).Info("Sending request", "method", httpReq.Method, "url", httpReq.URL.String())

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		return nil, fmt.Errorf("transport: %s %s: %w", httpReq.Method, httpReq.URL, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 399 {
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: body}
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}, nil
}

// Fetch retrieves a resource body, used for contributed scripts and
// stylesheets.
func (h *HTTP) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := h.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: fetch %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

func (h *HTTP) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	u, err := h.resolve(req.URL)
	if err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	var contentType string
	if method != http.MethodGet && req.Form != nil {
		if req.Multipart {
			body, contentType, err = encodeMultipart(req.Form)
			if err != nil {
				return nil, err
			}
		} else {
			body = strings.NewReader(req.Form.Encode())
			contentType = "application/x-www-form-urlencoded"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set(HeaderRequest, "true")
	return httpReq, nil
}

func (h *HTTP) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("transport: parse url %q: %w", raw, err)
	}
	if h.base != nil {
		u = h.base.ResolveReference(u)
	}
	return u.String(), nil
}

func encodeMultipart(form url.Values) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range form {
		for _, v := range vs {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("transport: multipart: %w", err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("transport: multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var _ Transport = (*HTTP)(nil)
