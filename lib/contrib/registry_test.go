package contrib

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/loop"
	"github.com/pthm/hxclient/lib/script"
)

// recorder collects evaluated scripts.
type recorder struct {
	mu      sync.Mutex
	sources []string
}

func (r *recorder) Evaluate(src string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, src)
	return nil
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sources...)
}

// drain runs the manual loop until cond holds, giving fetch goroutines time to
// post their results.
func drain(t *testing.T, m *loop.Manual, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.RunUntilIdle()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func element(t *testing.T, markup string) *html.Node {
	t.Helper()
	nodes, err := html.ParseFragment(strings.NewReader(markup), dom.Element(atom.Body))
	if err != nil {
		t.Fatalf("ParseFragment() error = %v", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n
		}
	}
	t.Fatalf("no element in %q", markup)
	return nil
}

func TestRegistry_MarkAndCheck(t *testing.T) {
	r := New(loop.NewManual(time.Now()), nil)

	tests := []struct {
		name string
		id   string
		url  string
		want bool
	}{
		{"nothing marked yet", "a", "/a.js", false},
		{"empty identity", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.IsContributed(tt.id, tt.url); got != tt.want {
				t.Errorf("IsContributed(%q, %q) = %v, want %v", tt.id, tt.url, got, tt.want)
			}
		})
	}

	r.MarkContributed("a", "")
	r.MarkContributed("", "/b.js")
	r.MarkContributed("a", "")

	after := []struct {
		id   string
		url  string
		want bool
	}{
		{"a", "", true},
		{"", "/b.js", true},
		{"b", "/a.js", false},
		{"x", "/b.js", true},
		{"", "", false},
	}
	for _, tt := range after {
		if got := r.IsContributed(tt.id, tt.url); got != tt.want {
			t.Errorf("IsContributed(%q, %q) = %v, want %v", tt.id, tt.url, got, tt.want)
		}
	}
}

func TestRegistry_SeedsFromDocument(t *testing.T) {
	doc, err := dom.ParseString(`<html><head><script src="/seed.js"></script><link rel="stylesheet" href="/seed.css"></head><body></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	r := New(loop.NewManual(time.Now()), nil, WithDocument(doc))

	if !r.IsContributed("", "/seed.js") {
		t.Error("existing script src not seeded")
	}
	if !r.IsContributed("", "/seed.css") {
		t.Error("existing link href not seeded")
	}
}

func TestRegistry_RemoteScriptLoadedOnce(t *testing.T) {
	m := loop.NewManual(time.Now())
	rec := &recorder{}
	var fetches atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		fetches.Add(1)
		return []byte("loaded(" + url + ")"), nil
	})
	r := New(m, rec, WithFetcher(fetcher))

	var doneCount atomic.Int32
	done := func() { doneCount.Add(1) }

	r.ContributeElement(element(t, `<script src="/lib.js"></script>`), done)
	r.ContributeElement(element(t, `<script src="/lib.js"></script>`), done)

	drain(t, m, func() bool { return doneCount.Load() == 2 })

	if n := fetches.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	if diff := cmp.Diff([]string{"loaded(/lib.js)"}, rec.got()); diff != "" {
		t.Errorf("evaluated mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_FetchFailureStillCompletes(t *testing.T) {
	m := loop.NewManual(time.Now())
	rec := &recorder{}
	r := New(m, rec, WithFetcher(FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		return nil, errors.New("404")
	})))

	var done atomic.Int32
	r.ContributeElement(element(t, `<link rel="stylesheet" href="/missing.css">`), func() { done.Add(1) })
	drain(t, m, func() bool { return done.Load() == 1 })

	if !r.IsContributed("", "/missing.css") {
		t.Error("failed url not marked; it must stay marked")
	}
	if len(rec.got()) != 0 {
		t.Errorf("evaluated = %v, want none", rec.got())
	}
}

func TestRegistry_InlineStyleAndStylesheet(t *testing.T) {
	doc, _ := dom.ParseString(`<html><head></head><body></body></html>`)
	m := loop.NewManual(time.Now())
	r := New(m, nil, WithDocument(doc), WithFetcher(FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		return []byte(".remote{}"), nil
	})))

	var done atomic.Int32
	inc := func() { done.Add(1) }
	r.ContributeElement(element(t, `<style id="s1">.inline{}</style>`), inc)
	r.ContributeElement(element(t, `<style id="s1">.inline{}</style>`), inc)
	r.ContributeElement(element(t, `<link rel="stylesheet" href="/x.css">`), inc)
	drain(t, m, func() bool { return done.Load() == 3 })

	var css []string
	for _, s := range dom.ElementsByTag(doc.Head(), atom.Style) {
		css = append(css, dom.Text(s))
	}
	if diff := cmp.Diff([]string{".inline{}", ".remote{}"}, css); diff != "" {
		t.Errorf("head styles mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_UnknownElementCompletes(t *testing.T) {
	m := loop.NewManual(time.Now())
	r := New(m, nil)
	called := 0
	r.ContributeElement(element(t, `<meta name="x">`), func() { called++ })
	m.RunUntilIdle()
	if called != 1 {
		t.Errorf("done called %d times, want 1", called)
	}
}

func TestRegistry_ContributeAllSequential(t *testing.T) {
	m := loop.NewManual(time.Now())
	rec := &recorder{}
	r := New(m, rec, WithFetcher(FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		return []byte("remote" + url), nil
	})))

	els := []*html.Node{
		element(t, `<script>first</script>`),
		element(t, `<script src="/2"></script>`),
		element(t, `<script>third</script>`),
	}
	finished := atomic.Bool{}
	r.ContributeAll(els, func() { finished.Store(true) })
	drain(t, m, finished.Load)

	if diff := cmp.Diff([]string{"first", "remote/2", "third"}, rec.got()); diff != "" {
		t.Errorf("evaluation order mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_RunScriptsFilterAndOrder(t *testing.T) {
	m := loop.NewManual(time.Now())
	rec := &recorder{}
	r := New(m, rec)

	container := element(t, `<div><script id="one">A-MARK</script><p><script>B</script></p></div>`)
	done := 0
	r.RunScripts([]*html.Node{container}, func(s string) string { return strings.ReplaceAll(s, "-MARK", "") }, func() { done++ })

	if diff := cmp.Diff([]string{"A", "B"}, rec.got()); diff != "" {
		t.Errorf("evaluated mismatch (-want +got):\n%s", diff)
	}
	if !r.IsContributed("one", "") {
		t.Error("inline script id not marked")
	}
	if done != 1 {
		t.Errorf("done called %d times, want 1", done)
	}
}

func TestRegistry_RunScriptsWaitsForRemote(t *testing.T) {
	m := loop.NewManual(time.Now())
	rec := &recorder{}
	r := New(m, rec, WithFetcher(FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		return []byte("libLoaded()"), nil
	})))

	container := element(t, `<div><script src="/lib.js"></script><p></p><script>useLib()</script></div>`)
	var done atomic.Bool
	r.RunScripts([]*html.Node{container}, nil, func() { done.Store(true) })

	if got := rec.got(); len(got) != 0 {
		t.Fatalf("evaluated %v before the remote script loaded", got)
	}
	drain(t, m, done.Load)
	if diff := cmp.Diff([]string{"libLoaded()", "useLib()"}, rec.got()); diff != "" {
		t.Errorf("evaluation order mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_SeedBeforeInsert(t *testing.T) {
	doc, err := dom.ParseString(`<html><head><script src="/seed.js"></script></head><body></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	m := loop.NewManual(time.Now())
	var fetched []string
	var mu sync.Mutex
	r := New(m, &recorder{}, WithDocument(doc), WithFetcher(FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		fetched = append(fetched, url)
		return nil, nil
	})))
	r.Seed()

	added := element(t, `<script src="/added.js"></script>`)
	doc.Body().AppendChild(added)

	var done atomic.Bool
	r.ContributeElement(added, func() { done.Store(true) })
	drain(t, m, done.Load)

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"/added.js"}, fetched); diff != "" {
		t.Errorf("fetched mismatch (-want +got):\n%s", diff)
	}
	if !r.IsContributed("", "/seed.js") {
		t.Error("existing script src not seeded")
	}
}

var _ script.Evaluator = (*recorder)(nil)
