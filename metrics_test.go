package hxclient

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pthm/hxclient/lib/dom"
)

func TestMetrics_QueueActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "hxclient")
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	tc := newQueueClient(t, WithClientMetrics(m))

	tc.Submit(Config{Component: dom.ID("a")}, click())
	tc.Submit(Config{Component: dom.ID("missing")}, click())
	tc.Submit(Config{Component: dom.ID("b")}, click())
	tc.Submit(Config{ThrottlePostpone: true}, click())
	tc.Run()
	if got := testutil.ToFloat64(m.queueDepth); got != 2 {
		t.Errorf("queue depth = %v, want 2", got)
	}

	tc.Transport.Last().Succeed("")
	tc.Run()
	tc.Transport.Last().Fail(errors.New("down"))
	tc.Run()

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"submitted", m.submitted, 4},
		{"dropped", m.dropped, 1},
		{"skipped", m.skipped, 1},
		{"dispatched", m.dispatched, 2},
		{"succeeded", m.completed.WithLabelValues("succeeded"), 1},
		{"failed", m.completed.WithLabelValues("failed"), 1},
		{"depth", m.queueDepth, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg, "dup"); err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	if _, err := NewMetrics(reg, "dup"); err == nil {
		t.Error("second NewMetrics() with the same prefix succeeded")
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.depth(3)
	m.record(eventSubmitted)
	m.complete(StateSucceeded, 0)
}
