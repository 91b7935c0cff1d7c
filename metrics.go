package hxclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for queue monitoring. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	throttled  prometheus.Counter
	dropped    prometheus.Counter
	skipped    prometheus.Counter
	dispatched prometheus.Counter
	completed  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the queue metrics and registers them with reg. Every
// name starts with prefix.
func NewMetrics(reg prometheus.Registerer, prefix string) (*Metrics, error) {
	m := &Metrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Items waiting in the request queue",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_submitted_total",
			Help: "Items submitted to the request queue",
		}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_throttled_total",
			Help: "Items handed to the throttler",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_dropped_total",
			Help: "Items dropped for invalid configuration",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_skipped_total",
			Help: "Items skipped by a precondition",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_dispatched_total",
			Help: "Items dispatched to the transport",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_completed_total",
			Help: "Dispatched items by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_request_duration_seconds",
			Help:    "Time from dispatch to completion",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.queueDepth, m.submitted, m.throttled, m.dropped,
		m.skipped, m.dispatched, m.completed, m.duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) depth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

type queueEvent int

const (
	eventSubmitted queueEvent = iota
	eventThrottled
	eventDropped
	eventSkipped
	eventDispatched
)

func (m *Metrics) record(ev queueEvent) {
	if m == nil {
		return
	}
	switch ev {
	case eventSubmitted:
		m.submitted.Inc()
	case eventThrottled:
		m.throttled.Inc()
	case eventDropped:
		m.dropped.Inc()
	case eventSkipped:
		m.skipped.Inc()
	case eventDispatched:
		m.dispatched.Inc()
	}
}

func (m *Metrics) complete(outcome State, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(outcome.String()).Inc()
	m.duration.WithLabelValues(outcome.String()).Observe(elapsed.Seconds())
}
