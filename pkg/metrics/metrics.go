// Package metrics exposes matchbot's Prometheus instruments. A nil *Manager
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry
	runtime   bool

	ticks         *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	events        *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	feedRequests  *prometheus.CounterVec
	commands      *prometheus.CounterVec
	subscriptions prometheus.Gauge
	activeMatch   prometheus.Gauge
}

type Option func(*Manager)

func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

func WithHistogramBuckets(b []float64) Option {
	return func(m *Manager) {
		if len(b) > 0 {
			m.buckets = b
		}
	}
}

// WithRegistry registers on r instead of a fresh registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(m *Manager) { m.runtime = true }
}

func New(opts ...Option) *Manager {
	m := &Manager{
		namespace: "matchbot",
		buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		registry:  prometheus.NewRegistry(),
	}
	for _, o := range opts {
		o(m)
	}

	if m.runtime {
		m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	auto := promauto.With(m.registry)
	m.ticks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "tracker", Name: "ticks_total",
		Help: "Poll ticks by result (ok, feed_error, store_error).",
	}, []string{"result"})
	m.tickDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "tracker", Name: "tick_duration_seconds",
		Help: "Wall time of one poll tick including fanout.", Buckets: m.buckets,
	})
	m.events = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "tracker", Name: "events_total",
		Help: "Detected match events by kind.",
	}, []string{"kind"})
	m.deliveries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "dispatch", Name: "deliveries_total",
		Help: "Notification deliveries by result.",
	}, []string{"result"})
	m.feedRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "feed", Name: "requests_total",
		Help: "Feed lookups by endpoint and result (ok, cache, error, http_<code>).",
	}, []string{"endpoint", "result"})
	m.commands = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "commands", Name: "handled_total",
		Help: "Chat commands by name and result.",
	}, []string{"command", "result"})
	m.subscriptions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "registry", Name: "subscriptions",
		Help: "Current number of subscribed recipients.",
	})
	m.activeMatch = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "tracker", Name: "active_match",
		Help: "1 while the monitored match is in progress.",
	})
	return m
}

func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) Tick(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(result).Inc()
	m.tickDuration.Observe(took.Seconds())
}

func (m *Manager) Event(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Manager) Deliveries(sent, failed int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues("sent").Add(float64(sent))
	m.deliveries.WithLabelValues("failed").Add(float64(failed))
}

func (m *Manager) FeedRequest(endpoint, result string) {
	if m == nil {
		return
	}
	m.feedRequests.WithLabelValues(endpoint, result).Inc()
}

func (m *Manager) Command(name, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, result).Inc()
}

func (m *Manager) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}

func (m *Manager) SetActive(active bool) {
	if m == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	m.activeMatch.Set(v)
}
