package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nanoclaw/internal/api"
)

const namespace = "nanoclaw"

// Collector keeps the process-wide execution counters and mirrors them into
// Prometheus metrics on a private registry. It implements events.Sink so it
// can be placed in a MultiSink next to other sinks.
type Collector struct {
	mu            sync.Mutex
	totalRequests int64
	totalErrors   int64
	cumulative    time.Duration
	components    map[string]api.ComponentCounters

	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	dispatches      *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	alertsTotal     *prometheus.CounterVec
}

// NewCollector creates a collector with its own Prometheus registry,
// including the Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		components: make(map[string]api.ComponentCounters),
		registry:   prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Orchestration requests by outcome.",
		}, []string{"outcome"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end latency of orchestration requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Per-component dispatches by outcome.",
		}, []string{"component", "outcome"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Latency of a single component dispatch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events published, by event type.",
		}, []string{"type"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts published, by alert type.",
		}, []string{"type"}),
	}

	c.registry.MustRegister(
		c.requests,
		c.requestLatency,
		c.dispatches,
		c.dispatchLatency,
		c.eventsTotal,
		c.alertsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordRequest counts one completed orchestration request. A request that
// did not fully succeed counts as one error.
func (c *Collector) RecordRequest(success bool, latency time.Duration) {
	c.mu.Lock()
	c.totalRequests++
	if !success {
		c.totalErrors++
	}
	c.cumulative += latency
	c.mu.Unlock()

	c.requests.WithLabelValues(outcome(success)).Inc()
	c.requestLatency.Observe(latency.Seconds())
}

// TrackExecution counts one dispatch to one component.
func (c *Collector) TrackExecution(componentID string, latency time.Duration, success bool) {
	c.mu.Lock()
	counters := c.components[componentID]
	if success {
		counters.Successes++
	} else {
		counters.Failures++
	}
	c.components[componentID] = counters
	c.mu.Unlock()

	c.dispatches.WithLabelValues(componentID, outcome(success)).Inc()
	c.dispatchLatency.WithLabelValues(componentID).Observe(latency.Seconds())
}

func (c *Collector) PublishEvent(componentID, eventType, description string) {
	c.eventsTotal.WithLabelValues(eventType).Inc()
}

func (c *Collector) PublishAlert(componentID, alertType, title, message string) {
	c.alertsTotal.WithLabelValues(alertType).Inc()
}

// Snapshot returns a copy of the counters.
func (c *Collector) Snapshot() api.ExecutionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	components := make(map[string]api.ComponentCounters, len(c.components))
	for id, counters := range c.components {
		components[id] = counters
	}
	return api.ExecutionMetrics{
		TotalRequests:     c.totalRequests,
		TotalErrors:       c.totalErrors,
		CumulativeLatency: c.cumulative,
		Components:        components,
	}
}

// RegisterGauge exposes fn as a gauge on the collector's registry.
func (c *Collector) RegisterGauge(name, help string, fn func() float64) error {
	return c.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Registry returns the Prometheus registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
