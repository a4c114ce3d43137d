// Package metrics exposes Prometheus instruments for the advisor. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"krishi/internal/types"
)

const namespace = "krishi"

// Collector implements the observer interfaces of the HTTP chassis, the
// sensor service, the voice router, the sync worker and the upstream clients.
type Collector struct {
	gatherer prometheus.Gatherer

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	deviceMessages  *prometheus.CounterVec
	readingSources  *prometheus.CounterVec
	intents         *prometheus.CounterVec
	intentScore     prometheus.Histogram
	syncedReadings  prometheus.Counter
	syncFailures    prometheus.Counter
	breakerState    *prometheus.GaugeVec
}

// New registers the instruments with reg. Passing nil uses the default
// registry.
func New(reg *prometheus.Registry) *Collector {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}

	c := &Collector{
		gatherer: gatherer,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		deviceMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_messages_total",
			Help:      "Device telemetry messages by outcome.",
		}, []string{"outcome"}),
		readingSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_readings_resolved_total",
			Help:      "Resolved sensor readings by source tier.",
		}, []string{"source"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_intents_total",
			Help:      "Classified voice queries by intent.",
		}, []string{"intent"}),
		intentScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voice_intent_confidence",
			Help:      "Confidence of classified voice queries.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		syncedReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_readings_archived_total",
			Help:      "Readings written to the archive.",
		}),
		syncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Failed archive sync attempts.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_state",
			Help:      "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open).",
		}, []string{"upstream"}),
	}

	registerer.MustRegister(
		c.requests,
		c.requestDuration,
		c.deviceMessages,
		c.readingSources,
		c.intents,
		c.intentScore,
		c.syncedReadings,
		c.syncFailures,
		c.breakerState,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// RecordRequest records one HTTP request.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(method, endpoint, status).Inc()
	c.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveDeviceMessage counts an ingested device message.
func (c *Collector) ObserveDeviceMessage(outcome string) {
	if c == nil {
		return
	}
	c.deviceMessages.WithLabelValues(outcome).Inc()
}

// ObserveReadingSource counts which tier served a sensor reading.
func (c *Collector) ObserveReadingSource(source types.ReadingSource) {
	if c == nil {
		return
	}
	c.readingSources.WithLabelValues(string(source)).Inc()
}

// ObserveIntent counts a classified voice query.
func (c *Collector) ObserveIntent(intent types.Intent, confidence float64) {
	if c == nil {
		return
	}
	c.intents.WithLabelValues(string(intent)).Inc()
	c.intentScore.Observe(confidence)
}

// ObserveSync records the result of one archive batch.
func (c *Collector) ObserveSync(archived int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.syncFailures.Inc()
		return
	}
	c.syncedReadings.Add(float64(archived))
}

// SetBreakerState publishes an upstream circuit breaker state.
func (c *Collector) SetBreakerState(upstream string, state float64) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(upstream).Set(state)
}
