package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the rating service. All Record methods
// are safe to call on a nil *Metrics.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	EngineCallsTotal   *prometheus.CounterVec
	EngineCallDuration *prometheus.HistogramVec

	RatingLookupsTotal    *prometheus.CounterVec
	ResolveCoalescedTotal prometheus.Counter
	ForceSearchAttempts   *prometheus.HistogramVec

	QuotaDecisionsTotal      *prometheus.CounterVec
	ConfigurationRowsWritten prometheus.Counter

	ServiceInfo *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// New registers the service metrics on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry, namespace, subsystem string) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),

		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being served",
			},
		),

		EngineCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "engine_calls_total",
				Help:      "Calls to the calculation engine by outcome",
			},
			[]string{"outcome"},
		),

		EngineCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "engine_call_duration_seconds",
				Help:      "Duration of calculation engine calls",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 4, 6, 8, 10, 15},
			},
			[]string{"outcome"},
		),

		RatingLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rating_lookups_total",
				Help:      "Rating lookups by source and result",
			},
			[]string{"source", "result"},
		),

		ResolveCoalescedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "resolve_coalesced_total",
				Help:      "Resolve calls that shared an in-flight engine call",
			},
		),

		ForceSearchAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "force_search_attempts",
				Help:      "Engine calls per force search",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 64},
			},
			[]string{"result"},
		),

		QuotaDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "quota_decisions_total",
				Help:      "Quota gate decisions",
			},
			[]string{"decision"},
		),

		ConfigurationRowsWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "configuration_rows_written_total",
				Help:      "Rows written by configuration set replacements",
			},
		),

		ServiceInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),

		gatherer: reg,
	}

	reg.MustRegister(NewRuntimeCollector(namespace, subsystem))

	return m
}

// Init builds the process-wide metrics once.
func Init(namespace, subsystem string) *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.NewRegistry(), namespace, subsystem)
	})
	return defaultMetrics
}

// Get returns the process-wide metrics, initializing them with defaults.
func Get() *Metrics {
	return Init("busbar", "")
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordEngineCall records one call to the calculation engine.
func (m *Metrics) RecordEngineCall(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.EngineCallsTotal.WithLabelValues(outcome).Inc()
	m.EngineCallDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordRatingLookup records a lookup against the cache or the store.
func (m *Metrics) RecordRatingLookup(source, result string) {
	if m == nil {
		return
	}
	m.RatingLookupsTotal.WithLabelValues(source, result).Inc()
}

// RecordCoalesced records a resolve that joined an in-flight engine call.
func (m *Metrics) RecordCoalesced() {
	if m == nil {
		return
	}
	m.ResolveCoalescedTotal.Inc()
}

// RecordForceSearch records a finished force search.
func (m *Metrics) RecordForceSearch(result string, attempts int) {
	if m == nil {
		return
	}
	m.ForceSearchAttempts.WithLabelValues(result).Observe(float64(attempts))
}

// RecordQuotaDecision records a quota gate decision.
func (m *Metrics) RecordQuotaDecision(decision string) {
	if m == nil {
		return
	}
	m.QuotaDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordConfigurationRows records rows written by a configuration set replacement.
func (m *Metrics) RecordConfigurationRows(n int) {
	if m == nil {
		return
	}
	m.ConfigurationRowsWritten.Add(float64(n))
}

// SetServiceInfo publishes version and environment.
func (m *Metrics) SetServiceInfo(version, environment string) {
	if m == nil {
		return
	}
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler serves the registry these metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
