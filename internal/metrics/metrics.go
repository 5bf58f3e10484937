// Package metrics exposes pipeline activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ga4dash"

// Metrics holds the collectors. It satisfies the observer interfaces of the
// quota governor, retry executor, cache store and pipeline.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups  *prometheus.CounterVec
	retries       *prometheus.CounterVec
	quotaWaits    *prometheus.CounterVec
	steps         *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	fetches       *prometheus.CounterVec
	quotaRequests prometheus.Gauge
	quotaTokens   prometheus.Gauge
}

// New registers every collector on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Series cache lookups by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Retries of upstream calls by error class.",
		}, []string{"reason"}),
		quotaWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_waits_total",
			Help:      "Times a sub-request waited for quota capacity.",
		}, []string{"reason"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_steps_total",
			Help:      "Completed plan steps by outcome.",
		}, []string{"outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_step_duration_seconds",
			Help:      "Wall time of a plan step including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Logical fetches by outcome.",
		}, []string{"outcome"}),
		quotaRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_daily_requests",
			Help:      "Requests charged against today's quota.",
		}),
		quotaTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_daily_tokens",
			Help:      "Estimated tokens charged against today's quota.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cacheLookups,
		m.retries,
		m.quotaWaits,
		m.steps,
		m.stepDuration,
		m.fetches,
		m.quotaRequests,
		m.quotaTokens,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CacheHit counts a fresh cache lookup.
func (m *Metrics) CacheHit() { m.cacheLookups.WithLabelValues("hit").Inc() }

// CacheMiss counts a missing or stale lookup.
func (m *Metrics) CacheMiss() { m.cacheLookups.WithLabelValues("miss").Inc() }

// Retry counts a retry of an upstream call.
func (m *Metrics) Retry(_ int, err error) {
	m.retries.WithLabelValues(errorReason(err)).Inc()
}

// QuotaWait counts a wait for quota capacity.
func (m *Metrics) QuotaWait(reason string) {
	m.quotaWaits.WithLabelValues(reason).Inc()
}

// StepDone records one plan step.
func (m *Metrics) StepDone(outcome string, d time.Duration) {
	m.steps.WithLabelValues(outcome).Inc()
	m.stepDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// FetchDone records one logical fetch.
func (m *Metrics) FetchDone(outcome string) {
	m.fetches.WithLabelValues(outcome).Inc()
}

// SetQuotaUsage publishes today's charged requests and tokens.
func (m *Metrics) SetQuotaUsage(requests, tokens int) {
	m.quotaRequests.Set(float64(requests))
	m.quotaTokens.Set(float64(tokens))
}
