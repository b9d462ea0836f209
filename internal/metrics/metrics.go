// Package metrics exposes Prometheus instruments for calendar fetching,
// caching, expansion and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every instrument. A nil *Metrics is valid and records
// nothing, so packages can be used without a registry.
type Metrics struct {
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	sourceEvents  *prometheus.GaugeVec
	truncations   *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blairboard_calendar_fetch_total",
			Help: "Upstream calendar downloads by source and result",
		}, []string{"source", "result"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blairboard_calendar_fetch_seconds",
			Help:    "Latency of upstream calendar downloads",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blairboard_calendar_cache_lookups_total",
			Help: "Raw payload cache lookups by result (hit or miss)",
		}, []string{"result"}),
		sourceEvents: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "blairboard_calendar_events",
			Help: "Events produced by the last expansion of each source",
		}, []string{"source"}),
		truncations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blairboard_recurrence_truncated_total",
			Help: "Recurring series cut short by the occurrence cap",
		}, []string{"source"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blairboard_http_requests_total",
			Help: "HTTP API requests by path and status code",
		}, []string{"path", "code"}),
	}
}

// ObserveFetch records one upstream download.
func (m *Metrics) ObserveFetch(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(source, result).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// CacheLookup records a raw payload cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// SourceEvents records how many events a source produced.
func (m *Metrics) SourceEvents(source string, n int) {
	if m == nil {
		return
	}
	m.sourceEvents.WithLabelValues(source).Set(float64(n))
}

// Truncated records series cut short by the occurrence cap.
func (m *Metrics) Truncated(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.truncations.WithLabelValues(source).Add(float64(n))
}

// Request records one served HTTP request.
func (m *Metrics) Request(path string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, strconv.Itoa(code)).Inc()
}
