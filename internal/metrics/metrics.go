// Package metrics exposes cinelex counters and histograms on a private
// Prometheus registry. A single Metrics value implements the observer
// interfaces of the limiter, syncer, acquirer, processing driver, search
// engine and job pool.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cinelex"

// Metrics holds every registered collector.
type Metrics struct {
	registry *prometheus.Registry

	limiterWait    *prometheus.HistogramVec
	rateLimited    *prometheus.CounterVec
	ingested       *prometheus.CounterVec
	acquired       *prometheus.CounterVec
	claimBatches   prometheus.Counter
	claimedItems   prometheus.Counter
	processedItems *prometheus.CounterVec
	searchLatency  *prometheus.HistogramVec
	searchHits     *prometheus.HistogramVec
	jobs           *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.limiterWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ratelimit_wait_seconds",
		Help:      "Time spent waiting for a rate limiter slot.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"limiter"})
	m.rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_throttled_total",
		Help:      "HTTP 429 responses observed per limiter.",
	}, []string{"limiter"})
	m.ingested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_records_total",
		Help:      "Ingested catalog records by outcome.",
	}, []string{"outcome"})
	m.acquired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subtitles_acquired_total",
		Help:      "Subtitle acquisition attempts by outcome.",
	}, []string{"outcome"})
	m.claimBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "processing_claim_batches_total",
		Help:      "Non-empty claim batches taken from the work queue.",
	})
	m.claimedItems = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "processing_claimed_items_total",
		Help:      "Subtitles claimed for processing.",
	})
	m.processedItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "processing_items_total",
		Help:      "Claimed subtitles finalized, by outcome.",
	}, []string{"outcome"})
	m.searchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_duration_seconds",
		Help:      "Search latency by strategy.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"strategy"})
	m.searchHits = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_hits",
		Help:      "Hits returned per search.",
		Buckets:   []float64{0, 1, 2, 5, 10},
	}, []string{"strategy"})
	m.jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_transitions_total",
		Help:      "Background job state transitions.",
	}, []string{"job", "state"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.limiterWait,
		m.rateLimited,
		m.ingested,
		m.acquired,
		m.claimBatches,
		m.claimedItems,
		m.processedItems,
		m.searchLatency,
		m.searchHits,
		m.jobs,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveWait(limiter string, wait time.Duration) {
	m.limiterWait.WithLabelValues(limiter).Observe(wait.Seconds())
}

func (m *Metrics) ObserveRateLimited(limiter string) {
	m.rateLimited.WithLabelValues(limiter).Inc()
}

func (m *Metrics) ObserveIngested(outcome string) {
	m.ingested.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAcquired(outcome string) {
	m.acquired.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveClaimed(items int) {
	if items <= 0 {
		return
	}
	m.claimBatches.Inc()
	m.claimedItems.Add(float64(items))
}

func (m *Metrics) ObserveItem(outcome string) {
	m.processedItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSearch(strategy string, hits int, elapsed time.Duration) {
	m.searchLatency.WithLabelValues(strategy).Observe(elapsed.Seconds())
	m.searchHits.WithLabelValues(strategy).Observe(float64(hits))
}

func (m *Metrics) ObserveJob(name string, state string) {
	m.jobs.WithLabelValues(name, state).Inc()
}

