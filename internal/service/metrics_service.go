package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes recorded by ObserveReportCardGeneration.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MetricsService owns the Prometheus registry of the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
	generations     *prometheus.CounterVec
	generationTime  prometheus.Observer
	cohortSize      prometheus.Observer
	exportJobs      *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
	requestCount   uint64
	generatedCards uint64
}

// MetricsSnapshot is the in-process summary served by the health endpoint.
type MetricsSnapshot struct {
	Requests       uint64    `json:"requests"`
	CacheHits      uint64    `json:"cache_hits"`
	CacheMisses    uint64    `json:"cache_misses"`
	CacheHitRatio  float64   `json:"cache_hit_ratio"`
	GeneratedCards uint64    `json:"generated_report_cards"`
	Goroutines     int       `json:"goroutines"`
	GeneratedAt    time.Time `json:"generated_at"`
}

func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency of cache lookups",
		Buckets: prometheus.DefBuckets,
	})
	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency of cache writes",
		Buckets: prometheus.DefBuckets,
	})
	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	generations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_card_generations_total",
		Help: "Class report card generations by outcome",
	}, []string{"outcome"})
	generationTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "report_card_generation_seconds",
		Help:    "Duration of class report card generation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	cohortSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "report_card_cohort_size",
		Help:    "Number of report cards written per generation",
		Buckets: []float64{5, 10, 20, 30, 40, 60, 80, 120},
	})
	exportJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_card_exports_total",
		Help: "Asynchronous class exports by format and final status",
	}, []string{"format", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheLookups,
		generations, generationTime, cohortSize, exportJobs, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheLookups:    cacheLookups,
		generations:     generations,
		generationTime:  generationTime,
		cohortSize:      cohortSize,
		exportJobs:      exportJobs,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Gatherer exposes the registry, mainly for tests.
func (m *MetricsService) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records a cache lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	m.cacheHitRatio.Set(float64(hits) / float64(total))
}

func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveReportCardGeneration records one class generation. cards is ignored on failure.
func (m *MetricsService) ObserveReportCardGeneration(outcome string, cards int, duration time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
	m.generationTime.Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		m.cohortSize.Observe(float64(cards))
		atomic.AddUint64(&m.generatedCards, uint64(cards))
	}
}

func (m *MetricsService) RecordExportJob(format, status string) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(format, status).Inc()
}

func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{GeneratedAt: time.Now().UTC()}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	return MetricsSnapshot{
		Requests:       atomic.LoadUint64(&m.requestCount),
		CacheHits:      hits,
		CacheMisses:    misses,
		CacheHitRatio:  ratio,
		GeneratedCards: atomic.LoadUint64(&m.generatedCards),
		Goroutines:     runtime.NumGoroutine(),
		GeneratedAt:    time.Now().UTC(),
	}
}
