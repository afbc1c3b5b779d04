package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer, the cache and the scheduling engine.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	conflictsDetected  *prometheus.CounterVec
	waitlistPromotions prometheus.Counter
	generationDuration *prometheus.HistogramVec
	healthScore        *prometheus.GaugeVec
}

// NewMetricsService registers collectors on a dedicated registry.
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
		Name:    "scheduler_heatmap_cache_lookup_seconds",
		Help:    "Latency of conflict heatmap cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_heatmap_cache_write_seconds",
		Help:    "Latency of conflict heatmap cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_heatmap_cache_hits_total",
		Help: "Heatmap cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_heatmap_cache_misses_total",
		Help: "Heatmap cache misses",
	})

	conflictsDetected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_conflicts_detected_total",
		Help: "Hard conflicts found by detection runs",
	}, []string{"kind"})

	waitlistPromotions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_waitlist_promotions_total",
		Help: "Students enrolled from a waitlist",
	})

	generationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_generation_duration_seconds",
		Help:    "Duration of schedule generation runs",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"type", "outcome"})

	healthScore := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_health_score",
		Help: "Latest overall health score per schedule",
	}, []string{"schedule_id"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		conflictsDetected, waitlistPromotions, generationDuration, healthScore, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		conflictsDetected:  conflictsDetected,
		waitlistPromotions: waitlistPromotions,
		generationDuration: generationDuration,
		healthScore:        healthScore,
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RequestCounter exposes the per-route request counter.
func (m *MetricsService) RequestCounter() *prometheus.CounterVec {
	return m.requestTotal
}

// RecordCacheOperation records a cache lookup outcome.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}

// ObserveCacheWrite tracks cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordConflicts adds detected conflicts per kind.
func (m *MetricsService) RecordConflicts(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflictsDetected.WithLabelValues(kind).Add(float64(n))
}

// RecordWaitlistPromotion counts one waitlist enrollment.
func (m *MetricsService) RecordWaitlistPromotion() {
	if m == nil {
		return
	}
	m.waitlistPromotions.Inc()
}

// ObserveGeneration records how long a generation run took.
func (m *MetricsService) ObserveGeneration(scheduleType string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.generationDuration.WithLabelValues(scheduleType, outcome).Observe(duration.Seconds())
}

// SetHealthScore publishes the latest overall score of a schedule.
func (m *MetricsService) SetHealthScore(scheduleID string, score float64) {
	if m == nil || scheduleID == "" {
		return
	}
	m.healthScore.WithLabelValues(scheduleID).Set(score)
}
