package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	mergeTotal      *prometheus.CounterVec
	mergeChanges    prometheus.Counter
	exportTotal     *prometheus.CounterVec
	exportDuration  prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
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

	mergeTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_merges_total",
		Help: "Total number of batch merge runs",
	}, []string{"outcome"})

	mergeChanges := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batch_merge_item_changes_total",
		Help: "Total items created or updated by merges",
	})

	exportTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exports_total",
		Help: "Total number of export runs",
	}, []string{"outcome"})

	exportDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "export_duration_seconds",
		Help:    "Duration of full export runs",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, mergeTotal, mergeChanges, exportTotal, exportDuration, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		mergeTotal:      mergeTotal,
		mergeChanges:    mergeChanges,
		exportTotal:     exportTotal,
		exportDuration:  exportDuration,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveMerge records the outcome of one batch merge.
func (m *MetricsService) ObserveMerge(outcome string, itemChanges int) {
	if m == nil {
		return
	}
	m.mergeTotal.WithLabelValues(outcome).Inc()
	if itemChanges > 0 {
		m.mergeChanges.Add(float64(itemChanges))
	}
}

// ObserveExport records the outcome and duration of one export run.
func (m *MetricsService) ObserveExport(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.exportTotal.WithLabelValues(outcome).Inc()
	m.exportDuration.Observe(duration.Seconds())
}

// RecordCacheOperation counts audit cache hits and misses.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}
