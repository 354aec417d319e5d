package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry and the domain counters exposed
// at /metrics.
type MetricsService struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	migrationRuns  *prometheus.CounterVec
	promotionTotal *prometheus.CounterVec
	reportJobs     *prometheus.CounterVec
}

// NewMetricsService builds a self-contained registry with Go runtime and
// process collectors plus the application series.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &MetricsService{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campus_http_requests_total",
			Help: "HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campus_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campus_cache_hits_total",
			Help: "Cache hits served for preview and listing endpoints.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campus_cache_misses_total",
			Help: "Cache misses for preview and listing endpoints.",
		}),
		migrationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campus_migration_runs_total",
			Help: "Migration runs by type and final status.",
		}, []string{"type", "status"}),
		promotionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campus_promotion_requests_total",
			Help: "Promotion requests by lifecycle event.",
		}, []string{"event"}),
		reportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campus_report_jobs_total",
			Help: "Report export jobs by final status.",
		}, []string{"status"}),
	}

	registry.MustRegister(
		s.httpRequests, s.httpDuration,
		s.cacheHits, s.cacheMisses,
		s.migrationRuns, s.promotionTotal, s.reportJobs,
	)
	return s
}

// Handler serves the registry in the Prometheus exposition format.
func (s *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one finished request.
func (s *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	s.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	s.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCacheLookup records a cache hit or miss.
func (s *MetricsService) ObserveCacheLookup(hit bool) {
	if hit {
		s.cacheHits.Inc()
		return
	}
	s.cacheMisses.Inc()
}

// ObserveMigrationRun records a finished migration run.
func (s *MetricsService) ObserveMigrationRun(migrationType, status string) {
	s.migrationRuns.WithLabelValues(migrationType, status).Inc()
}

// ObservePromotionEvent records a promotion request lifecycle event.
func (s *MetricsService) ObservePromotionEvent(event string) {
	s.promotionTotal.WithLabelValues(event).Inc()
}

// ObserveReportJob records a report job outcome.
func (s *MetricsService) ObserveReportJob(status string) {
	s.reportJobs.WithLabelValues(status).Inc()
}
