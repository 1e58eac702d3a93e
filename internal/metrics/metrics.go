// Package metrics provides Prometheus-backed observability behind small,
// independently nilable interfaces, so every domain package (cache,
// dispatch, reactor, scheduler) can accept a metrics sink without importing
// Prometheus itself. Collapsed into one package since none of these
// interfaces reference prometheus types directly, so there's no import
// cycle to dodge with a constructor-registration split.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry enables metrics collection with a fresh Prometheus registry.
// Must be called before any New*Metrics constructor for them to return a
// live collector instead of nil.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the active registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// CacheMetrics observes pkg/cache activity (hit/miss, size, eviction).
type CacheMetrics interface {
	ObserveGet(cacheName string, hit bool, duration time.Duration)
	ObserveSet(cacheName string, bytes int, duration time.Duration)
	RecordSize(cacheName string, bytes int64)
	RecordEviction(cacheName, reason string)
}

// DispatchMetrics observes pkg/dispatch activity (requests, status, latency).
type DispatchMetrics interface {
	ObserveRequest(driverKey, method string, statusCode int, duration time.Duration)
}

// ReactorMetrics observes pkg/reactor task lifecycle.
type ReactorMetrics interface {
	RecordTaskSpawned(queueName string)
	RecordTaskFinished(queueName, event string)
	RecordQueueDepth(queueName string, depth int)
}

// SchedulerMetrics observes pkg/scheduler job firings.
type SchedulerMetrics interface {
	RecordFiring(jobName string, duration time.Duration)
}

type cacheMetrics struct {
	gets      *prometheus.CounterVec
	setBytes  *prometheus.HistogramVec
	duration  *prometheus.HistogramVec
	size      *prometheus.GaugeVec
	evictions *prometheus.CounterVec
}

// NewCacheMetrics returns a Prometheus-backed CacheMetrics, or nil when
// metrics are disabled (callers pass nil straight into pkg/cache for zero
// overhead).
func NewCacheMetrics() CacheMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &cacheMetrics{
		gets: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "navid_cache_gets_total",
			Help: "Cache lookups by cache name and hit/miss.",
		}, []string{"cache", "result"}),
		setBytes: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "navid_cache_set_bytes",
			Help:    "Size in bytes of cache entries written.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"cache"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "navid_cache_op_duration_seconds",
			Help:    "Cache operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"cache", "op"}),
		size: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "navid_cache_size_bytes",
			Help: "Current cache size in bytes.",
		}, []string{"cache"}),
		evictions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "navid_cache_evictions_total",
			Help: "Cache evictions by reason.",
		}, []string{"cache", "reason"}),
	}
}

func (m *cacheMetrics) ObserveGet(cacheName string, hit bool, duration time.Duration) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.gets.WithLabelValues(cacheName, result).Inc()
	m.duration.WithLabelValues(cacheName, "get").Observe(duration.Seconds())
}

func (m *cacheMetrics) ObserveSet(cacheName string, bytes int, duration time.Duration) {
	m.setBytes.WithLabelValues(cacheName).Observe(float64(bytes))
	m.duration.WithLabelValues(cacheName, "set").Observe(duration.Seconds())
}

func (m *cacheMetrics) RecordSize(cacheName string, bytes int64) {
	m.size.WithLabelValues(cacheName).Set(float64(bytes))
}

func (m *cacheMetrics) RecordEviction(cacheName, reason string) {
	m.evictions.WithLabelValues(cacheName, reason).Inc()
}

type dispatchMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewDispatchMetrics returns a Prometheus-backed DispatchMetrics, or nil
// when metrics are disabled.
func NewDispatchMetrics() DispatchMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &dispatchMetrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "navid_requests_total",
			Help: "Dispatched requests by driver key, method, and status code.",
		}, []string{"driver", "method", "status"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "navid_request_duration_seconds",
			Help:    "Request dispatch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"driver", "method"}),
	}
}

func (m *dispatchMetrics) ObserveRequest(driverKey, method string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.requests.WithLabelValues(driverKey, method, status).Inc()
	m.duration.WithLabelValues(driverKey, method).Observe(duration.Seconds())
}

type reactorMetrics struct {
	spawned  *prometheus.CounterVec
	finished *prometheus.CounterVec
	depth    *prometheus.GaugeVec
}

// NewReactorMetrics returns a Prometheus-backed ReactorMetrics, or nil when
// metrics are disabled.
func NewReactorMetrics() ReactorMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &reactorMetrics{
		spawned: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "navid_reactor_tasks_spawned_total",
			Help: "Tasks spawned per queue.",
		}, []string{"queue"}),
		finished: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "navid_reactor_tasks_finished_total",
			Help: "Tasks finished per queue and terminal event.",
		}, []string{"queue", "event"}),
		depth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "navid_reactor_queue_depth",
			Help: "Live task count per queue.",
		}, []string{"queue"}),
	}
}

func (m *reactorMetrics) RecordTaskSpawned(queueName string) {
	m.spawned.WithLabelValues(queueName).Inc()
}

func (m *reactorMetrics) RecordTaskFinished(queueName, event string) {
	m.finished.WithLabelValues(queueName, event).Inc()
}

func (m *reactorMetrics) RecordQueueDepth(queueName string, depth int) {
	m.depth.WithLabelValues(queueName).Set(float64(depth))
}

type schedulerMetrics struct {
	firings *prometheus.HistogramVec
}

// NewSchedulerMetrics returns a Prometheus-backed SchedulerMetrics, or nil
// when metrics are disabled.
func NewSchedulerMetrics() SchedulerMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &schedulerMetrics{
		firings: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "navid_scheduler_job_duration_seconds",
			Help:    "Scheduled job execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func (m *schedulerMetrics) RecordFiring(jobName string, duration time.Duration) {
	m.firings.WithLabelValues(jobName).Observe(duration.Seconds())
}
