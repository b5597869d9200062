// Package metrics holds the prometheus collectors of the service.
// Every recording method is safe on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	cacheRequests     *prometheus.CounterVec
	cachePromotions   prometheus.Counter
	queueJobs         *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
	syncRuns          *prometheus.CounterVec
	syncConflicts     *prometheus.CounterVec
	optimisticUpdates *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colocacion_cache_requests_total",
				Help: "Product cache lookups by result",
			},
			[]string{"result"},
		),
		cachePromotions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "colocacion_cache_promotions_total",
				Help: "Cache entries promoted to the frequent TTL",
			},
		),
		queueJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colocacion_print_jobs_total",
				Help: "Print job transitions by outcome",
			},
			[]string{"outcome"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "colocacion_print_queue_depth",
				Help: "Print jobs waiting or leased",
			},
			[]string{"state"},
		),
		syncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colocacion_sync_runs_total",
				Help: "ERP sync operations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		syncConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colocacion_sync_conflicts_total",
				Help: "Field conflicts detected against the ERP",
			},
			[]string{"field", "strategy"},
		),
		optimisticUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colocacion_optimistic_updates_total",
				Help: "Optimistic update transitions",
			},
			[]string{"outcome"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colocacion_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "colocacion_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.cacheRequests,
		m.cachePromotions,
		m.queueJobs,
		m.queueDepth,
		m.syncRuns,
		m.syncConflicts,
		m.optimisticUpdates,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) CachePromoted() {
	if m == nil {
		return
	}
	m.cachePromotions.Inc()
}

func (m *Metrics) PrintJob(outcome string) {
	if m == nil {
		return
	}
	m.queueJobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QueueDepth(queued, processing int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("queued").Set(float64(queued))
	m.queueDepth.WithLabelValues("processing").Set(float64(processing))
}

func (m *Metrics) SyncRun(kind string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.syncRuns.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SyncConflict(field, strategy string) {
	if m == nil {
		return
	}
	m.syncConflicts.WithLabelValues(field, strategy).Inc()
}

func (m *Metrics) Optimistic(outcome string) {
	if m == nil {
		return
	}
	m.optimisticUpdates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(seconds)
}
