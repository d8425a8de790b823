package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process's prometheus surface. Every collector is registered
// on a private registry so tests can build as many as they like.
type Metrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Beats           *prometheus.CounterVec
	StatusQueries   *prometheus.CounterVec
	StorageErrors   *prometheus.CounterVec
	RateLimited     prometheus.Counter
	PrunedBeats     prometheus.Counter
	StoreHealthy    prometheus.Gauge

	registry *prometheus.Registry
	handler  http.Handler
}

func NewMetrics() *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Beats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_beats_total",
				Help: "Beats received, by result",
			},
			[]string{"result"},
		),
		StatusQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_status_queries_total",
				Help: "Status lookups, by resulting state",
			},
			[]string{"state"},
		),
		StorageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_storage_errors_total",
				Help: "Store operations that failed",
			},
			[]string{"op"},
		),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beacon_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		PrunedBeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beacon_pruned_beats_total",
			Help: "Beats deleted by the retention pruner",
		}),
		StoreHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_store_healthy",
			Help: "Beat store liveness (1 = reachable, 0 = unavailable)",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RequestCount,
		m.RequestDuration,
		m.Beats,
		m.StatusQueries,
		m.StorageErrors,
		m.RateLimited,
		m.PrunedBeats,
		m.StoreHealthy,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

func (m *Metrics) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	m.RequestCount.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) SetStoreHealthy(healthy bool) {
	if healthy {
		m.StoreHealthy.Set(1)
	} else {
		m.StoreHealthy.Set(0)
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler { return m.handler }
