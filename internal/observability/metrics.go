package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// yr.no API call rate. Watch for: error vs success ratio.
	YrNoCallsTotal *prometheus.CounterVec

	// yr.no latency per request. Watch for: p95 > 2s (upstream degradation), p99 near the timeout.
	YrNoDuration *prometheus.HistogramVec

	// Forecast cache hits on the live table.
	CacheHitsTotal prometheus.Counter

	// Forecast cache misses (absent or expired).
	CacheMissesTotal prometheus.Counter

	// Stale entries served because the upstream fetch failed. Any sustained
	// rate here means yr.no is down and we are coasting on old data.
	StaleServesTotal prometheus.Counter

	// Age of stale entries at serve time.
	StaleAgeSeconds prometheus.Histogram

	// Total forecast lookups through the pipeline. rate() for QPS.
	ForecastRequestsTotal prometheus.Counter

	// Geocoding lookups by outcome (found, not_found, cached, error).
	GeocodeLookupsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Cache warming pass duration.
	CacheWarmingDurationSeconds prometheus.Histogram
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	YrNoCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yrnoCallsTotal",
			Help: "Total number of yr.no locationforecast API calls",
		},
		[]string{"status"},
	)
	YrNoDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yrnoDurationSeconds",
			Help:    "yr.no API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Forecast cache hits. Hit rate = hits/(hits+misses).",
		},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Forecast cache misses (absent or TTL-expired entries)",
		},
	)
	StaleServesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staleServesTotal",
			Help: "Forecasts served from the stale slot after an upstream failure",
		},
	)
	StaleAgeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staleAgeSeconds",
			Help:    "Age of stale cache entries at serve time",
			Buckets: []float64{60, 300, 900, 3600, 7200, 14400, 86400},
		},
	)
	ForecastRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastRequestsTotal",
			Help: "Total number of forecast lookups through the pipeline",
		},
	)
	GeocodeLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocodeLookupsTotal",
			Help: "Geocoding lookups by outcome",
		},
		[]string{"result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of cache warming passes",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30},
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		YrNoCallsTotal, YrNoDuration,
		CacheHitsTotal, CacheMissesTotal, StaleServesTotal, StaleAgeSeconds,
		ForecastRequestsTotal, GeocodeLookupsTotal,
		RateLimitDeniedTotal, CacheWarmingDurationSeconds,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
