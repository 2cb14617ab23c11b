// Package metrics exposes Prometheus collectors for the extractor service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal          *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	robotsFallbackTotal        *prometheus.CounterVec
	batchOutcomesTotal         *prometheus.CounterVec
	batchTasksInFlight         prometheus.Gauge
	pipelineRunsTotal          *prometheus.CounterVec
	pipelineDurationSeconds    *prometheus.HistogramVec
	interestMatchesTotal       *prometheus.CounterVec
	webhookEventsTotal         *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_pages_fetched_total",
				Help: "Total number of page fetches, labeled by site, status and renderer.",
			},
			[]string{"site", "status", "renderer"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_fetch_duration_seconds",
				Help:    "Histogram of successful fetch latencies, labeled by renderer.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"renderer"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30, 120, 300},
			},
			[]string{"method", "route"},
		)

		robotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_robots_fallback_total",
				Help: "Total robots.txt lookups that fell back to allow-all, labeled by reason.",
			},
			[]string{"reason"},
		)

		batchOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_batch_outcomes_total",
				Help: "Total batch task outcomes, labeled by batch name and outcome kind.",
			},
			[]string{"batch", "outcome"},
		)

		batchTasksInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "extractor_batch_tasks_in_flight",
				Help: "Number of batch tasks currently holding an admission slot.",
			},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_pipeline_runs_total",
				Help: "Total pipeline runs, labeled by mode and terminal state.",
			},
			[]string{"mode", "state"},
		)

		pipelineDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_pipeline_duration_seconds",
				Help:    "Histogram of pipeline run durations, labeled by mode.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"mode"},
		)

		interestMatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_interest_matches_total",
				Help: "Total research interests normalized, labeled by match method.",
			},
			[]string{"method"},
		)

		webhookEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_webhook_events_total",
				Help: "Total storage webhook events, labeled by result.",
			},
			[]string{"result"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

func renderer(headless bool) string {
	if headless {
		return "browser"
	}
	return "http"
}

// ObservePageFetch records one fetch attempt. A zero status means a transport error.
func ObservePageFetch(rawURL string, status int, headless bool, duration time.Duration) {
	Init()
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	pagesFetchedTotal.WithLabelValues(SanitizeSite(rawURL), code, renderer(headless)).Inc()
	if duration > 0 {
		fetchDurationSeconds.WithLabelValues(renderer(headless)).Observe(duration.Seconds())
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts robots.txt lookups treated as allow-all.
func ObserveRobotsFallback(reason string) {
	Init()
	robotsFallbackTotal.WithLabelValues(reason).Inc()
}

// ObserveBatchOutcome counts one finished batch task.
func ObserveBatchOutcome(batch, outcome string) {
	Init()
	batchOutcomesTotal.WithLabelValues(batch, outcome).Inc()
}

// IncBatchInFlight increments the in-flight batch task gauge.
func IncBatchInFlight() {
	Init()
	batchTasksInFlight.Inc()
}

// DecBatchInFlight decrements the in-flight batch task gauge.
func DecBatchInFlight() {
	Init()
	batchTasksInFlight.Dec()
}

// ObservePipelineRun records a finished pipeline run.
func ObservePipelineRun(mode, state string, duration time.Duration) {
	Init()
	pipelineRunsTotal.WithLabelValues(mode, state).Inc()
	pipelineDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveInterestMatch counts one normalized interest.
func ObserveInterestMatch(method string) {
	Init()
	interestMatchesTotal.WithLabelValues(method).Inc()
}

// ObserveWebhook counts one storage webhook delivery.
func ObserveWebhook(result string) {
	Init()
	webhookEventsTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
