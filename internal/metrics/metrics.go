// Package metrics holds the Prometheus collectors exported by bioverify.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioverify_verifications_total",
		Help: "Total verification attempts by platform and outcome.",
	}, []string{"platform", "outcome"})

	fetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioverify_fetch_failures_total",
		Help: "Total bio fetch failures by platform and source.",
	}, []string{"platform", "source"})

	batchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioverify_batch_runs_total",
		Help: "Total batch runs by result.",
	}, []string{"result"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bioverify_batch_duration_seconds",
		Help:    "Batch duration in seconds, including pacing.",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	webhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioverify_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioverify_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bioverify_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Recorder adapts the package collectors to verify.Metrics.
type Recorder struct{}

// RecordVerification counts one verification attempt.
func (Recorder) RecordVerification(platform, outcome string) {
	verificationsTotal.WithLabelValues(platform, outcome).Inc()
}

// RecordFetchFailure counts one failed bio fetch.
func (Recorder) RecordFetchFailure(platform, source string) {
	fetchFailuresTotal.WithLabelValues(platform, source).Inc()
}

// RecordBatch records a batch run result and its duration.
func RecordBatch(result string, elapsed time.Duration) {
	batchRunsTotal.WithLabelValues(result).Inc()
	batchDuration.Observe(elapsed.Seconds())
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		webhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		webhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		requestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// GinHandler serves the Prometheus exposition format from a Gin route.
func GinHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Server returns a bare metrics server for commands that run without the API.
func Server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
