package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	custodyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	custodyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custody_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	custodyTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_transitions_total",
		Help: "Evidence transitions by operation and result.",
	}, []string{"operation", "result"})

	custodyHistoryEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "custody_history_entries_total",
		Help: "Total history entries appended by this process.",
	})

	custodyChainChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_chain_checks_total",
		Help: "Periodic history chain verifications by result.",
	}, []string{"result"})

	custodyWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_webhook_deliveries_total",
		Help: "Total webhook delivery attempts by success status.",
	}, []string{"success"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		custodyRequestsTotal.WithLabelValues(method, path, status).Inc()
		custodyRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTransition records the outcome of an evidence operation.
func RecordTransition(action model.Action, err error) {
	custodyTransitionsTotal.WithLabelValues(string(action), transitionResult(err)).Inc()
	if err == nil {
		custodyHistoryEntriesTotal.Inc()
	}
}

// RecordChainCheck records a periodic chain verification result.
func RecordChainCheck(success bool) {
	if success {
		custodyChainChecksTotal.WithLabelValues("success").Inc()
	} else {
		custodyChainChecksTotal.WithLabelValues("failure").Inc()
	}
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	custodyWebhookDeliveriesTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func transitionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, model.ErrForbidden):
		return "forbidden"
	case errors.Is(err, model.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrDuplicateItem):
		return "duplicate"
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}
