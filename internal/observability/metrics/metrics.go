package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics exposes request-level instruments.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwise_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inkwise_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// GinMiddleware records per-request counters and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		m.requests.WithLabelValues(route, method, status).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// GenerationMetrics counts generation lifecycle events.
type GenerationMetrics struct {
	started            *prometheus.CounterVec
	settled            *prometheus.CounterVec
	settlementFailures prometheus.Counter
	creditRejections   prometheus.Counter
}

func NewGenerationMetrics() *GenerationMetrics {
	return &GenerationMetrics{
		started: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwise_generations_started_total",
			Help: "Generations that passed the credit gate, by mode.",
		}, []string{"mode"}),
		settled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwise_generations_settled_total",
			Help: "Generations settled against the credit ledger, by tier.",
		}, []string{"tier"}),
		settlementFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "inkwise_settlement_failures_total",
			Help: "Finalization failures swallowed after content delivery.",
		}),
		creditRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "inkwise_credit_rejections_total",
			Help: "Generations rejected at the gate for insufficient credit.",
		}),
	}
}

func (m *GenerationMetrics) RecordStarted(mode string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(strings.TrimSpace(mode)).Inc()
}

func (m *GenerationMetrics) RecordSettled(tier string) {
	if m == nil {
		return
	}
	m.settled.WithLabelValues(strings.TrimSpace(tier)).Inc()
}

func (m *GenerationMetrics) RecordSettlementFailure() {
	if m == nil {
		return
	}
	m.settlementFailures.Inc()
}

func (m *GenerationMetrics) RecordCreditRejection() {
	if m == nil {
		return
	}
	m.creditRejections.Inc()
}
