package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	unlocks       *prometheus.CounterVec
	grants        *prometheus.CounterVec
	paymentEvents *prometheus.CounterVec
	rateLimited   prometheus.Counter
	scoreFallback prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		unlocks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claimlens",
			Name:      "unlocks_total",
			Help:      "Unlock settlements by outcome.",
		}, []string{"outcome"}),
		grants: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claimlens",
			Name:      "ledger_grants_total",
			Help:      "Credit grants appended to the ledger by source.",
		}, []string{"source"}),
		paymentEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claimlens",
			Name:      "payment_events_total",
			Help:      "Processor webhook events by application outcome.",
		}, []string{"outcome"}),
		rateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "claimlens",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the sliding-window limiter.",
		}),
		scoreFallback: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "claimlens",
			Name:      "score_fallbacks_total",
			Help:      "Settlements priced at the floor tier due to missing score inputs.",
		}),
	}
}

func (m *Metrics) RecordUnlock(outcome string) {
	if m == nil {
		return
	}
	m.unlocks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordGrant(source string) {
	if m == nil {
		return
	}
	m.grants.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordPaymentEvent(outcome string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) RecordScoreFallback() {
	if m == nil {
		return
	}
	m.scoreFallback.Inc()
}

// HTTPMetrics instruments inbound requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claimlens",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method, and status.",
		}, []string{"route", "method", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "claimlens",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
