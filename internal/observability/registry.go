package observability

import (
	"strconv"
	"time"
)

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it through dependency injection instead of touching the
// global Prometheus collectors.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Bidding metrics
	IncrementBidRequests(exchange string)
	AddBids(exchange, seat string, n int)
	IncrementNoBids(exchange string, reason int)
	RecordInterceptorLatency(interceptor string, duration time.Duration)
	AddBidsRemoved(interceptor string, n int)
	IncrementWins(exchange string)

	// Event tracking metrics
	IncrementEvent(eventType string)

	// Rate limiting metrics
	IncrementRateLimitRequests(seat string)
	IncrementRateLimitHits(seat string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Bidding metrics
func (r *PrometheusRegistry) IncrementBidRequests(exchange string) {
	BidRequestCount.WithLabelValues(exchange).Inc()
}

func (r *PrometheusRegistry) AddBids(exchange, seat string, n int) {
	BidCount.WithLabelValues(exchange, seat).Add(float64(n))
}

func (r *PrometheusRegistry) IncrementNoBids(exchange string, reason int) {
	NoBidCount.WithLabelValues(exchange, strconv.Itoa(reason)).Inc()
}

func (r *PrometheusRegistry) RecordInterceptorLatency(interceptor string, duration time.Duration) {
	InterceptorLatency.WithLabelValues(interceptor).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) AddBidsRemoved(interceptor string, n int) {
	if n > 0 {
		BidsRemoved.WithLabelValues(interceptor).Add(float64(n))
	}
}

func (r *PrometheusRegistry) IncrementWins(exchange string) {
	WinCount.WithLabelValues(exchange).Inc()
}

// Event tracking metrics
func (r *PrometheusRegistry) IncrementEvent(eventType string) {
	EventCount.WithLabelValues(eventType).Inc()
}

// Rate limiting metrics
func (r *PrometheusRegistry) IncrementRateLimitRequests(seat string) {
	RateLimitRequests.WithLabelValues(seat).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(seat string) {
	RateLimitHits.WithLabelValues(seat).Inc()
}
