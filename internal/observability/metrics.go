package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidder_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bidder_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// bid requests received per exchange
	BidRequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidder_bid_requests_total",
			Help: "Total bid requests received",
		},
		[]string{"exchange"},
	)

	// bids returned per exchange and seat
	BidCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidder_bids_total",
			Help: "Total bids returned to exchanges",
		},
		[]string{"exchange", "seat"},
	)

	// number of no-bid responses, labelled by no-bid reason
	NoBidCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidder_nobid_total",
			Help: "Total no-bid responses",
		},
		[]string{"exchange", "reason"},
	)

	// time spent in each bidding interceptor
	InterceptorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bidder_interceptor_duration_seconds",
			Help:    "Histogram of interceptor latencies",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		},
		[]string{"interceptor"},
	)

	// bids removed by each interceptor
	BidsRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidder_bids_removed_total",
			Help: "Total bids removed by interceptors",
		},
		[]string{"interceptor"},
	)

	// win notices accepted per exchange
	WinCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidder_wins_total",
			Help: "Total win notices accepted",
		},
		[]string{"exchange"},
	)

	// number of analytics events recorded, labelled by type
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidder_events_total",
			Help: "Total events recorded",
		},
		[]string{"type"},
	)

	// rate limit hits per seat
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidder_ratelimit_hits_total",
			Help: "Total rate limit hits per seat",
		},
		[]string{"seat"},
	)

	// rate limit requests per seat
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidder_ratelimit_requests_total",
			Help: "Total rate limit requests per seat",
		},
		[]string{"seat"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		BidRequestCount,
		BidCount,
		NoBidCount,
		InterceptorLatency,
		BidsRemoved,
		WinCount,
		EventCount,
		RateLimitHits,
		RateLimitRequests,
	)
}
