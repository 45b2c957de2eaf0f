package observability

import "time"

// NoOpRegistry is a MetricsRegistry that discards everything. Used in tests
// and by tools that run the bidding pipeline outside the server.
type NoOpRegistry struct{}

func (NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (NoOpRegistry) IncrementBidRequests(exchange string)                                 {}
func (NoOpRegistry) AddBids(exchange, seat string, n int)                                 {}
func (NoOpRegistry) IncrementNoBids(exchange string, reason int)                          {}
func (NoOpRegistry) RecordInterceptorLatency(interceptor string, duration time.Duration)  {}
func (NoOpRegistry) AddBidsRemoved(interceptor string, n int)                             {}
func (NoOpRegistry) IncrementWins(exchange string)                                        {}
func (NoOpRegistry) IncrementEvent(eventType string)                                      {}
func (NoOpRegistry) IncrementRateLimitRequests(seat string)                               {}
func (NoOpRegistry) IncrementRateLimitHits(seat string)                                   {}

// NewNoOpRegistry returns a registry that records nothing.
func NewNoOpRegistry() MetricsRegistry {
	return NoOpRegistry{}
}
