package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickwarner/openbidder/internal/observability"
)

// SeatLimiter keeps one token bucket per seat, created lazily on first use.
type SeatLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// NewSeatLimiter creates a limiter with the given configuration.
func NewSeatLimiter(config Config, metrics observability.MetricsRegistry) *SeatLimiter {
	if metrics == nil {
		metrics = observability.NoOpRegistry{}
	}
	return &SeatLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow consumes a token for seat. It always allows when limiting is disabled.
func (l *SeatLimiter) Allow(seat string) bool {
	if !l.config.Enabled {
		return true
	}
	l.metrics.IncrementRateLimitRequests(seat)

	l.mu.RLock()
	bucket, ok := l.buckets[seat]
	l.mu.RUnlock()
	if !ok {
		l.mu.Lock()
		bucket, ok = l.buckets[seat]
		if !ok {
			bucket = newTokenBucket(l.config.Capacity, l.config.RefillRate, l.now)
			l.buckets[seat] = bucket
		}
		l.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		l.metrics.IncrementRateLimitHits(seat)
	}
	return allowed
}

// Stats returns a snapshot of per-seat statistics ordered by seat.
func (l *SeatLimiter) Stats() []Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Stats, 0, len(l.buckets))
	for seat, bucket := range l.buckets {
		hits, total := bucket.Stats()
		s := Stats{Seat: seat, Hits: hits, Total: total}
		if total > 0 {
			s.HitRate = float64(hits) / float64(total)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// Stats describes rate limiting activity for one seat.
type Stats struct {
	Seat    string  `json:"seat"`
	Hits    int64   `json:"hits"`     // Rejected requests
	Total   int64   `json:"total"`    // All requests
	HitRate float64 `json:"hit_rate"` // Hits / Total
}

func (s Stats) String() string {
	return fmt.Sprintf("seat %q: %d/%d hits (%.2f%%)", s.Seat, s.Hits, s.Total, s.HitRate*100)
}
