package interceptors

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/db"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/pipeline"
	"github.com/patrickwarner/openbidder/internal/ratelimit"
)

// FloorFilter removes bids priced below their impression's floor and bids
// for impressions the request does not contain.
type FloorFilter struct{}

func (FloorFilter) Name() string { return "floor_filter" }

func (FloorFilter) Intercept(_ context.Context, req *pipeline.Request, resp *bidding.BidResponse) error {
	for _, seat := range resp.Seats() {
		resp.FilterBids(seat.ID, func(b *bidding.Bid) bool {
			imp := req.Imp(b.ImpID)
			return imp != nil && b.Price >= imp.BidFloor
		})
	}
	return nil
}

// FrequencyCap removes bids for line items the user has already won too
// often. Requests without a user ID are not capped. Redis failures are
// logged and let every bid through.
type FrequencyCap struct {
	store         *db.RedisStore
	catalog       models.Catalog
	defaultCap    int
	defaultWindow time.Duration
	logger        *zap.Logger
}

// NewFrequencyCap returns the interceptor. Line items without their own cap
// use defaultCap wins per defaultWindow; a defaultCap of zero leaves them
// uncapped.
func NewFrequencyCap(store *db.RedisStore, catalog models.Catalog, defaultCap int, defaultWindow time.Duration, logger *zap.Logger) *FrequencyCap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrequencyCap{store: store, catalog: catalog, defaultCap: defaultCap, defaultWindow: defaultWindow, logger: logger}
}

func (f *FrequencyCap) Name() string { return "frequency_cap" }

func (f *FrequencyCap) Intercept(ctx context.Context, req *pipeline.Request, resp *bidding.BidResponse) error {
	userID := req.UserID()
	if userID == "" || resp.BidCount() == 0 {
		return nil
	}

	var ids []int
	for b := range resp.AllBidsWith(func(*bidding.Bid) bool { return true }) {
		if id, ok := pipeline.LineItemOf(resp, b.ID); ok {
			ids = append(ids, id)
		}
	}
	counts, err := f.store.WinCounts(ctx, userID, ids)
	if err != nil {
		f.logger.Warn("frequency cap lookup failed, not capping", zap.Error(err))
		return nil
	}

	capped := func(b *bidding.Bid) bool {
		id, ok := pipeline.LineItemOf(resp, b.ID)
		if !ok {
			return false
		}
		limit := f.capFor(id)
		return limit > 0 && counts[id] >= int64(limit)
	}
	for _, seat := range resp.Seats() {
		resp.FilterBids(seat.ID, func(b *bidding.Bid) bool { return !capped(b) })
	}
	return nil
}

func (f *FrequencyCap) capFor(lineItemID int) int {
	if li := f.catalog.GetLineItem(lineItemID); li != nil && li.FrequencyCap > 0 {
		return li.FrequencyCap
	}
	return f.defaultCap
}

func (f *FrequencyCap) windowFor(lineItemID int) time.Duration {
	if li := f.catalog.GetLineItem(lineItemID); li != nil && li.FrequencyWindow > 0 {
		return li.FrequencyWindow
	}
	return f.defaultWindow
}

// RecordWin counts a won impression against the user's cap. It is called
// from the win notice handler, not while bidding.
func (f *FrequencyCap) RecordWin(ctx context.Context, userID string, lineItemID int) error {
	if userID == "" || lineItemID == 0 {
		return nil
	}
	_, err := f.store.IncrementWin(ctx, userID, lineItemID, f.windowFor(lineItemID))
	return err
}

// SeatThrottle drops every bid of a seat that is over its bid rate.
type SeatThrottle struct {
	limiter *ratelimit.SeatLimiter
}

// NewSeatThrottle returns the interceptor.
func NewSeatThrottle(limiter *ratelimit.SeatLimiter) *SeatThrottle {
	return &SeatThrottle{limiter: limiter}
}

func (s *SeatThrottle) Name() string { return "seat_throttle" }

func (s *SeatThrottle) Intercept(_ context.Context, _ *pipeline.Request, resp *bidding.BidResponse) error {
	for _, seat := range resp.Seats() {
		if seat.Len() == 0 || s.limiter.Allow(seat.ID) {
			continue
		}
		resp.FilterBids(seat.ID, func(*bidding.Bid) bool { return false })
	}
	return nil
}
