package api

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/analytics"
	"github.com/patrickwarner/openbidder/internal/middleware"
)

// winDedupTTL is how long a win is remembered to ignore repeated notices.
const winDedupTTL = 24 * time.Hour

// WinHandler handles GET /win notices called by exchanges when a bid wins.
// The t parameter is the signed token placed in the bid's NURL and price is
// the clearing price the exchange substituted for ${AUCTION_PRICE}.
func (s *Server) WinHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "WinHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/win"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "win"
	const method = "GET"

	tok := r.URL.Query().Get("t")
	if tok == "" {
		logger.Warn("missing token")
		s.observe(endpoint, method, http.StatusUnauthorized, start)
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	win, err := s.Signer.Verify(tok)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid token")
		logger.Warn("token verify", zap.Error(err))
		s.observe(endpoint, method, http.StatusUnauthorized, start)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	span.SetAttributes(
		attribute.String("request_id", win.RequestID),
		attribute.String("bid_id", win.BidID),
		attribute.String("exchange", win.Exchange),
		attribute.Int("line_item_id", win.LineItemID),
	)

	// Unreplaced macros and missing prices fall back to the bid price.
	price := win.BidPrice
	if p, err := strconv.ParseFloat(r.URL.Query().Get("price"), 64); err == nil && p >= 0 {
		price = p
	}

	if s.Store != nil {
		first, err := s.Store.ClaimWin(ctx, win.BidID, winDedupTTL)
		if err != nil {
			logger.Error("claim win", zap.Error(err), zap.String("bid_id", win.BidID))
		} else if !first {
			logger.Debug("duplicate win notice", zap.String("bid_id", win.BidID))
			s.observe(endpoint, method, http.StatusNoContent, start)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	if s.FreqCap != nil {
		if err := s.FreqCap.RecordWin(ctx, win.UserID, win.LineItemID); err != nil {
			// the exchange has already billed the impression
			logger.Error("failed to increment frequency cap counter", zap.Error(err), zap.Int("line_item_id", win.LineItemID))
		}
	}

	s.recordEvents(ctx, []analytics.Event{{
		Timestamp:  start,
		EventType:  analytics.EventWin,
		Exchange:   win.Exchange,
		RequestID:  win.RequestID,
		ImpID:      win.ImpID,
		BidID:      win.BidID,
		Seat:       win.Seat,
		LineItemID: win.LineItemID,
		CreativeID: win.CreativeID,
		Price:      price,
		Currency:   win.Currency,
	}})
	s.Metrics.IncrementWins(win.Exchange)

	if s.Sampler.ShouldSample() {
		logger.Info("win",
			zap.String("request_id", win.RequestID),
			zap.String("bid_id", win.BidID),
			zap.Float64("price", price))
	}

	s.observe(endpoint, method, http.StatusNoContent, start)
	w.WriteHeader(http.StatusNoContent)
}
