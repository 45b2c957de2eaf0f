package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/analytics"
	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/codec"
	"github.com/patrickwarner/openbidder/internal/middleware"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/pipeline"
)

const traceHeader = "X-Bidder-Trace"

// BidHandler handles POST /bid/{exchange}. The request runs through the
// interceptor chain and the resulting response is encoded in the exchange's
// protocol.
func (s *Server) BidHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "BidHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/bid/{exchange}"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "bid"
	const method = "POST"

	name := mux.Vars(r)["exchange"]
	builder, ok := s.builders[name]
	if !ok {
		logger.Warn("unknown exchange", zap.String("exchange", name))
		s.observe(endpoint, method, http.StatusNotFound, start)
		http.Error(w, "unknown exchange", http.StatusNotFound)
		return
	}
	exchange := builder.Exchange()
	s.Metrics.IncrementBidRequests(exchange.Name())
	span.SetAttributes(attribute.String("exchange", exchange.String()))

	ortb, err := codec.DecodeRequest(r.Body)
	_ = r.Body.Close()
	if err != nil {
		logger.Warn("decode bid request", zap.Error(err), zap.String("exchange", name))
		s.observe(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("request_id", ortb.ID), attribute.Int("imps", len(ortb.Imp)))

	resp, err := builder.Build()
	if err != nil {
		logger.Error("build response", zap.Error(err))
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	req := &pipeline.Request{Exchange: exchange, OpenRTB: ortb, Received: start}

	bidCtx, cancel := context.WithTimeout(ctx, s.bidTimeout(ortb))
	tr, err := s.Chain.Run(bidCtx, req, resp)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bidding failed")
		logger.Warn("bidding failed, answering no-bid",
			zap.Error(err),
			zap.String("request_id", ortb.ID),
			zap.String("exchange", name))
		// partial bids from an aborted chain are never sent
		if resp, err = builder.Build(); err != nil {
			logger.Error("build response", zap.Error(err))
			s.observe(endpoint, method, http.StatusInternalServerError, start)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		pipeline.SkipBidding(resp, models.NoBidTechnicalError)
	}

	debug := s.Config.DebugTrace || r.URL.Query().Get("debug") == "1"
	if err := s.encode(resp, ortb.ID, start, tr, debug); err != nil {
		span.RecordError(err)
		logger.Error("encode response", zap.Error(err), zap.String("request_id", ortb.ID))
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	s.recordEvents(ctx, analytics.ResponseEvents(req, resp, start))
	s.recordBidMetrics(exchange.Name(), resp)
	span.SetAttributes(attribute.Int("bids", resp.BidCount()))

	if s.Sampler.ShouldSample() {
		logger.Info("bid request",
			zap.String("request_id", ortb.ID),
			zap.String("exchange", name),
			zap.Int("bids", resp.BidCount()),
			zap.Duration("elapsed", time.Since(start)))
	}

	env := resp.HTTPResponse()
	s.observe(endpoint, method, env.Status(), start)
	if err := env.Send(w); err != nil {
		logger.Debug("write response", zap.Error(err))
	}
}

// bidTimeout is the configured budget, shortened when the exchange announces
// a smaller tmax.
func (s *Server) bidTimeout(req *models.OpenRTBRequest) time.Duration {
	timeout := s.Config.BidTimeout
	if req.TMax > 0 {
		if tmax := time.Duration(req.TMax) * time.Millisecond; tmax < timeout {
			timeout = tmax
		}
	}
	return timeout
}

func (s *Server) encode(resp *bidding.BidResponse, requestID string, start time.Time, tr *pipeline.Trace, debug bool) error {
	if resp.ResponseMode() == bidding.ResponseModeNative {
		resp.Native().ProcessingTimeMS = int(time.Since(start).Milliseconds())
	}

	var err error
	if resp.BidCount() == 0 {
		err = s.Encoder.EncodeNoBid(resp, requestID, pipeline.NoBidReason(resp))
	} else {
		err = s.Encoder.Encode(resp, requestID)
	}
	if err != nil || !debug || tr == nil {
		return err
	}
	if data, merr := json.Marshal(tr); merr == nil {
		resp.HTTPResponse().SetHeader(traceHeader, string(data))
	}
	return nil
}

func (s *Server) recordBidMetrics(exchange string, resp *bidding.BidResponse) {
	if resp.BidCount() == 0 {
		s.Metrics.IncrementNoBids(exchange, pipeline.NoBidReason(resp))
		return
	}
	for _, seat := range resp.Seats() {
		if seat.Len() > 0 {
			s.Metrics.AddBids(exchange, seat.ID, seat.Len())
		}
	}
}
