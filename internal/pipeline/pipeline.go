// Package pipeline runs the bidding logic for one request as an ordered chain
// of interceptors that all mutate the same BidResponse.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/observability"
	"github.com/patrickwarner/openbidder/internal/platform"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Metadata keys shared between interceptors and the transport layer.
const (
	MetaTargeting = "targeting"
	MetaSkip      = "skip"
	MetaNoBidCode = "nbr"
	MetaLineItems = "line_items"
)

// Request is the read-only input of a bidding round.
type Request struct {
	Exchange platform.Exchange
	OpenRTB  *models.OpenRTBRequest
	// Targeting is resolved by the targeting interceptor. Nil until then.
	Targeting *models.TargetingContext
	Received  time.Time
}

// Imp returns the impression with the given ID, or nil.
func (r *Request) Imp(id string) *models.Impression {
	for i := range r.OpenRTB.Imp {
		if r.OpenRTB.Imp[i].ID == id {
			return &r.OpenRTB.Imp[i]
		}
	}
	return nil
}

// UserID returns the buyer-side user ID when synced, else the exchange's.
func (r *Request) UserID() string {
	if r.OpenRTB.User.BuyerUID != "" {
		return r.OpenRTB.User.BuyerUID
	}
	return r.OpenRTB.User.ID
}

// Interceptor is one step of bidding logic.
type Interceptor interface {
	Name() string
	Intercept(ctx context.Context, req *Request, resp *bidding.BidResponse) error
}

// SkipBidding marks the response so that the remaining interceptors do not
// run, recording the no-bid reason reported to the exchange.
func SkipBidding(resp *bidding.BidResponse, reason int) {
	resp.PutMetadata(MetaSkip, true).PutMetadata(MetaNoBidCode, reason)
}

// Skipped reports whether an interceptor called SkipBidding.
func Skipped(resp *bidding.BidResponse) bool {
	skip, _ := resp.Metadata()[MetaSkip].(bool)
	return skip
}

// NoBidReason returns the recorded no-bid reason, or models.NoBidUnknown.
func NoBidReason(resp *bidding.BidResponse) int {
	if code, ok := resp.Metadata()[MetaNoBidCode].(int); ok {
		return code
	}
	return models.NoBidUnknown
}

// TagLineItem records which line item a bid was placed for. The mapping stays
// in metadata so it never reaches the exchange.
func TagLineItem(resp *bidding.BidResponse, bidID string, lineItemID int) {
	m, ok := resp.Metadata()[MetaLineItems].(map[string]int)
	if !ok {
		m = make(map[string]int)
		resp.PutMetadata(MetaLineItems, m)
	}
	m[bidID] = lineItemID
}

// LineItemOf returns the line item a bid was placed for.
func LineItemOf(resp *bidding.BidResponse, bidID string) (int, bool) {
	m, _ := resp.Metadata()[MetaLineItems].(map[string]int)
	id, ok := m[bidID]
	return id, ok
}

// Chain runs interceptors in order.
type Chain struct {
	interceptors []Interceptor
	logger       *zap.Logger
	metrics      observability.MetricsRegistry
	tracer       trace.Tracer
}

// NewChain builds a chain. A nil logger or metrics registry disables them.
func NewChain(logger *zap.Logger, metrics observability.MetricsRegistry, interceptors ...Interceptor) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NoOpRegistry{}
	}
	return &Chain{
		interceptors: interceptors,
		logger:       logger,
		metrics:      metrics,
		tracer:       observability.Tracer("pipeline"),
	}
}

// Interceptors returns the interceptors in execution order.
func (c *Chain) Interceptors() []Interceptor {
	return c.interceptors
}

// Run executes the chain against resp. It stops early when ctx is done, when
// an interceptor fails, or when an interceptor skips bidding. The returned
// trace covers every interceptor that ran.
func (c *Chain) Run(ctx context.Context, req *Request, resp *bidding.BidResponse) (*Trace, error) {
	tr := &Trace{}
	for _, ic := range c.interceptors {
		if err := ctx.Err(); err != nil {
			return tr, fmt.Errorf("before %s: %w", ic.Name(), err)
		}
		if err := c.runOne(ctx, ic, req, resp, tr); err != nil {
			return tr, err
		}
		if Skipped(resp) {
			tr.Annotate("skip", fmt.Sprint(NoBidReason(resp)))
			break
		}
	}
	return tr, nil
}

func (c *Chain) runOne(ctx context.Context, ic Interceptor, req *Request, resp *bidding.BidResponse, tr *Trace) error {
	name := ic.Name()
	ctx, span := c.tracer.Start(ctx, "interceptor."+name)
	defer span.End()

	before := resp.BidCount()
	start := time.Now()
	err := ic.Intercept(ctx, req, resp)
	elapsed := time.Since(start)
	after := resp.BidCount()

	c.metrics.RecordInterceptorLatency(name, elapsed)
	if after < before {
		c.metrics.AddBidsRemoved(name, before-after)
	}
	tr.AddStep(name, before, after, elapsed)
	span.SetAttributes(
		attribute.String("exchange", req.Exchange.Name()),
		attribute.Int("bids.before", before),
		attribute.Int("bids.after", after),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("interceptor failed",
			zap.String("interceptor", name),
			zap.String("request_id", req.OpenRTB.ID),
			zap.Error(err))
		return fmt.Errorf("interceptor %s: %w", name, err)
	}
	return nil
}
