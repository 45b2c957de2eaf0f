package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/platform"
	"github.com/patrickwarner/openbidder/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcInterceptor struct {
	name string
	fn   func(context.Context, *Request, *bidding.BidResponse) error
}

func (f funcInterceptor) Name() string { return f.name }
func (f funcInterceptor) Intercept(ctx context.Context, req *Request, resp *bidding.BidResponse) error {
	return f.fn(ctx, req, resp)
}

func newFixture(t *testing.T) (*Request, *bidding.BidResponse) {
	t.Helper()
	ex := platform.NewOpenRTBExchange("x")
	resp, err := bidding.NewBuilder().SetExchange(ex).SetHTTPResponse(transport.NewResponseBuilder()).Build()
	require.NoError(t, err)
	req := &Request{Exchange: ex, OpenRTB: &models.OpenRTBRequest{ID: "r1", Imp: []models.Impression{{ID: "1"}}}}
	return req, resp
}

func TestChainRunsInOrder(t *testing.T) {
	req, resp := newFixture(t)
	var order []string
	add := func(name string, n int) Interceptor {
		return funcInterceptor{name, func(_ context.Context, _ *Request, r *bidding.BidResponse) error {
			order = append(order, name)
			for i := 0; i < n; i++ {
				r.AddBid("s", &bidding.Bid{ID: name})
			}
			return nil
		}}
	}
	drop := funcInterceptor{"drop", func(_ context.Context, _ *Request, r *bidding.BidResponse) error {
		order = append(order, "drop")
		r.FilterBids("s", func(b *bidding.Bid) bool { return b.ID != "a" })
		return nil
	}}

	tr, err := NewChain(nil, nil, add("a", 2), add("b", 1), drop).Run(context.Background(), req, resp)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "drop"}, order)
	assert.Equal(t, 1, resp.BidCount())
	require.Len(t, tr.Steps, 3)
	assert.Equal(t, 3, tr.Steps[2].BidsBefore)
	assert.Equal(t, 1, tr.Steps[2].BidsAfter)
}

func TestChainStopsOnError(t *testing.T) {
	req, resp := newFixture(t)
	boom := errors.New("boom")
	ran := false
	chain := NewChain(nil, nil,
		funcInterceptor{"fail", func(context.Context, *Request, *bidding.BidResponse) error { return boom }},
		funcInterceptor{"after", func(context.Context, *Request, *bidding.BidResponse) error { ran = true; return nil }},
	)
	_, err := chain.Run(context.Background(), req, resp)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "interceptor fail")
	assert.False(t, ran)
}

func TestChainStopsOnSkip(t *testing.T) {
	req, resp := newFixture(t)
	ran := false
	chain := NewChain(nil, nil,
		funcInterceptor{"skip", func(_ context.Context, _ *Request, r *bidding.BidResponse) error {
			SkipBidding(r, models.NoBidKnownSpider)
			return nil
		}},
		funcInterceptor{"after", func(context.Context, *Request, *bidding.BidResponse) error { ran = true; return nil }},
	)
	tr, err := chain.Run(context.Background(), req, resp)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.True(t, Skipped(resp))
	assert.Equal(t, models.NoBidKnownSpider, NoBidReason(resp))
	require.Len(t, tr.Steps, 1)
	assert.Equal(t, "3", tr.Steps[0].Details["skip"])
}

func TestChainStopsOnContextDone(t *testing.T) {
	req, resp := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	chain := NewChain(nil, nil,
		funcInterceptor{"cancel", func(context.Context, *Request, *bidding.BidResponse) error { cancel(); return nil }},
		funcInterceptor{"after", func(context.Context, *Request, *bidding.BidResponse) error { ran = true; return nil }},
	)
	_, err := chain.Run(ctx, req, resp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestNoBidReasonDefault(t *testing.T) {
	_, resp := newFixture(t)
	assert.False(t, Skipped(resp))
	assert.Equal(t, models.NoBidUnknown, NoBidReason(resp))
}

func TestRequestHelpers(t *testing.T) {
	req, _ := newFixture(t)
	assert.NotNil(t, req.Imp("1"))
	assert.Nil(t, req.Imp("2"))

	req.OpenRTB.User = models.User{ID: "ex"}
	assert.Equal(t, "ex", req.UserID())
	req.OpenRTB.User.BuyerUID = "ours"
	assert.Equal(t, "ours", req.UserID())
}

func TestTraceNilSafe(t *testing.T) {
	var tr *Trace
	tr.AddStep("x", 0, 0, 0)
	tr.Annotate("k", "v")
	assert.Nil(t, tr)
}

func TestLineItemTags(t *testing.T) {
	_, resp := newFixture(t)
	_, ok := LineItemOf(resp, "b1")
	assert.False(t, ok)

	TagLineItem(resp, "b1", 7)
	TagLineItem(resp, "b2", 8)
	id, ok := LineItemOf(resp, "b1")
	assert.True(t, ok)
	assert.Equal(t, 7, id)
	id, _ = LineItemOf(resp, "b2")
	assert.Equal(t, 8, id)
}
