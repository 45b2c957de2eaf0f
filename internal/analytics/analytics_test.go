package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/pipeline"
	"github.com/patrickwarner/openbidder/internal/platform"
	"github.com/patrickwarner/openbidder/internal/transport"
)

func fixture(t *testing.T) (*pipeline.Request, *bidding.BidResponse) {
	t.Helper()
	ex := platform.NewOpenRTBExchange("openx")
	resp, err := bidding.NewBuilder().SetExchange(ex).SetHTTPResponse(transport.NewResponseBuilder()).Build()
	require.NoError(t, err)
	req := &pipeline.Request{
		Exchange:  ex,
		OpenRTB:   &models.OpenRTBRequest{ID: "r1", Imp: []models.Impression{{ID: "1"}}, Cur: []string{"EUR"}},
		Targeting: &models.TargetingContext{DeviceType: "mobile", Country: "US"},
	}
	return req, resp
}

func TestResponseEventsBids(t *testing.T) {
	req, resp := fixture(t)
	resp.AddBid("a", &bidding.Bid{ID: "b1", ImpID: "1", Price: 1.5, CrID: "10"})
	resp.AddBid("b", &bidding.Bid{ID: "b2", ImpID: "1", Price: 2})
	pipeline.TagLineItem(resp, "b1", 7)

	now := time.Unix(1_700_000_000, 0)
	events := ResponseEvents(req, resp, now)
	require.Len(t, events, 2)
	assert.Equal(t, Event{
		Timestamp: now, EventType: EventBid, Exchange: "openx", RequestID: "r1", ImpID: "1",
		BidID: "b1", Seat: "a", LineItemID: 7, CreativeID: "10", Price: 1.5, Currency: "EUR",
		DeviceType: "mobile", Country: "US",
	}, events[0])
	assert.Equal(t, "b", events[1].Seat)
	assert.Zero(t, events[1].LineItemID)
}

func TestResponseEventsNoBid(t *testing.T) {
	req, resp := fixture(t)
	pipeline.SkipBidding(resp, models.NoBidNonHuman)

	events := ResponseEvents(req, resp, time.Now())
	require.Len(t, events, 1)
	assert.Equal(t, EventNoBid, events[0].EventType)
	assert.Equal(t, models.NoBidNonHuman, events[0].NoBidReason)
}

func TestRecordEventsUnavailable(t *testing.T) {
	var a *Analytics
	assert.ErrorIs(t, a.RecordEvents(context.Background(), []Event{{}}), ErrUnavailable)
	assert.NoError(t, a.Close())
}

func TestMockAnalytics(t *testing.T) {
	m := NewMockAnalytics()
	require.NoError(t, m.RecordEvents(context.Background(), []Event{{EventType: EventWin}}))
	assert.Len(t, m.Events(), 1)

	m.Err = ErrUnavailable
	assert.ErrorIs(t, m.RecordEvents(context.Background(), nil), ErrUnavailable)
}
