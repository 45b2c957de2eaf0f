package bidding

import (
	"errors"
	"slices"
	"testing"

	"github.com/patrickwarner/openbidder/internal/platform"
	"github.com/patrickwarner/openbidder/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResponse(t *testing.T, exchange platform.Exchange) *BidResponse {
	t.Helper()
	resp, err := NewBuilder().
		SetExchange(exchange).
		SetHTTPResponse(transport.NewResponseBuilder()).
		Build()
	require.NoError(t, err)
	return resp
}

func htmlBid(id string, price float64) *Bid {
	return &Bid{
		ID:    id,
		AdID:  "ad" + id,
		ImpID: "imp" + id,
		Price: price,
	}
}

func alwaysTrue(*Bid) bool  { return true }
func alwaysFalse(*Bid) bool { return false }

func TestBuilder(t *testing.T) {
	b := NewBuilder().
		SetExchange(platform.NoExchange).
		SetHTTPResponse(transport.NewResponseBuilder())
	assert.Equal(t, platform.NoExchange, b.Exchange())
	assert.NotNil(t, b.HTTPResponse())

	resp, err := b.Build()
	require.NoError(t, err)

	again, err := resp.ToBuilder().Build()
	require.NoError(t, err)
	assert.Equal(t, resp.Exchange(), again.Exchange())
	assert.Equal(t, resp.HTTPResponse(), again.HTTPResponse())
	assert.NotSame(t, resp.HTTPResponse(), again.HTTPResponse())
}

func TestBuilderMissingFields(t *testing.T) {
	_, err := NewBuilder().SetHTTPResponse(transport.NewResponseBuilder()).Build()
	assert.True(t, errors.Is(err, ErrMissingExchange))

	_, err = NewBuilder().SetExchange(platform.NoExchange).Build()
	assert.True(t, errors.Is(err, ErrMissingHTTPResponse))
}

func TestBuilderRejectsNilExchangePointer(t *testing.T) {
	var ex *platform.OpenRTBExchange
	_, err := NewBuilder().
		SetExchange(ex).
		SetHTTPResponse(transport.NewResponseBuilder()).
		Build()
	assert.ErrorIs(t, err, ErrMissingExchange)
}

func TestBuilderReuseDoesNotShareEnvelope(t *testing.T) {
	proto := NewBuilder().
		SetExchange(platform.NewOpenRTBExchange("x")).
		SetHTTPResponse(transport.NewResponseBuilder().SetHeader("X-Bidder", "ob"))

	first, err := proto.Build()
	require.NoError(t, err)
	second, err := proto.Build()
	require.NoError(t, err)

	first.HTTPResponse().SetHeader("X-Bidder", "changed")
	assert.Equal(t, "ob", second.HTTPResponse().Header().Get("X-Bidder"))
	assert.Equal(t, "ob", proto.HTTPResponse().Header().Get("X-Bidder"))
}

func TestToBuilderCopiesEnvelope(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	resp.HTTPResponse().SetHeader("X-A", "1")

	b := resp.ToBuilder()
	b.HTTPResponse().SetHeader("X-A", "2")
	assert.Equal(t, "1", resp.HTTPResponse().Header().Get("X-A"))
}

func TestResponse(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange).
		PutMetadata("c", 30).
		PutAllMetadata(map[string]any{})
	assert.Equal(t, platform.NoExchange, resp.Exchange())
	assert.NotNil(t, resp.HTTPResponse())
	assert.Equal(t, map[string]any{"c": 30}, resp.Metadata())

	resp.OpenRTB().Cur = "USD"
	resp.Seat("unused")
	assert.NotNil(t, resp.Seat(DefaultSeat))
	assert.NotNil(t, resp.Seat("x"))
	assert.Empty(t, resp.Bids(DefaultSeat))

	bid1 := htmlBid("1", 0.1)
	resp.AddBid(DefaultSeat, bid1)
	bid2 := htmlBid("2", 0.1)
	resp.AddBid("x", bid2)

	assert.Empty(t, resp.Bids("none"))
	assert.Same(t, bid1, resp.BidWithID(DefaultSeat, "1"))
	assert.Same(t, bid1, resp.BidWithAdID(DefaultSeat, "ad1"))
	assert.Same(t, bid2, resp.BidWithID("x", "2"))
	assert.Same(t, bid2, resp.BidWithAdID("x", "ad2"))
	assert.Nil(t, resp.BidWithAdID("x", "ad1"))
	assert.Nil(t, resp.BidWithAdID("none", "ad1"))

	goodBids := func(b *Bid) bool { return b.ID != "unused" }
	assert.Len(t, slices.Collect(resp.BidsWith(DefaultSeat, goodBids)), 1)
	assert.Len(t, slices.Collect(resp.AllBidsWith(goodBids)), 2)
	assert.Empty(t, slices.Collect(resp.BidsWith("none", goodBids)))
	assert.Equal(t, "USD", resp.OpenRTB().Cur)
}

func TestSeatScenario(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	resp.AddBid(DefaultSeat, &Bid{ID: "1", AdID: "ad1", Price: 0.1})
	resp.AddBid("x", &Bid{ID: "2", AdID: "ad2", Price: 0.1})

	assert.Len(t, resp.Bids(DefaultSeat), 1)
	assert.Len(t, resp.Bids("x"), 1)
	assert.Equal(t, "1", resp.BidWithID(DefaultSeat, "1").ID)
	assert.Nil(t, resp.BidWithID("x", "none"))
	assert.Equal(t, 2, resp.BidCount())
}

func TestReadsDoNotCreateSeats(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)

	assert.Nil(t, resp.Bids("ghost"))
	assert.Nil(t, resp.BidWithID("ghost", "1"))
	assert.Nil(t, resp.BidWithAdID("ghost", "ad1"))
	assert.Empty(t, slices.Collect(resp.BidsWith("ghost", alwaysTrue)))
	assert.False(t, resp.FilterBids("ghost", alwaysFalse))
	assert.False(t, resp.UpdateBids("ghost", func(*Bid) bool { return true }))

	assert.Equal(t, ResponseModeNone, resp.ResponseMode())
	assert.Empty(t, resp.Seats())

	resp.Seat("real")
	assert.False(t, resp.FilterBids("ghost", alwaysFalse))
	ids := []string{}
	for _, s := range resp.Seats() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"real"}, ids)
}

func TestEmptySeatDiffersFromMissingSeat(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	resp.Seat("empty")

	require.Len(t, resp.Seats(), 1)
	assert.Equal(t, "empty", resp.Seats()[0].ID)
	assert.Equal(t, 0, resp.Seats()[0].Len())
	assert.Empty(t, resp.Bids("empty"))
}

func TestBidsPreserveInsertionOrder(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	ids := []string{"c", "a", "b", "a", "d"}
	for i, id := range ids {
		resp.AddBid("s", &Bid{ID: id, Price: float64(i)})
	}

	got := []string{}
	for _, b := range resp.Bids("s") {
		got = append(got, b.ID)
	}
	assert.Equal(t, ids, got)

	first := resp.BidWithID("s", "a")
	require.NotNil(t, first)
	assert.Equal(t, 1.0, first.Price)
}

func TestBidsSliceCannotGrowSeat(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	resp.AddBid(DefaultSeat, htmlBid("1", 1))

	bids := resp.Bids(DefaultSeat)
	_ = append(bids, htmlBid("2", 1))
	resp.AddBid(DefaultSeat, htmlBid("3", 1))

	assert.Equal(t, "3", resp.Bids(DefaultSeat)[1].ID)
}

func TestBidWithEmptyAdID(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	resp.AddBid(DefaultSeat, htmlBid("1", 1))
	resp.AddBid(DefaultSeat, &Bid{ID: "no-creative"})
	resp.AddBid(DefaultSeat, &Bid{ID: "no-creative-2"})

	b := resp.BidWithAdID(DefaultSeat, "")
	require.NotNil(t, b)
	assert.Equal(t, "no-creative", b.ID)
}

func TestBids(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	resp.AddBid(DefaultSeat, &Bid{ID: "1"})
	resp.AddBid("x", &Bid{ID: "2"})

	assert.Len(t, resp.Bids(DefaultSeat), 1)
	assert.Len(t, resp.Bids("x"), 1)
	assert.NotNil(t, resp.BidWithID(DefaultSeat, "1"))
	assert.NotNil(t, resp.BidWithID("x", "2"))
	assert.Nil(t, resp.BidWithID(DefaultSeat, "none"))
	assert.Nil(t, resp.BidWithID("x", "none"))

	assert.NotEmpty(t, slices.Collect(resp.BidsWith(DefaultSeat, func(b *Bid) bool { return b.ID == "1" })))
	assert.NotEmpty(t, slices.Collect(resp.BidsWith("x", func(b *Bid) bool { return b.ID == "2" })))
	assert.Empty(t, slices.Collect(resp.BidsWith(DefaultSeat, alwaysFalse)))
	assert.Empty(t, slices.Collect(resp.BidsWith("x", alwaysFalse)))
	assert.Empty(t, slices.Collect(resp.BidsWith("none", alwaysFalse)))
}

func TestBidsWithIsLazyAndRestartable(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	for _, id := range []string{"1", "2", "3"} {
		resp.AddBid(DefaultSeat, htmlBid(id, 1))
	}

	visited := 0
	seq := resp.BidsWith(DefaultSeat, func(*Bid) bool {
		visited++
		return true
	})
	assert.Equal(t, 0, visited)

	for b := range seq {
		assert.Equal(t, "1", b.ID)
		break
	}
	assert.Equal(t, 1, visited)

	assert.Len(t, slices.Collect(seq), 3)
	assert.Len(t, slices.Collect(seq), 3)
}

func TestFilter(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange).
		AddBid(DefaultSeat, htmlBid("1", 0.1)).
		AddBid(DefaultSeat, htmlBid("2", 0.1)).
		AddBid(DefaultSeat, htmlBid("3", 0.2))
	resp.Seat("unused")

	assert.False(t, resp.FilterBids(DefaultSeat, alwaysTrue))
	assert.Len(t, resp.Bids(DefaultSeat), 3)
	assert.Len(t, resp.Seats(), 2)

	resp.AddBid("x", htmlBid("unused", 0.1))
	resp.AddBid("x", htmlBid("4", 0.1))
	assert.True(t, resp.FilterBids("x", func(b *Bid) bool { return b.ID != "4" }))
	require.Len(t, resp.Bids("x"), 1)
	assert.Equal(t, "unused", resp.Bids("x")[0].ID)
}

func TestFilterIsIdempotent(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		resp.AddBid(DefaultSeat, &Bid{ID: id, Price: float64(i)})
	}
	cheap := func(b *Bid) bool { return b.Price < 2 || b.ID == "e" }

	assert.True(t, resp.FilterBids(DefaultSeat, cheap))
	once := slices.Clone(resp.Bids(DefaultSeat))
	assert.False(t, resp.FilterBids(DefaultSeat, cheap))
	assert.Equal(t, once, resp.Bids(DefaultSeat))

	got := []string{}
	for _, b := range once {
		got = append(got, b.ID)
	}
	assert.Equal(t, []string{"a", "b", "e"}, got)
}

func TestFilterDoesNotDisturbEarlierSnapshot(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	resp.AddBid(DefaultSeat, htmlBid("1", 1))
	resp.AddBid(DefaultSeat, htmlBid("2", 2))

	before := resp.Bids(DefaultSeat)
	resp.FilterBids(DefaultSeat, func(b *Bid) bool { return b.ID == "2" })

	assert.Equal(t, "1", before[0].ID)
	assert.Equal(t, "2", before[1].ID)
	assert.Len(t, resp.Bids(DefaultSeat), 1)
}

func TestFilterToEmptyKeepsSeat(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	resp.AddBid("x", htmlBid("1", 1))

	assert.True(t, resp.FilterBids("x", alwaysFalse))
	assert.Empty(t, resp.Bids("x"))
	assert.Len(t, resp.Seats(), 1)
}

func TestUpdater(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	noUpdates := func(*Bid) bool { return false }
	assert.False(t, resp.UpdateAllBids(noUpdates))
	assert.False(t, resp.UpdateBids(DefaultSeat, noUpdates))
}

func TestUpdateVisitsEveryBid(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	resp.AddBid(DefaultSeat, htmlBid("1", 1))
	resp.AddBid(DefaultSeat, htmlBid("2", 2))
	resp.AddBid("x", htmlBid("3", 3))

	visited := 0
	assert.False(t, resp.UpdateAllBids(func(*Bid) bool {
		visited++
		return false
	}))
	assert.Equal(t, 3, visited)

	doubleFirst := func(b *Bid) bool {
		if b.ID != "1" {
			return false
		}
		b.Price *= 2
		return true
	}
	assert.True(t, resp.UpdateBids(DefaultSeat, doubleFirst))
	assert.Equal(t, 2.0, resp.BidWithID(DefaultSeat, "1").Price)
	assert.False(t, resp.UpdateBids("x", doubleFirst))

	visited = 0
	assert.True(t, resp.UpdateAllBids(func(b *Bid) bool {
		visited++
		return b.ID == "1"
	}))
	assert.Equal(t, 3, visited)
}

func TestAddBid(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	bid := &Bid{ID: "1", ImpID: "1", Price: 1.0}
	resp.AddBid(DefaultSeat, bid)
	resp.AddBid("x", bid)

	assert.Same(t, bid, resp.BidWithID(DefaultSeat, "1"))
	assert.Same(t, bid, resp.BidWithID("x", "1"))
}

func TestMetadataIsLiveAndLastWriteWins(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	md := resp.Metadata()

	resp.PutMetadata("k", 1)
	resp.PutAllMetadata(map[string]any{"k": 2, "other": "v"})

	assert.Equal(t, 2, md["k"])
	assert.Equal(t, "v", md["other"])
}
