package bidding

import (
	"errors"
	"testing"

	"github.com/patrickwarner/openbidder/internal/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseModeString(t *testing.T) {
	assert.Equal(t, "none", ResponseModeNone.String())
	assert.Equal(t, "openrtb", ResponseModeOpenRTB.String())
	assert.Equal(t, "native", ResponseModeNative.String())
	assert.Equal(t, "mode(9)", ResponseMode(9).String())
}

func TestNativeThenOpenRTB(t *testing.T) {
	resp := newTestResponse(t, platform.NewOpenRTBExchange("x"))
	assert.Equal(t, ResponseModeNone, resp.ResponseMode())

	n, err := resp.AsNative()
	require.NoError(t, err)
	assert.Equal(t, ResponseModeNative, resp.ResponseMode())

	again, err := resp.AsNative()
	require.NoError(t, err)
	assert.Same(t, n, again)

	_, err = resp.AsOpenRTB()
	assert.True(t, errors.Is(err, ErrResponseModeConflict))
	assert.Contains(t, err.Error(), "openrtb requested but native is active")
	assert.Nil(t, resp.OpenRTB())
	assert.Equal(t, ResponseModeNative, resp.ResponseMode())
}

func TestOpenRTBThenNative(t *testing.T) {
	resp := newTestResponse(t, platform.NewOpenRTBExchange("x"))
	assert.Equal(t, ResponseModeNone, resp.ResponseMode())

	o, err := resp.AsOpenRTB()
	require.NoError(t, err)
	assert.Equal(t, ResponseModeOpenRTB, resp.ResponseMode())
	o.Cur = "USD"
	resp.AddBid(DefaultSeat, htmlBid("1", 1))

	again, err := resp.AsOpenRTB()
	require.NoError(t, err)
	assert.Same(t, o, again)
	assert.Equal(t, "USD", again.Cur)
	assert.Len(t, again.Seats(), 1)

	_, err = resp.AsNative()
	assert.ErrorIs(t, err, ErrResponseModeConflict)
	assert.Nil(t, resp.Native())
	assert.Equal(t, ResponseModeOpenRTB, resp.ResponseMode())
}

func TestProbeBeforeCommitCreates(t *testing.T) {
	resp := newTestResponse(t, platform.NoExchange)
	n := resp.Native()
	require.NotNil(t, n)
	assert.Equal(t, ResponseModeNative, resp.ResponseMode())
	assert.Same(t, n, resp.Native())
}

func TestWriterCommitsExchangeProtocol(t *testing.T) {
	native := newTestResponse(t, platform.NewNativeExchange("adx"))
	native.AddBid(DefaultSeat, htmlBid("1", 1))
	assert.Equal(t, ResponseModeNative, native.ResponseMode())
	require.NotNil(t, native.Native())
	assert.Len(t, native.Native().Seats(), 1)

	ortb := newTestResponse(t, platform.NewOpenRTBExchange("openx"))
	ortb.Seat("x")
	assert.Equal(t, ResponseModeOpenRTB, ortb.ResponseMode())
}

func TestWriterUsesExplicitMode(t *testing.T) {
	resp := newTestResponse(t, platform.NewOpenRTBExchange("openx"))
	n, err := resp.AsNative()
	require.NoError(t, err)

	resp.AddBid("x", htmlBid("1", 1))
	require.Len(t, n.Seats(), 1)
	assert.Equal(t, "x", n.Seats()[0].ID)
}

func TestReadersDoNotCommit(t *testing.T) {
	resp := newTestResponse(t, platform.NewNativeExchange("adx"))
	resp.Bids(DefaultSeat)
	resp.BidWithID(DefaultSeat, "1")
	resp.FilterBids(DefaultSeat, alwaysTrue)
	resp.UpdateAllBids(func(*Bid) bool { return false })
	assert.Equal(t, 0, resp.BidCount())
	assert.Equal(t, ResponseModeNone, resp.ResponseMode())

	_, err := resp.AsOpenRTB()
	assert.NoError(t, err)
}
