package macros

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testContext() *Context {
	return &Context{
		RequestID:  "req-1",
		ImpID:      "imp-1",
		BidID:      "bid-1",
		Exchange:   "openx",
		Seat:       "seat a",
		CreativeID: "42",
		LineItemID: 7,
		Timestamp:  time.Unix(1_700_000_000, 0),
		KeyValues:  map[string]string{"section": "sports"},
	}
}

func TestExpandDefaults(t *testing.T) {
	e := NewExpander(zap.NewNop(), nil, false)
	out, err := e.Expand("https://t/?r={REQUEST_ID}&i={IMP_ID}&b={BID_ID}&s={SEAT}&c={CREATIVE_ID}&l={LINE_ITEM_ID}&t={TIMESTAMP}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "https://t/?r=req-1&i=imp-1&b=bid-1&s=seat+a&c=42&l=7&t=1700000000", out)
}

func TestExpandLeavesAuctionPrice(t *testing.T) {
	e := NewExpander(zap.NewNop(), nil, false)
	out, err := e.Expand("https://w/?p=${AUCTION_PRICE}&r={REQUEST_ID}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "https://w/?p=${AUCTION_PRICE}&r=req-1", out)
}

func TestExpandUUID(t *testing.T) {
	e := NewExpander(zap.NewNop(), nil, false)
	out, err := e.Expand("{UUID}", testContext())
	require.NoError(t, err)
	_, err = uuid.Parse(out)
	assert.NoError(t, err)
}

func TestExpandKeyValues(t *testing.T) {
	e := NewExpander(zap.NewNop(), nil, false)
	out, err := e.Expand("sec={KV.section}&x={KV.missing}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "sec=sports&x={KV.missing}", out)

	strict := NewExpander(zap.NewNop(), nil, true)
	_, err = strict.Expand("x={KV.missing}", testContext())
	assert.Error(t, err)
}

func TestExpandNoMacros(t *testing.T) {
	e := NewExpander(zap.NewNop(), nil, false)
	out, err := e.Expand("<div>plain</div>", testContext())
	require.NoError(t, err)
	assert.Equal(t, "<div>plain</div>", out)
}

func TestRegisterMacro(t *testing.T) {
	e := NewExpander(zap.NewNop(), nil, true)
	require.NoError(t, e.RegisterMacro("ECHO", func(*Context) (string, error) { return "hi", nil }))
	require.NoError(t, e.RegisterMacro("FAIL", func(*Context) (string, error) { return "", errors.New("nope") }))
	assert.Error(t, e.RegisterMacro("", func(*Context) (string, error) { return "", nil }))
	assert.Error(t, e.RegisterMacro("NIL", nil))
	assert.Contains(t, e.Macros(), "ECHO")

	out, err := e.Expand("{ECHO}{ECHO}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "hihi", out)

	_, err = e.Expand("{FAIL}", testContext())
	assert.Error(t, err)

	lenient := NewExpander(zap.NewNop(), nil, false)
	require.NoError(t, lenient.RegisterMacro("FAIL", func(*Context) (string, error) { return "", errors.New("nope") }))
	out, err = lenient.Expand("a{FAIL}b", testContext())
	require.NoError(t, err)
	assert.Equal(t, "a{FAIL}b", out)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, placeholders("{A}x{B}{A}{}{unterminated"))
	assert.Nil(t, placeholders("none"))
}
