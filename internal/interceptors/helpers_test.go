package interceptors

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/pipeline"
	"github.com/patrickwarner/openbidder/internal/platform"
	"github.com/patrickwarner/openbidder/internal/transport"
)

const (
	chromeUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.75 Safari/537.36"
	iphoneUA    = "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/605.1.15"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func newRequest(t *testing.T, ex platform.Exchange, ortb *models.OpenRTBRequest) (*pipeline.Request, *bidding.BidResponse) {
	t.Helper()
	resp, err := bidding.NewBuilder().SetExchange(ex).SetHTTPResponse(transport.NewResponseBuilder()).Build()
	require.NoError(t, err)
	return &pipeline.Request{Exchange: ex, OpenRTB: ortb}, resp
}

func bannerRequest(imps ...models.Impression) *models.OpenRTBRequest {
	return &models.OpenRTBRequest{
		ID:     "req-1",
		Imp:    imps,
		User:   models.User{ID: "user-1"},
		Device: models.Device{UA: chromeUA, IP: "10.0.0.1"},
	}
}

func testCatalog(t *testing.T) *models.InMemoryCatalog {
	t.Helper()
	c := models.NewInMemoryCatalog()
	require.NoError(t, c.ReloadAll(
		[]models.LineItem{
			{ID: 1, CampaignID: 100, Seat: "alpha", CPM: 2.0, Active: true, ADomain: []string{"alpha.com"}},
			{ID: 2, CampaignID: 200, Seat: "beta", CPM: 0.4, Active: true, DeviceType: "mobile"},
			{ID: 3, CampaignID: 300, Seat: "", CPM: 1.0, Active: true, FrequencyCap: 1},
		},
		[]models.Creative{
			{ID: 10, LineItemID: 1, Width: 300, Height: 250, Format: "html", HTML: "<div>{REQUEST_ID}</div>", ClickURL: "https://alpha.com/c?b={BID_ID}"},
			{ID: 20, LineItemID: 2, Width: 300, Height: 250, Format: "html", HTML: "<div>beta</div>"},
			{ID: 30, LineItemID: 3, Width: 300, Height: 250, Format: "banner", Banner: json.RawMessage(`{"image":"https://cdn/x.png"}`)},
			{ID: 31, LineItemID: 3, Width: 728, Height: 90, Format: "banner", Banner: json.RawMessage(`{}`)},
		},
	))
	return c
}
