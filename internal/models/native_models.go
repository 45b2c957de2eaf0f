package models

// NativeResponse is the reply format for exchanges that speak a vendor-specific
// native protocol instead of OpenRTB. Bids are flattened into ads, each naming
// the slots it competes for with a price in micros of the account currency.
type NativeResponse struct {
	Ads              []NativeAd `json:"ad"`
	Currency         string     `json:"currency,omitempty"` // Currency of every max_cpm_micros in the response.
	ProcessingTimeMS int        `json:"processing_time_ms,omitempty"`
	DebugString      string     `json:"debug_string,omitempty"`
}

// NativeAd is one creative offered to the exchange.
type NativeAd struct {
	BuyerCreativeID string   `json:"buyer_creative_id,omitempty"`
	HTMLSnippet     string   `json:"html_snippet,omitempty"`
	ClickThroughURL []string `json:"click_through_url,omitempty"` // Advertiser domains the creative lands on.
	Width           int      `json:"width,omitempty"`
	Height          int      `json:"height,omitempty"`
	// BuyerSeat names the seat the ad is bid on behalf of. Empty for the anonymous seat.
	BuyerSeat string `json:"buyer_seat,omitempty"`
	// ImpressionTrackingURL lists URLs pinged when the ad renders.
	ImpressionTrackingURL []string `json:"impression_tracking_url,omitempty"`
	AdSlot                []AdSlot `json:"adslot"`
}

// AdSlot is a bid on a single slot of the request.
type AdSlot struct {
	ID           string `json:"id"`             // Mirrors Impression.ID.
	MaxCPMMicros int64  `json:"max_cpm_micros"` // Bid price, CPM * 1,000,000.
	DealID       string `json:"deal_id,omitempty"`
}
