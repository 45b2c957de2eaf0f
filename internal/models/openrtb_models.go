package models

import "encoding/json"

// OpenRTBRequest is the subset of the IAB OpenRTB 2.5 Bid Request object the bidder reads.
// Exchanges speaking a native protocol are translated into this shape before bidding.
type OpenRTBRequest struct {
	ID     string       `json:"id"`             // Auction ID assigned by the exchange. Echoed back in the response.
	Imp    []Impression `json:"imp"`            // Impressions offered in this auction. At least one is required.
	Site   *Site        `json:"site,omitempty"` // Site the impression appears on, when the request is for web inventory.
	User   User         `json:"user"`
	Device Device       `json:"device"`
	// Cur lists the currencies the exchange accepts. The first entry is used for the response.
	Cur  []string `json:"cur,omitempty"`
	TMax int      `json:"tmax,omitempty"` // Maximum time in milliseconds the exchange waits for a reply.
	Test int      `json:"test,omitempty"` // 1 marks a test auction; bids are not billable.
	// BSeat lists seats the exchange does not want bids from.
	BSeat []string   `json:"bseat,omitempty"`
	Ext   RequestExt `json:"ext,omitempty"`
}

// Impression object represents an ad slot up for auction.
type Impression struct {
	ID     string  `json:"id"`              // Unique ID for this impression within the request.
	TagID  string  `json:"tagid,omitempty"` // Exchange-side identifier of the placement.
	W      int     `json:"w,omitempty"`
	H      int     `json:"h,omitempty"`
	Banner *Banner `json:"banner,omitempty"`
	// BidFloor is the minimum CPM accepted for this impression, in BidFloorCur.
	BidFloor    float64 `json:"bidfloor,omitempty"`
	BidFloorCur string  `json:"bidfloorcur,omitempty"`
}

// Size returns the requested width and height, preferring the banner object
// and its first format over the legacy impression-level fields.
func (i Impression) Size() (int, int) {
	if i.Banner != nil {
		if i.Banner.W > 0 && i.Banner.H > 0 {
			return i.Banner.W, i.Banner.H
		}
		if len(i.Banner.Format) > 0 {
			return i.Banner.Format[0].W, i.Banner.Format[0].H
		}
	}
	return i.W, i.H
}

// Banner describes a display impression.
type Banner struct {
	W      int      `json:"w,omitempty"`
	H      int      `json:"h,omitempty"`
	Format []Format `json:"format,omitempty"` // Accepted sizes, in order of preference.
}

// Format is one accepted banner size.
type Format struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Site identifies the publisher property.
type Site struct {
	ID     string `json:"id,omitempty"`
	Domain string `json:"domain,omitempty"`
	Page   string `json:"page,omitempty"`
}

// User object contains information about the user the impression is shown to.
type User struct {
	ID       string `json:"id"`                 // Exchange-specific user ID.
	BuyerUID string `json:"buyeruid,omitempty"` // Bidder's own ID for the user, from cookie sync.
}

// Device object provides information about the user's device.
type Device struct {
	UA string `json:"ua"` // User-Agent string. Used for device, OS, and browser targeting.
	IP string `json:"ip"` // IPv4 address of the device. Used for geo-targeting.
}

// RequestExt carries exchange-specific extensions.
type RequestExt struct {
	// KV holds free-form key-values the exchange forwards from the publisher.
	KV map[string]string `json:"kv,omitempty"`
}

// OpenRTBResponse is the IAB OpenRTB 2.5 Bid Response written back to OpenRTB exchanges.
type OpenRTBResponse struct {
	ID         string    `json:"id"`                // ID of the bid request this responds to.
	SeatBid    []SeatBid `json:"seatbid,omitempty"` // One entry per seat that placed at least one bid.
	BidID      string    `json:"bidid,omitempty"`   // Bidder-generated response ID, echoed in win notices.
	Cur        string    `json:"cur,omitempty"`
	CustomData string    `json:"customdata,omitempty"`
	// Nbr (No-Bid Reason) code. Included when no bid is returned.
	Nbr int `json:"nbr,omitempty"`
}

// SeatBid groups the bids of one buyer seat.
type SeatBid struct {
	Bid  []Bid  `json:"bid"`
	Seat string `json:"seat,omitempty"` // Empty for the bidder's anonymous seat.
}

// Bid is one offer for an impression.
type Bid struct {
	ID    string  `json:"id"`
	ImpID string  `json:"impid"` // Mirrors Impression.ID.
	Price float64 `json:"price"` // CPM in the response currency.
	// NURL is the win notice URL the exchange calls when the bid wins.
	NURL string `json:"nurl,omitempty"`
	// BURL is the billing notice URL called when the impression is billable.
	BURL    string          `json:"burl,omitempty"`
	AdM     string          `json:"adm,omitempty"`  // Ad markup.
	AdID    string          `json:"adid,omitempty"` // Preloaded ad ID, used to correlate clicks and impressions.
	ADomain []string        `json:"adomain,omitempty"`
	CID     string          `json:"cid,omitempty"`  // Campaign ID.
	CrID    string          `json:"crid,omitempty"` // Creative ID.
	DealID  string          `json:"dealid,omitempty"`
	W       int             `json:"w,omitempty"`
	H       int             `json:"h,omitempty"`
	Ext     json.RawMessage `json:"ext,omitempty"`
}

// No-bid reason codes from OpenRTB 2.5 section 5.24.
const (
	NoBidUnknown        = 0
	NoBidTechnicalError = 1
	NoBidInvalidRequest = 2
	NoBidKnownSpider    = 3
	NoBidNonHuman       = 4
)
