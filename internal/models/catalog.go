package models

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"
)

// ErrNotFound is returned when an entity is not found in the catalog.
var ErrNotFound = errors.New("entity not found")

// LineItem is a unit of demand the bidder bids on behalf of. Each line item
// bids from one seat at a fixed CPM, subject to its targeting and frequency cap.
type LineItem struct {
	ID         int     `json:"id"`
	CampaignID int     `json:"campaign_id"`
	Name       string  `json:"name"`
	Seat       string  `json:"seat"` // Seat the bids are placed from. Empty for the anonymous seat.
	CPM        float64 `json:"cpm"`  // Bid price in the bidder's currency.
	Active     bool    `json:"active"`
	// Targeting. Empty values match everything.
	DeviceType string            `json:"device_type,omitempty"`
	Country    string            `json:"country,omitempty"`
	KeyValues  map[string]string `json:"key_values,omitempty"`
	// FrequencyCap is the number of wins allowed per user within FrequencyWindow. Zero uses the default.
	FrequencyCap    int           `json:"frequency_cap,omitempty"`
	FrequencyWindow time.Duration `json:"frequency_window,omitempty"`
	ADomain         []string      `json:"adomain,omitempty"` // Advertiser domains disclosed to the exchange.
	DealID          string        `json:"deal_id,omitempty"`
}

// Creative is an ad the bidder can offer. Its markup is either raw HTML or
// banner JSON composed into an image tag.
type Creative struct {
	ID         int             `json:"id"`
	LineItemID int             `json:"line_item_id"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Format     string          `json:"format"` // "html" or "banner"
	HTML       string          `json:"html,omitempty"`
	Banner     json.RawMessage `json:"banner,omitempty"`
	ClickURL   string          `json:"click_url,omitempty"`
}

// Catalog provides thread-safe read access to the bidder's demand. Reads are
// served from an immutable snapshot replaced atomically on reload.
type Catalog interface {
	GetLineItem(id int) *LineItem
	GetAllLineItems() []LineItem
	// CreativesForSize returns creatives of active line items with the exact size.
	CreativesForSize(width, height int) []Creative
	ReloadAll(lineItems []LineItem, creatives []Creative) error
}

type catalogSnapshot struct {
	lineItems     []LineItem
	lineItemIndex map[int]*LineItem
	bySize        map[[2]int][]Creative
}

// InMemoryCatalog implements Catalog with atomic snapshot updates.
type InMemoryCatalog struct {
	data atomic.Pointer[catalogSnapshot]
}

// NewInMemoryCatalog returns an empty catalog.
func NewInMemoryCatalog() *InMemoryCatalog {
	c := &InMemoryCatalog{}
	c.data.Store(&catalogSnapshot{
		lineItemIndex: make(map[int]*LineItem),
		bySize:        make(map[[2]int][]Creative),
	})
	return c
}

// GetLineItem returns the line item with the given ID, or nil.
func (c *InMemoryCatalog) GetLineItem(id int) *LineItem {
	return c.data.Load().lineItemIndex[id]
}

// GetAllLineItems returns a copy of all line items.
func (c *InMemoryCatalog) GetAllLineItems() []LineItem {
	items := c.data.Load().lineItems
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

// CreativesForSize returns the creatives indexed under width x height.
func (c *InMemoryCatalog) CreativesForSize(width, height int) []Creative {
	return c.data.Load().bySize[[2]int{width, height}]
}

// ReloadAll swaps in a new snapshot. Creatives referencing unknown or inactive
// line items are not indexed.
func (c *InMemoryCatalog) ReloadAll(lineItems []LineItem, creatives []Creative) error {
	snap := &catalogSnapshot{
		lineItems:     make([]LineItem, len(lineItems)),
		lineItemIndex: make(map[int]*LineItem, len(lineItems)),
		bySize:        make(map[[2]int][]Creative),
	}
	copy(snap.lineItems, lineItems)
	for i := range snap.lineItems {
		snap.lineItemIndex[snap.lineItems[i].ID] = &snap.lineItems[i]
	}
	for _, cr := range creatives {
		li, ok := snap.lineItemIndex[cr.LineItemID]
		if !ok || !li.Active {
			continue
		}
		key := [2]int{cr.Width, cr.Height}
		snap.bySize[key] = append(snap.bySize[key], cr)
	}
	c.data.Store(snap)
	return nil
}
