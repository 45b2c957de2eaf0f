package interceptors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/macros"
	"github.com/patrickwarner/openbidder/internal/pipeline"
	"github.com/patrickwarner/openbidder/internal/token"
)

// AllSeats is the PriceAdjuster key whose multiplier applies to every bid.
const AllSeats = "*"

// PriceAdjuster scales bid prices by per-seat multipliers. The AllSeats
// multiplier is applied on top of any seat multiplier.
type PriceAdjuster struct {
	multipliers map[string]float64
}

// NewPriceAdjuster returns the interceptor.
func NewPriceAdjuster(multipliers map[string]float64) *PriceAdjuster {
	return &PriceAdjuster{multipliers: multipliers}
}

func (p *PriceAdjuster) Name() string { return "price_adjuster" }

func (p *PriceAdjuster) Intercept(_ context.Context, _ *pipeline.Request, resp *bidding.BidResponse) error {
	for _, seat := range resp.Seats() {
		m, ok := p.multipliers[seat.ID]
		if !ok || seat.ID == AllSeats {
			continue
		}
		resp.UpdateBids(seat.ID, scale(m))
	}
	if m, ok := p.multipliers[AllSeats]; ok {
		resp.UpdateAllBids(scale(m))
	}
	return nil
}

func scale(m float64) bidding.Updater {
	return func(b *bidding.Bid) bool {
		adjusted := math.Round(b.Price*m*10000) / 10000
		if adjusted == b.Price {
			return false
		}
		b.Price = adjusted
		return true
	}
}

// WinNotice points every bid's NURL at the bidder's win endpoint with a
// signed token identifying the bid. The exchange substitutes the clearing
// price for ${AUCTION_PRICE}.
type WinNotice struct {
	signer   *token.Signer
	baseURL  string
	currency string
}

// NewWinNotice returns the interceptor.
func NewWinNotice(signer *token.Signer, baseURL, currency string) *WinNotice {
	return &WinNotice{signer: signer, baseURL: baseURL, currency: currency}
}

func (w *WinNotice) Name() string { return "win_notice" }

func (w *WinNotice) Intercept(_ context.Context, req *pipeline.Request, resp *bidding.BidResponse) error {
	currency := w.currency
	if len(req.OpenRTB.Cur) > 0 {
		currency = req.OpenRTB.Cur[0]
	}
	var err error
	for _, seat := range resp.Seats() {
		resp.UpdateBids(seat.ID, func(b *bidding.Bid) bool {
			if err != nil {
				return false
			}
			liID, _ := pipeline.LineItemOf(resp, b.ID)
			var tok string
			tok, err = w.signer.Generate(token.Win{
				RequestID:  req.OpenRTB.ID,
				ImpID:      b.ImpID,
				BidID:      b.ID,
				Exchange:   req.Exchange.Name(),
				Seat:       seat.ID,
				CreativeID: b.CrID,
				LineItemID: liID,
				UserID:     req.UserID(),
				BidPrice:   b.Price,
				Currency:   currency,
			})
			if err != nil {
				return false
			}
			b.NURL = w.baseURL + "?t=" + tok + "&price=${AUCTION_PRICE}"
			return true
		})
	}
	if err != nil {
		return fmt.Errorf("sign win notice: %w", err)
	}
	return nil
}

// Macros expands macros in bid markup and notice URLs.
type Macros struct {
	expander *macros.Expander
	now      func() time.Time
}

// NewMacros returns the interceptor.
func NewMacros(expander *macros.Expander) *Macros {
	return &Macros{expander: expander, now: time.Now}
}

func (m *Macros) Name() string { return "macros" }

func (m *Macros) Intercept(_ context.Context, req *pipeline.Request, resp *bidding.BidResponse) error {
	now := m.now()
	var kv map[string]string
	if req.Targeting != nil {
		kv = req.Targeting.KeyValues
	}
	var err error
	for _, seat := range resp.Seats() {
		resp.UpdateBids(seat.ID, func(b *bidding.Bid) bool {
			if err != nil {
				return false
			}
			liID, _ := pipeline.LineItemOf(resp, b.ID)
			mc := &macros.Context{
				RequestID:  req.OpenRTB.ID,
				ImpID:      b.ImpID,
				BidID:      b.ID,
				Exchange:   req.Exchange.Name(),
				Seat:       seat.ID,
				CreativeID: b.CrID,
				LineItemID: liID,
				Timestamp:  now,
				KeyValues:  kv,
			}
			var adm, burl string
			if adm, err = m.expander.Expand(b.AdM, mc); err != nil {
				return false
			}
			if burl, err = m.expander.Expand(b.BURL, mc); err != nil {
				return false
			}
			changed := adm != b.AdM || burl != b.BURL
			b.AdM, b.BURL = adm, burl
			return changed
		})
	}
	return err
}
