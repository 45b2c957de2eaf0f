// Package codec converts between the wire formats exchanges speak and the
// bidder's in-memory request and response models.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/patrickwarner/openbidder/internal/bidding"
	"github.com/patrickwarner/openbidder/internal/models"
	"github.com/patrickwarner/openbidder/internal/platform"
)

var (
	// ErrNoResponseMode is returned when encoding a response that never
	// committed to a protocol, i.e. no bidding logic ever touched a payload.
	ErrNoResponseMode = errors.New("codec: response has no protocol payload")
	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("codec: invalid request")
)

const (
	contentTypeJSON      = "application/json"
	openRTBVersionHeader = "X-Openrtb-Version"
	openRTBVersion       = "2.5"
)

// DecodeRequest reads and validates an OpenRTB bid request.
func DecodeRequest(r io.Reader) (*models.OpenRTBRequest, error) {
	var req models.OpenRTBRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if req.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}
	if len(req.Imp) == 0 {
		return nil, fmt.Errorf("%w: no impressions", ErrInvalidRequest)
	}
	for i, imp := range req.Imp {
		if imp.ID == "" {
			return nil, fmt.Errorf("%w: imp[%d] missing id", ErrInvalidRequest, i)
		}
	}
	return &req, nil
}

// Encoder serializes bid responses into their transport envelope.
type Encoder struct {
	// DefaultCurrency is written when bidding logic left the currency unset.
	DefaultCurrency string
}

// NewEncoder returns an encoder using the given default currency.
func NewEncoder(currency string) *Encoder {
	return &Encoder{DefaultCurrency: currency}
}

// Encode reads the response mode and writes the active payload as the
// envelope body. It fails with ErrNoResponseMode when no payload exists.
func (e *Encoder) Encode(resp *bidding.BidResponse, requestID string) error {
	var body any
	switch resp.ResponseMode() {
	case bidding.ResponseModeOpenRTB:
		p := resp.OpenRTB()
		if p.ID == "" {
			p.ID = requestID
		}
		if p.Cur == "" {
			p.Cur = e.DefaultCurrency
		}
		out, err := ToOpenRTB(p)
		if err != nil {
			return err
		}
		body = out
		resp.HTTPResponse().SetHeader(openRTBVersionHeader, openRTBVersion)
	case bidding.ResponseModeNative:
		p := resp.Native()
		if p.Cur == "" {
			p.Cur = e.DefaultCurrency
		}
		body = ToNative(p)
	default:
		return ErrNoResponseMode
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s response: %w", resp.ResponseMode(), err)
	}
	resp.HTTPResponse().
		SetHeader("Content-Type", contentTypeJSON).
		SetBody(data)
	return nil
}

// EncodeNoBid writes a no-bid reply. OpenRTB exchanges receive a body carrying
// the no-bid reason; native exchanges receive 204 No Content. A response that
// never committed to a protocol commits to its exchange's protocol first.
func (e *Encoder) EncodeNoBid(resp *bidding.BidResponse, requestID string, reason int) error {
	mode := resp.ResponseMode()
	if mode == bidding.ResponseModeNone {
		if resp.Exchange().Protocol() == platform.ProtocolNative {
			mode = bidding.ResponseModeNative
		} else {
			mode = bidding.ResponseModeOpenRTB
		}
	}
	if mode == bidding.ResponseModeNative {
		if _, err := resp.AsNative(); err != nil {
			return err
		}
		resp.HTTPResponse().SetStatus(http.StatusNoContent).SetBody(nil)
		return nil
	}

	p, err := resp.AsOpenRTB()
	if err != nil {
		return err
	}
	p.NBR = reason
	return e.Encode(resp, requestID)
}

// ToOpenRTB converts an OpenRTB payload into its wire shape. Seats without
// bids are omitted.
func ToOpenRTB(p *bidding.OpenRTB) (models.OpenRTBResponse, error) {
	out := models.OpenRTBResponse{
		ID:         p.ID,
		BidID:      p.BidID,
		Cur:        p.Cur,
		CustomData: p.CustomData,
	}
	for _, seat := range p.Seats() {
		if seat.Len() == 0 {
			continue
		}
		sb := models.SeatBid{Seat: seat.ID, Bid: make([]models.Bid, 0, seat.Len())}
		for _, b := range seat.Bids() {
			wb, err := toWireBid(b)
			if err != nil {
				return out, fmt.Errorf("seat %q bid %q: %w", seat.ID, b.ID, err)
			}
			sb.Bid = append(sb.Bid, wb)
		}
		out.SeatBid = append(out.SeatBid, sb)
	}
	if len(out.SeatBid) == 0 {
		out.Nbr = p.NBR
	}
	return out, nil
}

func toWireBid(b *bidding.Bid) (models.Bid, error) {
	wb := models.Bid{
		ID:      b.ID,
		ImpID:   b.ImpID,
		Price:   b.Price,
		NURL:    b.NURL,
		BURL:    b.BURL,
		AdM:     b.AdM,
		AdID:    b.AdID,
		ADomain: b.ADomain,
		CID:     b.CID,
		CrID:    b.CrID,
		DealID:  b.DealID,
		W:       b.W,
		H:       b.H,
	}
	if len(b.Ext) > 0 {
		ext, err := json.Marshal(b.Ext)
		if err != nil {
			return wb, fmt.Errorf("marshal ext: %w", err)
		}
		wb.Ext = ext
	}
	return wb, nil
}

// ToNative flattens a native payload into ads, one per bid, each bidding on
// the slot named by the bid's impression ID.
func ToNative(p *bidding.Native) models.NativeResponse {
	out := models.NativeResponse{
		Ads:              []models.NativeAd{},
		Currency:         p.Cur,
		ProcessingTimeMS: p.ProcessingTimeMS,
		DebugString:      p.DebugString,
	}
	for _, seat := range p.Seats() {
		for _, b := range seat.Bids() {
			creativeID := b.CrID
			if creativeID == "" {
				creativeID = b.AdID
			}
			ad := models.NativeAd{
				BuyerCreativeID: creativeID,
				HTMLSnippet:     b.AdM,
				ClickThroughURL: b.ADomain,
				Width:           b.W,
				Height:          b.H,
				BuyerSeat:       seat.ID,
				AdSlot: []models.AdSlot{{
					ID:           b.ImpID,
					MaxCPMMicros: PriceToMicros(b.Price),
					DealID:       b.DealID,
				}},
			}
			for _, u := range []string{b.NURL, b.BURL} {
				if u != "" {
					ad.ImpressionTrackingURL = append(ad.ImpressionTrackingURL, u)
				}
			}
			out.Ads = append(out.Ads, ad)
		}
	}
	return out
}

// PriceToMicros converts a CPM to micros of the currency unit.
func PriceToMicros(price float64) int64 {
	return int64(math.Round(price * 1e6))
}
