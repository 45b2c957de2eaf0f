// Package bidding holds the per-request bid response that bidding logic
// builds up while answering one auction request.
//
// A BidResponse is created once per request, handed through the interceptor
// chain one component at a time and finally read by the encoder. It is not
// safe for concurrent use; the request dispatcher must never give the same
// response to two components at once.
//
// Bids are grouped into seats. Every seat-scoped operation takes a seat ID;
// pass DefaultSeat for the anonymous seat. Writers (Seat, AddBid) create seats
// on demand, readers never do.
package bidding

import (
	"iter"
	"reflect"

	"github.com/patrickwarner/openbidder/internal/platform"
	"github.com/patrickwarner/openbidder/internal/transport"
)

// BidResponse aggregates the bids, metadata and protocol payload for one
// auction request.
type BidResponse struct {
	exchange     platform.Exchange
	httpResponse *transport.ResponseBuilder
	metadata     map[string]any
	payload      payload
}

// Exchange returns the exchange this response is bound to.
func (r *BidResponse) Exchange() platform.Exchange { return r.exchange }

// HTTPResponse returns the transport envelope owned by this response.
func (r *BidResponse) HTTPResponse() *transport.ResponseBuilder { return r.httpResponse }

// Seat returns the seat with the given ID, creating it if needed.
func (r *BidResponse) Seat(id string) *Seat {
	return r.writeSeats().getOrCreate(id)
}

// Seats returns all seats of the committed payload in creation order.
func (r *BidResponse) Seats() []*Seat {
	if r.payload == nil {
		return nil
	}
	return r.payload.registry().all()
}

// AddBid appends bid to the given seat.
func (r *BidResponse) AddBid(seat string, bid *Bid) *BidResponse {
	r.Seat(seat).Add(bid)
	return r
}

// Bids returns the bids of a seat in insertion order, or nil for an unknown
// seat.
func (r *BidResponse) Bids(seat string) []*Bid {
	s := r.readSeat(seat)
	if s == nil {
		return nil
	}
	return s.Bids()
}

// BidCount returns the number of bids across all seats.
func (r *BidResponse) BidCount() int {
	n := 0
	for _, s := range r.Seats() {
		n += s.Len()
	}
	return n
}

// BidWithID returns the first bid in the seat with the given ID.
func (r *BidResponse) BidWithID(seat, id string) *Bid {
	s := r.readSeat(seat)
	if s == nil {
		return nil
	}
	return s.first(func(b *Bid) bool { return b.ID == id })
}

// BidWithAdID returns the first bid in the seat linked to adID. An empty adID
// matches the first bid that has no linked creative.
func (r *BidResponse) BidWithAdID(seat, adID string) *Bid {
	s := r.readSeat(seat)
	if s == nil {
		return nil
	}
	return s.first(func(b *Bid) bool { return b.AdID == adID })
}

// BidsWith returns a sequence over the seat's bids matching pred, in insertion
// order. The seat is resolved each time the sequence is ranged over.
func (r *BidResponse) BidsWith(seat string, pred Predicate) iter.Seq[*Bid] {
	return func(yield func(*Bid) bool) {
		s := r.readSeat(seat)
		if s == nil {
			return
		}
		for _, b := range s.bids {
			if pred(b) && !yield(b) {
				return
			}
		}
	}
}

// AllBidsWith returns a sequence over the bids of every seat matching pred,
// seat by seat in creation order.
func (r *BidResponse) AllBidsWith(pred Predicate) iter.Seq[*Bid] {
	return func(yield func(*Bid) bool) {
		for _, s := range r.Seats() {
			for _, b := range s.bids {
				if pred(b) && !yield(b) {
					return
				}
			}
		}
	}
}

// FilterBids keeps only the seat's bids matching pred and reports whether any
// were removed. Unknown seats are left alone.
func (r *BidResponse) FilterBids(seat string, pred Predicate) bool {
	s := r.readSeat(seat)
	if s == nil {
		return false
	}
	return s.retain(pred)
}

// UpdateBids applies fn to every bid in the seat and reports whether any call
// changed its bid.
func (r *BidResponse) UpdateBids(seat string, fn Updater) bool {
	s := r.readSeat(seat)
	if s == nil {
		return false
	}
	return s.update(fn)
}

// UpdateAllBids applies fn to every bid in every seat.
func (r *BidResponse) UpdateAllBids(fn Updater) bool {
	changed := false
	for _, s := range r.Seats() {
		if s.update(fn) {
			changed = true
		}
	}
	return changed
}

// PutMetadata stores a value for later components or the encoder.
func (r *BidResponse) PutMetadata(key string, value any) *BidResponse {
	r.metadata[key] = value
	return r
}

// PutAllMetadata stores every entry of m.
func (r *BidResponse) PutAllMetadata(m map[string]any) *BidResponse {
	for k, v := range m {
		r.metadata[k] = v
	}
	return r
}

// Metadata returns the live metadata map.
func (r *BidResponse) Metadata() map[string]any { return r.metadata }

// ToBuilder returns a builder that builds responses bound to the same exchange
// with a copy of this response's envelope.
func (r *BidResponse) ToBuilder() *Builder {
	return NewBuilder().
		SetExchange(r.exchange).
		SetHTTPResponse(r.httpResponse.Clone())
}

// Builder captures the immutable identity of a response before any per-request
// state exists. A builder may be reused; every Build gets its own envelope.
type Builder struct {
	exchange     platform.Exchange
	httpResponse *transport.ResponseBuilder
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Exchange() platform.Exchange { return b.exchange }

func (b *Builder) SetExchange(e platform.Exchange) *Builder {
	b.exchange = e
	return b
}

func (b *Builder) HTTPResponse() *transport.ResponseBuilder { return b.httpResponse }

func (b *Builder) SetHTTPResponse(h *transport.ResponseBuilder) *Builder {
	b.httpResponse = h
	return b
}

// Build returns a new response. It fails if the exchange or envelope is
// missing; a nil pointer wrapped in the Exchange interface counts as missing.
func (b *Builder) Build() (*BidResponse, error) {
	if isNilExchange(b.exchange) {
		return nil, ErrMissingExchange
	}
	if b.httpResponse == nil {
		return nil, ErrMissingHTTPResponse
	}
	return &BidResponse{
		exchange:     b.exchange,
		httpResponse: b.httpResponse.Clone(),
		metadata:     make(map[string]any),
	}, nil
}

func isNilExchange(e platform.Exchange) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
