package bidding

import (
	"fmt"

	"github.com/patrickwarner/openbidder/internal/platform"
)

// ResponseMode records which protocol payload a response has committed to.
// Once it leaves ResponseModeNone it never changes.
type ResponseMode int

const (
	ResponseModeNone ResponseMode = iota
	ResponseModeOpenRTB
	ResponseModeNative
)

func (m ResponseMode) String() string {
	switch m {
	case ResponseModeNone:
		return "none"
	case ResponseModeOpenRTB:
		return "openrtb"
	case ResponseModeNative:
		return "native"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// payload is implemented by the two protocol containers. A response holds at
// most one; a nil payload means ResponseModeNone.
type payload interface {
	mode() ResponseMode
	registry() *seatRegistry
}

// OpenRTB is the OpenRTB response payload.
type OpenRTB struct {
	ID         string
	BidID      string
	Cur        string
	CustomData string
	// NBR is the no-bid reason, only meaningful when no seat holds a bid.
	NBR   int
	seats seatRegistry
}

// Seats returns the payload's seats in creation order.
func (p *OpenRTB) Seats() []*Seat { return p.seats.all() }

func (p *OpenRTB) mode() ResponseMode      { return ResponseModeOpenRTB }
func (p *OpenRTB) registry() *seatRegistry { return &p.seats }

// Native is the payload for exchanges with a vendor-specific native format.
type Native struct {
	Cur              string
	ProcessingTimeMS int
	DebugString      string
	seats            seatRegistry
}

// Seats returns the payload's seats in creation order.
func (p *Native) Seats() []*Seat { return p.seats.all() }

func (p *Native) mode() ResponseMode      { return ResponseModeNative }
func (p *Native) registry() *seatRegistry { return &p.seats }

// ResponseMode returns the committed mode.
func (r *BidResponse) ResponseMode() ResponseMode {
	if r.payload == nil {
		return ResponseModeNone
	}
	return r.payload.mode()
}

// AsOpenRTB commits the response to OpenRTB, creating an empty payload on the
// first call and returning the same one afterwards. It fails with
// ErrResponseModeConflict when the native payload is already committed.
func (r *BidResponse) AsOpenRTB() (*OpenRTB, error) {
	switch p := r.payload.(type) {
	case nil:
		o := &OpenRTB{}
		r.payload = o
		return o, nil
	case *OpenRTB:
		return p, nil
	default:
		return nil, modeConflict(ResponseModeOpenRTB, p.mode())
	}
}

// AsNative commits the response to the native format. See AsOpenRTB.
func (r *BidResponse) AsNative() (*Native, error) {
	switch p := r.payload.(type) {
	case nil:
		n := &Native{}
		r.payload = n
		return n, nil
	case *Native:
		return p, nil
	default:
		return nil, modeConflict(ResponseModeNative, p.mode())
	}
}

// OpenRTB looks up the OpenRTB payload. It returns nil when the native
// payload is committed and otherwise behaves like AsOpenRTB.
func (r *BidResponse) OpenRTB() *OpenRTB {
	o, err := r.AsOpenRTB()
	if err != nil {
		return nil
	}
	return o
}

// Native looks up the native payload. It returns nil when the OpenRTB
// payload is committed and otherwise behaves like AsNative.
func (r *BidResponse) Native() *Native {
	n, err := r.AsNative()
	if err != nil {
		return nil
	}
	return n
}

// writeSeats returns the seat registry for writers, committing the bound
// exchange's protocol when no mode was chosen yet.
func (r *BidResponse) writeSeats() *seatRegistry {
	if r.payload == nil {
		if r.exchange.Protocol() == platform.ProtocolNative {
			r.payload = &Native{}
		} else {
			r.payload = &OpenRTB{}
		}
	}
	return r.payload.registry()
}

// readSeat returns the seat for readers without creating it or committing a
// mode.
func (r *BidResponse) readSeat(id string) *Seat {
	if r.payload == nil {
		return nil
	}
	return r.payload.registry().lookup(id)
}

func modeConflict(requested, active ResponseMode) error {
	return fmt.Errorf("%w: %s requested but %s is active", ErrResponseModeConflict, requested, active)
}
