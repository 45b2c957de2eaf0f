// Package platform describes the ad exchanges a bidder is connected to.
//
// An Exchange is an opaque identity bound to every bid response. The bidding
// core only requires that one is present; the protocol it reports decides which
// wire payload a response commits to when bidding logic adds bids without
// choosing a protocol explicitly.
package platform

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownProtocol is returned when a protocol name cannot be parsed.
	ErrUnknownProtocol = errors.New("unknown exchange protocol")
	// ErrInvalidExchangeEntry is returned for malformed "name:protocol" entries.
	ErrInvalidExchangeEntry = errors.New("invalid exchange entry")
	// ErrDuplicateExchange is returned when two exchanges share a name.
	ErrDuplicateExchange = errors.New("duplicate exchange")
)

// Protocol is the wire format family an exchange speaks.
type Protocol int

const (
	// ProtocolOpenRTB is the generic OpenRTB JSON protocol.
	ProtocolOpenRTB Protocol = iota
	// ProtocolNative is a vendor-specific native format.
	ProtocolNative
)

func (p Protocol) String() string {
	switch p {
	case ProtocolOpenRTB:
		return "openrtb"
	case ProtocolNative:
		return "native"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// ParseProtocol converts a configuration value into a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openrtb", "ortb":
		return ProtocolOpenRTB, nil
	case "native":
		return ProtocolNative, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
	}
}

// Exchange identifies the exchange a bid response is bound to.
type Exchange interface {
	Name() string
	Protocol() Protocol
	// String is "name:protocol", as written in the EXCHANGES setting.
	String() string
}

type noExchange struct{}

func (noExchange) Name() string       { return "none" }
func (noExchange) Protocol() Protocol { return ProtocolOpenRTB }
func (noExchange) String() string     { return "none" }

// NoExchange is used where no exchange is bound, e.g. prototypes and tests.
var NoExchange Exchange = noExchange{}

// OpenRTBExchange is an exchange speaking OpenRTB.
type OpenRTBExchange struct {
	name string
}

// NewOpenRTBExchange returns an OpenRTB exchange with the given name.
func NewOpenRTBExchange(name string) *OpenRTBExchange {
	return &OpenRTBExchange{name: name}
}

func (e *OpenRTBExchange) Name() string       { return e.name }
func (e *OpenRTBExchange) Protocol() Protocol { return ProtocolOpenRTB }
func (e *OpenRTBExchange) String() string     { return e.name + ":openrtb" }

// NativeExchange is an exchange speaking its own native format.
type NativeExchange struct {
	name string
}

// NewNativeExchange returns a native-protocol exchange with the given name.
func NewNativeExchange(name string) *NativeExchange {
	return &NativeExchange{name: name}
}

func (e *NativeExchange) Name() string       { return e.name }
func (e *NativeExchange) Protocol() Protocol { return ProtocolNative }
func (e *NativeExchange) String() string     { return e.name + ":native" }

// New returns an exchange for the given protocol.
func New(name string, p Protocol) Exchange {
	if p == ProtocolNative {
		return NewNativeExchange(name)
	}
	return NewOpenRTBExchange(name)
}
