package platform

import (
	"fmt"
	"strings"
)

// Registry maps exchange names to exchanges. It is built once at startup and
// only read afterwards.
type Registry struct {
	byName map[string]Exchange
	order  []Exchange
}

// NewRegistry returns a registry holding the given exchanges in order.
func NewRegistry(exchanges ...Exchange) (*Registry, error) {
	r := &Registry{byName: make(map[string]Exchange, len(exchanges))}
	for _, e := range exchanges {
		if _, ok := r.byName[e.Name()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateExchange, e.Name())
		}
		r.byName[e.Name()] = e
		r.order = append(r.order, e)
	}
	return r, nil
}

// ParseRegistry builds a registry from a comma separated list of
// "name:protocol" entries, e.g. "openx:openrtb,adx:native". An entry without a
// protocol defaults to OpenRTB.
func ParseRegistry(list string) (*Registry, error) {
	var exchanges []Exchange
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, proto, hasProto := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidExchangeEntry, entry)
		}
		p := ProtocolOpenRTB
		if hasProto {
			var err error
			if p, err = ParseProtocol(proto); err != nil {
				return nil, fmt.Errorf("exchange %s: %w", name, err)
			}
		}
		exchanges = append(exchanges, New(name, p))
	}
	return NewRegistry(exchanges...)
}

// Lookup returns the exchange registered under name.
func (r *Registry) Lookup(name string) (Exchange, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.byName[name]
	return e, ok
}

// All returns the registered exchanges in registration order.
func (r *Registry) All() []Exchange {
	if r == nil {
		return nil
	}
	out := make([]Exchange, len(r.order))
	copy(out, r.order)
	return out
}
