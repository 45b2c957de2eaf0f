package bidding

// DefaultSeat is the anonymous seat every response implicitly has.
const DefaultSeat = ""

// Bid is a single candidate bid. It is handled by pointer so bidding logic can
// adjust it in place; it should be treated as read-only once encoded.
type Bid struct {
	ID    string
	ImpID string
	Price float64
	// AdID links the bid to a creative for impression and click correlation.
	// An empty AdID means the bid carries no linked creative.
	AdID    string
	CrID    string
	CID     string
	AdM     string
	NURL    string
	BURL    string
	ADomain []string
	W       int
	H       int
	DealID  string
	Ext     map[string]any
}

// Predicate selects bids for queries and filters.
type Predicate func(*Bid) bool

// Updater mutates a bid in place and reports whether it changed anything.
type Updater func(*Bid) bool

// Seat is an ordered group of bids placed by one demand identity.
type Seat struct {
	ID   string
	bids []*Bid
}

// Bids returns the seat's bids in insertion order. The slice must not be
// appended to; use Add.
func (s *Seat) Bids() []*Bid {
	return s.bids[:len(s.bids):len(s.bids)]
}

// Len returns the number of bids in the seat.
func (s *Seat) Len() int { return len(s.bids) }

// Add appends a bid to the seat.
func (s *Seat) Add(b *Bid) *Seat {
	s.bids = append(s.bids, b)
	return s
}

// first returns the first bid matching pred, or nil.
func (s *Seat) first(pred Predicate) *Bid {
	for _, b := range s.bids {
		if pred(b) {
			return b
		}
	}
	return nil
}

// retain keeps only bids matching pred and reports whether any were dropped.
// The backing array is only replaced when something is removed.
func (s *Seat) retain(pred Predicate) bool {
	drop := -1
	for i, b := range s.bids {
		if !pred(b) {
			drop = i
			break
		}
	}
	if drop < 0 {
		return false
	}
	kept := make([]*Bid, drop, len(s.bids)-1)
	copy(kept, s.bids[:drop])
	for _, b := range s.bids[drop+1:] {
		if pred(b) {
			kept = append(kept, b)
		}
	}
	s.bids = kept
	return true
}

// update applies fn to every bid, without short-circuiting.
func (s *Seat) update(fn Updater) bool {
	changed := false
	for _, b := range s.bids {
		if fn(b) {
			changed = true
		}
	}
	return changed
}

// seatRegistry is an insertion-ordered map of seats. The zero value is ready
// to use.
type seatRegistry struct {
	order []*Seat
	index map[string]*Seat
}

// getOrCreate is the write path: unknown seats are created empty.
func (r *seatRegistry) getOrCreate(id string) *Seat {
	if s, ok := r.index[id]; ok {
		return s
	}
	if r.index == nil {
		r.index = make(map[string]*Seat)
	}
	s := &Seat{ID: id}
	r.index[id] = s
	r.order = append(r.order, s)
	return s
}

// lookup is the read path: unknown seats yield nil and are not created.
func (r *seatRegistry) lookup(id string) *Seat {
	return r.index[id]
}

func (r *seatRegistry) all() []*Seat {
	return r.order[:len(r.order):len(r.order)]
}
