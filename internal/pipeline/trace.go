package pipeline

import "time"

// TraceStep records the bid count around one interceptor.
type TraceStep struct {
	Stage      string            `json:"stage"`
	BidsBefore int               `json:"bids_before"`
	BidsAfter  int               `json:"bids_after"`
	DurationUS int64             `json:"duration_us"`
	Details    map[string]string `json:"details,omitempty"`
}

// Trace captures the ordered list of steps performed by a chain.
type Trace struct {
	Steps []TraceStep `json:"steps"`
}

// AddStep appends a trace entry for the given stage.
func (t *Trace) AddStep(stage string, before, after int, d time.Duration) {
	if t == nil {
		return
	}
	t.Steps = append(t.Steps, TraceStep{
		Stage:      stage,
		BidsBefore: before,
		BidsAfter:  after,
		DurationUS: d.Microseconds(),
	})
}

// Annotate attaches a detail to the most recent step.
func (t *Trace) Annotate(key, value string) {
	if t == nil || len(t.Steps) == 0 {
		return
	}
	last := &t.Steps[len(t.Steps)-1]
	if last.Details == nil {
		last.Details = make(map[string]string)
	}
	last.Details[key] = value
}
