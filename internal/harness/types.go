package harness

import (
	"github.com/roach88/stigmergy/internal/ir"
)

// BidEvent is one candidate's bid in a traced round.
type BidEvent struct {
	System string  `json:"system"`
	Active bool    `json:"active"`
	Value  float64 `json:"value"`
}

// WriteEvent is one committed write. Data is nil for a deletion.
type WriteEvent struct {
	Component string     `json:"component"`
	Data      ir.IRValue `json:"data"`
}

// TraceEvent records one auction round.
type TraceEvent struct {
	Round     string       `json:"round"`
	Seq       int64        `json:"seq"`
	Entity    string       `json:"entity"` // scenario alias
	Outcome   string       `json:"outcome"`
	Winner    string       `json:"winner,omitempty"`
	Bid       float64      `json:"bid,omitempty"`
	Bids      []BidEvent   `json:"bids"`
	Writes    []WriteEvent `json:"writes,omitempty"`
	ErrorCode string       `json:"error_code,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains every round in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Entities maps scenario aliases to entity ids.
	Entities map[string]string `json:"entities,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Entities: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddRound appends a round to the trace.
func (r *Result) AddRound(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// RoundsFor returns the traced rounds of one entity alias in order.
func (r *Result) RoundsFor(alias string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Entity == alias {
			out = append(out, ev)
		}
	}
	return out
}
