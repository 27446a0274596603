// Package invariant evaluates named assertions over entity snapshots.
//
// An invariant is a bid-language boolean expression such as
// "Health.current <= Health.maximum". Invariants are a monitoring tool:
// they are checked on demand with full read access and never take part
// in bidding.
package invariant

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/stigmergy/internal/bid"
	"github.com/roach88/stigmergy/internal/ir"
)

// Invariant is a named assertion.
type Invariant struct {
	Name    string
	Asserts string

	expr bid.Expr
}

// New parses asserts and returns the invariant.
func New(name, asserts string) (Invariant, error) {
	if name == "" {
		return Invariant{}, fmt.Errorf("invariant name is required")
	}
	expr, err := bid.ParseExpr(asserts)
	if err != nil {
		return Invariant{}, fmt.Errorf("invariant %s: %w", name, err)
	}
	return Invariant{Name: name, Asserts: asserts, expr: expr}, nil
}

// MustNew is like New but panics on error. Use only in tests.
func MustNew(name, asserts string) Invariant {
	inv, err := New(name, asserts)
	if err != nil {
		panic(err)
	}
	return inv
}

// References lists the components the assertion mentions.
func (i Invariant) References() []string {
	if i.expr == nil {
		return nil
	}
	return bid.References(i.expr)
}

type document struct {
	Name    string `json:"name" yaml:"name"`
	Asserts string `json:"asserts" yaml:"asserts"`
}

// MarshalJSON implements json.Marshaler.
func (i Invariant) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{i.Name, i.Asserts})
}

// UnmarshalJSON parses and checks the assertion.
func (i *Invariant) UnmarshalJSON(data []byte) error {
	var d document
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	parsed, err := New(d.Name, d.Asserts)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (i Invariant) MarshalYAML() (any, error) {
	return document{i.Name, i.Asserts}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (i *Invariant) UnmarshalYAML(unmarshal func(any) error) error {
	var d document
	if err := unmarshal(&d); err != nil {
		return err
	}
	parsed, err := New(d.Name, d.Asserts)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Status is the outcome of one check.
type Status string

const (
	Held     Status = "held"
	Violated Status = "violated"
	// NotApplicable means the assertion references a component the entity lacks.
	NotApplicable Status = "not_applicable"
	Errored       Status = "error"
)

// Result is the outcome of checking one invariant against one entity.
type Result struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Check evaluates the assertion. Only boolean true holds; any other value
// is a violation. References into absent components are not applicable.
func (i Invariant) Check(s bid.Snapshot) Result {
	if i.expr == nil {
		return Result{Name: i.Name, Status: Errored, Error: "invariant was not parsed"}
	}
	v, err := bid.Eval(i.expr, s)
	switch {
	case bid.IsComponentAbsent(err):
		return Result{Name: i.Name, Status: NotApplicable}
	case err != nil:
		return Result{Name: i.Name, Status: Errored, Error: err.Error()}
	}
	if b, ok := v.(ir.IRBool); ok && bool(b) {
		return Result{Name: i.Name, Status: Held}
	}
	return Result{Name: i.Name, Status: Violated}
}

// CheckAll checks every invariant against components, with full read
// access, and returns results sorted by name.
func CheckAll(invs []Invariant, components map[string]ir.IRValue) []Result {
	snap := bid.MapSnapshot{Components: components}
	out := make([]Result, 0, len(invs))
	for _, inv := range invs {
		out = append(out, inv.Check(snap))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Violations filters results to those that did not hold.
func Violations(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Status == Violated || r.Status == Errored {
			out = append(out, r)
		}
	}
	return out
}
