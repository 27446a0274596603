package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/stigmergy/internal/catalog"
	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/invariant"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Entity   string       // Entity alias the assertion is about
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // The entity's rounds for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s on %s\n", e.Type, e.Entity)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nRounds:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Outcome)
			if ev.Winner != "" {
				fmt.Fprintf(&buf, " %s bid=%v", ev.Winner, ev.Bid)
			}
			if ev.ErrorCode != "" {
				fmt.Fprintf(&buf, " %s", ev.ErrorCode)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext provides what state assertions need to read.
type AssertionContext struct {
	Store    *store.Store
	Catalog  *catalog.Catalog
	Entities map[string]entity.Entity
	Ctx      context.Context
}

// EvaluateAssertions runs all assertions and returns error messages.
// Returns empty slice if all assertions pass.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertComponent:
			err = assertComponent(actx, result, a)
		case AssertComponentAbsent:
			err = assertComponentAbsent(actx, result, a)
		case AssertInvariant:
			err = assertInvariant(actx, result, a)
		case AssertRoundCount:
			err = assertRoundCount(actx, result, a)
		case AssertTraceContains:
			err = assertTraceContains(result, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func lookupEntity(actx *AssertionContext, alias string) (entity.Entity, error) {
	e, ok := actx.Entities[alias]
	if !ok {
		return entity.Entity{}, fmt.Errorf("unknown entity %q", alias)
	}
	return e, nil
}

// assertComponent checks that the component is present and contains
// every expected field (subset semantics, recursively for objects).
func assertComponent(actx *AssertionContext, result *Result, a Assertion) error {
	e, err := lookupEntity(actx, a.Entity)
	if err != nil {
		return err
	}
	data, state, err := actx.Store.GetComponent(actx.Ctx, e, a.Component)
	if err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("read %s: %w", a.Component, err)
	}
	if state != component.Present {
		return &AssertionError{
			Type:     AssertComponent,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s present", a.Component),
			Actual:   state.String(),
			Trace:    result.RoundsFor(a.Entity),
		}
	}
	if a.Expect == nil {
		return nil
	}

	want, err := ir.FromGo(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	if !matchSubset(data, want) {
		return &AssertionError{
			Type:     AssertComponent,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s containing %s", a.Component, render(want)),
			Actual:   render(data),
			Trace:    result.RoundsFor(a.Entity),
		}
	}
	return nil
}

func assertComponentAbsent(actx *AssertionContext, result *Result, a Assertion) error {
	e, err := lookupEntity(actx, a.Entity)
	if err != nil {
		return err
	}
	data, state, err := actx.Store.GetComponent(actx.Ctx, e, a.Component)
	if err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("read %s: %w", a.Component, err)
	}
	if state == component.Present {
		return &AssertionError{
			Type:     AssertComponentAbsent,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s absent", a.Component),
			Actual:   render(data),
			Trace:    result.RoundsFor(a.Entity),
		}
	}
	return nil
}

// assertInvariant checks one catalog invariant against the entity's
// final state.
func assertInvariant(actx *AssertionContext, result *Result, a Assertion) error {
	e, err := lookupEntity(actx, a.Entity)
	if err != nil {
		return err
	}

	var inv *invariant.Invariant
	for _, candidate := range actx.Catalog.Current().Invariants() {
		if candidate.Name == a.Name {
			inv = &candidate
			break
		}
	}
	if inv == nil {
		return fmt.Errorf("unknown invariant %q", a.Name)
	}

	snap, err := actx.Store.Snapshot(actx.Ctx, e)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	got := invariant.CheckAll([]invariant.Invariant{*inv}, snap)[0]
	if string(got.Status) != a.Status {
		actual := string(got.Status)
		if got.Error != "" {
			actual += ": " + got.Error
		}
		return &AssertionError{
			Type:     AssertInvariant,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%s %s", a.Name, a.Status),
			Actual:   actual,
			Trace:    result.RoundsFor(a.Entity),
		}
	}
	return nil
}

// assertRoundCount counts the entity's rounds in the store's history,
// which must agree with the trace.
func assertRoundCount(actx *AssertionContext, result *Result, a Assertion) error {
	e, err := lookupEntity(actx, a.Entity)
	if err != nil {
		return err
	}
	rounds, err := actx.Store.ListRounds(actx.Ctx, e, 0)
	if err != nil {
		return fmt.Errorf("list rounds: %w", err)
	}
	if len(rounds) != a.Count {
		return &AssertionError{
			Type:     AssertRoundCount,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%d rounds", a.Count),
			Actual:   fmt.Sprintf("%d rounds", len(rounds)),
			Trace:    result.RoundsFor(a.Entity),
		}
	}
	return nil
}

// assertTraceContains checks that some round on the entity matches the
// given outcome and winner. Empty fields match anything.
func assertTraceContains(result *Result, a Assertion) error {
	rounds := result.RoundsFor(a.Entity)
	for _, ev := range rounds {
		if (a.Outcome == "" || ev.Outcome == a.Outcome) && (a.Winner == "" || ev.Winner == a.Winner) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Entity:   a.Entity,
		Expected: fmt.Sprintf("round with outcome=%q winner=%q", a.Outcome, a.Winner),
		Actual:   "not found in trace",
		Trace:    rounds,
	}
}

// assertTraceOrder checks that the winners appear in the given order.
// Other rounds may come between them.
func assertTraceOrder(result *Result, a Assertion) error {
	rounds := result.RoundsFor(a.Entity)
	next := 0
	for _, ev := range rounds {
		if next < len(a.Winners) && ev.Outcome == string(store.OutcomeWon) && ev.Winner == a.Winners[next] {
			next++
		}
	}
	if next < len(a.Winners) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("winners in order: %v", a.Winners),
			Actual:   fmt.Sprintf("missing %s after position %d", a.Winners[next], next),
			Trace:    rounds,
		}
	}
	return nil
}

// matchSubset reports whether actual contains want. Objects match when
// every key of want matches in actual; everything else uses ir.Equal.
func matchSubset(actual, want ir.IRValue) bool {
	wantObj, ok := want.(ir.IRObject)
	if !ok {
		return ir.Equal(actual, want)
	}
	actualObj, ok := actual.(ir.IRObject)
	if !ok {
		return false
	}
	for k, w := range wantObj {
		a, ok := actualObj[k]
		if !ok || !matchSubset(a, w) {
			return false
		}
	}
	return true
}

func render(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
