package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/stigmergy/internal/auction"
	"github.com/roach88/stigmergy/internal/catalog"
	"github.com/roach88/stigmergy/internal/compiler"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/store"
	"github.com/roach88/stigmergy/internal/testutil"
)

// DefaultInvokeTimeout bounds scripted invocations when a scenario sets
// none.
const DefaultInvokeTimeout = time.Second

// Harness is the test execution engine for one scenario run.
type Harness struct {
	store    *store.Store
	catalog  *catalog.Catalog
	engine   *auction.Engine
	entities map[string]entity.Entity
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Load the world and apply the setup batch
//  2. Create entities with their initial components
//  3. Register scripted invokers and run every round on the engine
//  4. Evaluate assertions against the trace and the final store
//
// A returned error means the scenario could not run at all. Failed
// expectations and assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	h := &Harness{
		store:    st,
		catalog:  catalog.New(st),
		entities: make(map[string]entity.Entity),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if err := h.loadWorld(ctx, scenario); err != nil {
		return nil, err
	}
	result := NewResult()
	if err := h.createEntities(ctx, scenario.Entities, result); err != nil {
		return nil, fmt.Errorf("failed to create entities: %w", err)
	}

	timeout := scenario.InvokeTimeout
	if timeout == 0 {
		timeout = DefaultInvokeTimeout
	}
	h.engine = auction.New(st, h.catalog, newRegistry(scenario.Scripts),
		auction.WithLogger(h.logger),
		auction.WithClock(testutil.NewDeterministicClock()),
		auction.WithRoundIDs(testutil.NewSequentialIDs("round")),
		auction.WithInvokeTimeout(timeout),
	)

	if err := h.executeRounds(ctx, scenario.Rounds, result); err != nil {
		return nil, fmt.Errorf("failed to execute rounds: %w", err)
	}

	actx := &AssertionContext{
		Store:    st,
		Catalog:  h.catalog,
		Entities: h.entities,
		Ctx:      ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// loadWorld installs the scenario's CUE world and setup batch, then
// reloads the catalog so it reflects both.
func (h *Harness) loadWorld(ctx context.Context, scenario *Scenario) error {
	if scenario.World != "" {
		world, errs := compiler.LoadWorld(scenario.World, compiler.LoadModeCollectAll)
		if len(errs) > 0 {
			return fmt.Errorf("failed to load world: %w", errors.Join(errs...))
		}
		if verrs := compiler.Validate(world); len(verrs) > 0 {
			joined := make([]error, len(verrs))
			for i, ve := range verrs {
				joined[i] = ve
			}
			return fmt.Errorf("invalid world: %w", errors.Join(joined...))
		}
		if err := world.Install(ctx, h.catalog, false); err != nil {
			return fmt.Errorf("failed to install world: %w", err)
		}
	}

	if len(scenario.Setup) > 0 {
		res, err := h.store.Apply(ctx, scenario.Setup)
		if err != nil {
			return fmt.Errorf("failed to apply setup: %w", err)
		}
		if err := res.Err(); err != nil {
			return fmt.Errorf("setup rejected: %w", err)
		}
	}

	if err := h.catalog.Load(ctx); err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	return nil
}

// createEntities creates each entity and writes its components in name
// order. Component data is validated against the catalog.
func (h *Harness) createEntities(ctx context.Context, specs []EntitySpec, result *Result) error {
	for _, spec := range specs {
		e, err := h.store.CreateEntity(ctx)
		if err != nil {
			return fmt.Errorf("entity %s: %w", spec.Alias, err)
		}
		h.entities[spec.Alias] = e
		result.Entities[spec.Alias] = e.String()

		for _, name := range sortedKeys(spec.Components) {
			data, err := ir.FromGo(spec.Components[name])
			if err != nil {
				return fmt.Errorf("entity %s: component %s: %w", spec.Alias, name, err)
			}
			if _, err := h.store.PutComponent(ctx, e, name, data); err != nil {
				return fmt.Errorf("entity %s: %w", spec.Alias, err)
			}
		}
		h.logger.Debug("entity created", "alias", spec.Alias, "entity", e.String())
	}
	return nil
}

// executeRounds runs every round step in order and checks expectations.
// A failed round is a normal, traced outcome; only errors outside a round
// (store failures, unknown entities) abort the run.
func (h *Harness) executeRounds(ctx context.Context, rounds []RoundStep, result *Result) error {
	for i, step := range rounds {
		e := h.entities[step.Entity]
		times := max(step.Repeat, 1)
		for n := 0; n < times; n++ {
			out, err := h.engine.RunEntity(ctx, e)
			var code string
			if err != nil {
				var rerr *auction.RoundError
				if !errors.As(err, &rerr) {
					return fmt.Errorf("round %d: %w", i, err)
				}
				code = string(rerr.Code)
			}

			ev := traceEvent(step.Entity, out, code)
			result.AddRound(ev)

			if step.Expect != nil {
				label := fmt.Sprintf("rounds[%d]", i)
				if times > 1 {
					label = fmt.Sprintf("rounds[%d] repeat %d", i, n+1)
				}
				for _, msg := range checkExpect(label, ev, step.Expect) {
					result.AddError(msg)
				}
			}
		}
	}
	return nil
}

func traceEvent(alias string, out auction.Outcome, code string) TraceEvent {
	ev := TraceEvent{
		Round:     out.RoundID,
		Seq:       out.Seq,
		Entity:    alias,
		Outcome:   string(out.Status),
		Winner:    out.Decision.Winner,
		Bid:       out.Decision.Value,
		Bids:      make([]BidEvent, len(out.Decision.Bids)),
		ErrorCode: code,
	}
	for i, b := range out.Decision.Bids {
		ev.Bids[i] = BidEvent{System: b.System, Active: b.Active, Value: b.Value}
	}
	for _, w := range out.Writes {
		ev.Writes = append(ev.Writes, WriteEvent{Component: w.Name, Data: w.Data})
	}
	return ev
}

// checkExpect compares one traced round with its expectation.
func checkExpect(label string, ev TraceEvent, want *RoundExpect) []string {
	var errs []string
	if ev.Outcome != want.Outcome {
		errs = append(errs, fmt.Sprintf("%s: expected outcome %s, got %s", label, want.Outcome, ev.Outcome))
	}
	if want.Winner != "" && ev.Winner != want.Winner {
		errs = append(errs, fmt.Sprintf("%s: expected winner %s, got %q", label, want.Winner, ev.Winner))
	}
	if want.Bid != nil && ev.Bid != *want.Bid {
		errs = append(errs, fmt.Sprintf("%s: expected bid %v, got %v", label, *want.Bid, ev.Bid))
	}
	if want.ErrorCode != "" && ev.ErrorCode != want.ErrorCode {
		errs = append(errs, fmt.Sprintf("%s: expected error code %s, got %q", label, want.ErrorCode, ev.ErrorCode))
	}
	if want.Writes != nil {
		got := make([]string, len(ev.Writes))
		for i, w := range ev.Writes {
			got[i] = w.Component
		}
		if !slices.Equal(got, want.Writes) {
			errs = append(errs, fmt.Sprintf("%s: expected writes %v, got %v", label, want.Writes, got))
		}
	}
	return errs
}

// newRegistry routes scripted systems to their scripts. Systems without
// a script succeed without writing.
func newRegistry(scripts map[string][]Step) *auction.Registry {
	reg := auction.NewRegistry()
	for name, steps := range scripts {
		reg.Register(name, newScriptInvoker(steps))
	}
	reg.SetFallback(auction.InvokerFunc(func(context.Context, auction.Request) error { return nil }))
	return reg
}
