package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/stigmergy/internal/catalog"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/store"
	"github.com/roach88/stigmergy/internal/system"
)

// DefaultInvokeTimeout bounds a winner's invocation.
const DefaultInvokeTimeout = 30 * time.Second

// DefaultBidParallelism bounds concurrent bid evaluations in one round.
const DefaultBidParallelism = 8

// Engine runs auction rounds against a store and a catalog.
//
// Thread-safety: Run and RunEntity are safe from any goroutine. Rounds
// for the same entity queue on its lock; rounds for different entities
// proceed in parallel.
type Engine struct {
	store       *store.Store
	catalog     *catalog.Catalog
	invoker     Invoker
	clock       Sequencer
	ids         RoundIDGenerator
	locks       *lockTable
	logger      *slog.Logger
	timeout     time.Duration
	parallelism int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the round clock, typically NewClockAt(store.LastRoundSeq).
func WithClock(c Sequencer) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRoundIDs sets the round id generator. Default: UUIDv7Generator.
func WithRoundIDs(g RoundIDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithInvokeTimeout sets the winner's invocation budget.
// Non-positive values are ignored.
func WithInvokeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithBidParallelism bounds concurrent bid evaluations per round.
// Non-positive values are ignored.
func WithBidParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// New creates an Engine. inv executes winners; a *Registry is the usual
// choice.
func New(s *store.Store, c *catalog.Catalog, inv Invoker, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		catalog:     c,
		invoker:     inv,
		clock:       NewClock(),
		ids:         UUIDv7Generator{},
		locks:       newLockTable(),
		logger:      slog.Default(),
		timeout:     DefaultInvokeTimeout,
		parallelism: DefaultBidParallelism,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome reports one round.
type Outcome struct {
	RoundID      string
	Seq          int64
	Entity       entity.Entity
	Status       store.Outcome
	Decision     Decision
	SnapshotHash string
	// Writes are the committed writes; empty unless Status is won.
	Writes []store.Write
}

// RunEntity runs one round for e over every system in the catalog.
func (e *Engine) RunEntity(ctx context.Context, ent entity.Entity) (Outcome, error) {
	return e.Run(ctx, ent, e.catalog.Current().Systems())
}

// Run runs one round for ent with systems as the candidate pool.
//
// A round with no bidder is a normal outcome and returns a nil error. A
// failed round returns its Outcome together with a *RoundError; none of
// its writes are applied and its record is still written. Other errors
// (entity not found, store failures) return before a round is recorded.
func (e *Engine) Run(ctx context.Context, ent entity.Entity, systems []system.Definition) (Outcome, error) {
	release, err := e.locks.acquire(ctx, ent)
	if err != nil {
		return Outcome{}, fmt.Errorf("lock entity %s: %w", ent, err)
	}
	defer release()

	out := Outcome{
		RoundID: e.ids.Generate(),
		Seq:     e.clock.Next(),
		Entity:  ent,
	}
	log := e.logger.With("entity", ent.String(), "round_id", out.RoundID, "seq", out.Seq)

	components, err := e.store.Snapshot(ctx, ent)
	if err != nil {
		if store.IsNotFound(err) {
			return out, err
		}
		return out, &RoundError{Code: ErrCodeSnapshotFailed, Entity: ent, RoundID: out.RoundID, Err: err}
	}
	out.SnapshotHash, err = ir.SnapshotHash(ir.IRObject(components))
	if err != nil {
		return out, &RoundError{Code: ErrCodeSnapshotFailed, Entity: ent, RoundID: out.RoundID, Err: err}
	}

	out.Decision, err = decide(ctx, components, systems, e.parallelism)
	if err != nil {
		return out, fmt.Errorf("round %s: %w", out.RoundID, err)
	}
	for _, b := range out.Decision.Bids {
		for _, re := range b.Errors {
			log.Warn("bid rule failed", "system", b.System, "rule", re.Rule, "error", re.Err)
		}
	}

	record := store.Round{
		ID:           out.RoundID,
		Seq:          out.Seq,
		Entity:       ent,
		Bids:         bidRecords(out.Decision.Bids),
		SnapshotHash: out.SnapshotHash,
	}

	if !out.Decision.HasWinner() {
		out.Status = store.OutcomeNoWinner
		record.Outcome = store.OutcomeNoWinner
		log.Debug("no winner", "candidates", len(out.Decision.Candidates))
		if err := e.store.AppendRound(ctx, record); err != nil {
			return out, err
		}
		return out, nil
	}

	winner := out.Decision.Winner
	record.Winner = winner
	record.Bid = out.Decision.Value
	log = log.With("system", winner, "bid", out.Decision.Value)

	var sys system.Definition
	for _, s := range systems {
		if s.Name == winner {
			sys = s
			break
		}
	}
	view := newView(ent, sys, components, e.catalog.Current())

	writes, rerr := e.invoke(ctx, out, view)
	if rerr == nil {
		out.Status = store.OutcomeWon
		record.Outcome = store.OutcomeWon
		if err := e.store.CommitRound(ctx, record, writes); err != nil {
			rerr = &RoundError{Code: ErrCodeApplyFailed, Entity: ent, System: winner, RoundID: out.RoundID, Err: err}
		} else {
			out.Writes = writes
			log.Info("round won", "writes", len(writes))
			return out, nil
		}
	}

	out.Status = store.OutcomeFailed
	record.Outcome = store.OutcomeFailed
	record.Error = rerr.Error()
	log.Error("round failed", "code", rerr.Code, "error", rerr.Err)
	if err := e.store.AppendRound(context.WithoutCancel(ctx), record); err != nil {
		return out, errors.Join(rerr, err)
	}
	return out, rerr
}

// invoke runs the winner under the timeout and returns its staged writes.
// The view is closed on every path, so a handler that outlives its
// deadline cannot stage anything more.
func (e *Engine) invoke(ctx context.Context, out Outcome, view *View) ([]store.Write, *RoundError) {
	fail := func(code RoundErrorCode, err error) *RoundError {
		view.close()
		return &RoundError{Code: code, Entity: out.Entity, System: view.System(), RoundID: out.RoundID, Err: err}
	}

	if e.invoker == nil {
		return nil, fail(ErrCodeNoHandler, errors.New("no invoker configured"))
	}

	ictx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := Request{
		RoundID: out.RoundID,
		Seq:     out.Seq,
		Entity:  out.Entity,
		System:  view.System(),
		Bid:     out.Decision.Value,
		View:    view,
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- e.invoker.Invoke(ictx, req)
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			if rejected := view.rejected(); rejected != nil {
				return nil, fail(ErrCodeInvocationFailed, fmt.Errorf("%s ignored a rejected write: %w", view.System(), rejected))
			}
		case errors.Is(err, ErrNoHandler):
			return nil, fail(ErrCodeNoHandler, err)
		case errors.Is(err, context.DeadlineExceeded) && ictx.Err() != nil:
			return nil, fail(ErrCodeInvocationTimeout, err)
		default:
			return nil, fail(ErrCodeInvocationFailed, err)
		}
		return view.close(), nil
	case <-ictx.Done():
		code := ErrCodeInvocationTimeout
		if ctx.Err() != nil {
			code = ErrCodeInvocationFailed
		}
		return nil, fail(code, fmt.Errorf("invoke %s: %w", view.System(), ictx.Err()))
	}
}

func bidRecords(bids []Bid) []store.BidRecord {
	out := make([]store.BidRecord, len(bids))
	for i, b := range bids {
		rec := store.BidRecord{System: b.System, Active: b.Active, Value: b.Value}
		for _, re := range b.Errors {
			rec.Errors = append(rec.Errors, re.Error())
		}
		out[i] = rec
	}
	return out
}
