package auction

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/stigmergy/internal/entity"
)

// DefaultWorkers is the default number of scheduler workers.
const DefaultWorkers = 4

// Scheduler runs rounds for queued entities on a pool of workers.
//
// Each queued entity gets one round. Rounds for different entities run
// in parallel up to the worker count; the engine's entity lock keeps
// rounds for one entity sequential even when callers bypass the queue.
//
// Thread-safety model:
//   - Enqueue, Tick, Stop: safe from any goroutine
//   - Run: call once
type Scheduler struct {
	engine   *Engine
	queue    *roundQueue
	workers  int
	logger   *slog.Logger
	onResult func(Outcome, error)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWorkers sets the worker count. Non-positive values are ignored.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithResultHandler registers fn to receive every round's result. fn is
// called from worker goroutines and must be safe for concurrent use.
func WithResultHandler(fn func(Outcome, error)) SchedulerOption {
	return func(s *Scheduler) { s.onResult = fn }
}

// WithSchedulerLogger sets the logger. Default: the engine's logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler that runs rounds on engine.
func NewScheduler(engine *Engine, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		engine:  engine,
		queue:   newRoundQueue(),
		workers: DefaultWorkers,
		logger:  engine.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue requests a round for e. Returns false if the scheduler is
// stopped or e is already waiting.
func (s *Scheduler) Enqueue(e entity.Entity) bool {
	return s.queue.Enqueue(e)
}

// Tick requests a round for every stored entity and returns how many
// were newly queued.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	entities, err := s.engine.store.ListEntities(ctx)
	if err != nil {
		return 0, fmt.Errorf("tick: %w", err)
	}
	n := 0
	for _, e := range entities {
		if s.queue.Enqueue(e) {
			n++
		}
	}
	s.logger.Debug("tick", "entities", len(entities), "queued", n)
	return n, nil
}

// Pending returns the number of entities waiting for a round.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Run starts the workers and blocks until ctx is cancelled or Stop is
// called and the queue has drained.
//
// A failed round is logged and the worker moves on; a round failure for
// one entity never stops the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting", "workers", s.workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error { return s.work(ctx) })
	}
	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

// Stop closes the queue. Workers finish the queued rounds and return.
func (s *Scheduler) Stop() {
	s.queue.Close()
}

func (s *Scheduler) work(ctx context.Context) error {
	for {
		if e, ok := s.queue.TryDequeue(); ok {
			out, err := s.engine.RunEntity(ctx, e)
			if err != nil && !IsRoundError(err) {
				s.logger.Error("round aborted", "entity", e.String(), "error", err)
			}
			if s.onResult != nil {
				s.onResult(out, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.queue.Close()
			return ctx.Err()
		case <-s.queue.Wait():
			// A closed signal channel fires immediately; exit once drained.
			if s.queue.Drained() {
				return nil
			}
		}
	}
}
