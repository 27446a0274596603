package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/auction"
	"github.com/roach88/stigmergy/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Interval time.Duration
	Workers  int
	Once     bool
}

// RunSummary counts round outcomes over a run.
type RunSummary struct {
	Rounds   int `json:"rounds"`
	Won      int `json:"won"`
	NoWinner int `json:"no_winner"`
	Failed   int `json:"failed"`
}

type summaryCounter struct {
	mu sync.Mutex
	RunSummary
}

func (c *summaryCounter) record(out auction.Outcome, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rounds++
	switch {
	case out.Status == store.OutcomeWon:
		c.Won++
	case out.Status == store.OutcomeNoWinner:
		c.NoWinner++
	case out.Status == store.OutcomeFailed, err != nil:
		c.Failed++
	}
}

func (c *summaryCounter) snapshot() RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.RunSummary
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run auction rounds for every entity on a schedule",
		Long: `Start the scheduler. Every interval, one round is queued for each entity
and rounds run on a pool of workers; rounds for the same entity never
overlap. A failed round is logged and does not stop the scheduler.

With --once, a single pass is made over every entity and the command exits
once all queued rounds have finished.

Example:
  stigmergy run --db ./stigmergy.db --interval 10s
  stigmergy run --once --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 5*time.Second, "time between passes over every entity")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker count (default $STIGMERGY_WORKERS)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "make one pass and exit")

	return cmd
}

func runScheduler(opts *RunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Interval <= 0 && !opts.Once {
		_ = formatter.Error(CodeBadArgument, "--interval must be positive", nil)
		return NewExitError(ExitCommandError, "invalid interval")
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sess, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		_ = formatter.Error(CodeGeneric, err.Error(), nil)
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	eng, err := sess.engine(ctx, opts.RootOptions)
	if err != nil {
		return formatter.Fail("start engine", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = opts.Config.Workers
	}
	counter := &summaryCounter{}
	sched := auction.NewScheduler(eng,
		auction.WithWorkers(workers),
		auction.WithSchedulerLogger(opts.Logger),
		auction.WithResultHandler(counter.record),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			opts.Logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.Once {
		n, err := sched.Tick(ctx)
		if err != nil {
			return formatter.Fail("queue rounds", err)
		}
		opts.Logger.Info("pass queued", "entities", n)
		sched.Stop()
	} else {
		fmt.Fprintf(formatter.GetErrWriter(), "Scheduler started (every %s, %d workers). Press Ctrl-C to stop.\n", opts.Interval, workers)
		go tickLoop(ctx, sched, opts.Interval, opts.Logger)
	}

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return formatter.Fail("scheduler", err)
	}

	summary := counter.snapshot()
	opts.Logger.Info("scheduler stopped gracefully", "rounds", summary.Rounds)
	return formatter.Render(summary, func(w io.Writer) {
		fmt.Fprintf(w, "%d rounds: %d won, %d no winner, %d failed\n",
			summary.Rounds, summary.Won, summary.NoWinner, summary.Failed)
	})
}

// tickLoop queues a pass over every entity immediately and then once per
// interval until ctx is done.
func tickLoop(ctx context.Context, sched *auction.Scheduler, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := sched.Tick(ctx)
		if err != nil {
			logger.Error("queue rounds", "error", err)
		} else {
			logger.Debug("pass queued", "entities", n, "pending", sched.Pending())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
