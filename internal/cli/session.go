package cli

import (
	"context"
	"fmt"

	"github.com/roach88/stigmergy/internal/auction"
	"github.com/roach88/stigmergy/internal/catalog"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/store"
)

// session is an open database with its catalog loaded.
type session struct {
	store   *store.Store
	catalog *catalog.Catalog
}

// openSession opens the configured database, creating it if needed, and
// loads the catalog from it.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	st, err := store.Open(opts.Config.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", opts.Config.DB), err)
	}
	cat := catalog.New(st)
	if err := cat.Load(ctx); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	opts.Logger.Debug("database ready", "path", opts.Config.DB)
	return &session{store: st, catalog: cat}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// engine builds an auction engine whose round clock continues from the
// database's last recorded round.
//
// The CLI hosts no agents: every winner is acknowledged by a handler that
// succeeds without writing, so rounds are decided and recorded but change
// no component.
func (s *session) engine(ctx context.Context, opts *RootOptions) (*auction.Engine, error) {
	last, err := s.store.LastRoundSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("read round sequence: %w", err)
	}
	reg := auction.NewRegistry()
	reg.SetFallback(auction.InvokerFunc(func(ctx context.Context, req auction.Request) error {
		opts.Logger.Debug("winner acknowledged", "system", req.System, "entity", req.Entity.String(), "round_id", req.RoundID)
		return nil
	}))
	return auction.New(s.store, s.catalog, reg,
		auction.WithLogger(opts.Logger),
		auction.WithClock(auction.NewClockAt(last)),
		auction.WithInvokeTimeout(opts.Config.InvokeTimeout),
		auction.WithBidParallelism(opts.Config.BidParallelism),
	), nil
}

// parseEntity parses a command argument as an entity id.
func parseEntity(arg string) (entity.Entity, error) {
	e, err := entity.Parse(arg)
	if err != nil {
		return entity.Entity{}, fmt.Errorf("entity argument %q: %w", arg, err)
	}
	return e, nil
}
