package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/auction"
	"github.com/roach88/stigmergy/internal/store"
)

// AuctionOptions holds flags for the auction command.
type AuctionOptions struct {
	*RootOptions
	DryRun bool
}

// BidReport is one candidate's bid in command output.
type BidReport struct {
	System string   `json:"system"`
	Active bool     `json:"active"`
	Value  float64  `json:"value,omitempty"`
	Rule   int      `json:"rule"`
	Errors []string `json:"errors,omitempty"`
}

// RoundReport is the result of an auction command.
type RoundReport struct {
	RoundID      string        `json:"round_id,omitempty"`
	Seq          int64         `json:"seq,omitempty"`
	Entity       string        `json:"entity"`
	Outcome      string        `json:"outcome"`
	Candidates   []string      `json:"candidates"`
	Bids         []BidReport   `json:"bids"`
	Winner       string        `json:"winner,omitempty"`
	Bid          float64       `json:"bid,omitempty"`
	SnapshotHash string        `json:"snapshot_hash,omitempty"`
	Writes       []store.Write `json:"writes,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// NewAuctionCommand creates the auction command.
func NewAuctionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuctionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "auction <entity>",
		Short: "Run one auction round for an entity",
		Long: `Run one auction round for an entity: gather the interested systems,
evaluate their bids over the entity's current components and select the
highest bidder.

The round is recorded in the database. The command line hosts no agents,
so the winner is acknowledged without writing; use --dry-run to see the
decision without recording a round.

Example:
  stigmergy auction entity:3f2a... --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuction(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "decide the winner without recording a round")
	return cmd
}

func runAuction(cmd *cobra.Command, opts *AuctionOptions, arg string) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	e, err := parseEntity(arg)
	if err != nil {
		return formatter.Fail("auction", err)
	}

	sess, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		_ = formatter.Error(CodeGeneric, err.Error(), nil)
		return err
	}
	defer sess.Close()

	if opts.DryRun {
		snap, err := sess.store.Snapshot(ctx, e)
		if err != nil {
			return formatter.Fail("read entity", err)
		}
		d := auction.Decide(snap, sess.catalog.Current().Systems())
		report := newRoundReport(auction.Outcome{Entity: e, Decision: d})
		report.Outcome = string(store.OutcomeNoWinner)
		if d.HasWinner() {
			report.Outcome = string(store.OutcomeWon)
		}
		return formatter.Render(report, func(w io.Writer) { writeRoundReport(w, report) })
	}

	eng, err := sess.engine(ctx, opts.RootOptions)
	if err != nil {
		return formatter.Fail("auction", err)
	}
	out, err := eng.RunEntity(ctx, e)
	var rerr *auction.RoundError
	if err != nil && !errors.As(err, &rerr) {
		return formatter.Fail("auction", err)
	}

	report := newRoundReport(out)
	if rerr != nil {
		report.ErrorCode = string(rerr.Code)
		if rerr.Err != nil {
			report.Error = rerr.Err.Error()
		}
	}
	if err := formatter.Render(report, func(w io.Writer) { writeRoundReport(w, report) }); err != nil {
		return err
	}
	if rerr != nil {
		return WrapExitError(ExitFailure, "round failed", rerr)
	}
	return nil
}

func newRoundReport(out auction.Outcome) RoundReport {
	r := RoundReport{
		RoundID:      out.RoundID,
		Seq:          out.Seq,
		Entity:       out.Entity.String(),
		Outcome:      string(out.Status),
		Candidates:   out.Decision.Candidates,
		Bids:         make([]BidReport, len(out.Decision.Bids)),
		Winner:       out.Decision.Winner,
		SnapshotHash: out.SnapshotHash,
		Writes:       out.Writes,
	}
	if r.Candidates == nil {
		r.Candidates = []string{}
	}
	if out.Decision.HasWinner() {
		r.Bid = out.Decision.Value
	}
	for i, b := range out.Decision.Bids {
		br := BidReport{System: b.System, Active: b.Active, Value: b.Value, Rule: b.Rule}
		for _, re := range b.Errors {
			br.Errors = append(br.Errors, re.Error())
		}
		r.Bids[i] = br
	}
	return r
}

func writeRoundReport(w io.Writer, r RoundReport) {
	if r.RoundID != "" {
		fmt.Fprintf(w, "Round %d (%s) on %s\n", r.Seq, r.RoundID, r.Entity)
	} else {
		fmt.Fprintf(w, "Dry run on %s\n", r.Entity)
	}
	if len(r.Bids) == 0 {
		fmt.Fprintln(w, "  no interested systems")
	}
	for _, b := range r.Bids {
		switch {
		case b.Active:
			fmt.Fprintf(w, "  %s bid %v (rule %d)\n", b.System, b.Value, b.Rule)
		default:
			fmt.Fprintf(w, "  %s no bid\n", b.System)
		}
		for _, e := range b.Errors {
			fmt.Fprintf(w, "    ! %s\n", e)
		}
	}
	switch {
	case r.ErrorCode != "":
		fmt.Fprintf(w, "✗ %s failed: %s: %s\n", r.Winner, r.ErrorCode, r.Error)
	case r.Winner != "":
		fmt.Fprintf(w, "✓ Winner: %s (%v)\n", r.Winner, r.Bid)
	default:
		fmt.Fprintln(w, "No winner")
	}
}
